// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/AdityaChandel11/predictive-pdm-platform/connectivity"
	"github.com/AdityaChandel11/predictive-pdm-platform/inference"
	"github.com/AdityaChandel11/predictive-pdm-platform/telemetry"
	"github.com/prometheus/client_golang/prometheus"
)

// Publish outcomes.
const (
	PublishAccepted     = "accepted"
	PublishNotConnected = "not_connected"
	PublishFailed       = "failed"
	PublishOversized    = "oversized"
)

// Agent holds the Prometheus collectors of the vibration agent. It implements
// the observer interfaces of the agent loop and the connectivity manager.
type Agent struct {
	cycles       prometheus.Counter
	cycleLatency prometheus.Histogram
	publishes    *prometheus.CounterVec
	verdicts     *prometheus.CounterVec
	inferErrors  *prometheus.CounterVec
	connects     *prometheus.CounterVec
	state        prometheus.Gauge
	arenaPeak    prometheus.Gauge
	arenaCap     prometheus.Gauge
}

// New creates the collectors and registers them with reg, or with the
// default registerer if reg is nil. It panics if registration fails.
func New(reg prometheus.Registerer) *Agent {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	a := &Agent{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vibration_cycles_total",
			Help: "Sample-infer-publish cycles completed.",
		}),
		cycleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vibration_cycle_duration_seconds",
			Help:    "Wall time of one cycle including connection upkeep.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vibration_publishes_total",
			Help: "Telemetry publish attempts by outcome.",
		}, []string{"result"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vibration_verdicts_total",
			Help: "Classification verdicts by origin and anomaly flag.",
		}, []string{"origin", "anomaly"}),
		inferErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vibration_inference_errors_total",
			Help: "Classification failures replaced by the sensor fault verdict.",
		}, []string{"kind"}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vibration_connect_attempts_total",
			Help: "Broker connection attempts by stage reached and result.",
		}, []string{"stage", "result"}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vibration_connection_state",
			Help: "Connection state: 0 disconnected through 4 session ready.",
		}),
		arenaPeak: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vibration_arena_peak_bytes",
			Help: "High-water mark of the inference workspace.",
		}),
		arenaCap: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vibration_arena_capacity_bytes",
			Help: "Reserved size of the inference workspace.",
		}),
	}

	reg.MustRegister(
		a.cycles,
		a.cycleLatency,
		a.publishes,
		a.verdicts,
		a.inferErrors,
		a.connects,
		a.state,
		a.arenaPeak,
		a.arenaCap,
	)
	return a
}

// ObserveCycle records a completed cycle.
func (a *Agent) ObserveCycle(d time.Duration) {
	a.cycles.Inc()
	a.cycleLatency.Observe(d.Seconds())
}

// ObserveVerdict records the verdict used for a cycle.
func (a *Agent) ObserveVerdict(v inference.Verdict) {
	a.verdicts.WithLabelValues(
		v.Origin.String(),
		strconv.FormatBool(v.Anomaly),
	).Inc()
}

// ObserveInferError records a classification failure.
func (a *Agent) ObserveInferError(err error) {
	kind := "unknown"
	var ie *inference.InferError
	if errors.As(err, &ie) {
		kind = ie.Kind.String()
	}
	a.inferErrors.WithLabelValues(kind).Inc()
}

// ObservePublish records the outcome of a publish attempt.
func (a *Agent) ObservePublish(err error) {
	a.publishes.WithLabelValues(PublishResult(err)).Inc()
}

// ObserveArena records the inference workspace usage.
func (a *Agent) ObserveArena(peak, capacity int) {
	a.arenaPeak.Set(float64(peak))
	a.arenaCap.Set(float64(capacity))
}

// ObserveConnect records a connection attempt.
func (a *Agent) ObserveConnect(stage connectivity.Stage, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	a.connects.WithLabelValues(string(stage), result).Inc()
}

// ObserveState records a connection state change.
func (a *Agent) ObserveState(s connectivity.State) {
	a.state.Set(float64(s))
}

// PublishResult maps a publish error to its outcome label.
func PublishResult(err error) string {
	var se *telemetry.SizeError
	switch {
	case err == nil:
		return PublishAccepted
	case errors.Is(err, connectivity.ErrNotConnected):
		return PublishNotConnected
	case errors.As(err, &se):
		return PublishOversized
	default:
		return PublishFailed
	}
}
