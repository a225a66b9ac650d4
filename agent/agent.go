// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/AdityaChandel11/predictive-pdm-platform/inference"
	"github.com/AdityaChandel11/predictive-pdm-platform/internal/log"
	"github.com/AdityaChandel11/predictive-pdm-platform/internal/wallclock"
	"github.com/AdityaChandel11/predictive-pdm-platform/sensor"
	"github.com/AdityaChandel11/predictive-pdm-platform/telemetry"
)

// DefaultPeriod is the time between cycle starts.
const DefaultPeriod = 2 * time.Second

type (
	// Connectivity keeps the broker session alive. It is satisfied by
	// *connectivity.Manager.
	Connectivity interface {
		EnsureConnected(ctx context.Context) error
		Dispatch(ctx context.Context)
	}

	// Classifier turns a sample into a verdict. It is satisfied by
	// *inference.Engine.
	Classifier interface {
		Classify(s sensor.RawSample) (inference.Verdict, error)
	}

	// Publisher sends a cycle's message. It is satisfied by
	// *telemetry.Publisher.
	Publisher interface {
		DeviceID() string
		Send(ctx context.Context, msg telemetry.Message) error
	}

	// Workspace reports inference memory usage. It is satisfied by
	// *inference.Arena.
	Workspace interface {
		Peak() int
		Cap() int
	}

	// Observer receives cycle outcomes, typically to update metrics.
	Observer interface {
		ObserveCycle(d time.Duration)
		ObserveVerdict(v inference.Verdict)
		ObserveInferError(err error)
		ObservePublish(err error)
		ObserveArena(peak, capacity int)
	}

	// Dependencies are the components driven by the loop. Workspace and
	// Observer are optional.
	Dependencies struct {
		Connectivity Connectivity
		Source       sensor.Source
		Classifier   Classifier
		Publisher    Publisher
		Workspace    Workspace
		Observer     Observer
	}

	// Agent runs the sample, infer, publish cycle.
	Agent struct {
		deps   Dependencies
		period time.Duration
		log    log.Logger
		cycles uint64
	}

	// Option configures an Agent.
	Option func(*Agent)

	// CycleResult describes what happened during one cycle. Errors are
	// reported here and never returned.
	CycleResult struct {
		Cycle      uint64
		ConnectErr error
		Sample     sensor.RawSample
		Verdict    inference.Verdict
		InferErr   error
		Message    telemetry.Message
		PublishErr error
	}
)

// WithPeriod sets the time between cycle starts.
func WithPeriod(period time.Duration) Option {
	return func(a *Agent) {
		a.period = period
	}
}

// WithLogger sets the logger for the agent.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.log = log.Wrap(logger)
	}
}

// New creates an agent over the given dependencies.
func New(deps Dependencies, opts ...Option) *Agent {
	a := &Agent{deps: deps, period: DefaultPeriod}
	for _, opt := range opts {
		opt(a)
	}
	if a.period <= 0 {
		a.period = DefaultPeriod
	}
	return a
}

// Published reports whether the cycle's message was accepted for
// transmission.
func (r *CycleResult) Published() bool {
	return r.PublishErr == nil
}

// RunCycle performs one cycle: connection upkeep, session dispatch, sampling,
// classification, and publishing, strictly in that order. A classification
// failure is replaced by the sensor fault verdict; a publish failure drops the
// message. Nothing is retried within the cycle.
func (a *Agent) RunCycle(ctx context.Context) CycleResult {
	start := wallclock.Instance.Now()
	a.cycles++
	res := CycleResult{Cycle: a.cycles}

	res.ConnectErr = a.deps.Connectivity.EnsureConnected(ctx)
	if res.ConnectErr != nil {
		a.log.Debug(ctx, "not connected",
			slog.Uint64("cycle", res.Cycle),
			slog.String("error", res.ConnectErr.Error()),
		)
	}
	a.deps.Connectivity.Dispatch(ctx)

	res.Sample = a.deps.Source.Read()

	res.Verdict, res.InferErr = a.deps.Classifier.Classify(res.Sample)
	if res.InferErr != nil {
		a.log.Warning(ctx, "classification failed", res.InferErr,
			slog.Uint64("cycle", res.Cycle),
		)
		res.Verdict = inference.SensorFaultVerdict()
	}

	res.Message = telemetry.BuildMessage(
		a.deps.Publisher.DeviceID(),
		res.Sample,
		res.Verdict,
	)
	res.PublishErr = a.deps.Publisher.Send(ctx, res.Message)
	if res.PublishErr != nil {
		a.log.Debug(ctx, "telemetry dropped",
			slog.Uint64("cycle", res.Cycle),
			slog.String("error", res.PublishErr.Error()),
		)
	} else if res.Verdict.Anomaly {
		a.log.Info(ctx, "anomaly reported",
			slog.Float64("vibration", res.Sample.Value),
			slog.String("origin", res.Verdict.Origin.String()),
		)
	}

	a.observe(res, wallclock.Instance.Now().Sub(start))
	return res
}

func (a *Agent) observe(res CycleResult, d time.Duration) {
	o := a.deps.Observer
	if o == nil {
		return
	}
	if res.InferErr != nil {
		o.ObserveInferError(res.InferErr)
	}
	o.ObserveVerdict(res.Verdict)
	o.ObservePublish(res.PublishErr)
	if ws := a.deps.Workspace; ws != nil {
		o.ObserveArena(ws.Peak(), ws.Cap())
	}
	o.ObserveCycle(d)
}

// Run executes cycles on fixed period boundaries until the context ends. A
// cycle that overruns its period skips the missed boundaries rather than
// running back to back. Run always returns nil; cycle errors never escape.
func (a *Agent) Run(ctx context.Context) error {
	a.log.Info(ctx, "agent started",
		slog.String("device_id", a.deps.Publisher.DeviceID()),
		slog.Duration("period", a.period),
	)

	next := wallclock.Instance.Now()
	for ctx.Err() == nil {
		a.RunCycle(ctx)

		next = next.Add(a.period)
		now := wallclock.Instance.Now()
		if !next.After(now) {
			missed := now.Sub(next)/a.period + 1
			next = next.Add(missed * a.period)
			a.log.Warn(ctx, "cycle overran its period",
				slog.Int64("skipped", int64(missed)),
			)
		}

		select {
		case <-ctx.Done():
		case <-wallclock.Instance.After(next.Sub(now)):
		}
	}

	a.log.Info(ctx, "agent stopped", slog.Uint64("cycles", a.cycles))
	return nil
}
