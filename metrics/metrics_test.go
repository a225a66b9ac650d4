// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/AdityaChandel11/predictive-pdm-platform/connectivity"
	"github.com/AdityaChandel11/predictive-pdm-platform/inference"
	"github.com/AdityaChandel11/predictive-pdm-platform/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestAgentMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCycle(20 * time.Millisecond)
	m.ObserveCycle(30 * time.Millisecond)
	require.Equal(t, 2.0, testutil.ToFloat64(m.cycles))
	require.Equal(t, 1, testutil.CollectAndCount(m.cycleLatency))

	m.ObserveVerdict(inference.Verdict{Anomaly: true, Origin: inference.OriginHeuristic})
	m.ObserveVerdict(inference.SensorFaultVerdict())
	require.Equal(t, 1.0, testutil.ToFloat64(
		m.verdicts.WithLabelValues("heuristic", "true"),
	))
	require.Equal(t, 1.0, testutil.ToFloat64(
		m.verdicts.WithLabelValues("sensor_fault", "false"),
	))

	m.ObserveInferError(&inference.InferError{Kind: inference.InvalidInput})
	m.ObserveInferError(errors.New("opaque"))
	require.Equal(t, 1.0, testutil.ToFloat64(
		m.inferErrors.WithLabelValues(inference.InvalidInput.String()),
	))
	require.Equal(t, 1.0, testutil.ToFloat64(
		m.inferErrors.WithLabelValues("unknown"),
	))

	m.ObserveConnect(connectivity.StageLink, errors.New("no route"))
	m.ObserveConnect(connectivity.StageSession, nil)
	require.Equal(t, 1.0, testutil.ToFloat64(
		m.connects.WithLabelValues("link", "failure"),
	))
	require.Equal(t, 1.0, testutil.ToFloat64(
		m.connects.WithLabelValues("session", "success"),
	))

	m.ObserveState(connectivity.SessionReady)
	require.Equal(t, 4.0, testutil.ToFloat64(m.state))

	m.ObserveArena(8, 2048)
	require.Equal(t, 8.0, testutil.ToFloat64(m.arenaPeak))
	require.Equal(t, 2048.0, testutil.ToFloat64(m.arenaCap))
}

func TestPublishResult(t *testing.T) {
	m := New(prometheus.NewRegistry())

	notConnected := fmt.Errorf("cycle: %w", connectivity.ErrNotConnected)
	for err, want := range map[error]string{
		notConnected:                   PublishNotConnected,
		&telemetry.SizeError{Size: 300}: PublishOversized,
		errors.New("broken pipe"):       PublishFailed,
	} {
		require.Equal(t, want, PublishResult(err))
		m.ObservePublish(err)
	}
	require.Equal(t, PublishAccepted, PublishResult(nil))
	m.ObservePublish(nil)

	for _, label := range []string{
		PublishAccepted,
		PublishNotConnected,
		PublishOversized,
		PublishFailed,
	} {
		require.Equal(t, 1.0, testutil.ToFloat64(
			m.publishes.WithLabelValues(label),
		), label)
	}
}

func TestDefaultRegisterer(t *testing.T) {
	origReg := prometheus.DefaultRegisterer
	origGatherer := prometheus.DefaultGatherer
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGatherer
	})

	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	m := New(nil)
	m.ObserveCycle(time.Millisecond)

	count, err := testutil.GatherAndCount(reg, "vibration_cycles_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestServe(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).ObserveCycle(time.Millisecond)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- Serve(ctx, lis, reg, nil) }()

	res, err := http.Get("http://" + lis.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, res.Body.Close())
	require.NoError(t, err)
	require.Contains(t, string(body), "vibration_cycles_total 1")

	cancel()
	require.NoError(t, <-served)
}
