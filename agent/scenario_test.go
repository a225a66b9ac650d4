// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package agent

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AdityaChandel11/predictive-pdm-platform/config"
	"github.com/AdityaChandel11/predictive-pdm-platform/connectivity"
	"github.com/AdityaChandel11/predictive-pdm-platform/inference"
	"github.com/AdityaChandel11/predictive-pdm-platform/metrics"
	"github.com/AdityaChandel11/predictive-pdm-platform/telemetry"
	"github.com/eclipse/paho.golang/paho"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// broker is a stub session that records accepted publishes.
type broker struct {
	published []*paho.Publish
}

func (b *broker) factory(*paho.ClientConfig) connectivity.PahoClient {
	return b
}

func (*broker) Connect(context.Context, *paho.Connect) (*paho.Connack, error) {
	return &paho.Connack{}, nil
}

func (*broker) Disconnect(*paho.Disconnect) error { return nil }

func (b *broker) Publish(
	_ context.Context,
	p *paho.Publish,
) (*paho.PublishResponse, error) {
	b.published = append(b.published, p)
	return nil, nil
}

func (b *broker) telemetry() []*paho.Publish {
	var out []*paho.Publish
	for _, p := range b.published {
		if strings.HasSuffix(p.Topic, "/telemetry") {
			out = append(out, p)
		}
	}
	return out
}

// link fails every dial while down.
type link struct {
	t     *testing.T
	down  bool
	dials int
}

func (l *link) dial(context.Context) (net.Conn, error) {
	l.dials++
	if l.down {
		return nil, errors.New("no route to host")
	}
	local, remote := net.Pipe()
	l.t.Cleanup(func() { _ = remote.Close() })
	return local, nil
}

func TestOutageThenRecovery(t *testing.T) {
	clock := useClock(t)
	ctx := context.Background()

	b := &broker{}
	l := &link{t: t, down: true}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	manager := connectivity.NewManager(l.dial,
		connectivity.WithPahoClientFactory(b.factory),
		connectivity.WithAttempts(1),
		connectivity.WithBackoff(time.Second, time.Second),
		connectivity.WithObserver(m),
	)
	src := &fakeSource{values: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}}
	a := New(Dependencies{
		Connectivity: manager,
		Source:       src,
		Classifier:   inference.New(),
		Publisher:    telemetry.NewPublisher("pump-7", manager),
		Observer:     m,
	})

	for range 5 {
		res := a.RunCycle(ctx)
		require.Error(t, res.ConnectErr)
		require.ErrorIs(t, res.PublishErr, connectivity.ErrNotConnected)
		clock.Advance(DefaultPeriod)
	}
	require.Empty(t, b.published)

	l.down = false
	res := a.RunCycle(ctx)
	require.NoError(t, res.ConnectErr)
	require.NoError(t, res.PublishErr)
	require.Equal(t, connectivity.SessionReady, manager.State())

	sent := b.telemetry()
	require.Len(t, sent, 1)
	require.Equal(t, "sensors/pump-7/telemetry", sent[0].Topic)
	rec, err := telemetry.Decode(sent[0].Payload)
	require.NoError(t, err)
	require.Equal(t, 0.6, rec.Features.VibrationMax)
	require.Equal(t, epoch.Add(5*DefaultPeriod), rec.Timestamp.Time())

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP vibration_publishes_total Telemetry publish attempts by outcome.
# TYPE vibration_publishes_total counter
vibration_publishes_total{result="accepted"} 1
vibration_publishes_total{result="not_connected"} 5
`), "vibration_publishes_total"))
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP vibration_connect_attempts_total Broker connection attempts by stage reached and result.
# TYPE vibration_connect_attempts_total counter
vibration_connect_attempts_total{result="failure",stage="link"} 5
vibration_connect_attempts_total{result="success",stage="session"} 1
`), "vibration_connect_attempts_total"))
}

func TestRecoveryAtBackoffBoundary(t *testing.T) {
	clock := useClock(t)
	ctx := context.Background()

	b := &broker{}
	l := &link{t: t, down: true}
	manager := connectivity.NewManager(l.dial,
		connectivity.WithPahoClientFactory(b.factory),
	)
	a := New(Dependencies{
		Connectivity: manager,
		Source:       &fakeSource{values: []float64{0.3}},
		Classifier:   inference.New(),
		Publisher:    telemetry.NewPublisher("pump-7", manager),
	})

	for range 5 {
		res := a.RunCycle(ctx)
		require.Error(t, res.ConnectErr)
		require.ErrorIs(t, res.PublishErr, connectivity.ErrNotConnected)
		clock.Advance(DefaultPeriod)
	}
	l.down = false

	// With the default gate the link coming back is only noticed once the
	// current backoff delay has elapsed; cycles before that stay off the
	// network.
	var until time.Time
	for gated := 0; ; gated++ {
		require.Less(t, gated, 60)
		dials := l.dials
		res := a.RunCycle(ctx)

		var be *connectivity.BackoffError
		if errors.As(res.ConnectErr, &be) {
			require.Equal(t, dials, l.dials)
			require.ErrorIs(t, res.PublishErr, connectivity.ErrNotConnected)
			until = be.Until
			clock.Advance(DefaultPeriod)
			continue
		}

		require.NoError(t, res.ConnectErr)
		require.NoError(t, res.PublishErr)
		require.NotZero(t, gated)
		require.False(t, clock.Now().Before(until))
		break
	}
	require.Equal(t, connectivity.SessionReady, manager.State())
	require.Len(t, b.telemetry(), 1)
}

func writeModel(t *testing.T) string {
	data, err := (&inference.Model{
		InputScale:        1,
		DecisionThreshold: 0.5,
		Layers: []inference.Layer{{
			In:         1,
			Out:        1,
			Activation: inference.Sigmoid,
			Weights:    []float32{10},
			Bias:       []float32{-25},
		}},
	}).MarshalBinary()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.vbm")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func testConfig() *config.Config {
	return &config.Config{
		DeviceID:    "pump-7",
		CyclePeriod: config.Duration(DefaultPeriod),
		Broker: config.BrokerConfig{
			Host:           "localhost",
			Port:           1,
			Transport:      config.TransportTCP,
			ClientID:       "pump-7",
			KeepAlive:      config.Duration(time.Minute),
			ConnectTimeout: config.Duration(time.Second),
			Attempts:       1,
			BackoffMin:     config.Duration(time.Second),
			BackoffMax:     config.Duration(time.Minute),
		},
		Model: config.ModelConfig{
			ArenaSize:    inference.DefaultArenaSize,
			Threshold:    2.5,
			MaxMagnitude: 5,
		},
		Sensor: config.SensorConfig{Kind: config.SensorSimulated, Seed: 7},
	}
}

func TestSetup(t *testing.T) {
	ctx := context.Background()

	t.Run("ModelLoaded", func(t *testing.T) {
		cfg := testConfig()
		cfg.Model.Path = writeModel(t)

		rt, err := Setup(ctx, cfg,
			WithoutInitialConnect(),
			WithMetrics(metrics.New(prometheus.NewRegistry())),
		)
		require.NoError(t, err)
		require.True(t, rt.Engine.Loaded())
		require.Equal(t, connectivity.Disconnected, rt.Manager.State())
		require.Equal(t, "pump-7", rt.Manager.ClientID())
	})

	t.Run("MissingModelFallsBack", func(t *testing.T) {
		cfg := testConfig()
		cfg.Model.Path = filepath.Join(t.TempDir(), "absent.vbm")

		rt, err := Setup(ctx, cfg, WithoutInitialConnect())
		require.NoError(t, err)
		require.False(t, rt.Engine.Loaded())
	})

	t.Run("CorruptModelFallsBack", func(t *testing.T) {
		cfg := testConfig()
		cfg.Model.Path = filepath.Join(t.TempDir(), "corrupt.vbm")
		require.NoError(t, os.WriteFile(cfg.Model.Path, []byte("VBM1"), 0o600))

		rt, err := Setup(ctx, cfg, WithoutInitialConnect())
		require.NoError(t, err)
		require.False(t, rt.Engine.Loaded())
	})

	t.Run("InitialConnectFailureTolerated", func(t *testing.T) {
		rt, err := Setup(ctx, testConfig())
		require.NoError(t, err)
		require.Equal(t, connectivity.Disconnected, rt.Manager.State())
	})

	t.Run("MissingSensorIsFatal", func(t *testing.T) {
		cfg := testConfig()
		cfg.Sensor = config.SensorConfig{
			Kind:           config.SensorADC,
			Path:           filepath.Join(t.TempDir(), "in_voltage0_raw"),
			ReferenceVolts: 5,
			MaxRaw:         4095,
		}

		var buf bytes.Buffer
		_, err := Setup(ctx, cfg,
			WithoutInitialConnect(),
			WithSetupLogger(slog.New(slog.NewTextHandler(&buf, nil))),
		)
		require.Error(t, err)
		require.Contains(t, buf.String(), "level=ERROR")
	})
}

func TestConnectionProviderTransports(t *testing.T) {
	for _, transport := range []string{
		config.TransportTCP,
		config.TransportTLS,
		config.TransportWebSocket,
		config.TransportSecureWS,
	} {
		b := testConfig().Broker
		b.Transport = transport
		b.Path = "/mqtt"
		require.NotNil(t, ConnectionProvider(&b), transport)
	}
}
