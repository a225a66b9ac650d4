// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/AdityaChandel11/predictive-pdm-platform/config"
	"github.com/AdityaChandel11/predictive-pdm-platform/connectivity"
	"github.com/AdityaChandel11/predictive-pdm-platform/inference"
	"github.com/AdityaChandel11/predictive-pdm-platform/internal/log"
	"github.com/AdityaChandel11/predictive-pdm-platform/internal/wallclock"
	"github.com/AdityaChandel11/predictive-pdm-platform/metrics"
	"github.com/AdityaChandel11/predictive-pdm-platform/sensor"
	"github.com/AdityaChandel11/predictive-pdm-platform/telemetry"
)

type (
	// Runtime is a fully wired agent along with the components the process
	// needs to shut down.
	Runtime struct {
		Agent   *Agent
		Manager *connectivity.Manager
		Engine  *inference.Engine
	}

	// SetupOption configures Setup.
	SetupOption func(*setupOptions)

	setupOptions struct {
		logger   *slog.Logger
		metrics  *metrics.Agent
		connOpts []connectivity.ManagerOption
		source   sensor.Source
		skipDial bool
	}
)

// WithSetupLogger sets the logger shared by all components.
func WithSetupLogger(logger *slog.Logger) SetupOption {
	return func(o *setupOptions) {
		o.logger = logger
	}
}

// WithMetrics reports component events to the collectors.
func WithMetrics(m *metrics.Agent) SetupOption {
	return func(o *setupOptions) {
		o.metrics = m
	}
}

// WithManagerOptions appends options for the connectivity manager.
func WithManagerOptions(opts ...connectivity.ManagerOption) SetupOption {
	return func(o *setupOptions) {
		o.connOpts = append(o.connOpts, opts...)
	}
}

// WithSource replaces the configured sampling source.
func WithSource(src sensor.Source) SetupOption {
	return func(o *setupOptions) {
		o.source = src
	}
}

// WithoutInitialConnect skips the connection attempt made during setup.
func WithoutInitialConnect() SetupOption {
	return func(o *setupOptions) {
		o.skipDial = true
	}
}

// Setup wires the agent from configuration. Only an unavailable sampling
// source is fatal: a missing or invalid model leaves the engine in heuristic
// mode, and a failed initial connection is left to the loop to retry.
func Setup(
	ctx context.Context,
	cfg *config.Config,
	opts ...SetupOption,
) (*Runtime, error) {
	var o setupOptions
	for _, opt := range opts {
		opt(&o)
	}
	l := log.Wrap(o.logger)

	src := o.source
	if src == nil {
		var err error
		if src, err = openSource(&cfg.Sensor, cfg.DeviceID); err != nil {
			l.Err(ctx, err)
			return nil, err
		}
	}

	engine := inference.New(
		inference.WithArenaSize(cfg.Model.ArenaSize),
		inference.WithThreshold(cfg.Model.Threshold),
		inference.WithMaxMagnitude(cfg.Model.MaxMagnitude),
		inference.WithLogger(o.logger),
	)
	loadModel(ctx, l, engine, cfg.Model.Path)

	connOpts := []connectivity.ManagerOption{
		connectivity.WithClientID(cfg.Broker.ClientID),
		connectivity.WithUsername(cfg.Broker.Username),
		connectivity.WithKeepAlive(cfg.Broker.KeepAlive.Std()),
		connectivity.WithConnectTimeout(cfg.Broker.ConnectTimeout.Std()),
		connectivity.WithAttempts(uint64(cfg.Broker.Attempts)),
		connectivity.WithBackoff(
			cfg.Broker.BackoffMin.Std(),
			cfg.Broker.BackoffMax.Std(),
		),
		connectivity.WithDispatchWait(cfg.Broker.DispatchWait.Std()),
		connectivity.WithStatusTopic(
			telemetry.StatusTopic(cfg.DeviceID),
			cfg.DeviceID,
		),
		connectivity.WithLogger(o.logger),
	}
	if cfg.Broker.PasswordFile != "" {
		connOpts = append(connOpts,
			connectivity.WithPasswordFile(cfg.Broker.PasswordFile))
	}
	if cfg.Network.Interface != "" {
		connOpts = append(connOpts,
			connectivity.WithInterface(cfg.Network.Interface))
	}
	if o.metrics != nil {
		connOpts = append(connOpts, connectivity.WithObserver(o.metrics))
	}
	manager := connectivity.NewManager(
		ConnectionProvider(&cfg.Broker),
		append(connOpts, o.connOpts...)...,
	)

	publisher := telemetry.NewPublisher(
		cfg.DeviceID,
		manager,
		telemetry.WithLogger(o.logger),
	)

	deps := Dependencies{
		Connectivity: manager,
		Source:       src,
		Classifier:   engine,
		Publisher:    publisher,
		Workspace:    engine.Arena(),
	}
	if o.metrics != nil {
		deps.Observer = o.metrics
	}
	a := New(deps,
		WithPeriod(cfg.CyclePeriod.Std()),
		WithLogger(o.logger),
	)

	l.Info(ctx, "agent configured",
		slog.String("device_id", cfg.DeviceID),
		slog.String("broker", fmt.Sprintf("%s://%s:%d",
			cfg.Broker.Transport, cfg.Broker.Host, cfg.Broker.Port)),
		slog.String("ssid", cfg.Network.SSID),
		slog.Any("wifi_password", cfg.Network.Password),
		slog.Bool("model_loaded", engine.Loaded()),
	)

	if !o.skipDial {
		if err := manager.EnsureConnected(ctx); err != nil {
			l.Warning(ctx, "initial connection failed", err)
		}
	}

	return &Runtime{Agent: a, Manager: manager, Engine: engine}, nil
}

// Run runs the agent until the context ends and then closes the session.
func (r *Runtime) Run(ctx context.Context) error {
	err := r.Agent.Run(ctx)
	if cerr := r.Manager.Close(); err == nil {
		err = cerr
	}
	return err
}

func openSource(
	cfg *config.SensorConfig,
	deviceID string,
) (sensor.Source, error) {
	switch cfg.Kind {
	case config.SensorSimulated:
		seed := cfg.Seed
		if seed == 0 {
			seed = wallclock.Instance.Now().UnixNano()
		}
		return sensor.NewSimulator(deviceID, seed), nil
	default:
		return sensor.OpenADC(
			cfg.Path,
			deviceID,
			sensor.WithReference(cfg.ReferenceVolts, cfg.MaxRaw),
		)
	}
}

func loadModel(
	ctx context.Context,
	l log.Logger,
	engine *inference.Engine,
	path string,
) {
	if path == "" {
		l.Info(ctx, "no model configured, using threshold heuristic")
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		l.Warning(ctx, "model unavailable, using threshold heuristic", err,
			slog.String("path", path))
		return
	}
	if err := engine.Load(data); err != nil {
		l.Warning(ctx, "model rejected, using threshold heuristic", err,
			slog.String("path", path))
		return
	}
	l.Info(ctx, "model loaded",
		slog.String("path", path),
		slog.Int("arena_bytes", engine.Arena().Cap()),
	)
}

// ConnectionProvider builds the link for the configured transport.
func ConnectionProvider(
	b *config.BrokerConfig,
) connectivity.ConnectionProvider {
	var tlsOpts []connectivity.TLSOption
	if b.TLS.CAFile != "" {
		tlsOpts = append(tlsOpts, connectivity.WithCAFile(b.TLS.CAFile))
	}
	if b.TLS.CertFile != "" {
		tlsOpts = append(tlsOpts, connectivity.WithClientCert(
			b.TLS.CertFile,
			b.TLS.KeyFile,
			b.TLS.KeyPasswordFile,
		))
	}
	if b.TLS.ServerName != "" {
		tlsOpts = append(tlsOpts, connectivity.WithServerName(b.TLS.ServerName))
	}

	switch b.Transport {
	case config.TransportTLS:
		return connectivity.TLSConnection(b.Host, b.Port, tlsOpts...)
	case config.TransportWebSocket, config.TransportSecureWS:
		return connectivity.WebSocketConnection(b.BrokerURL(), tlsOpts...)
	default:
		return connectivity.TCPConnection(b.Host, b.Port)
	}
}
