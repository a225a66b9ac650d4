// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/AdityaChandel11/predictive-pdm-platform/agent"
	"github.com/AdityaChandel11/predictive-pdm-platform/config"
	"github.com/AdityaChandel11/predictive-pdm-platform/metrics"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "vibration-agent %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to agent configuration file")
	envPath := fs.String("env", ".env", "Path to optional environment file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgPath, *envPath)
	if err != nil {
		return err
	}

	level, _ := cfg.Level()
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	if cfg.Metrics.Addr != "" {
		lis, err := net.Listen("tcp", cfg.Metrics.Addr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		go func() {
			if err := metrics.Serve(ctx, lis, reg, log); err != nil {
				log.Error("metrics server exited", "error", err)
			}
		}()
	}

	rt, err := agent.Setup(ctx, cfg,
		agent.WithSetupLogger(log),
		agent.WithMetrics(m),
	)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	return rt.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to configuration file to validate")
	envPath := fs.String("env", ".env", "Path to optional environment file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgPath, *envPath)
	if err != nil {
		return err
	}
	fmt.Printf(
		"config ok: device %s, broker %s:%d, period %s\n",
		cfg.DeviceID,
		cfg.Broker.Host,
		cfg.Broker.Port,
		cfg.CyclePeriod,
	)
	return nil
}

// loadConfig applies the environment file, if present, before reading the
// configuration so its AGENT_* values act as overrides.
func loadConfig(cfgPath, envPath string) (*config.Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil &&
			!errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envPath, err)
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func printUsage() {
	fmt.Print(`Vibration telemetry agent

Usage:
  vibration-agent <command> [flags]

Commands:
  run        Sample, classify, and publish until interrupted
  validate   Load and validate the configuration without starting

Flags:
  -config    YAML configuration file (optional; AGENT_* variables override)
  -env       Environment file loaded first (default .env, optional)

Examples:
  vibration-agent run -config /etc/vibration-agent/agent.yaml
  AGENT_DEVICE_ID=esp32_01 AGENT_BROKER_HOST=localhost \
    AGENT_SENSOR_KIND=simulated vibration-agent run
`)
}
