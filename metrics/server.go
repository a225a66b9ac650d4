// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/AdityaChandel11/predictive-pdm-platform/internal/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// Handler returns the scrape handler for the gatherer, or for the default
// gatherer if g is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on the listener until the context ends.
func Serve(
	ctx context.Context,
	lis net.Listener,
	g prometheus.Gatherer,
	logger *slog.Logger,
) error {
	l := log.Wrap(logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			l.Warning(ctx, "metrics server shutdown", err)
		}
	}()

	l.Info(ctx, "metrics server listening",
		slog.String("address", lis.Addr().String()),
	)
	err := srv.Serve(lis)
	if errors.Is(err, http.ErrServerClosed) {
		<-done
		return nil
	}
	return err
}
