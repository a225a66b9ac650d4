// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	"context"
	"log/slog"

	"github.com/AdityaChandel11/predictive-pdm-platform/internal/log"
)

type logger struct{ log.Logger }

func (l *logger) attempt(ctx context.Context, task string, n uint64) {
	l.Debug(ctx, "attempting task",
		slog.String("task", task),
		slog.Uint64("attempt", n),
	)
}

// complete logs the final outcome; a failure is logged once, after the
// policy has given up.
func (l *logger) complete(
	ctx context.Context,
	task string,
	n uint64,
	err error,
) {
	attrs := []slog.Attr{
		slog.String("task", task),
		slog.Uint64("attempts", n),
	}
	if err == nil {
		l.Debug(ctx, "task succeeded", attrs...)
		return
	}
	l.Warning(ctx, "task gave up", err, attrs...)
}
