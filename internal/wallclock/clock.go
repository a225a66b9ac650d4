// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package wallclock

import (
	"context"
	"time"
)

type (
	// Clock is the source of time for the agent: cycle scheduling, connect
	// deadlines, and backoff waits all go through it.
	Clock interface {
		Now() time.Time
		After(d time.Duration) <-chan time.Time
		NewTimer(d time.Duration) Timer
		WithTimeoutCause(
			parent context.Context,
			timeout time.Duration,
			cause error,
		) (context.Context, context.CancelFunc)
	}

	// Timer is a stoppable single-shot wait.
	Timer interface {
		C() <-chan time.Time
		Stop() bool
	}

	system struct{}

	systemTimer struct{ t *time.Timer }
)

// Instance is the clock in effect. Tests swap it for a Simulated clock.
var Instance Clock = system{}

func (system) Now() time.Time { return time.Now() }

func (system) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (system) NewTimer(d time.Duration) Timer {
	return systemTimer{time.NewTimer(d)}
}

func (system) WithTimeoutCause(
	parent context.Context,
	timeout time.Duration,
	cause error,
) (context.Context, context.CancelFunc) {
	return context.WithTimeoutCause(parent, timeout, cause)
}

func (t systemTimer) C() <-chan time.Time { return t.t.C }

func (t systemTimer) Stop() bool { return t.t.Stop() }
