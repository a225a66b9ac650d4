// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package wallclock

import (
	"context"
	"sync"
	"time"
)

type (
	// Simulated is a Clock whose waits complete immediately by moving the
	// apparent time forward. It is intended for deterministic tests of
	// single-goroutine code that sleeps between steps.
	Simulated struct {
		mu  sync.Mutex
		now time.Time
	}

	simulatedTimer struct {
		c chan time.Time
	}
)

// NewSimulated creates a simulated clock starting at the given time.
func NewSimulated(start time.Time) *Simulated {
	return &Simulated{now: start}
}

// Use installs the clock as the Instance and returns a function restoring the
// previous one.
func (s *Simulated) Use() (restore func()) {
	prev := Instance
	Instance = s
	return func() { Instance = prev }
}

// Now returns the apparent time.
func (s *Simulated) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Advance moves the apparent time forward.
func (s *Simulated) Advance(d time.Duration) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d > 0 {
		s.now = s.now.Add(d)
	}
	return s.now
}

// After advances the apparent time by d and returns a fired channel.
func (s *Simulated) After(d time.Duration) <-chan time.Time {
	return s.NewTimer(d).C()
}

// NewTimer advances the apparent time by d and returns a fired timer.
func (s *Simulated) NewTimer(d time.Duration) Timer {
	c := make(chan time.Time, 1)
	c <- s.Advance(d)
	return &simulatedTimer{c}
}

// WithTimeoutCause never expires on its own; simulated waits cannot block.
func (*Simulated) WithTimeoutCause(
	parent context.Context,
	_ time.Duration,
	_ error,
) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	return ctx, func() { cancel(context.Canceled) }
}

func (t *simulatedTimer) C() <-chan time.Time { return t.c }

func (*simulatedTimer) Stop() bool { return false }
