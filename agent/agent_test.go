// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package agent

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/AdityaChandel11/predictive-pdm-platform/inference"
	"github.com/AdityaChandel11/predictive-pdm-platform/internal/wallclock"
	"github.com/AdityaChandel11/predictive-pdm-platform/sensor"
	"github.com/AdityaChandel11/predictive-pdm-platform/telemetry"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func useClock(t *testing.T) *wallclock.Simulated {
	clock := wallclock.NewSimulated(epoch)
	t.Cleanup(clock.Use())
	return clock
}

// trace records the order of calls across fakes.
type trace []string

type fakeConn struct {
	trace *trace
	err   error
}

func (c *fakeConn) EnsureConnected(context.Context) error {
	*c.trace = append(*c.trace, "ensure")
	return c.err
}

func (c *fakeConn) Dispatch(context.Context) {
	*c.trace = append(*c.trace, "dispatch")
}

type fakeSource struct {
	trace  *trace
	values []float64
	reads  int
	onRead func()
}

func (s *fakeSource) Read() sensor.RawSample {
	if s.trace != nil {
		*s.trace = append(*s.trace, "read")
	}
	v := s.values[s.reads%len(s.values)]
	s.reads++
	sample := sensor.RawSample{
		DeviceID:  "pump-7",
		Timestamp: wallclock.Instance.Now(),
		Value:     v,
	}
	if s.onRead != nil {
		s.onRead()
	}
	return sample
}

type tracingClassifier struct {
	trace *trace
	Classifier
}

func (c tracingClassifier) Classify(
	s sensor.RawSample,
) (inference.Verdict, error) {
	*c.trace = append(*c.trace, "classify")
	return c.Classifier.Classify(s)
}

type fakePublisher struct {
	trace *trace
	err   error
	sent  []telemetry.Message
}

func (*fakePublisher) DeviceID() string { return "pump-7" }

func (p *fakePublisher) Send(_ context.Context, msg telemetry.Message) error {
	if p.trace != nil {
		*p.trace = append(*p.trace, "send")
	}
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msg)
	return nil
}

type recordingObserver struct {
	cycles      int
	verdicts    []inference.Verdict
	inferErrors int
	publishes   []error
	arenaCap    int
}

func (o *recordingObserver) ObserveCycle(time.Duration) { o.cycles++ }

func (o *recordingObserver) ObserveVerdict(v inference.Verdict) {
	o.verdicts = append(o.verdicts, v)
}

func (o *recordingObserver) ObserveInferError(error) { o.inferErrors++ }

func (o *recordingObserver) ObservePublish(err error) {
	o.publishes = append(o.publishes, err)
}

func (o *recordingObserver) ObserveArena(_, capacity int) {
	o.arenaCap = capacity
}

func TestRunCycleOrder(t *testing.T) {
	useClock(t)
	var tr trace
	a := New(Dependencies{
		Connectivity: &fakeConn{trace: &tr},
		Source:       &fakeSource{trace: &tr, values: []float64{0.3}},
		Classifier:   tracingClassifier{&tr, inference.New()},
		Publisher:    &fakePublisher{trace: &tr},
	})

	a.RunCycle(context.Background())
	a.RunCycle(context.Background())
	cycle := []string{"ensure", "dispatch", "read", "classify", "send"}
	require.Equal(t, trace(append(cycle, cycle...)), tr)
}

func TestRunCycleHeuristicAnomaly(t *testing.T) {
	useClock(t)
	pub := &fakePublisher{}
	obs := &recordingObserver{}
	engine := inference.New()
	a := New(Dependencies{
		Connectivity: &fakeConn{trace: new(trace)},
		Source:       &fakeSource{values: []float64{3.0}},
		Classifier:   engine,
		Publisher:    pub,
		Workspace:    engine.Arena(),
		Observer:     obs,
	})

	res := a.RunCycle(context.Background())
	require.NoError(t, res.ConnectErr)
	require.NoError(t, res.InferErr)
	require.True(t, res.Published())
	require.True(t, res.Verdict.Anomaly)
	require.Equal(t, inference.OriginHeuristic, res.Verdict.Origin)

	require.Len(t, pub.sent, 1)
	rec, err := telemetry.Decode(pub.sent[0].Payload)
	require.NoError(t, err)
	require.Equal(t, "pump-7", rec.DeviceID)
	require.True(t, rec.Anomaly)
	require.Equal(t, 3.0, rec.Features.VibrationMax)
	require.Equal(t, epoch, rec.Timestamp.Time())

	require.Equal(t, 1, obs.cycles)
	require.Equal(t, []error{nil}, obs.publishes)
	require.Equal(t, inference.DefaultArenaSize, obs.arenaCap)
}

func TestRunCycleSensorFault(t *testing.T) {
	useClock(t)
	pub := &fakePublisher{}
	obs := &recordingObserver{}
	a := New(Dependencies{
		Connectivity: &fakeConn{trace: new(trace)},
		Source:       &fakeSource{values: []float64{math.NaN()}},
		Classifier:   inference.New(),
		Publisher:    pub,
		Observer:     obs,
	})

	res := a.RunCycle(context.Background())
	var ie *inference.InferError
	require.ErrorAs(t, res.InferErr, &ie)
	require.Equal(t, inference.InvalidInput, ie.Kind)
	require.Equal(t, inference.SensorFaultVerdict(), res.Verdict)
	require.True(t, res.Message.Record.SensorError)
	require.Len(t, pub.sent, 1)
	require.Equal(t, 1, obs.inferErrors)
}

func TestRunCycleContainsErrors(t *testing.T) {
	useClock(t)
	down := errors.New("link down")
	refused := errors.New("not connected")
	obs := &recordingObserver{}
	a := New(Dependencies{
		Connectivity: &fakeConn{trace: new(trace), err: down},
		Source:       &fakeSource{values: []float64{-1}},
		Classifier:   inference.New(),
		Publisher:    &fakePublisher{err: refused},
		Observer:     obs,
	})

	for i := range 3 {
		res := a.RunCycle(context.Background())
		require.Equal(t, uint64(i+1), res.Cycle)
		require.ErrorIs(t, res.ConnectErr, down)
		require.Error(t, res.InferErr)
		require.ErrorIs(t, res.PublishErr, refused)
		require.False(t, res.Published())
	}
	require.Equal(t, 3, obs.cycles)
}

func TestRunKeepsFixedPeriod(t *testing.T) {
	clock := useClock(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := &fakePublisher{}
	src := &fakeSource{values: []float64{0.2}}
	src.onRead = func() {
		if src.reads == 4 {
			cancel()
		}
	}
	a := New(Dependencies{
		Connectivity: &fakeConn{trace: new(trace)},
		Source:       src,
		Classifier:   inference.New(),
		Publisher:    pub,
	}, WithPeriod(2*time.Second))

	require.NoError(t, a.Run(ctx))
	require.Equal(t, 4, src.reads)
	require.Len(t, pub.sent, 4)
	for i, msg := range pub.sent {
		require.Equal(
			t,
			epoch.Add(time.Duration(i)*2*time.Second),
			msg.Record.Timestamp.Time(),
		)
	}
	require.True(t, clock.Now().After(epoch))
}

func TestRunSkipsMissedBoundaries(t *testing.T) {
	clock := useClock(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := &fakePublisher{}
	src := &fakeSource{values: []float64{0.2}}
	src.onRead = func() {
		// Every cycle takes five seconds.
		clock.Advance(5 * time.Second)
		if src.reads == 3 {
			cancel()
		}
	}
	a := New(Dependencies{
		Connectivity: &fakeConn{trace: new(trace)},
		Source:       src,
		Classifier:   inference.New(),
		Publisher:    pub,
	}, WithPeriod(2*time.Second))

	require.NoError(t, a.Run(ctx))
	require.Len(t, pub.sent, 3)
	for i, want := range []time.Duration{0, 6 * time.Second, 12 * time.Second} {
		require.Equal(t, epoch.Add(want), pub.sent[i].Record.Timestamp.Time())
	}
}
