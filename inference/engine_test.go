// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package inference

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/AdityaChandel11/predictive-pdm-platform/sensor"
	"github.com/stretchr/testify/require"
)

func sample(v float64) sensor.RawSample {
	return sensor.RawSample{
		DeviceID:  "esp32_node_01",
		Timestamp: time.Date(2025, 12, 26, 0, 0, 0, 0, time.UTC),
		Value:     v,
	}
}

func TestHeuristicWithoutModel(t *testing.T) {
	e := New(WithThreshold(2.5))
	require.False(t, e.Loaded())

	v, err := e.Classify(sample(3.0))
	require.NoError(t, err)
	require.True(t, v.Anomaly)
	require.Equal(t, 1.0, v.Confidence)
	require.Equal(t, OriginHeuristic, v.Origin)

	for _, x := range []float64{0, 0.1, 1.2, 2.4999, 2.5, 2.5001, 4, 5} {
		first, err := e.Classify(sample(x))
		require.NoError(t, err)
		again, err := e.Classify(sample(x))
		require.NoError(t, err)

		require.Equal(t, x > 2.5, first.Anomaly, "value %v", x)
		require.Equal(t, first, again)
	}
}

func TestClassifyRejectsInvalidInput(t *testing.T) {
	e := New()
	for _, x := range []float64{
		math.NaN(),
		math.Inf(1),
		math.Inf(-1),
		-0.1,
		DefaultMaxMagnitude + 0.01,
	} {
		_, err := e.Classify(sample(x))
		var ie *InferError
		require.True(t, errors.As(err, &ie), "value %v", x)
		require.Equal(t, InvalidInput, ie.Kind)
	}
}

func TestClassifyWithModel(t *testing.T) {
	e, err := Load(mustMarshal(t, stepModel()))
	require.NoError(t, err)
	require.True(t, e.Loaded())

	high, err := e.Classify(sample(3.0))
	require.NoError(t, err)
	require.True(t, high.Anomaly)
	require.Equal(t, OriginModel, high.Origin)
	require.InDelta(t, 1/(1+math.Exp(-5)), high.Confidence, 1e-6)

	low, err := e.Classify(sample(1.0))
	require.NoError(t, err)
	require.False(t, low.Anomaly)
	require.Less(t, low.Confidence, 0.01)
}

func TestLoadFailuresKeepHeuristic(t *testing.T) {
	e, err := Load(nil, WithThreshold(1))
	var le *LoadError
	require.True(t, errors.As(err, &le))
	require.Equal(t, InvalidModel, le.Kind)
	require.False(t, e.Loaded())

	v, err := e.Classify(sample(1.5))
	require.NoError(t, err)
	require.True(t, v.Anomaly)
	require.Equal(t, OriginHeuristic, v.Origin)
}

func TestLoadArenaTooSmall(t *testing.T) {
	// 300 floats per buffer, two buffers: 2400 bytes.
	e, err := Load(mustMarshal(t, wideModel(300)))
	var le *LoadError
	require.True(t, errors.As(err, &le))
	require.Equal(t, ArenaTooSmall, le.Kind)
	require.Equal(t, 2400, le.Required)
	require.Equal(t, DefaultArenaSize, le.Capacity)
	require.False(t, e.Loaded())
	require.Zero(t, e.Arena().Peak())

	e, err = Load(mustMarshal(t, wideModel(300)), WithArenaSize(4096))
	require.NoError(t, err)
	require.True(t, e.Loaded())
}

func TestLoadOnce(t *testing.T) {
	e, err := Load(mustMarshal(t, stepModel()))
	require.NoError(t, err)

	err = e.Load(mustMarshal(t, wideModel(4)))
	var le *LoadError
	require.True(t, errors.As(err, &le))
	require.Equal(t, AlreadyLoaded, le.Kind)
}

func TestClassifyPeakMemoryIsConstant(t *testing.T) {
	e, err := Load(mustMarshal(t, wideModel(64)))
	require.NoError(t, err)

	_, err = e.Classify(sample(0.3))
	require.NoError(t, err)
	peak := e.Arena().Peak()
	require.Equal(t, 2*64*4, peak)

	for i := range 10_000 {
		_, err := e.Classify(sample(float64(i%50) / 10))
		require.NoError(t, err)
	}
	require.Equal(t, peak, e.Arena().Peak())
	require.Equal(t, DefaultArenaSize, e.Arena().Cap())

	s := sample(2.7)
	allocs := testing.AllocsPerRun(1000, func() {
		_, _ = e.Classify(s)
	})
	require.Zero(t, allocs)
}

func TestSensorFaultVerdict(t *testing.T) {
	v := SensorFaultVerdict()
	require.False(t, v.Anomaly)
	require.Equal(t, OriginSensorFault, v.Origin)
	require.Equal(t, "sensor_fault", v.Origin.String())
}
