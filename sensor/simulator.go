// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package sensor

import (
	"math/rand"

	"github.com/AdityaChandel11/predictive-pdm-platform/internal/wallclock"
)

// Simulator produces synthetic readings: mostly quiet vibration with
// occasional spikes.
type Simulator struct {
	deviceID string
	rand     *rand.Rand

	// SpikeChance is the probability of a spike reading.
	SpikeChance float64

	// Normal and Spike are the [low, high) ranges readings are drawn from.
	Normal [2]float64
	Spike  [2]float64
}

// NewSimulator creates a simulator with the given seed.
func NewSimulator(deviceID string, seed int64) *Simulator {
	return &Simulator{
		deviceID: deviceID,
		// #nosec G404
		rand:        rand.New(rand.NewSource(seed)),
		SpikeChance: 0.1,
		Normal:      [2]float64{0.1, 0.5},
		Spike:       [2]float64{2.5, 5.0},
	}
}

// Read draws the next reading.
func (s *Simulator) Read() RawSample {
	r := s.Normal
	if s.rand.Float64() < s.SpikeChance {
		r = s.Spike
	}
	return RawSample{
		DeviceID:  s.deviceID,
		Timestamp: wallclock.Instance.Now().UTC(),
		Value:     r[0] + s.rand.Float64()*(r[1]-r[0]),
	}
}
