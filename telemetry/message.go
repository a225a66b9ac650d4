// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package telemetry

import (
	"math"
	"time"

	"github.com/AdityaChandel11/predictive-pdm-platform/inference"
	"github.com/AdityaChandel11/predictive-pdm-platform/sensor"
)

// MaxMessageSize bounds the encoded size of a telemetry message in bytes.
const MaxMessageSize = 256

// Message is one cycle's record together with its encoding. It is built fresh
// per cycle and not retained after the publish attempt.
type Message struct {
	Record    Record
	Payload   []byte
	Truncated bool
}

// BuildMessage formats a sample and its verdict for the wire. It is pure and
// deterministic. Optional fields are dropped, origin first and confidence
// second, when the encoding would exceed MaxMessageSize; the device id,
// timestamp, vibration value, and anomaly and sensor error flags are always
// kept.
func BuildMessage(
	deviceID string,
	sample sensor.RawSample,
	verdict inference.Verdict,
) Message {
	r := Record{
		DeviceID:    deviceID,
		Timestamp:   Timestamp(sample.Timestamp.Truncate(time.Millisecond)),
		Features:    Features{VibrationMax: sample.Value},
		Anomaly:     verdict.Anomaly,
		Origin:      verdict.Origin.String(),
		SensorError: verdict.Origin == inference.OriginSensorFault,
	}
	if !finite(sample.Value) {
		r.Features.VibrationMax = 0
		r.SensorError = true
	}
	if finite(verdict.Confidence) {
		c := math.Round(verdict.Confidence*1000) / 1000
		r.Confidence = &c
	}

	msg := Message{Record: r, Payload: encode(r)}
	for _, drop := range []func(*Record){
		func(r *Record) { r.Origin = "" },
		func(r *Record) { r.Confidence = nil },
	} {
		if len(msg.Payload) <= MaxMessageSize {
			break
		}
		drop(&msg.Record)
		msg.Payload = encode(msg.Record)
		msg.Truncated = true
	}
	return msg
}

// encode cannot fail: every field is a string, bool, or finite number.
func encode(r Record) []byte {
	data, _ := JSON{}.Serialize(r)
	return data.Payload
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
