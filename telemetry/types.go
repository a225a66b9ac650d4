// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package telemetry

import (
	"time"

	"github.com/relvacode/iso8601"
)

type (
	// Record is the wire form of one cycle's sample and verdict.
	Record struct {
		DeviceID    string    `json:"device_id"`
		Timestamp   Timestamp `json:"ts"`
		Features    Features  `json:"features"`
		Anomaly     bool      `json:"anomaly"`
		Confidence  *float64  `json:"confidence,omitempty"`
		Origin      string    `json:"origin,omitempty"`
		SensorError bool      `json:"sensor_error,omitempty"`
	}

	// Features holds the derived signal values of a record.
	Features struct {
		VibrationMax float64 `json:"vibration_max"`
	}

	// Timestamp is a time that encodes as RFC 3339 UTC with millisecond
	// precision and decodes from any ISO 8601 date-time.
	Timestamp time.Time
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// String returns the timestamp in its wire format.
func (ts Timestamp) String() string {
	return time.Time(ts).UTC().Format(timestampLayout)
}

// MarshalText marshals the timestamp to its wire format.
func (ts Timestamp) MarshalText() ([]byte, error) {
	return []byte(ts.String()), nil
}

// UnmarshalText unmarshals the timestamp from an ISO 8601 string. Values
// without a zone are taken as UTC.
func (ts *Timestamp) UnmarshalText(b []byte) error {
	parsed, err := iso8601.Parse(b)
	if err != nil {
		return err
	}
	*ts = Timestamp(parsed.UTC())
	return nil
}

// Time returns the timestamp as a time.Time.
func (ts Timestamp) Time() time.Time {
	return time.Time(ts)
}
