// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package sensor

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/AdityaChandel11/predictive-pdm-platform/internal/wallclock"
)

// Defaults for a 12-bit converter with a 5 V reference.
const (
	DefaultADCReference = 5.0
	DefaultADCMaxRaw    = 4095
)

type (
	// ADC samples a converter exposed as a file holding the latest raw
	// integer reading, such as a Linux IIO in_voltageN_raw attribute.
	ADC struct {
		path     string
		deviceID string
		scale    float64

		// Reused read buffer; raw readings are a handful of digits.
		buf [32]byte
	}

	// ADCOption configures an ADC.
	ADCOption func(*adcOptions)

	adcOptions struct {
		reference float64
		maxRaw    int
	}
)

// WithReference sets the full-scale voltage and raw count of the converter.
func WithReference(volts float64, maxRaw int) ADCOption {
	return func(o *adcOptions) {
		o.reference = volts
		o.maxRaw = maxRaw
	}
}

// OpenADC validates that the converter is readable. An error here means the
// sampling hardware is unavailable.
func OpenADC(path, deviceID string, opts ...ADCOption) (*ADC, error) {
	o := adcOptions{reference: DefaultADCReference, maxRaw: DefaultADCMaxRaw}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxRaw <= 0 || o.reference <= 0 {
		return nil, fmt.Errorf(
			"invalid ADC reference %vV/%d",
			o.reference,
			o.maxRaw,
		)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ADC: %w", err)
	}
	_ = f.Close()

	return &ADC{
		path:     path,
		deviceID: deviceID,
		scale:    o.reference / float64(o.maxRaw),
	}, nil
}

// Read returns the latest reading in volts. Any failure to read or parse the
// converter yields NaN.
func (a *ADC) Read() RawSample {
	return RawSample{
		DeviceID:  a.deviceID,
		Timestamp: wallclock.Instance.Now().UTC(),
		Value:     a.volts(),
	}
}

func (a *ADC) volts() float64 {
	f, err := os.Open(a.path)
	if err != nil {
		return math.NaN()
	}
	defer f.Close()

	n, err := f.Read(a.buf[:])
	if err != nil || n == 0 {
		return math.NaN()
	}

	raw, err := strconv.ParseInt(string(bytes.TrimSpace(a.buf[:n])), 10, 64)
	if err != nil {
		return math.NaN()
	}
	return float64(raw) * a.scale
}
