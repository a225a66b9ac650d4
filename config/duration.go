// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package config

import (
	"strings"
	"time"

	"github.com/sosodev/duration"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that parses from Go syntax ("2s") or ISO 8601
// ("PT2S").
type Duration time.Duration

// ParseDuration parses either supported syntax.
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return Duration(d), nil
	}
	d, err := duration.Parse(s)
	if err != nil {
		return 0, &InvalidArgumentError{
			message: "could not parse duration " + s,
			wrapped: err,
		}
	}
	return Duration(d.ToTimeDuration()), nil
}

// UnmarshalYAML parses the duration from a YAML scalar.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseDuration(value.Value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalYAML renders the duration in Go syntax.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// String renders the duration in Go syntax.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
