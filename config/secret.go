// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package config

import "log/slog"

const redacted = "[redacted]"

// Secret is a configuration value that must never be printed.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// LogValue keeps the value out of structured logs.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(s.String())
}
