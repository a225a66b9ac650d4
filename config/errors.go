// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package config

import "fmt"

// InvalidArgumentError indicates that a configuration value is missing or
// malformed. It may wrap an underlying parse error.
type InvalidArgumentError struct {
	message string
	wrapped error
}

func (e *InvalidArgumentError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *InvalidArgumentError) Unwrap() error {
	return e.wrapped
}

func invalid(format string, args ...any) *InvalidArgumentError {
	return &InvalidArgumentError{message: fmt.Sprintf(format, args...)}
}
