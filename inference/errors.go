// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package inference

import (
	"fmt"
	"log/slog"
)

// LoadErrorKind classifies model load failures.
type LoadErrorKind byte

const (
	// InvalidModel indicates absent, truncated, or malformed model bytes.
	InvalidModel LoadErrorKind = iota

	// ArenaTooSmall indicates the model needs more workspace than reserved.
	ArenaTooSmall

	// AlreadyLoaded indicates a model is already loaded; models are not
	// reloaded for the life of the engine.
	AlreadyLoaded
)

func (k LoadErrorKind) String() string {
	switch k {
	case InvalidModel:
		return "invalid model"
	case ArenaTooSmall:
		return "arena too small"
	case AlreadyLoaded:
		return "already loaded"
	default:
		return "unknown"
	}
}

// LoadError is returned when a model cannot be loaded. The engine stays in
// (or keeps) its previous state.
type LoadError struct {
	Kind LoadErrorKind

	// Required and Capacity are set for ArenaTooSmall, in bytes.
	Required int
	Capacity int

	message string
	wrapped error
}

func (e *LoadError) Error() string {
	msg := "model load failed: " + e.Kind.String()
	if e.message != "" {
		msg += ": " + e.message
	}
	if e.Kind == ArenaTooSmall {
		msg += fmt.Sprintf(
			" (requires %d bytes, arena has %d)",
			e.Required,
			e.Capacity,
		)
	}
	if e.wrapped != nil {
		msg += fmt.Sprintf(": %v", e.wrapped)
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.wrapped
}

// Attrs returns additional error attributes for slog.
func (e *LoadError) Attrs() []slog.Attr {
	attrs := []slog.Attr{slog.String("kind", e.Kind.String())}
	if e.Kind == ArenaTooSmall {
		attrs = append(attrs,
			slog.Int("required_bytes", e.Required),
			slog.Int("arena_bytes", e.Capacity),
		)
	}
	return attrs
}

func invalidModel(format string, args ...any) *LoadError {
	return &LoadError{Kind: InvalidModel, message: fmt.Sprintf(format, args...)}
}

// InferErrorKind classifies classification failures.
type InferErrorKind byte

const (
	// InvalidInput indicates a non-finite or out-of-range sample value.
	InvalidInput InferErrorKind = iota

	// WorkspaceExhausted indicates the forward pass would not fit in the
	// arena; the engine refuses rather than overrun.
	WorkspaceExhausted

	// NonFiniteOutput indicates the model produced NaN.
	NonFiniteOutput
)

func (k InferErrorKind) String() string {
	switch k {
	case InvalidInput:
		return "invalid input"
	case WorkspaceExhausted:
		return "workspace exhausted"
	case NonFiniteOutput:
		return "non-finite output"
	default:
		return "unknown"
	}
}

// InferError is returned when a sample cannot be classified. It is never
// fatal; callers substitute SensorFaultVerdict.
type InferError struct {
	Kind  InferErrorKind
	Value float64
}

func (e *InferError) Error() string {
	return fmt.Sprintf("inference failed: %s (value %v)", e.Kind, e.Value)
}

// Attrs returns additional error attributes for slog.
func (e *InferError) Attrs() []slog.Attr {
	return []slog.Attr{
		slog.String("kind", e.Kind.String()),
		slog.Float64("value", e.Value),
	}
}
