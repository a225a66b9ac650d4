// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package connectivity

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Stage names the part of the lifecycle where a connection attempt failed.
type Stage string

const (
	StageLink    Stage = "link"
	StageSession Stage = "session"
)

var (
	// ErrNotConnected matches publish failures caused by the session not
	// being ready.
	ErrNotConnected = errors.New("session not connected")

	errConnectTimeout = errors.New("connection attempt timed out")
)

// ConnectError indicates that a call to EnsureConnected exhausted its
// attempts. It wraps the error from the last attempt.
type ConnectError struct {
	Stage   Stage
	wrapped error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s connection failed: %v", e.Stage, e.wrapped)
}

func (e *ConnectError) Unwrap() error {
	return e.wrapped
}

// Attrs returns additional error attributes for slog.
func (e *ConnectError) Attrs() []slog.Attr {
	return []slog.Attr{slog.String("stage", string(e.Stage))}
}

// BackoffError is returned by EnsureConnected when previous failures have
// deferred the next attempt. No attempt was made.
type BackoffError struct {
	Until    time.Time
	Failures uint64
}

func (e *BackoffError) Error() string {
	return fmt.Sprintf(
		"reconnect deferred until %s after %d failed attempts",
		e.Until.Format(time.RFC3339Nano),
		e.Failures,
	)
}

// Attrs returns additional error attributes for slog.
func (e *BackoffError) Attrs() []slog.Attr {
	return []slog.Attr{
		slog.Time("until", e.Until),
		slog.Uint64("failures", e.Failures),
	}
}

// ConnackError indicates that the broker refused the session with a CONNACK
// error reason code.
type ConnackError struct {
	ReasonCode byte
}

func (e *ConnackError) Error() string {
	return fmt.Sprintf(
		"received CONNACK packet with error reason code %x",
		e.ReasonCode,
	)
}

// DisconnectError indicates that the broker ended the session with a
// DISCONNECT packet.
type DisconnectError struct {
	ReasonCode byte
}

func (e *DisconnectError) Error() string {
	return fmt.Sprintf(
		"received DISCONNECT packet with reason code %x",
		e.ReasonCode,
	)
}

// LinkError indicates an issue opening the network path to the broker. It may
// wrap an underlying error using Go standard error wrapping.
type LinkError struct {
	wrapped error
	message string
}

func (e *LinkError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *LinkError) Unwrap() error {
	return e.wrapped
}

// PublishErrorKind classifies publish failures.
type PublishErrorKind byte

const (
	// NotConnected means the session was not ready; nothing was sent and the
	// connection state is unchanged.
	NotConnected PublishErrorKind = iota

	// Failed means the session rejected or failed to send the message; the
	// session has been torn down.
	Failed
)

// PublishError is returned when a message was not accepted for transmission.
type PublishError struct {
	Kind    PublishErrorKind
	Topic   string
	wrapped error
}

func (e *PublishError) Error() string {
	if e.Kind == NotConnected {
		return fmt.Sprintf("publish to %s: %v", e.Topic, ErrNotConnected)
	}
	return fmt.Sprintf("publish to %s failed: %v", e.Topic, e.wrapped)
}

func (e *PublishError) Unwrap() error {
	return e.wrapped
}

// Is matches ErrNotConnected for NotConnected failures.
func (e *PublishError) Is(target error) bool {
	return target == ErrNotConnected && e.Kind == NotConnected
}

// Attrs returns additional error attributes for slog.
func (e *PublishError) Attrs() []slog.Attr {
	return []slog.Attr{slog.String("topic", e.Topic)}
}
