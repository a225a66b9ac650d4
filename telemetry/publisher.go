// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AdityaChandel11/predictive-pdm-platform/internal/log"
)

type (
	// Connection accepts messages for transmission. It is satisfied by
	// *connectivity.Manager.
	Connection interface {
		Publish(ctx context.Context, topic string, payload []byte) error
	}

	// Publisher sends telemetry messages for one device on its fixed topic.
	Publisher struct {
		deviceID string
		topic    string
		conn     Connection
		log      log.Logger
	}

	// PublisherOption configures a Publisher.
	PublisherOption func(*Publisher)

	// SizeError is returned by Send when a payload exceeds MaxMessageSize
	// even after truncation. Nothing was sent.
	SizeError struct {
		Size int
	}
)

func (e *SizeError) Error() string {
	return fmt.Sprintf(
		"telemetry message is %d bytes, limit is %d",
		e.Size,
		MaxMessageSize,
	)
}

// Topic returns the telemetry topic of the device.
func Topic(deviceID string) string {
	return "sensors/" + deviceID + "/telemetry"
}

// StatusTopic returns the retained online/offline status topic of the device.
func StatusTopic(deviceID string) string {
	return "sensors/" + deviceID + "/status"
}

// WithLogger sets the logger for the publisher.
func WithLogger(l *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.log = log.Wrap(l)
	}
}

// NewPublisher creates a publisher for the device.
func NewPublisher(
	deviceID string,
	conn Connection,
	opts ...PublisherOption,
) *Publisher {
	p := &Publisher{
		deviceID: deviceID,
		topic:    Topic(deviceID),
		conn:     conn,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DeviceID returns the device the publisher sends for.
func (p *Publisher) DeviceID() string {
	return p.deviceID
}

// Topic returns the topic messages are sent on.
func (p *Publisher) Topic() string {
	return p.topic
}

// Send hands the message to the connection. Errors from the connection are
// returned unchanged.
func (p *Publisher) Send(ctx context.Context, msg Message) error {
	if len(msg.Payload) > MaxMessageSize {
		return &SizeError{Size: len(msg.Payload)}
	}
	if msg.Truncated {
		p.log.Debug(ctx, "telemetry truncated",
			slog.Int("size", len(msg.Payload)),
		)
	}
	return p.conn.Publish(ctx, p.topic, msg.Payload)
}
