// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package connectivity

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/eclipse/paho.golang/paho"
)

type (
	// ManagerOption configures a Manager.
	ManagerOption func(*Manager)

	// PasswordProvider returns the MQTT password for the next session. A nil
	// password omits the password flag.
	PasswordProvider func(context.Context) ([]byte, error)

	// Observer receives connection lifecycle events, typically to update
	// metrics. Calls are made with the manager lock held and must not block.
	Observer interface {
		ObserveConnect(stage Stage, err error)
		ObserveState(state State)
	}

	statusSettings struct {
		topic    string
		deviceID string
	}
)

// ******TESTING******

// WithPahoClientFactory replaces the constructor for the underlying Paho
// client. This is intended for injecting a stub session in tests.
func WithPahoClientFactory(
	factory func(*paho.ClientConfig) PahoClient,
) ManagerOption {
	return func(m *Manager) {
		m.factory = factory
	}
}

// ******CONNECTION******

// WithClientID sets the MQTT client identifier.
func WithClientID(clientID string) ManagerOption {
	return func(m *Manager) {
		m.clientID = clientID
	}
}

// WithUsername sets the MQTT username.
func WithUsername(username string) ManagerOption {
	return func(m *Manager) {
		m.username = username
	}
}

// WithPassword sets a fixed MQTT password.
func WithPassword(password []byte) ManagerOption {
	return func(m *Manager) {
		m.password = func(context.Context) ([]byte, error) {
			return password, nil
		}
	}
}

// WithPasswordFile reads the MQTT password from the file before every session
// so rotated credentials are picked up.
func WithPasswordFile(filename string) ManagerOption {
	return func(m *Manager) {
		m.password = func(context.Context) ([]byte, error) {
			return os.ReadFile(filename)
		}
	}
}

// WithKeepAlive sets the MQTT keep-alive interval. It is truncated to whole
// seconds.
func WithKeepAlive(keepAlive time.Duration) ManagerOption {
	return func(m *Manager) {
		m.keepAlive = keepAlive
	}
}

// WithConnectTimeout bounds each individual connection attempt.
func WithConnectTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.connectTimeout = timeout
	}
}

// WithAttempts sets the number of connection attempts made by a single call
// to EnsureConnected.
func WithAttempts(attempts uint64) ManagerOption {
	return func(m *Manager) {
		m.attempts = attempts
	}
}

// WithRetryInterval sets the wait before the second attempt within a call.
// Later waits double.
func WithRetryInterval(interval time.Duration) ManagerOption {
	return func(m *Manager) {
		m.retryInterval = interval
	}
}

// WithBackoff sets the bounds of the delay imposed between calls to
// EnsureConnected after consecutive failures.
func WithBackoff(minInterval, maxInterval time.Duration) ManagerOption {
	return func(m *Manager) {
		m.backoff.MinInterval = minInterval
		m.backoff.MaxInterval = maxInterval
	}
}

// WithInterface adds a link precondition: the named network interface must be
// up before the broker is dialed.
func WithInterface(name string) ManagerOption {
	return func(m *Manager) {
		m.linkCheck = InterfaceUp(name)
	}
}

// WithLinkCheck adds an arbitrary link precondition.
func WithLinkCheck(check func() error) ManagerOption {
	return func(m *Manager) {
		m.linkCheck = check
	}
}

// WithStatusTopic registers a retained offline will message on the topic and
// publishes a retained online message after each new session.
func WithStatusTopic(topic, deviceID string) ManagerOption {
	return func(m *Manager) {
		m.status = &statusSettings{topic: topic, deviceID: deviceID}
	}
}

// WithDispatchWait lets Dispatch wait up to the given duration for a session
// event before returning.
func WithDispatchWait(wait time.Duration) ManagerOption {
	return func(m *Manager) {
		m.dispatchWait = wait
	}
}

// ******OBSERVABILITY******

// WithLogger sets the logger for the manager.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.slog = l
	}
}

// WithObserver registers an observer of connection events.
func WithObserver(o Observer) ManagerOption {
	return func(m *Manager) {
		m.observer = o
	}
}
