// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package connectivity

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/AdityaChandel11/predictive-pdm-platform/internal/log"
	"github.com/AdityaChandel11/predictive-pdm-platform/internal/wallclock"
	"github.com/AdityaChandel11/predictive-pdm-platform/retry"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
)

type (
	// Manager owns the broker connection. It is driven by the agent loop:
	// EnsureConnected and Dispatch are called once per cycle, and Publish only
	// succeeds while the session is ready. Session failures reported by Paho
	// are queued and applied on the next Dispatch, so state only changes inside
	// a Manager call.
	Manager struct {
		mu sync.Mutex

		provider ConnectionProvider
		factory  func(*paho.ClientConfig) PahoClient

		clientID       string
		username       string
		password       PasswordProvider
		keepAlive      time.Duration
		connectTimeout time.Duration
		attempts       uint64
		retryInterval  time.Duration
		dispatchWait   time.Duration
		linkCheck      func() error
		status         *statusSettings

		state     State
		client    PahoClient
		conn      net.Conn
		sessionID string

		// Every attempt gets a sequence number; events tagged with anything
		// other than the live session's number are stale.
		attemptSeq uint64
		liveSeq    uint64
		events     chan sessionEvent

		backoff     retry.ExponentialBackoff
		failures    uint64
		nextAttempt time.Time

		slog     *slog.Logger
		log      logger
		observer Observer
	}

	// PahoClient is the subset of *paho.Client used by the manager.
	PahoClient interface {
		Connect(ctx context.Context, packet *paho.Connect) (*paho.Connack, error)
		Disconnect(packet *paho.Disconnect) error
		Publish(
			ctx context.Context,
			packet *paho.Publish,
		) (*paho.PublishResponse, error)
	}

	sessionEvent struct {
		seq uint64
		err error
	}
)

// NewManager creates a disconnected manager that opens links with the given
// provider. No network activity happens until EnsureConnected.
func NewManager(
	provider ConnectionProvider,
	opts ...ManagerOption,
) *Manager {
	m := &Manager{
		provider: provider,
		factory: func(cfg *paho.ClientConfig) PahoClient {
			return paho.NewClient(*cfg)
		},
		keepAlive:      defaultKeepAlive,
		connectTimeout: defaultConnectTimeout,
		attempts:       defaultAttempts,
		retryInterval:  defaultRetryInterval,
		events:         make(chan sessionEvent, eventQueueSize),
		backoff: retry.ExponentialBackoff{
			MinInterval: defaultBackoffMin,
			MaxInterval: defaultBackoffMax,
			NoJitter:    true,
		},
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.clientID == "" {
		m.clientID = "agent-" + uuid.NewString()[:8]
	}
	if m.attempts == 0 {
		m.attempts = 1
	}
	m.log = logger{log.Wrap(m.slog)}
	return m
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SessionID returns the identifier of the current session, or the empty string
// if no session is ready.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// ClientID returns the MQTT client identifier in use.
func (m *Manager) ClientID() string {
	return m.clientID
}

// EnsureConnected brings the session to SessionReady if it is not already.
// It makes a bounded number of attempts, each bounded by the connect timeout,
// and never blocks indefinitely. After a failed call, further calls return a
// *BackoffError without touching the network until the backoff delay has
// elapsed; the delay grows with consecutive failures up to the configured
// maximum.
func (m *Manager) EnsureConnected(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == SessionReady {
		return nil
	}

	if wallclock.Instance.Now().Before(m.nextAttempt) {
		return &BackoffError{Until: m.nextAttempt, Failures: m.failures}
	}

	policy := retry.ExponentialBackoff{
		MaxAttempts: m.attempts,
		MinInterval: m.retryInterval,
		MaxInterval: m.retryInterval << 2,
		Logger:      m.slog,
	}
	err := policy.Start(ctx, "connect", m.attempt)
	if err != nil {
		m.failures++
		delay := m.backoff.Interval(m.failures)
		m.nextAttempt = wallclock.Instance.Now().Add(delay)
		m.log.Warning(ctx, "broker unreachable", err,
			slog.Uint64("failures", m.failures),
			slog.Time("next_attempt", m.nextAttempt),
		)
		return err
	}

	m.failures = 0
	m.nextAttempt = time.Time{}
	return nil
}

// attempt runs one pass through the lifecycle. It must be called with the lock
// held.
func (m *Manager) attempt(ctx context.Context) (bool, error) {
	ctx, cancel := wallclock.Instance.WithTimeoutCause(
		ctx,
		m.connectTimeout,
		errConnectTimeout,
	)
	defer cancel()

	m.attemptSeq++
	seq := m.attemptSeq

	m.setState(ctx, LinkConnecting)
	if m.linkCheck != nil {
		if err := m.linkCheck(); err != nil {
			return true, m.failAttempt(ctx, StageLink, err, nil)
		}
	}

	conn, err := m.provider(ctx)
	if err != nil {
		return true, m.failAttempt(ctx, StageLink, err, nil)
	}
	m.setState(ctx, LinkUp)

	var password []byte
	if m.password != nil {
		if password, err = m.password(ctx); err != nil {
			return true, m.failAttempt(ctx, StageSession, err, conn)
		}
	}

	m.setState(ctx, SessionConnecting)
	client := m.factory(&paho.ClientConfig{
		ClientID: m.clientID,
		Conn:     conn,
		OnClientError: func(err error) {
			m.push(seq, err)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			m.push(seq, &DisconnectError{ReasonCode: d.ReasonCode})
		},
	})

	packet := buildConnectPacket(
		m.clientID,
		m.username,
		password,
		uint16(m.keepAlive.Seconds()),
		m.status,
	)
	m.log.Packet(ctx, "connect", packet)

	connack, err := client.Connect(ctx, packet)
	if connack != nil {
		m.log.Packet(ctx, "connack", connack)
		if connack.ReasonCode >= connackUnspecifiedError {
			ce := &ConnackError{ReasonCode: connack.ReasonCode}
			return !isFatalConnackReasonCode(connack.ReasonCode),
				m.failAttempt(ctx, StageSession, ce, conn)
		}
	}
	if err != nil {
		return true, m.failAttempt(ctx, StageSession, err, conn)
	}

	m.client = client
	m.conn = conn
	m.liveSeq = seq
	m.sessionID = uuid.NewString()
	m.setState(ctx, SessionReady)

	// A session that cannot carry its own online status is not usable.
	if m.status != nil {
		if err := m.publishStatus(ctx, true); err != nil {
			m.teardown(ctx, err)
			return true, m.failAttempt(ctx, StageSession, err, nil)
		}
	}

	m.observeConnect(StageSession, nil)
	m.log.Info(ctx, "session established",
		slog.String("client_id", m.clientID),
		slog.String("session_id", m.sessionID),
	)
	return false, nil
}

func (m *Manager) failAttempt(
	ctx context.Context,
	stage Stage,
	err error,
	conn net.Conn,
) error {
	if conn != nil {
		_ = conn.Close()
	}
	m.setState(ctx, Disconnected)
	m.observeConnect(stage, err)
	return &ConnectError{Stage: stage, wrapped: err}
}

// Publish sends one message at QoS 0. When the session is not ready it returns
// a NotConnected *PublishError and changes nothing. A send failure tears the
// session down.
func (m *Manager) Publish(
	ctx context.Context,
	topic string,
	payload []byte,
) error {
	return m.publish(ctx, topic, payload, false)
}

func (m *Manager) publish(
	ctx context.Context,
	topic string,
	payload []byte,
	retain bool,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != SessionReady {
		return &PublishError{Kind: NotConnected, Topic: topic}
	}
	return m.send(ctx, topic, payload, retain)
}

// send must be called with the lock held while the session is ready.
func (m *Manager) send(
	ctx context.Context,
	topic string,
	payload []byte,
	retain bool,
) error {
	packet := buildPublishPacket(topic, payload, retain)
	m.log.Packet(ctx, "publish", packet)

	if _, err := m.client.Publish(ctx, packet); err != nil {
		// A cancelled caller says nothing about the session.
		if ctx.Err() == nil {
			m.teardown(ctx, err)
		}
		return &PublishError{Kind: Failed, Topic: topic, wrapped: err}
	}
	return nil
}

func (m *Manager) publishStatus(ctx context.Context, online bool) error {
	payload := statusMessage(m.status.deviceID, online, m.sessionID)
	err := m.send(ctx, m.status.topic, payload, true)
	if err != nil {
		m.log.Warning(ctx, "status publish failed", err)
	}
	return err
}

// Dispatch applies session events reported since the last call. A lost
// session moves the manager to Disconnected. It waits at most the configured
// dispatch wait for the first event.
func (m *Manager) Dispatch(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dispatchWait > 0 && m.state == SessionReady {
		timer := wallclock.Instance.NewTimer(m.dispatchWait)
		select {
		case ev := <-m.events:
			m.apply(ctx, ev)
		case <-timer.C():
		case <-ctx.Done():
		}
		timer.Stop()
	}

	for {
		select {
		case ev := <-m.events:
			m.apply(ctx, ev)
		default:
			return
		}
	}
}

func (m *Manager) apply(ctx context.Context, ev sessionEvent) {
	if ev.seq != m.liveSeq || m.state != SessionReady {
		return
	}
	m.log.Warning(ctx, "session lost", ev.err,
		slog.String("session_id", m.sessionID),
	)
	m.teardown(ctx, ev.err)
}

// push is called from Paho goroutines. It never blocks; one queued event is
// enough to tear a session down.
func (m *Manager) push(seq uint64, err error) {
	select {
	case m.events <- sessionEvent{seq: seq, err: err}:
	default:
	}
}

// teardown drops the current session without a DISCONNECT. It must be called
// with the lock held.
func (m *Manager) teardown(ctx context.Context, err error) {
	if m.conn != nil {
		_ = m.conn.Close()
	}
	m.client = nil
	m.conn = nil
	m.sessionID = ""
	m.liveSeq = 0
	m.setState(ctx, Disconnected)
	if err != nil {
		m.log.Debug(ctx, "session torn down", slog.String("error", err.Error()))
	}
}

// Close ends the session gracefully, publishing the offline status first when
// a status topic is configured. It is best effort and safe to call in any
// state.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != SessionReady {
		return nil
	}

	ctx, cancel := wallclock.Instance.WithTimeoutCause(
		context.Background(),
		m.connectTimeout,
		errConnectTimeout,
	)
	defer cancel()

	if m.status != nil {
		payload := statusMessage(m.status.deviceID, false, "")
		_ = m.send(ctx, m.status.topic, payload, true)
	}

	var err error
	if m.client != nil {
		packet := buildDisconnectPacket(disconnectNormal)
		m.log.Packet(ctx, "disconnect", packet)
		err = m.client.Disconnect(packet)
	}
	m.teardown(ctx, nil)
	return err
}

func (m *Manager) setState(ctx context.Context, to State) {
	if m.state == to {
		return
	}
	m.log.Transition(ctx, m.state, to)
	m.state = to
	if m.observer != nil {
		m.observer.ObserveState(to)
	}
}

func (m *Manager) observeConnect(stage Stage, err error) {
	if m.observer != nil {
		m.observer.ObserveConnect(stage, err)
	}
}
