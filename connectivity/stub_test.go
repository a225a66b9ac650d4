// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package connectivity

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/eclipse/paho.golang/paho"
)

var errLinkDown = errors.New("link down")

type stubPaho struct {
	mu sync.Mutex

	connack    *paho.Connack
	connectErr error
	publishErr error

	configs     []*paho.ClientConfig
	connects    []*paho.Connect
	published   []*paho.Publish
	disconnects []*paho.Disconnect
}

func (s *stubPaho) factory(cfg *paho.ClientConfig) PahoClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs = append(s.configs, cfg)
	return s
}

func (s *stubPaho) Connect(
	_ context.Context,
	packet *paho.Connect,
) (*paho.Connack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects = append(s.connects, packet)
	if s.connack != nil {
		return s.connack, s.connectErr
	}
	if s.connectErr != nil {
		return nil, s.connectErr
	}
	return &paho.Connack{ReasonCode: connackSuccess}, nil
}

func (s *stubPaho) Disconnect(packet *paho.Disconnect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects = append(s.disconnects, packet)
	return nil
}

func (s *stubPaho) Publish(
	_ context.Context,
	packet *paho.Publish,
) (*paho.PublishResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.publishErr != nil {
		return nil, s.publishErr
	}
	s.published = append(s.published, packet)
	return nil, nil
}

func (s *stubPaho) lastConfig() *paho.ClientConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configs[len(s.configs)-1]
}

// pipeProvider hands out in-memory connections and counts dials. While down
// is set, dials fail.
type pipeProvider struct {
	t     *testing.T
	dials int
	down  bool
	conns []net.Conn
}

func (p *pipeProvider) provide(context.Context) (net.Conn, error) {
	p.dials++
	if p.down {
		return nil, errLinkDown
	}
	local, remote := net.Pipe()
	p.t.Cleanup(func() { _ = remote.Close() })
	p.conns = append(p.conns, local)
	return local, nil
}

type stateRecorder struct {
	states   []State
	connects []error
}

func (r *stateRecorder) ObserveState(s State) {
	r.states = append(r.states, s)
}

func (r *stateRecorder) ObserveConnect(_ Stage, err error) {
	r.connects = append(r.connects, err)
}
