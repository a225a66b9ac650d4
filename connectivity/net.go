// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package connectivity

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/packets"
	"github.com/gorilla/websocket"
)

// ConnectionProvider is a function that opens the network path to the broker.
// The returned net.Conn must be thread-safe (i.e., concurrent Write calls must
// not interleave).
type ConnectionProvider func(context.Context) (net.Conn, error)

// TCPConnection is a ConnectionProvider that connects to the broker over TCP.
func TCPConnection(hostname string, port int) ConnectionProvider {
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", hostPort(hostname, port))
		if err != nil {
			return nil, &LinkError{
				message: "error opening TCP connection",
				wrapped: err,
			}
		}
		return packets.NewThreadSafeConn(conn), nil
	}
}

// TLSConnection is a ConnectionProvider that connects to the broker with TLS
// over TCP. The TLS configuration is rebuilt for every connection so rotated
// certificates are picked up.
func TLSConnection(
	hostname string,
	port int,
	opts ...TLSOption,
) ConnectionProvider {
	return func(ctx context.Context) (net.Conn, error) {
		config, err := buildTLSConfig(ctx, hostname, opts)
		if err != nil {
			return nil, &LinkError{
				message: "error getting TLS configuration",
				wrapped: err,
			}
		}

		d := tls.Dialer{Config: config}
		conn, err := d.DialContext(ctx, "tcp", hostPort(hostname, port))
		if err != nil {
			return nil, &LinkError{
				message: "error opening TLS connection",
				wrapped: err,
			}
		}
		return packets.NewThreadSafeConn(conn), nil
	}
}

// WebSocketConnection is a ConnectionProvider that connects to the broker over
// a WebSocket using the "mqtt" subprotocol. TLS options apply to wss:// URLs.
func WebSocketConnection(url string, opts ...TLSOption) ConnectionProvider {
	return func(ctx context.Context) (net.Conn, error) {
		config, err := buildTLSConfig(ctx, "", opts)
		if err != nil {
			return nil, &LinkError{
				message: "error getting TLS configuration",
				wrapped: err,
			}
		}

		d := websocket.Dialer{
			Subprotocols:    []string{"mqtt"},
			TLSClientConfig: config,
		}
		ws, res, err := d.DialContext(ctx, url, nil)
		if res != nil && res.Body != nil {
			_ = res.Body.Close()
		}
		if err != nil {
			return nil, &LinkError{
				message: "error opening WebSocket connection",
				wrapped: err,
			}
		}
		return packets.NewThreadSafeConn(&wsConn{Conn: ws}), nil
	}
}

// InterfaceUp returns a link precondition that fails unless the named network
// interface exists and is administratively up.
func InterfaceUp(name string) func() error {
	return func() error {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return &LinkError{
				message: fmt.Sprintf("network interface %q unavailable", name),
				wrapped: err,
			}
		}
		if iface.Flags&net.FlagUp == 0 {
			return &LinkError{
				message: fmt.Sprintf("network interface %q is down", name),
			}
		}
		return nil
	}
}

func hostPort(hostname string, port int) string {
	return net.JoinHostPort(hostname, fmt.Sprint(port))
}

// wsConn adapts a message-oriented WebSocket to the byte stream paho expects.
// Binary frames are concatenated on read; every Write is sent as one frame.
type wsConn struct {
	*websocket.Conn
	reader io.Reader
	mu     sync.Mutex
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			typ, r, err := c.NextReader()
			if err != nil {
				return 0, err
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}
