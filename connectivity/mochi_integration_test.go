// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package connectivity

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/require"
)

const (
	mochiTCPPort  int    = 18831
	mochiUserName string = "agent"
	mochiPassword string = "pineapple"
)

func startMochi(t *testing.T) {
	ledger := &auth.Ledger{
		// Auth disallows all by default
		Auth: auth.AuthRules{
			{
				Username: auth.RString(mochiUserName),
				Password: auth.RString(mochiPassword),
				Allow:    true,
			},
		},
	}

	server := mochi.New(nil)
	require.NoError(t, server.AddHook(
		new(auth.Hook),
		&auth.Options{Ledger: ledger},
	))

	tcp := listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		ID:      "tcp",
		Address: fmt.Sprintf("localhost:%d", mochiTCPPort),
	})
	require.NoError(t, server.AddListener(tcp))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { _ = server.Close() })
}

// subscribe connects a plain Paho client and forwards every received
// message on the returned channel.
func subscribe(t *testing.T, topic string) <-chan *paho.Publish {
	ctx := context.Background()
	conn, err := net.Dial("tcp", fmt.Sprintf("localhost:%d", mochiTCPPort))
	require.NoError(t, err)

	received := make(chan *paho.Publish, 8)
	client := paho.NewClient(paho.ClientConfig{
		ClientID: "observer",
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				received <- pr.Packet
				return true, nil
			},
		},
	})

	_, err = client.Connect(ctx, &paho.Connect{
		ClientID:     "observer",
		CleanStart:   true,
		KeepAlive:    30,
		Username:     mochiUserName,
		UsernameFlag: true,
		Password:     []byte(mochiPassword),
		PasswordFlag: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(&paho.Disconnect{}) })

	_, err = client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: 0}},
	})
	require.NoError(t, err)
	return received
}

func TestWithMochi(t *testing.T) {
	startMochi(t)
	ctx := context.Background()

	t.Run("PublishReachesSubscriber", func(t *testing.T) {
		received := subscribe(t, "sensors/+/data")

		m := NewManager(
			TCPConnection("localhost", mochiTCPPort),
			WithClientID("pump-7"),
			WithUsername(mochiUserName),
			WithPassword([]byte(mochiPassword)),
			WithStatusTopic("sensors/pump-7/status", "pump-7"),
		)
		t.Cleanup(func() { _ = m.Close() })

		require.NoError(t, m.EnsureConnected(ctx))
		require.Equal(t, SessionReady, m.State())

		payload := []byte(`{"device_id":"pump-7","anomaly":true}`)
		require.NoError(t, m.Publish(ctx, "sensors/pump-7/data", payload))

		select {
		case pub := <-received:
			require.Equal(t, "sensors/pump-7/data", pub.Topic)
			require.Equal(t, payload, pub.Payload)
		case <-time.After(5 * time.Second):
			t.Fatal("message not delivered")
		}
	})

	t.Run("BadCredentialsRejected", func(t *testing.T) {
		m := NewManager(
			TCPConnection("localhost", mochiTCPPort),
			WithClientID("intruder"),
			WithUsername(mochiUserName),
			WithPassword([]byte("wrong")),
			WithAttempts(1),
		)

		err := m.EnsureConnected(ctx)
		var ce *ConnectError
		require.ErrorAs(t, err, &ce)
		require.Equal(t, StageSession, ce.Stage)
		require.Equal(t, Disconnected, m.State())
	})

	t.Run("NoBrokerIsLinkFailure", func(t *testing.T) {
		m := NewManager(
			TCPConnection("localhost", 1),
			WithAttempts(1),
			WithConnectTimeout(time.Second),
		)

		err := m.EnsureConnected(ctx)
		var ce *ConnectError
		require.ErrorAs(t, err, &ce)
		require.Equal(t, StageLink, ce.Stage)
	})
}
