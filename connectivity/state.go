// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package connectivity

// State is the position of the manager in the connection lifecycle. Any state
// returns to Disconnected on a detected failure.
type State byte

const (
	// Disconnected means there is no network path and no session.
	Disconnected State = iota

	// LinkConnecting means the network path to the broker is being opened.
	LinkConnecting

	// LinkUp means the network path is open but no session exists yet.
	LinkUp

	// SessionConnecting means CONNECT was sent and CONNACK is awaited.
	SessionConnecting

	// SessionReady means the session accepts publishes.
	SessionReady
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case LinkConnecting:
		return "link_connecting"
	case LinkUp:
		return "link_up"
	case SessionConnecting:
		return "session_connecting"
	case SessionReady:
		return "session_ready"
	default:
		return "unknown"
	}
}
