// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package connectivity

import "time"

const (
	defaultKeepAlive      = 60 * time.Second
	defaultConnectTimeout = 5 * time.Second
	defaultAttempts       = 3
	defaultRetryInterval  = 250 * time.Millisecond
	defaultBackoffMin     = time.Second
	defaultBackoffMax     = 60 * time.Second

	// Session events beyond this are dropped; one is enough to tear down.
	eventQueueSize = 8

	contentTypeJSON = "application/json"
)

// MQTT v5 reason codes used by the session. Codes at or above 0x80 are
// failures.
const (
	connackSuccess                  byte = 0x00
	connackUnspecifiedError         byte = 0x80
	connackMalformedPacket          byte = 0x81
	connackProtocolError            byte = 0x82
	connackUnsupportedProtocol      byte = 0x84
	connackClientIdentifierNotValid byte = 0x85
	connackBadUserNameOrPassword    byte = 0x86
	connackNotAuthorized            byte = 0x87
	connackServerUnavailable        byte = 0x88
	connackBanned                   byte = 0x8A
	connackBadAuthenticationMethod  byte = 0x8C

	disconnectNormal             byte = 0x00
	disconnectServerShuttingDown byte = 0x8B
)

// isFatalConnackReasonCode reports whether the broker rejected the client
// itself rather than being temporarily unable to serve it. Such a rejection
// ends the current call's attempts; the next call still tries again after its
// backoff, since the agent has no terminal connection failure.
func isFatalConnackReasonCode(reasonCode byte) bool {
	switch reasonCode {
	case connackMalformedPacket,
		connackProtocolError,
		connackUnsupportedProtocol,
		connackClientIdentifierNotValid,
		connackBadUserNameOrPassword,
		connackNotAuthorized,
		connackBanned,
		connackBadAuthenticationMethod:
		return true
	}
	return false
}
