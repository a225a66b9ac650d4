// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package connectivity

import (
	"encoding/json"

	"github.com/eclipse/paho.golang/paho"
)

// statusPayload is the body of the retained online/offline messages.
type statusPayload struct {
	DeviceID  string `json:"device_id"`
	Online    bool   `json:"online"`
	SessionID string `json:"session_id,omitempty"`
}

func buildConnectPacket(
	clientID string,
	username string,
	password []byte,
	keepAlive uint16,
	status *statusSettings,
) *paho.Connect {
	utf8 := byte(1)

	var will *paho.WillMessage
	var willProps *paho.WillProperties
	if status != nil {
		will = &paho.WillMessage{
			Retain:  true,
			QoS:     1,
			Topic:   status.topic,
			Payload: statusMessage(status.deviceID, false, ""),
		}
		willProps = &paho.WillProperties{
			PayloadFormat: &utf8,
			ContentType:   contentTypeJSON,
		}
	}

	return &paho.Connect{
		ClientID: clientID,
		// The agent publishes only; there is no session state to resume.
		CleanStart:     true,
		Username:       username,
		UsernameFlag:   username != "",
		Password:       password,
		PasswordFlag:   len(password) != 0,
		KeepAlive:      keepAlive,
		WillMessage:    will,
		WillProperties: willProps,
		Properties: &paho.ConnectProperties{
			RequestProblemInfo: true,
		},
	}
}

func buildDisconnectPacket(reasonCode byte) *paho.Disconnect {
	return &paho.Disconnect{ReasonCode: reasonCode}
}

func buildPublishPacket(
	topic string,
	payload []byte,
	retain bool,
) *paho.Publish {
	utf8 := byte(1)
	return &paho.Publish{
		QoS:     0,
		Retain:  retain,
		Topic:   topic,
		Payload: payload,
		Properties: &paho.PublishProperties{
			PayloadFormat: &utf8,
			ContentType:   contentTypeJSON,
		},
	}
}

func statusMessage(deviceID string, online bool, sessionID string) []byte {
	// Marshaling a struct of strings and a bool cannot fail.
	data, _ := json.Marshal(statusPayload{
		DeviceID:  deviceID,
		Online:    online,
		SessionID: sessionID,
	})
	return data
}
