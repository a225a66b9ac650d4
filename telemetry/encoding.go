// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package telemetry

import (
	"encoding/json"
	"errors"
)

type (
	// Encoding is a translation between records and encoded data.
	Encoding interface {
		Serialize(Record) (*Data, error)
		Deserialize(*Data) (Record, error)
	}

	// Data represents encoded values along with their transmitted content
	// type.
	Data struct {
		Payload       []byte
		ContentType   string
		PayloadFormat byte
	}

	// JSON is the JSON encoding of records.
	JSON struct{}
)

// ErrUnsupportedContentType is returned if the content type is not supported
// by the encoding.
var ErrUnsupportedContentType = errors.New("unsupported content type")

// ContentType is the content type of encoded records.
const ContentType = "application/json"

// Serialize translates the record into JSON bytes.
func (JSON) Serialize(r Record) (*Data, error) {
	bytes, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return &Data{bytes, ContentType, 1}, nil
}

// Deserialize translates JSON bytes into a record.
func (JSON) Deserialize(data *Data) (Record, error) {
	var r Record
	switch data.ContentType {
	case "", ContentType:
		err := json.Unmarshal(data.Payload, &r)
		return r, err
	default:
		return r, ErrUnsupportedContentType
	}
}

// Decode parses a payload received from the telemetry topic.
func Decode(payload []byte) (Record, error) {
	return JSON{}.Deserialize(&Data{Payload: payload})
}
