package chanbus

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Message is the unit of communication between channels. Messages are free-form
// maps; by convention they carry a "type" key identifying the message kind.
type Message map[string]any

// Codec serializes messages for the broker wire format.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(msg Message) ([]byte, error)
	Unmarshal(data []byte) (Message, error)
}

// MsgpackCodec encodes messages with MessagePack. This is the default codec:
// it is compact, schema-free, and keeps text and binary payload fields
// distinct through a round trip.
type MsgpackCodec struct{}

// Marshal encodes the message as a MessagePack map.
func (MsgpackCodec) Marshal(msg Message) ([]byte, error) {
	data, err := msgpack.Marshal(map[string]any(msg))
	if err != nil {
		return nil, fmt.Errorf("msgpack encode: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a MessagePack map back into a Message.
func (MsgpackCodec) Unmarshal(data []byte) (Message, error) {
	var m map[string]any
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("msgpack decode: %w", err)
	}
	return Message(m), nil
}
