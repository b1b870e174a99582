package chat

import (
	"encoding/json"

	"github.com/dmitrymomot/chanbus"
)

// EventChatSend is the event type of every message this package produces.
// Receivers ignore envelopes with other types.
const EventChatSend = "chat_send"

// roomGroupPrefix namespaces room names within the layer's group space so
// that arbitrary room names cannot collide with other group users.
const roomGroupPrefix = "channels_group_"

// Envelope field keys as they appear in the encoded message.
const (
	keyType      = "type"
	keyTextData  = "text_data"
	keyBytesData = "bytes_data"
	keySender    = "sender_channel_name"
)

// Envelope is the agreed shape of a chat group message. Either TextData or
// BytesData carries the body; Sender identifies the originating channel so
// receivers can suppress their own messages.
type Envelope struct {
	Type      string
	TextData  string
	BytesData []byte
	Sender    string
}

// Message converts the envelope into a layer message.
func (e Envelope) Message() chanbus.Message {
	return chanbus.Message{
		keyType:      e.Type,
		keyTextData:  e.TextData,
		keyBytesData: e.BytesData,
		keySender:    e.Sender,
	}
}

// FromMessage decodes a delivered layer message into an Envelope. It returns
// ErrInvalidEnvelope when the type field is missing; the body and sender
// fields are optional and default to their zero values.
func FromMessage(msg chanbus.Message) (Envelope, error) {
	typ, ok := msg[keyType].(string)
	if !ok {
		return Envelope{}, ErrInvalidEnvelope
	}

	env := Envelope{Type: typ}
	if v, ok := msg[keyTextData].(string); ok {
		env.TextData = v
	}
	if v, ok := msg[keyBytesData].([]byte); ok {
		env.BytesData = v
	}
	if v, ok := msg[keySender].(string); ok {
		env.Sender = v
	}
	return env, nil
}

// RoomGroup maps a room name to the group name sessions join for it.
func RoomGroup(room string) string {
	return roomGroupPrefix + room
}

// ConnectNotice builds the envelope a session broadcasts when it joins a
// room. The body is a JSON object {"connect": <channel>} sent as text.
func ConnectNotice(channel string) Envelope {
	body, _ := json.Marshal(map[string]string{"connect": channel})
	return Envelope{
		Type:     EventChatSend,
		TextData: string(body),
		Sender:   channel,
	}
}

// DisconnectNotice builds the envelope a session broadcasts when it leaves a
// room. The body is a JSON object {"disconnect": <channel>} sent as text.
func DisconnectNotice(channel string) Envelope {
	body, _ := json.Marshal(map[string]string{"disconnect": channel})
	return Envelope{
		Type:     EventChatSend,
		TextData: string(body),
		Sender:   channel,
	}
}
