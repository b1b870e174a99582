package chat

import "errors"

var (
	// ErrLayerNil is returned when a session is created without a layer.
	ErrLayerNil = errors.New("layer is nil")

	// ErrConnNil is returned when a session is created without a websocket
	// connection.
	ErrConnNil = errors.New("websocket connection is nil")

	// ErrEmptyRoom is returned when a session is created with an empty room
	// name.
	ErrEmptyRoom = errors.New("room name is empty")

	// ErrInvalidEnvelope is returned when a delivered message does not carry
	// the envelope fields this package expects.
	ErrInvalidEnvelope = errors.New("invalid chat envelope")

	// ErrSequenceGap is returned by SequenceTracker when a sender's counter
	// skips a value, which means a message was dropped in transit.
	ErrSequenceGap = errors.New("sequence gap detected")
)
