package chanbus

import (
	"log/slog"
	"time"
)

// Option configures a Layer.
type Option func(*Layer)

// WithPrefix sets the topic prefix shared by all channels and groups of the
// layer. Layers with different prefixes never see each other's messages even
// on the same broker.
func WithPrefix(prefix string) Option {
	return func(l *Layer) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

// WithCodec replaces the default MessagePack codec.
func WithCodec(codec Codec) Option {
	return func(l *Layer) {
		if codec != nil {
			l.codec = codec
		}
	}
}

// WithLogger configures structured logging for the layer.
// Use slog.New(slog.NewTextHandler(io.Discard, nil)) to disable logging.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Layer) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithKeepaliveInterval sets how often the subscribe connection is probed.
// Default is 1 second.
func WithKeepaliveInterval(interval time.Duration) Option {
	return func(l *Layer) {
		if interval > 0 {
			l.keepaliveInterval = interval
		}
	}
}

// WithConnectTimeout bounds a single connection establishment attempt.
// Default is 30 seconds.
func WithConnectTimeout(timeout time.Duration) Option {
	return func(l *Layer) {
		if timeout > 0 {
			l.connectTimeout = timeout
		}
	}
}

// WithFaultBufferSize sets the capacity of the Faults stream. Default is 64.
func WithFaultBufferSize(size int) Option {
	return func(l *Layer) {
		if size > 0 {
			l.faultBufferSize = size
		}
	}
}
