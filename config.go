package chanbus

import "time"

// Config holds the channel layer configuration.
// Designed for environment-based configuration using popular env parsing libraries.
type Config struct {
	// Prefix namespaces every broker topic the layer touches. Two layers
	// sharing a broker and a prefix form one logical messaging domain.
	Prefix string `env:"CHANBUS_PREFIX" envDefault:"chanbus."`

	// KeepaliveInterval is how often the subscribe connection is probed and,
	// if found dead, replaced.
	KeepaliveInterval time.Duration `env:"CHANBUS_KEEPALIVE_INTERVAL" envDefault:"1s"`

	// ConnectTimeout bounds a single connection establishment, including the
	// subscription replay that follows a reconnect.
	ConnectTimeout time.Duration `env:"CHANBUS_CONNECT_TIMEOUT" envDefault:"30s"`

	// FaultBufferSize is the capacity of the Faults stream.
	FaultBufferSize int `env:"CHANBUS_FAULT_BUFFER_SIZE" envDefault:"64"`
}

// DefaultConfig returns sensible defaults for production use.
func DefaultConfig() Config {
	return Config{
		Prefix:            DefaultPrefix,
		KeepaliveInterval: time.Second,
		ConnectTimeout:    30 * time.Second,
		FaultBufferSize:   64,
	}
}
