package chanbus

import "context"

// Delivery is a single message received from the broker on a subscribed topic.
type Delivery struct {
	Topic   string
	Payload []byte
}

// Broker dials broker connections on demand. Implementations must be safe for
// concurrent use. The layer keeps at most one publish and one subscribe
// connection open at a time and dials replacements when it detects a dead one.
//
// See MemoryBroker for an in-process implementation suitable for testing and
// single-instance deployments, and the integration/broker packages for Redis
// and NATS backends.
type Broker interface {
	// DialPub establishes a connection used only for publishing.
	DialPub(ctx context.Context) (PubConn, error)

	// DialSub establishes a connection used only for subscriptions.
	DialSub(ctx context.Context) (SubConn, error)
}

// PubConn is a publish-only broker connection.
type PubConn interface {
	// Publish sends a payload to all current subscribers of the topic.
	// Delivery is at-most-once: if no connection is subscribed to the topic,
	// the payload is gone.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Closed reports whether the connection is no longer usable.
	Closed() bool

	// Close releases the connection. It is safe to call multiple times.
	Close() error
}

// SubConn is a subscribe-only broker connection.
//
// Implementations must preserve per-topic publish order on the Deliveries
// stream and must close the stream only after Closed reports true, so that
// consumers can tell a dead connection from a quiet one.
type SubConn interface {
	// Subscribe adds topics to the connection's subscription set.
	// Subscribing to an already subscribed topic is a no-op.
	Subscribe(ctx context.Context, topics ...string) error

	// Unsubscribe removes topics from the connection's subscription set.
	// Unsubscribing from an unknown topic is a no-op.
	Unsubscribe(ctx context.Context, topics ...string) error

	// Deliveries returns the stream of messages for all subscribed topics.
	// The channel is closed when the connection dies or is closed.
	Deliveries() <-chan Delivery

	// Closed reports whether the connection is no longer usable.
	Closed() bool

	// Close releases the connection and ends the Deliveries stream.
	// It is safe to call multiple times.
	Close() error
}
