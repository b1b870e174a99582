package redis

import (
	"context"
	"sync"
	"sync/atomic"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/chanbus"
)

// Broker adapts a connected Redis client into a chanbus.Broker using Redis
// publish/subscribe. The client is shared and stays owned by the caller;
// closing the broker's connections never closes the client.
type Broker struct {
	client *goredis.Client
}

// NewBroker creates a Redis-backed broker on top of a connected client.
//
// Example:
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	layer, err := chanbus.New(redis.NewBroker(client))
func NewBroker(client *goredis.Client) *Broker {
	return &Broker{client: client}
}

// DialPub implements the chanbus.Broker interface. A ping verifies the pool
// is reachable before the connection is handed out.
func (b *Broker) DialPub(ctx context.Context) (chanbus.PubConn, error) {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &pubConn{client: b.client}, nil
}

// DialSub implements the chanbus.Broker interface. Each call creates a
// dedicated PubSub subscription with its own network connection.
func (b *Broker) DialSub(ctx context.Context) (chanbus.SubConn, error) {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	conn := &subConn{
		pubsub: b.client.Subscribe(ctx),
		out:    make(chan chanbus.Delivery),
		done:   make(chan struct{}),
	}
	go conn.pump()
	return conn, nil
}

// pubConn publishes through the shared pooled client. The pool reconnects
// internally, so Closed reports true only after an explicit Close.
type pubConn struct {
	client *goredis.Client
	closed atomic.Bool
}

func (c *pubConn) Publish(ctx context.Context, topic string, payload []byte) error {
	if c.closed.Load() {
		return chanbus.ErrConnClosed
	}
	return c.client.Publish(ctx, topic, payload).Err()
}

func (c *pubConn) Closed() bool {
	return c.closed.Load()
}

func (c *pubConn) Close() error {
	c.closed.Store(true)
	return nil
}

// subConn wraps one PubSub subscription and pumps its messages into the
// delivery stream the layer consumes.
type subConn struct {
	pubsub *goredis.PubSub
	out    chan chanbus.Delivery
	done   chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
}

func (c *subConn) Subscribe(ctx context.Context, topics ...string) error {
	if c.closed.Load() {
		return chanbus.ErrConnClosed
	}
	if len(topics) == 0 {
		return nil
	}
	return c.pubsub.Subscribe(ctx, topics...)
}

func (c *subConn) Unsubscribe(ctx context.Context, topics ...string) error {
	if c.closed.Load() {
		return chanbus.ErrConnClosed
	}
	if len(topics) == 0 {
		return nil
	}
	return c.pubsub.Unsubscribe(ctx, topics...)
}

func (c *subConn) Deliveries() <-chan chanbus.Delivery {
	return c.out
}

func (c *subConn) Closed() bool {
	return c.closed.Load()
}

func (c *subConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		_ = c.pubsub.Close()
	})
	return nil
}

// pump translates PubSub messages into deliveries until the subscription
// closes. The closed flag flips before the stream ends, as the layer's
// connection contract requires.
func (c *subConn) pump() {
	defer close(c.out)

	messages := c.pubsub.Channel()
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				c.closed.Store(true)
				return
			}
			select {
			case c.out <- chanbus.Delivery{Topic: msg.Channel, Payload: []byte(msg.Payload)}:
			case <-c.done:
				return
			}
		case <-c.done:
			return
		}
	}
}
