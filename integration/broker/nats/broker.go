package nats

import (
	"context"
	"sync"
	"sync/atomic"

	natsio "github.com/nats-io/nats.go"

	"github.com/dmitrymomot/chanbus"
)

// deliveryBuffer absorbs bursts between the NATS client callback and the
// layer's dispatcher. The NATS client drops messages for channel-based
// subscriptions when the buffer is full, so it is sized generously.
const deliveryBuffer = 256

// Broker adapts a NATS connection into a chanbus.Broker using core NATS
// subjects. The connection is shared and stays owned by the caller; closing
// the broker's connections never closes it.
type Broker struct {
	nc *natsio.Conn
}

// NewBroker creates a NATS-backed broker on top of an established connection.
//
// Example:
//
//	nc, err := nats.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	layer, err := chanbus.New(nats.NewBroker(nc))
func NewBroker(nc *natsio.Conn) *Broker {
	return &Broker{nc: nc}
}

// DialPub implements the chanbus.Broker interface.
func (b *Broker) DialPub(ctx context.Context) (chanbus.PubConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !b.nc.IsConnected() {
		return nil, ErrNotConnected
	}
	return &pubConn{nc: b.nc}, nil
}

// DialSub implements the chanbus.Broker interface.
func (b *Broker) DialSub(ctx context.Context) (chanbus.SubConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !b.nc.IsConnected() {
		return nil, ErrNotConnected
	}

	conn := &subConn{
		nc:   b.nc,
		subs: make(map[string]*natsio.Subscription),
		msgs: make(chan *natsio.Msg, deliveryBuffer),
		out:  make(chan chanbus.Delivery),
		done: make(chan struct{}),
	}
	go conn.pump()
	return conn, nil
}

// pubConn publishes through the shared connection. The NATS client
// reconnects internally, so Closed reports an explicit Close or a connection
// that is gone for good.
type pubConn struct {
	nc     *natsio.Conn
	closed atomic.Bool
}

func (c *pubConn) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.Closed() {
		return chanbus.ErrConnClosed
	}
	return c.nc.Publish(topic, payload)
}

func (c *pubConn) Closed() bool {
	return c.closed.Load() || c.nc.IsClosed()
}

func (c *pubConn) Close() error {
	c.closed.Store(true)
	return nil
}

// subConn owns one subscription per subscribed subject, all feeding a shared
// message channel that the pump translates into the delivery stream.
type subConn struct {
	nc *natsio.Conn

	mu   sync.Mutex
	subs map[string]*natsio.Subscription

	msgs chan *natsio.Msg
	out  chan chanbus.Delivery
	done chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
}

func (c *subConn) Subscribe(ctx context.Context, topics ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.Closed() {
		return chanbus.ErrConnClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, topic := range topics {
		if _, ok := c.subs[topic]; ok {
			continue
		}
		sub, err := c.nc.ChanSubscribe(topic, c.msgs)
		if err != nil {
			return err
		}
		c.subs[topic] = sub
	}
	return nil
}

func (c *subConn) Unsubscribe(ctx context.Context, topics ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.Closed() {
		return chanbus.ErrConnClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, topic := range topics {
		sub, ok := c.subs[topic]
		if !ok {
			continue
		}
		delete(c.subs, topic)
		if err := sub.Unsubscribe(); err != nil {
			return err
		}
	}
	return nil
}

func (c *subConn) Deliveries() <-chan chanbus.Delivery {
	return c.out
}

func (c *subConn) Closed() bool {
	return c.closed.Load() || c.nc.IsClosed()
}

func (c *subConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		c.mu.Lock()
		for topic, sub := range c.subs {
			_ = sub.Unsubscribe()
			delete(c.subs, topic)
		}
		c.mu.Unlock()

		close(c.done)
	})
	return nil
}

// pump translates NATS messages into deliveries until the connection closes.
func (c *subConn) pump() {
	defer close(c.out)

	for {
		select {
		case msg := <-c.msgs:
			select {
			case c.out <- chanbus.Delivery{Topic: msg.Subject, Payload: msg.Data}:
			case <-c.done:
				return
			}
		case <-c.done:
			return
		}
	}
}
