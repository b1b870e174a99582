package chanbus

import (
	"context"
	"sync"
	"sync/atomic"
)

// MemoryBrokerStats provides observability metrics for monitoring and debugging.
type MemoryBrokerStats struct {
	PubConns     int   // Current number of live publish connections
	SubConns     int   // Current number of live subscribe connections
	Publishes    int64 // Total publish calls accepted
	Unsubscribes int64 // Total topic unsubscriptions requested
}

// MemoryBroker is an in-process Broker for testing and single-instance
// deployments. It implements the same at-most-once, per-topic-ordered
// delivery contract as the networked brokers, and it can sever all live
// connections on demand to exercise reconnection handling.
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[*memorySubConn]struct{}
	pubs   map[*memoryPubConn]struct{}
	closed bool

	publishes    atomic.Int64
	unsubscribes atomic.Int64
}

// NewMemoryBroker creates an in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subs: make(map[*memorySubConn]struct{}),
		pubs: make(map[*memoryPubConn]struct{}),
	}
}

// DialPub implements the Broker interface.
func (b *MemoryBroker) DialPub(ctx context.Context) (PubConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}

	conn := &memoryPubConn{broker: b}
	b.pubs[conn] = struct{}{}
	return conn, nil
}

// DialSub implements the Broker interface.
func (b *MemoryBroker) DialSub(ctx context.Context) (SubConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}

	conn := &memorySubConn{
		broker: b,
		topics: make(map[string]struct{}),
		queue:  newFifo[Delivery](),
		out:    make(chan Delivery),
		done:   make(chan struct{}),
	}
	b.subs[conn] = struct{}{}
	go conn.pump()
	return conn, nil
}

// DropConnections severs every live connection without closing the broker,
// simulating a broker restart. Existing connections report Closed and end
// their delivery streams; new dials succeed immediately.
func (b *MemoryBroker) DropConnections() {
	b.mu.Lock()
	subs := make([]*memorySubConn, 0, len(b.subs))
	for conn := range b.subs {
		subs = append(subs, conn)
	}
	pubs := make([]*memoryPubConn, 0, len(b.pubs))
	for conn := range b.pubs {
		pubs = append(pubs, conn)
	}
	b.mu.Unlock()

	for _, conn := range subs {
		_ = conn.Close()
	}
	for _, conn := range pubs {
		_ = conn.Close()
	}
}

// Close severs every connection and rejects further dials.
// It is safe to call multiple times.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.DropConnections()
	return nil
}

// TopicSubscribers reports how many live subscribe connections hold the
// topic. Useful in tests to assert that unsubscriptions actually happened.
func (b *MemoryBroker) TopicSubscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for conn := range b.subs {
		if conn.hasTopic(topic) {
			n++
		}
	}
	return n
}

// Stats returns current broker statistics for observability and monitoring.
func (b *MemoryBroker) Stats() MemoryBrokerStats {
	b.mu.RLock()
	pubs, subs := len(b.pubs), len(b.subs)
	b.mu.RUnlock()

	return MemoryBrokerStats{
		PubConns:     pubs,
		SubConns:     subs,
		Publishes:    b.publishes.Load(),
		Unsubscribes: b.unsubscribes.Load(),
	}
}

func (b *MemoryBroker) publish(topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBrokerClosed
	}

	for conn := range b.subs {
		if conn.hasTopic(topic) {
			conn.queue.push(Delivery{Topic: topic, Payload: payload})
		}
	}
	b.publishes.Add(1)
	return nil
}

func (b *MemoryBroker) removeSub(conn *memorySubConn) {
	b.mu.Lock()
	delete(b.subs, conn)
	b.mu.Unlock()
}

func (b *MemoryBroker) removePub(conn *memoryPubConn) {
	b.mu.Lock()
	delete(b.pubs, conn)
	b.mu.Unlock()
}

type memoryPubConn struct {
	broker *MemoryBroker
	closed atomic.Bool
}

func (c *memoryPubConn) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closed.Load() {
		return ErrConnClosed
	}
	return c.broker.publish(topic, payload)
}

func (c *memoryPubConn) Closed() bool {
	return c.closed.Load()
}

func (c *memoryPubConn) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.broker.removePub(c)
	}
	return nil
}

// memorySubConn buffers deliveries in an unbounded queue and feeds them to
// the consumer through a pump goroutine, so publishers never block on a slow
// consumer and per-topic order is preserved.
type memorySubConn struct {
	broker *MemoryBroker

	mu     sync.Mutex
	topics map[string]struct{}

	queue *fifo[Delivery]
	out   chan Delivery
	done  chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
}

func (c *memorySubConn) Subscribe(ctx context.Context, topics ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closed.Load() {
		return ErrConnClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		c.topics[topic] = struct{}{}
	}
	return nil
}

func (c *memorySubConn) Unsubscribe(ctx context.Context, topics ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closed.Load() {
		return ErrConnClosed
	}

	c.mu.Lock()
	for _, topic := range topics {
		delete(c.topics, topic)
	}
	c.mu.Unlock()

	c.broker.unsubscribes.Add(int64(len(topics)))
	return nil
}

func (c *memorySubConn) Deliveries() <-chan Delivery {
	return c.out
}

func (c *memorySubConn) Closed() bool {
	return c.closed.Load()
}

func (c *memorySubConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		c.broker.removeSub(c)
	})
	return nil
}

func (c *memorySubConn) hasTopic(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.topics[topic]
	return ok
}

// pump moves deliveries from the unbounded queue to the consumer channel.
// Closing the conn ends the stream even when the consumer stopped reading.
func (c *memorySubConn) pump() {
	defer close(c.out)

	for {
		d, ok := c.queue.pop()
		if !ok {
			select {
			case <-c.queue.wait():
				continue
			case <-c.done:
				return
			}
		}

		select {
		case c.out <- d:
		case <-c.done:
			return
		}
	}
}
