package chanbus

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// NewChannel creates a fresh process-local channel and subscribes the layer to
// its topic. The returned name is globally unique and routable: any process
// sharing the broker and prefix can send to it. Pass an empty prefix to use
// DefaultChannelPrefix.
func (l *Layer) NewChannel(ctx context.Context, prefix string) (string, error) {
	if l.isClosed() {
		return "", ErrLayerClosed
	}
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}

	conn, err := l.subConn(ctx)
	if err != nil {
		return "", err
	}

	id := uuid.New()
	name := l.prefix + prefix + hex.EncodeToString(id[:])

	l.regMu.Lock()
	l.channels[name] = newFifo[[]byte]()
	l.regMu.Unlock()

	if err := conn.Subscribe(ctx, name); err != nil {
		// Keep the table and the broker subscription set in lockstep: a
		// channel nobody can deliver to must not exist.
		l.regMu.Lock()
		delete(l.channels, name)
		l.regMu.Unlock()
		return "", fmt.Errorf("subscribe channel: %w", err)
	}

	return name, nil
}

// Send publishes a message to a single channel. The channel may live in any
// process attached to the same broker and prefix; delivery is at-most-once.
func (l *Layer) Send(ctx context.Context, channel string, msg Message) error {
	if channel == "" {
		return ErrEmptyChannelName
	}
	return l.publish(ctx, channel, msg)
}

// Receive returns the next message for the channel, blocking until one
// arrives. At most one concurrent receiver gets each message; competing
// receivers are served in no particular order.
//
// Cancelling the context abandons the channel entirely: its registration and
// buffered messages are discarded and the topic is unsubscribed best-effort.
// This is the only way a channel is cleaned up, mirroring a consumer that
// stops listening and walks away.
func (l *Layer) Receive(ctx context.Context, channel string) (Message, error) {
	if channel == "" {
		return nil, ErrEmptyChannelName
	}
	if l.isClosed() {
		return nil, ErrLayerClosed
	}

	l.regMu.RLock()
	mailbox, ok := l.channels[channel]
	l.regMu.RUnlock()
	if !ok {
		return nil, ErrUnknownChannel
	}

	for {
		if payload, ok := mailbox.pop(); ok {
			msg, err := l.codec.Unmarshal(payload)
			if err != nil {
				return nil, fmt.Errorf("decode message: %w", err)
			}
			return msg, nil
		}

		select {
		case <-mailbox.wait():
		case <-ctx.Done():
			l.abandonChannel(channel)
			return nil, ctx.Err()
		case <-l.closed:
			return nil, ErrLayerClosed
		}
	}
}

func (l *Layer) publish(ctx context.Context, topic string, msg Message) error {
	if l.isClosed() {
		return ErrLayerClosed
	}

	payload, err := l.codec.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	conn, err := l.pubConn(ctx)
	if err != nil {
		return err
	}
	if err := conn.Publish(ctx, topic, payload); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	l.published.Add(1)
	return nil
}

// abandonChannel removes a channel whose receiver cancelled. When several
// receivers were blocked on the same channel, only the first one to get here
// performs the cleanup; the rest find the entry already gone.
func (l *Layer) abandonChannel(name string) {
	l.regMu.Lock()
	_, present := l.channels[name]
	if present {
		delete(l.channels, name)
	}
	l.regMu.Unlock()

	if !present || l.isClosed() {
		return
	}

	// The receiver's context is already cancelled, so the unsubscribe runs on
	// its own short deadline. Failure is survivable: the dispatcher drops
	// deliveries for unregistered topics.
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	conn, err := l.subConn(ctx)
	if err != nil {
		l.fault(FaultUnsubscribe, name, err)
		return
	}
	if err := conn.Unsubscribe(ctx, name); err != nil {
		l.fault(FaultUnsubscribe, name, err)
	}
}
