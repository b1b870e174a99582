package chanbus

import (
	"context"
	"fmt"
	"log/slog"
)

// ConnState describes the subscribe-side connection lifecycle. The publish
// side has no subscriptions to restore, so it is a plain dial and not tracked.
type ConnState int32

const (
	// StateDisconnected means no subscribe connection is established.
	StateDisconnected ConnState = iota

	// StateConnecting means a dial to the broker is in flight.
	StateConnecting

	// StateSubscribing means the connection is up and the layer is replaying
	// its channel and group subscriptions onto it.
	StateSubscribing

	// StateReady means the dispatcher is consuming deliveries.
	StateReady
)

// String implements fmt.Stringer.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribing:
		return "subscribing"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// pubConn returns the publish connection, dialing one if none is alive.
// Concurrent callers share a single dial.
func (l *Layer) pubConn(ctx context.Context) (PubConn, error) {
	if l.isClosed() {
		return nil, ErrLayerClosed
	}

	l.connMu.Lock()
	if l.pub != nil && !l.pub.Closed() {
		pub := l.pub
		l.connMu.Unlock()
		return pub, nil
	}
	l.connMu.Unlock()

	ch := l.sf.DoChan("pub", func() (any, error) {
		return l.establishPub()
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closed:
		return nil, ErrLayerClosed
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(PubConn), nil
	}
}

// subConn returns the ready subscribe connection, establishing one if needed:
// dial, replay every registered subscription, then hand the delivery stream to
// a fresh dispatcher. Concurrent callers share a single establishment and all
// wait for it to become ready.
func (l *Layer) subConn(ctx context.Context) (SubConn, error) {
	if l.isClosed() {
		return nil, ErrLayerClosed
	}

	l.keepaliveOnce.Do(l.startKeepalive)

	l.connMu.Lock()
	if l.sub != nil && !l.sub.Closed() {
		sub := l.sub
		l.connMu.Unlock()
		return sub, nil
	}
	l.connMu.Unlock()

	ch := l.sf.DoChan("sub", func() (any, error) {
		return l.establishSub()
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closed:
		return nil, ErrLayerClosed
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(SubConn), nil
	}
}

func (l *Layer) establishPub() (PubConn, error) {
	l.connMu.Lock()
	if l.pub != nil && !l.pub.Closed() {
		pub := l.pub
		l.connMu.Unlock()
		return pub, nil
	}
	old := l.pub
	l.pub = nil
	l.connMu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	dialCtx, cancel := context.WithTimeout(l.lifeCtx, l.connectTimeout)
	defer cancel()

	pub, err := l.broker.DialPub(dialCtx)
	if err != nil {
		return nil, fmt.Errorf("dial publish connection: %w", err)
	}

	l.connMu.Lock()
	if l.isClosed() {
		l.connMu.Unlock()
		_ = pub.Close()
		return nil, ErrLayerClosed
	}
	l.pub = pub
	l.connMu.Unlock()

	l.logger.Debug("publish connection established")
	return pub, nil
}

func (l *Layer) establishSub() (SubConn, error) {
	l.connMu.Lock()
	if l.sub != nil && !l.sub.Closed() {
		sub := l.sub
		l.connMu.Unlock()
		return sub, nil
	}
	oldCancel, oldDone, oldSub := l.dispatchCancel, l.dispatchDone, l.sub
	l.dispatchCancel, l.dispatchDone = nil, nil
	l.sub = nil
	l.state.Store(int32(StateConnecting))
	l.connMu.Unlock()

	// Retire the previous generation before its replacement exists so that
	// two dispatchers never route concurrently.
	if oldCancel != nil {
		oldCancel()
	}
	if oldDone != nil {
		<-oldDone
	}
	if oldSub != nil {
		_ = oldSub.Close()
	}

	dialCtx, cancel := context.WithTimeout(l.lifeCtx, l.connectTimeout)
	defer cancel()

	sub, err := l.broker.DialSub(dialCtx)
	if err != nil {
		l.state.Store(int32(StateDisconnected))
		return nil, fmt.Errorf("dial subscribe connection: %w", err)
	}

	l.state.Store(int32(StateSubscribing))
	l.resubscribe(dialCtx, sub)

	dispatchCtx, dispatchCancel := context.WithCancel(l.lifeCtx)
	done := make(chan struct{})

	l.connMu.Lock()
	if l.isClosed() {
		l.connMu.Unlock()
		dispatchCancel()
		_ = sub.Close()
		return nil, ErrLayerClosed
	}
	l.sub = sub
	l.dispatchCancel, l.dispatchDone = dispatchCancel, done
	l.subGen++
	if l.subGen > 1 {
		l.reconnects.Add(1)
	}
	gen := l.subGen
	l.state.Store(int32(StateReady))
	l.connMu.Unlock()

	go l.dispatch(dispatchCtx, sub, done)

	l.logger.Info("subscribe connection ready",
		slog.Int64("generation", gen))
	return sub, nil
}

// resubscribe replays every registered channel and group topic onto a fresh
// connection, one topic at a time so a refused topic never takes the rest
// down with it. Failures are recoverable faults: the topic stays in the
// table and the next reconnect retries it. Messages published between the
// old connection dying and the replay completing are lost; delivery is at
// most once.
func (l *Layer) resubscribe(ctx context.Context, conn SubConn) {
	l.regMu.RLock()
	topics := make([]string, 0, len(l.channels)+len(l.groups))
	for name := range l.channels {
		topics = append(topics, name)
	}
	for topic := range l.groups {
		topics = append(topics, topic)
	}
	l.regMu.RUnlock()

	if len(topics) == 0 {
		return
	}

	replayed := 0
	for _, topic := range topics {
		if err := conn.Subscribe(ctx, topic); err != nil {
			l.fault(FaultResubscribe, topic, err)
			continue
		}
		replayed++
	}

	l.logger.Debug("subscriptions replayed",
		slog.Int("replayed", replayed),
		slog.Int("failed", len(topics)-replayed))
}
