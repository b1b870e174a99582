package chanbus

import (
	"context"
	"log/slog"
)

// dispatch consumes one connection's delivery stream and routes every payload
// into the registry. Exactly one dispatcher runs per connection generation;
// it exits when the stream ends or the generation is retired.
func (l *Layer) dispatch(ctx context.Context, conn SubConn, done chan struct{}) {
	defer close(done)

	deliveries := conn.Deliveries()
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				l.onStreamEnd(conn)
				return
			}
			l.route(d)
		}
	}
}

// onStreamEnd marks the connection's generation dead so the next operation
// dials a replacement. A retired generation whose stream drains late must not
// clobber its successor, hence the identity check.
func (l *Layer) onStreamEnd(conn SubConn) {
	l.connMu.Lock()
	current := l.sub == conn
	if current {
		l.sub = nil
		l.state.Store(int32(StateDisconnected))
	}
	l.connMu.Unlock()

	if current && !l.isClosed() {
		l.fault(FaultConnectionLost, "", ErrConnClosed)
	}
}

// route delivers a payload to its destination mailboxes while holding the
// registry read lock, so a delivery never lands in a half-updated table.
// Channel topics win over group topics, matching the namespace split the
// group sub-prefix guarantees.
func (l *Layer) route(d Delivery) {
	l.regMu.RLock()
	defer l.regMu.RUnlock()

	if mailbox, ok := l.channels[d.Topic]; ok {
		mailbox.push(d.Payload)
		l.delivered.Add(1)
		return
	}

	if members, ok := l.groups[d.Topic]; ok {
		for name := range members {
			// Members whose channel was already cleaned up are skipped;
			// membership alone does not keep a mailbox alive.
			if mailbox, ok := l.channels[name]; ok {
				mailbox.push(d.Payload)
				l.delivered.Add(1)
			}
		}
		return
	}

	l.dropped.Add(1)
	l.logger.Debug("delivery for unknown topic dropped",
		slog.String("topic", d.Topic),
		slog.Int("payload_size", len(d.Payload)))
}
