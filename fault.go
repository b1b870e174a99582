package chanbus

import (
	"log/slog"
	"time"
)

// FaultOp identifies the background operation a recoverable fault came from.
type FaultOp string

const (
	// FaultConnectionLost is reported when the subscribe connection's delivery
	// stream ends unexpectedly. The next operation dials a replacement.
	FaultConnectionLost FaultOp = "connection_lost"

	// FaultUnsubscribe is reported when the best-effort unsubscribe after an
	// abandoned receive fails. The broker may keep sending messages for the
	// topic; the dispatcher drops them.
	FaultUnsubscribe FaultOp = "unsubscribe"

	// FaultKeepalive is reported when a keepalive probe fails to reach a ready
	// subscribe connection.
	FaultKeepalive FaultOp = "keepalive"

	// FaultResubscribe is reported per topic that could not be replayed onto a
	// fresh subscribe connection. The topic stays registered; the next
	// reconnect retries it.
	FaultResubscribe FaultOp = "resubscribe"
)

// Fault describes a recoverable background failure. Faults are informational:
// the layer has already handled the failure and keeps operating.
type Fault struct {
	Op    FaultOp
	Topic string
	Err   error
	At    time.Time
}

// Faults returns the stream of recoverable background faults. The stream is
// bounded; when no one is draining it, new faults are counted and logged but
// not queued. The channel is never closed.
func (l *Layer) Faults() <-chan Fault {
	return l.faults
}

// fault records a recoverable failure: counts it, logs it, and offers it to
// the fault stream without blocking.
func (l *Layer) fault(op FaultOp, topic string, err error) {
	l.faultCount.Add(1)
	l.logger.Warn("recoverable fault",
		slog.String("op", string(op)),
		slog.String("topic", topic),
		slog.String("error", err.Error()))

	select {
	case l.faults <- Fault{Op: op, Topic: topic, Err: err, At: time.Now()}:
	default:
	}
}
