package chanbus

import (
	"context"
	"log/slog"
	"time"
)

// startKeepalive launches the keepalive loop. It is invoked through
// keepaliveOnce on the first subscribe-side operation, so publish-only layers
// never pay for it.
func (l *Layer) startKeepalive() {
	l.keepaliveOn.Store(true)
	go l.keepalive(l.lifeCtx)
}

// keepalive probes the subscribe connection on a fixed interval. The probe is
// the ordinary connection getter, so finding a dead connection and replacing
// it (with full subscription replay) is the same code path every other
// operation uses. This keeps subscriptions alive through broker restarts even
// when the application goes quiet.
func (l *Layer) keepalive(ctx context.Context) {
	defer close(l.keepaliveDone)

	l.logger.Debug("keepalive started",
		slog.Duration("interval", l.keepaliveInterval))

	ticker := time.NewTicker(l.keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("keepalive stopped")
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, l.connectTimeout)
			_, err := l.subConn(probeCtx)
			cancel()

			if err != nil && ctx.Err() == nil {
				l.fault(FaultKeepalive, "", err)
			}
		}
	}
}
