package nats

import (
	"context"
	"errors"
	"time"

	natsio "github.com/nats-io/nats.go"
)

// Connect establishes a NATS connection with retry logic. It dials with up to
// RetryAttempts attempts spaced by RetryInterval; each attempt is bounded by
// ConnectTimeout. The context aborts the retry loop between attempts.
func Connect(ctx context.Context, cfg Config) (*natsio.Conn, error) {
	if cfg.URL == "" {
		return nil, ErrEmptyURL
	}

	opts := []natsio.Option{}
	if cfg.ClientName != "" {
		opts = append(opts, natsio.Name(cfg.ClientName))
	}
	if cfg.ConnectTimeout > 0 {
		opts = append(opts, natsio.Timeout(cfg.ConnectTimeout))
	}

	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.Join(ErrNatsNotReady, ctx.Err(), lastErr)
			case <-time.After(cfg.RetryInterval):
			}
		}

		nc, err := natsio.Connect(cfg.URL, opts...)
		if err != nil {
			lastErr = err
			continue
		}
		return nc, nil
	}

	return nil, errors.Join(ErrNatsNotReady, lastErr)
}

// Healthcheck returns a health check function suitable for readiness and
// liveness probes.
func Healthcheck(nc *natsio.Conn) func(context.Context) error {
	return func(ctx context.Context) error {
		if !nc.IsConnected() {
			return errors.Join(ErrHealthcheckFailed, ErrNotConnected)
		}
		return nil
	}
}
