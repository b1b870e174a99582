// Package nats provides a NATS-backed broker for the chanbus channel layer,
// built on core NATS subjects.
//
// # Key Features
//
//   - Connect: Creates a NATS connection with retry logic
//   - Healthcheck: Returns a health check function for monitoring connectivity
//   - NewBroker: Adapts a connection into a chanbus.Broker
//
// # Configuration
//
// All configuration is handled through the Config struct with environment
// variable mapping:
//
//	type Config struct {
//		URL            string        `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`
//		ClientName     string        `env:"NATS_CLIENT_NAME" envDefault:"chanbus"`
//		ConnectTimeout time.Duration `env:"NATS_CONNECT_TIMEOUT" envDefault:"5s"`
//		RetryAttempts  int           `env:"NATS_RETRY_ATTEMPTS" envDefault:"3"`
//		RetryInterval  time.Duration `env:"NATS_RETRY_INTERVAL" envDefault:"2s"`
//	}
//
// # Usage Example
//
//	nc, err := nats.Connect(ctx, nats.Config{URL: "nats://127.0.0.1:4222"})
//	if err != nil {
//	    return err
//	}
//	defer nc.Drain()
//
//	layer, err := chanbus.New(nats.NewBroker(nc))
//	if err != nil {
//	    return err
//	}
//	defer layer.Close()
//
// # Subject Naming
//
// Channel and group names become NATS subjects verbatim. NATS treats dots as
// token separators and rejects subjects containing spaces or wildcards, so
// keep the layer prefix and group names to plain alphanumeric tokens. The
// default "chanbus." prefix and the generated channel names are always valid
// subjects.
//
// # Reconnection
//
// The NATS client reconnects and restores its own subscriptions after
// transient network failures, so the layer's subscription replay only runs
// when a connection is closed for good. Both recovery paths deliver the same
// result: every registered channel and group keeps receiving.
package nats
