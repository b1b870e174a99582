package nats

import "time"

// Config holds NATS connection configuration.
// Designed for environment-based configuration using popular env parsing libraries.
type Config struct {
	URL            string        `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	ClientName     string        `env:"NATS_CLIENT_NAME" envDefault:"chanbus"`
	ConnectTimeout time.Duration `env:"NATS_CONNECT_TIMEOUT" envDefault:"5s"`
	RetryAttempts  int           `env:"NATS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"NATS_RETRY_INTERVAL" envDefault:"2s"`
}
