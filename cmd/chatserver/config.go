package main

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/chanbus"
	"github.com/dmitrymomot/chanbus/integration/broker/nats"
	"github.com/dmitrymomot/chanbus/integration/broker/redis"
)

type Config struct {
	AppName  string     `env:"APP_NAME" envDefault:"chatserver"`
	Addr     string     `env:"ADDR" envDefault:":8000"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"info"`

	// Broker selects the pub/sub backend: memory, redis, or nats.
	Broker string `env:"BROKER" envDefault:"memory"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	Layer chanbus.Config
	Redis redis.Config
	Nats  nats.Config
}
