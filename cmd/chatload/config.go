package main

import (
	"log/slog"
	"time"
)

type Config struct {
	// URL is the chat server base, without a path.
	URL string `env:"CHATLOAD_URL" envDefault:"ws://127.0.0.1:8000"`

	Room         string        `env:"CHATLOAD_ROOM" envDefault:"loadtest"`
	Users        int           `env:"CHATLOAD_USERS" envDefault:"2"`
	SendInterval time.Duration `env:"CHATLOAD_SEND_INTERVAL" envDefault:"50ms"`

	// Duration bounds the run; zero means run until interrupted.
	Duration time.Duration `env:"CHATLOAD_DURATION" envDefault:"30s"`

	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"info"`
}
