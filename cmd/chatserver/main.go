package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/chanbus"
	"github.com/dmitrymomot/chanbus/integration/broker/nats"
	"github.com/dmitrymomot/chanbus/integration/broker/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		slog.Error("parse config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})).
		With(slog.String("app", cfg.AppName))

	be, err := newBackend(ctx, cfg)
	if err != nil {
		log.Error("connect broker",
			slog.String("broker", cfg.Broker),
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	layer, err := chanbus.NewFromConfig(cfg.Layer, be.broker,
		chanbus.WithLogger(log.With(slog.String("component", "chanbus"))),
	)
	if err != nil {
		log.Error("create channel layer", slog.String("error", err.Error()))
		os.Exit(1)
	}

	health := []func(context.Context) error{layer.Healthcheck}
	if be.healthcheck != nil {
		health = append(health, be.healthcheck)
	}

	svc := newService(layer, log, health...)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: svc.routes(),
		// Websocket sessions inherit this context, so a shutdown signal
		// unwinds them even though Shutdown does not track hijacked
		// connections.
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		log.Info("http server listening",
			slog.String("addr", cfg.Addr),
			slog.String("broker", cfg.Broker))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	eg.Go(func() error {
		svc.faults.collect(ctx, layer.Faults())
		return nil
	})

	werr := eg.Wait()

	_ = layer.Close()
	if err := be.close(); err != nil {
		log.Warn("close broker", slog.String("error", err.Error()))
	}

	if werr != nil {
		log.Error("server stopped", slog.String("error", werr.Error()))
		os.Exit(1)
	}
	log.Info("server stopped")
}

// backend bundles a broker with its transport-specific lifecycle hooks.
type backend struct {
	broker      chanbus.Broker
	healthcheck func(context.Context) error
	close       func() error
}

func newBackend(ctx context.Context, cfg Config) (*backend, error) {
	switch cfg.Broker {
	case "memory":
		b := chanbus.NewMemoryBroker()
		return &backend{broker: b, close: b.Close}, nil

	case "redis":
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return &backend{
			broker:      redis.NewBroker(client),
			healthcheck: redis.Healthcheck(client),
			close:       client.Close,
		}, nil

	case "nats":
		nc, err := nats.Connect(ctx, cfg.Nats)
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		return &backend{
			broker:      nats.NewBroker(nc),
			healthcheck: nats.Healthcheck(nc),
			close:       nc.Drain,
		}, nil

	default:
		return nil, fmt.Errorf("unknown broker %q", cfg.Broker)
	}
}
