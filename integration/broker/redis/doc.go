// Package redis provides a Redis-backed broker for the chanbus channel layer,
// built on Redis publish/subscribe.
//
// This package wraps the popular go-redis/redis client with connection
// validation, retry logic, and configuration optimized for reliable Redis
// connectivity. It supports both Redis and Redis-compatible services with
// proper URL validation and backoff retry logic for handling transient
// network issues.
//
// # Key Features
//
// The package provides Redis client creation with immediate connectivity
// verification plus the broker adapter the channel layer consumes:
//
//   - Connect: Creates a Redis client with retry logic and connection verification
//   - Healthcheck: Returns a health check function for monitoring Redis connectivity
//   - NewBroker: Adapts a connected client into a chanbus.Broker
//
// Connection establishment validates the Redis URL format, attempts
// connection with retries, and verifies connectivity with a ping operation
// before returning the client.
//
// # Configuration
//
// All configuration is handled through the Config struct with environment
// variable mapping:
//
//	type Config struct {
//		ConnectionURL  string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
//		RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
//		RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
//		ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
//	}
//
// The configuration supports both redis:// and rediss:// (TLS) URL schemes.
//
// # Usage Example
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		"github.com/dmitrymomot/chanbus"
//		"github.com/dmitrymomot/chanbus/integration/broker/redis"
//	)
//
//	func main() {
//		ctx := context.Background()
//
//		client, err := redis.Connect(ctx, redis.Config{
//			ConnectionURL: "redis://localhost:6379/0",
//			RetryAttempts: 3,
//		})
//		if err != nil {
//			log.Fatal("Failed to connect to Redis:", err)
//		}
//		defer client.Close()
//
//		layer, err := chanbus.New(redis.NewBroker(client))
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer layer.Close()
//
//		channel, err := layer.NewChannel(ctx, "")
//		if err != nil {
//			log.Fatal(err)
//		}
//		log.Printf("listening on %s", channel)
//	}
//
// # Connection Roles
//
// The broker hands the layer two different kinds of connection:
//
//   - The publish role reuses the pooled client. The pool reconnects
//     internally, so a publish connection only reports Closed after an
//     explicit Close.
//   - Each subscribe role wraps a dedicated PubSub subscription. Its delivery
//     stream ends when the subscription closes, which is the layer's signal
//     to dial a replacement and replay its subscriptions.
//
// go-redis also re-subscribes a live PubSub after transient network errors on
// its own; the layer's replay covers the remaining case, a subscription that
// was closed outright.
//
// # Error Handling
//
// The package defines domain-specific errors that can be checked using errors.Is():
//
//   - ErrFailedToParseRedisConnString: Returned when the Redis connection URL is malformed
//   - ErrRedisNotReady: Returned when Redis doesn't become ready within the timeout period
//   - ErrEmptyConnectionURL: Returned when no connection URL is provided
//   - ErrHealthcheckFailed: Returned when health check ping fails
//
// These errors wrap the underlying go-redis client errors while providing
// stable error types for application-level error handling and retry logic.
package redis
