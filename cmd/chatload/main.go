// Command chatload drives a chat server with simulated users and verifies
// that no messages are dropped. Every user sends a monotonically increasing
// counter at a fixed interval; every user checks the counters it receives
// from the others. A skipped value means the server dropped a message.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/chanbus/pkg/chat"
)

// packet is the wire format each simulated user sends.
type packet struct {
	MyID  string `json:"my_id"`
	Count int64  `json:"count"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		slog.Error("parse config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if len(os.Args) > 1 {
		cfg.Room = os.Args[1]
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	r := &runner{cfg: cfg, log: log}

	log.Info("load run starting",
		slog.String("url", cfg.URL),
		slog.String("room", cfg.Room),
		slog.Int("users", cfg.Users),
		slog.Duration("interval", cfg.SendInterval))

	eg, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Users; i++ {
		eg.Go(func() error { return r.user(ctx) })
	}
	runErr := eg.Wait()

	log.Info("load run complete",
		slog.Int64("sent", r.sent.Load()),
		slog.Int64("received", r.received.Load()),
		slog.Int64("notices", r.notices.Load()),
		slog.Int64("gaps", r.gaps.Load()))

	if runErr != nil && !errors.Is(runErr, context.DeadlineExceeded) {
		log.Error("load run failed", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
	if r.gaps.Load() > 0 {
		log.Error("server dropped messages", slog.Int64("gaps", r.gaps.Load()))
		os.Exit(1)
	}
}

type runner struct {
	cfg Config
	log *slog.Logger

	sent     atomic.Int64
	received atomic.Int64
	notices  atomic.Int64
	gaps     atomic.Int64
}

// user connects one websocket client and runs its send and verify loops
// until the context ends or the connection fails.
func (r *runner) user(ctx context.Context) error {
	u := uuid.New()
	id := hex.EncodeToString(u[:])[:8]
	log := r.log.With(slog.String("user", id))

	wsURL := strings.TrimSuffix(r.cfg.URL, "/") + "/ws/chat/" + url.PathEscape(r.cfg.Room)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	log.Debug("connected", slog.String("url", wsURL))

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		<-ctx.Done()
		_ = conn.Close()
		return nil
	})
	eg.Go(func() error { return r.sendLoop(ctx, conn, id) })
	eg.Go(func() error { return r.verifyLoop(ctx, conn, log) })

	return eg.Wait()
}

// sendLoop emits an increasing counter at the configured interval and sends
// a close frame when the run ends.
func (r *runner) sendLoop(ctx context.Context, conn *websocket.Conn, id string) error {
	ticker := time.NewTicker(r.cfg.SendInterval)
	defer ticker.Stop()

	var count int64
	for {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(time.Second)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
			return nil
		case <-ticker.C:
			payload, err := json.Marshal(packet{MyID: id, Count: count})
			if err != nil {
				return fmt.Errorf("encode packet: %w", err)
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("write: %w", err)
			}
			count++
			r.sent.Add(1)
		}
	}
}

// verifyLoop reads everything the server fans back in and checks the other
// users' counters for gaps. Connect and disconnect notices are counted but
// not verified.
func (r *runner) verifyLoop(ctx context.Context, conn *websocket.Conn, log *slog.Logger) error {
	tracker := chat.NewSequenceTracker()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || isExpectedClose(err) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var fields map[string]any
		if err := json.Unmarshal(data, &fields); err != nil {
			log.Debug("skipping non-json frame", slog.String("data", string(data)))
			continue
		}

		if ch, ok := fields["connect"].(string); ok {
			r.notices.Add(1)
			log.Debug("client connected", slog.String("channel", ch))
			continue
		}
		if ch, ok := fields["disconnect"].(string); ok {
			r.notices.Add(1)
			log.Debug("client disconnected", slog.String("channel", ch))
			continue
		}

		sender, _ := fields["my_id"].(string)
		count, ok := fields["count"].(float64)
		if sender == "" || !ok {
			log.Debug("skipping unrecognized packet", slog.String("data", string(data)))
			continue
		}

		r.received.Add(1)
		if err := tracker.Observe(sender, int64(count)); err != nil {
			r.gaps.Add(1)
			log.Error("dropped message detected", slog.String("error", err.Error()))
		}
	}
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, net.ErrClosed)
}
