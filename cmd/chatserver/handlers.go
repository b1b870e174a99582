package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/uptrace/bunrouter"

	"github.com/dmitrymomot/chanbus"
	"github.com/dmitrymomot/chanbus/pkg/chat"
)

type service struct {
	layer    *chanbus.Layer
	log      *slog.Logger
	upgrader websocket.Upgrader
	faults   *faultLog
	health   []func(context.Context) error
}

func newService(layer *chanbus.Layer, log *slog.Logger, health ...func(context.Context) error) *service {
	return &service{
		layer: layer,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin checks are left to a fronting proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		faults: newFaultLog(32),
		health: health,
	}
}

func (s *service) routes() *bunrouter.Router {
	r := bunrouter.New()
	r.GET("/", s.handleIndex)
	r.GET("/chat/:room", s.handleRoom)
	r.GET("/ws/chat/:room", s.handleWS)
	r.GET("/healthz", s.handleHealth)
	r.GET("/stats", s.handleStats)
	return r
}

func (s *service) handleIndex(w http.ResponseWriter, req bunrouter.Request) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return pages.ExecuteTemplate(w, "index.html", nil)
}

func (s *service) handleRoom(w http.ResponseWriter, req bunrouter.Request) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return pages.ExecuteTemplate(w, "room.html", map[string]string{
		"Room": req.Param("room"),
	})
}

// handleWS upgrades the connection and runs a chat session until the client
// leaves. Errors after the upgrade cannot reach the HTTP response anymore,
// so they are logged instead of returned.
func (s *service) handleWS(w http.ResponseWriter, req bunrouter.Request) error {
	room := req.Param("room")

	conn, err := s.upgrader.Upgrade(w, req.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed",
			slog.String("room", room),
			slog.String("error", err.Error()))
		return nil
	}

	sess, err := chat.NewSession(req.Context(), s.layer, conn, room, chat.WithLogger(s.log))
	if err != nil {
		s.log.Error("create chat session",
			slog.String("room", room),
			slog.String("error", err.Error()))
		_ = conn.Close()
		return nil
	}

	s.log.Info("client joined",
		slog.String("room", room),
		slog.String("channel", sess.Channel()))

	if err := sess.Run(req.Context()); err != nil {
		s.log.Warn("chat session failed",
			slog.String("room", room),
			slog.String("channel", sess.Channel()),
			slog.String("error", err.Error()))
		return nil
	}

	s.log.Info("client left",
		slog.String("room", room),
		slog.String("channel", sess.Channel()))
	return nil
}

func (s *service) handleHealth(w http.ResponseWriter, req bunrouter.Request) error {
	for _, check := range s.health {
		if err := check(req.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			return json.NewEncoder(w).Encode(map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type faultView struct {
	Op    string    `json:"op"`
	Topic string    `json:"topic"`
	Error string    `json:"error"`
	At    time.Time `json:"at"`
}

type statsView struct {
	Channels     int         `json:"channels"`
	Groups       int         `json:"groups"`
	ConnState    string      `json:"conn_state"`
	Published    int64       `json:"published"`
	Delivered    int64       `json:"delivered"`
	Dropped      int64       `json:"dropped"`
	Reconnects   int64       `json:"reconnects"`
	Faults       int64       `json:"faults"`
	RecentFaults []faultView `json:"recent_faults,omitempty"`
}

func (s *service) handleStats(w http.ResponseWriter, req bunrouter.Request) error {
	stats := s.layer.Stats()

	view := statsView{
		Channels:   stats.Channels,
		Groups:     stats.Groups,
		ConnState:  stats.ConnState.String(),
		Published:  stats.Published,
		Delivered:  stats.Delivered,
		Dropped:    stats.Dropped,
		Reconnects: stats.Reconnects,
		Faults:     stats.Faults,
	}
	for _, f := range s.faults.snapshot() {
		view.RecentFaults = append(view.RecentFaults, faultView{
			Op:    string(f.Op),
			Topic: f.Topic,
			Error: f.Err.Error(),
			At:    f.At,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(view)
}
