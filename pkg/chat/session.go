package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/chanbus"
)

// teardownTimeout bounds the group departure work after the socket ends.
const teardownTimeout = 5 * time.Second

// errSessionEnded marks a routine end of the websocket so the counterpart
// pump unwinds through group cancellation without reporting a failure.
var errSessionEnded = errors.New("session ended")

// Session binds one websocket connection to one chat room. It owns a layer
// channel for the connection's lifetime, relays incoming frames to the room
// group, and relays group deliveries back to the socket with the sender's
// own messages suppressed.
type Session struct {
	layer   *chanbus.Layer
	conn    *websocket.Conn
	room    string
	group   string
	channel string
	log     *slog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger for session lifecycle events. Defaults to a
// no-op logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// NewSession joins a websocket connection to a room: it creates a channel,
// adds it to the room's group, and broadcasts a connect notice to the other
// members. The caller must follow up with Run, which owns the teardown.
func NewSession(ctx context.Context, layer *chanbus.Layer, conn *websocket.Conn, room string, opts ...Option) (*Session, error) {
	if layer == nil {
		return nil, ErrLayerNil
	}
	if conn == nil {
		return nil, ErrConnNil
	}
	if room == "" {
		return nil, ErrEmptyRoom
	}

	s := &Session{
		layer: layer,
		conn:  conn,
		room:  room,
		group: RoomGroup(room),
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}

	channel, err := layer.NewChannel(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}
	s.channel = channel

	if err := layer.GroupAdd(ctx, s.group, channel); err != nil {
		s.drainChannel()
		return nil, fmt.Errorf("join group: %w", err)
	}

	if err := layer.GroupSend(ctx, s.group, ConnectNotice(channel).Message()); err != nil {
		// The caller's context may be the reason the announce failed, so the
		// cleanup runs on its own deadline.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		s.leaveGroup(cleanupCtx)
		cancel()
		s.drainChannel()
		return nil, fmt.Errorf("announce join: %w", err)
	}

	s.log.Debug("chat session joined",
		slog.String("room", room),
		slog.String("channel", channel))
	return s, nil
}

// Channel returns the layer channel name backing this session.
func (s *Session) Channel() string {
	return s.channel
}

// Group returns the group name the session joined.
func (s *Session) Group() string {
	return s.group
}

// Run pumps frames between the websocket and the room group until the
// socket closes, the context is cancelled, or either side fails. It then
// leaves the group and broadcasts a disconnect notice, returning nil for a
// routine end and the first failure otherwise.
func (s *Session) Run(ctx context.Context) error {
	eg, gctx := errgroup.WithContext(ctx)

	// Closing the socket is the only way to unblock a pending ReadMessage.
	eg.Go(func() error {
		<-gctx.Done()
		_ = s.conn.Close()
		return nil
	})
	eg.Go(func() error { return s.readPump(gctx) })
	eg.Go(func() error { return s.writePump(gctx) })

	err := eg.Wait()
	s.teardown()

	s.log.Debug("chat session left",
		slog.String("room", s.room),
		slog.String("channel", s.channel))

	if err != nil && !errors.Is(err, errSessionEnded) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// readPump forwards websocket frames to the room group as chat envelopes.
func (s *Session) readPump(ctx context.Context) error {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				return fmt.Errorf("read socket: %w", err)
			}
			return errSessionEnded
		}

		env := Envelope{Type: EventChatSend, Sender: s.channel}
		switch msgType {
		case websocket.TextMessage:
			env.TextData = string(data)
		case websocket.BinaryMessage:
			env.BytesData = data
		default:
			continue
		}

		if err := s.layer.GroupSend(ctx, s.group, env.Message()); err != nil {
			return fmt.Errorf("forward to group: %w", err)
		}
	}
}

// writePump forwards group deliveries to the websocket, suppressing the
// session's own messages. Text bodies win over binary when both are set.
func (s *Session) writePump(ctx context.Context) error {
	for {
		msg, err := s.layer.Receive(ctx, s.channel)
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}

		env, err := FromMessage(msg)
		if err != nil {
			s.log.Warn("dropping malformed delivery",
				slog.String("channel", s.channel),
				slog.String("error", err.Error()))
			continue
		}
		if env.Type != EventChatSend || env.Sender == s.channel {
			continue
		}

		switch {
		case env.TextData != "":
			err = s.conn.WriteMessage(websocket.TextMessage, []byte(env.TextData))
		case env.BytesData != nil:
			err = s.conn.WriteMessage(websocket.BinaryMessage, env.BytesData)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("write socket: %w", err)
		}
	}
}

// teardown leaves the group, releases the channel, and announces the
// departure. Best effort: failures are logged unless the layer is already
// closed.
func (s *Session) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	s.leaveGroup(ctx)
	s.drainChannel()

	notice := DisconnectNotice(s.channel)
	if err := s.layer.GroupSend(ctx, s.group, notice.Message()); err != nil && !errors.Is(err, chanbus.ErrLayerClosed) {
		s.log.Warn("announce departure",
			slog.String("group", s.group),
			slog.String("error", err.Error()))
	}
}

func (s *Session) leaveGroup(ctx context.Context) {
	err := s.layer.GroupDiscard(ctx, s.group, s.channel)
	if err != nil && !errors.Is(err, chanbus.ErrLayerClosed) {
		s.log.Warn("leave group",
			slog.String("group", s.group),
			slog.String("error", err.Error()))
	}
}

// drainChannel releases the session's channel. A receive with a cancelled
// context consumes one buffered delivery per call and abandons the channel
// once the mailbox is empty, so the loop runs until a terminal error.
func (s *Session) drainChannel() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for {
		_, err := s.layer.Receive(ctx, s.channel)
		switch {
		case err == nil:
			// consumed a buffered delivery
		case errors.Is(err, context.Canceled),
			errors.Is(err, chanbus.ErrUnknownChannel),
			errors.Is(err, chanbus.ErrLayerClosed):
			return
		default:
			// malformed delivery consumed, keep draining
		}
	}
}
