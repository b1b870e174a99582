package chanbus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultPrefix namespaces all broker topics created by a layer.
	DefaultPrefix = "chanbus."

	// DefaultChannelPrefix is the sub-prefix used by NewChannel when the caller
	// does not provide one.
	DefaultChannelPrefix = "specific."

	// groupSubprefix separates group topics from channel topics in the shared
	// broker namespace.
	groupSubprefix = "__group__"

	// cleanupTimeout bounds the best-effort unsubscribe that follows an
	// abandoned receive. The caller's context is already cancelled at that
	// point, so the cleanup runs on its own deadline.
	cleanupTimeout = 5 * time.Second
)

// Layer routes messages between named channels over a pub/sub broker.
//
// A channel is a process-local mailbox bound to a broker topic: anyone who
// knows the name can send to it, exactly one receiver at a time drains it.
// Groups fan a single publish out to every member channel. Connections are
// established lazily on first use and replaced transparently when they die;
// subscriptions are replayed onto the replacement from the layer's own tables.
//
// All methods are safe for concurrent use.
//
// Example:
//
//	layer, err := chanbus.New(chanbus.NewMemoryBroker(),
//	    chanbus.WithPrefix("app."),
//	    chanbus.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	defer layer.Close()
//
//	channel, err := layer.NewChannel(ctx, "")
//	if err != nil {
//	    return err
//	}
//
//	go func() {
//	    msg, err := layer.Receive(ctx, channel)
//	    ...
//	}()
//
//	err = layer.Send(ctx, channel, chanbus.Message{"type": "greeting", "text": "hello"})
type Layer struct {
	broker Broker
	codec  Codec
	prefix string
	logger *slog.Logger

	keepaliveInterval time.Duration
	connectTimeout    time.Duration
	faultBufferSize   int

	// lifeCtx bounds every background goroutine; Close cancels it.
	lifeCtx    context.Context
	lifeCancel context.CancelFunc

	// connMu guards the connection fields below. Establishment itself is
	// serialized through sf so that concurrent callers share one dial and
	// wait for it to become ready instead of racing to redial.
	connMu         sync.Mutex
	pub            PubConn
	sub            SubConn
	dispatchCancel context.CancelFunc
	dispatchDone   chan struct{}
	subGen         int64
	sf             singleflight.Group
	state          atomic.Int32

	keepaliveOnce sync.Once
	keepaliveOn   atomic.Bool
	keepaliveDone chan struct{}

	// regMu guards the routing tables. It is never held across broker calls;
	// the only nesting is connection establishment snapshotting the tables
	// for subscription replay.
	regMu    sync.RWMutex
	channels map[string]*fifo[[]byte]
	groups   map[string]map[string]struct{}

	closeOnce sync.Once
	closed    chan struct{}

	faults chan Fault

	published  atomic.Int64
	delivered  atomic.Int64
	dropped    atomic.Int64
	reconnects atomic.Int64
	faultCount atomic.Int64
}

// Stats provides observability metrics for monitoring and debugging.
type Stats struct {
	Channels   int       // Current number of registered channels
	Groups     int       // Current number of groups with members
	ConnState  ConnState // Subscribe-side connection state
	Published  int64     // Total messages published through the layer
	Delivered  int64     // Total payloads delivered into channel mailboxes
	Dropped    int64     // Total deliveries discarded for unknown topics
	Reconnects int64     // Subscribe connections established beyond the first
	Faults     int64     // Total recoverable background faults
	IsClosed   bool      // Whether Close has been called
}

// New creates a channel layer on top of the given broker.
// No connection is made until the first operation needs one.
//
// Example:
//
//	layer, err := chanbus.New(broker,
//	    chanbus.WithPrefix("app."),
//	    chanbus.WithKeepaliveInterval(time.Second),
//	)
func New(broker Broker, opts ...Option) (*Layer, error) {
	if broker == nil {
		return nil, ErrBrokerNil
	}

	l := &Layer{
		broker:            broker,
		codec:             MsgpackCodec{},
		prefix:            DefaultPrefix,
		logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		keepaliveInterval: time.Second,
		connectTimeout:    30 * time.Second,
		faultBufferSize:   64,
		channels:          make(map[string]*fifo[[]byte]),
		groups:            make(map[string]map[string]struct{}),
		closed:            make(chan struct{}),
		keepaliveDone:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(l)
	}

	l.lifeCtx, l.lifeCancel = context.WithCancel(context.Background())
	l.faults = make(chan Fault, l.faultBufferSize)

	return l, nil
}

// NewFromConfig creates a channel layer from configuration.
// Broker must be provided. Additional options can override config values.
func NewFromConfig(cfg Config, broker Broker, opts ...Option) (*Layer, error) {
	allOpts := append([]Option{
		WithPrefix(cfg.Prefix),
		WithKeepaliveInterval(cfg.KeepaliveInterval),
		WithConnectTimeout(cfg.ConnectTimeout),
		WithFaultBufferSize(cfg.FaultBufferSize),
	}, opts...)

	return New(broker, allOpts...)
}

// Close releases both broker connections, stops the dispatcher and keepalive
// loops, and wakes every blocked receiver with ErrLayerClosed. It is safe to
// call multiple times.
func (l *Layer) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
		l.lifeCancel()

		l.connMu.Lock()
		cancel, done := l.dispatchCancel, l.dispatchDone
		l.dispatchCancel, l.dispatchDone = nil, nil
		sub, pub := l.sub, l.pub
		l.sub, l.pub = nil, nil
		l.state.Store(int32(StateDisconnected))
		l.connMu.Unlock()

		if cancel != nil {
			cancel()
		}
		if done != nil {
			<-done
		}
		if l.keepaliveOn.Load() {
			<-l.keepaliveDone
		}
		if sub != nil {
			_ = sub.Close()
		}
		if pub != nil {
			_ = pub.Close()
		}

		l.logger.Info("channel layer closed",
			slog.Int64("reconnects", l.reconnects.Load()),
			slog.Int64("published", l.published.Load()),
			slog.Int64("delivered", l.delivered.Load()))
	})
	return nil
}

// Stats returns current layer statistics for observability and monitoring.
func (l *Layer) Stats() Stats {
	l.regMu.RLock()
	channels := len(l.channels)
	groups := len(l.groups)
	l.regMu.RUnlock()

	return Stats{
		Channels:   channels,
		Groups:     groups,
		ConnState:  ConnState(l.state.Load()),
		Published:  l.published.Load(),
		Delivered:  l.delivered.Load(),
		Dropped:    l.dropped.Load(),
		Reconnects: l.reconnects.Load(),
		Faults:     l.faultCount.Load(),
		IsClosed:   l.isClosed(),
	}
}

// Healthcheck validates that the layer can reach the broker. It establishes
// the subscribe connection if one is not ready, so a passing check means the
// dispatcher is live. Returns nil if healthy, or an error describing the
// health issue.
func (l *Layer) Healthcheck(ctx context.Context) error {
	if l.isClosed() {
		return errors.Join(ErrHealthcheckFailed, ErrLayerClosed)
	}
	if _, err := l.subConn(ctx); err != nil {
		return errors.Join(ErrHealthcheckFailed, err)
	}
	return nil
}

func (l *Layer) isClosed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}
