// Package bot implements the client-side session layer: a Bot owns any
// number of Sessions, drives their message pumps from one cooperative
// scheduler, correlates command responses, dispatches events to handlers
// and waiters, and recovers from connection loss with bounded exponential
// backoff.
package bot

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cskr/pubsub"

	"github.com/lightforgemedia/go-talkbot/pkg/ttevent"
)

// Bot owns sessions and the event-dispatch engine.
type Bot struct {
	clientName   string
	logger       *slog.Logger
	transport    TransportFactory
	pollInterval time.Duration
	yield        time.Duration
	onError      ErrorHook

	sessionsMu sync.RWMutex
	sessions   []*Session

	handlersMu sync.RWMutex
	handlers   map[ttevent.Kind]*handlerWrapper

	waitersMu sync.Mutex
	waiters   map[ttevent.Kind][]*waiter

	tap *pubsub.PubSub

	running atomic.Bool
	closed  atomic.Bool
}

// New creates a Bot. A transport factory must be supplied via WithTransport
// before AddServer is used.
func New(opts ...Option) *Bot {
	b := &Bot{
		clientName:   defaultClientName,
		logger:       slog.Default(),
		pollInterval: defaultPollInterval,
		yield:        defaultYield,
		handlers:     make(map[ttevent.Kind]*handlerWrapper),
		waiters:      make(map[ttevent.Kind][]*waiter),
		tap:          pubsub.New(defaultTapBuffer),
	}
	b.onError = b.defaultErrorHook
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ClientName returns the name sent to servers on login.
func (b *Bot) ClientName() string { return b.clientName }

// AddServer opens a session handle for the endpoint, registers the Session
// and runs the initial connect+login loop. The Session is kept registered
// even when the loop gives up, so a later ForceReconnect can revive it; the
// returned bool reports whether the initial sequence succeeded.
func (b *Bot) AddServer(ctx context.Context, info ttevent.ServerInfo, opts ...ServerOption) (*Session, bool, error) {
	if b.transport == nil {
		return nil, false, ErrNoTransport
	}
	cfg := serverConfig{reconnect: true, muxedAudio: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	conn, err := b.transport(ctx, info)
	if err != nil {
		return nil, false, err
	}

	s := newSession(b, info, conn, cfg)
	b.sessionsMu.Lock()
	b.sessions = append(b.sessions, s)
	b.sessionsMu.Unlock()

	ok := s.InitialConnectLoop(ctx)
	if !ok {
		b.logger.Error("initial connection failed after retries; session registered but may not be usable",
			"server", info.Addr())
	}
	return s, ok, nil
}

// Sessions returns a snapshot of the registered sessions.
func (b *Bot) Sessions() []*Session {
	b.sessionsMu.RLock()
	defer b.sessionsMu.RUnlock()
	out := make([]*Session, len(b.sessions))
	copy(out, b.sessions)
	return out
}

// Run drives every session's message pump in round-robin fashion until ctx
// is cancelled, then tears the sessions down: best-effort logout and
// disconnect (failures logged, not raised) and cancellation of every
// outstanding reconnection task. Run returns nil after a clean teardown.
// A Bot runs at most once; after teardown it is finished.
func (b *Bot) Run(ctx context.Context) error {
	if b.closed.Load() {
		return ErrAlreadyRunning
	}
	if !b.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer b.running.Store(false)

	b.Dispatch(ttevent.KindReady)

	for {
		select {
		case <-ctx.Done():
			b.teardown()
			return nil
		default:
		}
		for _, s := range b.Sessions() {
			s.pumpOnce()
		}
		// Yield between passes so pumps interleave fairly with handler
		// goroutines and the correlator workers.
		time.Sleep(b.yield)
	}
}

// Running reports whether the scheduler loop is active.
func (b *Bot) Running() bool { return b.running.Load() }

func (b *Bot) teardown() {
	b.closed.Store(true)
	for _, s := range b.Sessions() {
		s.cancel()
		if s.LoggedIn() {
			if !s.Logout() {
				b.logger.Warn("logout failed during teardown", "server", s.info.Addr())
			}
			b.Dispatch(ttevent.KindLogout, ttevent.ServerRef{Endpoint: s.info})
		}
		if s.Connected() {
			s.Disconnect()
		}
		if err := s.conn.Close(); err != nil {
			b.logger.Warn("closing session handle failed", "server", s.info.Addr(), "err", err)
		}
	}
	b.tap.Shutdown()
	b.logger.Info("scheduler stopped")
}

// publishTap forwards one raw event to tap subscribers without blocking the
// pump. No-op once teardown shut the tap down.
func (b *Bot) publishTap(ev ttevent.Event) {
	if b.closed.Load() {
		return
	}
	b.tap.TryPub(ev, string(ev.Code))
}

// TapEvents subscribes to the raw event firehose for the given codes. The
// channel receives ttevent.Event values; slow consumers drop events rather
// than stalling the pump. Callers release the subscription with Untap.
func (b *Bot) TapEvents(codes ...ttevent.Code) chan any {
	topics := make([]string, len(codes))
	for i, c := range codes {
		topics[i] = string(c)
	}
	return b.tap.Sub(topics...)
}

// Untap releases a subscription created by TapEvents.
func (b *Bot) Untap(ch chan any, codes ...ttevent.Code) {
	topics := make([]string, len(codes))
	for i, c := range codes {
		topics[i] = string(c)
	}
	b.tap.Unsub(ch, topics...)
}
