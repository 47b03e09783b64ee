package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/lightforgemedia/go-talkbot/pkg/backoff"
	"github.com/lightforgemedia/go-talkbot/pkg/transport"
	"github.com/lightforgemedia/go-talkbot/pkg/ttevent"
)

const (
	defaultClientName   = "go-talkbot"
	defaultPollInterval = 100 * time.Millisecond
	defaultYield        = time.Millisecond
	defaultTapBuffer    = 16
)

// TransportFactory opens one native session handle for an endpoint. The
// returned Conn is owned by the Session created from it.
type TransportFactory func(ctx context.Context, info ttevent.ServerInfo) (transport.Conn, error)

// ErrorHook receives faults recovered from scheduled handlers. The default
// hook logs and continues.
type ErrorHook func(kind ttevent.Kind, recovered any, args []any)

// Option configures the Bot.
type Option func(*Bot)

// WithLogger sets a custom logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bot) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithClientName sets the client name sent on login.
func WithClientName(name string) Option {
	return func(b *Bot) {
		if name != "" {
			b.clientName = name
		}
	}
}

// WithTransport sets the factory used by AddServer to open session handles.
func WithTransport(factory TransportFactory) Option {
	return func(b *Bot) {
		b.transport = factory
	}
}

// WithPollInterval sets the per-iteration bound on the message pump's
// blocking poll.
func WithPollInterval(d time.Duration) Option {
	return func(b *Bot) {
		if d > 0 {
			b.pollInterval = d
		}
	}
}

// WithYieldInterval sets how long the scheduler sleeps between round-robin
// passes over the sessions.
func WithYieldInterval(d time.Duration) Option {
	return func(b *Bot) {
		if d > 0 {
			b.yield = d
		}
	}
}

// WithErrorHook replaces the default handler-fault hook.
func WithErrorHook(hook ErrorHook) Option {
	return func(b *Bot) {
		if hook != nil {
			b.onError = hook
		}
	}
}

// serverConfig carries the per-session settings applied by AddServer.
type serverConfig struct {
	reconnect  bool
	muxedAudio bool
	backoff    backoff.Config
}

// ServerOption configures one session added via AddServer.
type ServerOption func(*serverConfig)

// WithReconnect enables or disables automatic reconnection after a
// connectivity loss. Enabled by default.
func WithReconnect(enabled bool) ServerOption {
	return func(c *serverConfig) {
		c.reconnect = enabled
	}
}

// WithMuxedAudio gates whether mixed-audio events are requested from the
// native layer at all. Enabled by default.
func WithMuxedAudio(enabled bool) ServerOption {
	return func(c *serverConfig) {
		c.muxedAudio = enabled
	}
}

// WithBackoff sets the retry/backoff parameters governing both the initial
// connection sequence and reconnections after a loss.
func WithBackoff(cfg backoff.Config) ServerOption {
	return func(c *serverConfig) {
		c.backoff = cfg
	}
}
