package bot

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightforgemedia/go-talkbot/pkg/backoff"
	"github.com/lightforgemedia/go-talkbot/pkg/transport"
	"github.com/lightforgemedia/go-talkbot/pkg/ttevent"
)

// defaultWait bounds the connect and login waits.
const defaultWait = 1500 * time.Millisecond

// Session is one logical connection/login lifecycle to one remote endpoint.
// It composes the native handle rather than extending it: orchestration
// state lives here, the wire mechanics stay behind transport.Conn.
type Session struct {
	bot    *Bot
	info   ttevent.ServerInfo
	conn   transport.Conn
	logger *slog.Logger

	reconnectEnabled bool
	muxedAudio       bool
	backoff          *backoff.Backoff

	stateMu   sync.Mutex
	connected bool
	loggedIn  bool
	initTime  time.Time

	// reconnecting guards against more than one reconnection task per
	// session. Set by the pump on a loss trigger, cleared on every exit
	// path of the task.
	reconnecting atomic.Bool

	// ioMu serializes blocking reads on the native handle: the pump's
	// routine poll and the correlator's waits are mutually exclusive.
	ioMu sync.Mutex

	// audioMu makes the acquire/copy/release sequence appear atomic to
	// concurrent pump iterations.
	audioMu sync.Mutex

	accMu    sync.Mutex
	accounts []ttevent.AccountRef
	bans     []ttevent.BanRef

	// ctx bounds the reconnection task; cancelled on Bot teardown.
	ctx    context.Context
	cancel context.CancelFunc
}

func newSession(b *Bot, info ttevent.ServerInfo, conn transport.Conn, cfg serverConfig) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		bot:              b,
		info:             info,
		conn:             conn,
		logger:           b.logger.With("server", info.Addr()),
		reconnectEnabled: cfg.reconnect,
		muxedAudio:       cfg.muxedAudio,
		backoff:          backoff.New(cfg.backoff),
		initTime:         time.Now(),
		ctx:              ctx,
		cancel:           cancel,
	}
}

// Endpoint returns the server descriptor this session is bound to.
func (s *Session) Endpoint() ttevent.ServerInfo { return s.info }

// Connected reports the connection state flag.
func (s *Session) Connected() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.connected
}

// LoggedIn reports the login state flag.
func (s *Session) LoggedIn() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.loggedIn
}

func (s *Session) setState(connected, loggedIn bool) {
	s.stateMu.Lock()
	s.connected = connected
	s.loggedIn = loggedIn
	s.stateMu.Unlock()
}

func (s *Session) markInit() {
	s.stateMu.Lock()
	s.initTime = time.Now()
	s.stateMu.Unlock()
}

// InitTime returns when the session last completed a connect+login
// sequence.
func (s *Session) InitTime() time.Time {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.initTime
}

// serverRef is the payload handed to connectivity and session events.
func (s *Session) serverRef() ttevent.ServerRef {
	return ttevent.ServerRef{Endpoint: s.info}
}

// Connect makes a single synchronous attempt to connect, waiting for the
// native layer's verdict for this attempt. Exactly one connectivity event
// is dispatched per attempt. Runs off the scheduler goroutine.
func (s *Session) Connect() bool {
	// The handle lock is taken before the native call so the pump cannot
	// consume the connectivity verdict between issue and wait.
	s.ioMu.Lock()
	if !s.conn.Connect(s.info.Host, s.info.TCPPort, s.info.UDPPort, s.info.Encrypted) {
		s.ioMu.Unlock()
		return false
	}
	ev, ok := s.waitForEventLocked([]ttevent.Code{
		ttevent.CodeConSuccess,
		ttevent.CodeConFailed,
		ttevent.CodeConCryptError,
	}, defaultWait)
	s.ioMu.Unlock()
	if !ok {
		return false
	}
	switch ev.Code {
	case ttevent.CodeConSuccess:
		s.stateMu.Lock()
		s.connected = true
		s.initTime = time.Now()
		s.stateMu.Unlock()
		s.bot.Dispatch(ttevent.KindConnect, s.serverRef())
		return true
	case ttevent.CodeConFailed:
		s.bot.Dispatch(ttevent.KindConnectFailed, s.serverRef())
	case ttevent.CodeConCryptError:
		s.bot.Dispatch(ttevent.KindConnectCryptError, s.serverRef())
	}
	return false
}

// Login makes a single synchronous attempt to log in, waiting for the
// login-success event. On success it applies the muxed-audio gate, joins
// the configured auto-join channel when strictly positive, and dispatches
// exactly one login event. Runs off the scheduler goroutine.
func (s *Session) Login() bool {
	s.ioMu.Lock()
	cmd := s.conn.DoLogin(s.info.EffectiveNickname(), s.info.Username, s.info.Password, s.bot.clientName)
	if cmd == transport.CmdFailure {
		s.ioMu.Unlock()
		return false
	}
	_, ok := s.waitForEventLocked([]ttevent.Code{ttevent.CodeCmdMyselfLoggedIn}, defaultWait)
	s.ioMu.Unlock()
	if !ok {
		return false
	}
	s.stateMu.Lock()
	s.loggedIn = true
	s.stateMu.Unlock()
	s.bot.Dispatch(ttevent.KindLogin, s.serverRef())

	if !s.muxedAudio {
		s.conn.EnableAudioEvents(transport.MuxedSourceID, false)
		s.logger.Info("muxed audio events disabled at native layer")
	}
	if id := s.info.JoinChannelID; id > 0 {
		s.conn.DoJoinChannelByID(id, s.info.JoinChannelPassword)
	}
	s.markInit()
	return true
}

// Logout logs out of the server. The session handle stays usable.
func (s *Session) Logout() bool {
	cmd := s.conn.DoLogout()
	s.stateMu.Lock()
	s.loggedIn = false
	s.stateMu.Unlock()
	return cmd != transport.CmdFailure
}

// Disconnect drops the connection. Idempotent: disconnecting an already
// disconnected session is a no-op at the native layer.
func (s *Session) Disconnect() {
	s.conn.Disconnect()
	s.setState(false, false)
}

// InitialConnectLoop repeatedly attempts connect then login, sleeping the
// backoff delay between failed rounds. It resets the backoff before the
// first attempt and again on success. Returns false as soon as the backoff
// signals exhaustion or ctx is done.
func (s *Session) InitialConnectLoop(ctx context.Context) bool {
	s.logger.Info("attempting initial connection")
	s.backoff.Reset()

	for {
		if s.Connect() {
			s.logger.Info("connected, attempting login")
			if s.Login() {
				s.logger.Info("logged in")
				s.backoff.Reset()
				return true
			}
			s.logger.Warn("login failed after successful connection")
		} else {
			s.logger.Warn("connection attempt failed")
		}

		delay, ok := s.backoff.Delay()
		if !ok {
			s.logger.Error("max retries exceeded for initial connection, stopping attempts")
			return false
		}
		s.logger.Info("retrying initial connection", "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return false
		}
	}
}

// ForceReconnect resets the backoff and re-runs the initial connect loop,
// disconnecting first if currently connected. Useful after backoff
// exhaustion left the session inert. It claims the same guard as the
// reconnection task: the session backoff has one owner at a time, so a
// force while a task is active reports false without touching anything.
func (s *Session) ForceReconnect(ctx context.Context) bool {
	if !s.reconnecting.CompareAndSwap(false, true) {
		s.logger.Warn("reconnection task already active, not forcing another")
		return false
	}
	defer s.reconnecting.Store(false)

	s.logger.Info("forcing reconnect attempt")
	if s.Connected() {
		s.Disconnect()
	}
	return s.InitialConnectLoop(ctx)
}

// maybeReconnect starts the reconnection task if reconnection is enabled
// and none is active. Called from the pump on a loss trigger.
func (s *Session) maybeReconnect() {
	if !s.reconnectEnabled {
		return
	}
	if !s.reconnecting.CompareAndSwap(false, true) {
		s.logger.Debug("reconnection task already active")
		return
	}
	go s.reconnectLoop()
}

// reconnectLoop re-drives disconnect → connect → login until success or
// backoff exhaustion. The active guard is cleared on every exit path so a
// future loss can start a new task.
func (s *Session) reconnectLoop() {
	defer s.reconnecting.Store(false)

	for {
		delay, ok := s.backoff.Delay()
		if !ok {
			s.logger.Error("max retries exceeded for reconnect, session is now inert")
			return
		}
		s.logger.Info("retrying reconnect", "delay", delay, "attempt", s.backoff.Attempts())
		select {
		case <-time.After(delay):
		case <-s.ctx.Done():
			return
		}

		s.Disconnect()
		if s.Connect() {
			s.logger.Info("re-established connection, attempting login")
			if s.Login() {
				s.logger.Info("reconnected and logged in")
				s.backoff.Reset()
				return
			}
			s.logger.Warn("login failed after successful reconnect")
		} else {
			s.logger.Warn("reconnect attempt failed", "attempt", s.backoff.Attempts())
		}
	}
}

// Reconnecting reports whether a reconnection task is currently active.
func (s *Session) Reconnecting() bool { return s.reconnecting.Load() }

// BackoffAttempts returns the session backoff's attempt count. Exposed for
// observability.
func (s *Session) BackoffAttempts() int { return s.backoff.Attempts() }
