// Package wsbridge implements transport.Conn over a WebSocket gateway. The
// gateway owns the native protocol stack; the bridge exchanges JSON
// envelopes with it: commands go out with a correlation id, events and
// audio frames come back on one inbound stream.
package wsbridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/lightforgemedia/go-talkbot/pkg/transport"
	"github.com/lightforgemedia/go-talkbot/pkg/ttevent"
)

const (
	defaultSendTimeout = 5 * time.Second
	defaultDialTimeout = 10 * time.Second
	inboundBuffer      = 256
)

// envelope is one outbound gateway command.
type envelope struct {
	Op     string         `json:"op"`
	CmdID  int            `json:"cmd_id,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// inbound is one gateway message: exactly one of the fields is set.
type inbound struct {
	Event *ttevent.Event `json:"event,omitempty"`
	Audio *audioFrame    `json:"audio,omitempty"`
}

// audioFrame carries one audio block; Data is base64 on the wire.
type audioFrame struct {
	Source int    `json:"source"`
	Data   []byte `json:"data"`
}

// Bridge is one gateway session handle. The WebSocket to the gateway lives
// for the handle's lifetime; Connect and Disconnect are protocol commands
// relayed to the native layer, not socket operations. Once the socket
// itself dies, GetMessage reports transport.ErrConnClosed and the handle
// cannot be revived.
type Bridge struct {
	url    string
	logger *slog.Logger

	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	sendMu      sync.Mutex
	sendTimeout time.Duration

	events  chan ttevent.Event
	nextCmd atomic.Int64
	userID  atomic.Int64

	audioMu sync.Mutex
	audio   map[int][]byte

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets a custom logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithSendTimeout bounds each outbound write.
func WithSendTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.sendTimeout = d
		}
	}
}

// Dial opens the gateway socket and starts the inbound read loop.
func Dial(ctx context.Context, url string, opts ...Option) (*Bridge, error) {
	b := &Bridge{
		url:         url,
		logger:      slog.Default(),
		sendTimeout: defaultSendTimeout,
		events:      make(chan ttevent.Event, inboundBuffer),
		audio:       make(map[int][]byte),
	}
	for _, opt := range opts {
		opt(b)
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, defaultDialTimeout)
	conn, httpResp, err := websocket.Dial(dialCtx, url, nil)
	dialCancel()
	if err != nil {
		if httpResp != nil {
			return nil, fmt.Errorf("wsbridge: dial %s: %w (status: %s)", url, err, httpResp.Status)
		}
		return nil, fmt.Errorf("wsbridge: dial %s: %w", url, err)
	}

	b.conn = conn
	b.ctx, b.cancel = context.WithCancel(context.Background())
	go b.readLoop()

	b.logger.Debug("gateway session established", "url", url)
	return b, nil
}

// Factory returns a transport factory dialing the same gateway for every
// endpoint, suitable for bot.WithTransport.
func Factory(url string, opts ...Option) func(ctx context.Context, info ttevent.ServerInfo) (transport.Conn, error) {
	return func(ctx context.Context, info ttevent.ServerInfo) (transport.Conn, error) {
		return Dial(ctx, url, opts...)
	}
}

func (b *Bridge) readLoop() {
	defer b.cancel()
	for {
		var msg inbound
		if err := wsjson.Read(b.ctx, b.conn, &msg); err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || b.ctx.Err() != nil {
				b.logger.Debug("gateway read loop closing", "err", err)
			} else {
				b.logger.Warn("gateway read error", "err", err)
			}
			return
		}
		switch {
		case msg.Event != nil:
			if msg.Event.Code == ttevent.CodeCmdMyselfLoggedIn {
				b.userID.Store(int64(msg.Event.Source))
			}
			b.deliver(*msg.Event)
		case msg.Audio != nil:
			b.audioMu.Lock()
			b.audio[msg.Audio.Source] = msg.Audio.Data
			b.audioMu.Unlock()
			b.deliver(ttevent.Event{Code: ttevent.CodeUserAudioBlock, Source: msg.Audio.Source})
		}
	}
}

func (b *Bridge) deliver(ev ttevent.Event) {
	select {
	case b.events <- ev:
	default:
		// The session drains this queue continuously; overflow means the
		// consumer is gone.
		b.logger.Warn("dropping inbound event, queue full", "code", ev.Code)
	}
}

// send relays one envelope to the gateway. Writes are serialized; a failed
// or timed-out write reports false.
func (b *Bridge) send(env envelope) bool {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()
	if b.ctx.Err() != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(b.ctx, b.sendTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, b.conn, env); err != nil {
		b.logger.Warn("gateway write failed", "op", env.Op, "err", err)
		return false
	}
	return true
}

// issue relays one correlated command and returns its id, or
// transport.CmdFailure when the relay itself failed.
func (b *Bridge) issue(op string, params map[string]any) transport.CmdID {
	id := int(b.nextCmd.Add(1))
	if !b.send(envelope{Op: op, CmdID: id, Params: params}) {
		return transport.CmdFailure
	}
	return transport.CmdID(id)
}

func (b *Bridge) Connect(host string, tcpPort, udpPort int, encrypted bool) bool {
	return b.send(envelope{Op: "connect", Params: map[string]any{
		"host":      host,
		"tcp_port":  tcpPort,
		"udp_port":  udpPort,
		"encrypted": encrypted,
	}})
}

func (b *Bridge) Disconnect() bool {
	return b.send(envelope{Op: "disconnect"})
}

func (b *Bridge) GetMessage(timeout time.Duration) (ttevent.Event, error) {
	select {
	case ev := <-b.events:
		return ev, nil
	default:
	}
	if b.ctx.Err() != nil {
		return ttevent.Event{Code: ttevent.CodeNone}, transport.ErrConnClosed
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-b.events:
		return ev, nil
	case <-b.ctx.Done():
		return ttevent.Event{Code: ttevent.CodeNone}, transport.ErrConnClosed
	case <-timer.C:
		return ttevent.Event{Code: ttevent.CodeNone}, nil
	}
}

func (b *Bridge) DoLogin(nickname, username, password, clientName string) transport.CmdID {
	return b.issue("login", map[string]any{
		"nickname":    nickname,
		"username":    username,
		"password":    password,
		"client_name": clientName,
	})
}

func (b *Bridge) DoLogout() transport.CmdID {
	return b.issue("logout", nil)
}

func (b *Bridge) DoChangeNickname(nickname string) transport.CmdID {
	return b.issue("change_nickname", map[string]any{"nickname": nickname})
}

func (b *Bridge) DoChangeStatus(statusFlags int, statusMessage string) transport.CmdID {
	return b.issue("change_status", map[string]any{
		"status_flags":   statusFlags,
		"status_message": statusMessage,
	})
}

func (b *Bridge) DoJoinChannelByID(channelID int, password string) transport.CmdID {
	return b.issue("join_channel", map[string]any{
		"channel_id": channelID,
		"password":   password,
	})
}

func (b *Bridge) DoLeaveChannel() transport.CmdID {
	return b.issue("leave_channel", nil)
}

func (b *Bridge) DoKickUser(userID, channelID int) transport.CmdID {
	return b.issue("kick_user", map[string]any{
		"user_id":    userID,
		"channel_id": channelID,
	})
}

func (b *Bridge) DoMoveUser(userID, channelID int) transport.CmdID {
	return b.issue("move_user", map[string]any{
		"user_id":    userID,
		"channel_id": channelID,
	})
}

func (b *Bridge) DoBanUser(userID, channelID int) transport.CmdID {
	return b.issue("ban_user", map[string]any{
		"user_id":    userID,
		"channel_id": channelID,
	})
}

func (b *Bridge) DoUnbanUser(ip string, channelID int) transport.CmdID {
	return b.issue("unban_user", map[string]any{
		"ip":         ip,
		"channel_id": channelID,
	})
}

func (b *Bridge) DoNewUserAccount(username, password string, userType int, note string) transport.CmdID {
	return b.issue("new_account", map[string]any{
		"username":  username,
		"password":  password,
		"user_type": userType,
		"note":      note,
	})
}

func (b *Bridge) DoDeleteUserAccount(username string) transport.CmdID {
	return b.issue("delete_account", map[string]any{"username": username})
}

func (b *Bridge) DoListUserAccounts(index, count int) transport.CmdID {
	return b.issue("list_accounts", map[string]any{"index": index, "count": count})
}

func (b *Bridge) DoListBans(channelID, index, count int) transport.CmdID {
	return b.issue("list_bans", map[string]any{
		"channel_id": channelID,
		"index":      index,
		"count":      count,
	})
}

func (b *Bridge) DoQueryServerStatistics() transport.CmdID {
	return b.issue("query_statistics", nil)
}

func (b *Bridge) DoTextMessage(msgType, target int, text string) transport.CmdID {
	return b.issue("text_message", map[string]any{
		"msg_type": msgType,
		"target":   target,
		"text":     text,
	})
}

func (b *Bridge) MyUserID() int {
	return int(b.userID.Load())
}

func (b *Bridge) EnableAudioEvents(sourceID int, enable bool) bool {
	return b.send(envelope{Op: "enable_audio", Params: map[string]any{
		"source": sourceID,
		"enable": enable,
	}})
}

func (b *Bridge) AcquireAudioBlock(sourceID int) ([]byte, bool) {
	b.audioMu.Lock()
	defer b.audioMu.Unlock()
	block, ok := b.audio[sourceID]
	return block, ok
}

func (b *Bridge) ReleaseAudioBlock(sourceID int) {
	b.audioMu.Lock()
	delete(b.audio, sourceID)
	b.audioMu.Unlock()
}

// Close tears the gateway socket down. Safe to call more than once.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.cancel()
		b.closeErr = b.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return b.closeErr
}

var _ transport.Conn = (*Bridge)(nil)
