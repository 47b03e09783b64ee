package testutil

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lightforgemedia/go-talkbot/pkg/transport"
	"github.com/lightforgemedia/go-talkbot/pkg/ttevent"
)

// FakeConn is a scriptable in-memory transport.Conn. Tests script the
// verdicts of connect and login attempts, push inbound events, and inspect
// the recorded call log. All methods are safe for concurrent use.
type FakeConn struct {
	mu sync.Mutex

	// ConnectScript holds the verdict for each successive Connect call;
	// once exhausted the last entry repeats. Empty means always succeed.
	ConnectScript []bool
	connectCalls  int

	// LoginScript works like ConnectScript for DoLogin.
	LoginScript []bool
	loginCalls  int

	// UserID is the value reported by MyUserID.
	UserID int

	// AudioBlocks maps a source id to the block AcquireAudioBlock hands
	// out.
	AudioBlocks map[int][]byte

	// AutoAck, when set, makes every issued command immediately push a
	// matching cmd_success event. CmdErr, when non-nil, pushes a matching
	// cmd_error instead. RejectCommands makes every issue call return
	// transport.CmdFailure.
	AutoAck        bool
	CmdErr         *ttevent.CmdError
	RejectCommands bool

	events chan ttevent.Event
	closed chan struct{}
	once   sync.Once

	nextCmd int
	calls   []string
}

// NewFakeConn returns a fake with a generously buffered inbound queue.
func NewFakeConn() *FakeConn {
	return &FakeConn{
		UserID: 1,
		events: make(chan ttevent.Event, 256),
		closed: make(chan struct{}),
	}
}

// Push injects one inbound event.
func (f *FakeConn) Push(ev ttevent.Event) {
	select {
	case f.events <- ev:
	case <-f.closed:
	}
}

// PushCode injects an inbound event with just a code and source id.
func (f *FakeConn) PushCode(code ttevent.Code, source int) {
	f.Push(ttevent.Event{Code: code, Source: source})
}

// PushJSON injects an inbound event whose payload is the JSON encoding of v.
func (f *FakeConn) PushJSON(code ttevent.Code, source int, v any) {
	raw, _ := json.Marshal(v)
	f.Push(ttevent.Event{Code: code, Source: source, Payload: raw})
}

// Calls returns a snapshot of the recorded call log.
func (f *FakeConn) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount returns how many recorded calls have the given name prefix.
func (f *FakeConn) CallCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (f *FakeConn) record(format string, args ...any) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	f.mu.Unlock()
}

func scripted(script []bool, call int) bool {
	if len(script) == 0 {
		return true
	}
	if call >= len(script) {
		return script[len(script)-1]
	}
	return script[call]
}

func (f *FakeConn) Connect(host string, tcpPort, udpPort int, encrypted bool) bool {
	f.mu.Lock()
	ok := scripted(f.ConnectScript, f.connectCalls)
	f.connectCalls++
	f.mu.Unlock()
	f.record("Connect(%s:%d)", host, tcpPort)
	if ok {
		f.PushCode(ttevent.CodeConSuccess, 0)
	} else {
		f.PushCode(ttevent.CodeConFailed, 0)
	}
	return true
}

func (f *FakeConn) Disconnect() bool {
	f.record("Disconnect")
	return true
}

func (f *FakeConn) GetMessage(timeout time.Duration) (ttevent.Event, error) {
	select {
	case <-f.closed:
		return ttevent.Event{Code: ttevent.CodeNone}, transport.ErrConnClosed
	default:
	}
	select {
	case ev := <-f.events:
		return ev, nil
	case <-f.closed:
		return ttevent.Event{Code: ttevent.CodeNone}, transport.ErrConnClosed
	case <-time.After(timeout):
		return ttevent.Event{Code: ttevent.CodeNone}, nil
	}
}

func (f *FakeConn) issue(format string, args ...any) transport.CmdID {
	f.mu.Lock()
	if f.RejectCommands {
		f.mu.Unlock()
		f.record(format+" [rejected]", args...)
		return transport.CmdFailure
	}
	f.nextCmd++
	id := transport.CmdID(f.nextCmd)
	autoAck, cmdErr := f.AutoAck, f.CmdErr
	f.mu.Unlock()
	f.record(format, args...)
	switch {
	case cmdErr != nil:
		f.Push(ttevent.Event{Code: ttevent.CodeCmdError, Source: int(id), Err: cmdErr})
	case autoAck:
		f.PushCode(ttevent.CodeCmdSuccess, int(id))
	}
	return id
}

func (f *FakeConn) DoLogin(nickname, username, password, clientName string) transport.CmdID {
	f.mu.Lock()
	ok := scripted(f.LoginScript, f.loginCalls)
	f.loginCalls++
	f.mu.Unlock()
	id := f.issue("DoLogin(%s)", username)
	if ok {
		f.PushCode(ttevent.CodeCmdMyselfLoggedIn, f.UserID)
	}
	return id
}

func (f *FakeConn) DoLogout() transport.CmdID {
	return f.issue("DoLogout")
}

func (f *FakeConn) DoChangeNickname(nickname string) transport.CmdID {
	return f.issue("DoChangeNickname(%s)", nickname)
}

func (f *FakeConn) DoChangeStatus(statusFlags int, statusMessage string) transport.CmdID {
	return f.issue("DoChangeStatus(%d,%s)", statusFlags, statusMessage)
}

func (f *FakeConn) DoJoinChannelByID(channelID int, password string) transport.CmdID {
	return f.issue("DoJoinChannelByID(%d)", channelID)
}

func (f *FakeConn) DoLeaveChannel() transport.CmdID {
	return f.issue("DoLeaveChannel")
}

func (f *FakeConn) DoKickUser(userID, channelID int) transport.CmdID {
	return f.issue("DoKickUser(%d,%d)", userID, channelID)
}

func (f *FakeConn) DoMoveUser(userID, channelID int) transport.CmdID {
	return f.issue("DoMoveUser(%d,%d)", userID, channelID)
}

func (f *FakeConn) DoBanUser(userID, channelID int) transport.CmdID {
	return f.issue("DoBanUser(%d,%d)", userID, channelID)
}

func (f *FakeConn) DoUnbanUser(ip string, channelID int) transport.CmdID {
	return f.issue("DoUnbanUser(%s,%d)", ip, channelID)
}

func (f *FakeConn) DoNewUserAccount(username, password string, userType int, note string) transport.CmdID {
	return f.issue("DoNewUserAccount(%s)", username)
}

func (f *FakeConn) DoDeleteUserAccount(username string) transport.CmdID {
	return f.issue("DoDeleteUserAccount(%s)", username)
}

func (f *FakeConn) DoListUserAccounts(index, count int) transport.CmdID {
	return f.issue("DoListUserAccounts")
}

func (f *FakeConn) DoListBans(channelID, index, count int) transport.CmdID {
	return f.issue("DoListBans(%d)", channelID)
}

func (f *FakeConn) DoQueryServerStatistics() transport.CmdID {
	return f.issue("DoQueryServerStatistics")
}

func (f *FakeConn) DoTextMessage(msgType, target int, text string) transport.CmdID {
	return f.issue("DoTextMessage(%d,%d,%s)", msgType, target, text)
}

func (f *FakeConn) MyUserID() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.UserID
}

func (f *FakeConn) EnableAudioEvents(sourceID int, enable bool) bool {
	f.record("EnableAudioEvents(%d,%t)", sourceID, enable)
	return true
}

func (f *FakeConn) AcquireAudioBlock(sourceID int) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("AcquireAudioBlock(%d)", sourceID))
	block, ok := f.AudioBlocks[sourceID]
	return block, ok
}

func (f *FakeConn) ReleaseAudioBlock(sourceID int) {
	f.record("ReleaseAudioBlock(%d)", sourceID)
}

// Close marks the handle dead; subsequent GetMessage calls return
// transport.ErrConnClosed.
func (f *FakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

var _ transport.Conn = (*FakeConn)(nil)
