// Package transport defines the boundary between the session core and the
// native protocol layer. A Conn is one session handle: a blocking inbound
// event poll plus fire-and-forget command issuance. Implementations live
// elsewhere (see wsbridge); tests use a scriptable fake.
package transport

import (
	"errors"
	"time"

	"github.com/lightforgemedia/go-talkbot/pkg/ttevent"
)

// CmdID is the correlation id returned by a fire-and-forget command call.
type CmdID int

// CmdFailure is the sentinel returned when the native layer rejected the
// command outright, before anything was sent.
const CmdFailure CmdID = -1

// MuxedSourceID is the pseudo user id identifying the mixed-audio stream.
const MuxedSourceID = -2

// ErrConnClosed is returned by GetMessage once the session handle is dead.
// The session core treats it as connectivity loss, never as a transient
// condition.
var ErrConnClosed = errors.New("transport: connection closed")

// Conn is one session handle to the native layer.
//
// GetMessage blocks for at most timeout and returns the next inbound event,
// or an event with CodeNone if nothing arrived. It returns an error only
// when the handle is closed or invalid; transient read failures are
// reported as CodeNone. Callers must serialize GetMessage calls.
type Conn interface {
	Connect(host string, tcpPort, udpPort int, encrypted bool) bool
	Disconnect() bool
	GetMessage(timeout time.Duration) (ttevent.Event, error)

	DoLogin(nickname, username, password, clientName string) CmdID
	DoLogout() CmdID
	DoChangeNickname(nickname string) CmdID
	DoChangeStatus(statusFlags int, statusMessage string) CmdID
	DoJoinChannelByID(channelID int, password string) CmdID
	DoLeaveChannel() CmdID
	DoKickUser(userID, channelID int) CmdID
	DoMoveUser(userID, channelID int) CmdID
	DoBanUser(userID, channelID int) CmdID
	DoUnbanUser(ip string, channelID int) CmdID
	DoNewUserAccount(username, password string, userType int, note string) CmdID
	DoDeleteUserAccount(username string) CmdID
	DoListUserAccounts(index, count int) CmdID
	DoListBans(channelID, index, count int) CmdID
	DoQueryServerStatistics() CmdID
	DoTextMessage(msgType, target int, text string) CmdID

	// MyUserID returns the session's own user id once logged in, 0 before.
	MyUserID() int

	// EnableAudioEvents toggles audio-block delivery for one source id
	// (MuxedSourceID selects the mixed stream).
	EnableAudioEvents(sourceID int, enable bool) bool

	// AcquireAudioBlock returns the pending audio block for a source. The
	// returned slice is only valid until ReleaseAudioBlock; callers copy it
	// while holding their audio lock.
	AcquireAudioBlock(sourceID int) ([]byte, bool)
	ReleaseAudioBlock(sourceID int)

	Close() error
}

// Text message types understood by DoTextMessage.
const (
	MsgTypeUser      = 1
	MsgTypeChannel   = 2
	MsgTypeBroadcast = 3
	MsgTypeCustom    = 4
)

// User account types understood by DoNewUserAccount.
const (
	UserTypeDefault = 0x1
	UserTypeAdmin   = 0x2
)
