// Package ttevent defines the event records exchanged between the native
// transport layer and the session core, plus the dispatch kinds exposed to
// user handlers. The core reads only an event's code and correlation id;
// payload internals are left to the typed accessors and to domain wrappers.
package ttevent

import (
	"encoding/json"
	"fmt"
)

// Code identifies a raw event as produced by the transport layer.
type Code string

const (
	CodeNone Code = "none" // no event arrived within the poll timeout

	// Connectivity.
	CodeConSuccess    Code = "con_success"
	CodeConFailed     Code = "con_failed"
	CodeConCryptError Code = "con_crypt_error"
	CodeConLost       Code = "con_lost"

	// Command correlation. Source carries the command id.
	CodeCmdProcessing Code = "cmd_processing"
	CodeCmdSuccess    Code = "cmd_success"
	CodeCmdError      Code = "cmd_error"

	// Own session.
	CodeCmdMyselfLoggedIn Code = "cmd_myself_loggedin"
	CodeCmdMyselfKicked   Code = "cmd_myself_kicked"

	// Presence.
	CodeCmdUserJoined    Code = "cmd_user_joined"
	CodeCmdUserLeft      Code = "cmd_user_left"
	CodeCmdUserLoggedIn  Code = "cmd_user_loggedin"
	CodeCmdUserLoggedOut Code = "cmd_user_loggedout"
	CodeCmdUserUpdate    Code = "cmd_user_update"

	// Messaging.
	CodeCmdUserTextMsg Code = "cmd_user_textmsg"

	// Channels and files.
	CodeCmdChannelNew    Code = "cmd_channel_new"
	CodeCmdChannelUpdate Code = "cmd_channel_update"
	CodeCmdChannelRemove Code = "cmd_channel_remove"
	CodeCmdFileNew       Code = "cmd_file_new"
	CodeCmdFileRemove    Code = "cmd_file_remove"

	// Server.
	CodeCmdServerUpdate     Code = "cmd_server_update"
	CodeCmdServerStatistics Code = "cmd_server_statistics"

	// Account management. The plain account/banned-user codes are
	// enumeration replies accumulated internally, never dispatched.
	CodeCmdUserAccountNew    Code = "cmd_useraccount_new"
	CodeCmdUserAccountRemove Code = "cmd_useraccount_remove"
	CodeCmdUserAccount       Code = "cmd_useraccount"
	CodeCmdBannedUser        Code = "cmd_banneduser"

	// Audio. Source carries the originating user id.
	CodeUserStateChange      Code = "user_statechange"
	CodeUserAudioBlock       Code = "user_audioblock"
	CodeUserFirstVoicePacket Code = "user_firstvoicepacket"
	CodeAudioInput           Code = "audio_input"
)

// Kind names an event as dispatched to user handlers and waiters.
type Kind string

const (
	KindReady Kind = "ready"

	KindConnect           Kind = "connect"
	KindConnectFailed     Kind = "connect_failed"
	KindConnectCryptError Kind = "connect_crypt_error"
	KindConnectionLost    Kind = "connection_lost"

	KindLogin             Kind = "login"
	KindLogout            Kind = "logout"
	KindKickedFromChannel Kind = "kicked_from_channel"

	KindUserJoin   Kind = "user_join"
	KindUserLeft   Kind = "user_left"
	KindUserLogin  Kind = "user_login"
	KindUserLogout Kind = "user_logout"
	KindUserUpdate Kind = "user_update"

	KindMessage Kind = "message"

	KindChannelNew    Kind = "channel_new"
	KindChannelUpdate Kind = "channel_update"
	KindChannelDelete Kind = "channel_delete"

	KindFileNew    Kind = "file_new"
	KindFileDelete Kind = "file_delete"

	KindServerUpdate     Kind = "server_update"
	KindServerStatistics Kind = "server_statistics"

	KindUserAccountNew    Kind = "user_account_new"
	KindUserAccountRemove Kind = "user_account_remove"

	KindUserAudio  Kind = "user_audio"
	KindMuxedAudio Kind = "muxed_audio"
)

// CmdError is the payload of a CodeCmdError event.
type CmdError struct {
	Number  int    `json:"number"`
	Message string `json:"message,omitempty"`
}

func (e *CmdError) Error() string {
	return fmt.Sprintf("command error %d: %s", e.Number, e.Message)
}

// Command error numbers recognized by the session core.
const (
	CmdErrNotLoggedIn       = 2000
	CmdErrNotAuthorized     = 2001
	CmdErrUserNotFound      = 2002
	CmdErrChannelNotFound   = 2003
	CmdErrAccountNotFound   = 2004
	CmdErrAlreadyExists     = 2005
	CmdErrIncorrectPassword = 2006
)

// Event is one tagged, immutable record produced by the transport layer.
// Source is the correlation id: a command id for cmd_success/cmd_error, a
// user or channel id for presence and audio events, zero otherwise.
type Event struct {
	Code    Code            `json:"code"`
	Source  int             `json:"source,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Err     *CmdError       `json:"error,omitempty"`
}

// CommandID returns the command id this event correlates to. Only meaningful
// for cmd_success and cmd_error events.
func (e Event) CommandID() int { return e.Source }

// VoiceActive reports whether a user_statechange event carries an active
// voice stream. Returns false for any other event or a malformed payload.
func (e Event) VoiceActive() bool {
	if e.Code != CodeUserStateChange {
		return false
	}
	var s struct {
		Voice bool `json:"voice"`
	}
	if err := json.Unmarshal(e.Payload, &s); err != nil {
		return false
	}
	return s.Voice
}

// ServerInfo holds everything needed to connect and log in to one endpoint.
type ServerInfo struct {
	Host                string `json:"host" toml:"host"`
	TCPPort             int    `json:"tcp_port" toml:"tcp_port"`
	UDPPort             int    `json:"udp_port" toml:"udp_port"`
	Username            string `json:"username" toml:"username"`
	Password            string `json:"password" toml:"password"`
	Encrypted           bool   `json:"encrypted" toml:"encrypted"`
	Nickname            string `json:"nickname" toml:"nickname"`
	JoinChannelID       int    `json:"join_channel_id" toml:"join_channel_id"`
	JoinChannelPassword string `json:"join_channel_password" toml:"join_channel_password"`
}

// EffectiveNickname returns the nickname, falling back to the username.
func (s ServerInfo) EffectiveNickname() string {
	if s.Nickname != "" {
		return s.Nickname
	}
	return s.Username
}

func (s ServerInfo) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.TCPPort)
}
