package bot

import (
	"context"
	"time"

	"github.com/lightforgemedia/go-talkbot/pkg/transport"
	"github.com/lightforgemedia/go-talkbot/pkg/ttevent"
)

// cmdWait bounds the completion wait of a correlated command.
const cmdWait = 2 * time.Second

// settleWait is how long the enumeration calls let reply events trickle in
// through the pump after the command was issued.
const settleWait = time.Second

// ChangeNickname changes the session's own nickname.
func (s *Session) ChangeNickname(nickname string) error {
	return s.command(func() transport.CmdID {
		return s.conn.DoChangeNickname(nickname)
	}, cmdWait)
}

// ChangeStatus sets the session's status flags and status message.
func (s *Session) ChangeStatus(statusFlags int, statusMessage string) error {
	return s.command(func() transport.CmdID {
		return s.conn.DoChangeStatus(statusFlags, statusMessage)
	}, cmdWait)
}

// JoinChannelByID joins the channel with the given id.
func (s *Session) JoinChannelByID(channelID int, password string) error {
	return s.command(func() transport.CmdID {
		return s.conn.DoJoinChannelByID(channelID, password)
	}, cmdWait)
}

// LeaveChannel leaves the current channel.
func (s *Session) LeaveChannel() error {
	return s.command(s.conn.DoLeaveChannel, cmdWait)
}

// KickUser removes a user from a channel, or from the server when
// channelID is 0. Requires kick rights; without them the call resolves to
// ErrPermissionDenied.
func (s *Session) KickUser(userID, channelID int) error {
	return s.command(func() transport.CmdID {
		return s.conn.DoKickUser(userID, channelID)
	}, cmdWait)
}

// MoveUser moves a user into a channel. Requires move rights; without
// them the call resolves to ErrPermissionDenied.
func (s *Session) MoveUser(userID, channelID int) error {
	return s.command(func() transport.CmdID {
		return s.conn.DoMoveUser(userID, channelID)
	}, cmdWait)
}

// BanUser bans a user from a channel, or from the server when channelID
// is 0.
func (s *Session) BanUser(userID, channelID int) error {
	return s.command(func() transport.CmdID {
		return s.conn.DoBanUser(userID, channelID)
	}, cmdWait)
}

// UnbanUser lifts a ban by IP address, from a channel or from the server
// when channelID is 0.
func (s *Session) UnbanUser(ip string, channelID int) error {
	return s.command(func() transport.CmdID {
		return s.conn.DoUnbanUser(ip, channelID)
	}, cmdWait)
}

// CreateUserAccount registers a server account. userType is one of the
// transport.UserType constants.
func (s *Session) CreateUserAccount(username, password string, userType int, note string) error {
	return s.command(func() transport.CmdID {
		return s.conn.DoNewUserAccount(username, password, userType, note)
	}, cmdWait)
}

// DeleteUserAccount removes a server account by username.
func (s *Session) DeleteUserAccount(username string) error {
	return s.command(func() transport.CmdID {
		return s.conn.DoDeleteUserAccount(username)
	}, cmdWait)
}

// SendUserMessage sends a private text message to one user. Delivery is
// fire and forget; only outright native rejection is reported.
func (s *Session) SendUserMessage(userID int, text string) error {
	if s.conn.DoTextMessage(transport.MsgTypeUser, userID, text) == transport.CmdFailure {
		return ErrCommandRejected
	}
	return nil
}

// SendChannelMessage sends a text message to a channel.
func (s *Session) SendChannelMessage(channelID int, text string) error {
	if s.conn.DoTextMessage(transport.MsgTypeChannel, channelID, text) == transport.CmdFailure {
		return ErrCommandRejected
	}
	return nil
}

// SendBroadcast sends a server-wide broadcast message. Requires broadcast
// rights at the server.
func (s *Session) SendBroadcast(text string) error {
	if s.conn.DoTextMessage(transport.MsgTypeBroadcast, 0, text) == transport.CmdFailure {
		return ErrCommandRejected
	}
	return nil
}

// ListUserAccounts enumerates the server's registered accounts. The reply
// records arrive as individual pump events, so the scheduler must be
// running; the call issues the command and then waits a settle window for
// the pump to accumulate the replies before snapshotting. A correlated
// wait here would starve the pump of the very events being collected.
func (s *Session) ListUserAccounts(ctx context.Context) ([]ttevent.AccountRef, error) {
	if !s.bot.running.Load() {
		return nil, ErrNotRunning
	}
	s.accMu.Lock()
	s.accounts = nil
	s.accMu.Unlock()

	if s.conn.DoListUserAccounts(0, 1_000_000) == transport.CmdFailure {
		return nil, ErrCommandRejected
	}
	select {
	case <-time.After(settleWait):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.accMu.Lock()
	out := append([]ttevent.AccountRef(nil), s.accounts...)
	s.accMu.Unlock()
	return out, nil
}

// ListBans enumerates the server's ban records. channelID 0 selects
// server-wide bans. Same accumulation contract as ListUserAccounts.
func (s *Session) ListBans(ctx context.Context, channelID int) ([]ttevent.BanRef, error) {
	if !s.bot.running.Load() {
		return nil, ErrNotRunning
	}
	s.accMu.Lock()
	s.bans = nil
	s.accMu.Unlock()

	if s.conn.DoListBans(channelID, 0, 1_000_000) == transport.CmdFailure {
		return nil, ErrCommandRejected
	}
	select {
	case <-time.After(settleWait):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.accMu.Lock()
	out := append([]ttevent.BanRef(nil), s.bans...)
	s.accMu.Unlock()
	return out, nil
}

// ServerStatistics queries the server's usage counters and waits for the
// statistics reply.
func (s *Session) ServerStatistics() (ttevent.StatsRef, error) {
	s.ioMu.Lock()
	if s.conn.DoQueryServerStatistics() == transport.CmdFailure {
		s.ioMu.Unlock()
		return ttevent.StatsRef{}, ErrCommandRejected
	}
	ev, ok := s.waitForEventLocked([]ttevent.Code{ttevent.CodeCmdServerStatistics}, cmdWait)
	s.ioMu.Unlock()
	if !ok {
		return ttevent.StatsRef{}, ErrCommandTimeout
	}
	return ttevent.StatsRef{Raw: ev.Payload}, nil
}
