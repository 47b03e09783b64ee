package bot

import (
	"github.com/lightforgemedia/go-talkbot/pkg/transport"
	"github.com/lightforgemedia/go-talkbot/pkg/ttevent"
)

// pumpOnce performs one bounded-timeout poll of the session's inbound event
// source and fans the event out. It is called from the Bot's scheduler
// goroutine and must never block beyond the poll interval: handler
// execution is scheduled by the dispatcher, never run inline, and the
// reconnection task runs on its own goroutine.
func (s *Session) pumpOnce() {
	// The correlator and the pump never perform blocking reads on the same
	// handle concurrently; while a wait is in flight this iteration is
	// skipped.
	if !s.ioMu.TryLock() {
		return
	}
	ev, err := s.conn.GetMessage(s.bot.pollInterval)
	s.ioMu.Unlock()
	if err != nil {
		// Only a closed/invalid handle surfaces here; treat it as
		// connectivity loss.
		s.handleConnectionLost()
		return
	}
	if ev.Code == ttevent.CodeNone {
		return
	}
	s.bot.publishTap(ev)
	s.translate(ev)
}

func (s *Session) handleConnectionLost() {
	// Loss while already disconnected (e.g. between reconnect attempts)
	// must not dispatch or re-trigger.
	if !s.Connected() {
		return
	}
	s.setState(false, false)
	s.bot.Dispatch(ttevent.KindConnectionLost, s.serverRef())
	s.logger.Info("connection lost")
	s.maybeReconnect()
}

// translate maps one raw event onto dispatched kinds or pump side effects.
func (s *Session) translate(ev ttevent.Event) {
	switch ev.Code {
	case ttevent.CodeUserFirstVoicePacket:
		return

	case ttevent.CodeCmdMyselfKicked:
		s.setState(false, false)
		s.bot.Dispatch(ttevent.KindKickedFromChannel, ttevent.ChannelRef{ID: ev.Source})
		if s.reconnectEnabled {
			s.logger.Info("kicked from server, attempting to reconnect")
		}
		s.maybeReconnect()

	case ttevent.CodeConLost:
		s.setState(false, false)
		s.bot.Dispatch(ttevent.KindConnectionLost, s.serverRef())
		if s.reconnectEnabled {
			s.logger.Info("connection lost, attempting to reconnect")
		}
		s.maybeReconnect()

	case ttevent.CodeUserStateChange:
		// Voice-state changes toggle per-user audio delivery directly on
		// the native layer; this is a pump side effect, not a dispatched
		// event.
		s.conn.EnableAudioEvents(ev.Source, ev.VoiceActive())

	case ttevent.CodeUserAudioBlock:
		s.deliverAudioBlock(ev.Source)

	case ttevent.CodeCmdUserJoined:
		user := ttevent.UserRef{Raw: ev.Payload}
		if user.UserID() == s.conn.MyUserID() && s.muxedAudio {
			s.conn.EnableAudioEvents(transport.MuxedSourceID, true)
		}
		s.bot.Dispatch(ttevent.KindUserJoin, user, ttevent.ChannelRef{ID: user.ChannelID()})

	case ttevent.CodeCmdUserLeft:
		user := ttevent.UserRef{Raw: ev.Payload}
		if user.UserID() == s.conn.MyUserID() && s.muxedAudio {
			s.conn.EnableAudioEvents(transport.MuxedSourceID, false)
		}
		s.bot.Dispatch(ttevent.KindUserLeft, user, ttevent.ChannelRef{ID: ev.Source})

	case ttevent.CodeCmdUserLoggedIn:
		s.bot.Dispatch(ttevent.KindUserLogin, ttevent.UserRef{Raw: ev.Payload})
	case ttevent.CodeCmdUserLoggedOut:
		s.bot.Dispatch(ttevent.KindUserLogout, ttevent.UserRef{Raw: ev.Payload})
	case ttevent.CodeCmdUserUpdate:
		s.bot.Dispatch(ttevent.KindUserUpdate, ttevent.UserRef{Raw: ev.Payload})

	case ttevent.CodeCmdUserTextMsg:
		s.bot.Dispatch(ttevent.KindMessage, ttevent.MessageRef{Raw: ev.Payload})

	case ttevent.CodeCmdChannelNew:
		s.bot.Dispatch(ttevent.KindChannelNew, ttevent.ChannelRef{ID: ev.Source, Raw: ev.Payload})
	case ttevent.CodeCmdChannelUpdate:
		s.bot.Dispatch(ttevent.KindChannelUpdate, ttevent.ChannelRef{ID: ev.Source, Raw: ev.Payload})
	case ttevent.CodeCmdChannelRemove:
		s.bot.Dispatch(ttevent.KindChannelDelete, ttevent.ChannelRef{ID: ev.Source, Raw: ev.Payload})

	case ttevent.CodeCmdFileNew:
		s.bot.Dispatch(ttevent.KindFileNew, ttevent.FileRef{Raw: ev.Payload})
	case ttevent.CodeCmdFileRemove:
		s.bot.Dispatch(ttevent.KindFileDelete, ttevent.FileRef{Raw: ev.Payload})

	case ttevent.CodeCmdServerUpdate:
		s.bot.Dispatch(ttevent.KindServerUpdate, ttevent.ServerRef{Endpoint: s.info, Raw: ev.Payload})
	case ttevent.CodeCmdServerStatistics:
		s.bot.Dispatch(ttevent.KindServerStatistics, ttevent.StatsRef{Raw: ev.Payload})

	case ttevent.CodeCmdUserAccountNew:
		s.bot.Dispatch(ttevent.KindUserAccountNew, ttevent.AccountRef{Raw: ev.Payload})
	case ttevent.CodeCmdUserAccountRemove:
		s.bot.Dispatch(ttevent.KindUserAccountRemove, ttevent.AccountRef{Raw: ev.Payload})

	case ttevent.CodeCmdUserAccount:
		// Enumeration reply; accumulated for ListUserAccounts, not
		// dispatched to user handlers.
		s.accMu.Lock()
		s.accounts = append(s.accounts, ttevent.AccountRef{Raw: ev.Payload})
		s.accMu.Unlock()
	case ttevent.CodeCmdBannedUser:
		s.accMu.Lock()
		s.bans = append(s.bans, ttevent.BanRef{Raw: ev.Payload})
		s.accMu.Unlock()

	case ttevent.CodeCmdProcessing, ttevent.CodeCmdSuccess, ttevent.CodeCmdError, ttevent.CodeAudioInput:
		// Correlated by waitForCommand when someone is waiting; otherwise
		// intentionally dropped.

	default:
		s.logger.Warn("unhandled event", "code", ev.Code)
	}
}

// deliverAudioBlock runs the acquire/copy/release sequence under the
// dedicated audio lock so it appears atomic to concurrent pump iterations,
// then dispatches the copied block.
func (s *Session) deliverAudioBlock(source int) {
	s.audioMu.Lock()
	block, ok := s.conn.AcquireAudioBlock(source)
	var data []byte
	if ok {
		data = append([]byte(nil), block...)
		s.conn.ReleaseAudioBlock(source)
	}
	s.audioMu.Unlock()
	if !ok {
		return
	}
	ref := ttevent.AudioRef{Source: source, Data: data}
	if source == transport.MuxedSourceID {
		s.bot.Dispatch(ttevent.KindMuxedAudio, ref)
		return
	}
	s.bot.Dispatch(ttevent.KindUserAudio, ref)
}
