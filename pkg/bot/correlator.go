package bot

import (
	"time"

	"github.com/lightforgemedia/go-talkbot/pkg/transport"
	"github.com/lightforgemedia/go-talkbot/pkg/ttevent"
)

// The correlator turns a fire-and-forget native command into a
// synchronous-looking wait. Callers hold the session's handle lock from
// before the command is issued until the wait resolves, so the message
// pump skips its iterations for the whole exchange and cannot swallow the
// verdict event. The primitives poll against one absolute deadline,
// recomputing the remaining budget on every pass. They must run off the
// scheduler goroutine.

// waitForEventLocked polls the inbound source until an event whose code is
// in codes arrives, returning (event, true), or (zero, false) once the
// deadline passes or the handle dies. Non-matching events are consumed and
// dropped for the duration of the wait. Caller holds ioMu.
func (s *Session) waitForEventLocked(codes []ttevent.Code, timeout time.Duration) (ttevent.Event, bool) {
	deadline := time.Now().Add(timeout)
	for {
		remain := time.Until(deadline)
		if remain <= 0 {
			return ttevent.Event{Code: ttevent.CodeNone}, false
		}
		ev, err := s.conn.GetMessage(remain)
		if err != nil {
			// Dead handle: the caller treats this like a failed attempt.
			return ttevent.Event{Code: ttevent.CodeNone}, false
		}
		for _, c := range codes {
			if ev.Code == c {
				return ev, true
			}
		}
	}
}

// waitForCommandLocked polls until the success event correlated to cmdID
// arrives, ignoring all other success events. An explicit error event for
// the same id short-circuits immediately: the error payload is returned
// with ok false without waiting out the deadline. Caller holds ioMu.
func (s *Session) waitForCommandLocked(cmdID int, timeout time.Duration) (ttevent.Event, bool) {
	deadline := time.Now().Add(timeout)
	for {
		remain := time.Until(deadline)
		if remain <= 0 {
			return ttevent.Event{Code: ttevent.CodeNone}, false
		}
		ev, err := s.conn.GetMessage(remain)
		if err != nil {
			return ttevent.Event{Code: ttevent.CodeNone}, false
		}
		switch ev.Code {
		case ttevent.CodeCmdSuccess:
			if ev.CommandID() == cmdID {
				return ev, true
			}
		case ttevent.CodeCmdError:
			if ev.CommandID() == cmdID {
				return ev, false
			}
		}
	}
}

// command runs one correlated command under the handle lock and maps the
// outcome to the package error vocabulary.
func (s *Session) command(issue func() transport.CmdID, timeout time.Duration) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	cmd := issue()
	if cmd == transport.CmdFailure {
		return ErrCommandRejected
	}
	ev, ok := s.waitForCommandLocked(int(cmd), timeout)
	if ok {
		return nil
	}
	if ev.Err == nil {
		return ErrCommandTimeout
	}
	switch ev.Err.Number {
	case ttevent.CmdErrNotLoggedIn:
		return ErrNotLoggedIn
	case ttevent.CmdErrNotAuthorized:
		return ErrPermissionDenied
	}
	return ev.Err
}
