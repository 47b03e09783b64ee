package bot

import "errors"

var (
	// ErrInvalidHandler is returned by On when the registered value is not
	// an independently schedulable function.
	ErrInvalidHandler = errors.New("bot: handler must be a non-nil function")

	// ErrNotRunning is returned by operations that need the event scheduler
	// (Run) to be active, such as the enumeration calls that collect their
	// results through the message pump.
	ErrNotRunning = errors.New("bot: event scheduler is not running")

	// ErrAlreadyRunning is returned by Run when a scheduler loop is active.
	ErrAlreadyRunning = errors.New("bot: already running")

	// ErrNoTransport is returned by AddServer when no transport factory was
	// configured.
	ErrNoTransport = errors.New("bot: no transport factory configured")

	// ErrPermissionDenied is the mapped form of a not-authorized command
	// error. It is surfaced to the immediate caller and never routed
	// through the reconnection machinery.
	ErrPermissionDenied = errors.New("bot: permission denied")

	// ErrNotLoggedIn is the mapped form of a not-logged-in command error.
	ErrNotLoggedIn = errors.New("bot: not logged in")

	// ErrCommandTimeout indicates a command produced neither a success nor
	// an error event before its deadline.
	ErrCommandTimeout = errors.New("bot: command timed out")

	// ErrCommandRejected indicates the native layer refused to issue the
	// command at all.
	ErrCommandRejected = errors.New("bot: command rejected by native layer")

	// ErrWaitTimeout is returned by WaitFor when no matching event arrived
	// before the context deadline.
	ErrWaitTimeout = errors.New("bot: wait timed out")
)
