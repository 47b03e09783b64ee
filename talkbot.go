// talkbot.go
package talkbot

import (
	"github.com/lightforgemedia/go-talkbot/pkg/backoff"
	"github.com/lightforgemedia/go-talkbot/pkg/bot"
	"github.com/lightforgemedia/go-talkbot/pkg/transport"
	"github.com/lightforgemedia/go-talkbot/pkg/ttevent"
)

// Re-export core types
type (
	Bot              = bot.Bot
	Session          = bot.Session
	Option           = bot.Option
	ServerOption     = bot.ServerOption
	Predicate        = bot.Predicate
	ErrorHook        = bot.ErrorHook
	TransportFactory = bot.TransportFactory
	BackoffConfig    = backoff.Config
	ServerInfo       = ttevent.ServerInfo
	Event            = ttevent.Event
	Kind             = ttevent.Kind
	Code             = ttevent.Code
	CmdError         = ttevent.CmdError
	Conn             = transport.Conn
)

// Re-export option constructors
var (
	WithLogger        = bot.WithLogger
	WithClientName    = bot.WithClientName
	WithTransport     = bot.WithTransport
	WithPollInterval  = bot.WithPollInterval
	WithYieldInterval = bot.WithYieldInterval
	WithErrorHook     = bot.WithErrorHook
	WithReconnect     = bot.WithReconnect
	WithMuxedAudio    = bot.WithMuxedAudio
	WithBackoff       = bot.WithBackoff
)

// Re-export error values
var (
	ErrInvalidHandler   = bot.ErrInvalidHandler
	ErrNotRunning       = bot.ErrNotRunning
	ErrAlreadyRunning   = bot.ErrAlreadyRunning
	ErrNoTransport      = bot.ErrNoTransport
	ErrPermissionDenied = bot.ErrPermissionDenied
	ErrNotLoggedIn      = bot.ErrNotLoggedIn
	ErrCommandTimeout   = bot.ErrCommandTimeout
	ErrCommandRejected  = bot.ErrCommandRejected
	ErrWaitTimeout      = bot.ErrWaitTimeout
)

// New creates a Bot.
func New(opts ...bot.Option) *bot.Bot {
	return bot.New(opts...)
}
