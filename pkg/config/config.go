// Package config loads bot configuration from TOML files and can watch a
// file for live edits.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/lightforgemedia/go-talkbot/pkg/backoff"
	"github.com/lightforgemedia/go-talkbot/pkg/bot"
	"github.com/lightforgemedia/go-talkbot/pkg/ttevent"
)

// File is the root of a configuration file.
type File struct {
	ClientName     string   `toml:"client_name"`
	GatewayURL     string   `toml:"gateway_url"`
	PollIntervalMs int      `toml:"poll_interval_ms"`
	Servers        []Server `toml:"servers"`
}

// Server describes one endpoint entry. The connection fields flatten into
// the entry itself; reconnect and muxed_audio default to enabled when
// omitted.
type Server struct {
	ttevent.ServerInfo
	Reconnect  *bool   `toml:"reconnect"`
	MuxedAudio *bool   `toml:"muxed_audio"`
	Backoff    Backoff `toml:"backoff"`
}

// Backoff holds the retry parameters, durations in milliseconds.
type Backoff struct {
	BaseMs   int     `toml:"base_ms"`
	Exponent float64 `toml:"exponent"`
	MaxMs    int     `toml:"max_ms"`
	MaxTries int     `toml:"max_tries"`
}

// Config converts the entry to backoff parameters. Zero fields fall back
// to the backoff package defaults.
func (b Backoff) Config() backoff.Config {
	return backoff.Config{
		Base:     time.Duration(b.BaseMs) * time.Millisecond,
		Exponent: b.Exponent,
		MaxValue: time.Duration(b.MaxMs) * time.Millisecond,
		MaxTries: b.MaxTries,
	}
}

// Options maps the entry onto the per-server options consumed by
// Bot.AddServer.
func (s Server) Options() []bot.ServerOption {
	opts := []bot.ServerOption{bot.WithBackoff(s.Backoff.Config())}
	if s.Reconnect != nil {
		opts = append(opts, bot.WithReconnect(*s.Reconnect))
	}
	if s.MuxedAudio != nil {
		opts = append(opts, bot.WithMuxedAudio(*s.MuxedAudio))
	}
	return opts
}

// Load reads and validates a configuration file.
func Load(path string) (*File, error) {
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the entries for the mistakes a hand-edited file tends to
// contain.
func (f *File) Validate() error {
	if len(f.Servers) == 0 {
		return fmt.Errorf("config: no servers configured")
	}
	seen := make(map[string]bool)
	for i, s := range f.Servers {
		if s.Host == "" {
			return fmt.Errorf("config: servers[%d]: host is required", i)
		}
		if s.TCPPort <= 0 || s.TCPPort > 65535 {
			return fmt.Errorf("config: servers[%d]: tcp_port %d out of range", i, s.TCPPort)
		}
		if s.UDPPort < 0 || s.UDPPort > 65535 {
			return fmt.Errorf("config: servers[%d]: udp_port %d out of range", i, s.UDPPort)
		}
		if s.Username == "" {
			return fmt.Errorf("config: servers[%d]: username is required", i)
		}
		if s.JoinChannelID < 0 {
			return fmt.Errorf("config: servers[%d]: join_channel_id must not be negative", i)
		}
		addr := s.Addr()
		if seen[addr] {
			return fmt.Errorf("config: duplicate server entry %s", addr)
		}
		seen[addr] = true
	}
	return nil
}
