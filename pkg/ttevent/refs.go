package ttevent

import "encoding/json"

// Payload refs are thin views over raw event payloads. The session core
// hands these to handlers and waiters; domain wrappers are responsible for
// full field translation. Only the accessors the core itself needs exist
// here.

// UserRef references one user as carried by a presence event.
type UserRef struct {
	Raw json.RawMessage
}

// UserID returns the user id from the payload, or 0 if absent.
func (u UserRef) UserID() int {
	var s struct {
		UserID int `json:"user_id"`
	}
	if err := json.Unmarshal(u.Raw, &s); err != nil {
		return 0
	}
	return s.UserID
}

// ChannelID returns the user's current channel id, or 0 if absent.
func (u UserRef) ChannelID() int {
	var s struct {
		ChannelID int `json:"channel_id"`
	}
	if err := json.Unmarshal(u.Raw, &s); err != nil {
		return 0
	}
	return s.ChannelID
}

// ChannelRef references one channel by id, with the raw payload when the
// originating event carried one.
type ChannelRef struct {
	ID  int
	Raw json.RawMessage
}

// MessageRef references one text message.
type MessageRef struct {
	Raw json.RawMessage
}

// FileRef references one remote file.
type FileRef struct {
	Raw json.RawMessage
}

// ServerRef references the server a session is bound to.
type ServerRef struct {
	Endpoint ServerInfo
	Raw      json.RawMessage
}

// StatsRef references one server-statistics reply.
type StatsRef struct {
	Raw json.RawMessage
}

// AccountRef references one user account record.
type AccountRef struct {
	Raw json.RawMessage
}

// BanRef references one banned-user record.
type BanRef struct {
	Raw json.RawMessage
}

// AudioRef carries one decoded audio block copied out of the native layer.
type AudioRef struct {
	Source int
	Data   []byte
}
