// internal/bot/tracker.go
package bot

import (
	"sync"

	"discord-stats-bot/internal/config"
)

// Tracker decides which events concern the logger: anything authored by the
// tracked account, plus any channel on the configured allowlist. The tracked
// account id is written once per gateway session and read on every event, so
// the cell is guarded by a reader-writer lock.
type Tracker struct {
	mu      sync.RWMutex
	userID  string
	tracked map[config.TrackedChannel]struct{}
}

// NewTracker builds a Tracker over the configured allowlist. The tracked
// account is unknown until the first session ready.
func NewTracker(tracked map[config.TrackedChannel]struct{}) *Tracker {
	if tracked == nil {
		tracked = map[config.TrackedChannel]struct{}{}
	}
	return &Tracker{tracked: tracked}
}

// SetUser records the tracked account id, replacing any previous one.
// Called once per connection established.
func (t *Tracker) SetUser(id string) {
	t.mu.Lock()
	t.userID = id
	t.mu.Unlock()
}

// UserID returns the tracked account id and whether one is known yet.
func (t *Tracker) UserID() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.userID, t.userID != ""
}

// ShouldHandle reports whether an event with the given author, guild and
// channel should be persisted. guildID is empty for direct messages. All
// events are rejected until a session ready has identified the account.
func (t *Tracker) ShouldHandle(authorID, guildID, channelID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.userID == "" {
		return false
	}
	if authorID == t.userID {
		return true
	}
	_, ok := t.tracked[config.TrackedChannel{GuildID: guildID, ChannelID: channelID}]
	return ok
}
