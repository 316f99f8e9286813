package chat

import (
	"time"

	"chatline/internal/app/user"
)

// PresenceStatus is the direction of a presence transition.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

// PresenceEntry is one currently-online user.
type PresenceEntry struct {
	Username    string    `json:"username"`
	Role        user.Role `json:"role"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// StatusChange is a presence transition pushed by the server.
type StatusChange struct {
	Username  string         `json:"username"`
	Role      user.Role      `json:"role"`
	Status    PresenceStatus `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
}

// PresenceTracker keeps at most one entry per username, in first-seen order.
// Not safe for concurrent use.
type PresenceTracker struct {
	entries []PresenceEntry
}

// NewPresenceTracker returns an empty tracker.
func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{}
}

// Replace swaps the whole set for entries. Repeated usernames collapse onto
// the first position with the last values.
func (p *PresenceTracker) Replace(entries []PresenceEntry) {
	p.entries = nil
	for _, e := range entries {
		p.Upsert(e)
	}
}

// Upsert adds e or replaces the existing entry for the same username in place.
func (p *PresenceTracker) Upsert(e PresenceEntry) {
	if i := p.indexOf(e.Username); i >= 0 {
		p.entries[i] = e
		return
	}
	p.entries = append(p.entries, e)
}

// Remove drops the entry for username. Unknown usernames are a no-op.
func (p *PresenceTracker) Remove(username string) bool {
	i := p.indexOf(username)
	if i < 0 {
		return false
	}
	p.entries = append(p.entries[:i], p.entries[i+1:]...)
	return true
}

// Apply folds a status change into the set.
func (p *PresenceTracker) Apply(change StatusChange) {
	switch change.Status {
	case StatusOnline:
		p.Upsert(PresenceEntry{
			Username:    change.Username,
			Role:        change.Role,
			ConnectedAt: change.Timestamp,
		})
	case StatusOffline:
		p.Remove(change.Username)
	}
}

// Clear empties the set.
func (p *PresenceTracker) Clear() {
	p.entries = nil
}

// Len returns the number of online users.
func (p *PresenceTracker) Len() int {
	return len(p.entries)
}

// Snapshot returns a copy of the online users.
func (p *PresenceTracker) Snapshot() []PresenceEntry {
	out := make([]PresenceEntry, len(p.entries))
	copy(out, p.entries)
	return out
}

func (p *PresenceTracker) indexOf(username string) int {
	for i := range p.entries {
		if p.entries[i].Username == username {
			return i
		}
	}
	return -1
}
