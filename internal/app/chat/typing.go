package chat

import "chatline/internal/app/user"

// TypingEntry is a user currently composing a message.
type TypingEntry struct {
	Username string    `json:"username"`
	Role     user.Role `json:"role"`
}

// TypingTracker mirrors the typing-state pushes of other users. Entries live
// until a matching stop arrives; expiry is the sender's job, so there is no
// local eviction. Not safe for concurrent use.
type TypingTracker struct {
	entries []TypingEntry
}

// NewTypingTracker returns an empty tracker.
func NewTypingTracker() *TypingTracker {
	return &TypingTracker{}
}

// Set records the latest typing state of a user. The entry moves to the end
// when a user starts typing again. It reports whether the user's membership
// in the set changed.
func (t *TypingTracker) Set(username string, role user.Role, isTyping bool) bool {
	existed := false
	filtered := t.entries[:0]
	for _, e := range t.entries {
		if e.Username == username {
			existed = true
			continue
		}
		filtered = append(filtered, e)
	}
	t.entries = filtered

	if isTyping {
		t.entries = append(t.entries, TypingEntry{Username: username, Role: role})
	}
	return existed != isTyping
}

// Clear empties the set.
func (t *TypingTracker) Clear() {
	t.entries = nil
}

// Len returns the number of users typing.
func (t *TypingTracker) Len() int {
	return len(t.entries)
}

// Snapshot returns a copy of the users typing.
func (t *TypingTracker) Snapshot() []TypingEntry {
	out := make([]TypingEntry, len(t.entries))
	copy(out, t.entries)
	return out
}
