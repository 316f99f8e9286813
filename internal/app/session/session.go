/*
Package session persists, validates, and expires the signed-in identity of the chat client.

A Session is valid only while now < ExpiresAt. The Store writes the identity and
its absolute expiry under two fixed keys and never hands back an expired record.
*/
package session

import (
	"time"

	"chatline/internal/app/user"
)

// TTL is the system-wide session lifetime, counted from the moment the session is saved.
const TTL = 2 * time.Hour

// Session is a TTL-bound identity authorizing a chat channel.
type Session struct {
	user.User
	ExpiresAt time.Time
}

// Valid reports whether the session is still usable at now.
func (s Session) Valid(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}
