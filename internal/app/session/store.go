package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"chatline/internal/app/storage"
	"chatline/internal/app/user"
	"chatline/internal/pkg/logx"
)

const (
	// UserKey holds the identity blob ({"username","role"}).
	UserKey = "chatUser"

	// ExpiryKey holds the absolute expiry as epoch milliseconds in decimal.
	ExpiryKey = "chatSessionExpiry"
)

// Store persists a single Session in durable client storage.
// It only ever reads and writes UserKey and ExpiryKey.
type Store struct {
	kv     storage.KeyValueStore
	now    func() time.Time
	logger zerolog.Logger
}

// NewStore returns a Store over kv. A nil now uses time.Now.
func NewStore(kv storage.KeyValueStore, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}

	return &Store{
		kv:     kv,
		now:    now,
		logger: logx.Component("SessionStore"),
	}
}

// Save persists the identity of sess with an expiry of TTL from now.
// Any ExpiresAt set by the caller is ignored; the stored Session is returned.
func (s *Store) Save(ctx context.Context, sess Session) (Session, error) {
	stored := Session{
		User:      sess.User,
		ExpiresAt: s.now().Add(TTL),
	}

	identity, err := json.Marshal(stored.User)
	if err != nil {
		return Session{}, fmt.Errorf("failed to encode session identity: %w", err)
	}
	expiry := strconv.FormatInt(stored.ExpiresAt.UnixMilli(), 10)

	err = s.kv.SetMany(ctx, map[string][]byte{
		UserKey:   identity,
		ExpiryKey: []byte(expiry),
	})
	if err != nil {
		return Session{}, fmt.Errorf("failed to persist session: %w", err)
	}

	s.logger.Info().
		Str("username", stored.Username).
		Str("role", string(stored.Role)).
		Time("expires_at", stored.ExpiresAt).
		Msg("Session persisted.")

	return stored, nil
}

// Load returns the persisted Session if it is present, well-formed, and not expired.
// Expired or malformed records are purged; storage failures are logged and reported as absence.
func (s *Store) Load(ctx context.Context) (Session, bool) {
	rawUser, err := s.kv.Get(ctx, UserKey)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read persisted identity. Treating as absent.")
		return Session{}, false
	}
	rawExpiry, err := s.kv.Get(ctx, ExpiryKey)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read persisted expiry. Treating as absent.")
		return Session{}, false
	}

	if rawUser == nil && rawExpiry == nil {
		return Session{}, false
	}

	sess, ok := decode(rawUser, rawExpiry)
	if !ok {
		s.logger.Warn().Msg("Persisted session is malformed. Purging.")
		s.purge(ctx)
		return Session{}, false
	}

	if !sess.Valid(s.now()) {
		s.logger.Info().
			Str("username", sess.Username).
			Time("expired_at", sess.ExpiresAt).
			Msg("Persisted session expired. Purging.")
		s.purge(ctx)
		return Session{}, false
	}

	return sess, true
}

// Clear removes the persisted session unconditionally.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, UserKey, ExpiryKey); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func (s *Store) purge(ctx context.Context) {
	if err := s.Clear(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to purge persisted session.")
	}
}

func decode(rawUser, rawExpiry []byte) (Session, bool) {
	if rawUser == nil || rawExpiry == nil {
		return Session{}, false
	}

	var identity user.User
	if err := json.Unmarshal(rawUser, &identity); err != nil {
		return Session{}, false
	}
	if identity.Username == "" || !identity.Role.Valid() {
		return Session{}, false
	}

	millis, err := strconv.ParseInt(string(rawExpiry), 10, 64)
	if err != nil {
		return Session{}, false
	}

	return Session{User: identity, ExpiresAt: time.UnixMilli(millis)}, true
}
