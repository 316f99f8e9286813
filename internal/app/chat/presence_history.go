package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"chatline/internal/app/storage"
	"chatline/internal/pkg/logx"
)

const (
	// PresenceHistoryCapacity is the number of status changes kept; the oldest is evicted first.
	PresenceHistoryCapacity = 50

	// PresenceHistoryKey is the durable storage key of the history.
	PresenceHistoryKey = "statusHistory"
)

// PresenceHistory is a bounded log of presence transitions kept for offline-status
// display. It is diagnostic state, separate from PresenceTracker.
// Not safe for concurrent use.
type PresenceHistory struct {
	kv      storage.KeyValueStore
	entries []StatusChange
	logger  zerolog.Logger
}

// NewPresenceHistory returns a history backed by kv, seeded with whatever was
// persisted before. A nil kv keeps the history in memory only.
func NewPresenceHistory(ctx context.Context, kv storage.KeyValueStore) *PresenceHistory {
	h := &PresenceHistory{
		kv:     kv,
		logger: logx.Component("PresenceHistory"),
	}
	h.load(ctx)
	return h
}

func (h *PresenceHistory) load(ctx context.Context) {
	if h.kv == nil {
		return
	}

	raw, err := h.kv.Get(ctx, PresenceHistoryKey)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to read presence history. Starting empty.")
		return
	}
	if raw == nil {
		return
	}

	var entries []StatusChange
	if err := json.Unmarshal(raw, &entries); err != nil {
		h.logger.Warn().Err(err).Msg("Persisted presence history is malformed. Starting empty.")
		return
	}

	if len(entries) > PresenceHistoryCapacity {
		entries = entries[len(entries)-PresenceHistoryCapacity:]
	}
	h.entries = entries
}

// Record appends change, evicting the oldest entries beyond capacity, and
// persists the result.
func (h *PresenceHistory) Record(ctx context.Context, change StatusChange) error {
	h.entries = append(h.entries, change)
	if over := len(h.entries) - PresenceHistoryCapacity; over > 0 {
		h.entries = append([]StatusChange(nil), h.entries[over:]...)
	}

	if h.kv == nil {
		return nil
	}

	raw, err := json.Marshal(h.entries)
	if err != nil {
		return fmt.Errorf("failed to encode presence history: %w", err)
	}
	if err := h.kv.Set(ctx, PresenceHistoryKey, raw); err != nil {
		return fmt.Errorf("failed to persist presence history: %w", err)
	}
	return nil
}

// Len returns the number of recorded changes.
func (h *PresenceHistory) Len() int {
	return len(h.entries)
}

// Snapshot returns a copy of the recorded changes, oldest first.
func (h *PresenceHistory) Snapshot() []StatusChange {
	out := make([]StatusChange, len(h.entries))
	copy(out, h.entries)
	return out
}
