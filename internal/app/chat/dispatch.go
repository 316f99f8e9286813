package chat

import (
	"context"
	"encoding/json"
	"fmt"
)

// inboundHandler applies one event payload to local state. It runs under the
// manager's lock and reports whether local state changed, plus a user-facing
// notice, if any.
type inboundHandler func(m *ConnectionManager, data json.RawMessage) (bool, string, error)

// inboundHandlers is the dispatch table for server events.
var inboundHandlers = map[EventName]inboundHandler{
	EventNewMessage:         onNewMessage,
	EventMessageDeleted:     onMessageDeleted,
	EventAllMessagesCleared: onAllMessagesCleared,
	EventOnlineUsers:        onOnlineUsers,
	EventUserStatusUpdate:   onUserStatusUpdate,
	EventUserTyping:         onUserTyping,
	EventError:              onServerError,
}

func decodePayload(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return fmt.Errorf("missing payload")
	}
	return json.Unmarshal(data, dst)
}

func onNewMessage(m *ConnectionManager, data json.RawMessage) (bool, string, error) {
	var msg Message
	if err := decodePayload(data, &msg); err != nil {
		return false, "", err
	}
	if msg.ID == "" {
		return false, "", fmt.Errorf("message without id")
	}

	if !m.messages.Append(msg) {
		m.logger.Debug().Str("message_id", msg.ID).Msg("Ignoring duplicate message.")
		return false, "", nil
	}
	return true, "", nil
}

func onMessageDeleted(m *ConnectionManager, data json.RawMessage) (bool, string, error) {
	var payload MessageDeletedPayload
	if err := decodePayload(data, &payload); err != nil {
		return false, "", err
	}

	if !m.messages.RemoveByID(payload.TargetID()) {
		m.logger.Debug().Str("message_id", payload.TargetID()).Msg("Delete for unknown message ignored.")
		return false, "", nil
	}
	return true, "", nil
}

func onAllMessagesCleared(m *ConnectionManager, _ json.RawMessage) (bool, string, error) {
	had := m.messages.Len() > 0
	m.messages.Clear()
	return had, "", nil
}

func onOnlineUsers(m *ConnectionManager, data json.RawMessage) (bool, string, error) {
	var users []PresenceEntry
	if err := decodePayload(data, &users); err != nil {
		return false, "", err
	}

	m.presence.Replace(users)
	m.ackJoinLocked()
	return true, "", nil
}

func onUserStatusUpdate(m *ConnectionManager, data json.RawMessage) (bool, string, error) {
	var change StatusChange
	if err := decodePayload(data, &change); err != nil {
		return false, "", err
	}
	if change.Status != StatusOnline && change.Status != StatusOffline {
		return false, "", fmt.Errorf("unknown presence status %q", change.Status)
	}

	m.presence.Apply(change)

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := m.history.Record(ctx, change); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to persist presence history.")
	}
	return true, "", nil
}

func onUserTyping(m *ConnectionManager, data json.RawMessage) (bool, string, error) {
	var payload UserTypingPayload
	if err := decodePayload(data, &payload); err != nil {
		return false, "", err
	}

	return m.typing.Set(payload.Username, payload.Role, payload.IsTyping), "", nil
}

func onServerError(m *ConnectionManager, data json.RawMessage) (bool, string, error) {
	var payload ErrorPayload
	if err := decodePayload(data, &payload); err != nil {
		return false, "", err
	}

	m.logger.Warn().Str("server_message", payload.Message).Msg("Server reported an error.")
	return false, fmt.Sprintf("Error: %s", payload.Message), nil
}
