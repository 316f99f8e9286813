package chat

import (
	"encoding/json"
	"fmt"

	"chatline/internal/app/user"
)

// EventName identifies a frame on the channel.
type EventName string

// Outbound events (client to server).
const (
	EventJoin             EventName = "join"
	EventSendMessage      EventName = "sendMessage"
	EventTyping           EventName = "typing"
	EventDeleteMessage    EventName = "deleteMessage"
	EventClearAllMessages EventName = "clearAllMessages"
)

// Inbound events (server to client).
const (
	EventNewMessage         EventName = "newMessage"
	EventMessageDeleted     EventName = "messageDeleted"
	EventAllMessagesCleared EventName = "allMessagesCleared"
	EventOnlineUsers        EventName = "onlineUsers"
	EventUserStatusUpdate   EventName = "userStatusUpdate"
	EventUserTyping         EventName = "userTyping"
	EventError              EventName = "error"
)

// Frame is the envelope of every WebSocket text message.
type Frame struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeFrame marshals payload (which may be nil) into a frame.
func EncodeFrame(event EventName, payload any) ([]byte, error) {
	frame := Frame{Event: event}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", event, err)
		}
		frame.Data = data
	}

	return json.Marshal(frame)
}

// DecodeFrame parses a raw WebSocket message into a frame.
func DecodeFrame(raw []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Frame{}, fmt.Errorf("invalid frame: %w", err)
	}
	if frame.Event == "" {
		return Frame{}, fmt.Errorf("invalid frame: missing event name")
	}
	return frame, nil
}

// JoinPayload announces the session identity after connecting.
type JoinPayload = user.User

// SendMessagePayload carries trimmed, non-empty content.
type SendMessagePayload struct {
	Content string `json:"content"`
}

// TypingPayload carries a typing edge.
type TypingPayload struct {
	IsTyping bool `json:"isTyping"`
}

// DeleteMessagePayload asks the server to delete one message.
type DeleteMessagePayload struct {
	ID string `json:"id"`
}

// MessageDeletedPayload names the deleted message. Servers send messageId; id is also accepted.
type MessageDeletedPayload struct {
	MessageID string `json:"messageId,omitempty"`
	ID        string `json:"id,omitempty"`
}

// TargetID returns whichever id field is set.
func (p MessageDeletedPayload) TargetID() string {
	if p.MessageID != "" {
		return p.MessageID
	}
	return p.ID
}

// UserTypingPayload is another user's typing edge.
type UserTypingPayload struct {
	Username string    `json:"username"`
	Role     user.Role `json:"role"`
	IsTyping bool      `json:"isTyping"`
}

// ErrorPayload is a server-reported, non-fatal error.
type ErrorPayload struct {
	Message string `json:"message"`
}
