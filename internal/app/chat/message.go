/*
Package chat contains the client-side real-time synchronization core.

It owns the local copies of server state (message log, presence set, typing set),
the connection state machine over the WebSocket channel, the inbound event
dispatch table that reconciles those copies, and the sender-side typing debounce.
*/
package chat

import (
	"time"

	"chatline/internal/app/user"
)

// Message is a chat message as persisted and echoed back by the server.
// The client never creates one locally.
type Message struct {
	ID        string    `json:"_id"`
	Username  string    `json:"username"`
	Role      user.Role `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageLog is the ordered collection of messages in arrival order.
// Ids are unique within the log. It is not safe for concurrent use; the
// ConnectionManager serializes access.
//
// Between BeginSync and Merge the log also tracks what live events did, so a
// history snapshot fetched in that window can replace stale contents without
// losing or resurrecting anything.
type MessageLog struct {
	messages []Message
	ids      map[string]struct{}

	syncing bool
	live    map[string]struct{}
	deleted map[string]struct{}
	cleared bool
}

// NewMessageLog returns an empty log.
func NewMessageLog() *MessageLog {
	return &MessageLog{ids: make(map[string]struct{})}
}

// Append adds m at the end of the log. A message whose id is already present
// leaves the log untouched and Append returns false.
func (l *MessageLog) Append(m Message) bool {
	if _, ok := l.ids[m.ID]; ok {
		return false
	}
	l.ids[m.ID] = struct{}{}
	l.messages = append(l.messages, m)
	if l.syncing {
		l.live[m.ID] = struct{}{}
	}
	return true
}

// RemoveByID deletes the message with the given id. Unknown ids are a no-op.
func (l *MessageLog) RemoveByID(id string) bool {
	if l.syncing {
		l.deleted[id] = struct{}{}
		delete(l.live, id)
	}

	if _, ok := l.ids[id]; !ok {
		return false
	}
	delete(l.ids, id)

	for i := range l.messages {
		if l.messages[i].ID == id {
			l.messages = append(l.messages[:i], l.messages[i+1:]...)
			break
		}
	}
	return true
}

// Clear empties the log.
func (l *MessageLog) Clear() {
	l.messages = nil
	l.ids = make(map[string]struct{})
	if l.syncing {
		l.cleared = true
		l.live = make(map[string]struct{})
	}
}

// BeginSync starts recording live changes for the next Merge. The current
// contents are kept on screen but count as stale from now on.
func (l *MessageLog) BeginSync() {
	l.syncing = true
	l.live = make(map[string]struct{})
	l.deleted = make(map[string]struct{})
	l.cleared = false
}

// Merge replaces the log with history followed by the messages that arrived
// live since BeginSync and are missing from it, in arrival order. Entries
// deleted live are not brought back, and a live clear discards history
// entirely: anything stored after the clear was also delivered live.
// Messages without an id are skipped. Merge without BeginSync adopts history
// as is. It returns the number of messages taken from history.
func (l *MessageLog) Merge(history []Message) int {
	messages := make([]Message, 0, len(history)+len(l.live))
	ids := make(map[string]struct{}, len(history)+len(l.live))

	if !l.cleared {
		for _, m := range history {
			if m.ID == "" {
				continue
			}
			if _, gone := l.deleted[m.ID]; gone {
				continue
			}
			if _, dup := ids[m.ID]; dup {
				continue
			}
			ids[m.ID] = struct{}{}
			messages = append(messages, m)
		}
	}
	fromHistory := len(messages)

	for _, m := range l.messages {
		if _, ok := l.live[m.ID]; !ok {
			continue
		}
		if _, dup := ids[m.ID]; dup {
			continue
		}
		ids[m.ID] = struct{}{}
		messages = append(messages, m)
	}

	l.messages = messages
	l.ids = ids
	l.syncing = false
	l.live = nil
	l.deleted = nil
	l.cleared = false
	return fromHistory
}

// Len returns the number of messages.
func (l *MessageLog) Len() int {
	return len(l.messages)
}

// Snapshot returns a copy of the messages in arrival order.
func (l *MessageLog) Snapshot() []Message {
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}
