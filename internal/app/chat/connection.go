/*
Package chat contains the client-side real-time synchronization core.

This file defines the ConnectionManager, which owns the WebSocket channel and its
state machine (disconnected -> connecting -> connected -> disconnected), applies
inbound events to the message, presence, and typing trackers, and turns outbound
intents into frames.
*/
package chat

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatline/internal/app/user"
	"chatline/internal/pkg/errs"
	"chatline/internal/pkg/logx"
)

const (
	// timeout for a single write to the channel.
	writeWait = 10 * time.Second

	// maximum time without any frame or pong before the channel is considered dead.
	pongWait = 60 * time.Second

	// frequency of client pings; must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maximum inbound frame size in bytes.
	maxFrameSize = 64 * 1024

	// capacity of the outbound queue.
	sendBuffer = 64

	// bound on presence history writes done while handling an event.
	storeTimeout = 5 * time.Second
)

// ConnectionState is the externally visible state of the channel.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)

// Listener receives notifications for the presentation layer.
// Calls are made outside the manager's lock, so a listener may read snapshots.
type Listener interface {
	// StatusChanged reports a connection state transition.
	StatusChanged(state ConnectionState)

	// EventApplied reports that an inbound event changed local state.
	// Duplicates and other no-op events are not reported.
	EventApplied(event EventName)

	// Notice carries a server-reported error meant for the user.
	Notice(message string)
}

// NopListener ignores every notification.
type NopListener struct{}

func (NopListener) StatusChanged(ConnectionState) {}
func (NopListener) EventApplied(EventName)        {}
func (NopListener) Notice(string)                 {}

// Dialer opens the WebSocket channel. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// ConnectionManager owns the channel, its state, and the trackers it feeds.
type ConnectionManager struct {
	url      string
	dialer   Dialer
	listener Listener
	history  *PresenceHistory

	// mu serializes event handlers, intents, and state transitions.
	mu         sync.Mutex
	state      ConnectionState
	identity   user.User
	conn       *websocket.Conn
	send       chan []byte
	cancelDial context.CancelFunc

	// generation changes on every Open, Close, and drop. Pumps and dials
	// holding an older value may no longer touch state.
	generation uint64

	// joined is closed when the server acknowledges the join of the current
	// channel with a presence snapshot; dropped is closed when that channel ends.
	joined  chan struct{}
	dropped chan struct{}

	messages *MessageLog
	presence *PresenceTracker
	typing   *TypingTracker

	logger zerolog.Logger
}

// NewConnectionManager constructs a manager for the WebSocket endpoint wsURL.
// Nil dialer, history, or listener fall back to websocket.DefaultDialer, an
// in-memory history, and NopListener.
func NewConnectionManager(wsURL string, dialer Dialer, history *PresenceHistory, listener Listener) *ConnectionManager {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	if history == nil {
		history = NewPresenceHistory(context.Background(), nil)
	}
	if listener == nil {
		listener = NopListener{}
	}

	return &ConnectionManager{
		url:      wsURL,
		dialer:   dialer,
		listener: listener,
		history:  history,
		state:    StateDisconnected,
		messages: NewMessageLog(),
		presence: NewPresenceTracker(),
		typing:   NewTypingTracker(),
		logger:   logx.Component("ConnectionManager").With().Str("url", wsURL).Logger(),
	}
}

// Open dials the channel for identity and, once connected, sends the join handshake.
// It blocks until the dial completes, fails, or is cancelled by Close or ctx.
func (m *ConnectionManager) Open(ctx context.Context, identity user.User) error {
	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return errs.NewError(errs.ErrAlreadyConnecting)
	}

	m.generation++
	gen := m.generation
	dialCtx, cancel := context.WithCancel(ctx)
	m.cancelDial = cancel
	m.identity = identity
	m.state = StateConnecting
	m.mu.Unlock()

	m.listener.StatusChanged(StateConnecting)
	m.logger.Info().Str("username", identity.Username).Str("role", string(identity.Role)).Msg("Opening channel.")

	conn, _, dialErr := m.dialer.DialContext(dialCtx, m.url, nil)
	cancel()

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		m.logger.Info().Msg("Channel closed while dialing.")
		return fmt.Errorf("open channel: %w", context.Canceled)
	}
	m.cancelDial = nil

	if dialErr != nil {
		m.state = StateDisconnected
		m.mu.Unlock()
		m.listener.StatusChanged(StateDisconnected)
		m.logger.Warn().Err(dialErr).Msg("Failed to open channel.")
		return fmt.Errorf("open channel: %w", dialErr)
	}

	send := make(chan []byte, sendBuffer)
	m.conn = conn
	m.send = send
	m.state = StateConnected
	m.joined = make(chan struct{})
	m.dropped = make(chan struct{})

	// whatever the log holds now may have missed deletes and clears while
	// disconnected; the next Sync replaces it.
	m.messages.BeginSync()

	// join is queued before the pumps start, so it is always the first frame.
	joinErr := m.emitLocked(EventJoin, JoinPayload(identity))
	m.mu.Unlock()

	if joinErr != nil {
		m.logger.Error().Err(joinErr).Msg("Failed to queue join handshake.")
	}

	go m.writePump(conn, send)
	go m.readPump(gen, conn)

	m.listener.StatusChanged(StateConnected)
	m.logger.Info().Msg("Channel connected.")
	return nil
}

// Close tears the channel down. After it returns no inbound event can change
// local state. Closing a closed or never-opened manager is a no-op.
func (m *ConnectionManager) Close() {
	m.mu.Lock()
	if m.state == StateDisconnected && m.conn == nil && m.cancelDial == nil {
		m.mu.Unlock()
		return
	}

	m.generation++
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	m.teardownLocked()
	m.state = StateDisconnected
	m.mu.Unlock()

	m.logger.Info().Msg("Channel closed.")
	m.listener.StatusChanged(StateDisconnected)
}

// handleDisconnect is the transport-level drop path, called when the read pump ends.
func (m *ConnectionManager) handleDisconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}

	m.generation++
	m.teardownLocked()
	m.state = StateDisconnected
	m.mu.Unlock()

	m.logger.Warn().Msg("Channel disconnected.")
	m.listener.StatusChanged(StateDisconnected)
}

// teardownLocked stops the write pump, which closes the connection after a close frame.
// Typing entries go with the channel: their stop edges can no longer arrive.
func (m *ConnectionManager) teardownLocked() {
	if m.send != nil {
		close(m.send)
		m.send = nil
	}
	m.conn = nil

	if m.dropped != nil {
		close(m.dropped)
	}
	m.joined = nil
	m.dropped = nil

	m.typing.Clear()
}

// ackJoinLocked marks the join of the current channel as acknowledged.
func (m *ConnectionManager) ackJoinLocked() {
	if m.joined == nil {
		return
	}
	select {
	case <-m.joined:
	default:
		close(m.joined)
	}
}

// WaitJoined blocks until the server has acknowledged the join of the current
// channel. From then on every message the server stores is also pushed live.
func (m *ConnectionManager) WaitJoined(ctx context.Context) error {
	m.mu.Lock()
	joined, dropped := m.joined, m.dropped
	m.mu.Unlock()

	if joined == nil {
		return errs.NewError(errs.ErrNotConnected)
	}

	select {
	case <-joined:
		return nil
	case <-dropped:
		return errs.NewError(errs.ErrNotConnected)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleFrame decodes one inbound message and applies it through the dispatch table.
func (m *ConnectionManager) handleFrame(gen uint64, raw []byte) {
	frame, err := DecodeFrame(raw)
	if err != nil {
		m.logger.Warn().Err(err).Int("bytes", len(raw)).Msg("Dropping undecodable frame.")
		return
	}

	handler, ok := inboundHandlers[frame.Event]
	if !ok {
		m.logger.Warn().Str("event", string(frame.Event)).Msg("Dropping unsupported event.")
		return
	}

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	changed, notice, err := handler(m, frame.Data)
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn().Err(err).Str("event", string(frame.Event)).Msg("Dropping malformed event payload.")
		return
	}

	if changed {
		m.listener.EventApplied(frame.Event)
	}
	if notice != "" {
		m.listener.Notice(notice)
	}
}

// emitLocked queues an outbound frame. Requires the connected state.
func (m *ConnectionManager) emitLocked(event EventName, payload any) error {
	if m.state != StateConnected || m.send == nil {
		return errs.NewError(errs.ErrNotConnected)
	}

	raw, err := EncodeFrame(event, payload)
	if err != nil {
		return err
	}

	select {
	case m.send <- raw:
		return nil
	default:
		m.logger.Warn().Str("event", string(event)).Int("queue_len", len(m.send)).Msg("Send queue full, dropping intent.")
		return errs.NewError(errs.ErrSendQueueFull)
	}
}

// SendMessage asks the server to post content. Nothing is appended locally;
// the message arrives back as a newMessage event.
func (m *ConnectionManager) SendMessage(content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errs.NewError(errs.ErrEmptyMessage)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emitLocked(EventSendMessage, SendMessagePayload{Content: trimmed})
}

// SetTyping announces a typing edge for this client.
func (m *ConnectionManager) SetTyping(isTyping bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emitLocked(EventTyping, TypingPayload{IsTyping: isTyping})
}

// DeleteMessage asks the server to delete one message. Admin only; the log
// changes only when the messageDeleted event arrives.
func (m *ConnectionManager) DeleteMessage(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.identity.IsAdmin() {
		return errs.NewError(errs.ErrAdminRequired)
	}
	if strings.TrimSpace(id) == "" {
		return errs.NewError(errs.ErrMessageIDRequired)
	}
	return m.emitLocked(EventDeleteMessage, DeleteMessagePayload{ID: id})
}

// ClearAllMessages asks the server to wipe the history. Admin only.
func (m *ConnectionManager) ClearAllMessages() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.identity.IsAdmin() {
		return errs.NewError(errs.ErrAdminRequired)
	}
	return m.emitLocked(EventClearAllMessages, nil)
}

// Sync replaces the log with a history snapshot fetched after the channel
// opened, keeping live messages the snapshot does not contain after it.
// It returns the number of messages taken from history.
func (m *ConnectionManager) Sync(history []Message) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messages.Merge(history)
}

// Reset empties the message, presence, and typing trackers.
func (m *ConnectionManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = NewMessageLog()
	m.presence.Clear()
	m.typing.Clear()
}

// State returns the current connection state.
func (m *ConnectionManager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Messages returns the message log in arrival order.
func (m *ConnectionManager) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messages.Snapshot()
}

// OnlineUsers returns the presence set.
func (m *ConnectionManager) OnlineUsers() []PresenceEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.presence.Snapshot()
}

// TypingUsers returns the users currently typing.
func (m *ConnectionManager) TypingUsers() []TypingEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.typing.Snapshot()
}

// PresenceHistory returns the bounded presence log, oldest first.
func (m *ConnectionManager) PresenceHistory() []StatusChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history.Snapshot()
}
