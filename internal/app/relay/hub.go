/*
Package relay is an in-memory chat server used for local development and end-to-end tests.

This file defines the Hub, the single event loop that owns every connected peer. It
routes joined peers into presence and message broadcasts, keeps a bounded message
history, and enforces the admin-only moderation rules.
*/
package relay

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatline/internal/app/chat"
	"chatline/internal/app/user"
	"chatline/internal/pkg/errs"
	"chatline/internal/pkg/logx"
)

const (
	inboundChannelBuffer = 1024

	// MaxContentChars is the longest message the hub accepts, in characters.
	MaxContentChars = 5000
)

// inboundFrame is one frame read by a peer, queued for the hub loop.
type inboundFrame struct {
	peer  *Peer
	frame chat.Frame
}

// Hub is the central state of the relay.
type Hub struct {
	// every connected peer; joined or not. Owned by the Run loop.
	peers map[*Peer]struct{}

	register   chan *Peer
	unregister chan *Peer
	inbound    chan inboundFrame

	// closed when Run should stop.
	stopChan chan struct{}
	stopOnce sync.Once

	// closed once Run has returned.
	done chan struct{}

	// mu protects history, which HTTP handlers read concurrently.
	mu           sync.RWMutex
	history      []chat.Message
	historyLimit int

	now    func() time.Time
	logger zerolog.Logger
}

// NewHub creates a hub that keeps at most historyLimit messages.
func NewHub(historyLimit int) *Hub {
	return &Hub{
		peers:        make(map[*Peer]struct{}),
		register:     make(chan *Peer),
		unregister:   make(chan *Peer),
		inbound:      make(chan inboundFrame, inboundChannelBuffer),
		stopChan:     make(chan struct{}),
		done:         make(chan struct{}),
		historyLimit: historyLimit,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logx.Component("RelayHub"),
	}
}

// Stop terminates the Run loop; every peer is sent a close frame.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.logger.Info().Msg("Received stop signal. Stopping hub.")
		close(h.stopChan)
	})
}

// Done is closed once the Run loop has finished.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Register hands a freshly upgraded peer to the hub.
func (h *Hub) Register(p *Peer) bool {
	select {
	case h.register <- p:
		return true
	case <-h.done:
		return false
	}
}

// History returns a copy of the stored messages, oldest first.
func (h *Hub) History() []chat.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]chat.Message, len(h.history))
	copy(out, h.history)
	return out
}

// Run is the hub's event loop. It returns after Stop.
func (h *Hub) Run() {
	defer func() {
		for p := range h.peers {
			delete(h.peers, p)
			close(p.send)
		}
		close(h.done)
		h.logger.Info().Msg("Hub Run loop finished.")
	}()

	for {
		select {
		case p := <-h.register:
			h.peers[p] = struct{}{}
			p.logger.Info().Int("total_peers", len(h.peers)).Msg("Peer connected.")

		case p := <-h.unregister:
			h.drop(p)

		case in := <-h.inbound:
			if _, ok := h.peers[in.peer]; !ok {
				continue
			}
			h.handle(in.peer, in.frame)

		case <-h.stopChan:
			return
		}
	}
}

// drop removes p, closes its queue, and announces it offline if it was the
// last connection of its user.
func (h *Hub) drop(p *Peer) {
	if _, ok := h.peers[p]; !ok {
		return
	}
	delete(h.peers, p)
	close(p.send)

	if p.identity == nil {
		p.logger.Info().Msg("Peer left before joining.")
		return
	}

	p.logger.Info().Int("total_peers", len(h.peers)).Msg("Peer left.")
	if h.online(p.identity.Username) {
		return
	}

	h.broadcast(chat.EventUserStatusUpdate, chat.StatusChange{
		Username:  p.identity.Username,
		Role:      p.identity.Role,
		Status:    chat.StatusOffline,
		Timestamp: h.now(),
	}, nil)
}

func (h *Hub) handle(p *Peer, frame chat.Frame) {
	if frame.Event == chat.EventJoin {
		h.handleJoin(p, frame.Data)
		return
	}

	if p.identity == nil {
		h.reject(p, errs.NewError(errs.ErrSessionRequired))
		return
	}

	switch frame.Event {
	case chat.EventSendMessage:
		h.handleSendMessage(p, frame.Data)
	case chat.EventTyping:
		h.handleTyping(p, frame.Data)
	case chat.EventDeleteMessage:
		h.handleDeleteMessage(p, frame.Data)
	case chat.EventClearAllMessages:
		h.handleClearAllMessages(p)
	default:
		p.logger.Warn().Str("event", string(frame.Event)).Msg("Peer sent unsupported event")
	}
}

func (h *Hub) handleJoin(p *Peer, data json.RawMessage) {
	if p.identity != nil {
		p.logger.Warn().Msg("Duplicate join ignored.")
		return
	}

	var identity user.User
	if err := json.Unmarshal(data, &identity); err != nil || identity.Username == "" || !identity.Role.Valid() {
		h.reject(p, errs.NewError(errs.ErrInvalidRole))
		return
	}

	p.identity = &identity
	p.connectedAt = h.now()
	p.logger.Info().Str("username", identity.Username).Str("role", string(identity.Role)).Msg("Peer joined.")

	p.sendFrame(chat.EventOnlineUsers, h.onlineUsers())

	h.broadcast(chat.EventUserStatusUpdate, chat.StatusChange{
		Username:  identity.Username,
		Role:      identity.Role,
		Status:    chat.StatusOnline,
		Timestamp: p.connectedAt,
	}, nil)
}

func (h *Hub) handleSendMessage(p *Peer, data json.RawMessage) {
	var payload chat.SendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		p.logger.Warn().Err(err).Msg("Peer sent invalid sendMessage payload")
		return
	}

	content := strings.TrimSpace(payload.Content)
	if content == "" {
		h.reject(p, errs.NewError(errs.ErrEmptyMessage))
		return
	}
	if utf8.RuneCountInString(content) > MaxContentChars {
		h.reject(p, errs.NewError(errs.ErrMessageContentTooLong))
		return
	}

	msg := chat.Message{
		ID:        uuid.NewString(),
		Username:  p.identity.Username,
		Role:      p.identity.Role,
		Content:   content,
		Timestamp: h.now(),
	}

	h.mu.Lock()
	h.history = append(h.history, msg)
	if over := len(h.history) - h.historyLimit; over > 0 {
		h.history = append([]chat.Message(nil), h.history[over:]...)
	}
	h.mu.Unlock()

	p.logger.Debug().Str("message_id", msg.ID).Int("content_len", len(content)).Msg("Message stored.")
	h.broadcast(chat.EventNewMessage, msg, nil)
}

func (h *Hub) handleTyping(p *Peer, data json.RawMessage) {
	var payload chat.TypingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		p.logger.Warn().Err(err).Msg("Peer sent invalid typing payload")
		return
	}

	h.broadcast(chat.EventUserTyping, chat.UserTypingPayload{
		Username: p.identity.Username,
		Role:     p.identity.Role,
		IsTyping: payload.IsTyping,
	}, p)
}

func (h *Hub) handleDeleteMessage(p *Peer, data json.RawMessage) {
	if !p.identity.IsAdmin() {
		h.reject(p, errs.NewError(errs.ErrAdminRequired))
		return
	}

	var payload chat.DeleteMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ID == "" {
		h.reject(p, errs.NewError(errs.ErrMessageIDRequired))
		return
	}

	h.mu.Lock()
	removed := false
	for i := range h.history {
		if h.history[i].ID == payload.ID {
			h.history = append(h.history[:i], h.history[i+1:]...)
			removed = true
			break
		}
	}
	h.mu.Unlock()

	if !removed {
		p.logger.Info().Str("message_id", payload.ID).Msg("Delete for unknown message ignored.")
		return
	}

	p.logger.Info().Str("message_id", payload.ID).Msg("Message deleted.")
	h.broadcast(chat.EventMessageDeleted, chat.MessageDeletedPayload{MessageID: payload.ID}, nil)
}

func (h *Hub) handleClearAllMessages(p *Peer) {
	if !p.identity.IsAdmin() {
		h.reject(p, errs.NewError(errs.ErrAdminRequired))
		return
	}

	h.mu.Lock()
	cleared := len(h.history)
	h.history = nil
	h.mu.Unlock()

	p.logger.Info().Int("cleared", cleared).Msg("History cleared.")
	h.broadcast(chat.EventAllMessagesCleared, nil, nil)
}

// reject answers p with a non-fatal error event.
func (h *Hub) reject(p *Peer, customErr *errs.CustomError) {
	p.logger.Info().Int("code", customErr.Code).Msg("Rejecting peer request.")
	p.sendFrame(chat.EventError, chat.ErrorPayload{Message: customErr.Message})
}

// broadcast sends an event to every joined peer except skip.
// Peers whose queue is full are dropped.
func (h *Hub) broadcast(event chat.EventName, payload any, skip *Peer) {
	raw, err := chat.EncodeFrame(event, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event", string(event)).Msg("Error encoding frame for broadcast.")
		return
	}

	var slow []*Peer
	for p := range h.peers {
		if p == skip || p.identity == nil {
			continue
		}
		select {
		case p.send <- raw:
		default:
			p.logger.Warn().Msg("Peer send channel full, dropping peer.")
			slow = append(slow, p)
		}
	}

	for _, p := range slow {
		h.drop(p)
	}
}

// onlineUsers lists joined users once each, with their earliest connection time.
func (h *Hub) onlineUsers() []chat.PresenceEntry {
	index := make(map[string]int)
	users := make([]chat.PresenceEntry, 0, len(h.peers))

	for p := range h.peers {
		if p.identity == nil {
			continue
		}
		if i, ok := index[p.identity.Username]; ok {
			if p.connectedAt.Before(users[i].ConnectedAt) {
				users[i].ConnectedAt = p.connectedAt
			}
			continue
		}
		index[p.identity.Username] = len(users)
		users = append(users, chat.PresenceEntry{
			Username:    p.identity.Username,
			Role:        p.identity.Role,
			ConnectedAt: p.connectedAt,
		})
	}
	return users
}

func (h *Hub) online(username string) bool {
	for p := range h.peers {
		if p.identity != nil && p.identity.Username == username {
			return true
		}
	}
	return false
}
