package relay

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatline/internal/app/chat"
	"chatline/internal/app/user"
	"chatline/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed between pongs from the peer.
	pongWait = 60 * time.Second

	// frequency at which the relay pings the peer.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the peer.
	maxFrameSize = 32 * 1024

	sendChannelBuffer = 256
)

// Peer is one WebSocket connection to the relay.
type Peer struct {
	hub  *Hub
	conn *websocket.Conn

	// a buffered channel of encoded frames waiting to be written.
	// Only the hub loop sends on or closes it.
	send chan []byte

	// set by the hub loop on join; nil until then.
	identity    *user.User
	connectedAt time.Time

	logger zerolog.Logger
}

// NewPeer wraps an upgraded connection.
func NewPeer(hub *Hub, conn *websocket.Conn) *Peer {
	id := uuid.NewString()

	return &Peer{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendChannelBuffer),
		logger: logx.Component("RelayPeer").With().Str("peer_id", id).Logger(),
	}
}

// ReadPump forwards inbound frames to the hub until the connection fails.
func (p *Peer) ReadPump() {
	defer p.cleanupOnDisconnect()

	p.conn.SetReadLimit(maxFrameSize)

	if err := p.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		p.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.logger.Info().Err(err).Msg("Error reading frame (peer close/going away)")
			}
			return
		}

		frame, err := chat.DecodeFrame(raw)
		if err != nil {
			p.logger.Warn().Err(err).Int("bytes", len(raw)).Msg("Peer sent invalid frame")
			continue
		}

		select {
		case p.hub.inbound <- inboundFrame{peer: p, frame: frame}:
		case <-p.hub.done:
			return
		}
	}
}

func (p *Peer) cleanupOnDisconnect() {
	select {
	case p.hub.unregister <- p:
	case <-p.hub.done:
	}

	if err := p.conn.Close(); err != nil {
		p.logger.Debug().Err(err).Msg("Peer connection close error")
	}
}

// WritePump writes queued frames and pings until the queue is closed or a write fails.
func (p *Peer) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := p.conn.Close(); err != nil {
			p.logger.Debug().Err(err).Msg("Peer connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame, ok := <-p.send:
			if !p.writeQueuedFrame(frame, ok) {
				return
			}

		case <-ticker.C:
			if !p.writePing() {
				return
			}
		}
	}
}

// writeQueuedFrame returns false when the pump should stop.
func (p *Peer) writeQueuedFrame(frame []byte, ok bool) bool {
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		p.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := p.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			p.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		p.logger.Error().Err(err).Msg("Error writing frame")
		return false
	}

	return true
}

func (p *Peer) writePing() bool {
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		p.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		p.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// sendFrame queues one event for this peer. Called from the hub loop only.
func (p *Peer) sendFrame(event chat.EventName, payload any) {
	raw, err := chat.EncodeFrame(event, payload)
	if err != nil {
		p.logger.Error().Err(err).Str("event", string(event)).Msg("Error encoding frame for peer")
		return
	}

	select {
	case p.send <- raw:
	default:
		p.logger.Warn().Int("queue_len", len(p.send)).Msg("Peer send channel full, dropping frame")
	}
}
