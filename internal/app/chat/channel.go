package chat

import (
	"time"

	"github.com/gorilla/websocket"
)

// readPump delivers inbound frames until the connection fails, then reports the drop.
func (m *ConnectionManager) readPump(gen uint64, conn *websocket.Conn) {
	defer m.handleDisconnect(gen)

	conn.SetReadLimit(maxFrameSize)

	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		m.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	conn.SetPingHandler(func(appData string) error {
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return err
		}
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Info().Err(err).Msg("Channel read failed")
			}
			return
		}

		m.handleFrame(gen, raw)
	}
}

// writePump drains the outbound queue and keeps the channel alive with pings.
// A closed queue sends a close frame and ends the connection.
func (m *ConnectionManager) writePump(conn *websocket.Conn, send <-chan []byte) {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame, ok := <-send:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				m.logger.Error().Err(err).Msg("Failed to set write deadline")
				return
			}

			if !ok {
				closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				if err := conn.WriteMessage(websocket.CloseMessage, closeMsg); err != nil {
					m.logger.Debug().Err(err).Msg("Error writing close message")
				}
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				m.logger.Error().Err(err).Msg("Error writing frame")
				return
			}

		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				m.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				m.logger.Error().Err(err).Msg("Error writing ping")
				return
			}
		}
	}
}
