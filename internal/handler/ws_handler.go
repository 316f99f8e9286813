package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"chatline/internal/app/relay"
	"chatline/internal/pkg/logx"
)

// HandleWebSocket upgrades the request and runs the peer until it disconnects.
// The peer takes part in broadcasts only after its join frame.
func HandleWebSocket(upgrader websocket.Upgrader, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		peer := relay.NewPeer(deps.Hub, conn)
		if !deps.Hub.Register(peer) {
			logx.Warn("WebSocket connection rejected: relay is shutting down.")
			conn.Close()
			return
		}

		go peer.WritePump()
		peer.ReadPump()
	}
}
