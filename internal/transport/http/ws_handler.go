package http

import (
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/streamchat/internal/core"
)

// wsReadLimit bounds a single WebSocket message. Frames and raw payload chunks
// are streamed across messages, so this only caps one write by the peer.
const wsReadLimit = 1 << 20

// WSHandler upgrades HTTP connections and runs the framed chat protocol over
// binary WebSocket messages.
type WSHandler struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	conn.SetReadLimit(wsReadLimit)

	h.log.Debug().Str("remote", r.RemoteAddr).Msg("ws connection upgraded")

	// The hub closes the stream, which sends a normal close frame.
	h.hub.ServeConn(websocket.NetConn(r.Context(), conn, websocket.MessageBinary))
}
