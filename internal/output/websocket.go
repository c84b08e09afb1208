package output

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mjpegsw/mjpegsw/internal/logger"
)

const wsWriteWait = 5 * time.Second

// WebSocketHandler pushes each JPEG frame as a binary WebSocket message
type WebSocketHandler struct {
	producer *Producer
	viewers  *atomic.Int64
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a WebSocket frame handler counting viewers into viewers
func NewWebSocketHandler(producer *Producer, viewers *atomic.Int64) *WebSocketHandler {
	if viewers == nil {
		viewers = new(atomic.Int64)
	}
	return &WebSocketHandler{
		producer: producer,
		viewers:  viewers,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins, matching the CORS policy
			},
		},
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	session := uuid.NewString()
	log := logger.WithComponent("stream").With().Str("session", session).Str("transport", "websocket").Logger()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	n := h.viewers.Add(1)
	log.Info().Int64("viewers", n).Msg("Viewer connected")
	defer func() {
		log.Info().Int64("viewers", h.viewers.Add(-1)).Msg("Viewer disconnected")
	}()

	// The read pump only notices the peer closing
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for data := range h.producer.Frames(ctx) {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			log.Debug().Err(err).Msg("Write failed")
			return
		}
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(wsWriteWait))
}
