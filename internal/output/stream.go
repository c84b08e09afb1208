package output

import (
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/mjpegsw/mjpegsw/internal/logger"
)

// StreamHandler serves the Motion JPEG stream
type StreamHandler struct {
	producer *Producer
	viewers  *atomic.Int64
}

// NewStreamHandler creates a stream handler counting viewers into viewers
func NewStreamHandler(producer *Producer, viewers *atomic.Int64) *StreamHandler {
	if viewers == nil {
		viewers = new(atomic.Int64)
	}
	return &StreamHandler{producer: producer, viewers: viewers}
}

// ServeHTTP writes multipart parts until the client goes away or the server
// shuts down
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	session := uuid.NewString()
	log := logger.WithComponent("stream").With().Str("session", session).Str("remote", r.RemoteAddr).Logger()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+Boundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	n := h.viewers.Add(1)
	log.Info().Int64("viewers", n).Msg("Viewer connected")

	var sent uint64
	defer func() {
		n := h.viewers.Add(-1)
		log.Info().Int64("viewers", n).Uint64("frames", sent).Msg("Viewer disconnected")
	}()

	for chunk := range h.producer.Chunks(r.Context()) {
		if _, err := w.Write(chunk); err != nil {
			log.Debug().Err(err).Msg("Write failed")
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		sent++
	}
}

// Viewers returns the number of connected stream viewers
func (h *StreamHandler) Viewers() int64 {
	return h.viewers.Load()
}
