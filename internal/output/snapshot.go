package output

import (
	"net/http"
	"strconv"

	"github.com/mjpegsw/mjpegsw/internal/frame"
	"github.com/mjpegsw/mjpegsw/internal/logger"
)

// SnapshotHandler serves the latest frame as a single JPEG. When capture has
// stopped or no frame exists yet it answers 200 with an empty image/jpeg body.
type SnapshotHandler struct {
	store   *frame.Store
	encoder *Encoder
}

// NewSnapshotHandler creates a snapshot handler
func NewSnapshotHandler(store *frame.Store, encoder *Encoder) *SnapshotHandler {
	return &SnapshotHandler{store: store, encoder: encoder}
}

func (h *SnapshotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Disposition", `inline; filename="snap.jpg"`)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	f, ok := h.store.Latest()
	if !h.store.IsCapturing() || !ok {
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
		return
	}

	data, err := h.encoder.Encode(f)
	if err != nil {
		logger.WithComponent("snapshot").Error().Err(err).Uint64("seq", f.Seq).Msg("Failed to encode snapshot")
		http.Error(w, "failed to encode snapshot", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logger.WithComponent("snapshot").Debug().Err(err).Str("remote", r.RemoteAddr).Msg("Write failed")
	}
}
