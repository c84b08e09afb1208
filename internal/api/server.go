package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/mjpegsw/mjpegsw/internal/capture"
	"github.com/mjpegsw/mjpegsw/internal/config"
	"github.com/mjpegsw/mjpegsw/internal/frame"
	"github.com/mjpegsw/mjpegsw/internal/logger"
	"github.com/mjpegsw/mjpegsw/internal/output"
)

// Version is reported by the health endpoint
var Version = "0.1.0"

// StreamPath is where GET / redirects to
const StreamPath = "/cam.mjpg"

// CaptureStatus reports the state of the capture loop
type CaptureStatus interface {
	Stats() capture.Stats
}

// Server represents the HTTP server
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	store      *frame.Store
	outputs    *output.Outputs
	capture    CaptureStatus
	cfg        *config.Config
	startedAt  time.Time

	// cancels every request context so open streams end on shutdown
	cancelStreams context.CancelFunc
}

// NewServer creates a new server for cfg.Server.
// status may be nil, in which case /api/status omits capture details.
func NewServer(cfg *config.Config, store *frame.Store, outputs *output.Outputs, status CaptureStatus) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		store:     store,
		outputs:   outputs,
		capture:   status,
		cfg:       cfg,
		startedAt: time.Now(),
	}
	s.setupRoutes()

	baseCtx, cancel := context.WithCancel(context.Background())
	s.cancelStreams = cancel

	// No write timeout: streams stay open for as long as the viewer does
	s.httpServer = &http.Server{
		Addr:              cfg.ServerAddress(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	return s
}

// setupRoutes configures the routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
	s.router.Handle(StreamPath, s.outputs.Stream).Methods("GET")
	s.router.Handle("/snap.jpg", s.outputs.Snapshot).Methods("GET")
	s.router.Handle("/cam.ws", s.outputs.WebSocket).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
}

// Handler returns the router wrapped in the CORS middleware
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Addr returns the configured listen address
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Listen binds the configured address
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return ln, nil
}

// Serve accepts connections on ln until Shutdown. It returns nil after a
// graceful shutdown.
func (s *Server) Serve(ln net.Listener) error {
	logger.WithComponent("api").Info().
		Str("url", "http://"+ln.Addr().String()+StreamPath).
		Msg("Serving MJPEG stream")

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Start binds and serves. It blocks until the server stops.
func (s *Server) Start() error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown stops accepting connections and cancels in-flight streams
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelStreams()
	err := s.httpServer.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		logger.WithComponent("api").Warn().Msg("Shutdown timed out, closing open streams")
		return s.httpServer.Close()
	}
	return err
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// HTTP Handlers

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, StreamPath, http.StatusFound)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if !s.store.IsCapturing() {
		status = "stopped"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{
		"status":  status,
		"version": Version,
	})
}

// Status is the body of GET /api/status
type Status struct {
	Capturing bool           `json:"capturing"`
	HasFrame  bool           `json:"has_frame"`
	Published uint64         `json:"frames_published"`
	LastFrame *time.Time     `json:"last_frame,omitempty"`
	Width     int            `json:"width"`
	Height    int            `json:"height"`
	Viewers   int64          `json:"viewers"`
	Uptime    string         `json:"uptime"`
	Capture   *capture.Stats `json:"capture,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.store.Stats()
	status := Status{
		Capturing: st.Capturing,
		HasFrame:  st.HasFrame,
		Published: st.Published,
		Width:     st.LastWidth,
		Height:    st.LastHeight,
		Viewers:   s.outputs.Viewers(),
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
	}
	if st.HasFrame {
		status.LastFrame = &st.LastFrame
	}
	if s.capture != nil {
		cs := s.capture.Stats()
		status.Capture = &cs
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("Failed to write response")
	}
}
