// Package controlplane exposes the assistant's control surface: a REST API
// and a WebSocket hub over which clients observe transcripts and speaking
// state and issue mute, stop, and chat commands.
package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/syedmehfooz47/Friday2/internal/audiostate"
	"github.com/syedmehfooz47/Friday2/internal/chatlog"
	"github.com/syedmehfooz47/Friday2/internal/health"
	"github.com/syedmehfooz47/Friday2/internal/observe"
	"github.com/syedmehfooz47/Friday2/internal/session"
)

const defaultChatlogLimit = 50

// Config holds the control-plane server settings.
type Config struct {
	// ListenAddr is the address the HTTP server binds to.
	ListenAddr string
	// ShutdownTimeout bounds graceful shutdown. Default 5s.
	ShutdownTimeout time.Duration
}

// Server serves the REST API, the WebSocket hub, health endpoints, and the
// Prometheus scrape endpoint on a single listener.
type Server struct {
	cfg     Config
	log     *slog.Logger
	metrics *observe.Metrics

	control  session.Control
	mute     *audiostate.Store
	chatPath string
	hub      *Hub
	checker  *health.Handler

	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithMetrics sets the metrics instruments used by the server and hub.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealth sets the health handler serving /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.checker = h }
}

// WithHub uses an existing hub instead of creating one. Needed when the hub
// must exist before the session loop that feeds it is constructed.
func WithHub(h *Hub) Option {
	return func(s *Server) { s.hub = h }
}

// New assembles a Server. The hub it creates should be wired into the
// session loop as its notifier; retrieve it with [Server.Hub].
func New(cfg Config, control session.Control, mute *audiostate.Store, chatPath string, opts ...Option) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	s := &Server{
		cfg:      cfg,
		log:      slog.Default(),
		metrics:  observe.DefaultMetrics(),
		control:  control,
		mute:     mute,
		chatPath: chatPath,
	}
	for _, o := range opts {
		o(s)
	}
	if s.hub == nil {
		s.hub = NewHub(s.log, s.metrics)
	}
	if s.checker == nil {
		s.checker = health.New()
	}

	mux := http.NewServeMux()
	s.checker.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /api/assistant-state", s.handleState)
	mux.HandleFunc("GET /api/mic-state", s.handleGetMic)
	mux.HandleFunc("POST /api/mic-state", s.handleSetMic)
	mux.HandleFunc("POST /api/stop-speaking", s.handleStopSpeaking)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/chatlogs", s.handleChatlogs)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           observe.Middleware(s.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Hub returns the broadcast hub. Pass it to the session loop via
// session.WithNotifier so live events reach WebSocket clients.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the assembled HTTP handler, useful for serving through a
// caller-owned listener or an httptest server.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Run serves until ctx is cancelled, then shuts down gracefully. Mute-state
// changes from any source are mirrored to WebSocket clients while running.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("controlplane: listen %s: %w", s.cfg.ListenAddr, err)
	}
	s.log.Info("control plane listening", "addr", ln.Addr().String())

	changes, cancelSub := s.mute.Subscribe()
	defer cancelSub()
	go func() {
		for change := range changes {
			s.hub.Broadcast(ServerMessage{Type: MsgMicState, MicMuted: boolPtr(change.Muted)})
		}
	}()

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.httpServer.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutCtx); err != nil {
			return fmt.Errorf("controlplane: shutdown: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("controlplane: serve: %w", err)
	}
}

// ── REST handlers ──

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"running":   s.control.Running(),
		"mic_muted": s.mute.Muted(),
		"speaking":  s.control.Speaking(),
	})
}

func (s *Server) handleGetMic(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"muted": s.mute.Muted()})
}

func (s *Server) handleSetMic(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Muted *bool `json:"muted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Muted == nil {
		writeError(w, http.StatusBadRequest, "body must be {\"muted\": true|false}")
		return
	}

	res, err := s.mute.Set(r.Context(), *req.Muted, "rest")
	if errors.Is(err, audiostate.ErrTooFrequent) {
		s.metrics.RecordMuteToggle(r.Context(), "rest", "rejected")
		writeError(w, http.StatusTooManyRequests, "too frequent toggles")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.metrics.RecordMuteToggle(r.Context(), "rest", "applied")

	// Report the verified post-state, not the requested one.
	writeJSON(w, http.StatusOK, map[string]any{
		"muted":     res.Muted,
		"persisted": res.Persisted,
	})
}

func (s *Server) handleStopSpeaking(w http.ResponseWriter, r *http.Request) {
	ok, reason := s.control.StopSpeaking("rest")
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]any{
			"stopped": false,
			"reason":  reason,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stopped": true})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "body must be {\"text\": \"...\"}")
		return
	}
	if err := s.control.SubmitText(req.Text); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

func (s *Server) handleChatlogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultChatlogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := chatlog.Tail(s.chatPath, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []chatlog.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
