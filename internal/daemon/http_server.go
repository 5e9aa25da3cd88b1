package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"git.home.luguber.info/inful/buildflow/internal/config"
	"git.home.luguber.info/inful/buildflow/internal/logfields"
	"git.home.luguber.info/inful/buildflow/internal/orchestrator"
	"git.home.luguber.info/inful/buildflow/internal/version"
)

// controlAPI is the slice of the engine the HTTP handlers need.
type controlAPI interface {
	SubmitJobs(jobs []orchestrator.Job) error
	Pause() error
	Resume() error
	Drain() error
	EmergencyStop() error
	AdjustConcurrency(limit int) error
	Describe() orchestrator.Snapshot
}

// HTTPServer serves the admin API, metrics and the status page.
type HTTPServer struct {
	cfg      config.ServerConfig
	engine   controlAPI
	registry *prom.Registry
	notes    map[string]string // job key -> markdown notes from schedules
	server   *http.Server
}

// NewHTTPServer builds the admin server for the given engine.
func NewHTTPServer(cfg *config.Config, engine controlAPI, registry *prom.Registry) *HTTPServer {
	notes := make(map[string]string)
	for _, sched := range cfg.Schedules {
		for _, j := range sched.Jobs {
			if j.Notes != "" {
				notes[j.Key] = j.Notes
			}
		}
	}
	return &HTTPServer{
		cfg:      cfg.Server,
		engine:   engine,
		registry: registry,
		notes:    notes,
	}
}

// Handler builds the route table. Exposed for tests.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/jobs", s.handleSubmit)
	mux.HandleFunc("POST /api/pause", s.handleControl("pause", func() error { return s.engine.Pause() }))
	mux.HandleFunc("POST /api/resume", s.handleControl("resume", func() error { return s.engine.Resume() }))
	mux.HandleFunc("POST /api/drain", s.handleControl("drain", func() error { return s.engine.Drain() }))
	mux.HandleFunc("POST /api/stop", s.handleControl("stop", func() error { return s.engine.EmergencyStop() }))
	mux.HandleFunc("POST /api/concurrency", s.handleConcurrency)
	mux.HandleFunc("GET /api/status", s.handleStatus)

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.HandleFunc("GET /status", s.handleStatusPage)

	if s.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	return mux
}

// Start binds the port and begins serving in the background.
func (s *HTTPServer) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("admin port %s: %w", addr, err)
	}

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Admin server error", logfields.Error(err))
		}
	}()

	slog.Info("Admin server started", slog.String("addr", addr))
	return nil
}

// Stop gracefully shuts the server down.
func (s *HTTPServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// submitRequest accepts either a single job or a batch.
type submitRequest struct {
	Jobs []orchestrator.Job `json:"jobs"`
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	body := json.NewDecoder(r.Body)

	if err := body.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if len(req.Jobs) == 0 {
		writeError(w, http.StatusBadRequest, "no jobs in request")
		return
	}
	for _, j := range req.Jobs {
		if j.Key == "" {
			writeError(w, http.StatusBadRequest, "job key is required")
			return
		}
	}

	if err := s.engine.SubmitJobs(req.Jobs); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	slog.Info("Jobs submitted via API", slog.Int("count", len(req.Jobs)))
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": len(req.Jobs)})
}

func (s *HTTPServer) handleControl(name string, fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(); err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		slog.Info("Control signal accepted", slog.String("signal", name))
		writeJSON(w, http.StatusOK, map[string]any{"signal": name})
	}
}

func (s *HTTPServer) handleConcurrency(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Limit *int `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Limit == nil {
		writeError(w, http.StatusBadRequest, "limit is required")
		return
	}

	if err := s.engine.AdjustConcurrency(*req.Limit); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"limit": *req.Limit})
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Describe())
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": version.Version})
}

// Ready means the engine still accepts work: stopped is the only state where
// submissions fail outright.
func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Describe()
	if snap.Mode == orchestrator.ModeStopped {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "stopped"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "mode": snap.Mode})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", logfields.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
