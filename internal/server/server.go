// Package server exposes the classifier over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docrag/internal/domain"
	"docrag/internal/logger"
	"docrag/internal/pipeline"
	"docrag/internal/telemetry"
)

// maxBodyBytes bounds a /classify request body.
const maxBodyBytes = 1 << 20

// Server serves the active pipeline. Swap replaces it without interrupting
// in-flight requests.
type Server struct {
	current atomic.Pointer[generation]
	mu      sync.Mutex // serializes Swap and Close
}

// generation is one pipeline and the owner that releases it. Requests hold
// the read lock; retiring takes the write lock, so the owner is closed only
// after the last request on this generation has finished.
type generation struct {
	pipeline *pipeline.Pipeline
	closer   io.Closer

	inflight sync.RWMutex
	retired  bool
}

// New creates a server around p. closer, when non-nil, is released on the
// next Swap or on Close.
func New(p *pipeline.Pipeline, closer io.Closer) *Server {
	s := &Server{}
	s.current.Store(&generation{pipeline: p, closer: closer})
	telemetry.TrackIndex(s.indexLen)
	return s
}

// Pipeline returns the active pipeline.
func (s *Server) Pipeline() *pipeline.Pipeline { return s.current.Load().pipeline }

// Swap installs p as the active pipeline. It waits for requests still running
// on the previous pipeline, then closes the previous owner.
func (s *Server) Swap(p *pipeline.Pipeline, closer io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.current.Swap(&generation{pipeline: p, closer: closer})
	if err := old.retire(); err != nil {
		logger.Warn("Closing replaced pipeline: %v", err)
	}
}

// Close waits for in-flight requests and releases the current owner.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Load().retire()
}

// acquire returns the active generation with its read lock held; callers must
// release it. It reports false once the server is closed.
func (s *Server) acquire() (*generation, bool) {
	for {
		g := s.current.Load()
		g.inflight.RLock()
		if !g.retired {
			return g, true
		}
		g.inflight.RUnlock()
		// Swap publishes its replacement before retiring; a retired
		// generation that is still current means Close ran.
		if s.current.Load() == g {
			return nil, false
		}
	}
}

func (g *generation) release() { g.inflight.RUnlock() }

func (g *generation) retire() error {
	g.inflight.Lock()
	defer g.inflight.Unlock()
	if g.retired {
		return nil
	}
	g.retired = true
	if g.closer == nil {
		return nil
	}
	return g.closer.Close()
}

func (s *Server) indexLen() int {
	p := s.Pipeline()
	if p == nil {
		return 0
	}
	return p.Retrieval().Index().Len()
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/classify", s.Classify)
	mux.HandleFunc("/healthz", s.Healthz)
	mux.Handle("/metrics", promhttp.HandlerFor(telemetry.Registry, promhttp.HandlerOpts{}))
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// ClassifyRequest is the POST /classify body. DocType and DocCode are an
// optional ground truth scored into the response metrics.
type ClassifyRequest struct {
	Summary string `json:"summary"`
	DocType string `json:"doc_type,omitempty"`
	DocCode string `json:"doc_code,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Message: msg, Code: code}})
}

// Classify handles POST /classify.
func (s *Server) Classify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "method_not_allowed")
		return
	}
	var req ClassifyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "invalid_request")
		return
	}
	if strings.TrimSpace(req.Summary) == "" {
		writeError(w, http.StatusBadRequest, "summary is required", "invalid_request")
		return
	}
	g, ok := s.acquire()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "classifier closed", "unavailable")
		return
	}
	defer g.release()
	p := g.pipeline
	if p == nil {
		writeError(w, http.StatusServiceUnavailable, "classifier not ready", "unavailable")
		return
	}

	var truth *domain.Decision
	if req.DocType != "" {
		truth = &domain.Decision{DocType: req.DocType, DocCode: req.DocCode}
	}
	res, err := p.Run(r.Context(), req.Summary, truth)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error(), "cancelled")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Health is the GET /healthz body.
type Health struct {
	Status   string `json:"status"`
	Provider string `json:"provider"`
	Records  int    `json:"records"`
}

// Healthz handles GET /healthz.
func (s *Server) Healthz(w http.ResponseWriter, _ *http.Request) {
	p := s.Pipeline()
	if p == nil {
		writeJSON(w, http.StatusServiceUnavailable, Health{Status: "starting"})
		return
	}
	idx := p.Retrieval().Index()
	writeJSON(w, http.StatusOK, Health{Status: "ok", Provider: idx.Provider(), Records: idx.Len()})
}
