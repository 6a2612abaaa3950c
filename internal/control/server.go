// Package control exposes the daemon's local HTTP control surface:
// health, automation start/stop/status, and the published-content log.
package control

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/user/mastopilot/internal/automation"
	"github.com/user/mastopilot/internal/types"
)

// Server is a lightweight HTTP handler for the control endpoints.
type Server struct {
	supervisor  *automation.Supervisor
	contents    types.ContentStore
	stopTimeout time.Duration
	mux         *http.ServeMux
}

// NewServer creates a control Server over the given supervisor and
// content log.
func NewServer(supervisor *automation.Supervisor, contents types.ContentStore, stopTimeout time.Duration) *Server {
	s := &Server{
		supervisor:  supervisor,
		contents:    contents,
		stopTimeout: stopTimeout,
		mux:         http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/automation/start", s.handleStart)
	s.mux.HandleFunc("POST /api/automation/stop", s.handleStop)
	s.mux.HandleFunc("GET /api/automation/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/contents", s.handleContents)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.supervisor.Start()
	slog.Info("automation start requested via control API")
	s.writeStatus(w)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !s.supervisor.Stop(s.stopTimeout) {
		slog.Warn("automation stop timed out", "timeout", s.stopTimeout)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusGatewayTimeout)
		json.NewEncoder(w).Encode(map[string]string{"error": "stop timed out with listeners still busy"})
		return
	}
	s.writeStatus(w)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w)
}

// statusResponse is the JSON body for GET /api/automation/status.
type statusResponse struct {
	Running   bool                   `json:"running"`
	Listeners []types.ListenerStatus `json:"listeners"`
}

func (s *Server) writeStatus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statusResponse{
		Running:   s.supervisor.Running(),
		Listeners: s.supervisor.Status(),
	})
}

func (s *Server) handleContents(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, `{"error":"limit must be a positive integer"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}

	recent, err := s.contents.Recent(limit)
	if err != nil {
		slog.Error("content log read failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if recent == nil {
		recent = []*types.GeneratedContent{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(recent)
}
