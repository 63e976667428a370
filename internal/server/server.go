package server

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"govscope/internal/indexer"
)

// SyncRunner is the engine as seen by the trigger endpoint.
type SyncRunner interface {
	Run(ctx context.Context) (indexer.Summary, error)
}

// Server exposes the sync trigger over HTTP.
type Server struct {
	runner SyncRunner
	logger *zap.Logger
}

func New(runner SyncRunner, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{runner: runner, logger: logger}
}

// Handler returns the HTTP handler for the trigger endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sync", s.handleSync)
	return mux
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	summary, err := s.runner.Run(r.Context())
	if err != nil {
		s.logger.Error("sync invocation failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	status := http.StatusOK
	if summary.RateLimited {
		status = http.StatusTooManyRequests
		seconds := int(math.Ceil(summary.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	writeJSON(w, status, summary)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
