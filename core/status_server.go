package core

// Operational HTTP surface: health, sync status, stop and metrics. The full
// REST API lives outside the ingestion pipeline; these endpoints exist so
// deployments can probe and control the syncer directly.

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// StatusServer serves /healthz, /status, /stop and /metrics.
type StatusServer struct {
	db     *Database
	sync   *SyncService
	logger *logrus.Logger
	srv    *http.Server
}

// NewStatusServer builds the server for the given bind address.
func NewStatusServer(addr string, db *Database, sync *SyncService, lg *logrus.Logger) *StatusServer {
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	s := &StatusServer{db: db, sync: sync, logger: lg}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Post("/stop", s.handleStop)
	r.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves in a background goroutine until Shutdown.
func (s *StatusServer) Start() {
	go func() {
		s.logger.WithField("addr", s.srv.Addr).Info("status server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("status server stopped")
		}
	}()
}

// Shutdown drains the server.
func (s *StatusServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	type statusPayload struct {
		RunID  string                   `json:"run_id,omitempty"`
		Shards map[uint32]ShardSnapshot `json:"shards"`
	}
	payload := statusPayload{Shards: map[uint32]ShardSnapshot{}}
	if s.sync != nil {
		payload.RunID = s.sync.State().RunID()
		payload.Shards = s.sync.Status()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Warn("status encode failed")
	}
}

// handleStop lets `snaprag sync stop` reach a running daemon. Stops are
// honored between commits; force additionally cancels in-flight fetches.
func (s *StatusServer) handleStop(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		http.Error(w, "no sync run active", http.StatusConflict)
		return
	}
	force := r.URL.Query().Get("force") == "true"
	s.sync.Stop(force)
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("stopping"))
}
