package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"aviator-tracker-go/internal/pipeline"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the read-only operational surface: /metrics, /healthz, a JSON
// stats endpoint and a websocket stream of the same snapshots. Observability
// outputs only, never control inputs.
type Server struct {
	addr    string
	hub     *Hub
	statsFn func() pipeline.MetricsSnapshot
	srv     *http.Server
	logger  *slog.Logger
}

func NewServer(addr string, statsFn func() pipeline.MetricsSnapshot) *Server {
	return &Server{
		addr:    addr,
		hub:     NewHub(),
		statsFn: statsFn,
		logger:  slog.Default(),
	}
}

// Start serves in the background and broadcasts a stats snapshot every
// second until ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/ws", s.hub.ServeWS)

	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go s.hub.Run(ctx)
	go s.broadcastLoop(ctx)
	go func() {
		s.logger.Info("admin_server_listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin_server_error", "err", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.hub.Broadcast(WSEvent{Type: "stats", Data: s.statsFn()})
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.statsFn())
}
