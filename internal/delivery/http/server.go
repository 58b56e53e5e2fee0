// Package http exposes the operational HTTP surface: health and metrics.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/MarkPereverzov/Memberly/config"
	"github.com/MarkPereverzov/Memberly/internal/domain"
)

// Server serves /healthz and /metrics on the service port
type Server struct {
	srv    *http.Server
	logger zerolog.Logger
}

// NewServer creates the operational HTTP server
func NewServer(cfg *config.ServiceConfig, pool domain.AccountPool, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		accounts := pool.ActiveAccounts()

		status := "ok"
		code := http.StatusOK
		if len(accounts) == 0 {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   status,
			"service":  cfg.Name,
			"accounts": len(accounts),
		})
	})

	return &Server{
		srv: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("component", "http_server").Logger(),
	}
}

// Start begins serving in the background
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("HTTP server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
