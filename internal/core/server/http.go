// Package server provides HTTP server lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/reachpoint/reachpoint/internal/core/api"
	"github.com/reachpoint/reachpoint/internal/core/config"
)

// HTTPServer manages the API server lifecycle.
type HTTPServer struct {
	server *http.Server
	config *config.ServerConfig
	log    zerolog.Logger
}

// NewHTTPServer creates the server around the service's route table.
func NewHTTPServer(cfg *config.ServerConfig, service *api.Service, log zerolog.Logger) (*HTTPServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      service.Router(),
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
		IdleTimeout:  2 * cfg.RequestTimeout,
	}

	return &HTTPServer{
		server: srv,
		config: cfg,
		log:    log.With().Str("component", "server").Logger(),
	}, nil
}

// Start serves HTTP requests until Shutdown is called.
func (s *HTTPServer) Start(ctx context.Context) error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server with a 30-second cap, then forces
// close.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.server.Close()
		return fmt.Errorf("graceful shutdown failed, forced close: %w", err)
	}
	return nil
}
