package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/majoor/assetindex/internal/config"
	"github.com/majoor/assetindex/internal/logger"
	"github.com/majoor/assetindex/pkg/assetdb"
	"github.com/majoor/assetindex/pkg/enrich"
	"github.com/majoor/assetindex/pkg/indexer"
	"github.com/majoor/assetindex/pkg/maintenance"
	"github.com/majoor/assetindex/pkg/paths"
	"github.com/majoor/assetindex/pkg/search"
	"github.com/majoor/assetindex/pkg/security"
	"github.com/majoor/assetindex/pkg/store"
)

// App bundles every component the handler layer dispatches to. It holds
// no business logic of its own; each field is the authoritative
// subsystem described in spec §4.
type App struct {
	Store       *store.Store
	Registry    *paths.Registry
	CustomRoots *paths.CustomRootStore
	Indexer     *indexer.Indexer
	Enrichment  *enrich.Queue
	Sidecar     *enrich.SidecarSync
	Guard       *security.Guard
	Maintenance *maintenance.Manager
	Settings    *assetdb.SettingsCache
	FSCache     *search.FSCache
	Pause       *search.PauseToken
	Cfg         *config.Config
}

// Server is the HTTP surface (component I): a chi router over App plus
// a standard-library server with graceful shutdown, following the
// Start/Stop shape marmos91-dittofs/pkg/api/server.go uses for its own
// management API.
type Server struct {
	http         *http.Server
	app          *App
	shutdownOnce sync.Once
}

// NewServer builds a Server bound to app, applying the configured
// timeouts to the underlying http.Server.
func NewServer(app *App) *Server {
	cfg := app.Cfg.Server
	return &Server{
		app: app,
		http: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewRouter(app),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Start serves until ctx is cancelled, then drains connections within
// the configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.app.Cfg.Server.ShutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	}
}

// Stop gracefully shuts the server down; safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.http.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("http server shutdown: %w", err)
			logger.Error("HTTP server shutdown error", "error", err)
			return
		}
		logger.Info("HTTP server stopped gracefully")
	})
	return shutdownErr
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.http.Addr }
