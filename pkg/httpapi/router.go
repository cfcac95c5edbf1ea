package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/majoor/assetindex/pkg/metrics"
	"github.com/majoor/assetindex/pkg/security"
)

// mutationRateLimit is the default per-endpoint budget applied to every
// state-changing handler via writeGuard, matching the 30-calls/60s
// budget spec §8 scenario 6 exercises for /asset/rating.
const (
	mutationRateLimitMax    = 30
	mutationRateLimitWindow = 60

	readRateLimitMax    = 120
	readRateLimitWindow = 60

	autocompleteRateLimitMax    = 60
	autocompleteRateLimitWindow = 60
)

// NewRouter builds the chi router over app, wiring every handler
// through the middleware stack marmos91-dittofs/pkg/api/router.go uses
// (request id, real ip, structured request logging, panic recovery,
// timeout) plus this system's own maintenance fence, body-size limit,
// and security guard. Every route is mounted under /mjr/am per spec §6.
func NewRouter(app *App) http.Handler {
	s := &Server{app: app}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(app.Cfg.Storage.HardTimeout))
	r.Use(s.limitBody)

	// Liveness/readiness probes are intentionally outside /mjr/am and
	// the maintenance fence: an operator checking whether the process
	// is alive must get an answer even mid-reset.
	r.Get("/health", s.handleHealth)

	if app.Cfg.Metrics.Enabled && metrics.IsEnabled() {
		r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	}

	r.Route("/mjr/am", func(r chi.Router) {
		r.Use(s.maintenanceFence)

		// Diagnostics
		r.Get("/health", s.handleHealth)
		r.Get("/health/counters", s.handleHealthCounters)
		r.Get("/health/db", s.handleHealthDB)
		r.Get("/status", s.handleStatus)

		// Listing / search — read endpoints touch the interaction-pause
		// token so background enrichment yields while the UI is active.
		r.Get("/list", s.touchPause(s.readGuard("list", readRateLimitMax, readRateLimitWindow, s.handleList)))
		r.Get("/search", s.touchPause(s.readGuard("search", readRateLimitMax, readRateLimitWindow, s.handleSearch)))
		r.Get("/autocomplete", s.touchPause(s.readGuard("autocomplete", autocompleteRateLimitMax, autocompleteRateLimitWindow, s.handleAutocomplete)))
		r.Get("/tags", s.handleTags)
		r.Get("/calendar", s.touchPause(s.readGuard("calendar", readRateLimitMax, readRateLimitWindow, s.handleCalendar)))
		r.Get("/duplicates/alerts", s.readGuard("duplicates_alerts", readRateLimitMax, readRateLimitWindow, s.handleDuplicatesAlerts))
		r.Get("/workflow-quick", s.handleWorkflowQuick)
		r.Get("/metadata", s.handleMetadata)

		// Assets
		r.Get("/asset/{id}", s.handleGetAsset)
		r.Post("/assets/batch", s.handleAssetsBatch)
		r.Post("/asset/rating", s.writeGuard(security.OpWrite, "asset_rating", mutationRateLimitMax, mutationRateLimitWindow, s.handleAssetRating))
		r.Post("/asset/tags", s.writeGuard(security.OpWrite, "asset_tags", mutationRateLimitMax, mutationRateLimitWindow, s.handleAssetTags))
		r.Post("/asset/delete", s.writeGuard(security.OpDelete, "asset_delete", mutationRateLimitMax, mutationRateLimitWindow, s.handleAssetDelete))
		r.Post("/assets/delete", s.writeGuard(security.OpDelete, "assets_delete", mutationRateLimitMax, mutationRateLimitWindow, s.handleAssetsDelete))
		r.Post("/asset/rename", s.writeGuard(security.OpRename, "asset_rename", mutationRateLimitMax, mutationRateLimitWindow, s.handleAssetRename))
		r.Post("/open-in-folder", s.writeGuard(security.OpOpenInFolder, "open_in_folder", mutationRateLimitMax, mutationRateLimitWindow, s.handleOpenInFolder))

		// Scan / custom roots
		r.Post("/scan", s.writeGuard(security.OpWrite, "scan", mutationRateLimitMax, mutationRateLimitWindow, s.handleScan))
		r.Get("/custom-roots", s.handleListCustomRoots)
		r.Post("/custom-roots", s.writeGuard(security.OpWrite, "custom_roots_add", mutationRateLimitMax, mutationRateLimitWindow, s.handleAddCustomRoot))
		r.Post("/custom-roots/remove", s.writeGuard(security.OpWrite, "custom_roots_remove", mutationRateLimitMax, mutationRateLimitWindow, s.handleRemoveCustomRoot))

		// Media serving
		r.Get("/custom-view", s.handleCustomView)

		// Collections
		r.Get("/collections", s.handleListCollections)
		r.Post("/collections", s.writeGuard(security.OpWrite, "collections_create", mutationRateLimitMax, mutationRateLimitWindow, s.handleCreateCollection))
		r.Get("/collections/{id}", s.handleGetCollection)
		r.Post("/collections/{id}/items", s.writeGuard(security.OpWrite, "collections_set_items", mutationRateLimitMax, mutationRateLimitWindow, s.handleSetCollectionItems))
		r.Post("/collections/{id}/delete", s.writeGuard(security.OpDelete, "collections_delete", mutationRateLimitMax, mutationRateLimitWindow, s.handleDeleteCollection))

		// Settings
		r.Get("/settings", s.handleListSettings)
		r.Get("/settings/get", s.handleGetSetting)
		r.Post("/settings/put", s.writeGuard(security.OpWrite, "settings_put", mutationRateLimitMax, mutationRateLimitWindow, s.handlePutSetting))

		// Maintenance — every op here is gated on its own allowlist key
		// plus the reset_index opt-in where the original requires it.
		r.Post("/db/force-delete", s.writeGuard(security.OpResetIndex, "db_force_delete", mutationRateLimitMax, mutationRateLimitWindow, s.handleForceDelete))
		r.Post("/db/backup-save", s.writeGuard(security.OpWrite, "db_backup_save", mutationRateLimitMax, mutationRateLimitWindow, s.handleBackupSave))
		r.Post("/db/backup-restore", s.writeGuard(security.OpResetIndex, "db_backup_restore", mutationRateLimitMax, mutationRateLimitWindow, s.handleBackupRestore))
		r.Get("/db/backups", s.handleListBackups)
		r.Post("/db/cleanup-case-duplicates", s.writeGuard(security.OpResetIndex, "db_cleanup_case_duplicates", mutationRateLimitMax, mutationRateLimitWindow, s.handleCleanupCaseDuplicates))
	})

	return r
}
