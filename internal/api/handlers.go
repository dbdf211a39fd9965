// Package api exposes the local HTTP control surface: health, habit
// reads, sync triggering, and migration control.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/cadence/internal/migrate"
	"github.com/hyperengineering/cadence/internal/store"
	"github.com/hyperengineering/cadence/internal/types"
)

// SyncTrigger runs one sync pass on demand.
type SyncTrigger interface {
	Sync(ctx context.Context) (*types.SyncResult, error)
}

// Migrator is the migration surface the API exposes.
type Migrator interface {
	Run(ctx context.Context, userID string, dryRun bool) (*migrate.Summary, error)
	Rollback(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (*migrate.Status, error)
}

// Handler implements the API handlers
type Handler struct {
	store    store.Store
	syncer   SyncTrigger
	migrator Migrator
	apiKey   string
	version  string
}

// NewHandler creates a new Handler. syncer may be nil when sync is
// disabled; the sync endpoint then returns 503.
func NewHandler(s store.Store, sync SyncTrigger, m Migrator, apiKey, version string) *Handler {
	return &Handler{
		store:    s,
		syncer:   sync,
		migrator: m,
		apiKey:   apiKey,
		version:  version,
	}
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{Status: "healthy", Version: h.version})
}

// ListHabits handles GET /api/v1/users/{userID}/habits
func (h *Handler) ListHabits(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	records, err := h.store.LoadUserRecords(r.Context(), userID)
	if err != nil {
		slog.Error("list habits failed", "error", err, "user_id", userID)
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, records)
}

// GetHabit handles GET /api/v1/habits/{id}
func (h *Handler) GetHabit(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.LoadRecord(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, rec)
}

// GetStreak handles GET /api/v1/users/{userID}/streak
func (h *Handler) GetStreak(w http.ResponseWriter, r *http.Request) {
	summary, err := h.store.LoadStreak(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, summary)
}

// GetProgress handles GET /api/v1/users/{userID}/progress
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.store.LoadUserProgress(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, progress)
}

// TriggerSync handles POST /api/v1/sync, running one pass inline.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if h.syncer == nil {
		WriteProblem(w, r, http.StatusServiceUnavailable, "Sync is disabled")
		return
	}

	result, err := h.syncer.Sync(r.Context())
	if err != nil {
		slog.Error("manual sync failed", "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Sync pass failed")
		return
	}
	writeJSON(w, result)
}

// MigrationStatus handles GET /api/v1/users/{userID}/migration
func (h *Handler) MigrationStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.migrator.Status(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, status)
}

// RunMigration handles POST /api/v1/users/{userID}/migration.
// With ?dry_run=true the run validates everything and persists nothing.
func (h *Handler) RunMigration(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	dryRun := r.URL.Query().Get("dry_run") == "true"

	summary, err := h.migrator.Run(r.Context(), userID, dryRun)
	if err != nil {
		if summary != nil && len(summary.Violations) > 0 {
			WriteProblemWithViolations(w, r, "Migration failed validation", summary.Violations)
			return
		}
		if errors.Is(err, store.ErrAlreadyMigrated) || errors.Is(err, store.ErrNoLegacyData) {
			MapStoreError(w, r, err)
			return
		}
		slog.Error("migration failed", "error", err, "user_id", userID)
		WriteProblem(w, r, http.StatusInternalServerError, "Migration failed")
		return
	}
	writeJSON(w, summary)
}

// RollbackMigration handles POST /api/v1/users/{userID}/migration/rollback
func (h *Handler) RollbackMigration(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := h.migrator.Rollback(r.Context(), userID); err != nil {
		slog.Error("rollback failed", "error", err, "user_id", userID)
		MapStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
