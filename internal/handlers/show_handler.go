// -----------------------------------------------------------------------
// Show Handler - show creation, listing, reconciled status, and the
// portrait grid
// -----------------------------------------------------------------------

package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/backlot/internal/common"
	"github.com/ternarybob/backlot/internal/compositor"
	"github.com/ternarybob/backlot/internal/interfaces"
	"github.com/ternarybob/backlot/internal/models"
	"github.com/ternarybob/backlot/internal/reconcile"
)

type ShowHandler struct {
	logger     arbor.ILogger
	storage    interfaces.SnapshotStorage
	registry   interfaces.TaskRegistry
	compositor *compositor.Compositor
}

func NewShowHandler(storage interfaces.SnapshotStorage, registry interfaces.TaskRegistry, comp *compositor.Compositor) *ShowHandler {
	return &ShowHandler{
		logger:     common.GetLogger(),
		storage:    storage,
		registry:   registry,
		compositor: comp,
	}
}

type createShowRequest struct {
	Title string `json:"title"`
}

// ListShowsHandler returns all show snapshots, newest first.
func (h *ShowHandler) ListShowsHandler(w http.ResponseWriter, r *http.Request) {
	shows, err := h.storage.ListSnapshots(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list shows")
		WriteError(w, http.StatusInternalServerError, "failed to list shows")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"shows": shows,
		"count": len(shows),
	})
}

// CreateShowHandler creates an empty show snapshot.
func (h *ShowHandler) CreateShowHandler(w http.ResponseWriter, r *http.Request) {
	var req createShowRequest
	if !DecodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		WriteError(w, http.StatusBadRequest, "title is required")
		return
	}

	snapshot := models.NewShowSnapshot(common.NewShowID(), strings.TrimSpace(req.Title))
	if err := h.storage.CreateSnapshot(r.Context(), snapshot); err != nil {
		h.logger.Error().Err(err).Msg("Failed to create show")
		WriteError(w, http.StatusInternalServerError, "failed to create show")
		return
	}

	h.logger.Info().Str("show_id", snapshot.ShowID).Str("title", snapshot.Title).Msg("Show created")
	WriteJSON(w, http.StatusCreated, snapshot)
}

// GetShowHandler returns one show's snapshot.
func (h *ShowHandler) GetShowHandler(w http.ResponseWriter, r *http.Request, showID string) {
	snapshot, err := h.storage.GetSnapshot(r.Context(), showID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "show not found")
			return
		}
		h.logger.Error().Err(err).Str("show_id", showID).Msg("Failed to load show")
		WriteError(w, http.StatusInternalServerError, "failed to load show")
		return
	}

	WriteJSON(w, http.StatusOK, snapshot)
}

// StatusHandler returns the reconciled per-step status for a show.
// Persisted completion always wins over ephemeral job state.
func (h *ShowHandler) StatusHandler(w http.ResponseWriter, r *http.Request, showID string) {
	snapshot, err := h.storage.GetSnapshot(r.Context(), showID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "show not found")
			return
		}
		h.logger.Error().Err(err).Str("show_id", showID).Msg("Failed to load show for status")
		WriteError(w, http.StatusInternalServerError, "failed to load show")
		return
	}

	status := reconcile.ShowStatus(snapshot, h.registry.ForShow(showID))
	WriteJSON(w, http.StatusOK, status)
}

// GridHandler renders and returns the portrait grid as PNG. A show
// with only some portraits still renders; empty slots stay blank.
func (h *ShowHandler) GridHandler(w http.ResponseWriter, r *http.Request, showID string) {
	snapshot, err := h.storage.GetSnapshot(r.Context(), showID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "show not found")
			return
		}
		h.logger.Error().Err(err).Str("show_id", showID).Msg("Failed to load show for grid")
		WriteError(w, http.StatusInternalServerError, "failed to load show")
		return
	}

	if snapshot.SeedCount() == 0 {
		WriteError(w, http.StatusConflict, "show has no characters yet")
		return
	}

	data, err := h.compositor.ComposeShow(r.Context(), snapshot)
	if err != nil {
		h.logger.Error().Err(err).Str("show_id", showID).Msg("Grid composition failed")
		WriteError(w, http.StatusInternalServerError, "grid composition failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
