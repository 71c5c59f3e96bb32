// -----------------------------------------------------------------------
// Job Handler - ephemeral job record queries and dismissal
// -----------------------------------------------------------------------

package handlers

import (
	"errors"
	"net/http"
	"sort"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/backlot/internal/common"
	"github.com/ternarybob/backlot/internal/engine"
	"github.com/ternarybob/backlot/internal/interfaces"
	"github.com/ternarybob/backlot/internal/models"
)

type JobHandler struct {
	logger   arbor.ILogger
	registry interfaces.TaskRegistry
	engine   *engine.Engine
}

func NewJobHandler(registry interfaces.TaskRegistry, eng *engine.Engine) *JobHandler {
	return &JobHandler{
		logger:   common.GetLogger(),
		registry: registry,
		engine:   eng,
	}
}

// ListJobsHandler returns every record in the registry, newest first,
// optionally filtered by show id.
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobs := h.registry.All()
	if showID := r.URL.Query().Get("show_id"); showID != "" {
		filtered := jobs[:0]
		for _, job := range jobs {
			if job.Target.ShowID == showID {
				filtered = append(filtered, job)
			}
		}
		jobs = filtered
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartedAt.After(jobs[j].StartedAt)
	})

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// GetJobHandler returns one job record by id.
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	job := h.registry.GetByJobID(jobID)
	if job == nil {
		WriteError(w, http.StatusNotFound, "job not found")
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

type dismissRequest struct {
	ShowID       string         `json:"show_id"`
	Kind         models.JobKind `json:"kind"`
	CharacterID  string         `json:"character_id,omitempty"`
	SectionLabel string         `json:"section_label,omitempty"`
}

func (req dismissRequest) key() models.TaskKey {
	return models.TaskKey{
		ShowID:       req.ShowID,
		Kind:         req.Kind,
		CharacterID:  req.CharacterID,
		SectionLabel: req.SectionLabel,
	}
}

// DismissHandler removes a terminal record from the registry so the
// step shows as pending again. Active jobs cannot be dismissed.
func (h *JobHandler) DismissHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req dismissRequest
	if !DecodeBody(w, r, &req) {
		return
	}

	if !h.engine.Dismiss(req.key()) {
		WriteError(w, http.StatusConflict, "no terminal record to dismiss for that key")
		return
	}

	h.logger.Info().Str("key", req.key().String()).Msg("Job record dismissed")
	WriteSuccess(w, "dismissed")
}

// RetryPersistHandler retries only the durable write for a job whose
// provider work succeeded but whose snapshot update failed.
func (h *JobHandler) RetryPersistHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req dismissRequest
	if !DecodeBody(w, r, &req) {
		return
	}

	if err := h.engine.RetryPersist(r.Context(), req.key()); err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			WriteError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, models.ErrValidation):
			WriteError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error().Err(err).Str("key", req.key().String()).Msg("Persistence retry failed")
			WriteError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	WriteSuccess(w, "persisted")
}
