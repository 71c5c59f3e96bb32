// -----------------------------------------------------------------------
// Generate Handler - single and fan-out job submission
// -----------------------------------------------------------------------

package handlers

import (
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/backlot/internal/common"
	"github.com/ternarybob/backlot/internal/engine"
	"github.com/ternarybob/backlot/internal/models"
)

type GenerateHandler struct {
	logger arbor.ILogger
	engine *engine.Engine
}

func NewGenerateHandler(eng *engine.Engine) *GenerateHandler {
	return &GenerateHandler{
		logger: common.GetLogger(),
		engine: eng,
	}
}

// GenerateHandler submits one generation job and returns immediately
// with the job record; the result arrives through polling.
func (h *GenerateHandler) GenerateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req engine.SubmitRequest
	if !DecodeBody(w, r, &req) {
		return
	}

	job, err := h.engine.Submit(r.Context(), req)
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, job)
}

// BatchHandler fans one request out across every character of a show.
func (h *GenerateHandler) BatchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req engine.BatchRequest
	if !DecodeBody(w, r, &req) {
		return
	}

	jobs, err := h.engine.SubmitBatch(r.Context(), req)
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

func (h *GenerateHandler) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrConfiguration):
		WriteError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg("Submission failed")
		WriteError(w, http.StatusBadGateway, err.Error())
	}
}
