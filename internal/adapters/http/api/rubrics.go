// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"

	"github.com/okian/refbox/internal/domain/model"
)

// RubricHandler handles rubric requests.
type RubricHandler struct {
	deps RubricOps
}

// NewRubricHandler creates a new rubric handler.
func NewRubricHandler(deps RubricOps) *RubricHandler {
	return &RubricHandler{deps: deps}
}

// HandleList handles GET /divisions/{division}/rubrics requests.
func (h *RubricHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	rubrics, err := h.deps.Rubrics(r.Context(), r.PathValue("division"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rubrics)
}

// HandleGet handles GET /rubrics/{id} requests.
func (h *RubricHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rubric, err := h.deps.Rubric(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rubric)
}

type fieldRequest struct {
	Value *int   `json:"value"`
	Notes string `json:"notes"`
}

// HandleUpdateField handles PUT /rubrics/{id}/fields/{field} requests.
func (h *RubricHandler) HandleUpdateField(w http.ResponseWriter, r *http.Request) {
	var req fieldRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	rubric, err := h.deps.UpdateRubricField(r.Context(), callerFrom(r),
		r.PathValue("id"), r.PathValue("field"), req.Value, req.Notes)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rubric)
}

type feedbackRequest struct {
	GreatJob   string `json:"greatJob"`
	ThinkAbout string `json:"thinkAbout"`
}

// HandleUpdateFeedback handles PUT /rubrics/{id}/feedback requests.
func (h *RubricHandler) HandleUpdateFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	rubric, err := h.deps.UpdateFeedback(r.Context(), callerFrom(r), r.PathValue("id"), req.GreatJob, req.ThinkAbout)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rubric)
}

type awardsRequest struct {
	Awards map[string]bool `json:"awards"`
}

// HandleUpdateAwards handles PUT /rubrics/{id}/awards requests.
func (h *RubricHandler) HandleUpdateAwards(w http.ResponseWriter, r *http.Request) {
	var req awardsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	rubric, err := h.deps.UpdateAwards(r.Context(), callerFrom(r), r.PathValue("id"), req.Awards)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rubric)
}

// HandleUpdateStatus handles PUT /rubrics/{id}/status requests.
func (h *RubricHandler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	rubric, err := h.deps.UpdateRubricStatus(r.Context(), callerFrom(r),
		r.PathValue("id"), model.RubricStatus(req.Status))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rubric)
}

// HandleReset handles POST /rubrics/{id}/reset requests.
func (h *RubricHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	rubric, err := h.deps.ResetRubric(r.Context(), callerFrom(r), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rubric)
}
