// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
	"strconv"

	"github.com/okian/refbox/internal/domain/model"
)

// ScoresheetHandler handles scoresheet requests.
type ScoresheetHandler struct {
	deps ScoresheetOps
}

// NewScoresheetHandler creates a new scoresheet handler.
func NewScoresheetHandler(deps ScoresheetOps) *ScoresheetHandler {
	return &ScoresheetHandler{deps: deps}
}

// HandleList handles GET /divisions/{division}/scoresheets requests.
func (h *ScoresheetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	sheets, err := h.deps.Scoresheets(r.Context(), r.PathValue("division"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sheets)
}

// HandleGet handles GET /scoresheets/{id} requests.
func (h *ScoresheetHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sheet, err := h.deps.Scoresheet(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sheet)
}

type clauseRequest struct {
	Value    *model.ClauseValue `json:"value"`
	Override bool               `json:"override"`
}

// HandleUpdateClause handles
// PUT /scoresheets/{id}/missions/{mission}/clauses/{index} requests. A null
// value clears the clause back to unanswered.
func (h *ScoresheetHandler) HandleUpdateClause(w http.ResponseWriter, r *http.Request) {
	const op = "api.scoresheet_clause"
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	var req clauseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	sheet, err := h.deps.UpdateMissionClause(r.Context(), callerFrom(r),
		r.PathValue("id"), r.PathValue("mission"), index, req.Value, req.Override)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sheet)
}

type gpRequest struct {
	Value    *int   `json:"value"`
	Notes    string `json:"notes"`
	Override bool   `json:"override"`
}

// HandleUpdateGP handles PUT /scoresheets/{id}/gp requests.
func (h *ScoresheetHandler) HandleUpdateGP(w http.ResponseWriter, r *http.Request) {
	var req gpRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	sheet, err := h.deps.UpdateGP(r.Context(), callerFrom(r), r.PathValue("id"), req.Value, req.Notes, req.Override)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sheet)
}

type signatureRequest struct {
	Signature string `json:"signature"`
	Override  bool   `json:"override"`
}

// HandleUpdateSignature handles PUT /scoresheets/{id}/signature requests.
func (h *ScoresheetHandler) HandleUpdateSignature(w http.ResponseWriter, r *http.Request) {
	var req signatureRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	sheet, err := h.deps.UpdateSignature(r.Context(), callerFrom(r), r.PathValue("id"), req.Signature, req.Override)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sheet)
}

type statusRequest struct {
	Status string `json:"status"`
}

// HandleUpdateStatus handles PUT /scoresheets/{id}/status requests.
func (h *ScoresheetHandler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	sheet, err := h.deps.UpdateScoresheetStatus(r.Context(), callerFrom(r),
		r.PathValue("id"), model.ScoresheetStatus(req.Status))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sheet)
}

type escalationRequest struct {
	Escalated bool `json:"escalated"`
}

// HandleSetEscalation handles PUT /scoresheets/{id}/escalation requests.
func (h *ScoresheetHandler) HandleSetEscalation(w http.ResponseWriter, r *http.Request) {
	var req escalationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	sheet, err := h.deps.SetEscalation(r.Context(), callerFrom(r), r.PathValue("id"), req.Escalated)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sheet)
}

// HandleReset handles POST /scoresheets/{id}/reset requests.
func (h *ScoresheetHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	sheet, err := h.deps.ResetScoresheet(r.Context(), callerFrom(r), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sheet)
}
