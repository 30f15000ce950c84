// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"

	"github.com/okian/refbox/internal/domain/lifecycle"
)

// MatchHandler handles field and match requests.
type MatchHandler struct {
	deps MatchOps
}

// NewMatchHandler creates a new match handler.
func NewMatchHandler(deps MatchOps) *MatchHandler {
	return &MatchHandler{deps: deps}
}

// HandleGetState handles GET /divisions/{division}/state requests.
func (h *MatchHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	state, err := h.deps.State(r.Context(), r.PathValue("division"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// HandleListMatches handles GET /divisions/{division}/matches requests.
func (h *MatchHandler) HandleListMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := h.deps.Matches(r.Context(), r.PathValue("division"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

// HandleGetMatch handles GET /divisions/{division}/matches/{id} requests.
func (h *MatchHandler) HandleGetMatch(w http.ResponseWriter, r *http.Request) {
	match, err := h.deps.Match(r.Context(), r.PathValue("division"), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

// HandleLoadMatch handles POST /divisions/{division}/matches/{id}/load requests.
func (h *MatchHandler) HandleLoadMatch(w http.ResponseWriter, r *http.Request) {
	match, err := h.deps.LoadMatch(r.Context(), callerFrom(r), r.PathValue("division"), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

type startRequest struct {
	Force bool `json:"force"`
}

// HandleStartMatch handles POST /divisions/{division}/matches/start requests.
// The body is optional; an empty body starts without force.
func (h *MatchHandler) HandleStartMatch(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
	}
	match, err := h.deps.StartMatch(r.Context(), callerFrom(r), r.PathValue("division"), req.Force)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

// HandleCompleteMatch handles POST /divisions/{division}/matches/complete requests.
func (h *MatchHandler) HandleCompleteMatch(w http.ResponseWriter, r *http.Request) {
	match, err := h.deps.CompleteMatch(r.Context(), callerFrom(r), r.PathValue("division"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

// HandleAbortMatch handles POST /divisions/{division}/matches/abort requests.
func (h *MatchHandler) HandleAbortMatch(w http.ResponseWriter, r *http.Request) {
	match, err := h.deps.AbortMatch(r.Context(), callerFrom(r), r.PathValue("division"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

type participantRequest struct {
	Queued  *bool `json:"queued"`
	Present *bool `json:"present"`
	Ready   *bool `json:"ready"`
}

// HandleUpdateParticipant handles
// PUT /divisions/{division}/matches/{id}/participants/{table} requests.
func (h *MatchHandler) HandleUpdateParticipant(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	match, err := h.deps.UpdateParticipant(r.Context(), callerFrom(r),
		r.PathValue("division"), r.PathValue("id"), r.PathValue("table"),
		lifecycle.ParticipantPatch{Queued: req.Queued, Present: req.Present, Ready: req.Ready},
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}
