// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/refbox/internal/adapters/broadcast"
	"github.com/okian/refbox/internal/adapters/reconcile"
	"github.com/okian/refbox/internal/domain/lifecycle"
	"github.com/okian/refbox/internal/domain/model"
)

// Snapshot mirrors the authoritative snapshot shape served to replicas.
type Snapshot = reconcile.Snapshot

// MatchOps exposes the field operations of a division.
type MatchOps interface {
	State(ctx context.Context, division string) (model.DivisionState, error)
	Matches(ctx context.Context, division string) ([]model.Match, error)
	Match(ctx context.Context, division, id string) (model.Match, error)
	LoadMatch(ctx context.Context, caller model.Caller, division, matchID string) (model.Match, error)
	StartMatch(ctx context.Context, caller model.Caller, division string, force bool) (model.Match, error)
	CompleteMatch(ctx context.Context, caller model.Caller, division string) (model.Match, error)
	AbortMatch(ctx context.Context, caller model.Caller, division string) (model.Match, error)
	UpdateParticipant(ctx context.Context, caller model.Caller, division, matchID, tableID string, patch lifecycle.ParticipantPatch) (model.Match, error)
}

// ScoresheetOps exposes the scoresheet workflow.
type ScoresheetOps interface {
	Scoresheet(ctx context.Context, id string) (model.Scoresheet, error)
	Scoresheets(ctx context.Context, division string) ([]model.Scoresheet, error)
	UpdateMissionClause(ctx context.Context, caller model.Caller, id, missionID string, clauseIndex int, value *model.ClauseValue, override bool) (model.Scoresheet, error)
	UpdateGP(ctx context.Context, caller model.Caller, id string, value *int, notes string, override bool) (model.Scoresheet, error)
	UpdateSignature(ctx context.Context, caller model.Caller, id, signature string, override bool) (model.Scoresheet, error)
	UpdateScoresheetStatus(ctx context.Context, caller model.Caller, id string, to model.ScoresheetStatus) (model.Scoresheet, error)
	SetEscalation(ctx context.Context, caller model.Caller, id string, escalated bool) (model.Scoresheet, error)
	ResetScoresheet(ctx context.Context, caller model.Caller, id string) (model.Scoresheet, error)
}

// RubricOps exposes the rubric workflow.
type RubricOps interface {
	Rubric(ctx context.Context, id string) (model.Rubric, error)
	Rubrics(ctx context.Context, division string) ([]model.Rubric, error)
	UpdateRubricField(ctx context.Context, caller model.Caller, id, fieldID string, value *int, notes string) (model.Rubric, error)
	UpdateFeedback(ctx context.Context, caller model.Caller, id, greatJob, thinkAbout string) (model.Rubric, error)
	UpdateAwards(ctx context.Context, caller model.Caller, id string, awards map[string]bool) (model.Rubric, error)
	UpdateRubricStatus(ctx context.Context, caller model.Caller, id string, to model.RubricStatus) (model.Rubric, error)
	ResetRubric(ctx context.Context, caller model.Caller, id string) (model.Rubric, error)
}

// EventOps exposes the event stream.
type EventOps interface {
	Subscribe(ctx context.Context, division string, resource model.ResourceType, lastSeen int64) (*broadcast.Subscription, error)
	Unsubscribe(sub *broadcast.Subscription)
	Snapshot(ctx context.Context, division string, resource model.ResourceType) (Snapshot, error)
	Divisions(ctx context.Context) ([]string, error)
}

// Dependencies bundles everything the HTTP handlers need. Using an interface
// bundle keeps the handler layer loosely coupled to implementations in other
// packages.
type Dependencies interface {
	MatchOps
	ScoresheetOps
	RubricOps
	EventOps
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	matchHandler      *MatchHandler
	scoresheetHandler *ScoresheetHandler
	rubricHandler     *RubricHandler
	eventsHandler     *EventsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(statsProvider),
		matchHandler:      NewMatchHandler(deps),
		scoresheetHandler: NewScoresheetHandler(deps),
		rubricHandler:     NewRubricHandler(deps),
		eventsHandler:     NewEventsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /divisions", MetricsMiddleware(s.eventsHandler.HandleListDivisions, "divisions"))
	mux.HandleFunc("GET /divisions/{division}/snapshot/{resource}", MetricsMiddleware(s.eventsHandler.HandleGetSnapshot, "snapshot"))
	mux.HandleFunc("GET /divisions/{division}/events/{resource}", s.eventsHandler.HandleSubscribe)

	mux.HandleFunc("GET /divisions/{division}/state", MetricsMiddleware(s.matchHandler.HandleGetState, "state"))
	mux.HandleFunc("GET /divisions/{division}/matches", MetricsMiddleware(s.matchHandler.HandleListMatches, "matches"))
	mux.HandleFunc("GET /divisions/{division}/matches/{id}", MetricsMiddleware(s.matchHandler.HandleGetMatch, "match"))
	mux.HandleFunc("POST /divisions/{division}/matches/{id}/load", MetricsMiddleware(s.matchHandler.HandleLoadMatch, "match_load"))
	mux.HandleFunc("POST /divisions/{division}/matches/start", MetricsMiddleware(s.matchHandler.HandleStartMatch, "match_start"))
	mux.HandleFunc("POST /divisions/{division}/matches/complete", MetricsMiddleware(s.matchHandler.HandleCompleteMatch, "match_complete"))
	mux.HandleFunc("POST /divisions/{division}/matches/abort", MetricsMiddleware(s.matchHandler.HandleAbortMatch, "match_abort"))
	mux.HandleFunc("PUT /divisions/{division}/matches/{id}/participants/{table}", MetricsMiddleware(s.matchHandler.HandleUpdateParticipant, "participant"))

	mux.HandleFunc("GET /divisions/{division}/scoresheets", MetricsMiddleware(s.scoresheetHandler.HandleList, "scoresheets"))
	mux.HandleFunc("GET /scoresheets/{id}", MetricsMiddleware(s.scoresheetHandler.HandleGet, "scoresheet"))
	mux.HandleFunc("PUT /scoresheets/{id}/missions/{mission}/clauses/{index}", MetricsMiddleware(s.scoresheetHandler.HandleUpdateClause, "scoresheet_clause"))
	mux.HandleFunc("PUT /scoresheets/{id}/gp", MetricsMiddleware(s.scoresheetHandler.HandleUpdateGP, "scoresheet_gp"))
	mux.HandleFunc("PUT /scoresheets/{id}/signature", MetricsMiddleware(s.scoresheetHandler.HandleUpdateSignature, "scoresheet_signature"))
	mux.HandleFunc("PUT /scoresheets/{id}/status", MetricsMiddleware(s.scoresheetHandler.HandleUpdateStatus, "scoresheet_status"))
	mux.HandleFunc("PUT /scoresheets/{id}/escalation", MetricsMiddleware(s.scoresheetHandler.HandleSetEscalation, "scoresheet_escalation"))
	mux.HandleFunc("POST /scoresheets/{id}/reset", MetricsMiddleware(s.scoresheetHandler.HandleReset, "scoresheet_reset"))

	mux.HandleFunc("GET /divisions/{division}/rubrics", MetricsMiddleware(s.rubricHandler.HandleList, "rubrics"))
	mux.HandleFunc("GET /rubrics/{id}", MetricsMiddleware(s.rubricHandler.HandleGet, "rubric"))
	mux.HandleFunc("PUT /rubrics/{id}/fields/{field}", MetricsMiddleware(s.rubricHandler.HandleUpdateField, "rubric_field"))
	mux.HandleFunc("PUT /rubrics/{id}/feedback", MetricsMiddleware(s.rubricHandler.HandleUpdateFeedback, "rubric_feedback"))
	mux.HandleFunc("PUT /rubrics/{id}/awards", MetricsMiddleware(s.rubricHandler.HandleUpdateAwards, "rubric_awards"))
	mux.HandleFunc("PUT /rubrics/{id}/status", MetricsMiddleware(s.rubricHandler.HandleUpdateStatus, "rubric_status"))
	mux.HandleFunc("POST /rubrics/{id}/reset", MetricsMiddleware(s.rubricHandler.HandleReset, "rubric_reset"))
}

// Role and scope headers identifying the caller. Authentication itself is
// terminated upstream; these carry the already-verified identity.
const (
	headerRole     = "X-Refbox-Role"
	headerTable    = "X-Refbox-Table"
	headerRoom     = "X-Refbox-Room"
	headerCategory = "X-Refbox-Category"
)

// callerFrom builds the caller identity from request headers.
func callerFrom(r *http.Request) model.Caller {
	return model.Caller{
		Role: model.Role(r.Header.Get(headerRole)),
		Scope: model.Scope{
			Table:    r.Header.Get(headerTable),
			Room:     r.Header.Get(headerRoom),
			Category: model.JudgingCategory(r.Header.Get(headerCategory)),
		},
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError translates domain sentinels into HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, model.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "forbidden", err)
	case errors.Is(err, model.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err)
	case errors.Is(err, model.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, model.ErrResyncRequired):
		writeError(w, http.StatusConflict, "resync_required", err)
	case errors.Is(err, model.ErrPreconditionFailed):
		writeError(w, http.StatusUnprocessableEntity, "precondition_failed", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return WrapKind("api.decode", ErrBadRequest, err)
	}
	return nil
}
