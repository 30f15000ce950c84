// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/refbox/internal/domain/model"
)

// EventsHandler handles division listing, snapshots and the live event
// stream.
type EventsHandler struct {
	deps EventOps
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventOps) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandleListDivisions handles GET /divisions requests.
func (h *EventsHandler) HandleListDivisions(w http.ResponseWriter, r *http.Request) {
	divisions, err := h.deps.Divisions(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, divisions)
}

// HandleGetSnapshot handles GET /divisions/{division}/snapshot/{resource}
// requests. Replicas call this after a resync signal or a version gap.
func (h *EventsHandler) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	resource, err := parseResource(r.PathValue("resource"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	snap, err := h.deps.Snapshot(r.Context(), r.PathValue("division"), resource)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleSubscribe handles GET /divisions/{division}/events/{resource}
// requests as a server-sent event stream. The optional since parameter asks
// for replay of every event after that version; a gap the replay ring cannot
// bridge is answered with 409 resync_required.
func (h *EventsHandler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	resource, err := parseResource(r.PathValue("resource"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || since < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind("api.subscribe", ErrBadRequest))
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", errors.New("streaming unsupported"))
		return
	}

	sub, err := h.deps.Subscribe(r.Context(), r.PathValue("division"), resource, since)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer h.deps.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				// Stream cut; tell the client whether it must resync.
				select {
				case <-sub.Resync():
					fmt.Fprint(w, "event: resync\ndata: {}\n\n")
					flusher.Flush()
				default:
				}
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Version, ev.Resource, data)
			flusher.Flush()
		}
	}
}

func parseResource(raw string) (model.ResourceType, error) {
	resource := model.ResourceType(raw)
	for _, known := range model.ResourceTypes() {
		if resource == known {
			return resource, nil
		}
	}
	return "", fmt.Errorf("unknown resource type %q: %w", raw, ErrBadRequest)
}
