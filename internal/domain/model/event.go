package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ResourceType keys the version clock and the broadcast channels. Ordering
// is guaranteed per (division, resource type), never across types.
type ResourceType string

// Resource types.
const (
	ResourceMatch      ResourceType = "match"
	ResourceScoresheet ResourceType = "scoresheet"
	ResourceRubric     ResourceType = "rubric"
)

// ResourceTypes lists every resource type in a stable order.
func ResourceTypes() []ResourceType {
	return []ResourceType{ResourceMatch, ResourceScoresheet, ResourceRubric}
}

// PayloadKind tags the members of the event payload union.
type PayloadKind string

// Payload kinds.
const (
	KindValueUpdated       PayloadKind = "value-updated"
	KindStatusUpdated      PayloadKind = "status-updated"
	KindFeedbackUpdated    PayloadKind = "feedback-updated"
	KindAwardsUpdated      PayloadKind = "awards-updated"
	KindReset              PayloadKind = "reset"
	KindMatchLoaded        PayloadKind = "match-loaded"
	KindMatchStarted       PayloadKind = "match-started"
	KindMatchCompleted     PayloadKind = "match-completed"
	KindMatchAborted       PayloadKind = "match-aborted"
	KindParticipantUpdated PayloadKind = "participant-updated"
	KindStageAdvanced      PayloadKind = "stage-advanced"
	KindEndgameTriggered   PayloadKind = "endgame-triggered"
)

// Payload is the closed union of event payloads. The kind method keeps the
// union effectively sealed to this package; reconcilers switch on Kind().
type Payload interface {
	Kind() PayloadKind
}

// ValueUpdated carries exactly one field write. For scoresheets the write is
// either a mission clause (MissionID set), the GP rating (FieldID "gp") or
// the signature (FieldID "signature"); for rubrics it is one rubric field.
// Score and Complete are the derived projection after the write.
type ValueUpdated struct {
	MissionID   string       `json:"missionId,omitempty"`
	ClauseIndex int          `json:"clauseIndex,omitempty"`
	Clause      *ClauseValue `json:"clause,omitempty"`

	FieldID string `json:"fieldId,omitempty"`
	Value   *int   `json:"value,omitempty"`
	Notes   string `json:"notes,omitempty"`

	Signature string `json:"signature,omitempty"`

	Score    int    `json:"score"`
	Complete bool   `json:"complete"`
	Status   string `json:"status,omitempty"`
}

// StatusUpdated replaces only the entity's status. Escalated rides along for
// scoresheet escalation flips, which are status-shaped but orthogonal.
type StatusUpdated struct {
	Status    string `json:"status"`
	Escalated *bool  `json:"escalated,omitempty"`
}

// FeedbackUpdated replaces a rubric's written feedback.
type FeedbackUpdated struct {
	GreatJob   string `json:"greatJob"`
	ThinkAbout string `json:"thinkAbout"`
}

// AwardsUpdated replaces a rubric's award nominations.
type AwardsUpdated struct {
	Awards map[string]bool `json:"awards"`
}

// Reset clears an entity back to its initial state, preserving identity.
type Reset struct{}

// MatchLoaded points the field at a not-started match.
type MatchLoaded struct {
	MatchID string `json:"matchId"`
}

// MatchStarted marks the loaded match in-progress. StartDelta is the signed
// offset in seconds from the scheduled time. Forced records a readiness
// override for the audit trail.
type MatchStarted struct {
	MatchID    string    `json:"matchId"`
	StartTime  time.Time `json:"startTime"`
	StartDelta int       `json:"startDelta"`
	Forced     bool      `json:"forced,omitempty"`
}

// MatchCompleted clears the active pointer and unlocks scoring.
type MatchCompleted struct {
	MatchID string `json:"matchId"`
}

// MatchAborted returns the active match to not-started, discarding its
// start time.
type MatchAborted struct {
	MatchID string `json:"matchId"`
}

// ParticipantUpdated is a pure data update of one table's prestart flags.
type ParticipantUpdated struct {
	MatchID string `json:"matchId"`
	TableID string `json:"tableId"`
	Queued  *bool  `json:"queued,omitempty"`
	Present *bool  `json:"present,omitempty"`
	Ready   *bool  `json:"ready,omitempty"`
}

// StageAdvanced announces the division's field moving from practice to
// ranking play.
type StageAdvanced struct {
	Stage Stage `json:"stage"`
}

// EndgameTriggered fires near the end of the match as a venue cue.
type EndgameTriggered struct {
	MatchID string `json:"matchId"`
}

func (ValueUpdated) Kind() PayloadKind       { return KindValueUpdated }
func (StatusUpdated) Kind() PayloadKind      { return KindStatusUpdated }
func (FeedbackUpdated) Kind() PayloadKind    { return KindFeedbackUpdated }
func (AwardsUpdated) Kind() PayloadKind      { return KindAwardsUpdated }
func (Reset) Kind() PayloadKind              { return KindReset }
func (MatchLoaded) Kind() PayloadKind        { return KindMatchLoaded }
func (MatchStarted) Kind() PayloadKind       { return KindMatchStarted }
func (MatchCompleted) Kind() PayloadKind     { return KindMatchCompleted }
func (MatchAborted) Kind() PayloadKind       { return KindMatchAborted }
func (ParticipantUpdated) Kind() PayloadKind { return KindParticipantUpdated }
func (StageAdvanced) Kind() PayloadKind      { return KindStageAdvanced }
func (EndgameTriggered) Kind() PayloadKind   { return KindEndgameTriggered }

// VersionedEvent is the unit of state distribution. Events are a
// notification mechanism, not a source of truth: the authoritative state is
// the entity row, and only the version counter is persisted.
type VersionedEvent struct {
	Resource   ResourceType `json:"resource"`
	ResourceID string       `json:"resourceId"`
	DivisionID string       `json:"divisionId"`
	Version    int64        `json:"version"`
	At         time.Time    `json:"at"`
	Payload    Payload      `json:"-"`
}

type eventEnvelope struct {
	Resource   ResourceType    `json:"resource"`
	ResourceID string          `json:"resourceId"`
	DivisionID string          `json:"divisionId"`
	Version    int64           `json:"version"`
	At         time.Time       `json:"at"`
	Kind       PayloadKind     `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
}

// MarshalJSON encodes the payload union with an explicit kind tag.
func (e VersionedEvent) MarshalJSON() ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("event %s/%s: nil payload", e.Resource, e.ResourceID)
	}
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return json.Marshal(eventEnvelope{
		Resource:   e.Resource,
		ResourceID: e.ResourceID,
		DivisionID: e.DivisionID,
		Version:    e.Version,
		At:         e.At,
		Kind:       e.Payload.Kind(),
		Payload:    raw,
	})
}

// UnmarshalJSON decodes the tagged payload union.
func (e *VersionedEvent) UnmarshalJSON(data []byte) error {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}
	payload, err := decodePayload(env.Kind, env.Payload)
	if err != nil {
		return err
	}
	*e = VersionedEvent{
		Resource:   env.Resource,
		ResourceID: env.ResourceID,
		DivisionID: env.DivisionID,
		Version:    env.Version,
		At:         env.At,
		Payload:    payload,
	}
	return nil
}

func decodePayload(kind PayloadKind, raw json.RawMessage) (Payload, error) {
	var target Payload
	switch kind {
	case KindValueUpdated:
		target = &ValueUpdated{}
	case KindStatusUpdated:
		target = &StatusUpdated{}
	case KindFeedbackUpdated:
		target = &FeedbackUpdated{}
	case KindAwardsUpdated:
		target = &AwardsUpdated{}
	case KindReset:
		return Reset{}, nil
	case KindMatchLoaded:
		target = &MatchLoaded{}
	case KindMatchStarted:
		target = &MatchStarted{}
	case KindMatchCompleted:
		target = &MatchCompleted{}
	case KindMatchAborted:
		target = &MatchAborted{}
	case KindParticipantUpdated:
		target = &ParticipantUpdated{}
	case KindStageAdvanced:
		target = &StageAdvanced{}
	case KindEndgameTriggered:
		target = &EndgameTriggered{}
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, target); err != nil {
			return nil, fmt.Errorf("unmarshal %s payload: %w", kind, err)
		}
	}
	return deref(target), nil
}

// deref returns the payload by value so events compare and copy cleanly.
func deref(p Payload) Payload {
	switch v := p.(type) {
	case *ValueUpdated:
		return *v
	case *StatusUpdated:
		return *v
	case *FeedbackUpdated:
		return *v
	case *AwardsUpdated:
		return *v
	case *MatchLoaded:
		return *v
	case *MatchStarted:
		return *v
	case *MatchCompleted:
		return *v
	case *MatchAborted:
		return *v
	case *ParticipantUpdated:
		return *v
	case *StageAdvanced:
		return *v
	case *EndgameTriggered:
		return *v
	default:
		return p
	}
}
