// Package model contains domain entities shared between layers.
package model

import "time"

// Stage identifies which part of the robot game schedule a match belongs to.
type Stage string

// Match stages.
const (
	StagePractice Stage = "practice"
	StageRanking  Stage = "ranking"
	StageTest     Stage = "test"
)

// MatchStatus is the coarse status of a robot game match.
type MatchStatus string

// Match statuses.
const (
	MatchNotStarted MatchStatus = "not-started"
	MatchInProgress MatchStatus = "in-progress"
	MatchPlayed     MatchStatus = "completed"
)

// Participant is one table slot of a match. TeamID is empty for an
// unassigned table.
type Participant struct {
	TeamID  string `json:"teamId,omitempty"`
	TableID string `json:"tableId"`
	Queued  bool   `json:"queued"`
	Present bool   `json:"present"`
	Ready   bool   `json:"ready"`
}

// Match is a scheduled robot game match. Matches are created at schedule
// generation time and never deleted while the division is live.
type Match struct {
	ID            string        `json:"id"`
	DivisionID    string        `json:"divisionId"`
	Stage         Stage         `json:"stage"`
	Round         int           `json:"round"`
	Number        int           `json:"number"`
	ScheduledTime time.Time     `json:"scheduledTime"`
	StartTime     *time.Time    `json:"startTime,omitempty"`
	Status        MatchStatus   `json:"status"`
	Participants  []Participant `json:"participants"`

	// Version is the division/resource clock value of the last accepted
	// mutation, kept as a first-class column for optimistic concurrency
	// and resync.
	Version int64 `json:"version"`
}

// DivisionState holds the field's authoritative pointers. At most one match
// is loaded and at most one is active per division at any time.
type DivisionState struct {
	DivisionID   string `json:"divisionId"`
	LoadedMatch  string `json:"loadedMatch,omitempty"`
	ActiveMatch  string `json:"activeMatch,omitempty"`
	CurrentStage Stage  `json:"currentStage"`
	Version      int64  `json:"version"`
}

// ClauseKind discriminates the value carried by a ClauseValue.
type ClauseKind string

// Clause kinds.
const (
	ClauseBoolean ClauseKind = "boolean"
	ClauseEnum    ClauseKind = "enum"
	ClauseNumber  ClauseKind = "number"
)

// ClauseValue is a single filled-in mission clause. A nil *ClauseValue in a
// scoresheet means the referee has not answered that clause yet.
type ClauseValue struct {
	Kind    ClauseKind `json:"kind"`
	Bool    bool       `json:"bool,omitempty"`
	Option  string     `json:"option,omitempty"`
	Options []string   `json:"options,omitempty"`
	Number  int        `json:"number,omitempty"`
}

// BoolValue builds a boolean clause value.
func BoolValue(v bool) *ClauseValue { return &ClauseValue{Kind: ClauseBoolean, Bool: v} }

// EnumValue builds a single-select enum clause value.
func EnumValue(option string) *ClauseValue { return &ClauseValue{Kind: ClauseEnum, Option: option} }

// EnumMultiValue builds a multi-select enum clause value.
func EnumMultiValue(options ...string) *ClauseValue {
	return &ClauseValue{Kind: ClauseEnum, Options: options}
}

// NumberValue builds a bounded-integer clause value.
func NumberValue(n int) *ClauseValue { return &ClauseValue{Kind: ClauseNumber, Number: n} }

// ScoresheetStatus is the review-workflow status of a scoresheet.
type ScoresheetStatus string

// Scoresheet statuses.
const (
	ScoresheetEmpty        ScoresheetStatus = "empty"
	ScoresheetInProgress   ScoresheetStatus = "in-progress"
	ScoresheetCompleted    ScoresheetStatus = "completed"
	ScoresheetWaitingForGP ScoresheetStatus = "waiting-for-gp"
	ScoresheetReady        ScoresheetStatus = "ready"
	ScoresheetSubmitted    ScoresheetStatus = "submitted"
)

// GP is the gracious professionalism rating appended after the technical
// score. Value is 1-4; nil means not rated yet. Values 2 and 4 require notes.
type GP struct {
	Value *int   `json:"value,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// Scoresheet records one team's robot game round. Score is a cached
// projection; the mission clause values are the source of truth.
type Scoresheet struct {
	ID         string           `json:"id"`
	DivisionID string           `json:"divisionId"`
	TeamID     string           `json:"teamId"`
	Stage      Stage            `json:"stage"`
	Round      int              `json:"round"`
	Status     ScoresheetStatus `json:"status"`
	Escalated  bool             `json:"escalated"`

	Missions  map[string][]*ClauseValue `json:"missions"`
	GP        GP                        `json:"gp"`
	Signature string                    `json:"signature,omitempty"`
	Score     int                       `json:"score"`

	Version int64 `json:"version"`
}

// CloneMissions deep-copies the mission clause map so callers can mutate a
// working copy without racing readers of the original.
func (s *Scoresheet) CloneMissions() map[string][]*ClauseValue {
	out := make(map[string][]*ClauseValue, len(s.Missions))
	for id, clauses := range s.Missions {
		cp := make([]*ClauseValue, len(clauses))
		for i, c := range clauses {
			if c != nil {
				v := *c
				if c.Options != nil {
					v.Options = append([]string(nil), c.Options...)
				}
				cp[i] = &v
			}
		}
		out[id] = cp
	}
	return out
}

// JudgingCategory identifies which rubric a judge fills in.
type JudgingCategory string

// Judging categories.
const (
	CategoryCoreValues        JudgingCategory = "core-values"
	CategoryInnovationProject JudgingCategory = "innovation-project"
	CategoryRobotDesign       JudgingCategory = "robot-design"
)

// RubricStatus is the judging-workflow status of a rubric.
type RubricStatus string

// Rubric statuses.
const (
	RubricDraft    RubricStatus = "draft"
	RubricLocked   RubricStatus = "locked"
	RubricApproved RubricStatus = "approved"
)

// RubricField is a single 1-4 rating. A value of 4 requires notes.
type RubricField struct {
	Value *int   `json:"value,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// Feedback is the written feedback a team receives with its rubric.
type Feedback struct {
	GreatJob   string `json:"greatJob,omitempty"`
	ThinkAbout string `json:"thinkAbout,omitempty"`
}

// Rubric records one team's judging evaluation for a category.
type Rubric struct {
	ID         string          `json:"id"`
	DivisionID string          `json:"divisionId"`
	TeamID     string          `json:"teamId"`
	Category   JudgingCategory `json:"category"`
	Status     RubricStatus    `json:"status"`

	Fields   map[string]RubricField `json:"fields"`
	Feedback Feedback               `json:"feedback"`
	Awards   map[string]bool        `json:"awards,omitempty"`

	Version int64 `json:"version"`
}

// CloneFields copies the field map for safe mutation.
func (r *Rubric) CloneFields() map[string]RubricField {
	out := make(map[string]RubricField, len(r.Fields))
	for id, f := range r.Fields {
		out[id] = f
	}
	return out
}

// IntPtr is a convenience for building nullable rating values.
func IntPtr(v int) *int { return &v }
