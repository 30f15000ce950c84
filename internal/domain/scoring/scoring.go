// Package scoring computes a scoresheet's numeric score and validation
// state from its mission clause values.
//
// Score is a pure function: identical input always yields identical output.
// All arithmetic is integer and the engine holds no state, so the cached
// score on a scoresheet can be re-derived at any time.
package scoring

import (
	"fmt"

	"github.com/okian/refbox/internal/domain/model"
)

// Clause describes one answerable item of a mission.
type Clause struct {
	Kind        model.ClauseKind
	Options     []string
	MultiSelect bool
	Min, Max    int

	// Default is the value a cleared scoresheet presents in the UI. The
	// engine itself treats an unanswered clause as null, never as Default.
	Default *model.ClauseValue
}

// Mission is an ordered list of clauses plus a calculation over them.
// Calculate receives one value per clause, all non-null, and returns points
// or a *Error when a value combination is impossible on the field.
type Mission struct {
	ID          string
	Clauses     []Clause
	NoEquipment bool
	Calculate   func(values []model.ClauseValue) (int, error)
}

// Validator is a cross-mission consistency check run after per-mission
// calculation. It sees the raw nullable values and must not fire on
// missions that are still incomplete.
type Validator func(missions map[string][]*model.ClauseValue) error

// Catalog is a season's scoresheet schema.
type Catalog struct {
	Version    string
	Missions   []Mission
	Validators []Validator
}

// Error is a typed scoring error referencing a specific mission rule.
type Error struct {
	MissionID string
	Code      string
}

func (e *Error) Error() string {
	if e.MissionID == "" {
		return fmt.Sprintf("scoresheet rule %s violated", e.Code)
	}
	return fmt.Sprintf("mission %s: rule %s violated", e.MissionID, e.Code)
}

// NewError builds a scoring error for a mission rule code.
func NewError(missionID, code string) *Error {
	return &Error{MissionID: missionID, Code: code}
}

// MissionResult distinguishes "still filling in" (Complete false) from
// "filled in incorrectly" (Complete true, Valid false). The UI depends on
// that distinction.
type MissionResult struct {
	Points   int
	Complete bool
	Valid    bool
	Errors   []*Error
}

// Result is the outcome of scoring a full scoresheet.
type Result struct {
	Score    int
	Missions map[string]MissionResult
	Errors   []*Error
}

// Complete reports whether every clause of every mission is answered.
func (r Result) Complete() bool {
	for _, mr := range r.Missions {
		if !mr.Complete {
			return false
		}
	}
	return true
}

// Clean reports whether the scoresheet is complete and free of per-mission
// and cross-mission errors. Only a clean scoresheet advances to GP review.
func (r Result) Clean() bool {
	return r.Complete() && len(r.Errors) == 0
}

// Score computes the total score and validation state for the given mission
// clause values. A mission with any null clause contributes 0 points and is
// reported as incomplete rather than erroring.
func (c *Catalog) Score(missions map[string][]*model.ClauseValue) Result {
	res := Result{Missions: make(map[string]MissionResult, len(c.Missions))}

	for _, m := range c.Missions {
		values := missions[m.ID]
		mr := MissionResult{Complete: missionComplete(m, values)}
		if mr.Complete {
			flat := make([]model.ClauseValue, len(values))
			for i, v := range values {
				flat[i] = *v
			}
			points, err := m.Calculate(flat)
			if err != nil {
				mr.Valid = false
				mr.Errors = append(mr.Errors, asScoringError(m.ID, err))
				res.Errors = append(res.Errors, mr.Errors...)
			} else {
				mr.Valid = true
				mr.Points = points
				res.Score += points
			}
		}
		res.Missions[m.ID] = mr
	}

	for _, validate := range c.Validators {
		if err := validate(missions); err != nil {
			serr := asScoringError("", err)
			res.Errors = append(res.Errors, serr)
			if mr, ok := res.Missions[serr.MissionID]; ok {
				mr.Valid = false
				mr.Errors = append(mr.Errors, serr)
				res.Missions[serr.MissionID] = mr
			}
		}
	}

	return res
}

// MissionByID returns the mission definition, or false when unknown.
func (c *Catalog) MissionByID(id string) (Mission, bool) {
	for _, m := range c.Missions {
		if m.ID == id {
			return m, true
		}
	}
	return Mission{}, false
}

// ValidateClause checks that a submitted value fits the clause's type,
// options and bounds. A nil value is always valid: it clears the clause.
func ValidateClause(clause Clause, value *model.ClauseValue) error {
	if value == nil {
		return nil
	}
	if value.Kind != clause.Kind {
		return fmt.Errorf("clause expects %s value, got %s: %w",
			clause.Kind, value.Kind, model.ErrPreconditionFailed)
	}
	switch clause.Kind {
	case model.ClauseBoolean:
		return nil
	case model.ClauseEnum:
		selected := value.Options
		if !clause.MultiSelect {
			if value.Options != nil {
				return fmt.Errorf("clause is single-select: %w", model.ErrPreconditionFailed)
			}
			selected = []string{value.Option}
		}
		for _, opt := range selected {
			if !contains(clause.Options, opt) {
				return fmt.Errorf("option %q not in %v: %w",
					opt, clause.Options, model.ErrPreconditionFailed)
			}
		}
		return nil
	case model.ClauseNumber:
		if value.Number < clause.Min || value.Number > clause.Max {
			return fmt.Errorf("value %d outside [%d,%d]: %w",
				value.Number, clause.Min, clause.Max, model.ErrPreconditionFailed)
		}
		return nil
	default:
		return fmt.Errorf("unknown clause kind %q: %w", clause.Kind, model.ErrPreconditionFailed)
	}
}

func missionComplete(m Mission, values []*model.ClauseValue) bool {
	if len(values) != len(m.Clauses) {
		return false
	}
	for i, v := range values {
		if v == nil {
			return false
		}
		if err := ValidateClause(m.Clauses[i], v); err != nil {
			return false
		}
	}
	return true
}

func asScoringError(missionID string, err error) *Error {
	if serr, ok := err.(*Error); ok {
		return serr
	}
	return &Error{MissionID: missionID, Code: err.Error()}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
