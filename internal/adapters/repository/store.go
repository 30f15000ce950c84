// Package repository defines the tournament entity store interface and its
// in-memory and sqlite implementations.
package repository

import (
	"context"

	"github.com/okian/refbox/internal/domain/model"
)

// Store provides read/write access to the tournament state. Every Put takes
// the version the caller last read; a mismatch with the stored version fails
// with model.ErrConflict and writes nothing. A prev of zero creates the
// entity if it does not exist yet.
type Store interface {
	GetMatch(ctx context.Context, id string) (model.Match, error)
	PutMatch(ctx context.Context, m model.Match, prev int64) error
	// ListMatches returns every match of a division in schedule order.
	ListMatches(ctx context.Context, division string) ([]model.Match, error)

	GetScoresheet(ctx context.Context, id string) (model.Scoresheet, error)
	PutScoresheet(ctx context.Context, s model.Scoresheet, prev int64) error
	ListScoresheets(ctx context.Context, division string) ([]model.Scoresheet, error)

	GetRubric(ctx context.Context, id string) (model.Rubric, error)
	PutRubric(ctx context.Context, r model.Rubric, prev int64) error
	ListRubrics(ctx context.Context, division string) ([]model.Rubric, error)

	// GetDivisionState returns the field pointers of a division, or a fresh
	// idle state in the practice stage if none has been written.
	GetDivisionState(ctx context.Context, division string) (model.DivisionState, error)
	PutDivisionState(ctx context.Context, st model.DivisionState, prev int64) error

	// Divisions lists every division id with stored state.
	Divisions(ctx context.Context) ([]string, error)

	// Versions returns the highest stored version per resource type for a
	// division, used to seed the version clock after a restart.
	Versions(ctx context.Context, division string) (map[model.ResourceType]int64, error)

	Close() error
}
