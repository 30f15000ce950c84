// Package seed loads a tournament schedule from a JSON file and creates the
// matches, scoresheets and rubrics a division needs before doors open.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/okian/refbox/internal/domain/model"
	"github.com/okian/refbox/internal/domain/scoring"
	"github.com/okian/refbox/internal/domain/workflow"
	"github.com/okian/refbox/pkg/logger"
)

// Store is the subset of the repository the loader writes to.
type Store interface {
	ListMatches(ctx context.Context, division string) ([]model.Match, error)
	PutMatch(ctx context.Context, m model.Match, prev int64) error
	PutScoresheet(ctx context.Context, s model.Scoresheet, prev int64) error
	PutRubric(ctx context.Context, r model.Rubric, prev int64) error
}

// Team is one competing team of a division.
type Team struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Participant assigns a team to a table slot of a match. TeamID may be empty
// for an unassigned table.
type Participant struct {
	TeamID  string `json:"teamId,omitempty"`
	TableID string `json:"tableId"`
}

// Match is one scheduled robot game match.
type Match struct {
	ID            string        `json:"id,omitempty"`
	Stage         model.Stage   `json:"stage"`
	Round         int           `json:"round"`
	Number        int           `json:"number"`
	ScheduledTime time.Time     `json:"scheduledTime"`
	Participants  []Participant `json:"participants"`
}

// Division is one independent competition area.
type Division struct {
	ID      string  `json:"id"`
	Teams   []Team  `json:"teams"`
	Matches []Match `json:"matches"`
}

// File is the root of a seed document.
type File struct {
	Divisions []Division `json:"divisions"`
}

// Load reads a seed file and creates its schedule. Divisions that already
// hold matches are skipped, so loading is safe to repeat on restart.
func Load(ctx context.Context, path string, store Store, catalog *scoring.Catalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var file File
	if err := json.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}
	return Apply(ctx, &file, store, catalog)
}

// Apply creates the schedule of an in-memory seed document.
func Apply(ctx context.Context, file *File, store Store, catalog *scoring.Catalog) error {
	log := logger.Get().Named("seed")
	for _, division := range file.Divisions {
		existing, err := store.ListMatches(ctx, division.ID)
		if err != nil {
			return fmt.Errorf("division %s: %w", division.ID, err)
		}
		if len(existing) > 0 {
			log.Info(ctx, "division already seeded, skipping",
				logger.String("division", division.ID),
				logger.Int("matches", len(existing)),
			)
			continue
		}
		if err := applyDivision(ctx, &division, store, catalog); err != nil {
			return fmt.Errorf("division %s: %w", division.ID, err)
		}
		log.Info(ctx, "division seeded",
			logger.String("division", division.ID),
			logger.Int("teams", len(division.Teams)),
			logger.Int("matches", len(division.Matches)),
		)
	}
	return nil
}

func applyDivision(ctx context.Context, division *Division, store Store, catalog *scoring.Catalog) error {
	for _, sm := range division.Matches {
		id := sm.ID
		if id == "" {
			id = uuid.New().String()
		}
		participants := make([]model.Participant, len(sm.Participants))
		for i, p := range sm.Participants {
			participants[i] = model.Participant{TeamID: p.TeamID, TableID: p.TableID}
		}
		match := model.Match{
			ID:            id,
			DivisionID:    division.ID,
			Stage:         sm.Stage,
			Round:         sm.Round,
			Number:        sm.Number,
			ScheduledTime: sm.ScheduledTime,
			Status:        model.MatchNotStarted,
			Participants:  participants,
		}
		if err := store.PutMatch(ctx, match, 0); err != nil {
			return fmt.Errorf("match %d: %w", sm.Number, err)
		}
		for _, p := range sm.Participants {
			if p.TeamID == "" || sm.Stage != model.StageRanking {
				continue
			}
			sheet := model.Scoresheet{
				ID:         ScoresheetID(division.ID, sm.Stage, sm.Round, p.TeamID),
				DivisionID: division.ID,
				TeamID:     p.TeamID,
				Stage:      sm.Stage,
				Round:      sm.Round,
				Status:     model.ScoresheetEmpty,
				Missions:   catalog.EmptyMissions(),
			}
			if err := store.PutScoresheet(ctx, sheet, 0); err != nil {
				return fmt.Errorf("scoresheet for team %s round %d: %w", p.TeamID, sm.Round, err)
			}
		}
	}
	for _, team := range division.Teams {
		for _, category := range judgingCategories {
			rubric := model.Rubric{
				ID:         RubricID(division.ID, category, team.ID),
				DivisionID: division.ID,
				TeamID:     team.ID,
				Category:   category,
				Status:     model.RubricDraft,
				Fields:     emptyFields(category),
			}
			if err := store.PutRubric(ctx, rubric, 0); err != nil {
				return fmt.Errorf("rubric %s for team %s: %w", category, team.ID, err)
			}
		}
	}
	return nil
}

var judgingCategories = []model.JudgingCategory{
	model.CategoryCoreValues,
	model.CategoryInnovationProject,
	model.CategoryRobotDesign,
}

// ScoresheetID builds the deterministic scoresheet key so reseeding and
// clients agree on identity.
func ScoresheetID(division string, stage model.Stage, round int, teamID string) string {
	return fmt.Sprintf("%s-%s-r%d-%s", division, stage, round, teamID)
}

// RubricID builds the deterministic rubric key.
func RubricID(division string, category model.JudgingCategory, teamID string) string {
	return fmt.Sprintf("%s-%s-%s", division, category, teamID)
}

func emptyFields(category model.JudgingCategory) map[string]model.RubricField {
	schema, ok := workflow.SchemaFor(category)
	if !ok {
		return map[string]model.RubricField{}
	}
	fields := make(map[string]model.RubricField, len(schema.Fields))
	for _, id := range schema.Fields {
		fields[id] = model.RubricField{}
	}
	return fields
}
