package seed

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/refbox/internal/domain/model"
)

// GenerateConfig controls synthetic schedule generation.
type GenerateConfig struct {
	Divisions      int
	TeamsPerDiv    int
	Tables         int
	PracticeRounds int
	RankingRounds  int
	FirstMatch     time.Time
	CycleTime      time.Duration
}

// DefaultGenerateConfig is a small two-table event useful for local runs.
func DefaultGenerateConfig() GenerateConfig {
	return GenerateConfig{
		Divisions:      1,
		TeamsPerDiv:    8,
		Tables:         2,
		PracticeRounds: 1,
		RankingRounds:  3,
		FirstMatch:     time.Now().Truncate(time.Minute).Add(time.Hour),
		CycleTime:      10 * time.Minute,
	}
}

// Generate builds a synthetic tournament schedule. Each round pairs every
// team onto a table once, in rotating order so teams do not always meet the
// same opponents.
func Generate(cfg GenerateConfig) *File {
	file := &File{Divisions: make([]Division, 0, cfg.Divisions)}
	for d := 0; d < cfg.Divisions; d++ {
		file.Divisions = append(file.Divisions, generateDivision(cfg, d))
	}
	return file
}

func generateDivision(cfg GenerateConfig, index int) Division {
	division := Division{ID: fmt.Sprintf("division-%d", index+1)}
	for t := 0; t < cfg.TeamsPerDiv; t++ {
		division.Teams = append(division.Teams, Team{
			ID:   uuid.New().String(),
			Name: fmt.Sprintf("Team %d", t+1),
		})
	}

	at := cfg.FirstMatch
	number := 1
	schedule := func(stage model.Stage, rounds int) {
		for round := 1; round <= rounds; round++ {
			for start := 0; start < cfg.TeamsPerDiv; start += cfg.Tables {
				match := Match{
					ID:            uuid.New().String(),
					Stage:         stage,
					Round:         round,
					Number:        number,
					ScheduledTime: at,
				}
				for table := 0; table < cfg.Tables; table++ {
					p := Participant{TableID: fmt.Sprintf("table-%d", table+1)}
					// Rotate by round so pairings differ between rounds. The
					// offset must not be a multiple of the table count or
					// every round would reproduce the same pairs.
					slot := (start + table + (round - 1)) % cfg.TeamsPerDiv
					if start+table < cfg.TeamsPerDiv {
						p.TeamID = division.Teams[slot].ID
					}
					match.Participants = append(match.Participants, p)
				}
				division.Matches = append(division.Matches, match)
				number++
				at = at.Add(cfg.CycleTime)
			}
		}
	}

	schedule(model.StagePractice, cfg.PracticeRounds)
	schedule(model.StageRanking, cfg.RankingRounds)
	return division
}
