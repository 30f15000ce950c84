// Command seedgen writes a synthetic tournament schedule usable as the
// service's seed file.
package main

import (
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/okian/refbox/internal/seed"
)

func main() {
	defaults := seed.DefaultGenerateConfig()

	var (
		divisions = flag.Int("divisions", defaults.Divisions, "Number of divisions")
		teams     = flag.Int("teams", defaults.TeamsPerDiv, "Teams per division")
		tables    = flag.Int("tables", defaults.Tables, "Tables per division")
		practice  = flag.Int("practice", defaults.PracticeRounds, "Practice rounds")
		ranking   = flag.Int("ranking", defaults.RankingRounds, "Ranking rounds")
		cycle     = flag.Duration("cycle", defaults.CycleTime, "Time between matches")
		output    = flag.String("output", "seed.json", "Output file")
	)
	flag.Parse()

	cfg := seed.GenerateConfig{
		Divisions:      *divisions,
		TeamsPerDiv:    *teams,
		Tables:         *tables,
		PracticeRounds: *practice,
		RankingRounds:  *ranking,
		FirstMatch:     time.Now().Truncate(time.Minute).Add(time.Hour),
		CycleTime:      *cycle,
	}

	file := seed.Generate(cfg)

	raw, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		os.Stderr.WriteString("failed to encode schedule: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := os.WriteFile(*output, raw, 0o644); err != nil {
		os.Stderr.WriteString("failed to write " + *output + ": " + err.Error() + "\n")
		os.Exit(1)
	}
}
