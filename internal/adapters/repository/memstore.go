package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/refbox/internal/domain/model"
)

// MemStore is the in-memory Store used by default and in tests. All entities
// live in maps guarded by one RWMutex; reads hand out copies so callers can
// never alias stored state.
type MemStore struct {
	mu          sync.RWMutex
	matches     map[string]model.Match
	scoresheets map[string]model.Scoresheet
	rubrics     map[string]model.Rubric
	divisions   map[string]model.DivisionState
	closed      bool
}

// NewMemStore builds an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		matches:     make(map[string]model.Match),
		scoresheets: make(map[string]model.Scoresheet),
		rubrics:     make(map[string]model.Rubric),
		divisions:   make(map[string]model.DivisionState),
	}
}

func (s *MemStore) GetMatch(_ context.Context, id string) (model.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.Match{}, ErrClosed
	}
	m, ok := s.matches[id]
	if !ok {
		return model.Match{}, fmt.Errorf("match %s: %w", id, model.ErrNotFound)
	}
	return copyMatch(m), nil
}

func (s *MemStore) PutMatch(_ context.Context, m model.Match, prev int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := checkVersion(s.matches[m.ID].Version, prev, exists(s.matches, m.ID)); err != nil {
		return fmt.Errorf("match %s: %w", m.ID, err)
	}
	s.matches[m.ID] = copyMatch(m)
	return nil
}

func (s *MemStore) ListMatches(_ context.Context, division string) ([]model.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	var out []model.Match
	for _, m := range s.matches {
		if m.DivisionID == division {
			out = append(out, copyMatch(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stage != out[j].Stage {
			return stageOrder(out[i].Stage) < stageOrder(out[j].Stage)
		}
		return out[i].Number < out[j].Number
	})
	return out, nil
}

func (s *MemStore) GetScoresheet(_ context.Context, id string) (model.Scoresheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.Scoresheet{}, ErrClosed
	}
	sh, ok := s.scoresheets[id]
	if !ok {
		return model.Scoresheet{}, fmt.Errorf("scoresheet %s: %w", id, model.ErrNotFound)
	}
	return copyScoresheet(sh), nil
}

func (s *MemStore) PutScoresheet(_ context.Context, sh model.Scoresheet, prev int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := checkVersion(s.scoresheets[sh.ID].Version, prev, exists(s.scoresheets, sh.ID)); err != nil {
		return fmt.Errorf("scoresheet %s: %w", sh.ID, err)
	}
	s.scoresheets[sh.ID] = copyScoresheet(sh)
	return nil
}

func (s *MemStore) ListScoresheets(_ context.Context, division string) ([]model.Scoresheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	var out []model.Scoresheet
	for _, sh := range s.scoresheets {
		if sh.DivisionID == division {
			out = append(out, copyScoresheet(sh))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) GetRubric(_ context.Context, id string) (model.Rubric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.Rubric{}, ErrClosed
	}
	r, ok := s.rubrics[id]
	if !ok {
		return model.Rubric{}, fmt.Errorf("rubric %s: %w", id, model.ErrNotFound)
	}
	return copyRubric(r), nil
}

func (s *MemStore) PutRubric(_ context.Context, r model.Rubric, prev int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := checkVersion(s.rubrics[r.ID].Version, prev, exists(s.rubrics, r.ID)); err != nil {
		return fmt.Errorf("rubric %s: %w", r.ID, err)
	}
	s.rubrics[r.ID] = copyRubric(r)
	return nil
}

func (s *MemStore) ListRubrics(_ context.Context, division string) ([]model.Rubric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	var out []model.Rubric
	for _, r := range s.rubrics {
		if r.DivisionID == division {
			out = append(out, copyRubric(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) GetDivisionState(_ context.Context, division string) (model.DivisionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.DivisionState{}, ErrClosed
	}
	st, ok := s.divisions[division]
	if !ok {
		return model.DivisionState{DivisionID: division, CurrentStage: model.StagePractice}, nil
	}
	return st, nil
}

func (s *MemStore) PutDivisionState(_ context.Context, st model.DivisionState, prev int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := checkVersion(s.divisions[st.DivisionID].Version, prev, exists(s.divisions, st.DivisionID)); err != nil {
		return fmt.Errorf("division %s: %w", st.DivisionID, err)
	}
	s.divisions[st.DivisionID] = st
	return nil
}

func (s *MemStore) Divisions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	seen := make(map[string]struct{})
	for d := range s.divisions {
		seen[d] = struct{}{}
	}
	for _, m := range s.matches {
		seen[m.DivisionID] = struct{}{}
	}
	for _, sh := range s.scoresheets {
		seen[sh.DivisionID] = struct{}{}
	}
	for _, r := range s.rubrics {
		seen[r.DivisionID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemStore) Versions(_ context.Context, division string) (map[model.ResourceType]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make(map[model.ResourceType]int64, 3)
	for _, m := range s.matches {
		if m.DivisionID == division && m.Version > out[model.ResourceMatch] {
			out[model.ResourceMatch] = m.Version
		}
	}
	if st, ok := s.divisions[division]; ok && st.Version > out[model.ResourceMatch] {
		out[model.ResourceMatch] = st.Version
	}
	for _, sh := range s.scoresheets {
		if sh.DivisionID == division && sh.Version > out[model.ResourceScoresheet] {
			out[model.ResourceScoresheet] = sh.Version
		}
	}
	for _, r := range s.rubrics {
		if r.DivisionID == division && r.Version > out[model.ResourceRubric] {
			out[model.ResourceRubric] = r.Version
		}
	}
	return out, nil
}

func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// checkVersion enforces the optimistic concurrency rule shared by all
// entity kinds.
func checkVersion(stored, prev int64, present bool) error {
	if !present {
		if prev != 0 {
			return model.ErrNotFound
		}
		return nil
	}
	if stored != prev {
		return fmt.Errorf("stored version %d, expected %d: %w", stored, prev, model.ErrConflict)
	}
	return nil
}

func exists[V any](m map[string]V, id string) bool {
	_, ok := m[id]
	return ok
}

func stageOrder(st model.Stage) int {
	switch st {
	case model.StagePractice:
		return 0
	case model.StageRanking:
		return 1
	default:
		return 2
	}
}

func copyMatch(m model.Match) model.Match {
	m.Participants = append([]model.Participant(nil), m.Participants...)
	if m.StartTime != nil {
		t := *m.StartTime
		m.StartTime = &t
	}
	return m
}

func copyScoresheet(sh model.Scoresheet) model.Scoresheet {
	sh.Missions = sh.CloneMissions()
	if sh.GP.Value != nil {
		v := *sh.GP.Value
		sh.GP.Value = &v
	}
	return sh
}

func copyRubric(r model.Rubric) model.Rubric {
	fields := r.CloneFields()
	for id, f := range fields {
		if f.Value != nil {
			v := *f.Value
			f.Value = &v
			fields[id] = f
		}
	}
	r.Fields = fields
	awards := make(map[string]bool, len(r.Awards))
	for k, v := range r.Awards {
		awards[k] = v
	}
	r.Awards = awards
	return r
}
