// Package reconcile keeps a client-side replica of one division's state
// converged with the event stream.
//
// The cache applies an event only when it is the immediate successor of the
// replica's version. Older events are discarded as already seen; a gap means
// missed events, and the cache refetches a full snapshot instead of guessing.
package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/refbox/internal/domain/model"
	"github.com/okian/refbox/pkg/logger"
	"github.com/okian/refbox/pkg/metrics"
)

// Snapshot is an authoritative copy of one (division, resource) replica at a
// single version.
type Snapshot struct {
	Version       int64
	DivisionState model.DivisionState
	Matches       []model.Match
	Scoresheets   []model.Scoresheet
	Rubrics       []model.Rubric
}

// Fetcher fetches authoritative snapshots, typically over the HTTP API.
type Fetcher interface {
	Snapshot(ctx context.Context, division string, resource model.ResourceType) (Snapshot, error)
}

// Cache is the replica of one (division, resource) channel.
type Cache struct {
	mu       sync.RWMutex
	division string
	resource model.ResourceType
	fetcher  Fetcher
	logger   logger.Logger

	version     int64
	state       model.DivisionState
	matches     map[string]model.Match
	scoresheets map[string]model.Scoresheet
	rubrics     map[string]model.Rubric
}

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds an empty cache. The first Apply or Resync populates it.
func New(division string, resource model.ResourceType, fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		division:    division,
		resource:    resource,
		fetcher:     fetcher,
		logger:      logger.Get().Named("reconcile"),
		matches:     make(map[string]model.Match),
		scoresheets: make(map[string]model.Scoresheet),
		rubrics:     make(map[string]model.Rubric),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Version returns the replica's current version.
func (c *Cache) Version() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// State returns the replicated division pointers.
func (c *Cache) State() model.DivisionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Match returns a replicated match.
func (c *Cache) Match(id string) (model.Match, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.matches[id]
	return m, ok
}

// Scoresheet returns a replicated scoresheet.
func (c *Cache) Scoresheet(id string) (model.Scoresheet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.scoresheets[id]
	return s, ok
}

// Rubric returns a replicated rubric.
func (c *Cache) Rubric(id string) (model.Rubric, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rubrics[id]
	return r, ok
}

// Apply folds one event into the replica. Applying the same event twice, or
// any event at or below the replica's version, changes nothing.
func (c *Cache) Apply(ctx context.Context, ev model.VersionedEvent) error {
	if ev.DivisionID != c.division || ev.Resource != c.resource {
		return fmt.Errorf("event for %s/%s on cache %s/%s: %w",
			ev.DivisionID, ev.Resource, c.division, c.resource, model.ErrPreconditionFailed)
	}

	c.mu.Lock()
	switch {
	case ev.Version <= c.version:
		c.mu.Unlock()
		c.logger.Debug(ctx, "stale event discarded",
			logger.Int("version", int(ev.Version)),
			logger.Int("have", int(c.version)),
		)
		return nil
	case ev.Version == c.version+1:
		err := c.patch(ev)
		if err == nil {
			c.version = ev.Version
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()
		c.logger.Warn(ctx, "patch failed, resyncing", logger.Error(err))
		return c.Resync(ctx)
	default:
		c.mu.Unlock()
		c.logger.Warn(ctx, "version gap, resyncing",
			logger.Int("version", int(ev.Version)),
			logger.Int("have", int(c.version)),
		)
		return c.Resync(ctx)
	}
}

// Resync replaces the replica with a fresh authoritative snapshot.
func (c *Cache) Resync(ctx context.Context) error {
	snap, err := c.fetcher.Snapshot(ctx, c.division, c.resource)
	if err != nil {
		return fmt.Errorf("fetch snapshot: %w", err)
	}
	metrics.RecordResync(string(c.resource))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.version = snap.Version
	c.state = snap.DivisionState
	c.matches = make(map[string]model.Match, len(snap.Matches))
	for _, m := range snap.Matches {
		c.matches[m.ID] = m
	}
	c.scoresheets = make(map[string]model.Scoresheet, len(snap.Scoresheets))
	for _, s := range snap.Scoresheets {
		c.scoresheets[s.ID] = s
	}
	c.rubrics = make(map[string]model.Rubric, len(snap.Rubrics))
	for _, r := range snap.Rubrics {
		c.rubrics[r.ID] = r
	}
	return nil
}

// patch applies one in-order event. Callers hold the write lock.
func (c *Cache) patch(ev model.VersionedEvent) error {
	switch c.resource {
	case model.ResourceMatch:
		return c.patchMatch(ev)
	case model.ResourceScoresheet:
		return c.patchScoresheet(ev)
	case model.ResourceRubric:
		return c.patchRubric(ev)
	default:
		return fmt.Errorf("resource %s: %w", c.resource, model.ErrPreconditionFailed)
	}
}

func (c *Cache) patchMatch(ev model.VersionedEvent) error {
	switch p := ev.Payload.(type) {
	case model.MatchLoaded:
		c.state.LoadedMatch = p.MatchID
	case model.MatchStarted:
		m, ok := c.matches[p.MatchID]
		if !ok {
			return fmt.Errorf("match %s: %w", p.MatchID, model.ErrNotFound)
		}
		t := p.StartTime
		m.Status = model.MatchInProgress
		m.StartTime = &t
		m.Version = ev.Version
		c.matches[p.MatchID] = m
		c.state.ActiveMatch = p.MatchID
		c.state.LoadedMatch = ""
	case model.MatchCompleted:
		m, ok := c.matches[p.MatchID]
		if !ok {
			return fmt.Errorf("match %s: %w", p.MatchID, model.ErrNotFound)
		}
		m.Status = model.MatchPlayed
		m.Version = ev.Version
		c.matches[p.MatchID] = m
		c.state.ActiveMatch = ""
		c.state.LoadedMatch = ""
	case model.MatchAborted:
		m, ok := c.matches[p.MatchID]
		if !ok {
			return fmt.Errorf("match %s: %w", p.MatchID, model.ErrNotFound)
		}
		m.Status = model.MatchNotStarted
		m.StartTime = nil
		m.Version = ev.Version
		c.matches[p.MatchID] = m
		c.state.ActiveMatch = ""
		c.state.LoadedMatch = ""
	case model.ParticipantUpdated:
		m, ok := c.matches[p.MatchID]
		if !ok {
			return fmt.Errorf("match %s: %w", p.MatchID, model.ErrNotFound)
		}
		participants := append([]model.Participant(nil), m.Participants...)
		found := false
		for i := range participants {
			if participants[i].TableID != p.TableID {
				continue
			}
			found = true
			if p.Queued != nil {
				participants[i].Queued = *p.Queued
			}
			if p.Present != nil {
				participants[i].Present = *p.Present
			}
			if p.Ready != nil {
				participants[i].Ready = *p.Ready
			}
		}
		if !found {
			return fmt.Errorf("table %s: %w", p.TableID, model.ErrNotFound)
		}
		m.Participants = participants
		m.Version = ev.Version
		c.matches[p.MatchID] = m
	case model.StageAdvanced:
		c.state.CurrentStage = p.Stage
	case model.EndgameTriggered:
		// Display cue only, no replica state changes.
	default:
		return fmt.Errorf("payload %T on match channel: %w", ev.Payload, model.ErrPreconditionFailed)
	}
	c.state.Version = ev.Version
	return nil
}

func (c *Cache) patchScoresheet(ev model.VersionedEvent) error {
	s, ok := c.scoresheets[ev.ResourceID]
	if !ok {
		return fmt.Errorf("scoresheet %s: %w", ev.ResourceID, model.ErrNotFound)
	}
	switch p := ev.Payload.(type) {
	case model.ValueUpdated:
		switch {
		case p.MissionID != "":
			missions := s.CloneMissions()
			clauses, ok := missions[p.MissionID]
			if !ok || p.ClauseIndex < 0 || p.ClauseIndex >= len(clauses) {
				return fmt.Errorf("mission %s clause %d: %w", p.MissionID, p.ClauseIndex, model.ErrNotFound)
			}
			clauses[p.ClauseIndex] = p.Clause
			s.Missions = missions
		case p.FieldID == "gp":
			s.GP = model.GP{Value: p.Value, Notes: p.Notes}
		case p.FieldID == "signature":
			s.Signature = p.Signature
		default:
			return fmt.Errorf("field %q on scoresheet: %w", p.FieldID, model.ErrPreconditionFailed)
		}
		s.Score = p.Score
		if p.Status != "" {
			s.Status = model.ScoresheetStatus(p.Status)
		}
	case model.StatusUpdated:
		if p.Status != "" {
			s.Status = model.ScoresheetStatus(p.Status)
		}
		if p.Escalated != nil {
			s.Escalated = *p.Escalated
		}
	case model.Reset:
		missions := make(map[string][]*model.ClauseValue, len(s.Missions))
		for id, clauses := range s.Missions {
			missions[id] = make([]*model.ClauseValue, len(clauses))
		}
		s.Missions = missions
		s.GP = model.GP{}
		s.Signature = ""
		s.Score = 0
		s.Escalated = false
		s.Status = model.ScoresheetEmpty
	default:
		return fmt.Errorf("payload %T on scoresheet channel: %w", ev.Payload, model.ErrPreconditionFailed)
	}
	s.Version = ev.Version
	c.scoresheets[ev.ResourceID] = s
	return nil
}

func (c *Cache) patchRubric(ev model.VersionedEvent) error {
	r, ok := c.rubrics[ev.ResourceID]
	if !ok {
		return fmt.Errorf("rubric %s: %w", ev.ResourceID, model.ErrNotFound)
	}
	switch p := ev.Payload.(type) {
	case model.ValueUpdated:
		fields := r.CloneFields()
		fields[p.FieldID] = model.RubricField{Value: p.Value, Notes: p.Notes}
		r.Fields = fields
	case model.FeedbackUpdated:
		r.Feedback = model.Feedback{GreatJob: p.GreatJob, ThinkAbout: p.ThinkAbout}
	case model.AwardsUpdated:
		awards := make(map[string]bool, len(p.Awards))
		for k, v := range p.Awards {
			awards[k] = v
		}
		r.Awards = awards
	case model.StatusUpdated:
		if p.Status != "" {
			r.Status = model.RubricStatus(p.Status)
		}
	case model.Reset:
		// Same shapes the authoritative reset writes, so a patched replica
		// and a resynced one end up structurally identical.
		r.Fields = make(map[string]model.RubricField)
		r.Feedback = model.Feedback{}
		r.Awards = nil
		r.Status = model.RubricDraft
	default:
		return fmt.Errorf("payload %T on rubric channel: %w", ev.Payload, model.ErrPreconditionFailed)
	}
	r.Version = ev.Version
	c.rubrics[ev.ResourceID] = r
	return nil
}
