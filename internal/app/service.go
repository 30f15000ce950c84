// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/refbox/internal/adapters/broadcast"
	"github.com/okian/refbox/internal/adapters/reconcile"
	"github.com/okian/refbox/internal/adapters/repository"
	"github.com/okian/refbox/internal/adapters/schedule"
	"github.com/okian/refbox/internal/domain/clock"
	"github.com/okian/refbox/internal/domain/lifecycle"
	"github.com/okian/refbox/internal/domain/model"
	"github.com/okian/refbox/internal/domain/scoring"
	"github.com/okian/refbox/internal/domain/workflow"
	"github.com/okian/refbox/internal/seed"
	"github.com/okian/refbox/pkg/logger"
	"github.com/okian/refbox/pkg/metrics"
)

// Service wires the store, the version clock, the controllers and the event
// broker, and implements the API dependency bundle.
type Service struct {
	mu sync.RWMutex

	// Core components
	store       repository.Store
	broker      *broadcast.InMemoryBroker
	scheduler   *schedule.Scheduler
	clock       *clock.Clock
	catalog     *scoring.Catalog
	scoresheets *workflow.ScoresheetController
	rubrics     *workflow.RubricController

	// One lifecycle controller per division, created on first use.
	fields map[string]*lifecycle.Controller

	// Configuration
	storeDriver     string
	storePath       string
	eventBufferSize int
	replaySize      int
	matchLength     time.Duration
	autoLoad        bool
	seedFile        string

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore injects a ready store, bypassing the driver selection.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithStoreDriver selects the persistence backend and its sqlite path.
func WithStoreDriver(driver, path string) Option {
	return func(s *Service) {
		if driver != "" {
			s.storeDriver = driver
		}
		if path != "" {
			s.storePath = path
		}
	}
}

// WithEventBufferSize sets the per-subscriber event channel size.
func WithEventBufferSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.eventBufferSize = size
		}
	}
}

// WithReplaySize sets the per-channel replay ring depth.
func WithReplaySize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.replaySize = size
		}
	}
}

// WithMatchLength sets the running time of a match.
func WithMatchLength(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.matchLength = d
		}
	}
}

// WithAutoLoad toggles loading the next unplayed match after completion.
func WithAutoLoad(enabled bool) Option {
	return func(s *Service) {
		s.autoLoad = enabled
	}
}

// WithSeedFile points at a JSON schedule loaded at startup.
func WithSeedFile(path string) Option {
	return func(s *Service) {
		s.seedFile = path
	}
}

// WithCatalog overrides the season mission catalog.
func WithCatalog(catalog *scoring.Catalog) Option {
	return func(s *Service) {
		if catalog != nil {
			s.catalog = catalog
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		fields:          make(map[string]*lifecycle.Controller),
		storeDriver:     repository.DriverMemory,
		eventBufferSize: 256,
		replaySize:      128,
		matchLength:     150 * time.Second,
		autoLoad:        true,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.catalog == nil {
		s.catalog = scoring.DefaultCatalog()
	}

	s.logger.Info(ctx, "starting refbox service...")

	if s.store == nil {
		store, err := repository.New(s.storeDriver, s.storePath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		s.store = store
	}
	s.broker = broadcast.NewInMemoryBroker(
		broadcast.WithBufferSize(s.eventBufferSize),
		broadcast.WithReplaySize(s.replaySize),
	)
	s.scheduler = schedule.New()
	s.clock = clock.New()

	if s.seedFile != "" {
		if err := seed.Load(ctx, s.seedFile, s.store, s.catalog); err != nil {
			return fmt.Errorf("load seed file: %w", err)
		}
	}

	if err := s.seedClock(ctx); err != nil {
		return fmt.Errorf("seed version clock: %w", err)
	}

	s.scoresheets = workflow.NewScoresheetController(s.store, s.clock, s.broker, s.catalog)
	s.rubrics = workflow.NewRubricController(s.store, s.clock, s.broker)

	s.started = true
	s.logger.Info(ctx, "refbox service started",
		logger.String("store", s.storeDriver),
		logger.String("season", s.catalog.Version),
	)

	return nil
}

// seedClock raises every division's counters to the highest persisted
// versions so restarts never reissue a version.
func (s *Service) seedClock(ctx context.Context) error {
	divisions, err := s.store.Divisions(ctx)
	if err != nil {
		return err
	}
	for _, division := range divisions {
		versions, err := s.store.Versions(ctx, division)
		if err != nil {
			return err
		}
		for resource, v := range versions {
			s.clock.Seed(division, resource, v)
		}
	}
	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping refbox service...")

	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.broker != nil {
		_ = s.broker.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}

	s.started = false
	s.logger.Info(context.Background(), "refbox service stopped")
}

// field returns the lifecycle controller of a division, creating it on first
// use.
func (s *Service) field(division string) *lifecycle.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctl, ok := s.fields[division]
	if !ok {
		ctl = lifecycle.New(division, s.store, s.clock, s.broker, s.scheduler,
			lifecycle.WithMatchLength(s.matchLength),
			lifecycle.WithAutoLoad(s.autoLoad),
		)
		s.fields[division] = ctl
	}
	return ctl
}

// State returns the current field pointers of a division.
func (s *Service) State(ctx context.Context, division string) (model.DivisionState, error) {
	return s.field(division).State(ctx)
}

// Matches lists the matches of a division in schedule order.
func (s *Service) Matches(ctx context.Context, division string) ([]model.Match, error) {
	return s.store.ListMatches(ctx, division)
}

// Match fetches one match of a division.
func (s *Service) Match(ctx context.Context, division, id string) (model.Match, error) {
	match, err := s.store.GetMatch(ctx, id)
	if err != nil {
		return model.Match{}, err
	}
	if match.DivisionID != division {
		return model.Match{}, fmt.Errorf("match %s is not in division %s: %w", id, division, model.ErrNotFound)
	}
	return match, nil
}

// LoadMatch points the division's field at a not-started match.
func (s *Service) LoadMatch(ctx context.Context, caller model.Caller, division, matchID string) (model.Match, error) {
	return s.field(division).LoadMatch(ctx, caller, matchID)
}

// StartMatch starts the loaded match of a division.
func (s *Service) StartMatch(ctx context.Context, caller model.Caller, division string, force bool) (model.Match, error) {
	return s.field(division).StartMatch(ctx, caller, force)
}

// CompleteMatch completes the active match of a division.
func (s *Service) CompleteMatch(ctx context.Context, caller model.Caller, division string) (model.Match, error) {
	return s.field(division).CompleteMatch(ctx, caller)
}

// AbortMatch aborts the active match of a division.
func (s *Service) AbortMatch(ctx context.Context, caller model.Caller, division string) (model.Match, error) {
	return s.field(division).AbortMatch(ctx, caller)
}

// UpdateParticipant updates one table's prestart flags.
func (s *Service) UpdateParticipant(ctx context.Context, caller model.Caller, division, matchID, tableID string, patch lifecycle.ParticipantPatch) (model.Match, error) {
	return s.field(division).UpdateParticipant(ctx, caller, matchID, tableID, patch)
}

// Scoresheet fetches one scoresheet.
func (s *Service) Scoresheet(ctx context.Context, id string) (model.Scoresheet, error) {
	return s.store.GetScoresheet(ctx, id)
}

// Scoresheets lists the scoresheets of a division.
func (s *Service) Scoresheets(ctx context.Context, division string) ([]model.Scoresheet, error) {
	return s.store.ListScoresheets(ctx, division)
}

// UpdateMissionClause answers or clears one mission clause and rescores.
func (s *Service) UpdateMissionClause(ctx context.Context, caller model.Caller, id, missionID string, clauseIndex int, value *model.ClauseValue, override bool) (model.Scoresheet, error) {
	return s.scoresheets.UpdateMissionClause(ctx, caller, id, missionID, clauseIndex, value, override)
}

// UpdateGP sets the gracious professionalism rating.
func (s *Service) UpdateGP(ctx context.Context, caller model.Caller, id string, value *int, notes string, override bool) (model.Scoresheet, error) {
	return s.scoresheets.UpdateGP(ctx, caller, id, value, notes, override)
}

// UpdateSignature records the team signature.
func (s *Service) UpdateSignature(ctx context.Context, caller model.Caller, id, signature string, override bool) (model.Scoresheet, error) {
	return s.scoresheets.UpdateSignature(ctx, caller, id, signature, override)
}

// UpdateScoresheetStatus moves a scoresheet along the review workflow.
func (s *Service) UpdateScoresheetStatus(ctx context.Context, caller model.Caller, id string, to model.ScoresheetStatus) (model.Scoresheet, error) {
	sheet, err := s.scoresheets.UpdateStatus(ctx, caller, id, to)
	if err != nil {
		metrics.RecordTransitionError(string(model.ResourceScoresheet))
		return sheet, err
	}
	metrics.RecordTransition(string(model.ResourceScoresheet), string(to))
	return sheet, nil
}

// SetEscalation raises or clears the head-referee escalation flag.
func (s *Service) SetEscalation(ctx context.Context, caller model.Caller, id string, escalated bool) (model.Scoresheet, error) {
	return s.scoresheets.SetEscalation(ctx, caller, id, escalated)
}

// ResetScoresheet clears a scoresheet back to empty.
func (s *Service) ResetScoresheet(ctx context.Context, caller model.Caller, id string) (model.Scoresheet, error) {
	return s.scoresheets.Reset(ctx, caller, id)
}

// Rubric fetches one rubric.
func (s *Service) Rubric(ctx context.Context, id string) (model.Rubric, error) {
	return s.store.GetRubric(ctx, id)
}

// Rubrics lists the rubrics of a division.
func (s *Service) Rubrics(ctx context.Context, division string) ([]model.Rubric, error) {
	return s.store.ListRubrics(ctx, division)
}

// UpdateRubricField rates one rubric field.
func (s *Service) UpdateRubricField(ctx context.Context, caller model.Caller, id, fieldID string, value *int, notes string) (model.Rubric, error) {
	return s.rubrics.UpdateField(ctx, caller, id, fieldID, value, notes)
}

// UpdateFeedback replaces the written feedback pair.
func (s *Service) UpdateFeedback(ctx context.Context, caller model.Caller, id, greatJob, thinkAbout string) (model.Rubric, error) {
	return s.rubrics.UpdateFeedback(ctx, caller, id, greatJob, thinkAbout)
}

// UpdateAwards replaces the award nominations.
func (s *Service) UpdateAwards(ctx context.Context, caller model.Caller, id string, awards map[string]bool) (model.Rubric, error) {
	return s.rubrics.UpdateAwards(ctx, caller, id, awards)
}

// UpdateRubricStatus moves a rubric along the draft/locked/approved workflow.
func (s *Service) UpdateRubricStatus(ctx context.Context, caller model.Caller, id string, to model.RubricStatus) (model.Rubric, error) {
	rubric, err := s.rubrics.UpdateStatus(ctx, caller, id, to)
	if err != nil {
		metrics.RecordTransitionError(string(model.ResourceRubric))
		return rubric, err
	}
	metrics.RecordTransition(string(model.ResourceRubric), string(to))
	return rubric, nil
}

// ResetRubric clears a rubric back to an empty draft.
func (s *Service) ResetRubric(ctx context.Context, caller model.Caller, id string) (model.Rubric, error) {
	return s.rubrics.Reset(ctx, caller, id)
}

// Subscribe registers a consumer on a (division, resource) channel.
func (s *Service) Subscribe(ctx context.Context, division string, resource model.ResourceType, lastSeen int64) (*broadcast.Subscription, error) {
	return s.broker.Subscribe(ctx, division, resource, lastSeen)
}

// Unsubscribe removes a consumer.
func (s *Service) Unsubscribe(sub *broadcast.Subscription) {
	s.broker.Unsubscribe(sub)
}

// Divisions lists every division with stored state.
func (s *Service) Divisions(ctx context.Context) ([]string, error) {
	return s.store.Divisions(ctx)
}

// Snapshot assembles the authoritative snapshot of one resource channel,
// stamped with the channel's current version.
func (s *Service) Snapshot(ctx context.Context, division string, resource model.ResourceType) (reconcile.Snapshot, error) {
	snap := reconcile.Snapshot{Version: s.clock.Current(division, resource)}
	var err error
	switch resource {
	case model.ResourceMatch:
		snap.DivisionState, err = s.store.GetDivisionState(ctx, division)
		if err != nil {
			return reconcile.Snapshot{}, err
		}
		snap.Matches, err = s.store.ListMatches(ctx, division)
	case model.ResourceScoresheet:
		snap.Scoresheets, err = s.store.ListScoresheets(ctx, division)
	case model.ResourceRubric:
		snap.Rubrics, err = s.store.ListRubrics(ctx, division)
	default:
		return reconcile.Snapshot{}, fmt.Errorf("resource %s: %w", resource, model.ErrNotFound)
	}
	if err != nil {
		return reconcile.Snapshot{}, err
	}
	return snap, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"storeDriver": s.storeDriver,
		"autoLoad":    s.autoLoad,
		"matchLength": s.matchLength.String(),
	}

	if s.started {
		stats["season"] = s.catalog.Version
		stats["subscribers"] = s.broker.Subscribers()
		stats["pendingTimers"] = s.scheduler.Pending()
		stats["fields"] = len(s.fields)

		metrics.UpdateSubscriberCount(s.broker.Subscribers())
		metrics.UpdatePendingTimers(s.scheduler.Pending())
	}

	return stats
}
