// Package lifecycle owns the authoritative loaded/active match pointers of a
// division's field and validates every transition between them.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/refbox/internal/domain/clock"
	"github.com/okian/refbox/internal/domain/model"
	"github.com/okian/refbox/pkg/logger"
)

// Store is the persistence the controller needs.
type Store interface {
	GetMatch(ctx context.Context, id string) (model.Match, error)
	PutMatch(ctx context.Context, m model.Match, prev int64) error
	ListMatches(ctx context.Context, division string) ([]model.Match, error)
	GetDivisionState(ctx context.Context, division string) (model.DivisionState, error)
	PutDivisionState(ctx context.Context, st model.DivisionState, prev int64) error
}

// Publisher fans versioned events out to subscribers.
type Publisher interface {
	Publish(ev model.VersionedEvent)
}

// Timer schedules the wall-clock cues of a running match. Keys are stable
// so a completed or aborted match can cancel its pending cues.
type Timer interface {
	Schedule(key string, d time.Duration, fn func())
	Cancel(key string)
}

// Default match timing.
const (
	defaultMatchLength = 150 * time.Second
	endgameFraction    = 0.8
)

// Controller is the per-division match state machine. All transitions run
// under one lock: read current state, validate, write with the next clock
// version, publish. A failed validation emits nothing.
type Controller struct {
	mu       sync.Mutex
	division string
	store    Store
	clock    *clock.Clock
	bus      Publisher
	timer    Timer
	now      func() time.Time

	matchLength time.Duration
	autoLoad    bool

	logger logger.Logger
}

// Option applies a configuration option to the Controller.
type Option func(*Controller)

// WithMatchLength sets the running time of a match.
func WithMatchLength(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.matchLength = d
		}
	}
}

// WithAutoLoad toggles loading the next unplayed match after completion.
func WithAutoLoad(enabled bool) Option {
	return func(c *Controller) {
		c.autoLoad = enabled
	}
}

// WithNow overrides the wall clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds a controller for one division.
func New(division string, store Store, clk *clock.Clock, bus Publisher, timer Timer, opts ...Option) *Controller {
	c := &Controller{
		division:    division,
		store:       store,
		clock:       clk,
		bus:         bus,
		timer:       timer,
		now:         time.Now,
		matchLength: defaultMatchLength,
		autoLoad:    true,
		logger:      logger.Get().Named("lifecycle"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Division returns the division this controller owns.
func (c *Controller) Division() string { return c.division }

// State returns the current pointers. Reads do not block transitions beyond
// the brief critical section.
func (c *Controller) State(ctx context.Context) (model.DivisionState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.GetDivisionState(ctx, c.division)
}

func canRunField(caller model.Caller) bool {
	return caller.Role == model.RoleScorekeeper || caller.Role == model.RoleHeadReferee
}

// LoadMatch points the field at a not-started match. Valid only while no
// match is loaded or active.
func (c *Controller) LoadMatch(ctx context.Context, caller model.Caller, matchID string) (model.Match, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !canRunField(caller) {
		return model.Match{}, fmt.Errorf("role %s may not load matches: %w", caller.Role, model.ErrUnauthorized)
	}
	state, err := c.store.GetDivisionState(ctx, c.division)
	if err != nil {
		return model.Match{}, err
	}
	if state.LoadedMatch != "" || state.ActiveMatch != "" {
		return model.Match{}, fmt.Errorf("a match is already loaded or active: %w", model.ErrInvalidTransition)
	}
	match, err := c.getDivisionMatch(ctx, matchID)
	if err != nil {
		return model.Match{}, err
	}
	if match.Status != model.MatchNotStarted {
		return model.Match{}, fmt.Errorf("match %s is %s: %w", matchID, match.Status, model.ErrInvalidTransition)
	}

	if err := c.load(ctx, &state, matchID); err != nil {
		return model.Match{}, err
	}
	return match, nil
}

// load sets the loaded pointer and emits MatchLoaded. Callers hold the lock.
func (c *Controller) load(ctx context.Context, state *model.DivisionState, matchID string) error {
	prev := state.Version
	state.LoadedMatch = matchID
	state.Version = c.clock.Next(c.division, model.ResourceMatch)
	if err := c.store.PutDivisionState(ctx, *state, prev); err != nil {
		return err
	}
	c.logger.Info(ctx, "match loaded",
		logger.String("division", c.division),
		logger.String("match", matchID),
	)
	c.publish(matchID, state.Version, model.MatchLoaded{MatchID: matchID})
	return nil
}

// StartMatch begins the loaded match. All assigned teams must be ready;
// force bypasses only the readiness check, never the loaded/active
// invariants, and is recorded on the event for audit.
func (c *Controller) StartMatch(ctx context.Context, caller model.Caller, force bool) (model.Match, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !canRunField(caller) {
		return model.Match{}, fmt.Errorf("role %s may not start matches: %w", caller.Role, model.ErrUnauthorized)
	}
	state, err := c.store.GetDivisionState(ctx, c.division)
	if err != nil {
		return model.Match{}, err
	}
	if state.LoadedMatch == "" || state.ActiveMatch != "" {
		return model.Match{}, fmt.Errorf("no match is loaded: %w", model.ErrInvalidTransition)
	}
	match, err := c.getDivisionMatch(ctx, state.LoadedMatch)
	if err != nil {
		return model.Match{}, err
	}
	if !force {
		for _, p := range match.Participants {
			if p.TeamID != "" && !p.Ready {
				return model.Match{}, fmt.Errorf("table %s is not ready: %w", p.TableID, model.ErrPreconditionFailed)
			}
		}
	}

	startTime := c.now()
	startDelta := int(startTime.Sub(match.ScheduledTime) / time.Second)

	prevMatch := match.Version
	match.Status = model.MatchInProgress
	match.StartTime = &startTime
	match.Version = c.clock.Next(c.division, model.ResourceMatch)
	if err := c.store.PutMatch(ctx, match, prevMatch); err != nil {
		return model.Match{}, err
	}

	advanceStage := match.Stage == model.StageRanking && state.CurrentStage == model.StagePractice

	prevState := state.Version
	state.ActiveMatch = match.ID
	state.LoadedMatch = ""
	state.Version = match.Version
	var stageVersion int64
	if advanceStage {
		// The stage cue consumes its own version. It must land on the state
		// row, or the clock would reissue it after a restart.
		state.CurrentStage = model.StageRanking
		stageVersion = c.clock.Next(c.division, model.ResourceMatch)
		state.Version = stageVersion
	}
	if err := c.store.PutDivisionState(ctx, state, prevState); err != nil {
		return model.Match{}, err
	}

	c.logger.Info(ctx, "match started",
		logger.String("division", c.division),
		logger.String("match", match.ID),
		logger.Int("startDelta", startDelta),
		logger.Any("forced", force),
	)
	c.publish(match.ID, match.Version, model.MatchStarted{
		MatchID:    match.ID,
		StartTime:  startTime,
		StartDelta: startDelta,
		Forced:     force,
	})
	if advanceStage {
		c.publish(match.ID, stageVersion, model.StageAdvanced{Stage: model.StageRanking})
	}

	c.scheduleCues(match.ID)
	return match, nil
}

// scheduleCues arms the endgame and completion timers for a running match.
// The endgame cue bumps the state row to its version; an event version no
// entity carries would be reissued after a restart.
func (c *Controller) scheduleCues(matchID string) {
	if c.timer == nil {
		return
	}
	endgame := time.Duration(float64(c.matchLength) * endgameFraction)
	c.timer.Schedule(matchID+"/endgame", endgame, func() {
		ctx := context.Background()
		c.mu.Lock()
		defer c.mu.Unlock()
		state, err := c.store.GetDivisionState(ctx, c.division)
		if err != nil || state.ActiveMatch != matchID {
			return
		}
		prev := state.Version
		state.Version = c.clock.Next(c.division, model.ResourceMatch)
		if err := c.store.PutDivisionState(ctx, state, prev); err != nil {
			c.logger.Error(ctx, "endgame cue not persisted",
				logger.String("match", matchID), logger.Error(err))
			return
		}
		c.publish(matchID, state.Version, model.EndgameTriggered{MatchID: matchID})
	})
	c.timer.Schedule(matchID+"/complete", c.matchLength, func() {
		ctx := context.Background()
		if _, err := c.CompleteMatch(ctx, model.Caller{Role: model.RoleScorekeeper}); err != nil {
			c.logger.Error(ctx, "auto-complete failed",
				logger.String("match", matchID), logger.Error(err))
		}
	})
}

func (c *Controller) cancelCues(matchID string) {
	if c.timer == nil {
		return
	}
	c.timer.Cancel(matchID + "/endgame")
	c.timer.Cancel(matchID + "/complete")
}

// CompleteMatch finishes the active match, returning the field to idle and
// unlocking its scoresheets for scoring. When auto-load is on, the next
// unplayed match of the current stage is loaded immediately after.
func (c *Controller) CompleteMatch(ctx context.Context, caller model.Caller) (model.Match, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !canRunField(caller) {
		return model.Match{}, fmt.Errorf("role %s may not complete matches: %w", caller.Role, model.ErrUnauthorized)
	}
	state, err := c.store.GetDivisionState(ctx, c.division)
	if err != nil {
		return model.Match{}, err
	}
	if state.ActiveMatch == "" {
		return model.Match{}, fmt.Errorf("no match is active: %w", model.ErrInvalidTransition)
	}
	match, err := c.getDivisionMatch(ctx, state.ActiveMatch)
	if err != nil {
		return model.Match{}, err
	}

	prevMatch := match.Version
	match.Status = model.MatchPlayed
	match.Version = c.clock.Next(c.division, model.ResourceMatch)
	if err := c.store.PutMatch(ctx, match, prevMatch); err != nil {
		return model.Match{}, err
	}

	prevState := state.Version
	state.ActiveMatch = ""
	state.LoadedMatch = ""
	state.Version = match.Version
	if err := c.store.PutDivisionState(ctx, state, prevState); err != nil {
		return model.Match{}, err
	}

	c.cancelCues(match.ID)
	c.logger.Info(ctx, "match completed",
		logger.String("division", c.division),
		logger.String("match", match.ID),
	)
	c.publish(match.ID, match.Version, model.MatchCompleted{MatchID: match.ID})

	if c.autoLoad && match.Stage != model.StageTest {
		if next, ok := c.nextMatch(ctx, state.CurrentStage, match.Number); ok {
			if err := c.load(ctx, &state, next.ID); err != nil {
				// The completion already committed; a failed auto-load just
				// leaves the field idle for the scorekeeper.
				c.logger.Error(ctx, "auto-load failed", logger.Error(err))
			}
		}
	}
	return match, nil
}

// AbortMatch discards the active match's start, returning it to the pool as
// not-started. The field goes idle; re-running the match is the
// scorekeeper's call, so nothing is auto-loaded.
func (c *Controller) AbortMatch(ctx context.Context, caller model.Caller) (model.Match, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !canRunField(caller) {
		return model.Match{}, fmt.Errorf("role %s may not abort matches: %w", caller.Role, model.ErrUnauthorized)
	}
	state, err := c.store.GetDivisionState(ctx, c.division)
	if err != nil {
		return model.Match{}, err
	}
	if state.ActiveMatch == "" {
		return model.Match{}, fmt.Errorf("no match is active: %w", model.ErrInvalidTransition)
	}
	match, err := c.getDivisionMatch(ctx, state.ActiveMatch)
	if err != nil {
		return model.Match{}, err
	}

	prevMatch := match.Version
	match.Status = model.MatchNotStarted
	match.StartTime = nil
	match.Version = c.clock.Next(c.division, model.ResourceMatch)
	if err := c.store.PutMatch(ctx, match, prevMatch); err != nil {
		return model.Match{}, err
	}

	prevState := state.Version
	state.ActiveMatch = ""
	state.LoadedMatch = ""
	state.Version = match.Version
	if err := c.store.PutDivisionState(ctx, state, prevState); err != nil {
		return model.Match{}, err
	}

	c.cancelCues(match.ID)
	c.logger.Warn(ctx, "match aborted",
		logger.String("division", c.division),
		logger.String("match", match.ID),
	)
	c.publish(match.ID, match.Version, model.MatchAborted{MatchID: match.ID})
	return match, nil
}

// ParticipantPatch carries the prestart flags to change; nil fields are
// left untouched.
type ParticipantPatch struct {
	Queued  *bool
	Present *bool
	Ready   *bool
}

// UpdateParticipant updates one table's prestart flags on the loaded or
// active match. Pure data update: the coarse state machine is unaffected.
func (c *Controller) UpdateParticipant(ctx context.Context, caller model.Caller, matchID, tableID string, patch ParticipantPatch) (model.Match, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch caller.Role {
	case model.RoleReferee, model.RoleHeadReferee, model.RoleScorekeeper, model.RolePitAdmin:
	default:
		return model.Match{}, fmt.Errorf("role %s may not update participants: %w", caller.Role, model.ErrUnauthorized)
	}
	state, err := c.store.GetDivisionState(ctx, c.division)
	if err != nil {
		return model.Match{}, err
	}
	if state.LoadedMatch != matchID && state.ActiveMatch != matchID {
		return model.Match{}, fmt.Errorf("match %s is not loaded or active: %w", matchID, model.ErrInvalidTransition)
	}
	match, err := c.getDivisionMatch(ctx, matchID)
	if err != nil {
		return model.Match{}, err
	}

	idx := -1
	for i, p := range match.Participants {
		if p.TableID == tableID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return model.Match{}, fmt.Errorf("table %s not in match %s: %w", tableID, matchID, model.ErrNotFound)
	}

	prev := match.Version
	participants := append([]model.Participant(nil), match.Participants...)
	if patch.Queued != nil {
		participants[idx].Queued = *patch.Queued
	}
	if patch.Present != nil {
		participants[idx].Present = *patch.Present
	}
	if patch.Ready != nil {
		participants[idx].Ready = *patch.Ready
	}
	match.Participants = participants
	match.Version = c.clock.Next(c.division, model.ResourceMatch)
	if err := c.store.PutMatch(ctx, match, prev); err != nil {
		return model.Match{}, err
	}

	c.publish(match.ID, match.Version, model.ParticipantUpdated{
		MatchID: matchID,
		TableID: tableID,
		Queued:  patch.Queued,
		Present: patch.Present,
		Ready:   patch.Ready,
	})
	return match, nil
}

// nextMatch finds the lowest-numbered unplayed match of the stage after the
// given number, falling back to any earlier unplayed one.
func (c *Controller) nextMatch(ctx context.Context, stage model.Stage, after int) (model.Match, bool) {
	matches, err := c.store.ListMatches(ctx, c.division)
	if err != nil {
		return model.Match{}, false
	}
	var best model.Match
	found := false
	candidate := func(m model.Match) bool {
		return m.Stage == stage && m.Status == model.MatchNotStarted
	}
	for _, m := range matches {
		if !candidate(m) || m.Number <= after {
			continue
		}
		if !found || m.Number < best.Number {
			best, found = m, true
		}
	}
	if !found {
		for _, m := range matches {
			if !candidate(m) {
				continue
			}
			if !found || m.Number < best.Number {
				best, found = m, true
			}
		}
	}
	return best, found
}

func (c *Controller) getDivisionMatch(ctx context.Context, id string) (model.Match, error) {
	match, err := c.store.GetMatch(ctx, id)
	if err != nil {
		return model.Match{}, err
	}
	if match.DivisionID != c.division {
		return model.Match{}, fmt.Errorf("match %s is not in division %s: %w", id, c.division, model.ErrNotFound)
	}
	return match, nil
}

func (c *Controller) publish(matchID string, version int64, payload model.Payload) {
	c.bus.Publish(model.VersionedEvent{
		Resource:   model.ResourceMatch,
		ResourceID: matchID,
		DivisionID: c.division,
		Version:    version,
		At:         c.now(),
		Payload:    payload,
	})
}
