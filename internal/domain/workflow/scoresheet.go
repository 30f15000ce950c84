package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/refbox/internal/domain/clock"
	"github.com/okian/refbox/internal/domain/model"
	"github.com/okian/refbox/internal/domain/scoring"
	"github.com/okian/refbox/pkg/logger"
)

// Store is the persistence the workflow controllers need. Writes carry the
// previous version for optimistic concurrency; the store rejects a write
// whose predecessor is no longer current with model.ErrConflict.
type Store interface {
	GetScoresheet(ctx context.Context, id string) (model.Scoresheet, error)
	PutScoresheet(ctx context.Context, s model.Scoresheet, prev int64) error
	GetRubric(ctx context.Context, id string) (model.Rubric, error)
	PutRubric(ctx context.Context, r model.Rubric, prev int64) error
}

// Publisher fans versioned events out to subscribers. Publishing happens
// after the write is persisted and never blocks the mutation path.
type Publisher interface {
	Publish(ev model.VersionedEvent)
}

// ScoresheetController serializes all writes to a scoresheet and enforces
// the review workflow: empty, in-progress, completed, waiting-for-gp,
// ready, submitted.
type ScoresheetController struct {
	store   Store
	clock   *clock.Clock
	bus     Publisher
	catalog *scoring.Catalog
	now     func() time.Time
	locks   sync.Map // scoresheet id -> *sync.Mutex
	logger  logger.Logger
}

// ScoresheetOption applies a configuration option to the controller.
type ScoresheetOption func(*ScoresheetController)

// WithScoresheetNow overrides the wall clock, for tests.
func WithScoresheetNow(now func() time.Time) ScoresheetOption {
	return func(c *ScoresheetController) {
		if now != nil {
			c.now = now
		}
	}
}

// WithScoresheetLogger sets a custom logger.
func WithScoresheetLogger(l logger.Logger) ScoresheetOption {
	return func(c *ScoresheetController) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewScoresheetController wires a controller over the given collaborators.
func NewScoresheetController(store Store, clk *clock.Clock, bus Publisher, catalog *scoring.Catalog, opts ...ScoresheetOption) *ScoresheetController {
	c := &ScoresheetController{
		store:   store,
		clock:   clk,
		bus:     bus,
		catalog: catalog,
		now:     time.Now,
		logger:  logger.Get().Named("scoresheet"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ScoresheetController) lock(id string) func() {
	mu, _ := c.locks.LoadOrStore(id, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// UpdateMissionClause writes one clause value. The write re-derives the
// cached score and may auto-advance or regress the sheet's status between
// empty, in-progress, completed and waiting-for-gp.
func (c *ScoresheetController) UpdateMissionClause(ctx context.Context, caller model.Caller, id, missionID string, clauseIndex int, value *model.ClauseValue, override bool) (model.Scoresheet, error) {
	defer c.lock(id)()

	sheet, err := c.store.GetScoresheet(ctx, id)
	if err != nil {
		return model.Scoresheet{}, err
	}
	if !canEditScoresheet(caller, sheet.Status, override) {
		return model.Scoresheet{}, authError(caller.Role, fmt.Sprintf("edit a %s scoresheet", sheet.Status))
	}

	mission, ok := c.catalog.MissionByID(missionID)
	if !ok {
		return model.Scoresheet{}, fmt.Errorf("mission %s: %w", missionID, model.ErrNotFound)
	}
	if clauseIndex < 0 || clauseIndex >= len(mission.Clauses) {
		return model.Scoresheet{}, fmt.Errorf("mission %s has no clause %d: %w",
			missionID, clauseIndex, model.ErrPreconditionFailed)
	}
	if err := scoring.ValidateClause(mission.Clauses[clauseIndex], value); err != nil {
		return model.Scoresheet{}, err
	}

	prev := sheet.Version
	missions := sheet.CloneMissions()
	if missions[missionID] == nil {
		missions[missionID] = make([]*model.ClauseValue, len(mission.Clauses))
	}
	missions[missionID][clauseIndex] = value
	sheet.Missions = missions

	result := c.catalog.Score(sheet.Missions)
	sheet.Score = result.Score
	sheet.Status = deriveScoresheetStatus(sheet, result)
	sheet.Version = c.clock.Next(sheet.DivisionID, model.ResourceScoresheet)

	if err := c.store.PutScoresheet(ctx, sheet, prev); err != nil {
		return model.Scoresheet{}, err
	}
	c.publish(sheet, model.ValueUpdated{
		MissionID:   missionID,
		ClauseIndex: clauseIndex,
		Clause:      value,
		Score:       sheet.Score,
		Complete:    result.Complete(),
		Status:      string(sheet.Status),
	})
	return sheet, nil
}

// UpdateGP sets the gracious professionalism rating. GP is appended during
// review, so the sheet must already be waiting for it.
func (c *ScoresheetController) UpdateGP(ctx context.Context, caller model.Caller, id string, value *int, notes string, override bool) (model.Scoresheet, error) {
	defer c.lock(id)()

	sheet, err := c.store.GetScoresheet(ctx, id)
	if err != nil {
		return model.Scoresheet{}, err
	}
	editableNow := sheet.Status == model.ScoresheetWaitingForGP || sheet.Status == model.ScoresheetReady
	if !editableNow && !(caller.Role == model.RoleHeadReferee && override) {
		return model.Scoresheet{}, transitionError(string(sheet.Status), "gp review")
	}
	if caller.Role != model.RoleReferee && caller.Role != model.RoleHeadReferee {
		return model.Scoresheet{}, authError(caller.Role, "rate gracious professionalism")
	}
	if value != nil && (*value < 1 || *value > 4) {
		return model.Scoresheet{}, fmt.Errorf("gp value %d outside 1-4: %w", *value, model.ErrPreconditionFailed)
	}

	prev := sheet.Version
	sheet.GP = model.GP{Value: value, Notes: notes}
	sheet.Version = c.clock.Next(sheet.DivisionID, model.ResourceScoresheet)

	if err := c.store.PutScoresheet(ctx, sheet, prev); err != nil {
		return model.Scoresheet{}, err
	}
	c.publish(sheet, model.ValueUpdated{
		FieldID:  "gp",
		Value:    value,
		Notes:    notes,
		Score:    sheet.Score,
		Complete: true,
		Status:   string(sheet.Status),
	})
	return sheet, nil
}

// UpdateSignature records the team's signature ahead of submission.
func (c *ScoresheetController) UpdateSignature(ctx context.Context, caller model.Caller, id, signature string, override bool) (model.Scoresheet, error) {
	defer c.lock(id)()

	sheet, err := c.store.GetScoresheet(ctx, id)
	if err != nil {
		return model.Scoresheet{}, err
	}
	if caller.Role != model.RoleReferee && caller.Role != model.RoleHeadReferee {
		return model.Scoresheet{}, authError(caller.Role, "sign a scoresheet")
	}
	// The signature follows the same edit guard as clause writes: once the
	// sheet is under review or submitted, only a head-referee override may
	// touch it.
	if !canEditScoresheet(caller, sheet.Status, override) {
		return model.Scoresheet{}, transitionError(string(sheet.Status), "signature")
	}

	prev := sheet.Version
	sheet.Signature = signature
	sheet.Version = c.clock.Next(sheet.DivisionID, model.ResourceScoresheet)

	if err := c.store.PutScoresheet(ctx, sheet, prev); err != nil {
		return model.Scoresheet{}, err
	}
	c.publish(sheet, model.ValueUpdated{
		FieldID:   "signature",
		Signature: signature,
		Score:     sheet.Score,
		Complete:  true,
		Status:    string(sheet.Status),
	})
	return sheet, nil
}

// UpdateStatus moves the sheet along the review workflow, enforcing the
// transition table and its guards.
func (c *ScoresheetController) UpdateStatus(ctx context.Context, caller model.Caller, id string, to model.ScoresheetStatus) (model.Scoresheet, error) {
	defer c.lock(id)()

	sheet, err := c.store.GetScoresheet(ctx, id)
	if err != nil {
		return model.Scoresheet{}, err
	}
	from := sheet.Status
	if !CanTransition(caller, model.ResourceScoresheet, "", string(from), string(to)) {
		if canTransitionScoresheet(model.Caller{Role: model.RoleHeadReferee}, from, to) {
			return model.Scoresheet{}, authError(caller.Role, fmt.Sprintf("move a scoresheet to %s", to))
		}
		return model.Scoresheet{}, transitionError(string(from), string(to))
	}
	if err := c.checkStatusGuard(sheet, to); err != nil {
		return model.Scoresheet{}, err
	}

	prev := sheet.Version
	sheet.Status = to
	sheet.Version = c.clock.Next(sheet.DivisionID, model.ResourceScoresheet)

	if err := c.store.PutScoresheet(ctx, sheet, prev); err != nil {
		return model.Scoresheet{}, err
	}
	c.logger.Info(ctx, "scoresheet status updated",
		logger.String("scoresheet", id),
		logger.String("from", string(from)),
		logger.String("to", string(to)),
	)
	c.publish(sheet, model.StatusUpdated{Status: string(to)})
	return sheet, nil
}

func (c *ScoresheetController) checkStatusGuard(sheet model.Scoresheet, to model.ScoresheetStatus) error {
	switch to {
	case model.ScoresheetCompleted, model.ScoresheetWaitingForGP:
		if result := c.catalog.Score(sheet.Missions); !result.Clean() {
			return fmt.Errorf("scoresheet has incomplete or invalid missions: %w", model.ErrPreconditionFailed)
		}
	case model.ScoresheetReady:
		if err := gpGuard(sheet.GP); err != nil {
			return err
		}
	case model.ScoresheetSubmitted:
		if trimmed(sheet.Signature) == "" {
			return fmt.Errorf("signature is required before submission: %w", model.ErrPreconditionFailed)
		}
		if err := gpGuard(sheet.GP); err != nil {
			return err
		}
		if result := c.catalog.Score(sheet.Missions); !result.Clean() {
			return fmt.Errorf("scoresheet has incomplete or invalid missions: %w", model.ErrPreconditionFailed)
		}
	}
	return nil
}

// gpGuard enforces that a GP rating exists and that the ratings flagging
// exceptional or concerning behavior (2 and 4) carry notes.
func gpGuard(gp model.GP) error {
	if gp.Value == nil {
		return fmt.Errorf("gp rating is required: %w", model.ErrPreconditionFailed)
	}
	if (*gp.Value == 2 || *gp.Value == 4) && trimmed(gp.Notes) == "" {
		return fmt.Errorf("gp value %d requires notes: %w", *gp.Value, model.ErrPreconditionFailed)
	}
	return nil
}

// SetEscalation flips the head-referee review flag. Escalation is
// orthogonal to the workflow status, not a replacement state.
func (c *ScoresheetController) SetEscalation(ctx context.Context, caller model.Caller, id string, escalated bool) (model.Scoresheet, error) {
	defer c.lock(id)()

	sheet, err := c.store.GetScoresheet(ctx, id)
	if err != nil {
		return model.Scoresheet{}, err
	}
	if !canEscalate(caller, escalated) {
		return model.Scoresheet{}, authError(caller.Role, "change escalation")
	}

	prev := sheet.Version
	sheet.Escalated = escalated
	sheet.Version = c.clock.Next(sheet.DivisionID, model.ResourceScoresheet)

	if err := c.store.PutScoresheet(ctx, sheet, prev); err != nil {
		return model.Scoresheet{}, err
	}
	c.publish(sheet, model.StatusUpdated{Status: string(sheet.Status), Escalated: &escalated})
	return sheet, nil
}

// Reset clears the sheet back to empty, preserving identity. Head referee
// only; the usual path is a scoring dispute after submission.
func (c *ScoresheetController) Reset(ctx context.Context, caller model.Caller, id string) (model.Scoresheet, error) {
	defer c.lock(id)()

	sheet, err := c.store.GetScoresheet(ctx, id)
	if err != nil {
		return model.Scoresheet{}, err
	}
	if caller.Role != model.RoleHeadReferee {
		return model.Scoresheet{}, authError(caller.Role, "reset a scoresheet")
	}

	prev := sheet.Version
	sheet.Missions = c.catalog.EmptyMissions()
	sheet.GP = model.GP{}
	sheet.Signature = ""
	sheet.Score = 0
	sheet.Escalated = false
	sheet.Status = model.ScoresheetEmpty
	sheet.Version = c.clock.Next(sheet.DivisionID, model.ResourceScoresheet)

	if err := c.store.PutScoresheet(ctx, sheet, prev); err != nil {
		return model.Scoresheet{}, err
	}
	c.logger.Info(ctx, "scoresheet reset", logger.String("scoresheet", id))
	c.publish(sheet, model.Reset{})
	return sheet, nil
}

func (c *ScoresheetController) publish(sheet model.Scoresheet, payload model.Payload) {
	c.bus.Publish(model.VersionedEvent{
		Resource:   model.ResourceScoresheet,
		ResourceID: sheet.ID,
		DivisionID: sheet.DivisionID,
		Version:    sheet.Version,
		At:         c.now(),
		Payload:    payload,
	})
}

// deriveScoresheetStatus recomputes the data-driven part of the workflow
// after a clause write. Statuses from ready onward are controlled
// explicitly and never regress from a data edit.
func deriveScoresheetStatus(sheet model.Scoresheet, result scoring.Result) model.ScoresheetStatus {
	switch sheet.Status {
	case model.ScoresheetReady, model.ScoresheetSubmitted:
		return sheet.Status
	}
	if !anyClauseSet(sheet.Missions) {
		return model.ScoresheetEmpty
	}
	if !result.Complete() {
		return model.ScoresheetInProgress
	}
	if !result.Clean() {
		return model.ScoresheetCompleted
	}
	return model.ScoresheetWaitingForGP
}

func anyClauseSet(missions map[string][]*model.ClauseValue) bool {
	for _, clauses := range missions {
		for _, c := range clauses {
			if c != nil {
				return true
			}
		}
	}
	return false
}
