package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/refbox/internal/domain/clock"
	"github.com/okian/refbox/internal/domain/model"
	"github.com/okian/refbox/pkg/logger"
)

// RubricController serializes all writes to a rubric and enforces the
// judging workflow: draft, locked, approved.
type RubricController struct {
	store  Store
	clock  *clock.Clock
	bus    Publisher
	now    func() time.Time
	locks  sync.Map // rubric id -> *sync.Mutex
	logger logger.Logger
}

// RubricOption applies a configuration option to the controller.
type RubricOption func(*RubricController)

// WithRubricNow overrides the wall clock, for tests.
func WithRubricNow(now func() time.Time) RubricOption {
	return func(c *RubricController) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRubricLogger sets a custom logger.
func WithRubricLogger(l logger.Logger) RubricOption {
	return func(c *RubricController) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewRubricController wires a controller over the given collaborators.
func NewRubricController(store Store, clk *clock.Clock, bus Publisher, opts ...RubricOption) *RubricController {
	c := &RubricController{
		store:  store,
		clock:  clk,
		bus:    bus,
		now:    time.Now,
		logger: logger.Get().Named("rubric"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RubricController) lock(id string) func() {
	mu, _ := c.locks.LoadOrStore(id, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// UpdateField writes one rubric rating. Conflicting writes to the same
// field resolve last-write-wins; writes to different fields never block
// each other beyond the per-rubric critical section.
func (c *RubricController) UpdateField(ctx context.Context, caller model.Caller, id, fieldID string, value *int, notes string) (model.Rubric, error) {
	defer c.lock(id)()

	rubric, err := c.store.GetRubric(ctx, id)
	if err != nil {
		return model.Rubric{}, err
	}
	if !canEditRubric(caller, rubric.Category, rubric.Status) {
		if rubric.Status != model.RubricDraft {
			return model.Rubric{}, transitionError(string(rubric.Status), "field edit")
		}
		return model.Rubric{}, authError(caller.Role, "edit this rubric")
	}
	schema, ok := SchemaFor(rubric.Category)
	if !ok {
		return model.Rubric{}, errUnknownCategory(rubric.Category)
	}
	if !containsField(schema.Fields, fieldID) {
		return model.Rubric{}, fmt.Errorf("field %s: %w", fieldID, model.ErrNotFound)
	}
	if value != nil && (*value < 1 || *value > 4) {
		return model.Rubric{}, fieldError(fieldID, "is out of range")
	}

	prev := rubric.Version
	fields := rubric.CloneFields()
	fields[fieldID] = model.RubricField{Value: value, Notes: notes}
	rubric.Fields = fields
	rubric.Version = c.clock.Next(rubric.DivisionID, model.ResourceRubric)

	if err := c.store.PutRubric(ctx, rubric, prev); err != nil {
		return model.Rubric{}, err
	}
	c.publish(rubric, model.ValueUpdated{
		FieldID:  fieldID,
		Value:    value,
		Notes:    notes,
		Complete: rubricComplete(&rubric) == nil,
		Status:   string(rubric.Status),
	})
	return rubric, nil
}

// UpdateFeedback replaces the written feedback pair.
func (c *RubricController) UpdateFeedback(ctx context.Context, caller model.Caller, id, greatJob, thinkAbout string) (model.Rubric, error) {
	defer c.lock(id)()

	rubric, err := c.store.GetRubric(ctx, id)
	if err != nil {
		return model.Rubric{}, err
	}
	if !canEditRubric(caller, rubric.Category, rubric.Status) {
		if rubric.Status != model.RubricDraft {
			return model.Rubric{}, transitionError(string(rubric.Status), "feedback edit")
		}
		return model.Rubric{}, authError(caller.Role, "edit this rubric")
	}

	prev := rubric.Version
	rubric.Feedback = model.Feedback{GreatJob: greatJob, ThinkAbout: thinkAbout}
	rubric.Version = c.clock.Next(rubric.DivisionID, model.ResourceRubric)

	if err := c.store.PutRubric(ctx, rubric, prev); err != nil {
		return model.Rubric{}, err
	}
	c.publish(rubric, model.FeedbackUpdated{GreatJob: greatJob, ThinkAbout: thinkAbout})
	return rubric, nil
}

// UpdateAwards replaces the award nominations. Only categories whose schema
// lists awards carry them.
func (c *RubricController) UpdateAwards(ctx context.Context, caller model.Caller, id string, awards map[string]bool) (model.Rubric, error) {
	defer c.lock(id)()

	rubric, err := c.store.GetRubric(ctx, id)
	if err != nil {
		return model.Rubric{}, err
	}
	if !canEditRubric(caller, rubric.Category, rubric.Status) {
		if rubric.Status != model.RubricDraft {
			return model.Rubric{}, transitionError(string(rubric.Status), "awards edit")
		}
		return model.Rubric{}, authError(caller.Role, "edit this rubric")
	}
	schema, ok := SchemaFor(rubric.Category)
	if !ok {
		return model.Rubric{}, errUnknownCategory(rubric.Category)
	}
	if len(schema.Awards) == 0 {
		return model.Rubric{}, fmt.Errorf("category %s has no awards: %w",
			rubric.Category, model.ErrPreconditionFailed)
	}
	for name := range awards {
		if !containsField(schema.Awards, name) {
			return model.Rubric{}, fmt.Errorf("award %s: %w", name, model.ErrNotFound)
		}
	}

	prev := rubric.Version
	copied := make(map[string]bool, len(awards))
	for name, nominated := range awards {
		copied[name] = nominated
	}
	rubric.Awards = copied
	rubric.Version = c.clock.Next(rubric.DivisionID, model.ResourceRubric)

	if err := c.store.PutRubric(ctx, rubric, prev); err != nil {
		return model.Rubric{}, err
	}
	c.publish(rubric, model.AwardsUpdated{Awards: copied})
	return rubric, nil
}

// UpdateStatus moves the rubric through draft, locked and approved. Locking
// requires the rubric to be complete; unlocking keeps the data intact.
func (c *RubricController) UpdateStatus(ctx context.Context, caller model.Caller, id string, to model.RubricStatus) (model.Rubric, error) {
	defer c.lock(id)()

	rubric, err := c.store.GetRubric(ctx, id)
	if err != nil {
		return model.Rubric{}, err
	}
	from := rubric.Status
	if !CanTransition(caller, model.ResourceRubric, rubric.Category, string(from), string(to)) {
		if canTransitionRubric(model.Caller{Role: model.RoleJudgeAdvisor}, rubric.Category, from, to) {
			return model.Rubric{}, authError(caller.Role, fmt.Sprintf("move a rubric to %s", to))
		}
		return model.Rubric{}, transitionError(string(from), string(to))
	}
	if to == model.RubricLocked {
		if err := rubricComplete(&rubric); err != nil {
			return model.Rubric{}, err
		}
	}

	prev := rubric.Version
	rubric.Status = to
	rubric.Version = c.clock.Next(rubric.DivisionID, model.ResourceRubric)

	if err := c.store.PutRubric(ctx, rubric, prev); err != nil {
		return model.Rubric{}, err
	}
	c.logger.Info(ctx, "rubric status updated",
		logger.String("rubric", id),
		logger.String("from", string(from)),
		logger.String("to", string(to)),
	)
	c.publish(rubric, model.StatusUpdated{Status: string(to)})
	return rubric, nil
}

// Reset returns the rubric to draft with cleared data. Same authorization
// as locking.
func (c *RubricController) Reset(ctx context.Context, caller model.Caller, id string) (model.Rubric, error) {
	defer c.lock(id)()

	rubric, err := c.store.GetRubric(ctx, id)
	if err != nil {
		return model.Rubric{}, err
	}
	leadForCategory := caller.Role == model.RoleLeadJudge && caller.Scope.Category == rubric.Category
	if caller.Role != model.RoleJudgeAdvisor && !leadForCategory {
		return model.Rubric{}, authError(caller.Role, "reset a rubric")
	}

	prev := rubric.Version
	rubric.Fields = make(map[string]model.RubricField)
	rubric.Feedback = model.Feedback{}
	rubric.Awards = nil
	rubric.Status = model.RubricDraft
	rubric.Version = c.clock.Next(rubric.DivisionID, model.ResourceRubric)

	if err := c.store.PutRubric(ctx, rubric, prev); err != nil {
		return model.Rubric{}, err
	}
	c.logger.Info(ctx, "rubric reset", logger.String("rubric", id))
	c.publish(rubric, model.Reset{})
	return rubric, nil
}

func (c *RubricController) publish(rubric model.Rubric, payload model.Payload) {
	c.bus.Publish(model.VersionedEvent{
		Resource:   model.ResourceRubric,
		ResourceID: rubric.ID,
		DivisionID: rubric.DivisionID,
		Version:    rubric.Version,
		At:         c.now(),
		Payload:    payload,
	})
}

func containsField(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
