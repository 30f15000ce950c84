package workflow

import (
	"context"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/refbox/internal/domain/clock"
	"github.com/okian/refbox/internal/domain/model"
)

var (
	judge        = model.Caller{Role: model.RoleJudge}
	judgeAdvisor = model.Caller{Role: model.RoleJudgeAdvisor}
	cvLeadJudge  = model.Caller{
		Role:  model.RoleLeadJudge,
		Scope: model.Scope{Category: model.CategoryCoreValues},
	}
	ipLeadJudge = model.Caller{
		Role:  model.RoleLeadJudge,
		Scope: model.Scope{Category: model.CategoryInnovationProject},
	}
)

func rubricFixture(store *fakeStore, category model.JudgingCategory) model.Rubric {
	rubric := model.Rubric{
		ID:         "rubric-1",
		DivisionID: "d1",
		TeamID:     "team-1",
		Category:   category,
		Status:     model.RubricDraft,
		Fields:     make(map[string]model.RubricField),
	}
	store.rubrics[rubric.ID] = rubric
	return rubric
}

// rateAll fills every field of the rubric's schema with the given value.
func rateAll(ctrl *RubricController, category model.JudgingCategory, value int, notes string) error {
	ctx := context.Background()
	schema, _ := SchemaFor(category)
	for _, fieldID := range schema.Fields {
		if _, err := ctrl.UpdateField(ctx, judge, "rubric-1", fieldID, model.IntPtr(value), notes); err != nil {
			return err
		}
	}
	return nil
}

func TestRubricFieldUpdates(t *testing.T) {
	convey.Convey("Given a draft core-values rubric", t, func() {
		ctx := context.Background()
		store := newFakeStore()
		bus := &fakeBus{}
		ctrl := NewRubricController(store, clock.New(), bus)
		rubricFixture(store, model.CategoryCoreValues)

		convey.Convey("A judge can rate a field", func() {
			rubric, err := ctrl.UpdateField(ctx, judge, "rubric-1", "teamwork", model.IntPtr(3), "")
			convey.So(err, convey.ShouldBeNil)
			convey.So(*rubric.Fields["teamwork"].Value, convey.ShouldEqual, 3)
			convey.So(rubric.Version, convey.ShouldEqual, 1)

			payload, ok := bus.last().Payload.(model.ValueUpdated)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(payload.FieldID, convey.ShouldEqual, "teamwork")
		})

		convey.Convey("An unknown field is rejected", func() {
			_, err := ctrl.UpdateField(ctx, judge, "rubric-1", "robustness", model.IntPtr(3), "")
			convey.So(err, convey.ShouldWrap, model.ErrNotFound)
		})

		convey.Convey("A value outside 1-4 is rejected", func() {
			_, err := ctrl.UpdateField(ctx, judge, "rubric-1", "teamwork", model.IntPtr(5), "")
			convey.So(err, convey.ShouldWrap, model.ErrPreconditionFailed)
		})

		convey.Convey("A referee cannot rate rubric fields", func() {
			_, err := ctrl.UpdateField(ctx, referee, "rubric-1", "teamwork", model.IntPtr(3), "")
			convey.So(err, convey.ShouldWrap, model.ErrUnauthorized)
		})

		convey.Convey("A lead judge of another category cannot edit it", func() {
			_, err := ctrl.UpdateField(ctx, ipLeadJudge, "rubric-1", "teamwork", model.IntPtr(3), "")
			convey.So(err, convey.ShouldWrap, model.ErrUnauthorized)

			_, err = ctrl.UpdateField(ctx, cvLeadJudge, "rubric-1", "teamwork", model.IntPtr(3), "")
			convey.So(err, convey.ShouldBeNil)
		})

		convey.Convey("Award nominations accept only schema awards", func() {
			_, err := ctrl.UpdateAwards(ctx, judge, "rubric-1", map[string]bool{"best-haircut": true})
			convey.So(err, convey.ShouldWrap, model.ErrNotFound)

			rubric, err := ctrl.UpdateAwards(ctx, judge, "rubric-1", map[string]bool{"breakthrough": true})
			convey.So(err, convey.ShouldBeNil)
			convey.So(rubric.Awards["breakthrough"], convey.ShouldBeTrue)
		})

		convey.Convey("Feedback edits replace the pair", func() {
			rubric, err := ctrl.UpdateFeedback(ctx, judge, "rubric-1", "great gracious professionalism", "tighten the presentation")
			convey.So(err, convey.ShouldBeNil)
			convey.So(rubric.Feedback.GreatJob, convey.ShouldEqual, "great gracious professionalism")

			payload, ok := bus.last().Payload.(model.FeedbackUpdated)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(payload.ThinkAbout, convey.ShouldEqual, "tighten the presentation")
		})
	})

	convey.Convey("Given a category without awards", t, func() {
		ctx := context.Background()
		store := newFakeStore()
		ctrl := NewRubricController(store, clock.New(), &fakeBus{})
		rubricFixture(store, model.CategoryRobotDesign)

		convey.Convey("Nominating awards fails the precondition", func() {
			_, err := ctrl.UpdateAwards(ctx, judge, "rubric-1", map[string]bool{"breakthrough": true})
			convey.So(err, convey.ShouldWrap, model.ErrPreconditionFailed)
		})
	})
}

func TestRubricLockWorkflow(t *testing.T) {
	convey.Convey("Given a draft innovation-project rubric", t, func() {
		ctx := context.Background()
		store := newFakeStore()
		bus := &fakeBus{}
		ctrl := NewRubricController(store, clock.New(), bus)
		rubricFixture(store, model.CategoryInnovationProject)

		convey.Convey("Locking an incomplete rubric is rejected", func() {
			_, err := ctrl.UpdateStatus(ctx, judgeAdvisor, "rubric-1", model.RubricLocked)
			convey.So(err, convey.ShouldWrap, model.ErrPreconditionFailed)
		})

		convey.Convey("A value-4 field without notes blocks locking", func() {
			convey.So(rateAll(ctrl, model.CategoryInnovationProject, 4, ""), convey.ShouldBeNil)
			_, err := ctrl.UpdateFeedback(ctx, judge, "rubric-1", "strong research", "consider more iteration")
			convey.So(err, convey.ShouldBeNil)

			_, err = ctrl.UpdateStatus(ctx, judgeAdvisor, "rubric-1", model.RubricLocked)
			convey.So(err, convey.ShouldWrap, model.ErrPreconditionFailed)

			convey.So(rateAll(ctrl, model.CategoryInnovationProject, 4, "exceeds at every step"), convey.ShouldBeNil)
			rubric, err := ctrl.UpdateStatus(ctx, judgeAdvisor, "rubric-1", model.RubricLocked)
			convey.So(err, convey.ShouldBeNil)
			convey.So(rubric.Status, convey.ShouldEqual, model.RubricLocked)
		})

		convey.Convey("This category requires feedback before locking", func() {
			convey.So(rateAll(ctrl, model.CategoryInnovationProject, 3, ""), convey.ShouldBeNil)

			_, err := ctrl.UpdateStatus(ctx, judgeAdvisor, "rubric-1", model.RubricLocked)
			convey.So(err, convey.ShouldWrap, model.ErrPreconditionFailed)

			_, err = ctrl.UpdateFeedback(ctx, judge, "rubric-1", "clear problem statement", "practice the timing")
			convey.So(err, convey.ShouldBeNil)
			_, err = ctrl.UpdateStatus(ctx, judgeAdvisor, "rubric-1", model.RubricLocked)
			convey.So(err, convey.ShouldBeNil)
		})

		convey.Convey("Given a complete locked rubric", func() {
			convey.So(rateAll(ctrl, model.CategoryInnovationProject, 3, ""), convey.ShouldBeNil)
			_, err := ctrl.UpdateFeedback(ctx, judge, "rubric-1", "clear problem statement", "practice the timing")
			convey.So(err, convey.ShouldBeNil)
			_, err = ctrl.UpdateStatus(ctx, ipLeadJudge, "rubric-1", model.RubricLocked)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Locked rubrics reject field edits", func() {
				_, err := ctrl.UpdateField(ctx, judge, "rubric-1", "identify", model.IntPtr(2), "")
				convey.So(err, convey.ShouldWrap, model.ErrInvalidTransition)
			})

			convey.Convey("Only the judge advisor approves", func() {
				_, err := ctrl.UpdateStatus(ctx, ipLeadJudge, "rubric-1", model.RubricApproved)
				convey.So(err, convey.ShouldWrap, model.ErrUnauthorized)

				rubric, err := ctrl.UpdateStatus(ctx, judgeAdvisor, "rubric-1", model.RubricApproved)
				convey.So(err, convey.ShouldBeNil)
				convey.So(rubric.Status, convey.ShouldEqual, model.RubricApproved)

				convey.Convey("And an approved rubric cannot be unlocked", func() {
					_, err := ctrl.UpdateStatus(ctx, judgeAdvisor, "rubric-1", model.RubricDraft)
					convey.So(err, convey.ShouldWrap, model.ErrInvalidTransition)
				})
			})

			convey.Convey("Unlocking keeps the data intact", func() {
				rubric, err := ctrl.UpdateStatus(ctx, judgeAdvisor, "rubric-1", model.RubricDraft)
				convey.So(err, convey.ShouldBeNil)
				convey.So(rubric.Status, convey.ShouldEqual, model.RubricDraft)
				convey.So(*rubric.Fields["identify"].Value, convey.ShouldEqual, 3)
				convey.So(rubric.Feedback.GreatJob, convey.ShouldEqual, "clear problem statement")
			})

			convey.Convey("Reset clears the data back to a draft", func() {
				_, err := ctrl.UpdateStatus(ctx, judgeAdvisor, "rubric-1", model.RubricApproved)
				convey.So(err, convey.ShouldBeNil)

				_, err = ctrl.Reset(ctx, judge, "rubric-1")
				convey.So(err, convey.ShouldWrap, model.ErrUnauthorized)

				rubric, err := ctrl.Reset(ctx, judgeAdvisor, "rubric-1")
				convey.So(err, convey.ShouldBeNil)
				convey.So(rubric.Status, convey.ShouldEqual, model.RubricDraft)
				convey.So(rubric.Fields, convey.ShouldBeEmpty)
				convey.So(rubric.Awards, convey.ShouldBeNil)
			})
		})
	})
}
