package reconcile

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/refbox/internal/domain/model"
	"github.com/okian/refbox/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fakeFetcher struct {
	mu    sync.Mutex
	snap  Snapshot
	err   error
	calls int
}

func (f *fakeFetcher) Snapshot(_ context.Context, _ string, _ model.ResourceType) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return Snapshot{}, f.err
	}
	return f.snap, nil
}

func (f *fakeFetcher) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func matchEvent(version int64, id string, payload model.Payload) model.VersionedEvent {
	return model.VersionedEvent{
		Resource:   model.ResourceMatch,
		ResourceID: id,
		DivisionID: "d1",
		Version:    version,
		At:         time.Now(),
		Payload:    payload,
	}
}

func sheetEvent(version int64, id string, payload model.Payload) model.VersionedEvent {
	return model.VersionedEvent{
		Resource:   model.ResourceScoresheet,
		ResourceID: id,
		DivisionID: "d1",
		Version:    version,
		At:         time.Now(),
		Payload:    payload,
	}
}

func rubricEvent(version int64, id string, payload model.Payload) model.VersionedEvent {
	return model.VersionedEvent{
		Resource:   model.ResourceRubric,
		ResourceID: id,
		DivisionID: "d1",
		Version:    version,
		At:         time.Now(),
		Payload:    payload,
	}
}

func boolPtr(v bool) *bool { return &v }
func intPtr(v int) *int    { return &v }

func TestCacheMatchChannel(t *testing.T) {
	convey.Convey("Given a match cache synced to an authoritative snapshot", t, func() {
		ctx := context.Background()
		fetcher := &fakeFetcher{snap: Snapshot{
			Version: 0,
			DivisionState: model.DivisionState{
				DivisionID:   "d1",
				CurrentStage: model.StagePractice,
			},
			Matches: []model.Match{
				{
					ID:         "m1",
					DivisionID: "d1",
					Stage:      model.StageRanking,
					Number:     1,
					Status:     model.MatchNotStarted,
					Participants: []model.Participant{
						{TeamID: "team-a", TableID: "table-1"},
						{TeamID: "team-b", TableID: "table-2"},
					},
				},
			},
		}}
		cache := New("d1", model.ResourceMatch, fetcher)
		convey.So(cache.Resync(ctx), convey.ShouldBeNil)
		convey.So(fetcher.fetches(), convey.ShouldEqual, 1)

		convey.Convey("Loading a match moves the loaded pointer", func() {
			err := cache.Apply(ctx, matchEvent(1, "m1", model.MatchLoaded{MatchID: "m1"}))
			convey.So(err, convey.ShouldBeNil)
			convey.So(cache.Version(), convey.ShouldEqual, 1)
			convey.So(cache.State().LoadedMatch, convey.ShouldEqual, "m1")
			convey.So(cache.State().Version, convey.ShouldEqual, 1)

			convey.Convey("Starting it swaps loaded for active and stamps the start time", func() {
				startedAt := time.Date(2026, 3, 14, 10, 0, 30, 0, time.UTC)
				err := cache.Apply(ctx, matchEvent(2, "m1", model.MatchStarted{
					MatchID:    "m1",
					StartTime:  startedAt,
					StartDelta: 30,
				}))
				convey.So(err, convey.ShouldBeNil)

				m, ok := cache.Match("m1")
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(m.Status, convey.ShouldEqual, model.MatchInProgress)
				convey.So(m.StartTime, convey.ShouldNotBeNil)
				convey.So(m.StartTime.Equal(startedAt), convey.ShouldBeTrue)
				convey.So(m.Version, convey.ShouldEqual, 2)
				convey.So(cache.State().ActiveMatch, convey.ShouldEqual, "m1")
				convey.So(cache.State().LoadedMatch, convey.ShouldBeEmpty)

				convey.Convey("Completing it clears both pointers", func() {
					err := cache.Apply(ctx, matchEvent(3, "m1", model.MatchCompleted{MatchID: "m1"}))
					convey.So(err, convey.ShouldBeNil)

					m, _ := cache.Match("m1")
					convey.So(m.Status, convey.ShouldEqual, model.MatchPlayed)
					convey.So(cache.State().ActiveMatch, convey.ShouldBeEmpty)
					convey.So(cache.State().LoadedMatch, convey.ShouldBeEmpty)
				})

				convey.Convey("Aborting it rewinds the match to not-started", func() {
					err := cache.Apply(ctx, matchEvent(3, "m1", model.MatchAborted{MatchID: "m1"}))
					convey.So(err, convey.ShouldBeNil)

					m, _ := cache.Match("m1")
					convey.So(m.Status, convey.ShouldEqual, model.MatchNotStarted)
					convey.So(m.StartTime, convey.ShouldBeNil)
					convey.So(cache.State().ActiveMatch, convey.ShouldBeEmpty)
				})

				convey.Convey("An endgame cue changes nothing but the version", func() {
					err := cache.Apply(ctx, matchEvent(3, "m1", model.EndgameTriggered{MatchID: "m1"}))
					convey.So(err, convey.ShouldBeNil)
					convey.So(cache.Version(), convey.ShouldEqual, 3)

					m, _ := cache.Match("m1")
					convey.So(m.Status, convey.ShouldEqual, model.MatchInProgress)
				})
			})
		})

		convey.Convey("A participant update touches only the flags it carries", func() {
			err := cache.Apply(ctx, matchEvent(1, "m1", model.ParticipantUpdated{
				MatchID: "m1",
				TableID: "table-1",
				Queued:  boolPtr(true),
			}))
			convey.So(err, convey.ShouldBeNil)

			m, _ := cache.Match("m1")
			convey.So(m.Participants[0].Queued, convey.ShouldBeTrue)
			convey.So(m.Participants[0].Present, convey.ShouldBeFalse)
			convey.So(m.Participants[0].Ready, convey.ShouldBeFalse)
			convey.So(m.Participants[1].Queued, convey.ShouldBeFalse)
		})

		convey.Convey("A stage advance moves the division stage", func() {
			err := cache.Apply(ctx, matchEvent(1, "", model.StageAdvanced{Stage: model.StageRanking}))
			convey.So(err, convey.ShouldBeNil)
			convey.So(cache.State().CurrentStage, convey.ShouldEqual, model.StageRanking)
		})

		convey.Convey("An event for an unknown match forces a resync", func() {
			err := cache.Apply(ctx, matchEvent(1, "ghost", model.MatchStarted{MatchID: "ghost"}))
			convey.So(err, convey.ShouldBeNil)
			convey.So(fetcher.fetches(), convey.ShouldEqual, 2)
			convey.So(cache.Version(), convey.ShouldEqual, 0)
		})
	})
}

func TestCacheScoresheetChannel(t *testing.T) {
	convey.Convey("Given a scoresheet cache synced to a snapshot", t, func() {
		ctx := context.Background()
		fetcher := &fakeFetcher{snap: Snapshot{
			Version: 0,
			Scoresheets: []model.Scoresheet{
				{
					ID:         "s1",
					DivisionID: "d1",
					TeamID:     "team-a",
					Status:     model.ScoresheetEmpty,
					Missions: map[string][]*model.ClauseValue{
						"m01": {nil, nil},
					},
				},
			},
		}}
		cache := New("d1", model.ResourceScoresheet, fetcher)
		convey.So(cache.Resync(ctx), convey.ShouldBeNil)

		convey.Convey("A mission answer lands in the right clause slot", func() {
			err := cache.Apply(ctx, sheetEvent(1, "s1", model.ValueUpdated{
				MissionID:   "m01",
				ClauseIndex: 1,
				Clause:      model.BoolValue(true),
				Score:       20,
				Status:      string(model.ScoresheetInProgress),
			}))
			convey.So(err, convey.ShouldBeNil)

			s, ok := cache.Scoresheet("s1")
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(s.Missions["m01"][0], convey.ShouldBeNil)
			convey.So(s.Missions["m01"][1].Bool, convey.ShouldBeTrue)
			convey.So(s.Score, convey.ShouldEqual, 20)
			convey.So(s.Status, convey.ShouldEqual, model.ScoresheetInProgress)
			convey.So(s.Version, convey.ShouldEqual, 1)
		})

		convey.Convey("A GP answer fills the gp block", func() {
			err := cache.Apply(ctx, sheetEvent(1, "s1", model.ValueUpdated{
				FieldID: "gp",
				Value:   intPtr(3),
				Notes:   "solid",
				Score:   0,
			}))
			convey.So(err, convey.ShouldBeNil)

			s, _ := cache.Scoresheet("s1")
			convey.So(s.GP.Value, convey.ShouldNotBeNil)
			convey.So(*s.GP.Value, convey.ShouldEqual, 3)
			convey.So(s.GP.Notes, convey.ShouldEqual, "solid")
		})

		convey.Convey("A signature lands verbatim", func() {
			err := cache.Apply(ctx, sheetEvent(1, "s1", model.ValueUpdated{
				FieldID:   "signature",
				Signature: "data:image/png;base64,AAAA",
			}))
			convey.So(err, convey.ShouldBeNil)

			s, _ := cache.Scoresheet("s1")
			convey.So(s.Signature, convey.ShouldEqual, "data:image/png;base64,AAAA")
		})

		convey.Convey("A status update can carry an escalation flag", func() {
			err := cache.Apply(ctx, sheetEvent(1, "s1", model.StatusUpdated{
				Status:    string(model.ScoresheetReady),
				Escalated: boolPtr(true),
			}))
			convey.So(err, convey.ShouldBeNil)

			s, _ := cache.Scoresheet("s1")
			convey.So(s.Status, convey.ShouldEqual, model.ScoresheetReady)
			convey.So(s.Escalated, convey.ShouldBeTrue)
		})

		convey.Convey("A reset wipes the sheet but keeps its identity", func() {
			convey.So(cache.Apply(ctx, sheetEvent(1, "s1", model.ValueUpdated{
				MissionID: "m01", ClauseIndex: 0, Clause: model.BoolValue(true), Score: 10,
			})), convey.ShouldBeNil)
			before, _ := cache.Scoresheet("s1")

			err := cache.Apply(ctx, sheetEvent(2, "s1", model.Reset{}))
			convey.So(err, convey.ShouldBeNil)

			s, _ := cache.Scoresheet("s1")
			convey.So(s.ID, convey.ShouldEqual, "s1")
			convey.So(s.TeamID, convey.ShouldEqual, "team-a")
			convey.So(s.Missions["m01"][0], convey.ShouldBeNil)
			convey.So(s.Score, convey.ShouldEqual, 0)
			convey.So(s.Status, convey.ShouldEqual, model.ScoresheetEmpty)
			convey.So(s.Version, convey.ShouldEqual, 2)

			convey.Convey("Without touching copies handed out before it", func() {
				convey.So(before.Missions["m01"][0], convey.ShouldNotBeNil)
				convey.So(before.Missions["m01"][0].Bool, convey.ShouldBeTrue)
			})
		})

		convey.Convey("An event for an unknown sheet forces a resync", func() {
			err := cache.Apply(ctx, sheetEvent(1, "ghost", model.Reset{}))
			convey.So(err, convey.ShouldBeNil)
			convey.So(fetcher.fetches(), convey.ShouldEqual, 2)
		})
	})
}

func TestCacheRubricChannel(t *testing.T) {
	convey.Convey("Given a rubric cache synced to a snapshot", t, func() {
		ctx := context.Background()
		fetcher := &fakeFetcher{snap: Snapshot{
			Version: 0,
			Rubrics: []model.Rubric{
				{
					ID:         "r1",
					DivisionID: "d1",
					TeamID:     "team-a",
					Category:   model.CategoryCoreValues,
					Status:     model.RubricDraft,
					Fields: map[string]model.RubricField{
						"discovery": {},
						"teamwork":  {},
					},
					Awards: map[string]bool{"breakthrough": false},
				},
			},
		}}
		cache := New("d1", model.ResourceRubric, fetcher)
		convey.So(cache.Resync(ctx), convey.ShouldBeNil)

		convey.Convey("A field rating replaces that field alone", func() {
			err := cache.Apply(ctx, rubricEvent(1, "r1", model.ValueUpdated{
				FieldID: "discovery",
				Value:   intPtr(3),
				Notes:   "good instincts",
			}))
			convey.So(err, convey.ShouldBeNil)

			r, ok := cache.Rubric("r1")
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(*r.Fields["discovery"].Value, convey.ShouldEqual, 3)
			convey.So(r.Fields["discovery"].Notes, convey.ShouldEqual, "good instincts")
			convey.So(r.Fields["teamwork"].Value, convey.ShouldBeNil)
			convey.So(r.Version, convey.ShouldEqual, 1)
		})

		convey.Convey("Feedback and awards replace wholesale", func() {
			convey.So(cache.Apply(ctx, rubricEvent(1, "r1", model.FeedbackUpdated{
				GreatJob:   "strong teamwork",
				ThinkAbout: "document the iterations",
			})), convey.ShouldBeNil)
			convey.So(cache.Apply(ctx, rubricEvent(2, "r1", model.AwardsUpdated{
				Awards: map[string]bool{"breakthrough": true},
			})), convey.ShouldBeNil)

			r, _ := cache.Rubric("r1")
			convey.So(r.Feedback.GreatJob, convey.ShouldEqual, "strong teamwork")
			convey.So(r.Awards["breakthrough"], convey.ShouldBeTrue)
		})

		convey.Convey("A status update moves the review state", func() {
			err := cache.Apply(ctx, rubricEvent(1, "r1", model.StatusUpdated{
				Status: string(model.RubricLocked),
			}))
			convey.So(err, convey.ShouldBeNil)

			r, _ := cache.Rubric("r1")
			convey.So(r.Status, convey.ShouldEqual, model.RubricLocked)
		})

		convey.Convey("A reset returns the rubric to an empty draft", func() {
			convey.So(cache.Apply(ctx, rubricEvent(1, "r1", model.ValueUpdated{
				FieldID: "discovery", Value: intPtr(4), Notes: "note",
			})), convey.ShouldBeNil)
			convey.So(cache.Apply(ctx, rubricEvent(2, "r1", model.AwardsUpdated{
				Awards: map[string]bool{"breakthrough": true},
			})), convey.ShouldBeNil)

			before, _ := cache.Rubric("r1")

			err := cache.Apply(ctx, rubricEvent(3, "r1", model.Reset{}))
			convey.So(err, convey.ShouldBeNil)

			r, _ := cache.Rubric("r1")
			convey.So(r.Fields, convey.ShouldBeEmpty)
			convey.So(r.Awards, convey.ShouldBeNil)
			convey.So(r.Feedback, convey.ShouldResemble, model.Feedback{})
			convey.So(r.Status, convey.ShouldEqual, model.RubricDraft)
			convey.So(r.Version, convey.ShouldEqual, 3)

			convey.Convey("Without touching copies handed out before it", func() {
				convey.So(*before.Fields["discovery"].Value, convey.ShouldEqual, 4)
				convey.So(before.Awards["breakthrough"], convey.ShouldBeTrue)
			})
		})
	})
}

func TestCacheVersionHandling(t *testing.T) {
	convey.Convey("Given a match cache at version 2", t, func() {
		ctx := context.Background()
		fetcher := &fakeFetcher{snap: Snapshot{
			Version:       7,
			DivisionState: model.DivisionState{DivisionID: "d1", Version: 7},
		}}
		cache := New("d1", model.ResourceMatch, fetcher)
		convey.So(cache.Apply(ctx, matchEvent(1, "m1", model.MatchLoaded{MatchID: "m1"})), convey.ShouldBeNil)
		convey.So(cache.Apply(ctx, matchEvent(2, "", model.StageAdvanced{Stage: model.StageRanking})), convey.ShouldBeNil)
		convey.So(cache.Version(), convey.ShouldEqual, 2)

		convey.Convey("Replaying an already-applied event changes nothing", func() {
			err := cache.Apply(ctx, matchEvent(2, "", model.StageAdvanced{Stage: model.StagePractice}))
			convey.So(err, convey.ShouldBeNil)
			convey.So(cache.Version(), convey.ShouldEqual, 2)
			convey.So(cache.State().CurrentStage, convey.ShouldEqual, model.StageRanking)
			convey.So(fetcher.fetches(), convey.ShouldEqual, 0)
		})

		convey.Convey("A version gap triggers a full resync", func() {
			err := cache.Apply(ctx, matchEvent(5, "m1", model.MatchLoaded{MatchID: "m1"}))
			convey.So(err, convey.ShouldBeNil)
			convey.So(fetcher.fetches(), convey.ShouldEqual, 1)
			convey.So(cache.Version(), convey.ShouldEqual, 7)
			convey.So(cache.State().LoadedMatch, convey.ShouldBeEmpty)

			convey.Convey("and the replica follows the snapshot version afterwards", func() {
				err := cache.Apply(ctx, matchEvent(8, "", model.StageAdvanced{Stage: model.StageRanking}))
				convey.So(err, convey.ShouldBeNil)
				convey.So(cache.Version(), convey.ShouldEqual, 8)
			})
		})

		convey.Convey("A failing snapshot fetch surfaces the error", func() {
			fetcher.err = errors.New("backend unreachable")
			err := cache.Apply(ctx, matchEvent(5, "m1", model.MatchLoaded{MatchID: "m1"}))
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cache.Version(), convey.ShouldEqual, 2)
		})

		convey.Convey("Events for another division or resource are refused outright", func() {
			wrongDivision := matchEvent(3, "m1", model.MatchLoaded{MatchID: "m1"})
			wrongDivision.DivisionID = "d2"
			convey.So(cache.Apply(ctx, wrongDivision), convey.ShouldWrap, model.ErrPreconditionFailed)

			wrongResource := matchEvent(3, "m1", model.MatchLoaded{MatchID: "m1"})
			wrongResource.Resource = model.ResourceScoresheet
			convey.So(cache.Apply(ctx, wrongResource), convey.ShouldWrap, model.ErrPreconditionFailed)

			convey.So(fetcher.fetches(), convey.ShouldEqual, 0)
			convey.So(cache.Version(), convey.ShouldEqual, 2)
		})
	})
}
