package broadcast

import (
	"context"
	"os"
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

func event(division string, resource model.ResourceType, version int64) Event {
	return Event{
		Resource:   resource,
		ResourceID: "e1",
		DivisionID: division,
		Version:    version,
		At:         time.Now(),
	}
}

// collect drains everything currently buffered on the subscription.
func collect(sub *Subscription) []Event {
	var out []Event
	for {
		select {
		case e, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestBrokerPublishSubscribe(t *testing.T) {
	convey.Convey("Given a broker with one subscriber", t, func() {
		ctx := context.Background()
		b := NewInMemoryBroker()
		defer func() { _ = b.Close() }()

		sub, err := b.Subscribe(ctx, "d1", model.ResourceMatch, 0)
		convey.So(err, convey.ShouldBeNil)
		convey.So(b.Subscribers(), convey.ShouldEqual, 1)

		convey.Convey("Events arrive in publish order", func() {
			for v := int64(1); v <= 3; v++ {
				b.Publish(event("d1", model.ResourceMatch, v))
			}

			events := collect(sub)
			convey.So(events, convey.ShouldHaveLength, 3)
			for i, e := range events {
				convey.So(e.Version, convey.ShouldEqual, int64(i+1))
			}
		})

		convey.Convey("Topics are isolated by division and resource", func() {
			b.Publish(event("d2", model.ResourceMatch, 1))
			b.Publish(event("d1", model.ResourceScoresheet, 1))

			convey.So(collect(sub), convey.ShouldBeEmpty)
		})

		convey.Convey("Unsubscribe closes the stream", func() {
			b.Unsubscribe(sub)
			convey.So(b.Subscribers(), convey.ShouldEqual, 0)

			_, ok := <-sub.Events()
			convey.So(ok, convey.ShouldBeFalse)

			convey.Convey("Without signalling a resync", func() {
				select {
				case <-sub.Resync():
					convey.So("resync closed", convey.ShouldBeEmpty)
				default:
				}
			})
		})
	})
}

func TestBrokerReplay(t *testing.T) {
	convey.Convey("Given a topic with published history", t, func() {
		ctx := context.Background()
		b := NewInMemoryBroker(WithReplaySize(4))
		defer func() { _ = b.Close() }()

		for v := int64(1); v <= 6; v++ {
			b.Publish(event("d1", model.ResourceMatch, v))
		}

		convey.Convey("A subscriber inside the ring window gets the backlog", func() {
			sub, err := b.Subscribe(ctx, "d1", model.ResourceMatch, 4)
			convey.So(err, convey.ShouldBeNil)

			events := collect(sub)
			convey.So(events, convey.ShouldHaveLength, 2)
			convey.So(events[0].Version, convey.ShouldEqual, 5)
			convey.So(events[1].Version, convey.ShouldEqual, 6)
		})

		convey.Convey("A subscriber already current gets no backlog", func() {
			sub, err := b.Subscribe(ctx, "d1", model.ResourceMatch, 6)
			convey.So(err, convey.ShouldBeNil)
			convey.So(collect(sub), convey.ShouldBeEmpty)
		})

		convey.Convey("A subscriber beyond the ring must resync", func() {
			// Versions 1 and 2 were evicted by the size-4 ring.
			_, err := b.Subscribe(ctx, "d1", model.ResourceMatch, 1)
			convey.So(err, convey.ShouldWrap, model.ErrResyncRequired)
		})

		convey.Convey("The edge of the window still replays", func() {
			sub, err := b.Subscribe(ctx, "d1", model.ResourceMatch, 2)
			convey.So(err, convey.ShouldBeNil)

			events := collect(sub)
			convey.So(events, convey.ShouldHaveLength, 4)
			convey.So(events[0].Version, convey.ShouldEqual, 3)
		})

		convey.Convey("A fresh subscriber with lastSeen zero skips replay", func() {
			sub, err := b.Subscribe(ctx, "d1", model.ResourceMatch, 0)
			convey.So(err, convey.ShouldBeNil)
			convey.So(collect(sub), convey.ShouldBeEmpty)
		})
	})
}

func TestBrokerSlowSubscriber(t *testing.T) {
	convey.Convey("Given a subscriber with a tiny buffer", t, func() {
		ctx := context.Background()
		b := NewInMemoryBroker(WithBufferSize(2))
		defer func() { _ = b.Close() }()

		slow, err := b.Subscribe(ctx, "d1", model.ResourceMatch, 0)
		convey.So(err, convey.ShouldBeNil)
		healthy, err := b.Subscribe(ctx, "d1", model.ResourceMatch, 0)
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When publishing past the buffer without consuming", func() {
			for v := int64(1); v <= 3; v++ {
				b.Publish(event("d1", model.ResourceMatch, v))
				collect(healthy)
			}

			convey.Convey("Then the slow subscriber is cut with a resync signal", func() {
				select {
				case <-slow.Resync():
				case <-time.After(time.Second):
					convey.So("no resync signal", convey.ShouldBeEmpty)
				}
				convey.So(b.Subscribers(), convey.ShouldEqual, 1)
			})

			convey.Convey("And the healthy subscriber keeps receiving", func() {
				b.Publish(event("d1", model.ResourceMatch, 4))
				events := collect(healthy)
				convey.So(events[len(events)-1].Version, convey.ShouldEqual, 4)
			})
		})
	})
}

func TestBrokerClose(t *testing.T) {
	convey.Convey("Given a broker with subscribers", t, func() {
		ctx := context.Background()
		b := NewInMemoryBroker()
		sub, err := b.Subscribe(ctx, "d1", model.ResourceMatch, 0)
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Close shuts every stream down", func() {
			convey.So(b.Close(), convey.ShouldBeNil)

			_, ok := <-sub.Events()
			convey.So(ok, convey.ShouldBeFalse)

			convey.Convey("And later operations are inert", func() {
				b.Publish(event("d1", model.ResourceMatch, 1))
				_, err := b.Subscribe(ctx, "d1", model.ResourceMatch, 0)
				convey.So(err, convey.ShouldWrap, ErrClosed)
				convey.So(b.Close(), convey.ShouldBeNil)
			})
		})
	})
}

func TestRing(t *testing.T) {
	convey.Convey("Given a ring of size three", t, func() {
		r := newRing(3)

		convey.Convey("An empty ring covers nothing", func() {
			_, ok := r.after(0)
			convey.So(ok, convey.ShouldBeFalse)
		})

		convey.Convey("When six consecutive events pass through", func() {
			for v := int64(1); v <= 6; v++ {
				r.push(event("d1", model.ResourceMatch, v))
			}

			convey.Convey("Only the last three remain", func() {
				convey.So(r.buf, convey.ShouldHaveLength, 3)
				convey.So(r.buf[0].Version, convey.ShouldEqual, 4)
			})

			convey.Convey("A caller at the latest version needs nothing", func() {
				events, ok := r.after(6)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(events, convey.ShouldBeEmpty)
			})

			convey.Convey("A caller ahead of the ring needs nothing either", func() {
				events, ok := r.after(9)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(events, convey.ShouldBeEmpty)
			})

			convey.Convey("A caller inside the window gets the tail", func() {
				events, ok := r.after(4)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(events, convey.ShouldHaveLength, 2)
				convey.So(events[0].Version, convey.ShouldEqual, 5)
			})

			convey.Convey("The oldest buffered event is still bridgeable", func() {
				events, ok := r.after(3)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(events, convey.ShouldHaveLength, 3)
			})

			convey.Convey("One version earlier is not", func() {
				_, ok := r.after(2)
				convey.So(ok, convey.ShouldBeFalse)
			})
		})
	})
}
