package schedule

import (
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/refbox/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestScheduler(t *testing.T) {
	convey.Convey("Given a scheduler", t, func() {
		s := New()
		defer s.Stop()

		convey.Convey("An armed timer fires once", func() {
			var fired atomic.Int32
			done := make(chan struct{})
			s.Schedule("cue", 10*time.Millisecond, func() {
				fired.Add(1)
				close(done)
			})
			convey.So(s.Pending(), convey.ShouldEqual, 1)

			<-done
			time.Sleep(20 * time.Millisecond)
			convey.So(fired.Load(), convey.ShouldEqual, 1)
			convey.So(s.Pending(), convey.ShouldEqual, 0)
		})

		convey.Convey("Cancel prevents the callback", func() {
			var fired atomic.Int32
			s.Schedule("cue", 20*time.Millisecond, func() { fired.Add(1) })
			s.Cancel("cue")

			time.Sleep(50 * time.Millisecond)
			convey.So(fired.Load(), convey.ShouldEqual, 0)
			convey.So(s.Pending(), convey.ShouldEqual, 0)
		})

		convey.Convey("Cancelling an unknown key is a no-op", func() {
			convey.So(func() { s.Cancel("ghost") }, convey.ShouldNotPanic)
		})

		convey.Convey("Rescheduling a key replaces the pending timer", func() {
			var first, second atomic.Int32
			done := make(chan struct{})
			s.Schedule("cue", time.Hour, func() { first.Add(1) })
			s.Schedule("cue", 10*time.Millisecond, func() {
				second.Add(1)
				close(done)
			})
			convey.So(s.Pending(), convey.ShouldEqual, 1)

			<-done
			convey.So(first.Load(), convey.ShouldEqual, 0)
			convey.So(second.Load(), convey.ShouldEqual, 1)
		})

		convey.Convey("Independent keys fire independently", func() {
			var fired atomic.Int32
			done := make(chan struct{})
			s.Schedule("endgame", 10*time.Millisecond, func() { fired.Add(1) })
			s.Schedule("complete", 15*time.Millisecond, func() {
				fired.Add(1)
				close(done)
			})
			convey.So(s.Pending(), convey.ShouldEqual, 2)

			<-done
			convey.So(fired.Load(), convey.ShouldEqual, 2)
		})
	})

	convey.Convey("Given a stopped scheduler", t, func() {
		s := New()
		var fired atomic.Int32
		s.Schedule("cue", 10*time.Millisecond, func() { fired.Add(1) })
		s.Stop()

		convey.Convey("Pending timers never fire", func() {
			time.Sleep(30 * time.Millisecond)
			convey.So(fired.Load(), convey.ShouldEqual, 0)
			convey.So(s.Pending(), convey.ShouldEqual, 0)
		})

		convey.Convey("New scheduling is rejected silently", func() {
			s.Schedule("late", time.Millisecond, func() { fired.Add(1) })
			convey.So(s.Pending(), convey.ShouldEqual, 0)

			time.Sleep(10 * time.Millisecond)
			convey.So(fired.Load(), convey.ShouldEqual, 0)
		})
	})
}
