// Package schedule runs keyed one-shot timers for match wall-clock cues.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/okian/refbox/pkg/logger"
)

// Scheduler arms callbacks keyed by name. Scheduling an existing key
// replaces its pending timer; Cancel guarantees the callback will not run
// afterwards.
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]*entry
	closed bool
	logger logger.Logger
}

type entry struct {
	timer *time.Timer
}

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		timers: make(map[string]*entry),
		logger: logger.Get().Named("schedule"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule arms fn to run after d. The callback runs on its own goroutine.
func (s *Scheduler) Schedule(key string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if old, ok := s.timers[key]; ok {
		old.timer.Stop()
	}

	e := &entry{}
	e.timer = time.AfterFunc(d, func() {
		// Run only if this entry is still the registered one; a Cancel or
		// reschedule that raced the firing wins.
		s.mu.Lock()
		current, ok := s.timers[key]
		if ok && current == e {
			delete(s.timers, key)
		}
		s.mu.Unlock()
		if ok && current == e {
			fn()
		}
	})
	s.timers[key] = e
	s.logger.Debug(context.Background(), "timer armed",
		logger.String("key", key),
		logger.Any("after", d.String()),
	)
}

// Cancel disarms a pending timer. Unknown keys are a no-op.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.timers[key]; ok {
		e.timer.Stop()
		delete(s.timers, key)
	}
}

// Pending returns the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop disarms every timer and rejects further scheduling.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for key, e := range s.timers {
		e.timer.Stop()
		delete(s.timers, key)
	}
}
