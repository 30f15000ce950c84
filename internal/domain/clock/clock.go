// Package clock provides the per-resource monotonic version counters that
// stamp every accepted mutation.
package clock

import (
	"sync"

	"github.com/okian/refbox/internal/domain/model"
)

type key struct {
	division string
	resource model.ResourceType
}

// Clock hands out monotonically increasing versions per
// (division, resource type). Counters survive restarts by being seeded from
// the store's persisted entity versions.
type Clock struct {
	mu       sync.Mutex
	counters map[key]int64
}

// New creates an empty clock.
func New() *Clock {
	return &Clock{counters: make(map[key]int64)}
}

// Seed raises a counter to at least v. Used on boot with the highest
// persisted entity version per resource type.
func (c *Clock) Seed(division string, resource model.ResourceType, v int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{division, resource}
	if v > c.counters[k] {
		c.counters[k] = v
	}
}

// Next increments and returns the counter. Each accepted mutation calls this
// exactly once, inside the controller's critical section.
func (c *Clock) Next(division string, resource model.ResourceType) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{division, resource}
	c.counters[k]++
	return c.counters[k]
}

// Current returns the last issued version without advancing.
func (c *Clock) Current(division string, resource model.ResourceType) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[key{division, resource}]
}
