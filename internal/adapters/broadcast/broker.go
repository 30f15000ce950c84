// Package broadcast fans versioned events out to subscribers.
//
// Each (division, resource type) pair is an independent ordered channel with
// its own small replay ring. Slow consumers never block publishers: a full
// subscriber buffer drops the subscriber and signals it to resync.
package broadcast

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/refbox/internal/domain/model"
	"github.com/okian/refbox/pkg/logger"
	"github.com/okian/refbox/pkg/metrics"
)

// Default broker configuration constants.
const (
	defaultBufferSize = 256
	defaultReplaySize = 128
)

// Event represents the payload type flowing through the broker.
type Event = model.VersionedEvent

// Broker provides publish and subscribe semantics over versioned events.
type Broker interface {
	// Publish delivers an event to every subscriber of its
	// (division, resource) topic, in version order.
	Publish(e Event)

	// Subscribe registers a consumer on a topic. A non-zero lastSeen asks
	// for replay of every buffered event after it; when the replay ring no
	// longer covers the gap, Subscribe fails with model.ErrResyncRequired
	// and the caller must fetch a snapshot first.
	Subscribe(ctx context.Context, division string, resource model.ResourceType, lastSeen int64) (*Subscription, error)

	// Unsubscribe removes a subscriber and closes its channels.
	Unsubscribe(sub *Subscription)

	// Subscribers returns the current number of active subscriptions.
	Subscribers() int

	// Close shuts the broker down, closing every subscription.
	Close() error
}

// Subscription is one consumer's view of a topic.
type Subscription struct {
	division string
	resource model.ResourceType

	events chan Event
	resync chan struct{}
	once   sync.Once
}

// Events returns the ordered event stream. It is closed when the
// subscription is dropped or the broker shuts down.
func (s *Subscription) Events() <-chan Event { return s.events }

// Resync is closed when the subscriber fell behind and its stream was cut.
// The consumer must fetch a fresh snapshot and subscribe again.
func (s *Subscription) Resync() <-chan struct{} { return s.resync }

func (s *Subscription) drop(resync bool) {
	s.once.Do(func() {
		if resync {
			close(s.resync)
		}
		close(s.events)
	})
}

type topicKey struct {
	division string
	resource model.ResourceType
}

type topic struct {
	subs   map[*Subscription]struct{}
	replay *ring
	latest int64
}

// InMemoryBroker implements Broker with per-topic subscriber sets.
type InMemoryBroker struct {
	mu         sync.Mutex
	topics     map[topicKey]*topic
	bufferSize int
	replaySize int
	closed     bool
	logger     logger.Logger
}

// NewInMemoryBroker creates a broker with configuration options.
func NewInMemoryBroker(opts ...Option) *InMemoryBroker {
	b := &InMemoryBroker{
		topics:     make(map[topicKey]*topic),
		bufferSize: defaultBufferSize,
		replaySize: defaultReplaySize,
		logger:     logger.Get().Named("broadcast"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers an event to the subscribers of its topic.
func (b *InMemoryBroker) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	t := b.topic(topicKey{division: e.DivisionID, resource: e.Resource})
	t.replay.push(e)
	t.latest = e.Version
	metrics.RecordEventPublished(string(e.Resource))

	for sub := range t.subs {
		select {
		case sub.events <- e:
		default:
			// Buffer full. Cut the subscriber rather than block or
			// reorder; it will snapshot and come back.
			delete(t.subs, sub)
			sub.drop(true)
			metrics.RecordSubscriberDropped(string(e.Resource))
			b.logger.Warn(context.Background(), "subscriber dropped, resync signalled",
				logger.String("division", e.DivisionID),
				logger.String("resource", string(e.Resource)),
			)
		}
	}
	metrics.UpdateSubscriberCount(b.countLocked())
}

// Subscribe registers a consumer on a topic.
func (b *InMemoryBroker) Subscribe(_ context.Context, division string, resource model.ResourceType, lastSeen int64) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	t := b.topic(topicKey{division: division, resource: resource})

	var backlog []Event
	if lastSeen > 0 && lastSeen < t.latest {
		var ok bool
		backlog, ok = t.replay.after(lastSeen)
		if !ok {
			metrics.RecordReplayMiss(string(resource))
			return nil, fmt.Errorf("replay from version %d: %w", lastSeen, model.ErrResyncRequired)
		}
		metrics.RecordReplayServed(string(resource))
	}

	sub := &Subscription{
		division: division,
		resource: resource,
		events:   make(chan Event, b.bufferSize+len(backlog)),
		resync:   make(chan struct{}),
	}
	for _, e := range backlog {
		sub.events <- e
	}
	t.subs[sub] = struct{}{}
	metrics.UpdateSubscriberCount(b.countLocked())
	return sub, nil
}

// Unsubscribe removes a subscriber and closes its channels.
func (b *InMemoryBroker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[topicKey{division: sub.division, resource: sub.resource}]; ok {
		delete(t.subs, sub)
	}
	sub.drop(false)
	metrics.UpdateSubscriberCount(b.countLocked())
}

// Subscribers returns the current number of active subscriptions.
func (b *InMemoryBroker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.countLocked()
}

// Close shuts the broker down.
func (b *InMemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, t := range b.topics {
		for sub := range t.subs {
			sub.drop(false)
		}
		t.subs = make(map[*Subscription]struct{})
	}
	return nil
}

// topic returns the topic for key, creating it on first use. Callers hold
// the broker lock.
func (b *InMemoryBroker) topic(key topicKey) *topic {
	t, ok := b.topics[key]
	if !ok {
		t = &topic{
			subs:   make(map[*Subscription]struct{}),
			replay: newRing(b.replaySize),
		}
		b.topics[key] = t
	}
	return t
}

func (b *InMemoryBroker) countLocked() int {
	n := 0
	for _, t := range b.topics {
		n += len(t.subs)
	}
	return n
}
