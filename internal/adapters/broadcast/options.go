// Package broadcast fans versioned events out to subscribers.
package broadcast

import "github.com/okian/refbox/pkg/logger"

// Option applies a configuration option to the InMemoryBroker.
type Option func(*InMemoryBroker)

// WithBufferSize sets the per-subscriber channel buffer.
func WithBufferSize(size int) Option {
	return func(b *InMemoryBroker) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}

// WithReplaySize sets the per-topic replay ring depth.
func WithReplaySize(size int) Option {
	return func(b *InMemoryBroker) {
		if size > 0 {
			b.replaySize = size
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(b *InMemoryBroker) {
		if l != nil {
			b.logger = l
		}
	}
}
