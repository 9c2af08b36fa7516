package orchestration

import (
	"sync"
)

// OutputChannel is a single-subscriber push stream carrying one category of
// per-frame output. Attaching a new subscriber supersedes the previous one;
// pushing without a subscriber is a silent no-op. Pushes never block: if the
// subscriber's buffer is full the value is dropped rather than queued, so a
// slow consumer can never stall the frame producer.
type OutputChannel[T any] struct {
	name   string
	onDrop func()

	mu         sync.Mutex
	subscriber chan<- T
}

// NewOutputChannel creates a named output channel. onDrop, if non-nil, is
// invoked once per dropped push.
func NewOutputChannel[T any](name string, onDrop func()) *OutputChannel[T] {
	return &OutputChannel[T]{name: name, onDrop: onDrop}
}

// Name returns the channel's stream name.
func (c *OutputChannel[T]) Name() string {
	return c.name
}

// Attach installs ch as the subscriber, replacing any previous one.
func (c *OutputChannel[T]) Attach(ch chan<- T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriber = ch
}

// Detach removes ch if it is the current subscriber. A subscriber that has
// been superseded by a later Attach is left untouched, so a departing
// consumer can always call Detach safely.
func (c *OutputChannel[T]) Detach(ch chan<- T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscriber == ch {
		c.subscriber = nil
	}
}

// Push delivers v to the subscriber without blocking. No subscriber means
// the value is discarded silently; a full subscriber buffer counts as a
// drop.
func (c *OutputChannel[T]) Push(v T) {
	c.mu.Lock()
	subscriber := c.subscriber
	c.mu.Unlock()
	if subscriber == nil {
		return
	}
	select {
	case subscriber <- v:
	default:
		if c.onDrop != nil {
			c.onDrop()
		}
	}
}
