package camera

import (
	"context"
	"image"
	"time"
)

// Frame is a single decoded camera frame.
type Frame struct {
	// Image is the decoded frame content.
	Image image.Image
	// Seq is the frame sequence number, monotonically increasing per
	// producer.
	Seq uint64
	// Timestamp is when the frame was produced.
	Timestamp time.Time
}

// Handler is invoked by a producer once per frame, serially, on the
// producer's own goroutine. Handlers must not panic; a slow handler delays
// subsequent frames rather than reordering them.
type Handler func(Frame)

// Producer is a source of camera frames. Implementations deliver frames to
// their handler one at a time for the lifetime of Run.
type Producer interface {
	// Run delivers frames until the context is cancelled or Stop is called.
	// It returns nil on clean shutdown.
	Run(ctx context.Context) error
	// Stop halts frame delivery. It is idempotent and safe to call
	// concurrently with Run.
	Stop()
}
