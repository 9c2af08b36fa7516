package orchestration

import (
	"context"
	"sync"
	"time"

	"github.com/yangga/vision-runner/pkg/vision"
)

// captureResult carries one delivery through the gate.
type captureResult struct {
	data []byte
	err  error
}

// FrameCaptureGate implements the single-shot capture protocol: a waiting
// request arms the gate, the frame producer delivers the next frame it
// processes while the gate is armed, and exactly one of {frame, timeout}
// resolves the wait. At most one request may be outstanding; a concurrent
// second request is rejected with ErrCaptureBusy.
//
// Every request gets a fresh capacity-1 delivery channel, so a frame
// delivered after a timeout lands on an abandoned channel and can never
// satisfy a later request. The zero value is a disarmed gate.
type FrameCaptureGate struct {
	mu       sync.Mutex
	armed    bool
	delivery chan captureResult
}

// Armed reports whether a capture request is currently waiting for a frame.
func (g *FrameCaptureGate) Armed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.armed
}

// Deliver hands data (or a delivery-side error) to the pending capture
// request, disarming the gate. It returns true if a waiter was released and
// false if the gate was not armed. Delivering an empty payload releases the
// waiter with ErrNoImage.
func (g *FrameCaptureGate) Deliver(data []byte, err error) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.armed {
		return false
	}
	g.armed = false
	if err == nil && len(data) == 0 {
		err = vision.ErrNoImage
	}
	// The delivery channel has capacity 1 and only one Deliver can win per
	// arming, so this send cannot block while the lock is held.
	g.delivery <- captureResult{data: data, err: err}
	return true
}

// Capture arms the gate and waits for the producer to deliver a frame,
// bounded by timeout and ctx. On timeout the gate is disarmed before
// returning ErrCaptureTimeout, so subsequent requests start clean.
func (g *FrameCaptureGate) Capture(ctx context.Context, timeout time.Duration) ([]byte, error) {
	g.mu.Lock()
	if g.armed {
		g.mu.Unlock()
		return nil, vision.ErrCaptureBusy
	}
	delivery := make(chan captureResult, 1)
	g.delivery = delivery
	g.armed = true
	g.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-delivery:
		return result.data, result.err
	case <-timer.C:
		if g.abandon(delivery) {
			return nil, vision.ErrCaptureTimeout
		}
	case <-ctx.Done():
		if g.abandon(delivery) {
			return nil, ctx.Err()
		}
	}

	// Delivery won the race with the timer or cancellation; the result is
	// already buffered.
	result := <-delivery
	return result.data, result.err
}

// abandon disarms the gate if the given request is still the pending one. It
// returns false if a delivery already completed the request.
func (g *FrameCaptureGate) abandon(delivery chan captureResult) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.armed && g.delivery == delivery {
		g.armed = false
		g.delivery = nil
		return true
	}
	return false
}
