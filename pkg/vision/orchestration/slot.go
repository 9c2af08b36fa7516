package orchestration

import (
	"sync/atomic"

	"github.com/yangga/vision-runner/pkg/vision"
)

// predictorBox wraps the predictor interface value so that heterogeneous
// implementations can be swapped through a single typed atomic pointer.
type predictorBox struct {
	predictor vision.Predictor
}

// PredictorSlot holds at most one active predictor. Replacement swaps a
// boxed reference atomically: a reader on the frame-producer goroutine
// always observes either the previous or the new predictor, never a torn
// intermediate state. The zero value is an empty slot.
type PredictorSlot struct {
	current atomic.Pointer[predictorBox]
}

// Load returns the current predictor, or nil before the first successful
// load.
func (s *PredictorSlot) Load() vision.Predictor {
	if box := s.current.Load(); box != nil {
		return box.predictor
	}
	return nil
}

// Swap installs p as the current predictor and returns the replaced one, or
// nil if the slot was empty.
func (s *PredictorSlot) Swap(p vision.Predictor) vision.Predictor {
	if old := s.current.Swap(&predictorBox{predictor: p}); old != nil {
		return old.predictor
	}
	return nil
}
