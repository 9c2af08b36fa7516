package vision

import (
	"math"
	"sync/atomic"
)

// Default detector thresholds applied when a detector is constructed.
const (
	DefaultConfidence = 0.25
	DefaultIoU        = 0.45
	DefaultMaxItems   = 30
)

// Thresholds is an immutable snapshot of detector tuning parameters.
type Thresholds struct {
	Confidence float64
	IoU        float64
	MaxItems   int
}

// DetectorParams stores detector thresholds with atomic access so that a
// setter running on the request context and an inference reading them on the
// frame-producer context never observe a torn value. Engines embed a
// *DetectorParams to satisfy the Detector capability.
type DetectorParams struct {
	confidence atomic.Uint64 // float64 bits
	iou        atomic.Uint64 // float64 bits
	maxItems   atomic.Int64
}

// NewDetectorParams creates parameter storage primed with the default
// thresholds.
func NewDetectorParams() *DetectorParams {
	p := &DetectorParams{}
	p.SetConfidence(DefaultConfidence)
	p.SetIoU(DefaultIoU)
	p.SetMaxItems(DefaultMaxItems)
	return p
}

// SetConfidence stores the confidence threshold.
func (p *DetectorParams) SetConfidence(confidence float64) {
	p.confidence.Store(math.Float64bits(confidence))
}

// SetIoU stores the intersection-over-union threshold.
func (p *DetectorParams) SetIoU(iou float64) {
	p.iou.Store(math.Float64bits(iou))
}

// SetMaxItems stores the maximum result count threshold.
func (p *DetectorParams) SetMaxItems(maxItems int) {
	p.maxItems.Store(int64(maxItems))
}

// Snapshot returns a consistent copy of the thresholds for the duration of a
// single inference call.
func (p *DetectorParams) Snapshot() Thresholds {
	return Thresholds{
		Confidence: math.Float64frombits(p.confidence.Load()),
		IoU:        math.Float64frombits(p.iou.Load()),
		MaxItems:   int(p.maxItems.Load()),
	}
}
