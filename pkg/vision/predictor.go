// Package vision defines the domain types shared between the orchestration
// layer, the inference engines, and the frame producers: model descriptors,
// the predictor capability set, and the sentinel error taxonomy.
package vision

import (
	"context"
	"fmt"
	"image"
)

// Task selects the kind of inference a predictor performs.
type Task string

const (
	// TaskDetect runs object detection and produces bounded results.
	TaskDetect Task = "detect"
	// TaskClassify runs whole-image classification.
	TaskClassify Task = "classify"
)

// Valid reports whether the task is one of the recognized variants.
func (t Task) Valid() bool {
	return t == TaskDetect || t == TaskClassify
}

// SourceType identifies where a model asset is loaded from.
type SourceType string

const (
	// SourceLocal loads a model asset from a local filesystem path.
	SourceLocal SourceType = "local"
	// SourceRemote is reserved for registry-hosted models. Descriptors
	// carrying it parse but cannot be loaded yet.
	SourceRemote SourceType = "remote"
)

// Source describes the location of a model asset.
type Source struct {
	Type SourceType `json:"type"`
	Path string     `json:"path,omitempty"`
}

// ModelDescriptor describes a model to load: where its asset lives and which
// task it serves.
type ModelDescriptor struct {
	Source Source `json:"source"`
	Task   Task   `json:"task"`
}

// Validate performs structural validation of the descriptor. All failures
// wrap ErrInvalidModel; the current predictor is never touched on a
// validation failure.
func (d ModelDescriptor) Validate() error {
	if !d.Task.Valid() {
		return fmt.Errorf("%w: unrecognized task %q", ErrInvalidModel, d.Task)
	}
	switch d.Source.Type {
	case SourceLocal:
		if d.Source.Path == "" {
			return fmt.Errorf("%w: local source requires a model path", ErrInvalidModel)
		}
	case SourceRemote:
		return fmt.Errorf("%w: remote model sources are not yet supported", ErrInvalidModel)
	default:
		return fmt.Errorf("%w: unrecognized source type %q", ErrInvalidModel, d.Source.Type)
	}
	return nil
}

// Box is a detection bounding box in normalized [0,1] image coordinates.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Result is a single inference result. Detection results carry a bounding
// box; classification results do not.
type Result struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        *Box    `json:"box,omitempty"`
}

// Predictor is an opaque inference engine instance bound to a task. A
// predictor serves both per-frame and still-image inference through Predict.
// Predict must be safe for serial invocation from the frame-producer
// goroutine concurrent with threshold mutation on a Detector.
type Predictor interface {
	// Task returns the task the predictor was constructed for.
	Task() Task
	// Predict runs inference on a single image.
	Predict(ctx context.Context, img image.Image) ([]Result, error)
	// Close releases engine resources. It is called when the predictor is
	// replaced by a subsequent load.
	Close() error
}

// Detector is the detection capability: a Predictor with tunable thresholds.
// Threshold setters must be safe to call concurrently with Predict.
type Detector interface {
	Predictor
	SetConfidence(confidence float64)
	SetIoU(iou float64)
	SetMaxItems(maxItems int)
}

// AsDetector returns the detector capability of p, if it has one.
// Classifiers (and a nil predictor) report false.
func AsDetector(p Predictor) (Detector, bool) {
	d, ok := p.(Detector)
	return d, ok
}

// Engine constructs predictors from model descriptors. The engine is the
// opaque collaborator hiding the actual inference implementation.
type Engine interface {
	// Name returns the engine name, usable in logs.
	Name() string
	// NewPredictor constructs a predictor for a structurally valid
	// descriptor. Construction may fail for engine-internal reasons (bad
	// weights, unsupported format).
	NewPredictor(ctx context.Context, desc ModelDescriptor) (Predictor, error)
}
