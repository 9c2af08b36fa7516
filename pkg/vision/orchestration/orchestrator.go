// Package orchestration routes typed requests into model lifecycle
// operations, fans per-frame inference output into three push streams, and
// brokers the single-shot frame capture handoff between the frame-producer
// goroutine and waiting capture requests.
package orchestration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docker/go-units"
	"github.com/yangga/vision-runner/pkg/camera"
	"github.com/yangga/vision-runner/pkg/logging"
	"github.com/yangga/vision-runner/pkg/metrics"
	"github.com/yangga/vision-runner/pkg/taillog"
	"github.com/yangga/vision-runner/pkg/vision"
)

// DefaultCaptureTimeout bounds a capture request that doesn't specify its
// own timeout.
const DefaultCaptureTimeout = 3 * time.Second

// captureJPEGQuality is the encoding quality for captured still frames.
const captureJPEGQuality = 90

// diagnosticsTailSize is how many recent engine failures the status
// endpoint reports.
const diagnosticsTailSize = 32

// Orchestrator coordinates the predictor lifecycle, the per-frame output
// streams, and the frame capture gate. Request-facing methods run on the
// request-handling context; HandleFrame runs serially on the frame
// producer's goroutine.
type Orchestrator struct {
	// log is the associated logger.
	log logging.Logger
	// engine constructs predictors on model loads.
	engine vision.Engine
	// metrics holds the pipeline's Prometheus collectors.
	metrics *metrics.Metrics
	// slot holds the current predictor.
	slot PredictorSlot
	// gate brokers single-shot frame captures.
	gate FrameCaptureGate
	// detections, inferenceTime, and frameRate are the three per-frame
	// output streams.
	detections    *OutputChannel[[]vision.Result]
	inferenceTime *OutputChannel[float64]
	frameRate     *OutputChannel[float64]
	// loadMu serializes model loads so that only one load completes at a
	// time from the caller's perspective.
	loadMu sync.Mutex
	// producerMu guards producer.
	producerMu sync.Mutex
	// producer is the attached frame producer, if any.
	producer camera.Producer
	// lensDirection records the most recently requested lens direction.
	// Lens switching itself is intentionally inert; the producer is an
	// opaque external collaborator.
	lensDirection atomic.Int64
	// lastFrameAt is the previous frame's timestamp, used to derive the
	// frame rate. Only touched on the producer goroutine.
	lastFrameAt time.Time
	// diagnostics retains recent engine failures for the status endpoint.
	diagnostics *taillog.Tail
	// router is the HTTP request router.
	router *http.ServeMux
}

// NewOrchestrator creates an orchestrator driving the given engine. The
// frame producer, if any, is attached separately with SetProducer once its
// handler has been bound to HandleFrame.
func NewOrchestrator(log logging.Logger, engine vision.Engine, m *metrics.Metrics) *Orchestrator {
	o := &Orchestrator{
		log:         log,
		engine:      engine,
		metrics:     m,
		diagnostics: taillog.NewTail(diagnosticsTailSize),
	}
	o.detections = NewOutputChannel[[]vision.Result]("detections", o.streamDropCounter("detections"))
	o.inferenceTime = NewOutputChannel[float64]("inference-time", o.streamDropCounter("inference-time"))
	o.frameRate = NewOutputChannel[float64]("fps", o.streamDropCounter("fps"))
	o.router = http.NewServeMux()
	o.registerRoutes()
	return o
}

func (o *Orchestrator) streamDropCounter(stream string) func() {
	if o.metrics == nil {
		return nil
	}
	counter := o.metrics.StreamDropped.WithLabelValues(stream)
	return counter.Inc
}

// SetProducer attaches the frame producer whose handler delivers frames to
// HandleFrame.
func (o *Orchestrator) SetProducer(p camera.Producer) {
	o.producerMu.Lock()
	defer o.producerMu.Unlock()
	o.producer = p
}

// LoadModel validates the descriptor and constructs a predictor for it,
// atomically replacing the current one on success. Structural validation
// failures return ErrInvalidModel without touching the current predictor;
// engine-side construction failures return ErrPredictor. Loads are
// serialized, and the slot swap never races an in-flight frame inference.
func (o *Orchestrator) LoadModel(ctx context.Context, desc vision.ModelDescriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	info, err := os.Stat(desc.Source.Path)
	if err != nil {
		return fmt.Errorf("%w: model asset unavailable: %v", vision.ErrInvalidModel, err)
	}

	o.loadMu.Lock()
	defer o.loadMu.Unlock()

	predictor, err := o.engine.NewPredictor(ctx, desc)
	if err != nil {
		o.diagnostics.Append(fmt.Sprintf("load %s: %v", desc.Source.Path, err))
		return fmt.Errorf("%w: %v", vision.ErrPredictor, err)
	}

	if previous := o.slot.Swap(predictor); previous != nil {
		if err := previous.Close(); err != nil {
			o.log.Warnf("Error closing replaced predictor: %v", err)
		}
	}
	o.log.Infof(
		"Loaded %s model from %s (%s)",
		desc.Task, desc.Source.Path, units.HumanSize(float64(info.Size())),
	)
	return nil
}

// SetConfidenceThreshold applies the confidence threshold if the current
// predictor is a detector. It is a silent no-op otherwise.
func (o *Orchestrator) SetConfidenceThreshold(confidence float64) {
	if detector, ok := vision.AsDetector(o.slot.Load()); ok {
		detector.SetConfidence(confidence)
	}
}

// SetIoUThreshold applies the IoU threshold if the current predictor is a
// detector. It is a silent no-op otherwise.
func (o *Orchestrator) SetIoUThreshold(iou float64) {
	if detector, ok := vision.AsDetector(o.slot.Load()); ok {
		detector.SetIoU(iou)
	}
}

// SetNumItemsThreshold applies the maximum item count if the current
// predictor is a detector. It is a silent no-op otherwise.
func (o *Orchestrator) SetNumItemsThreshold(numItems int) {
	if detector, ok := vision.AsDetector(o.slot.Load()); ok {
		detector.SetMaxItems(numItems)
	}
}

// SetLensDirection records the requested lens direction. Switching the
// actual lens is not implemented; the value is kept for observability only.
func (o *Orchestrator) SetLensDirection(direction int) {
	o.lensDirection.Store(int64(direction))
	o.log.Debugf("Lens direction %d recorded (lens switching not implemented)", direction)
}

// CloseCamera stops the attached frame producer. It is idempotent and a
// no-op when no producer is attached. An armed capture gate is left to
// resolve via its own timeout.
func (o *Orchestrator) CloseCamera() {
	o.producerMu.Lock()
	producer := o.producer
	o.producerMu.Unlock()
	if producer != nil {
		producer.Stop()
	}
}

// PredictOnImage decodes the image at path and runs still-image inference on
// the current predictor. Decode failures return ErrImageDecode; a missing
// predictor returns ErrNoPredictorLoaded.
func (o *Orchestrator) PredictOnImage(ctx context.Context, path string) ([]vision.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vision.ErrImageDecode, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vision.ErrImageDecode, err)
	}

	predictor := o.slot.Load()
	if predictor == nil {
		return nil, vision.ErrNoPredictorLoaded
	}
	results, err := predictor.Predict(ctx, img)
	if err != nil {
		o.diagnostics.Append(fmt.Sprintf("predict %s: %v", path, err))
		return nil, fmt.Errorf("%w: %v", vision.ErrPredictor, err)
	}
	return results, nil
}

// CaptureFrame arms the capture gate and returns the next producer frame as
// encoded JPEG bytes, bounded by the given timeout (DefaultCaptureTimeout
// when zero or negative).
func (o *Orchestrator) CaptureFrame(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultCaptureTimeout
	}
	data, err := o.gate.Capture(ctx, timeout)
	if o.metrics != nil {
		o.metrics.Captures.WithLabelValues(captureResultLabel(err)).Inc()
	}
	return data, err
}

// HandleFrame is the frame producer's per-frame callback. It runs inference
// when a predictor is loaded and pushes the frame's outputs to the three
// streams in a fixed order, then services the capture gate. Inference
// failures affect only the current frame's outputs and never stall the
// producer.
func (o *Orchestrator) HandleFrame(frame camera.Frame) {
	fps := o.tickFrameRate(frame.Timestamp)

	if predictor := o.slot.Load(); predictor != nil {
		start := time.Now()
		results, err := predictor.Predict(context.Background(), frame.Image)
		if err != nil {
			o.log.Debugf("Inference failed on frame %d: %v", frame.Seq, err)
			o.diagnostics.Append(fmt.Sprintf("frame %d: %v", frame.Seq, err))
			if o.metrics != nil {
				o.metrics.FramesSkipped.WithLabelValues("inference_error").Inc()
			}
		} else {
			elapsed := time.Since(start).Seconds()
			o.detections.Push(results)
			o.inferenceTime.Push(elapsed)
			o.frameRate.Push(fps)
			if o.metrics != nil {
				o.metrics.FramesProcessed.Inc()
				o.metrics.InferenceSeconds.Observe(elapsed)
			}
		}
	} else if o.metrics != nil {
		o.metrics.FramesSkipped.WithLabelValues("no_predictor").Inc()
	}

	if o.gate.Armed() {
		o.gate.Deliver(encodeCaptureFrame(frame))
	}
}

// RecentDiagnostics returns the most recent engine failure lines, oldest
// first.
func (o *Orchestrator) RecentDiagnostics() []string {
	return o.diagnostics.Lines()
}

// tickFrameRate derives the instantaneous frame rate from the interval since
// the previous frame. The first frame reports zero.
func (o *Orchestrator) tickFrameRate(at time.Time) float64 {
	var fps float64
	if !o.lastFrameAt.IsZero() {
		if interval := at.Sub(o.lastFrameAt).Seconds(); interval > 0 {
			fps = 1 / interval
		}
	}
	o.lastFrameAt = at
	return fps
}

// encodeCaptureFrame converts a frame to the still-image capture payload.
func encodeCaptureFrame(frame camera.Frame) ([]byte, error) {
	if frame.Image == nil {
		return nil, vision.ErrNoImage
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame.Image, &jpeg.Options{Quality: captureJPEGQuality}); err != nil {
		return nil, fmt.Errorf("%w: %v", vision.ErrNoImage, err)
	}
	return buf.Bytes(), nil
}

func captureResultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, vision.ErrCaptureTimeout):
		return "timeout"
	case errors.Is(err, vision.ErrCaptureBusy):
		return "busy"
	case errors.Is(err, vision.ErrNoImage):
		return "no_image"
	default:
		return "error"
	}
}
