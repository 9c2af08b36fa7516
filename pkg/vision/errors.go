package vision

import (
	"errors"
)

// ErrInvalidModel indicates a structurally invalid model descriptor. If
// returned in conjunction with an HTTP request, it should be paired with a
// 400 response status.
var ErrInvalidModel = errors.New("invalid model descriptor")

// ErrPredictor indicates that the inference engine failed to construct or
// run a predictor.
var ErrPredictor = errors.New("predictor failure")

// ErrImageDecode indicates that a still-image input could not be read or
// decoded.
var ErrImageDecode = errors.New("unable to decode image")

// ErrNoPredictorLoaded indicates that inference was requested before any
// model was successfully loaded. If returned in conjunction with an HTTP
// request, it should be paired with a 412 response status.
var ErrNoPredictorLoaded = errors.New("no predictor loaded")

// ErrCaptureTimeout indicates that a single-shot frame capture deadline
// elapsed before the producer delivered a frame.
var ErrCaptureTimeout = errors.New("frame capture timed out")

// ErrNoImage indicates that the capture gate was released without a usable
// image payload.
var ErrNoImage = errors.New("no image captured")

// ErrCaptureBusy indicates that a frame capture request arrived while a
// previous one was still pending. If returned in conjunction with an HTTP
// request, it should be paired with a 409 response status.
var ErrCaptureBusy = errors.New("frame capture already in progress")
