package orchestration

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/yangga/vision-runner/pkg/vision"
)

// apiError is the structured failure body returned for every request-level
// error: a machine-readable code plus a human-readable message.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Typed request payloads, decoded and validated at the transport boundary
// before any operation runs. Optional-looking fields use pointers so that a
// missing argument is distinguishable from a zero value.
type (
	confidenceRequest struct {
		Confidence *float64 `json:"confidence"`
	}
	iouRequest struct {
		IoU *float64 `json:"iou"`
	}
	numItemsRequest struct {
		NumItems *int `json:"numItems"`
	}
	lensRequest struct {
		Direction *int `json:"direction"`
	}
	imageRequest struct {
		ImagePath string `json:"imagePath"`
	}
	captureRequest struct {
		TimeoutSec int `json:"timeoutSec"`
	}
)

// statusResponse describes the orchestrator's current state.
type statusResponse struct {
	Engine        string   `json:"engine"`
	Predictor     string   `json:"predictor"`
	CaptureArmed  bool     `json:"captureArmed"`
	LensDirection int      `json:"lensDirection"`
	RecentErrors  []string `json:"recentErrors,omitempty"`
}

// GetRoutes returns the route prefixes that should be directed at the
// orchestrator.
func (o *Orchestrator) GetRoutes() []string {
	return []string{"/v1/"}
}

// ServeHTTP implements net/http.Handler.ServeHTTP.
func (o *Orchestrator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.router.ServeHTTP(w, r)
}

func (o *Orchestrator) registerRoutes() {
	o.router.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	o.router.HandleFunc("POST /v1/models/load", o.handleLoadModel)
	o.router.HandleFunc("POST /v1/settings/confidence", o.handleSetConfidence)
	o.router.HandleFunc("POST /v1/settings/iou", o.handleSetIoU)
	o.router.HandleFunc("POST /v1/settings/max-items", o.handleSetNumItems)
	o.router.HandleFunc("POST /v1/settings/lens", o.handleSetLens)
	o.router.HandleFunc("POST /v1/camera/close", o.handleCloseCamera)
	o.router.HandleFunc("POST /v1/camera/capture", o.handleCapture)
	o.router.HandleFunc("POST /v1/images/detect", o.handlePredictImage)
	o.router.HandleFunc("POST /v1/images/classify", o.handlePredictImage)
	o.router.HandleFunc("GET /v1/streams/detections", streamHandler(o.detections))
	o.router.HandleFunc("GET /v1/streams/inference-time", streamHandler(o.inferenceTime))
	o.router.HandleFunc("GET /v1/streams/fps", streamHandler(o.frameRate))
	o.router.HandleFunc("GET /v1/status", o.handleStatus)
}

// handleLoadModel handles POST /v1/models/load requests.
func (o *Orchestrator) handleLoadModel(w http.ResponseWriter, r *http.Request) {
	var desc vision.ModelDescriptor
	if err := json.NewDecoder(r.Body).Decode(&desc); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", vision.ErrInvalidModel))
		return
	}
	if err := o.LoadModel(r.Context(), desc); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleSetConfidence handles POST /v1/settings/confidence requests.
func (o *Orchestrator) handleSetConfidence(w http.ResponseWriter, r *http.Request) {
	var request confidenceRequest
	if !decodeRequired(w, r, &request, func() bool { return request.Confidence != nil }, "confidence") {
		return
	}
	o.SetConfidenceThreshold(*request.Confidence)
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleSetIoU handles POST /v1/settings/iou requests.
func (o *Orchestrator) handleSetIoU(w http.ResponseWriter, r *http.Request) {
	var request iouRequest
	if !decodeRequired(w, r, &request, func() bool { return request.IoU != nil }, "iou") {
		return
	}
	o.SetIoUThreshold(*request.IoU)
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleSetNumItems handles POST /v1/settings/max-items requests.
func (o *Orchestrator) handleSetNumItems(w http.ResponseWriter, r *http.Request) {
	var request numItemsRequest
	if !decodeRequired(w, r, &request, func() bool { return request.NumItems != nil }, "numItems") {
		return
	}
	o.SetNumItemsThreshold(*request.NumItems)
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleSetLens handles POST /v1/settings/lens requests. The operation is
// acknowledged but intentionally inert.
func (o *Orchestrator) handleSetLens(w http.ResponseWriter, r *http.Request) {
	var request lensRequest
	if !decodeRequired(w, r, &request, func() bool { return request.Direction != nil }, "direction") {
		return
	}
	o.SetLensDirection(*request.Direction)
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleCloseCamera handles POST /v1/camera/close requests.
func (o *Orchestrator) handleCloseCamera(w http.ResponseWriter, _ *http.Request) {
	o.CloseCamera()
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleCapture handles POST /v1/camera/capture requests. The body is
// optional; an absent or empty body uses the default timeout.
func (o *Orchestrator) handleCapture(w http.ResponseWriter, r *http.Request) {
	var request captureRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid request body")
		return
	}

	captureID := uuid.NewString()
	o.log.Debugf("Capture %s requested (timeout %ds)", captureID, request.TimeoutSec)
	data, err := o.CaptureFrame(r.Context(), time.Duration(request.TimeoutSec)*time.Second)
	if err != nil {
		o.log.Debugf("Capture %s failed: %v", captureID, err)
		writeError(w, err)
		return
	}
	o.log.Debugf("Capture %s delivered %d bytes", captureID, len(data))
	w.Header().Set("Content-Type", "image/jpeg")
	if _, err := w.Write(data); err != nil {
		o.log.Warnln("Error while writing capture response:", err)
	}
}

// handlePredictImage handles POST /v1/images/detect and
// POST /v1/images/classify requests.
func (o *Orchestrator) handlePredictImage(w http.ResponseWriter, r *http.Request) {
	var request imageRequest
	if !decodeRequired(w, r, &request, func() bool { return request.ImagePath != "" }, "imagePath") {
		return
	}
	results, err := o.PredictOnImage(r.Context(), request.ImagePath)
	if err != nil {
		writeError(w, err)
		return
	}
	if results == nil {
		results = []vision.Result{}
	}
	writeJSON(w, map[string][]vision.Result{"results": results})
}

// handleStatus handles GET /v1/status requests.
func (o *Orchestrator) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := statusResponse{
		Engine:        o.engine.Name(),
		Predictor:     "none",
		CaptureArmed:  o.gate.Armed(),
		LensDirection: int(o.lensDirection.Load()),
		RecentErrors:  o.RecentDiagnostics(),
	}
	if predictor := o.slot.Load(); predictor != nil {
		status.Predictor = string(predictor.Task())
	}
	writeJSON(w, status)
}

// streamHandler serves an output channel as a server-sent event stream. The
// subscriber detaches when the client disconnects.
func streamHandler[T any](channel *OutputChannel[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		subscriber := make(chan T, 16)
		channel.Attach(subscriber)
		defer channel.Detach(subscriber)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for {
			select {
			case v := <-subscriber:
				data, err := json.Marshal(v)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	}
}

// decodeRequired decodes the request body into v and checks that the
// required argument is present, writing a structured 400 response otherwise.
func decodeRequired(w http.ResponseWriter, r *http.Request, v any, present func() bool, field string) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid request body")
		return false
	}
	if !present() {
		writeBadRequest(w, fmt.Sprintf("missing required argument %q", field))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeErrorBody(w, http.StatusBadRequest, "bad_request", message)
}

// writeError maps a sentinel error from the vision error taxonomy to its
// HTTP status and machine-readable code.
func writeError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, vision.ErrInvalidModel):
		status, code = http.StatusBadRequest, "invalid_model"
	case errors.Is(err, vision.ErrImageDecode):
		status, code = http.StatusBadRequest, "decode_error"
	case errors.Is(err, vision.ErrNoPredictorLoaded):
		status, code = http.StatusPreconditionFailed, "no_predictor_loaded"
	case errors.Is(err, vision.ErrCaptureTimeout):
		status, code = http.StatusRequestTimeout, "timeout"
	case errors.Is(err, vision.ErrCaptureBusy):
		status, code = http.StatusConflict, "busy"
	case errors.Is(err, vision.ErrNoImage):
		status, code = http.StatusInternalServerError, "no_image"
	case errors.Is(err, vision.ErrPredictor):
		status, code = http.StatusInternalServerError, "predictor_error"
	}
	writeErrorBody(w, status, code, err.Error())
}

func writeErrorBody(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{Code: code, Message: message})
}
