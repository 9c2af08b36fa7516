// Package remote implements a vision.Engine backed by an external inference
// server speaking plain HTTP+JSON. The server owns the actual model
// execution; this package only brokers loads and per-image predictions.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/yangga/vision-runner/pkg/logging"
	"github.com/yangga/vision-runner/pkg/vision"
)

// Name is the engine name.
const Name = "remote"

const (
	// defaultRequestTimeout bounds individual engine HTTP requests.
	defaultRequestTimeout = 30 * time.Second
	// predictJPEGQuality is the encoding quality for images sent to the
	// inference server.
	predictJPEGQuality = 90
	// maximumErrorBody caps how much of an error response body is read
	// into error messages.
	maximumErrorBody = 4 * 1024
)

// Engine constructs predictors bound to models loaded on the remote
// inference server.
type Engine struct {
	// log is the associated logger.
	log logging.Logger
	// baseURL is the inference server's root URL.
	baseURL string
	// httpClient is the HTTP client used for all engine requests.
	httpClient *http.Client
}

// New creates an engine targeting the inference server at baseURL. A nil
// httpClient gets a default client with a bounded timeout.
func New(log logging.Logger, baseURL string, httpClient *http.Client) *Engine {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &Engine{
		log:        log,
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// Name implements vision.Engine.Name.
func (e *Engine) Name() string {
	return Name
}

// loadRequest is the engine-side model load payload.
type loadRequest struct {
	Path string `json:"path"`
	Task string `json:"task"`
}

// loadResponse carries the server-assigned model identifier.
type loadResponse struct {
	Model string `json:"model"`
}

// predictResponse is the inference response payload.
type predictResponse struct {
	Results []vision.Result `json:"results"`
}

// NewPredictor implements vision.Engine.NewPredictor. It asks the server to
// load the model asset and binds a predictor to the returned model
// identifier.
func (e *Engine) NewPredictor(ctx context.Context, desc vision.ModelDescriptor) (vision.Predictor, error) {
	body, err := json.Marshal(loadRequest{Path: desc.Source.Path, Task: string(desc.Task)})
	if err != nil {
		return nil, fmt.Errorf("unable to encode load request: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/load", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("unable to create load request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := e.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("load request failed: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("load failed: %s", readErrorBody(response))
	}

	var loaded loadResponse
	if err := json.NewDecoder(response.Body).Decode(&loaded); err != nil {
		return nil, fmt.Errorf("unable to decode load response: %w", err)
	}
	if loaded.Model == "" {
		return nil, fmt.Errorf("load response carried no model identifier")
	}

	core := core{
		log:        e.log,
		baseURL:    e.baseURL,
		httpClient: e.httpClient,
		model:      loaded.Model,
		task:       desc.Task,
	}
	if desc.Task == vision.TaskDetect {
		return &detector{core: core, params: vision.NewDetectorParams()}, nil
	}
	return &classifier{core: core}, nil
}

// core carries the state shared by both predictor variants.
type core struct {
	log        logging.Logger
	baseURL    string
	httpClient *http.Client
	model      string
	task       vision.Task
}

// Task implements vision.Predictor.Task.
func (c *core) Task() vision.Task {
	return c.task
}

// Close implements vision.Predictor.Close by asking the server to unload the
// model. Unload failures are logged, not propagated; the replacement load
// has already succeeded by the time Close runs.
func (c *core) Close() error {
	body, _ := json.Marshal(loadResponse{Model: c.model})
	request, err := http.NewRequest(http.MethodPost, c.baseURL+"/unload", bytes.NewReader(body))
	if err != nil {
		return nil
	}
	request.Header.Set("Content-Type", "application/json")
	response, err := c.httpClient.Do(request)
	if err != nil {
		c.log.Debugf("Unload of model %s failed: %v", c.model, err)
		return nil
	}
	response.Body.Close()
	return nil
}

// predict runs one inference round trip. Detector thresholds, when present,
// ride along as query parameters.
func (c *core) predict(ctx context.Context, img image.Image, thresholds *vision.Thresholds) ([]vision.Result, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: predictJPEGQuality}); err != nil {
		return nil, fmt.Errorf("unable to encode image: %w", err)
	}

	query := url.Values{"model": []string{c.model}}
	if thresholds != nil {
		query.Set("confidence", strconv.FormatFloat(thresholds.Confidence, 'f', -1, 64))
		query.Set("iou", strconv.FormatFloat(thresholds.IoU, 'f', -1, 64))
		query.Set("maxItems", strconv.Itoa(thresholds.MaxItems))
	}

	request, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+"/predict?"+query.Encode(), &buf,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create predict request: %w", err)
	}
	request.Header.Set("Content-Type", "image/jpeg")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("predict request failed: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("predict failed: %s", readErrorBody(response))
	}

	var predicted predictResponse
	if err := json.NewDecoder(response.Body).Decode(&predicted); err != nil {
		return nil, fmt.Errorf("unable to decode predict response: %w", err)
	}
	return predicted.Results, nil
}

// detector is the detection-capable predictor variant.
type detector struct {
	core
	params *vision.DetectorParams
}

func (d *detector) Predict(ctx context.Context, img image.Image) ([]vision.Result, error) {
	thresholds := d.params.Snapshot()
	return d.predict(ctx, img, &thresholds)
}

func (d *detector) SetConfidence(confidence float64) { d.params.SetConfidence(confidence) }
func (d *detector) SetIoU(iou float64)               { d.params.SetIoU(iou) }
func (d *detector) SetMaxItems(maxItems int)         { d.params.SetMaxItems(maxItems) }

// classifier is the predictor variant without tunable thresholds.
type classifier struct {
	core
}

func (c *classifier) Predict(ctx context.Context, img image.Image) ([]vision.Result, error) {
	return c.predict(ctx, img, nil)
}

func readErrorBody(response *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(response.Body, maximumErrorBody))
	if err != nil || len(bytes.TrimSpace(body)) == 0 {
		return response.Status
	}
	return string(bytes.TrimSpace(body))
}
