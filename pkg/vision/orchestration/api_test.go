package orchestration

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yangga/vision-runner/pkg/vision"
)

func doJSON(t *testing.T, o *Orchestrator, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	o.ServeHTTP(rec, req)
	return rec
}

func decodeAPIError(t *testing.T, rec *httptest.ResponseRecorder) apiError {
	t.Helper()
	var apiErr apiError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	return apiErr
}

func TestAPIUnknownRoute(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(nil)
	rec := doJSON(t, o, http.MethodGet, "/v1/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPILoadModel(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(nil)
	modelPath := writeModelFile(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "malformed json",
			body:       "{not json",
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_model",
		},
		{
			name:       "missing task",
			body:       fmt.Sprintf(`{"source":{"type":"local","path":%q}}`, modelPath),
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_model",
		},
		{
			name:       "unrecognized source type",
			body:       fmt.Sprintf(`{"source":{"type":"ftp","path":%q},"task":"detect"}`, modelPath),
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_model",
		},
		{
			name:       "valid detect",
			body:       fmt.Sprintf(`{"source":{"type":"local","path":%q},"task":"detect"}`, modelPath),
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, o, http.MethodPost, "/v1/models/load", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				require.Equal(t, tt.wantCode, decodeAPIError(t, rec).Code)
			}
		})
	}
}

func TestAPILoadModelEngineFailure(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{err: fmt.Errorf("unsupported format")}
	o := newTestOrchestrator(engine)
	body := fmt.Sprintf(`{"source":{"type":"local","path":%q},"task":"detect"}`, writeModelFile(t))

	rec := doJSON(t, o, http.MethodPost, "/v1/models/load", body)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "predictor_error", decodeAPIError(t, rec).Code)
}

func TestAPISettingsValidation(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(nil)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{name: "confidence ok", path: "/v1/settings/confidence", body: `{"confidence":0.5}`, wantStatus: http.StatusOK},
		{name: "confidence missing", path: "/v1/settings/confidence", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "confidence malformed", path: "/v1/settings/confidence", body: `{"confidence":"high"}`, wantStatus: http.StatusBadRequest},
		{name: "iou ok", path: "/v1/settings/iou", body: `{"iou":0.45}`, wantStatus: http.StatusOK},
		{name: "iou missing", path: "/v1/settings/iou", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "max items ok", path: "/v1/settings/max-items", body: `{"numItems":10}`, wantStatus: http.StatusOK},
		{name: "max items missing", path: "/v1/settings/max-items", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "lens ok", path: "/v1/settings/lens", body: `{"direction":1}`, wantStatus: http.StatusOK},
		{name: "lens missing", path: "/v1/settings/lens", body: `{}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, o, http.MethodPost, tt.path, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusBadRequest {
				require.Equal(t, "bad_request", decodeAPIError(t, rec).Code)
			}
		})
	}
}

func TestAPIPredictImage(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(nil)
	imagePath := writePNG(t, 8, 8)

	// No predictor loaded.
	rec := doJSON(t, o, http.MethodPost, "/v1/images/detect", fmt.Sprintf(`{"imagePath":%q}`, imagePath))
	require.Equal(t, http.StatusPreconditionFailed, rec.Code)
	require.Equal(t, "no_predictor_loaded", decodeAPIError(t, rec).Code)

	// Unreadable path.
	rec = doJSON(t, o, http.MethodPost, "/v1/images/detect", `{"imagePath":"/nonexistent.png"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "decode_error", decodeAPIError(t, rec).Code)

	// Loaded predictor returns results.
	require.NoError(t, o.LoadModel(context.Background(), localDescriptor(vision.TaskDetect, writeModelFile(t))))
	rec = doJSON(t, o, http.MethodPost, "/v1/images/detect", fmt.Sprintf(`{"imagePath":%q}`, imagePath))
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Results []vision.Result `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response.Results, 1)
	require.Equal(t, "person", response.Results[0].Label)
	require.NotNil(t, response.Results[0].Box)
}

func TestAPICaptureTimeout(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(nil)
	rec := doJSON(t, o, http.MethodPost, "/v1/camera/capture", `{"timeoutSec":1}`)
	require.Equal(t, http.StatusRequestTimeout, rec.Code)
	require.Equal(t, "timeout", decodeAPIError(t, rec).Code)
}

func TestAPICaptureBusy(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(nil)

	release := make(chan struct{})
	go func() {
		defer close(release)
		_, _ = o.CaptureFrame(context.Background(), 2*time.Second)
	}()
	require.Eventually(t, o.gate.Armed, time.Second, time.Millisecond)

	rec := doJSON(t, o, http.MethodPost, "/v1/camera/capture", `{"timeoutSec":1}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "busy", decodeAPIError(t, rec).Code)

	// Release the pending capture.
	o.HandleFrame(testFrame(0, 8))
	<-release
}

func TestAPICaptureReturnsJPEG(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(nil)

	type result struct {
		code        int
		contentType string
		body        []byte
	}
	results := make(chan result, 1)
	go func() {
		rec := doJSON(t, o, http.MethodPost, "/v1/camera/capture", `{"timeoutSec":5}`)
		results <- result{rec.Code, rec.Header().Get("Content-Type"), rec.Body.Bytes()}
	}()
	require.Eventually(t, o.gate.Armed, 2*time.Second, time.Millisecond)
	o.HandleFrame(testFrame(0, 8))

	got := <-results
	require.Equal(t, http.StatusOK, got.code)
	require.Equal(t, "image/jpeg", got.contentType)
	require.NotEmpty(t, got.body)
}

func TestAPICloseCameraAck(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(nil)
	rec := doJSON(t, o, http.MethodPost, "/v1/camera/close", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIStatus(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(nil)

	rec := doJSON(t, o, http.MethodGet, "/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, "fake", status.Engine)
	require.Equal(t, "none", status.Predictor)

	require.NoError(t, o.LoadModel(context.Background(), localDescriptor(vision.TaskDetect, writeModelFile(t))))
	o.SetLensDirection(1)

	rec = doJSON(t, o, http.MethodGet, "/v1/status", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, "detect", status.Predictor)
	require.Equal(t, 1, status.LensDirection)
}

func TestAPIStreamDeliversEvents(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(nil)
	require.NoError(t, o.LoadModel(context.Background(), localDescriptor(vision.TaskDetect, writeModelFile(t))))

	server := httptest.NewServer(o)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/v1/streams/detections", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Keep producing frames until the subscriber observes an event; the
	// subscription attaches asynchronously with respect to this loop.
	lines := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "data: ") {
				lines <- line
				return
			}
		}
	}()

	deadline := time.After(4 * time.Second)
	for {
		o.HandleFrame(testFrame(0, 8))
		select {
		case line := <-lines:
			require.Contains(t, line, `"label":"person"`)
			return
		case <-deadline:
			t.Fatal("no stream event observed")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
