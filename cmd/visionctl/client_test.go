package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yangga/vision-runner/pkg/vision"
)

func TestClientLoadModel(t *testing.T) {
	t.Parallel()

	var got vision.ModelDescriptor
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/models/load", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	c := newAPIClient(server.URL)
	require.NoError(t, c.loadModel("model.bin", vision.TaskDetect))
	require.Equal(t, vision.SourceLocal, got.Source.Type)
	require.Equal(t, "model.bin", got.Source.Path)
	require.Equal(t, vision.TaskDetect, got.Task)
}

func TestClientSurfacesDaemonError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(apiError{Code: "invalid_model", Message: "unrecognized task"})
	}))
	defer server.Close()

	c := newAPIClient(server.URL)
	err := c.loadModel("model.bin", "segment")
	require.Error(t, err)

	var daemonErr *apiError
	require.ErrorAs(t, err, &daemonErr)
	require.Equal(t, "invalid_model", daemonErr.Code)
}

func TestClientPredictImage(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/images/detect", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string][]vision.Result{
			"results": {{Label: "person", Confidence: 0.9}},
		})
	}))
	defer server.Close()

	c := newAPIClient(server.URL)
	results, err := c.predictImage("detect", "photo.png")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "person", results[0].Label)
}

func TestClientCaptureReturnsRawBytes(t *testing.T) {
	t.Parallel()

	payload := []byte{0xff, 0xd8, 0xff} // JPEG magic prefix
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/camera/capture", r.URL.Path)
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	c := newAPIClient(server.URL)
	data, err := c.capture(3)
	require.NoError(t, err)
	require.Equal(t, payload, data)
}
