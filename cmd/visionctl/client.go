package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yangga/vision-runner/pkg/vision"
)

// apiError mirrors the daemon's structured failure body.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// apiClient is a thin client for the vision-runner HTTP API.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// post sends a JSON request and returns the raw response body for 2xx
// responses; failures are surfaced as *apiError when the daemon returned
// one.
func (c *apiClient) post(path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	}
	request, err := http.NewRequest(http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}
	if response.StatusCode >= 400 {
		var daemonErr apiError
		if json.Unmarshal(data, &daemonErr) == nil && daemonErr.Code != "" {
			return nil, &daemonErr
		}
		return nil, fmt.Errorf("%s: %s", response.Status, strings.TrimSpace(string(data)))
	}
	return data, nil
}

func (c *apiClient) loadModel(path string, task vision.Task) error {
	_, err := c.post("/v1/models/load", vision.ModelDescriptor{
		Source: vision.Source{Type: vision.SourceLocal, Path: path},
		Task:   task,
	})
	return err
}

func (c *apiClient) setSetting(endpoint string, payload map[string]any) error {
	_, err := c.post("/v1/settings/"+endpoint, payload)
	return err
}

func (c *apiClient) predictImage(operation, imagePath string) ([]vision.Result, error) {
	data, err := c.post("/v1/images/"+operation, map[string]string{"imagePath": imagePath})
	if err != nil {
		return nil, err
	}
	var response struct {
		Results []vision.Result `json:"results"`
	}
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, err
	}
	return response.Results, nil
}

func (c *apiClient) capture(timeoutSec int) ([]byte, error) {
	return c.post("/v1/camera/capture", map[string]int{"timeoutSec": timeoutSec})
}

func (c *apiClient) closeCamera() error {
	_, err := c.post("/v1/camera/close", nil)
	return err
}

func (c *apiClient) status() (map[string]any, error) {
	response, err := c.httpClient.Get(c.baseURL + "/v1/status")
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()
	var status map[string]any
	if err := json.NewDecoder(response.Body).Decode(&status); err != nil {
		return nil, err
	}
	return status, nil
}

// follow subscribes to one of the daemon's SSE streams and invokes emit for
// each event payload until the context is cancelled or the stream closes.
func (c *apiClient) follow(ctx context.Context, stream string, emit func(string)) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/streams/"+stream, nil)
	if err != nil {
		return err
	}
	// Streaming must not be cut short by the client-wide timeout.
	client := &http.Client{Transport: c.httpClient.Transport}
	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("stream unavailable: %s", response.Status)
	}

	scanner := bufio.NewScanner(response.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if payload, ok := strings.CutPrefix(line, "data: "); ok {
			emit(payload)
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return scanner.Err()
}
