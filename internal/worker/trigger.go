package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPTrigger posts generation jobs to the generation endpoint. In the
// default deployment that endpoint belongs to this same service, but the
// URL is configuration so generation can be split out.
type HTTPTrigger struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPTrigger(url, apiKey string) *HTTPTrigger {
	return &HTTPTrigger{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (t *HTTPTrigger) TriggerGeneration(ctx context.Context, job GenerationJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal generation job: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Key", t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("call generation endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("generation endpoint returned %d: %s", resp.StatusCode, body)
	}
	return nil
}
