// Package speech produces graduation speech drafts through an
// OpenAI-compatible chat completions API.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	model          = "gpt-4o-mini"
)

// Tones are the three draft styles produced for every purchase.
var Tones = []string{"heartfelt", "humorous", "inspirational"}

// Draft is one generated speech.
type Draft struct {
	Tone string `json:"tone"`
	Body string `json:"body"`
}

// Generator calls the completion API.
type Generator struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewGenerator creates a generator. baseURL may be empty, in which case the
// public OpenAI endpoint is used; tests point it at a local server.
func NewGenerator(apiKey, baseURL string) *Generator {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Generator{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// GenerateDrafts produces one draft per tone from the customer's form
// payload. Any failed completion fails the whole batch; the caller retries
// by re-driving the generation endpoint.
func (g *Generator) GenerateDrafts(ctx context.Context, formData json.RawMessage) ([]Draft, error) {
	drafts := make([]Draft, 0, len(Tones))
	for _, tone := range Tones {
		body, err := g.complete(ctx, tone, formData)
		if err != nil {
			return nil, fmt.Errorf("generate %s draft: %w", tone, err)
		}
		drafts = append(drafts, Draft{Tone: tone, Body: body})
	}
	return drafts, nil
}

func (g *Generator) complete(ctx context.Context, tone string, formData json.RawMessage) (string, error) {
	prompt := fmt.Sprintf(
		"Write a %s graduation speech of 400-600 words based on the following details the customer submitted. "+
			"Use the names, anecdotes and milestones from the details. Details (JSON): %s",
		tone, formData,
	)

	reqBody, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a professional speechwriter for graduation ceremonies."},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call completion API: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("completion API %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return "", fmt.Errorf("completion API returned %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion API returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
