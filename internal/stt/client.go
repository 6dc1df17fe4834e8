// Package stt is the client for the external speech-to-text provider.
// The provider contract is submit-then-poll: a submitted job gets an opaque
// id, and polling that id eventually yields a terminal completed or error
// status. The wire format follows the AssemblyAI-style transcript API.
package stt

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_provider.go -package=mocks meetscribe/internal/stt Provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// JobStatus is the provider-side status of a transcription job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobError      JobStatus = "error"
)

// Terminal reports whether the provider will never change this status again.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobError
}

// Job is the provider's view of a transcription job.
type Job struct {
	ID         string
	Status     JobStatus
	Text       string
	Confidence float64
	Error      string
}

// Provider defines the submit/poll contract for speech-to-text.
// This interface is defined from the pipeline's perspective (consumer-first).
type Provider interface {
	// Submit sends the audio address to the provider and returns the job id.
	Submit(ctx context.Context, audioURL string) (string, error)
	// Poll queries the provider for the job's current state.
	Poll(ctx context.Context, jobID string) (*Job, error)
}

// Client is an HTTP client for the speech-to-text provider.
// It implements the Provider interface.
type Client struct {
	BaseURL string
	APIKey  string
	client  *http.Client
}

// NewClient creates a new speech-to-text client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		client:  http.DefaultClient,
	}
}

type submitRequest struct {
	AudioURL string `json:"audio_url"`
}

type transcriptResponse struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error"`
}

// Submit sends the audio address to the provider and returns the job id.
func (c *Client) Submit(ctx context.Context, audioURL string) (string, error) {
	url := fmt.Sprintf("%s/v2/transcript", c.BaseURL)

	body, err := json.Marshal(submitRequest{AudioURL: audioURL})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	var tr transcriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if tr.ID == "" {
		return "", fmt.Errorf("provider returned no job id")
	}
	return tr.ID, nil
}

// Poll queries the provider for the job's current state.
func (c *Client) Poll(ctx context.Context, jobID string) (*Job, error) {
	url := fmt.Sprintf("%s/v2/transcript/%s", c.BaseURL, jobID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	var tr transcriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	job := &Job{
		ID:         tr.ID,
		Text:       tr.Text,
		Confidence: tr.Confidence,
		Error:      tr.Error,
	}
	switch tr.Status {
	case "completed":
		job.Status = JobCompleted
	case "error":
		job.Status = JobError
	case "queued":
		job.Status = JobQueued
	default:
		// Anything non-terminal we don't recognize counts as in-flight
		job.Status = JobProcessing
	}
	return job, nil
}
