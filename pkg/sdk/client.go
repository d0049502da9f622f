// Package sdk provides a Go client library for the Scribe API.
//
// Example usage:
//
//	client := sdk.New(sdk.Config{ServerURL: "http://localhost:8080"})
//	resp, err := client.SubmitTranscription(ctx, sdk.SubmitRequest{
//		UserID:          "user-1",
//		AudioChunkPaths: []string{"audio/intro.wav", "audio/part1.wav"},
//	})
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config holds configuration for the SDK client.
type Config struct {
	ServerURL  string
	HTTPClient *http.Client // Optional: custom HTTP client (defaults to 30s timeout)
}

// Client is the Scribe API client.
type Client struct {
	base string
	http *http.Client
}

// New creates a new Scribe API client.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		base: strings.TrimRight(cfg.ServerURL, "/"),
		http: httpClient,
	}
}

// APIError is a structured error response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// SubmitRequest is the payload for submitting a transcription job.
type SubmitRequest struct {
	UserID          string   `json:"userId"`
	AudioChunkPaths []string `json:"audioChunkPaths"`
}

// SubmitResponse acknowledges an accepted job.
type SubmitResponse struct {
	JobID string `json:"jobId"`
}

// ChunkStatusEntry pairs an audio path with its chunk status.
type ChunkStatusEntry struct {
	AudioPath string
	Status    string
}

// ChunkStatuses is the ordered audio-path-to-status mapping from the
// transcript endpoint. The wire form is a JSON object whose key order is the
// submission order, so decoding goes through json.Decoder tokens instead of a
// map.
type ChunkStatuses []ChunkStatusEntry

// UnmarshalJSON reads a JSON object preserving key order.
func (cs *ChunkStatuses) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("chunkStatuses: expected object, got %v", tok)
	}

	out := ChunkStatuses{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("chunkStatuses: expected string key, got %v", keyTok)
		}
		var status string
		if err := dec.Decode(&status); err != nil {
			return err
		}
		out = append(out, ChunkStatusEntry{AudioPath: key, Status: status})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	*cs = out
	return nil
}

// MarshalJSON writes the mapping as a JSON object in entry order.
func (cs ChunkStatuses) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range cs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.AudioPath)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(entry.Status)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Transcript is the read model for a transcription job.
type Transcript struct {
	JobID          string        `json:"jobId"`
	UserID         string        `json:"userId"`
	JobStatus      string        `json:"jobStatus"`
	TranscriptText string        `json:"transcriptText"`
	ChunkStatuses  ChunkStatuses `json:"chunkStatuses"`
	CompletedTime  *time.Time    `json:"completedTime"`
}

// IsTerminal reports whether the job can no longer change state.
func (t *Transcript) IsTerminal() bool {
	return t.JobStatus == "completed" || t.JobStatus == "failed"
}

// SearchParams filters the transcript listing.
type SearchParams struct {
	UserID    string
	JobStatus string
	Limit     int
}

// HealthResponse is the service health summary.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// SubmitTranscription submits a new transcription job.
func (c *Client) SubmitTranscription(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	resp := &SubmitResponse{}
	if err := c.do(ctx, http.MethodPost, "/transcribe", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetTranscript fetches a job's transcript and chunk statuses.
func (c *Client) GetTranscript(ctx context.Context, jobID string) (*Transcript, error) {
	resp := &Transcript{}
	if err := c.do(ctx, http.MethodGet, "/transcript/"+url.PathEscape(jobID), nil, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// WaitForTranscript polls until the job reaches a terminal state or ctx
// expires.
func (c *Client) WaitForTranscript(ctx context.Context, jobID string, pollInterval time.Duration) (*Transcript, error) {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		transcript, err := c.GetTranscript(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if transcript.IsTerminal() {
			return transcript, nil
		}

		select {
		case <-ctx.Done():
			return transcript, ctx.Err()
		case <-ticker.C:
		}
	}
}

// SearchTranscripts lists jobs, newest first.
func (c *Client) SearchTranscripts(ctx context.Context, params SearchParams) ([]*Transcript, error) {
	q := url.Values{}
	if params.UserID != "" {
		q.Set("userId", params.UserID)
	}
	if params.JobStatus != "" {
		q.Set("jobStatus", params.JobStatus)
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}

	path := "/transcript/search"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var results []*Transcript
	if err := c.do(ctx, http.MethodGet, path, nil, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// ProcessTask triggers one synchronous delivery for a job. Normally the task
// queue calls this; it is exposed for http dispatch mode and manual retries.
func (c *Client) ProcessTask(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodPost, "/tasks/process-transcription",
		map[string]string{"jobId": jobID}, nil)
}

// Health fetches the service health summary.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	resp := &HealthResponse{}
	if err := c.do(ctx, http.MethodGet, "/health", nil, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return parseAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseAPIError(resp *http.Response) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Code:       "unknown",
		Message:    resp.Status,
	}

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && json.Unmarshal(raw, &body) == nil && body.Error.Code != "" {
		apiErr.Code = body.Error.Code
		apiErr.Message = body.Error.Message
	}
	return apiErr
}
