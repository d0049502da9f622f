package asr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/scribehq/scribe/pkg/logger"
)

// Client is an HTTP client for an external ASR service. The service exposes
// GET /get-asr-output?path=<audioPath> and answers with a JSON body of the
// shape {"path": ..., "transcript": ...}.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	log        *slog.Logger
}

// NewClient creates a client for the ASR service at baseURL.
func NewClient(baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		log:        log.With(logger.Scope("asr.client")),
	}
}

type transcriptResponse struct {
	Path       string `json:"path"`
	Transcript string `json:"transcript"`
}

// Transcribe requests the transcript for one audio path. Network trouble,
// timeouts, throttling and 5xx responses classify as transient; responses
// saying the audio itself is unprocessable classify as permanent.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/get-asr-output?path=%s", c.baseURL, url.QueryEscape(audioPath))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", NewPermanent("build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", NewTransient(fmt.Sprintf("transcription timed out after %s", c.timeout), err)
		}
		return "", NewTransient("asr service unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", NewTransient("read response body", err)
	}

	if resp.StatusCode >= 400 {
		return "", classifyStatus(resp.StatusCode, body)
	}

	var result transcriptResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", NewTransient("decode response body", err)
	}

	c.log.Debug("transcription completed",
		slog.String("audio_path", audioPath),
		slog.Int("transcript_length", len(result.Transcript)),
		slog.Duration("duration", time.Since(startTime)),
	)

	return result.Transcript, nil
}

// classifyStatus maps an HTTP error status to the retry classification. The
// 4xx statuses the service uses for unprocessable audio (bad request, not
// found, unprocessable entity) are permanent; throttling and request timeouts
// stay transient like the 5xx family.
func classifyStatus(status int, body []byte) error {
	excerpt := strings.TrimSpace(string(body))
	if len(excerpt) > 200 {
		excerpt = excerpt[:200] + "..."
	}
	reason := fmt.Sprintf("asr service returned %d: %s", status, excerpt)

	switch status {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return NewPermanent(reason, nil)
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return NewTransient(reason, nil)
	}
	if status >= 500 {
		return NewTransient(reason, nil)
	}
	return NewTransient(reason, nil)
}
