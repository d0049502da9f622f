package dispatch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/scribehq/scribe/internal/config"
	"github.com/scribehq/scribe/pkg/logger"
)

const defaultTasksEndpoint = "https://cloudtasks.googleapis.com"

// HTTPDispatcher pushes deliveries to an external durable task queue that
// calls the worker endpoint back over HTTP. The task name is derived from
// the job id, so the queue's AlreadyExists conflict is the de-duplication.
type HTTPDispatcher struct {
	cfg        config.TasksConfig
	endpoint   string
	httpClient *http.Client
	log        *slog.Logger
}

// NewHTTPDispatcher creates a push dispatcher from the task queue settings.
// The settings must be complete; config.Validate enforces that at startup.
func NewHTTPDispatcher(cfg config.TasksConfig, log *slog.Logger) *HTTPDispatcher {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultTasksEndpoint
	}
	return &HTTPDispatcher{
		cfg:        cfg,
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log.With(logger.Scope("dispatch.http")),
	}
}

type taskHTTPRequest struct {
	HTTPMethod string            `json:"httpMethod"`
	URL        string            `json:"url"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
	OIDCToken  *taskOIDCToken    `json:"oidcToken,omitempty"`
}

type taskOIDCToken struct {
	ServiceAccountEmail string `json:"serviceAccountEmail"`
	Audience            string `json:"audience,omitempty"`
}

type createTaskRequest struct {
	Task struct {
		Name        string          `json:"name"`
		HTTPRequest taskHTTPRequest `json:"httpRequest"`
	} `json:"task"`
}

// Enqueue creates a task named after jobID that POSTs {"jobId": ...} to the
// worker handler URL. A 409 from the queue means the task already exists and
// is a successful no-op.
func (d *HTTPDispatcher) Enqueue(ctx context.Context, jobID string) error {
	queuePath := fmt.Sprintf("projects/%s/locations/%s/queues/%s",
		d.cfg.ProjectID, d.cfg.LocationID, d.cfg.QueueID)

	payload, err := json.Marshal(map[string]string{"jobId": jobID})
	if err != nil {
		return fmt.Errorf("encode task payload: %w", err)
	}

	var body createTaskRequest
	body.Task.Name = fmt.Sprintf("%s/tasks/job-%s", queuePath, jobID)
	body.Task.HTTPRequest = taskHTTPRequest{
		HTTPMethod: http.MethodPost,
		URL:        d.cfg.HandlerURL,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       base64.StdEncoding.EncodeToString(payload),
	}
	if d.cfg.ServiceAccountEmail != "" {
		audience := d.cfg.Audience
		if audience == "" {
			audience = d.cfg.HandlerURL
		}
		body.Task.HTTPRequest.OIDCToken = &taskOIDCToken{
			ServiceAccountEmail: d.cfg.ServiceAccountEmail,
			Audience:            audience,
		}
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode create task request: %w", err)
	}

	url := fmt.Sprintf("%s/v2/%s/tasks", d.endpoint, queuePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build create task request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("create task for job %s: %w", jobID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		d.log.Debug("task already exists", slog.String("job_id", jobID))
		return nil
	}
	if resp.StatusCode >= 400 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("create task for job %s: queue returned %d: %s",
			jobID, resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}

	d.log.Debug("task created", slog.String("job_id", jobID))
	return nil
}
