package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"casare-orchestrator/internal/models"
)

// Client is the robot's HTTP handle onto the Orchestrator Facade, replacing
// the teacher's direct storage.Queue/storage.ExecutionStore access (the
// teacher's Executor runs in the same process group as its Redis; here the
// robot is a separate, possibly remote, process and only ever speaks the
// JSON API per spec §6).
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("agent: marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("agent: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("agent: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("agent: %s %s: status %d: %s", method, path, resp.StatusCode, string(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("agent: decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) RegisterRobot(ctx context.Context, req RegisterRobotRequest) (*models.Robot, error) {
	var robot models.Robot
	if _, err := c.do(ctx, http.MethodPost, "/api/v1/robots", req, &robot); err != nil {
		return nil, err
	}
	return &robot, nil
}

func (c *Client) Heartbeat(ctx context.Context, robotID string, status models.RobotStatus, currentJobCount int) error {
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/robots/%s/heartbeat", robotID), map[string]interface{}{
		"status":            status,
		"current_job_count": currentJobCount,
	}, nil)
	return err
}

// WaitForAssignment long-polls for a job claimed for robotID. Returns
// (nil, nil) on a 204 (nothing assigned within the server's poll window).
func (c *Client) WaitForAssignment(ctx context.Context, robotID string, timeoutSeconds int) (*models.Job, error) {
	path := fmt.Sprintf("/api/v1/robots/%s/assignment?timeout_seconds=%d", robotID, timeoutSeconds)
	var job models.Job
	status, err := c.do(ctx, http.MethodGet, path, nil, &job)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	return &job, nil
}

func (c *Client) UpdateProgress(ctx context.Context, jobID string, progress int, currentStep string) error {
	_, err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/v1/jobs/%s/progress", jobID), map[string]interface{}{
		"progress":     progress,
		"current_step": currentStep,
	}, nil)
	return err
}

func (c *Client) CompleteJob(ctx context.Context, jobID, result string) error {
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/jobs/%s/complete", jobID), map[string]interface{}{
		"result": result,
	}, nil)
	return err
}

func (c *Client) FailJob(ctx context.Context, jobID, errMsg string) error {
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/jobs/%s/fail", jobID), map[string]interface{}{
		"error": errMsg,
	}, nil)
	return err
}

func (c *Client) PutCheckpoint(ctx context.Context, workflowInstanceID string, cp models.Checkpoint) error {
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/jobs/%s/checkpoint", workflowInstanceID), map[string]interface{}{
		"state":          cp.State,
		"current_step":   cp.CurrentStep,
		"executed_nodes": cp.ExecutedNodes,
	}, nil)
	return err
}

func (c *Client) ReportNodeFailure(ctx context.Context, jobID string, req ReportNodeFailureRequest) (*models.Action, error) {
	var action models.Action
	if _, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/jobs/%s/node-failure", jobID), req, &action); err != nil {
		return nil, err
	}
	return &action, nil
}

// RegisterRobotRequest mirrors the server's registerRobotRequest DTO.
type RegisterRobotRequest struct {
	Name              string   `json:"name"`
	Environment       string   `json:"environment"`
	Tags              []string `json:"tags"`
	MaxConcurrentJobs int      `json:"max_concurrent_jobs"`
	AffinityKey       string   `json:"affinity_key"`
	TotalCPU          int      `json:"total_cpu"`
	TotalMemoryMB     uint64   `json:"total_memory_mb"`
}

// ReportNodeFailureRequest mirrors the server's reportNodeFailureRequest DTO.
type ReportNodeFailureRequest struct {
	NodeID     string           `json:"node_id"`
	NodeKind   string           `json:"node_kind"`
	RobotID    string           `json:"robot_id"`
	ErrorKind  models.ErrorKind `json:"error_kind"`
	Severity   int              `json:"severity"`
	RetryCount int              `json:"retry_count"`
	Message    string           `json:"message"`
}
