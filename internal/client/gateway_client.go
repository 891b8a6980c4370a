package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mixsmvrt/api/internal/model"
)

// GatewayClient is the worker's view of the backend job API.
type GatewayClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// StatusError is returned for non-2xx gateway responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway error (status %d): %s", e.StatusCode, e.Body)
}

// NewGatewayClient creates a client for the backend at baseURL. An empty
// token sends no Authorization header.
func NewGatewayClient(baseURL, token string, timeout time.Duration) *GatewayClient {
	return &GatewayClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		token:      token,
	}
}

// Claim asks the backend for the next pending job. It returns
// model.ErrNoJob when the backend answers 404.
func (c *GatewayClient) Claim(ctx context.Context) (*model.Job, error) {
	var job model.Job
	err := c.do(ctx, http.MethodPost, "/jobs/claim", nil, &job)
	if err != nil {
		if se, ok := err.(*StatusError); ok && se.StatusCode == http.StatusNotFound {
			return nil, model.ErrNoJob
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return &job, nil
}

// InputDownloadURL fetches a presigned URL for the job's input artifact.
func (c *GatewayClient) InputDownloadURL(ctx context.Context, jobID string) (string, error) {
	var resp model.DownloadURLResponse
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID)+"/input-download-url", nil, &resp); err != nil {
		return "", fmt.Errorf("input download url for %s: %w", jobID, err)
	}
	if resp.DownloadURL == "" {
		return "", fmt.Errorf("missing download_url in backend response")
	}
	return resp.DownloadURL, nil
}

// UpdateJob sends a status patch.
func (c *GatewayClient) UpdateJob(ctx context.Context, jobID string, upd model.JobUpdate) error {
	body := model.UpdateJobRequest{
		Status:       upd.Status,
		OutputS3Key:  upd.OutputS3Key,
		ErrorMessage: upd.ErrorMessage,
		CurrentStage: upd.CurrentStage,
	}
	if err := c.do(ctx, http.MethodPatch, "/jobs/"+url.PathEscape(jobID), body, nil); err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	return nil
}

// UpdateProgress sends an in-flight progress patch.
func (c *GatewayClient) UpdateProgress(ctx context.Context, jobID string, upd model.ProgressUpdate) error {
	body := model.ProgressRequest{
		CurrentStage: upd.CurrentStage,
		Progress:     upd.Progress,
	}
	if err := c.do(ctx, http.MethodPatch, "/jobs/"+url.PathEscape(jobID)+"/progress", body, nil); err != nil {
		return fmt.Errorf("update progress %s: %w", jobID, err)
	}
	return nil
}

// do sends a request with an optional JSON body and decodes an optional JSON result
func (c *GatewayClient) do(ctx context.Context, method, endpoint string, body interface{}, result interface{}) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *GatewayClient) IsConfigured() bool {
	return c.baseURL != ""
}
