package client

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/mixsmvrt/api/internal/config"
	"github.com/mixsmvrt/api/internal/model"
	"github.com/mixsmvrt/api/internal/render"
)

// DSPClient renders jobs on the external DSP microservice. It implements
// render.Renderer.
type DSPClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewDSPClient creates a new DSP service client
func NewDSPClient(cfg *config.RenderConfig) *DSPClient {
	return &DSPClient{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.ServiceURL,
	}
}

// Render uploads the input as multipart form data to /render and writes the
// returned audio body to req.OutputPath. The service reports no per-stage
// progress, so every stage is marked done once the body is written.
func (c *DSPClient) Render(ctx context.Context, req render.Request, onStage render.StageFunc) error {
	body, contentType, err := buildRenderForm(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", body)
	if err != nil {
		body.Close()
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("dsp service error (status %d): %s", resp.StatusCode, string(msg))
	}

	out, err := os.Create(req.OutputPath)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("dsp service returned an empty body")
	}

	if onStage != nil {
		for i := range model.StagesFor(req.FlowType) {
			onStage(i)
		}
	}
	return nil
}

// buildRenderForm streams the multipart body through a pipe so the input
// file is never held in memory. The reader must be consumed or closed.
func buildRenderForm(req render.Request) (io.ReadCloser, string, error) {
	in, err := os.Open(req.InputPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open input: %w", err)
	}

	pr, pw := io.Pipe()
	w := multipart.NewWriter(pw)

	go func() {
		defer in.Close()
		pw.CloseWithError(writeRenderForm(w, req, in))
	}()

	return pr, w.FormDataContentType(), nil
}

func writeRenderForm(w *multipart.Writer, req render.Request, in io.Reader) error {
	fields := [][2]string{
		{"job_id", req.JobID},
		{"flow_type", string(req.FlowType)},
		{"preset_name", req.PresetName},
		{"genre", req.Genre},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := w.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}

	part, err := w.CreateFormFile("file", filepath.Base(req.InputPath))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, in); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close form: %w", err)
	}
	return nil
}

// HealthCheck checks if the DSP service is available
func (c *DSPClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dsp service unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *DSPClient) IsConfigured() bool {
	return c.baseURL != ""
}
