package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Downloader fetches presigned URLs to local files.
type Downloader struct {
	httpClient *http.Client
}

// NewDownloader creates a Downloader with the given overall timeout.
func NewDownloader(timeout time.Duration) *Downloader {
	return &Downloader{httpClient: &http.Client{Timeout: timeout}}
}

// Fetch streams url into dst, truncating dst first.
func (d *Downloader) Fetch(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download input: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: status %d", resp.StatusCode)
	}

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return f.Close()
}
