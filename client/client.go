// Package client is a small Go client for the imagescout HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/use-agent/imagescout/models"
)

// Client talks to one imagescout server.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client

	// PollInterval is how often WaitArchive checks job status.
	PollInterval time.Duration
}

// New creates a Client for baseURL (e.g. "http://127.0.0.1:8080"). apiKey may
// be empty when the server runs without auth.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		http:         &http.Client{Timeout: 5 * time.Minute},
		PollInterval: 2 * time.Second,
	}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status int
	Body   models.ErrorResponse
}

func (e *APIError) Error() string {
	if e.Body.Code != "" {
		return fmt.Sprintf("imagescout: %s (%d): %s", e.Body.Code, e.Status, e.Body.Error)
	}
	return fmt.Sprintf("imagescout: HTTP %d: %s", e.Status, e.Body.Error)
}

// Scrape calls POST /api/v1/scrape.
func (c *Client) Scrape(ctx context.Context, req *models.ScrapeRequest) (*models.ScrapeResponse, error) {
	var resp models.ScrapeResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/scrape", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartArchive calls POST /api/v1/archive/jobs.
func (c *Client) StartArchive(ctx context.Context, req *models.ArchiveRequest) (*models.ArchiveJobResponse, error) {
	var resp models.ArchiveJobResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/archive/jobs", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ArchiveStatus calls GET /api/v1/archive/jobs/:id.
func (c *Client) ArchiveStatus(ctx context.Context, id string) (*models.ArchiveJobStatusResponse, error) {
	var resp models.ArchiveJobStatusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/archive/jobs/"+id, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WaitArchive polls a job until it leaves the processing state. onProgress,
// if set, sees every poll result.
func (c *Client) WaitArchive(ctx context.Context, id string, onProgress func(models.ArchiveProgress)) (*models.ArchiveJobStatusResponse, error) {
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()

	for {
		status, err := c.ArchiveStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		if onProgress != nil {
			onProgress(status.Progress)
		}
		if status.Done() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// DownloadArchive streams the finished ZIP of job id into w.
func (c *Client) DownloadArchive(ctx context.Context, id string, w io.Writer) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/archive/jobs/"+id+"/download", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return io.Copy(w, resp.Body)
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	resp, err := c.do(ctx, method, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("imagescout: decode %s: %w", path, err)
	}
	return nil
}

// do sends one request and turns non-2xx answers into *APIError.
func (c *Client) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("imagescout: marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("imagescout: create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imagescout: %s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &apiErr.Body) != nil || apiErr.Body.Error == "" {
			apiErr.Body.Error = strings.TrimSpace(string(raw))
		}
		return nil, apiErr
	}
	return resp, nil
}
