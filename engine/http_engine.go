package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/use-agent/imagescout/models"
)

// maxPageBytes caps how much of a page body is read.
const maxPageBytes = 10 << 20

// HTTPEngine fetches pages with a single GET over the Chrome-fingerprinted
// transport. It does not run JavaScript.
type HTTPEngine struct {
	client *http.Client
}

// NewHTTPEngine creates an HTTPEngine. A nil client selects NewHTTPClient().
func NewHTTPEngine(client *http.Client) *HTTPEngine {
	if client == nil {
		client = NewHTTPClient()
	}
	return &HTTPEngine{client: client}
}

func (e *HTTPEngine) Name() string { return "http" }

// Fetch GETs req.URL. Unreachable origins and non-2xx statuses are reported
// as UPSTREAM_UNAVAILABLE (UPSTREAM_TIMEOUT when the deadline hit).
func (e *HTTPEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "invalid page url", err)
	}
	httpReq.Header.Set("User-Agent", ChromeUA)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, UpstreamError("failed to fetch page", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, models.NewScrapeError(
			models.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("page returned HTTP %d", resp.StatusCode),
			nil,
		)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, UpstreamError("failed to read page body", err)
	}

	return &FetchResult{
		HTML:       string(body),
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
		EngineName: e.Name(),
	}, nil
}

// UpstreamError classifies a transport error from an origin request.
func UpstreamError(msg string, err error) *models.ScrapeError {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewScrapeError(models.ErrCodeUpstreamTimeout, msg+": timed out", err)
	}
	return models.NewScrapeError(models.ErrCodeUpstreamUnavailable, msg, err)
}
