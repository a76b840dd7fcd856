// Package relay fetches images on behalf of clients that cannot reach the
// origin directly (cross-origin restrictions, hotlink protection).
package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/use-agent/imagescout/engine"
	"github.com/use-agent/imagescout/metrics"
	"github.com/use-agent/imagescout/models"
	"github.com/use-agent/imagescout/urlnorm"
	"golang.org/x/sync/singleflight"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultTimeout  = 10 * time.Second
	DefaultMaxBytes = 50 << 20
)

// FallbackContentType is reported when the origin sends none.
const FallbackContentType = "image/*"

// CacheControl is the caching policy attached to relayed responses.
const CacheControl = "public, max-age=3600"

// Image is a fetched image body.
type Image struct {
	Body        []byte
	ContentType string
}

// Config tunes a Relay.
type Config struct {
	Timeout  time.Duration
	MaxBytes int64
}

// Relay performs origin fetches. Concurrent fetches of the same URL share a
// single upstream request.
type Relay struct {
	client  *http.Client
	cfg     Config
	metrics *metrics.Metrics
	group   singleflight.Group
}

// New creates a Relay. A nil client selects the Chrome-fingerprinted client;
// m may be nil.
func New(client *http.Client, cfg Config, m *metrics.Metrics) *Relay {
	if client == nil {
		client = engine.NewHTTPClient()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	return &Relay{client: client, cfg: cfg, metrics: m}
}

// Fetch GETs rawURL with a Referer of the URL's own origin and returns the
// body unchanged. The returned Image may be shared with concurrent callers
// and must not be modified.
func (r *Relay) Fetch(ctx context.Context, rawURL string) (*Image, error) {
	u, err := urlnorm.ParseAbsolute(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, err
	}
	target := u.String()

	ch := r.group.DoChan(target, func() (any, error) {
		// The shared fetch outlives any single caller's cancellation.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.Timeout)
		defer cancel()
		return r.fetch(fetchCtx, target, urlnorm.Origin(u))
	})

	select {
	case <-ctx.Done():
		return nil, engine.UpstreamError("image fetch abandoned", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Image), nil
	}
}

func (r *Relay) fetch(ctx context.Context, target, origin string) (img *Image, err error) {
	done := r.metrics.RelayStarted()
	defer func() {
		done()
		size := 0
		if img != nil {
			size = len(img.Body)
		}
		r.metrics.ObserveRelay(err == nil, size)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "invalid image url", err)
	}
	req.Header.Set("User-Agent", engine.ChromeUA)
	req.Header.Set("Referer", origin)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, engine.UpstreamError("failed to fetch image", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, models.NewScrapeError(
			models.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("image returned HTTP %d", resp.StatusCode),
			nil,
		)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.cfg.MaxBytes+1))
	if err != nil {
		return nil, engine.UpstreamError("failed to read image body", err)
	}
	if int64(len(body)) > r.cfg.MaxBytes {
		return nil, models.NewScrapeError(
			models.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("image exceeds %d bytes", r.cfg.MaxBytes),
			nil,
		)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = FallbackContentType
	}
	return &Image{Body: body, ContentType: ct}, nil
}
