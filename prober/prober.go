// Package prober checks candidate image URLs with lightweight HEAD requests
// and picks the largest retrievable variant.
package prober

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/imagescout/engine"
	"github.com/use-agent/imagescout/metrics"
	"github.com/use-agent/imagescout/models"
	"github.com/use-agent/imagescout/urlnorm"
)

// DefaultTimeout bounds each metadata check.
const DefaultTimeout = 5 * time.Second

// Check names, in ranking order.
const (
	CheckDirect   = "direct"
	CheckStripped = "stripped"
	CheckSearch   = "search"
)

// SearchLookup finds alternative copies of an image elsewhere. It is the
// third and last probe step.
type SearchLookup interface {
	Lookup(ctx context.Context, imageURL, alt string) ([]models.ResolvedImage, error)
}

// NoSearch is the default SearchLookup. It never finds anything.
type NoSearch struct{}

func (NoSearch) Lookup(context.Context, string, string) ([]models.ResolvedImage, error) {
	return nil, nil
}

// Outcome is the result of probing one candidate.
type Outcome struct {
	// Image is the best accepted variant, nil when every check came up empty.
	Image *models.ResolvedImage

	// Errors holds one message per check that failed on the network.
	Errors []string
}

// Option configures a Prober.
type Option func(*Prober)

// WithClient overrides the HTTP client.
func WithClient(c *http.Client) Option { return func(p *Prober) { p.client = c } }

// WithTimeout overrides the per-check timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithSearch installs a SearchLookup.
func WithSearch(s SearchLookup) Option {
	return func(p *Prober) {
		if s != nil {
			p.search = s
		}
	}
}

// WithMetrics records check outcomes.
func WithMetrics(m *metrics.Metrics) Option { return func(p *Prober) { p.metrics = m } }

// Prober ranks the retrievable variants of a candidate image.
type Prober struct {
	client  *http.Client
	timeout time.Duration
	search  SearchLookup
	metrics *metrics.Metrics
}

// New creates a Prober using the Chrome-fingerprinted client and NoSearch.
func New(opts ...Option) *Prober {
	p := &Prober{timeout: DefaultTimeout, search: NoSearch{}}
	for _, o := range opts {
		o(p)
	}
	if p.client == nil {
		p.client = engine.NewHTTPClient()
	}
	return p
}

// Probe runs the direct, stripped and search checks for imageURL, which must
// be absolute. Check failures never surface as errors: an unreachable or
// non-image URL simply contributes no variant.
func (p *Prober) Probe(ctx context.Context, imageURL, alt string) Outcome {
	done := p.metrics.ProbeStarted()
	defer done()

	var (
		out      Outcome
		accepted []models.ResolvedImage
	)

	if img, err := p.head(ctx, imageURL, alt); err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", CheckDirect, err))
	} else if img != nil {
		accepted = append(accepted, *img)
	}
	p.metrics.ObserveCheck(CheckDirect, len(accepted) > 0)

	if stripped := urlnorm.StripCompressionHints(imageURL); stripped != imageURL {
		before := len(accepted)
		if img, err := p.head(ctx, stripped, alt); err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", CheckStripped, err))
		} else if img != nil {
			accepted = append(accepted, *img)
		}
		p.metrics.ObserveCheck(CheckStripped, len(accepted) > before)
	}

	found, err := p.search.Lookup(ctx, imageURL, alt)
	if err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", CheckSearch, err))
	}
	before := len(accepted)
	for _, img := range found {
		if img.URL == "" {
			continue
		}
		if img.Alt == "" {
			img.Alt = alt
		}
		accepted = append(accepted, img)
	}
	p.metrics.ObserveCheck(CheckSearch, len(accepted) > before)

	if best, ok := Largest(accepted); ok {
		out.Image = &best
	}
	return out
}

// Largest returns the image with the greatest Size. The earliest wins a tie.
func Largest(imgs []models.ResolvedImage) (models.ResolvedImage, bool) {
	if len(imgs) == 0 {
		return models.ResolvedImage{}, false
	}
	best := imgs[0]
	for _, img := range imgs[1:] {
		if img.Size > best.Size {
			best = img
		}
	}
	return best, true
}

// head issues one HEAD request. It returns (nil, nil) when the origin answered
// with something that is not a 200 image response.
func (p *Prober) head(ctx context.Context, target, alt string) (*models.ResolvedImage, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", engine.ChromeUA)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}
	ct := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Type")))
	if !strings.HasPrefix(ct, "image/") {
		return nil, nil
	}

	return &models.ResolvedImage{
		URL:  target,
		Alt:  alt,
		Type: Subtype(ct),
		Size: contentLength(resp.Header.Get("Content-Length")),
	}, nil
}

// Subtype returns the lowercase subtype of a content type without parameters,
// "unknown" when there is none.
func Subtype(contentType string) string {
	_, sub, found := strings.Cut(contentType, "/")
	if !found {
		return "unknown"
	}
	sub, _, _ = strings.Cut(sub, ";")
	sub = strings.ToLower(strings.TrimSpace(sub))
	if sub == "" {
		return "unknown"
	}
	return sub
}

func contentLength(v string) uint64 {
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
