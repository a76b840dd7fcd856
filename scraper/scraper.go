// Package scraper turns one page URL into the list of best-quality images on
// that page.
package scraper

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/use-agent/imagescout/engine"
	"github.com/use-agent/imagescout/extractor"
	"github.com/use-agent/imagescout/metrics"
	"github.com/use-agent/imagescout/models"
	"github.com/use-agent/imagescout/prober"
	"github.com/use-agent/imagescout/urlnorm"
	"golang.org/x/sync/errgroup"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultGroupSize   = 5
	DefaultPageTimeout = 15 * time.Second
)

// Config tunes a Scraper.
type Config struct {
	// GroupSize is the number of candidates probed concurrently. The next
	// group starts only after every member of the current one has finished.
	GroupSize int

	// PageTimeout bounds the page fetch.
	PageTimeout time.Duration
}

// Scraper fetches a page, extracts its image candidates and probes them in
// fixed-size groups. It is safe for concurrent use.
type Scraper struct {
	engine  engine.Engine
	prober  *prober.Prober
	cfg     Config
	metrics *metrics.Metrics
}

// New creates a Scraper. m may be nil.
func New(eng engine.Engine, p *prober.Prober, cfg Config, m *metrics.Metrics) *Scraper {
	if cfg.GroupSize <= 0 {
		cfg.GroupSize = DefaultGroupSize
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = DefaultPageTimeout
	}
	return &Scraper{engine: eng, prober: p, cfg: cfg, metrics: m}
}

// Scrape returns every valid image found on pageURL, in discovery order.
//
// Only a bad URL or a failed page fetch is returned as an error. Candidates
// that fail to resolve or probe are dropped and listed in Failures; a page
// with no usable images yields an empty result.
func (s *Scraper) Scrape(ctx context.Context, pageURL string) (*models.ScrapeResult, error) {
	start := time.Now()
	engineName := s.engine.Name()

	result, err := s.scrape(ctx, pageURL)
	if err != nil {
		s.metrics.ObserveScrape(metrics.OutcomeFailed, engineName, 0, time.Since(start))
		return nil, err
	}
	outcome := metrics.OutcomeOK
	if len(result.Images) == 0 {
		outcome = metrics.OutcomeEmpty
	}
	s.metrics.ObserveScrape(outcome, result.Engine, len(result.Images), time.Since(start))
	return result, nil
}

func (s *Scraper) scrape(ctx context.Context, pageURL string) (*models.ScrapeResult, error) {
	u, err := urlnorm.ParseAbsolute(strings.TrimSpace(pageURL))
	if err != nil {
		return nil, err
	}

	page, err := s.engine.Fetch(ctx, &engine.FetchRequest{URL: u.String(), Timeout: s.cfg.PageTimeout})
	if err != nil {
		return nil, err
	}

	doc, err := extractor.ParseHTML(page.HTML)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeUpstreamUnavailable, "failed to parse page", err)
	}
	candidates := extractor.Extract(doc)

	base := page.FinalURL
	if base == "" {
		base = u.String()
	}
	slog.Debug("candidates extracted", "url", base, "count", len(candidates), "engine", page.EngineName)

	images, failures, err := s.probeAll(ctx, base, candidates)
	if err != nil {
		return nil, err
	}

	return &models.ScrapeResult{
		PageURL:    base,
		Candidates: len(candidates),
		Images:     images,
		Failures:   failures,
		Engine:     page.EngineName,
	}, nil
}

// probeAll resolves and probes candidates group by group. Each candidate
// writes only its own slot, so discovery order survives the fan-out.
func (s *Scraper) probeAll(ctx context.Context, base string, candidates []models.ImageCandidate) ([]models.ResolvedImage, []models.ItemFailure, error) {
	found := make([]*models.ResolvedImage, len(candidates))
	failed := make([]*models.ItemFailure, len(candidates))

	for groupStart := 0; groupStart < len(candidates); groupStart += s.cfg.GroupSize {
		if err := ctx.Err(); err != nil {
			return nil, nil, engine.UpstreamError("scrape interrupted", err)
		}
		groupEnd := min(groupStart+s.cfg.GroupSize, len(candidates))

		var g errgroup.Group
		for i := groupStart; i < groupEnd; i++ {
			g.Go(func() error {
				found[i], failed[i] = s.resolveOne(ctx, base, candidates[i])
				return nil
			})
		}
		_ = g.Wait()
	}

	images := make([]models.ResolvedImage, 0, len(candidates))
	var failures []models.ItemFailure
	for i := range candidates {
		if found[i] != nil {
			images = append(images, *found[i])
		}
		if failed[i] != nil {
			failures = append(failures, *failed[i])
		}
	}
	return images, failures, nil
}

func (s *Scraper) resolveOne(ctx context.Context, base string, c models.ImageCandidate) (*models.ResolvedImage, *models.ItemFailure) {
	abs, err := urlnorm.Resolve(base, c.RawReference)
	if err != nil {
		return nil, &models.ItemFailure{URL: c.RawReference, Alt: c.SourceElementAlt, Stage: models.StageResolve, Reason: err.Error()}
	}

	out := s.prober.Probe(ctx, abs, c.SourceElementAlt)
	switch {
	case out.Image == nil:
		reason := "no image response"
		if len(out.Errors) > 0 {
			reason = strings.Join(out.Errors, "; ")
		}
		return nil, &models.ItemFailure{URL: abs, Alt: c.SourceElementAlt, Stage: models.StageProbe, Reason: reason}
	case !out.Image.Valid():
		return nil, &models.ItemFailure{URL: abs, Alt: c.SourceElementAlt, Stage: models.StageProbe, Reason: "origin reported no size"}
	}
	return out.Image, nil
}

// Select applies req's type and size filters to imgs and then cuts the
// requested page. total is the number of images that passed the filters.
func Select(req *models.ScrapeRequest, imgs []models.ResolvedImage) (page []models.ResolvedImage, total int) {
	matched := make([]models.ResolvedImage, 0, len(imgs))
	for _, img := range imgs {
		if req.Matches(img) {
			matched = append(matched, img)
		}
	}
	total = len(matched)
	if req.Page <= 0 || req.PerPage <= 0 {
		return matched, total
	}
	from := (req.Page - 1) * req.PerPage
	if from >= total {
		return []models.ResolvedImage{}, total
	}
	to := min(from+req.PerPage, total)
	return matched[from:to], total
}

// Query scrapes req.URL and shapes the result for the API: filters,
// pagination and timing applied.
func (s *Scraper) Query(ctx context.Context, req *models.ScrapeRequest) (*models.ScrapeResponse, error) {
	start := time.Now()

	result, err := s.Scrape(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	images, total := Select(req, result.Images)
	return &models.ScrapeResponse{
		Images:     images,
		Total:      total,
		Page:       req.Page,
		PerPage:    req.PerPage,
		Candidates: result.Candidates,
		Failures:   result.Failures,
		PageURL:    result.PageURL,
		EngineUsed: result.Engine,
		Timing:     models.TimingInfo{TotalMs: time.Since(start).Milliseconds()},
	}, nil
}
