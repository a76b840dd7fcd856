package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/imagescout/config"
	"github.com/use-agent/imagescout/models"
	"github.com/ysmood/gson"
)

// RodEngine renders pages in headless Chrome so that images inserted by
// scripts (lazy loaders, SPA shells) are present in the extracted markup.
// The browser is launched on first use and pages are pooled.
type RodEngine struct {
	cfg config.BrowserConfig

	once     sync.Once
	startErr error
	browser  *rod.Browser
	pagePool rod.Pool[rod.Page]
	health   *pageHealth
	active   atomic.Int32
}

// NewRodEngine creates a RodEngine. No browser is started until Fetch.
func NewRodEngine(cfg config.BrowserConfig) *RodEngine {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 4
	}
	return &RodEngine{cfg: cfg, health: newPageHealth()}
}

func (e *RodEngine) Name() string { return "rod" }

// ActivePages returns the number of pages currently checked out.
func (e *RodEngine) ActivePages() int { return int(e.active.Load()) }

func (e *RodEngine) start() error {
	e.once.Do(func() {
		l := launcher.New().
			Headless(e.cfg.Headless).
			NoSandbox(e.cfg.NoSandbox)
		if e.cfg.BrowserBin != "" {
			l = l.Bin(e.cfg.BrowserBin)
		}
		if e.cfg.Proxy != "" {
			l = l.Proxy(e.cfg.Proxy)
		}
		l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
		l.Delete(flags.Flag("enable-automation"))
		l.Set(flags.Flag("disable-dev-shm-usage"))
		l.Set(flags.Flag("disable-extensions"))
		l.Set(flags.Flag("no-first-run"))

		controlURL, err := l.Launch()
		if err != nil {
			e.startErr = models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
			return
		}
		browser := rod.New().ControlURL(controlURL)
		if err := browser.Connect(); err != nil {
			e.startErr = models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
			return
		}
		e.browser = browser
		e.pagePool = rod.NewPagePool(e.cfg.MaxPages)
		slog.Info("browser launched", "controlURL", controlURL, "maxPages", e.cfg.MaxPages)
	})
	return e.startErr
}

// Fetch navigates a pooled tab to req.URL, waits for the DOM to settle and
// returns the rendered markup.
func (e *RodEngine) Fetch(ctx context.Context, req *FetchRequest) (_ *FetchResult, err error) {
	if err := e.start(); err != nil {
		return nil, err
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	e.active.Add(1)
	defer e.active.Add(-1)

	page, err := e.pagePool.Get(func() (*rod.Page, error) {
		return e.browser.Page(proto.TargetCreateTarget{})
	})
	if err != nil {
		e.pagePool.Put(nil)
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to acquire page from pool", err)
	}
	defer func() {
		if e.health.record(page, err == nil) {
			// Free the slot; the next Get opens a fresh tab.
			_ = page.Close()
			e.pagePool.Put(nil)
			return
		}
		// about:blank on the context-free page so cleanup works after a timeout.
		if navErr := page.Navigate("about:blank"); navErr != nil {
			slog.Warn("cleanup: failed to navigate to about:blank", "error", navErr)
		}
		e.pagePool.Put(page)
	}()

	if e.cfg.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		}
	}
	_ = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ChromeUA})
	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: proto.NetworkHeaders{"Accept-Language": gson.New("en-US,en;q=0.9")},
	}.Call(page)

	if router := interceptRequests(page, e.cfg.BlockResources, e.cfg.BlockAds); router != nil {
		defer func() { _ = router.Stop() }()
	}

	p := page.Context(ctx)
	if err := p.Navigate(req.URL); err != nil {
		return nil, browserError(err, "navigation to target URL failed")
	}
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", err)
	}

	// Scroll once so IntersectionObserver-driven lazy loaders fire.
	_, _ = p.Eval(`() => window.scrollTo(0, document.body ? document.body.scrollHeight : 0)`)
	_ = p.WaitDOMStable(300*time.Millisecond, 0.1)

	statusCode := 0
	if res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`); err == nil {
		statusCode = res.Value.Int()
	}
	if statusCode >= 300 {
		return nil, models.NewScrapeError(models.ErrCodeUpstreamUnavailable, "page returned an error status", nil)
	}

	rawHTML, err := p.HTML()
	if err != nil {
		return nil, browserError(err, "failed to extract page HTML")
	}

	finalURL := req.URL
	if res, err := p.Eval(`() => window.location.href`); err == nil && res.Value.Str() != "" {
		finalURL = res.Value.Str()
	}

	return &FetchResult{
		HTML:       rawHTML,
		StatusCode: statusCode,
		FinalURL:   finalURL,
		EngineName: e.Name(),
	}, nil
}

// Close drains the page pool and kills the browser process, if one was started.
func (e *RodEngine) Close() {
	if e.browser == nil {
		return
	}
	e.pagePool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	e.health.reset()
	if err := e.browser.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
}

func browserError(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeUpstreamTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeUpstreamTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeUpstreamUnavailable, msg, err)
	}
}
