package engine

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Dispatch modes.
const (
	ModeHTTP    = "http"
	ModeBrowser = "browser"
	ModeAuto    = "auto"
)

// shellRootSelector matches the mount points of common client-side frameworks.
const shellRootSelector = "#root:empty, #app:empty, #__next:empty, #__nuxt:empty"

// Dispatcher picks the engine that produces a page's markup.
//
// In auto mode the plain HTTP engine runs first. When its markup carries no
// <img> tags and looks like a script-rendered shell, the page is rendered
// again in the browser. Domains that needed the browser are remembered so the
// HTTP attempt is skipped next time. Fetch failures are never escalated: a
// page that answers 404 over HTTP is not retried in a browser.
type Dispatcher struct {
	mode    string
	http    Engine
	browser Engine
	memory  *DomainMemory
}

// NewDispatcher creates a Dispatcher. browser may be nil, which forces http
// mode. memory may be nil, which disables domain memory.
func NewDispatcher(mode string, http, browser Engine, memory *DomainMemory) *Dispatcher {
	switch mode {
	case ModeHTTP, ModeBrowser, ModeAuto:
	default:
		mode = ModeHTTP
	}
	if browser == nil {
		mode = ModeHTTP
	}
	return &Dispatcher{mode: mode, http: http, browser: browser, memory: memory}
}

// Mode returns the effective dispatch mode.
func (d *Dispatcher) Mode() string { return d.mode }

func (d *Dispatcher) Name() string { return "dispatcher/" + d.mode }

// Fetch satisfies Engine so the dispatcher can stand in wherever a single
// engine is expected.
func (d *Dispatcher) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	switch d.mode {
	case ModeBrowser:
		return d.browser.Fetch(ctx, req)
	case ModeAuto:
		return d.auto(ctx, req)
	default:
		return d.http.Fetch(ctx, req)
	}
}

func (d *Dispatcher) auto(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	domain := extractDomain(req.URL)

	if d.memory != nil && d.memory.Get(domain) == d.browser.Name() {
		slog.Debug("domain memory hit", "domain", domain, "engine", d.browser.Name())
		result, err := d.browser.Fetch(ctx, req)
		if err == nil {
			return result, nil
		}
		slog.Info("remembered engine failed, falling back to http",
			"domain", domain, "engine", d.browser.Name(), "error", err)
		d.memory.Delete(domain)
	}

	result, err := d.http.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if !NeedsBrowser(result.HTML) {
		return result, nil
	}

	slog.Info("page looks script-rendered, escalating to browser", "url", req.URL)
	rendered, err := d.browser.Fetch(ctx, req)
	if err != nil {
		slog.Warn("browser render failed, using http markup", "url", req.URL, "error", err)
		return result, nil
	}
	if d.memory != nil {
		d.memory.Set(domain, d.browser.Name())
	}
	return rendered, nil
}

// reRequiresJS matches <noscript> notices like "Please enable JavaScript".
var reRequiresJS = regexp.MustCompile(`(?i)(enable|activate|turn on|requires?)\s+javascript`)

// NeedsBrowser reports whether markup fetched without JavaScript is unlikely
// to contain the page's images: no <img> elements, and either a known SPA
// mount point, a "requires JavaScript" notice or a script-heavy page with
// almost no visible text.
func NeedsBrowser(markup string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return false
	}
	if doc.Find("img").Length() > 0 {
		return false
	}
	if doc.Find(shellRootSelector).Length() > 0 {
		return true
	}
	if reRequiresJS.MatchString(doc.Find("noscript").Text()) {
		return true
	}
	scripts := doc.Find("script").Length()
	doc.Find("script, style, noscript").Remove()
	text := strings.TrimSpace(doc.Find("body").Text())
	return scripts >= 3 && len(text) < 512
}

// extractDomain parses the hostname from a URL string.
func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}

// Closer is implemented by engines holding external resources.
type Closer interface {
	Close()
}

// Close releases the browser engine, if any.
func (d *Dispatcher) Close() {
	if c, ok := d.browser.(Closer); ok {
		c.Close()
	}
	if d.memory != nil {
		d.memory.Stop()
	}
}
