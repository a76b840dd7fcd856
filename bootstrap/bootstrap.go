// Package bootstrap assembles the imagescout component graph from a Config.
package bootstrap

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/use-agent/imagescout/api"
	"github.com/use-agent/imagescout/archiver"
	"github.com/use-agent/imagescout/config"
	"github.com/use-agent/imagescout/engine"
	"github.com/use-agent/imagescout/jobs"
	"github.com/use-agent/imagescout/metrics"
	"github.com/use-agent/imagescout/prober"
	"github.com/use-agent/imagescout/relay"
	"github.com/use-agent/imagescout/scraper"
	"github.com/use-agent/imagescout/webhook"
)

// domainMemorySweep is how often expired engine choices are pruned.
const domainMemorySweep = time.Hour

// App holds every long-lived component.
type App struct {
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Dispatcher *engine.Dispatcher
	Scraper    *scraper.Scraper
	Relay      *relay.Relay
	Archiver   *archiver.Archiver
	Jobs       *jobs.Runner
}

// New builds the components. withJobs=false skips the job store, which the
// CLI does not need and which may require Redis.
func New(cfg *config.Config, withJobs bool) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	client := engine.NewHTTPClient()

	var browser engine.Engine
	if cfg.Engine.Mode != engine.ModeHTTP {
		browser = engine.NewRodEngine(cfg.Engine.Browser)
	}
	memory := engine.NewDomainMemory(cfg.Engine.MemoryTTL, domainMemorySweep)
	dispatcher := engine.NewDispatcher(cfg.Engine.Mode, engine.NewHTTPEngine(client), browser, memory)

	pr := prober.New(
		prober.WithClient(client),
		prober.WithTimeout(cfg.Fetch.ProbeTimeout),
		prober.WithMetrics(m),
	)
	sc := scraper.New(dispatcher, pr, scraper.Config{
		GroupSize:   cfg.Batch.ProbeGroupSize,
		PageTimeout: cfg.Fetch.PageTimeout,
	}, m)

	rl := relay.New(client, relay.Config{
		Timeout:  cfg.Fetch.RelayTimeout,
		MaxBytes: cfg.Fetch.MaxImageBytes,
	}, m)
	arch := archiver.New(rl, cfg.Batch.ArchiveGroupSize, m)

	app := &App{
		Registry:   reg,
		Metrics:    m,
		Dispatcher: dispatcher,
		Scraper:    sc,
		Relay:      rl,
		Archiver:   arch,
	}

	if withJobs {
		store, err := jobs.NewStore(cfg.Jobs)
		if err != nil {
			dispatcher.Close()
			return nil, fmt.Errorf("job store: %w", err)
		}
		app.Jobs = jobs.NewRunner(store, arch, webhook.NewSender(), m)
	}

	return app, nil
}

// Services exposes the components the HTTP router needs.
func (a *App) Services() api.Services {
	return api.Services{
		Scraper:    a.Scraper,
		Relay:      a.Relay,
		Archiver:   a.Archiver,
		Jobs:       a.Jobs,
		EngineMode: a.Dispatcher.Mode(),
		Gatherer:   a.Registry,
	}
}

// Close waits for running archive jobs, then releases the browser and the
// job store.
func (a *App) Close() {
	if a.Jobs != nil {
		a.Jobs.Wait()
		if err := a.Jobs.Store().Close(); err != nil {
			slog.Warn("job store close failed", "error", err)
		}
	}
	a.Dispatcher.Close()
}

// InitLogger configures slog based on the LogConfig.
func InitLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
