package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/use-agent/imagescout/api/handler"
	"github.com/use-agent/imagescout/api/middleware"
	"github.com/use-agent/imagescout/archiver"
	"github.com/use-agent/imagescout/config"
	"github.com/use-agent/imagescout/jobs"
	"github.com/use-agent/imagescout/relay"
	"github.com/use-agent/imagescout/scraper"
)

// Services bundles the components the routes are served by.
type Services struct {
	Scraper  *scraper.Scraper
	Relay    *relay.Relay
	Archiver *archiver.Archiver
	Jobs     *jobs.Runner

	// EngineMode is reported by /health.
	EngineMode string

	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger → CORS
//	API:     Auth (if enabled) → RateLimit
//
// Health and metrics stay outside auth so probes and scrapers always work.
func NewRouter(svc Services, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-API-Key"},
		ExposeHeaders: []string{"Content-Disposition", "X-Archive-Succeeded", "X-Archive-Total"},
		MaxAge:        12 * time.Hour,
	}))

	if cfg.Metrics.Enabled && svc.Gatherer != nil {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(svc.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")

	jobStore := ""
	if svc.Jobs != nil {
		jobStore = svc.Jobs.Store().Driver()
	}
	v1.GET("/health", handler.Health(svc.EngineMode, jobStore, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/scrape", handler.Scrape(svc.Scraper))

	protected.GET("/proxy", handler.Proxy(svc.Relay))
	protected.GET("/download", handler.Download(svc.Relay))

	protected.POST("/archive", handler.Archive(svc.Archiver))
	if svc.Jobs != nil {
		protected.POST("/archive/jobs", handler.PostArchiveJob(svc.Jobs))
		protected.GET("/archive/jobs/:id", handler.GetArchiveJob(svc.Jobs.Store()))
		protected.GET("/archive/jobs/:id/download", handler.DownloadArchiveJob(svc.Jobs.Store()))
	}

	return r
}
