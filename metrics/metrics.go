// Package metrics holds the Prometheus collectors for imagescout.
//
// All recording methods are safe on a nil *Metrics so components can run
// without instrumentation in tests and in the CLI.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "imagescout"

// Outcome labels.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
	OutcomeEmpty  = "empty"
)

// Metrics holds all collectors.
type Metrics struct {
	ScrapesTotal   *prometheus.CounterVec
	ScrapeDuration prometheus.Histogram
	ImagesFound    prometheus.Histogram

	ProbeChecksTotal *prometheus.CounterVec
	ProbesInFlight   prometheus.Gauge

	RelayFetchesTotal *prometheus.CounterVec
	RelayBytesTotal   prometheus.Counter
	RelaysInFlight    prometheus.Gauge

	ArchiveItemsTotal *prometheus.CounterVec
	ArchiveJobsActive prometheus.Gauge
}

// New creates and registers all collectors on reg (the default registerer
// when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	m := &Metrics{}
	m.initScrape(factory)
	m.initProbe(factory)
	m.initRelay(factory)
	m.initArchive(factory)
	return m
}

func (m *Metrics) initScrape(factory promauto.Factory) {
	m.ScrapesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scrape",
			Name:      "requests_total",
			Help:      "Total number of page scrapes by outcome",
		},
		[]string{"outcome", "engine"},
	)
	m.ScrapeDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scrape",
			Name:      "duration_seconds",
			Help:      "Wall time of a full scrape including probes",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)
	m.ImagesFound = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scrape",
			Name:      "images_found",
			Help:      "Number of resolved images per scrape",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
}

func (m *Metrics) initProbe(factory promauto.Factory) {
	m.ProbeChecksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "checks_total",
			Help:      "Total number of metadata checks by check kind and outcome",
		},
		[]string{"check", "outcome"},
	)
	m.ProbesInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "in_flight",
			Help:      "Number of candidates currently being probed",
		},
	)
}

func (m *Metrics) initRelay(factory promauto.Factory) {
	m.RelayFetchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "fetches_total",
			Help:      "Total number of relayed image fetches by outcome",
		},
		[]string{"outcome"},
	)
	m.RelayBytesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "bytes_total",
			Help:      "Total image bytes relayed",
		},
	)
	m.RelaysInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "in_flight",
			Help:      "Number of image fetches currently in progress",
		},
	)
}

func (m *Metrics) initArchive(factory promauto.Factory) {
	m.ArchiveItemsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "items_total",
			Help:      "Total number of archive entries by outcome",
		},
		[]string{"outcome"},
	)
	m.ArchiveJobsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "jobs_active",
			Help:      "Number of async archive jobs still processing",
		},
	)
}

// ObserveScrape records one finished scrape.
func (m *Metrics) ObserveScrape(outcome, engine string, images int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ScrapesTotal.WithLabelValues(outcome, engine).Inc()
	m.ScrapeDuration.Observe(elapsed.Seconds())
	if outcome == OutcomeOK {
		m.ImagesFound.Observe(float64(images))
	}
}

// ProbeStarted marks a candidate as being probed and returns the matching
// done func.
func (m *Metrics) ProbeStarted() func() {
	if m == nil {
		return func() {}
	}
	m.ProbesInFlight.Inc()
	return m.ProbesInFlight.Dec
}

// ObserveCheck records one metadata check ("direct", "stripped", "search").
func (m *Metrics) ObserveCheck(check string, ok bool) {
	if m == nil {
		return
	}
	m.ProbeChecksTotal.WithLabelValues(check, outcome(ok)).Inc()
}

// RelayStarted marks an image fetch as in progress and returns the matching
// done func.
func (m *Metrics) RelayStarted() func() {
	if m == nil {
		return func() {}
	}
	m.RelaysInFlight.Inc()
	return m.RelaysInFlight.Dec
}

// ObserveRelay records one relayed fetch.
func (m *Metrics) ObserveRelay(ok bool, bytes int) {
	if m == nil {
		return
	}
	m.RelayFetchesTotal.WithLabelValues(outcome(ok)).Inc()
	if ok {
		m.RelayBytesTotal.Add(float64(bytes))
	}
}

// ObserveArchiveItem records one archive entry attempt.
func (m *Metrics) ObserveArchiveItem(ok bool) {
	if m == nil {
		return
	}
	m.ArchiveItemsTotal.WithLabelValues(outcome(ok)).Inc()
}

// JobStarted marks an async archive job as active and returns the matching
// done func.
func (m *Metrics) JobStarted() func() {
	if m == nil {
		return func() {}
	}
	m.ArchiveJobsActive.Inc()
	return m.ArchiveJobsActive.Dec
}

func outcome(ok bool) string {
	if ok {
		return OutcomeOK
	}
	return OutcomeFailed
}
