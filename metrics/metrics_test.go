package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveScrape(OutcomeOK, "http", 3, time.Second)
		m.ProbeStarted()()
		m.ObserveCheck("direct", true)
		m.RelayStarted()()
		m.ObserveRelay(true, 10)
		m.ObserveArchiveItem(false)
		m.JobStarted()()
	})
}

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveScrape(OutcomeOK, "http", 4, 200*time.Millisecond)
	m.ObserveScrape(OutcomeFailed, "http", 0, time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScrapesTotal.WithLabelValues(OutcomeOK, "http")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScrapesTotal.WithLabelValues(OutcomeFailed, "http")))

	done := m.ProbeStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProbesInFlight))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ProbesInFlight))

	m.ObserveRelay(true, 1024)
	m.ObserveRelay(false, 0)
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.RelayBytesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelayFetchesTotal.WithLabelValues(OutcomeFailed)))

	m.ObserveArchiveItem(true)
	m.ObserveArchiveItem(true)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ArchiveItemsTotal.WithLabelValues(OutcomeOK)))
}
