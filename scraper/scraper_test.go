package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/imagescout/engine"
	"github.com/use-agent/imagescout/metrics"
	"github.com/use-agent/imagescout/models"
	"github.com/use-agent/imagescout/prober"
)

func newScraper(srv *httptest.Server, groupSize int, m *metrics.Metrics) *Scraper {
	return New(
		engine.NewHTTPEngine(srv.Client()),
		prober.New(prober.WithClient(srv.Client())),
		Config{GroupSize: groupSize},
		m,
	)
}

func TestScrape_SingleImage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gallery/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><img src="a.jpg"></body></html>`))
	})
	mux.HandleFunc("/gallery/a.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Length", "12000")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res, err := newScraper(srv, 0, nil).Scrape(context.Background(), srv.URL+"/gallery/")
	require.NoError(t, err)
	assert.Equal(t, []models.ResolvedImage{{URL: srv.URL + "/gallery/a.jpg", Alt: "image", Type: "jpeg", Size: 12000}}, res.Images)
	assert.Equal(t, 1, res.Candidates)
	assert.Equal(t, "http", res.Engine)
	assert.Empty(t, res.Failures)
}

func TestScrape_MixedCandidates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
			<img src="/img/foo.jpg?w=200&q=80" alt="foo">
			<img src="/img/missing.png" alt="gone">
			<img src="/img/doc.html" alt="not an image">
			<img src="/img/zero.gif" alt="zero">
			<img src="http://[::1" alt="broken">
			<img src="/img/b.png" alt="b">
		</body></html>`))
	})
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.RequestURI() {
		case "/img/foo.jpg?w=200&q=80":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Header().Set("Content-Length", "5000")
		case "/img/foo.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Header().Set("Content-Length", "50000")
		case "/img/doc.html":
			w.Header().Set("Content-Type", "text/html")
			w.Header().Set("Content-Length", "10")
		case "/img/zero.gif":
			w.Header().Set("Content-Type", "image/gif")
			w.Header().Set("Content-Length", "0")
		case "/img/b.png":
			w.Header().Set("Content-Type", "image/png")
			w.Header().Set("Content-Length", "800")
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res, err := newScraper(srv, 2, nil).Scrape(context.Background(), srv.URL+"/")
	require.NoError(t, err)

	require.Len(t, res.Images, 2)
	assert.Equal(t, srv.URL+"/img/foo.jpg", res.Images[0].URL)
	assert.EqualValues(t, 50000, res.Images[0].Size)
	assert.Equal(t, "foo", res.Images[0].Alt)
	assert.Equal(t, srv.URL+"/img/b.png", res.Images[1].URL)

	assert.Equal(t, 6, res.Candidates)
	assert.LessOrEqual(t, len(res.Images), res.Candidates)
	for _, img := range res.Images {
		assert.NotEmpty(t, img.URL)
		assert.Positive(t, img.Size)
	}

	stages := map[string]string{}
	for _, f := range res.Failures {
		stages[f.Alt] = f.Stage
	}
	assert.Equal(t, map[string]string{
		"gone":         models.StageProbe,
		"not an image": models.StageProbe,
		"zero":         models.StageProbe,
		"broken":       models.StageResolve,
	}, stages)
}

func TestScrape_PageErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	s := newScraper(srv, 0, nil)

	_, err := s.Scrape(context.Background(), srv.URL+"/nope")
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.ErrCodeUpstreamUnavailable))

	for _, bad := range []string{"", "not a url", "ftp://example.com/x", "/relative/page"} {
		_, err := s.Scrape(context.Background(), bad)
		require.Error(t, err, bad)
		assert.True(t, models.IsCode(err, models.ErrCodeInvalidInput), bad)
	}
}

func TestScrape_NoImagesIsEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<p>text only</p>`))
	}))
	defer srv.Close()

	res, err := newScraper(srv, 0, nil).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Empty(t, res.Images)
	assert.Zero(t, res.Candidates)
}

func TestScrape_GroupCapsInFlightProbes(t *testing.T) {
	const candidates = 17
	var inFlight, peak atomic.Int32

	var markup strings.Builder
	for i := range candidates {
		fmt.Fprintf(&markup, `<img src="/img/%d.jpg">`, i)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(markup.String()))
	})
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Length", "10")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	res, err := newScraper(srv, 5, m).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, res.Images, candidates)
	for i, img := range res.Images {
		assert.Equal(t, fmt.Sprintf("%s/img/%d.jpg", srv.URL, i), img.URL, "discovery order kept")
	}
	assert.LessOrEqual(t, peak.Load(), int32(5))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScrapesTotal.WithLabelValues(metrics.OutcomeOK, "http")))
}

func TestScrape_CandidateTimeoutDoesNotFailSiblings(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<img src="/slow.jpg"><img src="/fast.jpg">`))
	})
	mux.HandleFunc("/slow.jpg", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	mux.HandleFunc("/fast.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Length", "42")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	defer close(release)

	s := New(
		engine.NewHTTPEngine(srv.Client()),
		prober.New(prober.WithClient(srv.Client()), prober.WithTimeout(50*time.Millisecond)),
		Config{},
		nil,
	)
	res, err := s.Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, res.Images, 1)
	assert.Equal(t, srv.URL+"/fast.jpg", res.Images[0].URL)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, srv.URL+"/slow.jpg", res.Failures[0].URL)
}

func TestSelect(t *testing.T) {
	imgs := []models.ResolvedImage{
		{URL: "a", Type: "jpeg", Size: 100},
		{URL: "b", Type: "png", Size: 2000},
		{URL: "c", Type: "jpeg", Size: 5000},
		{URL: "d", Type: "jpeg", Size: 90000},
	}

	req := &models.ScrapeRequest{Type: "JPEG", MinSize: 200}
	req.Defaults()
	got, total := Select(req, imgs)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{"c", "d"}, urls(got))

	req = &models.ScrapeRequest{Type: "all", Page: 2, PerPage: 3}
	req.Defaults()
	got, total = Select(req, imgs)
	assert.Equal(t, 4, total)
	assert.Equal(t, []string{"d"}, urls(got))

	req = &models.ScrapeRequest{Page: 5, PerPage: 3}
	got, total = Select(req, imgs)
	assert.Equal(t, 4, total)
	assert.Empty(t, got)

	req = &models.ScrapeRequest{MaxSize: 2000}
	got, _ = Select(req, imgs)
	assert.Equal(t, []string{"a", "b"}, urls(got))
}

func urls(imgs []models.ResolvedImage) []string {
	out := make([]string, len(imgs))
	for i, img := range imgs {
		out[i] = img.URL
	}
	return out
}
