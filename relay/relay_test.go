package relay

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/imagescout/engine"
	"github.com/use-agent/imagescout/models"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01")

func TestFetch_PassesBytesThrough(t *testing.T) {
	var gotReferer, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	}))
	defer srv.Close()

	img, err := New(srv.Client(), Config{}, nil).Fetch(context.Background(), srv.URL+"/deep/path/x.png?v=2")
	require.NoError(t, err)
	assert.Equal(t, pngBytes, img.Body)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, srv.URL, gotReferer)
	assert.Equal(t, engine.ChromeUA, gotUA)
}

func TestFetch_ContentTypeFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		_, _ = w.Write([]byte("raw"))
	}))
	defer srv.Close()

	img, err := New(srv.Client(), Config{}, nil).Fetch(context.Background(), srv.URL+"/a")
	require.NoError(t, err)
	assert.Equal(t, FallbackContentType, img.ContentType)
}

func TestFetch_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/big" {
			_, _ = w.Write(bytes.Repeat([]byte{1}, 64))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()
	rl := New(srv.Client(), Config{MaxBytes: 32}, nil)

	_, err := rl.Fetch(context.Background(), srv.URL+"/missing.jpg")
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.ErrCodeUpstreamUnavailable))

	_, err = rl.Fetch(context.Background(), srv.URL+"/big")
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.ErrCodeUpstreamUnavailable))
	assert.Contains(t, err.Error(), "exceeds")

	for _, bad := range []string{"", "  ", "relative.jpg", "javascript:alert(1)"} {
		_, err = rl.Fetch(context.Background(), bad)
		require.Error(t, err, bad)
		assert.True(t, models.IsCode(err, models.ErrCodeInvalidInput), bad)
	}
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	_, err := New(srv.Client(), Config{Timeout: 50 * time.Millisecond}, nil).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.ErrCodeUpstreamTimeout))
}

func TestFetch_CoalescesConcurrentRequests(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	}))
	defer srv.Close()
	rl := New(srv.Client(), Config{}, nil)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*Image, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			img, err := rl.Fetch(context.Background(), srv.URL+"/same.png")
			if err == nil {
				results[i] = img
			}
		}()
	}
	// Let every caller join the in-flight fetch before it completes.
	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, hits.Load())
	for _, img := range results {
		require.NotNil(t, img)
		assert.Equal(t, pngBytes, img.Body)
	}
}

func TestFetch_CallerCancelDoesNotAbortSharedFetch(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write(pngBytes)
	}))
	defer srv.Close()
	rl := New(srv.Client(), Config{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := rl.Fetch(ctx, srv.URL+"/shared.png")
		errc <- err
	}()
	second := make(chan *Image, 1)
	go func() {
		img, _ := rl.Fetch(context.Background(), srv.URL+"/shared.png")
		second <- img
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	require.Error(t, <-errc)

	close(release)
	img := <-second
	require.NotNil(t, img)
	assert.Equal(t, pngBytes, img.Body)
}
