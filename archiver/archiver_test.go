package archiver

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/imagescout/models"
	"github.com/use-agent/imagescout/relay"
)

type fakeFetcher struct {
	fail     map[string]bool
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (*relay.Image, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(f.delay)
	if f.fail[rawURL] {
		return nil, models.NewScrapeError(models.ErrCodeUpstreamUnavailable, "image returned HTTP 404", nil)
	}
	return &relay.Image{Body: []byte("body of " + rawURL), ContentType: "image/jpeg"}, nil
}

func images(n int) []models.ResolvedImage {
	out := make([]models.ResolvedImage, n)
	for i := range out {
		out[i] = models.ResolvedImage{URL: fmt.Sprintf("https://cdn.example/%d.jpg", i), Alt: "pic", Type: "jpeg", Size: 10}
	}
	return out
}

func TestArchive_PartialFailure(t *testing.T) {
	imgs := images(10)
	f := &fakeFetcher{
		delay: 5 * time.Millisecond,
		fail: map[string]bool{
			imgs[1].URL: true,
			imgs[4].URL: true,
			imgs[9].URL: true,
		},
	}

	var progress []models.ArchiveProgress
	res, err := New(f, 3, nil).Archive(context.Background(), imgs, func(p models.ArchiveProgress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)
	assert.Equal(t, 7, res.Succeeded)
	assert.Equal(t, 10, res.Total)
	require.Len(t, res.Failures, 3)
	assert.Equal(t, models.StageRelay, res.Failures[0].Stage)

	zr, err := zip.NewReader(bytes.NewReader(res.Data), int64(len(res.Data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 7)

	var names []string
	for _, zf := range zr.File {
		names = append(names, zf.Name)
		assert.Equal(t, zip.Store, zf.Method)
	}
	assert.Equal(t, []string{
		"scraped-images/pic-0.jpeg",
		"scraped-images/pic-2.jpeg",
		"scraped-images/pic-3.jpeg",
		"scraped-images/pic-5.jpeg",
		"scraped-images/pic-6.jpeg",
		"scraped-images/pic-7.jpeg",
		"scraped-images/pic-8.jpeg",
	}, names)

	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "body of "+imgs[0].URL, string(body))

	assert.Equal(t, []models.ArchiveProgress{
		{Completed: 3, Total: 10},
		{Completed: 6, Total: 10},
		{Completed: 9, Total: 10},
		{Completed: 10, Total: 10},
	}, progress)

	assert.LessOrEqual(t, f.peak.Load(), int32(3))
}

func TestArchive_AllFail(t *testing.T) {
	imgs := images(4)
	fail := map[string]bool{}
	for _, img := range imgs {
		fail[img.URL] = true
	}

	_, err := New(&fakeFetcher{fail: fail}, 0, nil).Archive(context.Background(), imgs, nil)
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.ErrCodeArchiveEmpty))
}

func TestArchive_Empty(t *testing.T) {
	_, err := New(&fakeFetcher{}, 3, nil).Archive(context.Background(), nil, nil)
	assert.True(t, models.IsCode(err, models.ErrCodeInvalidInput))
}

func TestArchive_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(&fakeFetcher{}, 3, nil).Archive(ctx, images(2), nil)
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.ErrCodeUpstreamUnavailable))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestArchive_DeadlineExceeded(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err := New(&fakeFetcher{}, 3, nil).Archive(ctx, images(2), nil)
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.ErrCodeUpstreamTimeout))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"":                 "image",
		"   ":              "image",
		"sunset":           "sunset",
		"a/b\\c:d*e?f":     "a_b_c_d_e_f",
		"tab\there":        "tabhere",
		"...":              "image",
		"  café au lait  ": "café au lait",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeName(in), in)
	}
}

func TestExtension(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")
	tests := []struct {
		name string
		img  models.ResolvedImage
		body []byte
		want string
	}{
		{"jpeg type kept", models.ResolvedImage{Type: "jpeg", URL: "https://x/a.jpg"}, nil, "jpeg"},
		{"svg+xml", models.ResolvedImage{Type: "svg+xml"}, nil, "svg"},
		{"unknown falls to url", models.ResolvedImage{Type: "unknown", URL: "https://x/a.WEBP?w=1"}, nil, "webp"},
		{"no type no url ext sniffs", models.ResolvedImage{URL: "https://x/image"}, png, "png"},
		{"nothing known", models.ResolvedImage{URL: "https://x/image"}, []byte{0, 1, 2}, "jpg"},
		{"odd url ext ignored", models.ResolvedImage{URL: "https://x/a.php-123"}, nil, "jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extension(tt.img, tt.body))
		})
	}
}
