// Package archiver bundles resolved images into a single uncompressed ZIP.
package archiver

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/use-agent/imagescout/engine"
	"github.com/use-agent/imagescout/metrics"
	"github.com/use-agent/imagescout/models"
	"github.com/use-agent/imagescout/relay"
	"golang.org/x/sync/errgroup"
)

// DefaultGroupSize is the number of images fetched concurrently.
const DefaultGroupSize = 3

// Folder is the directory every entry is stored under.
const Folder = "scraped-images"

// Fetcher retrieves one image body. *relay.Relay satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*relay.Image, error)
}

// ProgressFunc is called after every group with the running count.
type ProgressFunc func(models.ArchiveProgress)

// Result is a finished archive.
type Result struct {
	// Data is the ZIP file.
	Data []byte

	// Succeeded is the number of entries written; it is less than Total when
	// some images could not be fetched.
	Succeeded int
	Total     int
	Failures  []models.ItemFailure
}

// Archiver fetches images group by group and writes each success as a
// stored (uncompressed) ZIP entry.
type Archiver struct {
	fetcher   Fetcher
	groupSize int
	metrics   *metrics.Metrics
	now       func() time.Time
}

// New creates an Archiver. m may be nil.
func New(f Fetcher, groupSize int, m *metrics.Metrics) *Archiver {
	if groupSize <= 0 {
		groupSize = DefaultGroupSize
	}
	return &Archiver{fetcher: f, groupSize: groupSize, metrics: m, now: time.Now}
}

type fetched struct {
	img  *relay.Image
	fail *models.ItemFailure
}

// Archive fetches every image and returns the ZIP of the successes.
// Individual fetch failures are recorded in Result.Failures; if none
// succeeded the call fails with ARCHIVE_EMPTY.
func (a *Archiver) Archive(ctx context.Context, images []models.ResolvedImage, onProgress ProgressFunc) (*Result, error) {
	total := len(images)
	if total == 0 {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "no images to archive", nil)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	res := &Result{Total: total}
	modified := a.now()

	for groupStart := 0; groupStart < total; groupStart += a.groupSize {
		if err := ctx.Err(); err != nil {
			return nil, engine.UpstreamError("archive interrupted", err)
		}
		groupEnd := min(groupStart+a.groupSize, total)
		slots := make([]fetched, groupEnd-groupStart)

		var g errgroup.Group
		for i := groupStart; i < groupEnd; i++ {
			g.Go(func() error {
				slots[i-groupStart] = a.fetchOne(ctx, images[i])
				return nil
			})
		}
		_ = g.Wait()

		for j, s := range slots {
			index := groupStart + j
			if s.fail != nil {
				res.Failures = append(res.Failures, *s.fail)
				continue
			}
			name := EntryName(images[index], index, s.img.Body)
			if err := writeEntry(zw, name, s.img.Body, modified); err != nil {
				return nil, fmt.Errorf("archiver: write %s: %w", name, err)
			}
			res.Succeeded++
		}

		if onProgress != nil {
			onProgress(models.ArchiveProgress{Completed: groupEnd, Total: total})
		}
	}

	if res.Succeeded == 0 {
		return nil, models.NewScrapeError(models.ErrCodeArchiveEmpty,
			fmt.Sprintf("none of the %d images could be downloaded", total), nil)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("archiver: finalize zip: %w", err)
	}
	res.Data = buf.Bytes()
	return res, nil
}

func (a *Archiver) fetchOne(ctx context.Context, img models.ResolvedImage) fetched {
	body, err := a.fetcher.Fetch(ctx, img.URL)
	a.metrics.ObserveArchiveItem(err == nil)
	if err != nil {
		slog.Warn("archive item failed", "url", img.URL, "error", err)
		return fetched{fail: &models.ItemFailure{URL: img.URL, Alt: img.Alt, Stage: models.StageRelay, Reason: err.Error()}}
	}
	return fetched{img: body}
}

func writeEntry(zw *zip.Writer, name string, body []byte, modified time.Time) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Store,
		Modified: modified,
	})
	if err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// EntryName builds "scraped-images/<alt>-<index>.<ext>".
func EntryName(img models.ResolvedImage, index int, body []byte) string {
	return fmt.Sprintf("%s/%s-%d.%s", Folder, SanitizeName(img.Alt), index, Extension(img, body))
}

// SanitizeName makes alt text safe to use as a file name. Empty input becomes
// "image".
func SanitizeName(alt string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(alt) {
		switch {
		case r < 0x20 || r == 0x7f:
			continue
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	name := strings.Trim(b.String(), ". ")
	if len([]rune(name)) > 100 {
		name = string([]rune(name)[:100])
	}
	if name == "" {
		return models.DefaultAlt
	}
	return name
}

// Extension picks a file extension: the resolved subtype, then the URL's
// extension, then the sniffed body type, then "jpg".
func Extension(img models.ResolvedImage, body []byte) string {
	if ext := typeExtension(img.Type); ext != "" {
		return ext
	}
	if ext := urlExtension(img.URL); ext != "" {
		return ext
	}
	if len(body) > 0 {
		if ext := strings.TrimPrefix(mimetype.Detect(body).Extension(), "."); ext != "" {
			return ext
		}
	}
	return "jpg"
}

func typeExtension(subtype string) string {
	t := strings.ToLower(strings.TrimSpace(subtype))
	if t == "" || t == "unknown" || t == "*" {
		return ""
	}
	t, _, _ = strings.Cut(t, "+")
	return t
}

func urlExtension(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	if ext == "" || len(ext) > 5 {
		return ""
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
