package main

import (
	"context"
	"fmt"
	"io"

	"github.com/use-agent/imagescout/bootstrap"
	"github.com/use-agent/imagescout/client"
	"github.com/use-agent/imagescout/config"
	"github.com/use-agent/imagescout/models"
)

// archiveOutcome summarises a finished archive run.
type archiveOutcome struct {
	Succeeded int
	Total     int
	Failures  []models.ItemFailure
}

// backend runs scrape and archive operations somewhere.
type backend interface {
	Scrape(ctx context.Context, req *models.ScrapeRequest) (*models.ScrapeResponse, error)
	Archive(ctx context.Context, images []models.ResolvedImage, onProgress func(models.ArchiveProgress), w io.Writer) (*archiveOutcome, error)
	Close()
}

func newBackend(g *globalFlags) (backend, error) {
	if g.server != "" {
		return &remoteBackend{c: client.New(g.server, g.apiKey)}, nil
	}

	cfg := config.Load()
	bootstrap.InitLogger(cfg.Log)
	app, err := bootstrap.New(cfg, false)
	if err != nil {
		return nil, err
	}
	return &localBackend{app: app}, nil
}

// localBackend runs everything in this process.
type localBackend struct {
	app *bootstrap.App
}

func (b *localBackend) Scrape(ctx context.Context, req *models.ScrapeRequest) (*models.ScrapeResponse, error) {
	return b.app.Scraper.Query(ctx, req)
}

func (b *localBackend) Archive(ctx context.Context, images []models.ResolvedImage, onProgress func(models.ArchiveProgress), w io.Writer) (*archiveOutcome, error) {
	res, err := b.app.Archiver.Archive(ctx, images, onProgress)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(res.Data); err != nil {
		return nil, fmt.Errorf("write archive: %w", err)
	}
	return &archiveOutcome{Succeeded: res.Succeeded, Total: res.Total, Failures: res.Failures}, nil
}

func (b *localBackend) Close() { b.app.Close() }

// remoteBackend delegates to an imagescout server through the job API.
type remoteBackend struct {
	c *client.Client
}

func (b *remoteBackend) Scrape(ctx context.Context, req *models.ScrapeRequest) (*models.ScrapeResponse, error) {
	return b.c.Scrape(ctx, req)
}

func (b *remoteBackend) Archive(ctx context.Context, images []models.ResolvedImage, onProgress func(models.ArchiveProgress), w io.Writer) (*archiveOutcome, error) {
	job, err := b.c.StartArchive(ctx, &models.ArchiveRequest{Images: images})
	if err != nil {
		return nil, err
	}
	status, err := b.c.WaitArchive(ctx, job.ID, onProgress)
	if err != nil {
		return nil, err
	}
	if status.Status == models.JobFailed {
		msg := "archive failed"
		if status.Error != nil {
			msg = status.Error.Error
		}
		return nil, fmt.Errorf("job %s: %s", job.ID, msg)
	}
	if _, err := b.c.DownloadArchive(ctx, job.ID, w); err != nil {
		return nil, err
	}
	return &archiveOutcome{Succeeded: status.Succeeded, Total: status.Progress.Total, Failures: status.Failures}, nil
}

func (b *remoteBackend) Close() {}
