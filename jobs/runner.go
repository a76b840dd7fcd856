package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/imagescout/archiver"
	"github.com/use-agent/imagescout/metrics"
	"github.com/use-agent/imagescout/models"
	"github.com/use-agent/imagescout/webhook"
)

// Archiver builds archives. *archiver.Archiver satisfies it.
type Archiver interface {
	Archive(ctx context.Context, images []models.ResolvedImage, onProgress archiver.ProgressFunc) (*archiver.Result, error)
}

// Runner starts archive jobs in the background and records their progress
// in a Store.
type Runner struct {
	store    Store
	archiver Archiver
	sender   *webhook.Sender
	metrics  *metrics.Metrics
	timeout  time.Duration

	wg sync.WaitGroup
}

// NewRunner creates a Runner. sender and m may be nil.
func NewRunner(store Store, a Archiver, sender *webhook.Sender, m *metrics.Metrics) *Runner {
	return &Runner{store: store, archiver: a, sender: sender, metrics: m, timeout: 30 * time.Minute}
}

// Store returns the backing job store.
func (r *Runner) Store() Store { return r.store }

// Start records a new job and begins archiving req.Images. The job keeps
// running after ctx is canceled.
func (r *Runner) Start(ctx context.Context, req *models.ArchiveRequest) (*models.ArchiveJob, error) {
	if len(req.Images) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "no images to archive", nil)
	}

	job := &models.ArchiveJob{
		ID:        uuid.NewString(),
		Status:    models.JobProcessing,
		Progress:  models.ArchiveProgress{Total: len(req.Images)},
		CreatedAt: time.Now().Unix(),
	}
	if err := r.store.Save(ctx, job); err != nil {
		return nil, err
	}

	// The goroutine owns job from here on; callers get a copy.
	snapshot := *job

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		r.run(runCtx, job, req)
	}()
	return &snapshot, nil
}

// Wait blocks until every started job has finished.
func (r *Runner) Wait() { r.wg.Wait() }

func (r *Runner) run(ctx context.Context, job *models.ArchiveJob, req *models.ArchiveRequest) {
	done := r.metrics.JobStarted()
	defer done()

	var mu sync.Mutex
	res, err := r.archiver.Archive(ctx, req.Images, func(p models.ArchiveProgress) {
		mu.Lock()
		defer mu.Unlock()
		job.Progress = p
		if err := r.store.Save(ctx, job); err != nil {
			slog.Warn("failed to record archive progress", "job_id", job.ID, "error", err)
		}
	})

	mu.Lock()
	defer mu.Unlock()
	if err == nil {
		err = r.store.PutArchive(ctx, job.ID, res.Data)
	}

	event := webhook.EventArchiveCompleted
	if err != nil {
		job.Status = models.JobFailed
		job.Error = errorBody(err)
		event = webhook.EventArchiveFailed
		slog.Warn("archive job failed", "job_id", job.ID, "error", err)
	} else {
		job.Status = models.JobCompleted
		if res.Succeeded < res.Total {
			job.Status = models.JobPartial
		}
		job.Succeeded = res.Succeeded
		job.Failures = res.Failures
		job.Progress = models.ArchiveProgress{Completed: res.Total, Total: res.Total}
		slog.Info("archive job finished", "job_id", job.ID, "succeeded", res.Succeeded, "total", res.Total)
	}
	if saveErr := r.store.Save(ctx, job); saveErr != nil {
		slog.Error("failed to record archive job result", "job_id", job.ID, "error", saveErr)
	}

	if req.WebhookURL != "" && r.sender != nil {
		r.sender.DeliverAsync(req.WebhookURL, req.WebhookSecret, &webhook.Event{
			Type:      event,
			JobID:     job.ID,
			Timestamp: time.Now().Unix(),
			Data:      models.ArchiveJobStatusResponse{ArchiveJob: *job, Percent: job.Progress.Percent()},
		})
	}
}

func errorBody(err error) *models.ErrorResponse {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		resp := se.ToResponse()
		return &resp
	}
	return &models.ErrorResponse{Error: err.Error(), Code: models.ErrCodeInternal}
}
