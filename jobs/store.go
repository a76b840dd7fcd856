// Package jobs tracks asynchronous archive runs and keeps their finished
// ZIP files until they expire.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/use-agent/imagescout/config"
	"github.com/use-agent/imagescout/models"
)

// Store persists archive jobs and their output.
type Store interface {
	// Save creates or replaces a job record.
	Save(ctx context.Context, job *models.ArchiveJob) error

	// Get returns a job, or a NOT_FOUND error once it is unknown or expired.
	Get(ctx context.Context, id string) (*models.ArchiveJob, error)

	// PutArchive stores the finished ZIP of a job.
	PutArchive(ctx context.Context, id string, data []byte) error

	// Archive returns the stored ZIP, or NOT_FOUND.
	Archive(ctx context.Context, id string) ([]byte, error)

	// Driver names the backend ("memory", "redis").
	Driver() string

	Close() error
}

// Driver names.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// NewStore builds the Store selected by cfg.Driver.
func NewStore(cfg config.JobsConfig) (Store, error) {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemoryStore(ttl), nil
	case DriverRedis:
		return NewRedisStore(cfg)
	default:
		return nil, fmt.Errorf("jobs: unsupported store driver %q", cfg.Driver)
	}
}

func notFound(id string) *models.ScrapeError {
	return models.NewScrapeError(models.ErrCodeNotFound, fmt.Sprintf("archive job %s not found", id), nil)
}
