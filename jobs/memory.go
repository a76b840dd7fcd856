package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/use-agent/imagescout/models"
)

type memoryEntry struct {
	job     models.ArchiveJob
	data    []byte
	expires time.Time
}

// MemoryStore keeps jobs in process. A janitor drops entries once their TTL
// has passed.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	now     func() time.Time

	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryStore creates a MemoryStore and starts its janitor.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go s.janitor(5 * time.Minute)
	return s
}

func (s *MemoryStore) Driver() string { return DriverMemory }

func (s *MemoryStore) Save(_ context.Context, job *models.ArchiveJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[job.ID]
	if !ok {
		e = &memoryEntry{}
		s.entries[job.ID] = e
	}
	e.job = cloneJob(job)
	e.expires = s.now().Add(s.ttl)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.ArchiveJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.live(id)
	if !ok {
		return nil, notFound(id)
	}
	job := cloneJob(&e.job)
	return &job, nil
}

func (s *MemoryStore) PutArchive(_ context.Context, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(id)
	if !ok {
		return notFound(id)
	}
	e.data = data
	e.expires = s.now().Add(s.ttl)
	return nil
}

func (s *MemoryStore) Archive(_ context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.live(id)
	if !ok || e.data == nil {
		return nil, notFound(id)
	}
	return e.data, nil
}

// Close stops the janitor.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.done) })
	return nil
}

// live must be called with mu held.
func (s *MemoryStore) live(id string) (*memoryEntry, bool) {
	e, ok := s.entries[id]
	if !ok || s.now().After(e.expires) {
		return nil, false
	}
	return e, true
}

func (s *MemoryStore) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.prune()
		}
	}
}

func (s *MemoryStore) prune() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, e := range s.entries {
		if now.After(e.expires) {
			delete(s.entries, id)
		}
	}
}

func cloneJob(j *models.ArchiveJob) models.ArchiveJob {
	c := *j
	if j.Failures != nil {
		c.Failures = append([]models.ItemFailure(nil), j.Failures...)
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	return c
}
