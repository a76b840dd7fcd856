package models

// ArchiveFileName is the download name of every generated archive.
const ArchiveFileName = "scraped-images.zip"

// ArchiveProgress reports how many items of an archive run have been
// attempted. Completed advances a whole group at a time.
type ArchiveProgress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Percent returns progress as a whole percentage in [0, 100].
func (p ArchiveProgress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	pct := p.Completed * 100 / p.Total
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Archive job states.
const (
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobPartial    = "partial"
	JobFailed     = "failed"
)

// ArchiveJob tracks an asynchronous archive run.
type ArchiveJob struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Progress  ArchiveProgress `json:"progress"`
	Succeeded int             `json:"succeeded"`
	Failures  []ItemFailure   `json:"failures,omitempty"`
	Error     *ErrorResponse  `json:"error,omitempty"`
	CreatedAt int64           `json:"created_at"` // unix timestamp
}

// Done reports whether the job has left the processing state.
func (j *ArchiveJob) Done() bool {
	return j.Status != JobProcessing
}

// ArchiveJobResponse is the immediate response for POST /api/v1/archive/jobs.
type ArchiveJobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// ArchiveJobStatusResponse is the response for GET /api/v1/archive/jobs/:id.
type ArchiveJobStatusResponse struct {
	ArchiveJob
	Percent int `json:"percent"`
}
