package models

import "strings"

// DefaultPerPage is the page size used when only Page is given.
const DefaultPerPage = 100

// ScrapeRequest is the payload for POST /api/v1/scrape.
type ScrapeRequest struct {
	// URL is the target page. Required.
	URL string `json:"url"`

	// Type keeps only images of this subtype ("jpeg", "png", ...).
	// Empty or "all" disables the filter.
	Type string `json:"type,omitempty"`

	// MinSize and MaxSize bound the reported byte size. Zero disables a bound.
	MinSize uint64 `json:"min_size,omitempty"`
	MaxSize uint64 `json:"max_size,omitempty"`

	// Page is 1-based. Zero returns every image.
	Page int `json:"page,omitempty" binding:"omitempty,min=1"`

	// PerPage defaults to DefaultPerPage when Page is set.
	PerPage int `json:"per_page,omitempty" binding:"omitempty,min=1,max=1000"`
}

// Defaults applies default values to unset fields.
func (r *ScrapeRequest) Defaults() {
	r.URL = strings.TrimSpace(r.URL)
	r.Type = strings.ToLower(strings.TrimSpace(r.Type))
	if r.Type == "all" {
		r.Type = ""
	}
	if r.Page > 0 && r.PerPage == 0 {
		r.PerPage = DefaultPerPage
	}
}

// Matches reports whether img passes the request's type and size filters.
func (r *ScrapeRequest) Matches(img ResolvedImage) bool {
	if r.Type != "" && img.Type != r.Type {
		return false
	}
	if r.MinSize > 0 && img.Size < r.MinSize {
		return false
	}
	if r.MaxSize > 0 && img.Size > r.MaxSize {
		return false
	}
	return true
}

// ArchiveRequest is the payload for POST /api/v1/archive and
// POST /api/v1/archive/jobs.
type ArchiveRequest struct {
	Images []ResolvedImage `json:"images" binding:"required,min=1,max=1000"`

	// WebhookURL receives archive.completed / archive.failed events (jobs only).
	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}
