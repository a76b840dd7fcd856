package models

// ScrapeResponse is the success body for POST /api/v1/scrape.
type ScrapeResponse struct {
	// Images is the (filtered, paginated) list of resolved images.
	Images []ResolvedImage `json:"images"`

	// Total is the number of images after filtering, before pagination.
	Total int `json:"total"`

	Page    int `json:"page,omitempty"`
	PerPage int `json:"per_page,omitempty"`

	// Candidates is the number of image elements found on the page.
	Candidates int `json:"candidates"`

	// Failures lists candidates dropped during resolution or probing.
	Failures []ItemFailure `json:"failures,omitempty"`

	// PageURL is the page URL after redirects.
	PageURL string `json:"page_url"`

	// EngineUsed names the engine that fetched the page ("http", "rod").
	EngineUsed string `json:"engine_used,omitempty"`

	Timing TimingInfo `json:"timing"`
}

// TimingInfo breaks down the time spent in a scrape.
type TimingInfo struct {
	TotalMs int64 `json:"total_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime"`
	EngineMode string `json:"engine_mode"`
	JobStore   string `json:"job_store"`
	Version    string `json:"version"`
}
