package models

// DefaultAlt is used when an image element carries no alt text.
const DefaultAlt = "image"

// ImageCandidate is one discovered image element before probing.
type ImageCandidate struct {
	// SourceElementAlt is the element's alt text, DefaultAlt when missing.
	SourceElementAlt string

	// RawReference is the chosen src/srcset/data-src reference, possibly relative.
	RawReference string
}

// SrcsetOption is one entry of a responsive-image descriptor.
type SrcsetOption struct {
	URL string

	// Width is the "w" descriptor; zero when HasWidth is false.
	Width    int
	HasWidth bool
}

// ResolvedImage is the best retrievable version of one image element.
type ResolvedImage struct {
	// URL is the chosen absolute URL.
	URL string `json:"url"`

	// Alt is the alt text of the originating element.
	Alt string `json:"alt"`

	// Type is the lowercase content-type subtype, e.g. "jpeg".
	Type string `json:"type"`

	// Size is the byte length reported by the origin. It is used for
	// ranking and display only and is never checked against downloads.
	Size uint64 `json:"size"`
}

// Valid reports whether the image may be returned to a caller.
func (r ResolvedImage) Valid() bool {
	return r.URL != "" && r.Size > 0
}

// Failure stages recorded in ItemFailure.Stage.
const (
	StageResolve = "resolve"
	StageProbe   = "probe"
	StageRelay   = "relay"
)

// ItemFailure records a per-item failure that was absorbed instead of
// aborting the surrounding batch.
type ItemFailure struct {
	URL    string `json:"url"`
	Alt    string `json:"alt,omitempty"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// ScrapeResult is the pooled output of one page fetch.
type ScrapeResult struct {
	// PageURL is the final page URL after redirects.
	PageURL string

	// Candidates is the number of image elements extracted from the page.
	Candidates int

	// Images holds valid resolved images in discovery order.
	Images []ResolvedImage

	// Failures lists candidates that produced no image and why.
	Failures []ItemFailure

	// Engine names the page engine that fetched the page.
	Engine string
}
