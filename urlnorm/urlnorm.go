// Package urlnorm resolves image references against their page and guesses
// the uncompressed original behind CDN resize hints.
package urlnorm

import (
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/use-agent/imagescout/models"
)

// compressionParams are query keys that CDNs commonly use to request a
// resized or recompressed rendition.
var compressionParams = []string{"w", "h", "width", "height", "resize", "fit", "quality", "q", "compress"}

// compressionSegment matches whole path segments such as "w640", "q80" or "-resize".
var compressionSegment = regexp.MustCompile(`(?i)^(w\d+|h\d+|q\d+|-resize|-fit|-compress)$`)

// Resolve resolves reference against base and returns an absolute http(s) URL.
func Resolve(base, reference string) (string, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return "", invalid("empty image reference", nil)
	}
	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", invalid("unparsable base url", err)
	}
	ref, err := url.Parse(reference)
	if err != nil {
		return "", invalid("unparsable image reference", err)
	}
	resolved := b.ResolveReference(ref)
	if !IsAbsoluteHTTP(resolved) {
		return "", invalid("not an absolute http(s) url: "+resolved.String(), nil)
	}
	return resolved.String(), nil
}

// ParseAbsolute parses raw and requires an absolute http(s) URL with a host.
func ParseAbsolute(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, invalid("url is required", nil)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, invalid("unparsable url", err)
	}
	if !IsAbsoluteHTTP(u) {
		return nil, invalid("url must be absolute http(s): "+raw, nil)
	}
	return u, nil
}

// IsAbsoluteHTTP reports whether u is an http or https URL with a host.
func IsAbsoluteHTTP(u *url.URL) bool {
	if u == nil || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

// StripCompressionHints removes resize/quality query parameters and path
// tokens from rawURL. It is best-effort: rawURL is returned unchanged when
// it cannot be parsed. Applying it twice gives the same result as once.
func StripCompressionHints(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() || u.Opaque != "" {
		return rawURL
	}

	if u.RawQuery != "" {
		u.RawQuery = stripQueryHints(u.RawQuery)
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	kept := make([]string, 0, strings.Count(path, "/"))
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || compressionSegment.MatchString(seg) {
			continue
		}
		kept = append(kept, seg)
	}
	if cleaned := "/" + strings.Join(kept, "/"); cleaned != path {
		u.Path = cleaned
		u.RawPath = ""
	}

	return u.String()
}

// stripQueryHints drops compression keys from rawQuery. The remaining pairs
// keep their order and original encoding.
func stripQueryHints(rawQuery string) string {
	pairs := strings.Split(rawQuery, "&")
	kept := pairs[:0]
	removed := false
	for _, pair := range pairs {
		key, _, _ := strings.Cut(pair, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if slices.Contains(compressionParams, key) {
			removed = true
			continue
		}
		kept = append(kept, pair)
	}
	if !removed {
		return rawQuery
	}
	return strings.Join(kept, "&")
}

// Origin returns "scheme://host" for u.
func Origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

func invalid(msg string, err error) *models.ScrapeError {
	return models.NewScrapeError(models.ErrCodeInvalidInput, msg, err)
}
