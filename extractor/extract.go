// Package extractor turns parsed page markup into raw image candidates.
package extractor

import (
	"strings"

	"github.com/use-agent/imagescout/models"
)

// Extract yields one candidate per image element of doc, in document order.
//
// Reference priority per element:
//  1. the widest srcset option, when srcset parses to at least one option
//  2. data-src
//  3. src
//
// Elements carrying none of the three attributes are skipped. Empty
// attributes count as absent.
func Extract(doc Document) []models.ImageCandidate {
	candidates := []models.ImageCandidate{}
	for _, el := range doc.ImageElements() {
		src := attr(el, "src")
		srcset := attr(el, "srcset")
		dataSrc := attr(el, "data-src")
		if src == "" && srcset == "" && dataSrc == "" {
			continue
		}

		ref := chooseReference(src, srcset, dataSrc)
		if ref == "" {
			continue
		}

		alt := attr(el, "alt")
		if alt == "" {
			alt = models.DefaultAlt
		}
		candidates = append(candidates, models.ImageCandidate{
			SourceElementAlt: alt,
			RawReference:     ref,
		})
	}
	return candidates
}

func chooseReference(src, srcset, dataSrc string) string {
	if srcset != "" {
		if best, ok := BestSrcsetOption(ParseSrcset(srcset)); ok {
			return best.URL
		}
	}
	if dataSrc != "" {
		return dataSrc
	}
	return src
}

func attr(el Element, name string) string {
	v, ok := el.Attr(name)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}
