package extractor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/use-agent/imagescout/models"
)

var widthDescriptor = regexp.MustCompile(`(\d+)w`)

// ParseSrcset parses a responsive-image descriptor such as
// "a-480.jpg 480w, a-960.jpg 960w" into its options, in input order.
// Entries without a URL are dropped; malformed input yields an empty slice.
func ParseSrcset(srcset string) []models.SrcsetOption {
	options := []models.SrcsetOption{}
	for _, entry := range strings.Split(srcset, ",") {
		fields := strings.Fields(entry)
		if len(fields) == 0 {
			continue
		}

		opt := models.SrcsetOption{URL: fields[0]}
		if len(fields) > 1 {
			if m := widthDescriptor.FindStringSubmatch(fields[1]); m != nil {
				if w, err := strconv.Atoi(m[1]); err == nil {
					opt.Width = w
					opt.HasWidth = true
				}
			}
		}
		options = append(options, opt)
	}
	return options
}

// BestSrcsetOption returns the widest option. Options without a width count
// as zero; the earliest option wins a tie.
func BestSrcsetOption(options []models.SrcsetOption) (models.SrcsetOption, bool) {
	if len(options) == 0 {
		return models.SrcsetOption{}, false
	}
	best := options[0]
	for _, opt := range options[1:] {
		if opt.Width > best.Width {
			best = opt
		}
	}
	return best, true
}
