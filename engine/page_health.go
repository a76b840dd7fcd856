package engine

import (
	"math"
	"sync"
	"time"

	"github.com/go-rod/rod"
)

// Retirement thresholds for pooled tabs.
const (
	pageMaxErrScore = 3.0
	pageMaxUses     = 50
	pageMaxAge      = 50 * time.Minute
)

type pageStats struct {
	errScore float64
	uses     int
	created  time.Time
}

// pageHealth scores pooled tabs. A success lowers the error score by 0.5
// (min 0), a failure raises it by 1. A tab is retired once its score reaches
// pageMaxErrScore, it has served pageMaxUses fetches or it is older than
// pageMaxAge.
type pageHealth struct {
	mu    sync.Mutex
	pages map[*rod.Page]*pageStats
	now   func() time.Time
}

func newPageHealth() *pageHealth {
	return &pageHealth{pages: make(map[*rod.Page]*pageStats), now: time.Now}
}

// record notes the outcome of one fetch on p and reports whether p should be
// retired. A retired page is forgotten.
func (h *pageHealth) record(p *rod.Page, ok bool) (retire bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, found := h.pages[p]
	if !found {
		st = &pageStats{created: h.now()}
		h.pages[p] = st
	}
	st.uses++
	if ok {
		st.errScore = math.Max(0, st.errScore-0.5)
	} else {
		st.errScore++
	}

	retire = st.errScore >= pageMaxErrScore ||
		st.uses >= pageMaxUses ||
		h.now().Sub(st.created) >= pageMaxAge
	if retire {
		delete(h.pages, p)
	}
	return retire
}

func (h *pageHealth) reset() {
	h.mu.Lock()
	h.pages = make(map[*rod.Page]*pageStats)
	h.mu.Unlock()
}
