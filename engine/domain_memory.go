package engine

import (
	"sync"
	"time"
)

type rememberedEngine struct {
	name    string
	expires time.Time
}

// DomainMemory maps a hostname to the engine that last produced usable markup
// for it. Entries expire after ttl; a janitor prunes them every sweep interval.
type DomainMemory struct {
	entries sync.Map // host -> rememberedEngine
	ttl     time.Duration
	now     func() time.Time

	stopOnce sync.Once
	done     chan struct{}
}

// NewDomainMemory starts a DomainMemory whose janitor runs every sweep.
func NewDomainMemory(ttl, sweep time.Duration) *DomainMemory {
	if sweep <= 0 {
		sweep = time.Hour
	}
	dm := &DomainMemory{
		ttl:  ttl,
		now:  time.Now,
		done: make(chan struct{}),
	}
	go dm.janitor(sweep)
	return dm
}

// Get returns the engine remembered for host, or "".
func (dm *DomainMemory) Get(host string) string {
	v, ok := dm.entries.Load(host)
	if !ok {
		return ""
	}
	e := v.(rememberedEngine)
	if dm.now().After(e.expires) {
		dm.entries.Delete(host)
		return ""
	}
	return e.name
}

func (dm *DomainMemory) Set(host, engineName string) {
	dm.entries.Store(host, rememberedEngine{name: engineName, expires: dm.now().Add(dm.ttl)})
}

func (dm *DomainMemory) Delete(host string) {
	dm.entries.Delete(host)
}

// Stop ends the janitor. Safe to call more than once.
func (dm *DomainMemory) Stop() {
	dm.stopOnce.Do(func() { close(dm.done) })
}

func (dm *DomainMemory) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-dm.done:
			return
		case <-ticker.C:
			dm.prune()
		}
	}
}

func (dm *DomainMemory) prune() {
	now := dm.now()
	dm.entries.Range(func(k, v any) bool {
		if now.After(v.(rememberedEngine).expires) {
			dm.entries.Delete(k)
		}
		return true
	})
}
