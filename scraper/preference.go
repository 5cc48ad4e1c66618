package scraper

import (
	"sync"
	"time"
)

// browserPreference remembers that plain HTTP was not enough for the target
// so "auto" mode can go straight to the browser until the entry expires.
type browserPreference struct {
	ttl time.Duration

	mu    sync.Mutex
	until time.Time
}

// active reports whether the browser should be used without trying HTTP.
// Expired entries are cleared.
func (p *browserPreference) active(now time.Time) bool {
	if p.ttl <= 0 {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.until.IsZero() {
		return false
	}
	if !now.Before(p.until) {
		p.until = time.Time{}
		return false
	}
	return true
}

// remember records a successful escalation.
func (p *browserPreference) remember(now time.Time) {
	if p.ttl <= 0 {
		return
	}
	p.mu.Lock()
	p.until = now.Add(p.ttl)
	p.mu.Unlock()
}

// forget drops the preference, e.g. after the browser itself failed.
func (p *browserPreference) forget() {
	p.mu.Lock()
	p.until = time.Time{}
	p.mu.Unlock()
}
