package drift

import "sync"

// DefaultThreshold is the Hamming distance above which two snapshots are
// considered structurally different.
const DefaultThreshold = 12

// Observation is the result of comparing one snapshot with the previous one.
type Observation struct {
	Fingerprint uint64
	Distance    int
	Drifted     bool
}

// Tracker remembers the fingerprint of the last observed snapshot.
type Tracker struct {
	mu        sync.Mutex
	threshold int
	last      uint64
	seen      bool
}

// NewTracker creates a Tracker. A non-positive threshold selects
// DefaultThreshold.
func NewTracker(threshold int) *Tracker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Tracker{threshold: threshold}
}

// Observe fingerprints rawHTML and compares it with the previous snapshot.
// The first observation, and any document without elements, never reports
// drift; documents without elements are not remembered.
func (t *Tracker) Observe(rawHTML string) Observation {
	fp := Fingerprint(rawHTML)
	if fp == 0 {
		return Observation{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	obs := Observation{Fingerprint: fp}
	if t.seen {
		obs.Distance = Distance(t.last, fp)
		obs.Drifted = obs.Distance > t.threshold
	}
	t.last, t.seen = fp, true
	return obs
}

// Threshold returns the configured drift threshold.
func (t *Tracker) Threshold() int {
	return t.threshold
}
