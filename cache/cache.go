package cache

import (
	"sync/atomic"
	"time"

	"github.com/use-agent/modcheck/models"
)

// Entry is one immutable cached value with its metadata. Entries are never
// modified after Store; a new refresh always stores a new Entry.
type Entry struct {
	// Value is the display string served by GET /.
	Value string

	// UpdatedAt is the time of the refresh attempt that produced the entry.
	// Zero for the initial entry.
	UpdatedAt time.Time

	Outcome  models.Outcome
	Reason   string
	Strategy string
	Engine   string

	// Drift is the structural distance from the previous snapshot.
	Drift         int
	DriftDetected bool
}

// initial is served until the first refresh completes.
var initial = &Entry{Value: models.NoModsOnline, Outcome: models.OutcomeEmpty}

// Cache holds the current Entry. Any number of goroutines may Load while one
// goroutine Stores; readers see either the old or the new entry, never a mix.
type Cache struct {
	current atomic.Pointer[Entry]
}

// New creates a Cache holding the initial "no mods online" entry.
func New() *Cache {
	c := &Cache{}
	c.current.Store(initial)
	return c
}

// Load returns the current entry. It never blocks and never returns nil.
func (c *Cache) Load() *Entry {
	return c.current.Load()
}

// Value returns the current display string.
func (c *Cache) Value() string {
	return c.Load().Value
}

// Store replaces the current entry. A nil entry is ignored.
func (c *Cache) Store(e *Entry) {
	if e == nil {
		return
	}
	c.current.Store(e)
}

// Age returns how long ago the current entry was produced, or zero before
// the first refresh.
func (c *Cache) Age(now time.Time) time.Duration {
	e := c.Load()
	if e.UpdatedAt.IsZero() {
		return 0
	}
	return now.Sub(e.UpdatedAt)
}
