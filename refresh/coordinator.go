// Package refresh owns the only writer of the cache: a clock-driven loop
// that acquires the target page, runs the extraction chain and publishes the
// display string, plus an on-demand forced refresh that shares the same
// single-flight slot.
package refresh

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/use-agent/modcheck/cache"
	"github.com/use-agent/modcheck/config"
	"github.com/use-agent/modcheck/drift"
	"github.com/use-agent/modcheck/models"
)

// Acquirer returns a snapshot of the target page. Errors should be
// *models.ScrapeError; anything else is reported as a transport failure.
type Acquirer interface {
	Acquire(ctx context.Context) (*models.Snapshot, error)
}

// Extractor turns a snapshot into a Result.
type Extractor interface {
	Extract(snap *models.Snapshot) models.Result
}

const flightKey = "refresh"

// Coordinator schedules refreshes and publishes their results to the cache.
type Coordinator struct {
	cfg       config.RefreshConfig
	acquirer  Acquirer
	extractor Extractor
	cache     *cache.Cache
	tracker   *drift.Tracker
	clock     clockwork.Clock
	logger    *slog.Logger

	group singleflight.Group

	mu          sync.Mutex
	attempted   bool
	lastAttempt time.Time
	nextDelay   time.Duration
	lastGood    string
	hasGood     bool

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithDriftTracker replaces the tracker built from cfg.DriftThreshold.
func WithDriftTracker(t *drift.Tracker) Option {
	return func(c *Coordinator) { c.tracker = t }
}

// NewCoordinator creates a Coordinator writing to store. Zero durations in
// cfg fall back to 60s interval, 10s redirect retry and 1s tick.
func NewCoordinator(cfg config.RefreshConfig, acquirer Acquirer, extractor Extractor, store *cache.Cache, opts ...Option) *Coordinator {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.RedirectRetry <= 0 {
		cfg.RedirectRetry = 10 * time.Second
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if store == nil {
		store = cache.New()
	}

	c := &Coordinator{
		cfg:       cfg,
		acquirer:  acquirer,
		extractor: extractor,
		cache:     store,
		clock:     clockwork.NewRealClock(),
		logger:    slog.Default(),
		nextDelay: cfg.Interval,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracker == nil {
		c.tracker = drift.NewTracker(cfg.DriftThreshold)
	}
	return c
}

// Read returns the current display string without blocking.
func (c *Coordinator) Read() string {
	return c.cache.Value()
}

// Entry returns the current cache entry with its metadata.
func (c *Coordinator) Entry() *cache.Entry {
	return c.cache.Load()
}

// Age returns how long ago the current entry was produced, zero before the
// first attempt.
func (c *Coordinator) Age() time.Duration {
	return c.cache.Age(c.clock.Now())
}

// Refresh runs a refresh when one is due and reports whether it did. When
// the last attempt is more recent than the debounce interval the cached
// value is returned unchanged.
func (c *Coordinator) Refresh(ctx context.Context) (string, bool) {
	o := c.run(ctx, false)
	return o.value, o.ran
}

// ForceRefresh runs a refresh immediately, ignoring the debounce. A call
// made while another refresh is in flight waits for that refresh and
// returns its result.
func (c *Coordinator) ForceRefresh(ctx context.Context) string {
	for {
		if o := c.run(ctx, true); o.ran {
			return o.value
		}
	}
}

func (c *Coordinator) due() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.attempted {
		return true
	}
	return c.clock.Since(c.lastAttempt) >= c.nextDelay
}

type outcome struct {
	value string
	ran   bool
}

// run collapses concurrent callers onto one attempt. The debounce is
// checked inside the flight so a scheduled call that joins a running
// attempt, or starts right after one, never fetches again. The attempt is
// detached from the caller's cancellation so a disconnecting client cannot
// abort a refresh other callers are waiting on.
func (c *Coordinator) run(ctx context.Context, force bool) outcome {
	detached := context.WithoutCancel(ctx)
	v, _, _ := c.group.Do(flightKey, func() (any, error) {
		if !force && !c.due() {
			return outcome{value: c.Read()}, nil
		}
		return outcome{value: c.attempt(detached), ran: true}, nil
	})
	return v.(outcome)
}

func (c *Coordinator) attempt(ctx context.Context) string {
	start := c.clock.Now()
	c.mu.Lock()
	c.attempted = true
	c.lastAttempt = start
	c.mu.Unlock()

	entry := c.produce(ctx)
	entry.UpdatedAt = start

	delay := c.cfg.Interval
	if models.KindOf(entry.Reason) == models.RedirectPending {
		delay = c.cfg.RedirectRetry
	}

	c.mu.Lock()
	c.nextDelay = delay
	if entry.Outcome == models.OutcomeFailure {
		if c.cfg.KeepLastGood && c.hasGood {
			entry.Value = c.lastGood
		}
	} else {
		c.lastGood, c.hasGood = entry.Value, true
	}
	c.mu.Unlock()

	c.cache.Store(entry)

	attrs := []any{
		"outcome", entry.Outcome.String(),
		"strategy", entry.Strategy,
		"engine", entry.Engine,
		"duration", c.clock.Since(start),
	}
	if entry.Outcome == models.OutcomeFailure {
		c.logger.Warn("refresh: attempt failed", append(attrs, "reason", entry.Reason, "next_in", delay)...)
	} else {
		c.logger.Info("refresh: cache updated", attrs...)
	}
	return entry.Value
}

// produce acquires and extracts one snapshot. It never panics.
func (c *Coordinator) produce(ctx context.Context) (entry *cache.Entry) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("refresh: attempt panicked", "panic", r)
			entry = entryFor(models.Failure(models.ReasonUnparseable), "")
		}
	}()

	snap, err := c.acquirer.Acquire(ctx)
	if err != nil {
		return entryFor(models.Failure(reasonOf(err)), "")
	}

	res := c.extractor.Extract(snap)
	entry = entryFor(res, snap.EngineName)

	obs := c.tracker.Observe(snap.HTML)
	entry.Drift, entry.DriftDetected = obs.Distance, obs.Drifted
	if obs.Drifted {
		c.logger.Warn("refresh: page structure changed",
			"distance", obs.Distance,
			"threshold", c.tracker.Threshold(),
			"outcome", res.Outcome.String(),
		)
	}
	return entry
}

func entryFor(res models.Result, engineName string) *cache.Entry {
	return &cache.Entry{
		Value:    res.Display(),
		Outcome:  res.Outcome,
		Reason:   res.Reason,
		Strategy: res.Strategy,
		Engine:   engineName,
	}
}

func reasonOf(err error) string {
	var se *models.ScrapeError
	if errors.As(err, &se) && se.Reason != "" {
		return se.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.ReasonTimeout
	}
	return models.ReasonTransport
}

// Start launches the background loop. It refreshes once immediately and
// then checks every Tick whether the debounce interval has elapsed. The
// loop runs until ctx is cancelled or Stop is called.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	ticker := c.clock.NewTicker(c.cfg.Tick)
	go func() {
		defer close(done)
		defer ticker.Stop()

		c.Refresh(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				c.Refresh(ctx)
			}
		}
	}()
	c.logger.Info("refresh: loop started", "interval", c.cfg.Interval, "tick", c.cfg.Tick)
}

// Stop ends the background loop and waits for an in-flight refresh to
// finish.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
