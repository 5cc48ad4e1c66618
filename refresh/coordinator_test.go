package refresh

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/modcheck/cache"
	"github.com/use-agent/modcheck/config"
	"github.com/use-agent/modcheck/extractor"
	"github.com/use-agent/modcheck/models"
)

const modsPage = `<html><head><title>GTID</title></head><body>
<section id="modsChecker"><ul>
<li class="flex items-start"><span class="break-words">ubiops</span></li>
<li class="flex items-start"><span class="break-words">windyplay</span></li>
</ul></section></body></html>`

const markerPage = `<html><body><p>No mods online</p></body></html>`

const tablePage = `<html><body><main class="grid"><table class="staff"><thead><tr><th>Name</th></tr></thead>
<tbody><tr><td class="cell">ubiops</td></tr><tr><td class="cell">windyplay</td></tr></tbody></table>
<footer class="foot"><nav><a href="/">home</a><a href="/about">about</a></nav></footer></main></body></html>`

type step struct {
	html string
	err  error
}

type tagKey struct{}

// fakeAcquirer replays steps in order and repeats the last one. Calls whose
// context carries a tagKey value are recorded in tags.
type fakeAcquirer struct {
	mu    sync.Mutex
	steps []step
	tags  []string
	calls atomic.Int32

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	release     chan struct{}
}

func (f *fakeAcquirer) Acquire(ctx context.Context) (*models.Snapshot, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	i := int(f.calls.Add(1)) - 1
	if f.release != nil {
		<-f.release
	}

	f.mu.Lock()
	s := f.steps[min(i, len(f.steps)-1)]
	if tag, ok := ctx.Value(tagKey{}).(string); ok {
		f.tags = append(f.tags, tag)
	}
	f.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &models.Snapshot{HTML: s.html, StatusCode: 200, EngineName: "fake"}, nil
}

type panickingExtractor struct{}

func (panickingExtractor) Extract(*models.Snapshot) models.Result { panic("boom") }

func newTestCoordinator(t *testing.T, cfg config.RefreshConfig, acq Acquirer, ext Extractor) (*Coordinator, *clockwork.FakeClock) {
	t.Helper()
	if ext == nil {
		ext = extractor.NewChain()
	}
	clock := clockwork.NewFakeClock()
	return NewCoordinator(cfg, acq, ext, cache.New(), WithClock(clock)), clock
}

func TestRead_BeforeFirstRefresh(t *testing.T) {
	c, _ := newTestCoordinator(t, config.RefreshConfig{}, &fakeAcquirer{steps: []step{{html: modsPage}}}, nil)
	assert.Equal(t, models.NoModsOnline, c.Read())
}

func TestRefresh_EndToEnd(t *testing.T) {
	acq := &fakeAcquirer{steps: []step{{html: modsPage}}}
	c, _ := newTestCoordinator(t, config.RefreshConfig{}, acq, nil)

	got, ran := c.Refresh(context.Background())
	require.True(t, ran)
	assert.Equal(t, "ubiops\nwindyplay", got)
	assert.Equal(t, "ubiops\nwindyplay", c.Read())

	e := c.Entry()
	assert.Equal(t, models.OutcomeNames, e.Outcome)
	assert.Equal(t, "container", e.Strategy)
	assert.Equal(t, "fake", e.Engine)
	assert.False(t, e.UpdatedAt.IsZero())
}

func TestRefresh_MarkerOnly(t *testing.T) {
	acq := &fakeAcquirer{steps: []step{{html: markerPage}}}
	c, _ := newTestCoordinator(t, config.RefreshConfig{}, acq, nil)

	got, _ := c.Refresh(context.Background())
	assert.Equal(t, "No mods online.", got)
	assert.Equal(t, models.OutcomeEmpty, c.Entry().Outcome)
}

func TestRefresh_Debounce(t *testing.T) {
	acq := &fakeAcquirer{steps: []step{{html: modsPage}}}
	c, clock := newTestCoordinator(t, config.RefreshConfig{Interval: time.Minute}, acq, nil)
	ctx := context.Background()

	_, ran := c.Refresh(ctx)
	require.True(t, ran)

	_, ran = c.Refresh(ctx)
	assert.False(t, ran, "second refresh inside the interval must be a no-op")

	clock.Advance(59 * time.Second)
	got, ran := c.Refresh(ctx)
	assert.False(t, ran)
	assert.Equal(t, "ubiops\nwindyplay", got)

	clock.Advance(time.Second)
	_, ran = c.Refresh(ctx)
	assert.True(t, ran)
	assert.EqualValues(t, 2, acq.calls.Load())
}

func TestRefresh_FailedAttemptStillDebounces(t *testing.T) {
	acq := &fakeAcquirer{steps: []step{{err: models.NewScrapeError(models.ReasonTransport, "refused", nil)}}}
	c, clock := newTestCoordinator(t, config.RefreshConfig{Interval: time.Minute}, acq, nil)
	ctx := context.Background()

	c.Refresh(ctx)
	clock.Advance(30 * time.Second)
	_, ran := c.Refresh(ctx)
	assert.False(t, ran)
	assert.EqualValues(t, 1, acq.calls.Load())
}

func TestRefresh_RedirectingRetriesSooner(t *testing.T) {
	acq := &fakeAcquirer{steps: []step{
		{err: models.NewScrapeError(models.ReasonRedirecting, "interstitial", nil)},
		{html: modsPage},
	}}
	cfg := config.RefreshConfig{Interval: time.Minute, RedirectRetry: 10 * time.Second}
	c, clock := newTestCoordinator(t, cfg, acq, nil)
	ctx := context.Background()

	got, _ := c.Refresh(ctx)
	assert.Equal(t, "Error scraping website: redirecting", got)

	clock.Advance(10 * time.Second)
	got, ran := c.Refresh(ctx)
	require.True(t, ran)
	assert.Equal(t, "ubiops\nwindyplay", got)

	// Back on the normal interval after a success.
	clock.Advance(10 * time.Second)
	_, ran = c.Refresh(ctx)
	assert.False(t, ran)
}

func TestRefresh_NeverFetchesRightAfterForce(t *testing.T) {
	acq := &fakeAcquirer{steps: []step{{html: modsPage}}}
	c, clock := newTestCoordinator(t, config.RefreshConfig{Interval: time.Minute}, acq, nil)
	scheduled := context.WithValue(context.Background(), tagKey{}, "scheduled")
	forced := context.WithValue(context.Background(), tagKey{}, "forced")

	for i := 0; i < 200; i++ {
		clock.Advance(time.Minute)
		acq.mu.Lock()
		before := len(acq.tags)
		acq.mu.Unlock()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.ForceRefresh(forced)
		}()
		go func() {
			defer wg.Done()
			c.Refresh(scheduled)
		}()
		wg.Wait()

		acq.mu.Lock()
		round := append([]string(nil), acq.tags[before:]...)
		acq.mu.Unlock()

		// Exactly one flight must have fetched; a scheduled fetch may only
		// come first at the same instant.
		require.NotEmpty(t, round, "round %d", i)
		for j, tag := range round[1:] {
			require.NotEqual(t, "scheduled", tag, "round %d: scheduled fetch at position %d of %v", i, j+1, round)
		}
	}
}

func TestForceRefresh_TimeoutThenRecovery(t *testing.T) {
	acq := &fakeAcquirer{steps: []step{
		{err: models.NewScrapeError(models.ReasonTimeout, "fetch", context.DeadlineExceeded)},
		{html: modsPage},
	}}
	c, _ := newTestCoordinator(t, config.RefreshConfig{}, acq, nil)
	ctx := context.Background()

	got := c.ForceRefresh(ctx)
	assert.True(t, strings.HasPrefix(got, "Error scraping website: "))
	assert.Contains(t, got, "timeout")
	assert.Equal(t, got, c.Read())
	assert.Equal(t, models.OutcomeFailure, c.Entry().Outcome)

	assert.Equal(t, "ubiops\nwindyplay", c.ForceRefresh(ctx))
}

func TestForceRefresh_BypassesDebounce(t *testing.T) {
	acq := &fakeAcquirer{steps: []step{{html: markerPage}, {html: modsPage}}}
	c, _ := newTestCoordinator(t, config.RefreshConfig{Interval: time.Hour}, acq, nil)
	ctx := context.Background()

	c.Refresh(ctx)
	assert.Equal(t, "ubiops\nwindyplay", c.ForceRefresh(ctx))
	assert.EqualValues(t, 2, acq.calls.Load())
}

func TestForceRefresh_PlainErrorIsTransport(t *testing.T) {
	acq := &fakeAcquirer{steps: []step{{err: assert.AnError}}}
	c, _ := newTestCoordinator(t, config.RefreshConfig{}, acq, nil)
	assert.Equal(t, "Error scraping website: transport", c.ForceRefresh(context.Background()))
}

func TestKeepLastGood(t *testing.T) {
	failure := step{err: models.NewScrapeError(models.ReasonTimeout, "fetch", nil)}

	t.Run("overwrite by default", func(t *testing.T) {
		acq := &fakeAcquirer{steps: []step{{html: modsPage}, failure}}
		c, _ := newTestCoordinator(t, config.RefreshConfig{}, acq, nil)
		c.ForceRefresh(context.Background())
		assert.Equal(t, "Error scraping website: timeout", c.ForceRefresh(context.Background()))
	})

	t.Run("keep last good", func(t *testing.T) {
		acq := &fakeAcquirer{steps: []step{{html: modsPage}, failure}}
		c, clock := newTestCoordinator(t, config.RefreshConfig{KeepLastGood: true}, acq, nil)
		c.ForceRefresh(context.Background())
		first := c.Entry().UpdatedAt

		clock.Advance(time.Minute)
		assert.Equal(t, "ubiops\nwindyplay", c.ForceRefresh(context.Background()))
		e := c.Entry()
		assert.Equal(t, models.OutcomeFailure, e.Outcome)
		assert.Equal(t, models.ReasonTimeout, e.Reason)
		assert.True(t, e.UpdatedAt.After(first))
	})

	t.Run("nothing to keep yet", func(t *testing.T) {
		acq := &fakeAcquirer{steps: []step{failure}}
		c, _ := newTestCoordinator(t, config.RefreshConfig{KeepLastGood: true}, acq, nil)
		assert.Equal(t, "Error scraping website: timeout", c.ForceRefresh(context.Background()))
	})
}

func TestExtractorPanicBecomesFailure(t *testing.T) {
	acq := &fakeAcquirer{steps: []step{{html: modsPage}}}
	c, _ := newTestCoordinator(t, config.RefreshConfig{}, acq, panickingExtractor{})
	assert.Equal(t, "Error scraping website: unparseable", c.ForceRefresh(context.Background()))
}

func TestDriftRecordedOnEntry(t *testing.T) {
	acq := &fakeAcquirer{steps: []step{{html: modsPage}, {html: tablePage}}}
	c, _ := newTestCoordinator(t, config.RefreshConfig{}, acq, nil)
	ctx := context.Background()

	c.ForceRefresh(ctx)
	assert.False(t, c.Entry().DriftDetected)

	c.ForceRefresh(ctx)
	e := c.Entry()
	assert.True(t, e.DriftDetected, "distance %d", e.Drift)
	assert.Greater(t, e.Drift, 0)
}

func TestConcurrentRefreshesNeverOverlap(t *testing.T) {
	acq := &fakeAcquirer{steps: []step{{html: modsPage}}, release: make(chan struct{})}
	c, _ := newTestCoordinator(t, config.RefreshConfig{}, acq, nil)

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.ForceRefresh(context.Background())
		}()
	}

	require.Eventually(t, func() bool { return acq.calls.Load() >= 1 }, time.Second, time.Millisecond)
	close(acq.release)
	wg.Wait()

	assert.EqualValues(t, 1, acq.maxInFlight.Load())
	for _, r := range results {
		assert.Equal(t, "ubiops\nwindyplay", r)
	}
}

func TestReadDuringRefresh(t *testing.T) {
	acq := &fakeAcquirer{steps: []step{{html: modsPage}}, release: make(chan struct{})}
	c, _ := newTestCoordinator(t, config.RefreshConfig{}, acq, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.ForceRefresh(context.Background())
	}()
	require.Eventually(t, func() bool { return acq.calls.Load() == 1 }, time.Second, time.Millisecond)

	// Readers are served the old value while the attempt is blocked.
	assert.Equal(t, models.NoModsOnline, c.Read())

	close(acq.release)
	<-done
	assert.Equal(t, "ubiops\nwindyplay", c.Read())
}

func TestAge(t *testing.T) {
	acq := &fakeAcquirer{steps: []step{{html: modsPage}}}
	c, clock := newTestCoordinator(t, config.RefreshConfig{}, acq, nil)
	assert.Zero(t, c.Age())

	c.ForceRefresh(context.Background())
	assert.Zero(t, c.Age())

	clock.Advance(90 * time.Second)
	assert.Equal(t, 90*time.Second, c.Age())
}

func TestStart_RecoversAfterTimeout(t *testing.T) {
	acq := &fakeAcquirer{steps: []step{
		{err: models.NewScrapeError(models.ReasonTimeout, "fetch", context.DeadlineExceeded)},
		{html: modsPage},
	}}
	cfg := config.RefreshConfig{Interval: time.Minute, Tick: time.Second}
	c, clock := newTestCoordinator(t, cfg, acq, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.Start(ctx)
	defer c.Stop()
	require.Eventually(t, func() bool { return strings.Contains(c.Read(), "timeout") }, time.Second, time.Millisecond)
	assert.Equal(t, "Error scraping website: timeout", c.Read())

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return c.Read() == "ubiops\nwindyplay" }, time.Second, time.Millisecond)
	assert.Equal(t, models.OutcomeNames, c.Entry().Outcome)
	assert.EqualValues(t, 2, acq.calls.Load())
}

func TestStartStop(t *testing.T) {
	acq := &fakeAcquirer{steps: []step{{html: markerPage}, {html: modsPage}}}
	cfg := config.RefreshConfig{Interval: time.Minute, Tick: time.Second}
	c, clock := newTestCoordinator(t, cfg, acq, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.Start(ctx)
	c.Start(ctx) // second call is ignored
	require.Eventually(t, func() bool { return c.Read() == "No mods online." }, time.Second, time.Millisecond)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return c.Read() == "ubiops\nwindyplay" }, time.Second, time.Millisecond)

	c.Stop()
	calls := acq.calls.Load()
	clock.Advance(time.Hour)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, calls, acq.calls.Load(), "no refresh after Stop")
	c.Stop()
}
