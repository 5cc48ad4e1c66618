package engine

import (
	"math"
	"time"
)

// Browser recycling thresholds. A browser is relaunched when any one is
// reached:
//   - error score >= retireErrScore (success: -0.5, min 0; failure: +1)
//   - renders >= maxRenders
//   - age >= maxAge
const retireErrScore = 3.0

// browserHealth scores one browser process. It is only touched under
// RodEngine.mu.
type browserHealth struct {
	maxRenders int
	maxAge     time.Duration

	errScore float64
	renders  int
	launched time.Time
}

func newBrowserHealth(maxRenders int, maxAge time.Duration) *browserHealth {
	return &browserHealth{maxRenders: maxRenders, maxAge: maxAge}
}

func (h *browserHealth) reset(now time.Time) {
	h.errScore = 0
	h.renders = 0
	h.launched = now
}

func (h *browserHealth) recordSuccess() {
	h.renders++
	h.errScore = math.Max(0, h.errScore-0.5)
}

func (h *browserHealth) recordFailure() {
	h.renders++
	h.errScore += 1.0
}

// shouldRetire reports whether the browser has served long enough. Zero
// limits are disabled.
func (h *browserHealth) shouldRetire(now time.Time) bool {
	if h.errScore >= retireErrScore {
		return true
	}
	if h.maxRenders > 0 && h.renders >= h.maxRenders {
		return true
	}
	if h.maxAge > 0 && !h.launched.IsZero() && now.Sub(h.launched) >= h.maxAge {
		return true
	}
	return false
}
