package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultTargetURL is the page carrying the mods panel.
const DefaultTargetURL = "https://gtid.site/"

// Acquisition modes.
const (
	ModeHTTP    = "http"
	ModeBrowser = "browser"
	ModeAuto    = "auto"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Scraper   ScraperConfig
	Browser   BrowserConfig
	Refresh   RefreshConfig
	Extractor ExtractorConfig
	RateLimit RateLimitConfig
	Auth      AuthConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 5000
	Mode string // gin mode: "debug", "release", "test"; default: "release"
}

// ScraperConfig controls page acquisition.
type ScraperConfig struct {
	// TargetURL is the page to scrape.
	TargetURL string

	// Mode is "http", "browser" or "auto". default: "auto"
	Mode string

	// FetchTimeout bounds one fetch or render. default: 10s
	FetchTimeout time.Duration

	// MaxRedirects bounds HTTP redirect hops. default: 5
	MaxRedirects int

	// SettleDelay is the fixed wait after navigation in the browser. default: 5s
	SettleDelay time.Duration

	// ContainerWait bounds the wait for the mods container to render. default: 15s
	ContainerWait time.Duration

	// PreferBrowserFor makes "auto" mode skip plain HTTP for this long after
	// an escalation to the browser succeeded. 0 disables. default: 30m
	PreferBrowserFor time.Duration
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is used by both the browser and the HTTP engine.
	Proxy string

	// BlockedResourceTypes lists resource types the browser never loads.
	// default: ["Image", "Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string

	// MaxRenders recycles the browser after this many renders. default: 50
	MaxRenders int

	// MaxAge recycles the browser after it has run this long. default: 50m
	MaxAge time.Duration
}

// RefreshConfig controls the background refresh loop.
type RefreshConfig struct {
	// Interval is the minimum time between two scheduled refresh attempts.
	Interval time.Duration // default: 60s

	// RedirectRetry replaces Interval after an attempt that hit a redirect
	// interstitial. default: 10s
	RedirectRetry time.Duration

	// Tick is how often the loop checks whether a refresh is due. default: 1s
	Tick time.Duration

	// KeepLastGood keeps the previous value when an attempt fails instead
	// of serving the failure string. default: false
	KeepLastGood bool

	// DriftThreshold is the SimHash distance above which a snapshot counts
	// as structurally different from the previous one. default: 12
	DriftThreshold int
}

// ExtractorConfig controls the extraction chain.
type ExtractorConfig struct {
	// KnownMods seeds the substring fallback. default: ["ubiops", "windyplay"]
	KnownMods []string
}

// RateLimitConfig limits GET /force-update per client.
type RateLimitConfig struct {
	RequestsPerSecond float64 // default: 0.2
	Burst             int     // default: 2
}

// AuthConfig protects GET /force-update. Reads are always public.
type AuthConfig struct {
	// APIKeys lists accepted keys; empty leaves the endpoint open.
	APIKeys []string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("MODCHECK_HOST", "0.0.0.0"),
			Port: envIntOr("PORT", 5000),
			Mode: envOr("MODCHECK_GIN_MODE", "release"),
		},
		Scraper: ScraperConfig{
			TargetURL:        envOr("MODCHECK_TARGET_URL", DefaultTargetURL),
			Mode:             envModeOr("MODCHECK_MODE", ModeAuto),
			FetchTimeout:     envDurationOr("MODCHECK_FETCH_TIMEOUT", 10*time.Second),
			MaxRedirects:     envIntOr("MODCHECK_MAX_REDIRECTS", 5),
			SettleDelay:      envDurationOr("MODCHECK_SETTLE_DELAY", 5*time.Second),
			ContainerWait:    envDurationOr("MODCHECK_CONTAINER_WAIT", 15*time.Second),
			PreferBrowserFor: envDurationOr("MODCHECK_PREFER_BROWSER_FOR", 30*time.Minute),
		},
		Browser: BrowserConfig{
			Headless:   envBoolOr("MODCHECK_HEADLESS", true),
			NoSandbox:  envBoolOr("MODCHECK_NO_SANDBOX", false),
			BrowserBin: os.Getenv("MODCHECK_BROWSER_BIN"),
			Proxy:      os.Getenv("MODCHECK_PROXY"),
			BlockedResourceTypes: envSliceOr("MODCHECK_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
			MaxRenders: envIntOr("MODCHECK_BROWSER_MAX_RENDERS", 50),
			MaxAge:     envDurationOr("MODCHECK_BROWSER_MAX_AGE", 50*time.Minute),
		},
		Refresh: RefreshConfig{
			Interval:       envDurationOr("MODCHECK_REFRESH_INTERVAL", 60*time.Second),
			RedirectRetry:  envDurationOr("MODCHECK_REDIRECT_RETRY", 10*time.Second),
			Tick:           envDurationOr("MODCHECK_TICK", time.Second),
			KeepLastGood:   envBoolOr("MODCHECK_KEEP_LAST_GOOD", false),
			DriftThreshold: envIntOr("MODCHECK_DRIFT_THRESHOLD", 12),
		},
		Extractor: ExtractorConfig{
			KnownMods: envSliceOr("MODCHECK_KNOWN_MODS", []string{"ubiops", "windyplay"}),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("MODCHECK_FORCE_RPS", 0.2),
			Burst:             envIntOr("MODCHECK_FORCE_BURST", 2),
		},
		Auth: AuthConfig{
			APIKeys: envSliceOr("MODCHECK_API_KEYS", nil),
		},
		Log: LogConfig{
			Level:  envOr("MODCHECK_LOG_LEVEL", "info"),
			Format: envOr("MODCHECK_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envModeOr(key, fallback string) string {
	switch v := strings.ToLower(os.Getenv(key)); v {
	case ModeHTTP, ModeBrowser, ModeAuto:
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envDurationOr accepts Go durations ("90s", "2m") and bare integers, which
// are read as seconds.
func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
