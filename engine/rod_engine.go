package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/modcheck/config"
	"github.com/use-agent/modcheck/models"
	"github.com/ysmood/gson"
)

// RodEngine renders pages in headless Chromium. The browser process is
// launched on first use and kept; each Render gets its own stealth page that
// is closed before Render returns. Renders are serialised, so at most one
// page is open at any time.
type RodEngine struct {
	cfg    config.BrowserConfig
	logger *slog.Logger

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	health   *browserHealth
}

// NewRodEngine creates a RodEngine. No browser is started until the first
// Render.
func NewRodEngine(cfg config.BrowserConfig, logger *slog.Logger) *RodEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &RodEngine{
		cfg:    cfg,
		logger: logger,
		health: newBrowserHealth(cfg.MaxRenders, cfg.MaxAge),
	}
}

func (e *RodEngine) Name() string { return "rod" }

// Render navigates to req.URL, waits for content, and returns the rendered
// HTML.
//
// Lifecycle:
//
//  1. Timeout guard     – hard deadline on the whole render
//  2. Browser           – launch or reuse
//  3. Page              – fresh stealth page
//  4. DEFER: close page – on every exit path
//  5. Headers + hijack  – must precede navigation
//  6. Navigate
//  7. Wait              – container selector or settle delay, first wins
//  8. Extract           – HTML, title, final URL, status code
//
// The browser is recycled once its health score, render count or age
// crosses the configured limits.
func (e *RodEngine) Render(ctx context.Context, req *RenderRequest) (res *FetchResult, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	defer func() {
		if e.browser == nil {
			return
		}
		if err != nil {
			e.health.recordFailure()
		} else {
			e.health.recordSuccess()
		}
		if e.health.shouldRetire(time.Now()) {
			e.logger.Info("rod: recycling browser",
				"renders", e.health.renders,
				"errScore", e.health.errScore,
			)
			e.closeLocked()
		}
	}()

	// ── 1. Timeout guard ──────────────────────────────────────────────
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	// ── 2. Browser ────────────────────────────────────────────────────
	browser, err := e.ensureBrowserLocked()
	if err != nil {
		return nil, err
	}

	// ── 3. Page ───────────────────────────────────────────────────────
	page, err := stealth.Page(browser)
	if err != nil {
		e.resetLocked()
		return nil, models.NewScrapeError(models.ReasonBrowserCrash, "failed to open page", err)
	}

	// ── 4. Release the page whatever happens ──────────────────────────
	defer func() {
		if closeErr := page.Close(); closeErr != nil && e.browser != nil {
			e.logger.Warn("rod: failed to close page", "error", closeErr)
		}
	}()

	// ── 5. Headers + resource blocking ────────────────────────────────
	headers := map[string]string{"User-Agent": ChromeUA}
	for k, v := range req.Headers {
		headers[k] = v
	}
	_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(headers)}.Call(page)

	if router := setupHijack(page, e.cfg.BlockedResourceTypes); router != nil {
		defer func() { _ = router.Stop() }()
	}

	p := page.Context(ctx)

	// ── 6. Navigate ───────────────────────────────────────────────────
	if navErr := p.Navigate(req.URL); navErr != nil {
		return nil, e.fail(navErr, "navigation to target URL failed")
	}

	// ── 7. Wait ───────────────────────────────────────────────────────
	waitForContent(ctx, p, req, e.logger)

	// ── 8. Extract ────────────────────────────────────────────────────
	rawHTML, htmlErr := p.HTML()
	if htmlErr != nil {
		return nil, e.fail(htmlErr, "failed to extract page HTML")
	}

	title := evalStringOrEmpty(p, `() => document.title`)
	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = req.URL
	}

	statusCode := 0
	if nav, evalErr := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`); evalErr == nil {
		statusCode = nav.Value.Int()
	}

	return &FetchResult{
		HTML:       rawHTML,
		Title:      title,
		StatusCode: statusCode,
		FinalURL:   finalURL,
		EngineName: e.Name(),
	}, nil
}

// Close shuts down the browser process, if any.
func (e *RodEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.browser == nil {
		return nil
	}
	e.logger.Info("rod: closing browser")
	return e.closeLocked()
}

func (e *RodEngine) closeLocked() error {
	err := e.browser.Close()
	e.launcher.Cleanup()
	e.browser, e.launcher = nil, nil
	return err
}

// fail categorizes a render error. Anything other than a deadline is taken
// as a sign the browser is unhealthy, and the next Render relaunches it.
func (e *RodEngine) fail(err error, msg string) *models.ScrapeError {
	se := categorizeError(err, msg)
	if se.Reason != models.ReasonTimeout {
		e.resetLocked()
	}
	return se
}

func (e *RodEngine) ensureBrowserLocked() (*rod.Browser, error) {
	if e.browser != nil {
		return e.browser, nil
	}

	l := launcher.New().
		Headless(e.cfg.Headless).
		NoSandbox(e.cfg.NoSandbox)
	if e.cfg.BrowserBin != "" {
		l = l.Bin(e.cfg.BrowserBin)
	}
	if e.cfg.Proxy != "" {
		l = l.Proxy(e.cfg.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(models.ReasonBrowserCrash, "failed to launch browser", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, models.NewScrapeError(models.ReasonBrowserCrash, "failed to connect to browser", err)
	}
	e.logger.Info("rod: browser launched", "controlURL", controlURL)

	e.launcher, e.browser = l, browser
	e.health.reset(time.Now())
	return browser, nil
}

func (e *RodEngine) resetLocked() {
	if e.browser == nil {
		return
	}
	e.logger.Warn("rod: dropping browser after failure")
	_ = e.browser.Close()
	e.launcher.Kill()
	e.browser, e.launcher = nil, nil
}

// waitForContent blocks until the wait selector appears, the settle delay
// elapses, or ctx is done, whichever is first.
func waitForContent(ctx context.Context, p *rod.Page, req *RenderRequest, logger *slog.Logger) {
	settle := time.NewTimer(req.SettleDelay)
	defer settle.Stop()

	if req.WaitSelector == "" {
		select {
		case <-settle.C:
		case <-ctx.Done():
		}
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, req.ContainerWait)
	defer cancel()

	found := make(chan error, 1)
	go func() {
		found <- p.Context(waitCtx).WaitElementsMoreThan(req.WaitSelector, 0)
	}()

	select {
	case err := <-found:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Debug("rod: container did not appear", "selector", req.WaitSelector, "error", err)
		}
	case <-settle.C:
		logger.Debug("rod: settle delay elapsed before container appeared", "selector", req.WaitSelector)
	case <-ctx.Done():
	}
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors.
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
