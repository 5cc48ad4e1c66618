// Package scraper acquires a snapshot of the target page through the HTTP
// fetcher, the browser renderer, or both, and turns every transport problem
// into a typed *models.ScrapeError.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/use-agent/modcheck/config"
	"github.com/use-agent/modcheck/engine"
	"github.com/use-agent/modcheck/extractor"
	"github.com/use-agent/modcheck/models"
)

// Acquirer fetches the target page and returns a snapshot ready for
// extraction.
type Acquirer struct {
	cfg      config.ScraperConfig
	fetcher  engine.Fetcher
	renderer engine.Renderer
	logger   *slog.Logger
	now      func() time.Time

	prefer *browserPreference
}

// NewAcquirer creates an Acquirer. fetcher is required for the "http" and
// "auto" modes, renderer for "browser"; in "auto" a nil renderer disables
// escalation.
func NewAcquirer(cfg config.ScraperConfig, fetcher engine.Fetcher, renderer engine.Renderer, logger *slog.Logger) (*Acquirer, error) {
	switch cfg.Mode {
	case config.ModeHTTP, config.ModeAuto:
		if fetcher == nil {
			return nil, fmt.Errorf("scraper: mode %q needs a fetcher", cfg.Mode)
		}
	case config.ModeBrowser:
		if renderer == nil {
			return nil, fmt.Errorf("scraper: mode %q needs a renderer", cfg.Mode)
		}
	default:
		return nil, fmt.Errorf("scraper: unknown mode %q", cfg.Mode)
	}
	if _, err := url.ParseRequestURI(cfg.TargetURL); err != nil {
		return nil, fmt.Errorf("scraper: invalid target url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Acquirer{
		cfg:      cfg,
		fetcher:  fetcher,
		renderer: renderer,
		logger:   logger,
		now:      time.Now,
		prefer:   &browserPreference{ttl: cfg.PreferBrowserFor},
	}, nil
}

// Acquire returns a snapshot of the target page. Every error it returns is
// a *models.ScrapeError; panics from the transport are recovered and
// reported as a browser crash.
func (a *Acquirer) Acquire(ctx context.Context) (snap *models.Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("scraper: acquisition panicked", "panic", r)
			snap, err = nil, models.NewScrapeError(models.ReasonBrowserCrash, fmt.Sprint(r), nil)
		}
	}()

	switch a.cfg.Mode {
	case config.ModeBrowser:
		return a.viaBrowser(ctx)
	case config.ModeHTTP:
		s, fetchErr := a.viaHTTP(ctx)
		if fetchErr != nil {
			return nil, fetchErr
		}
		if verifyErr := verify(s); verifyErr != nil {
			return nil, verifyErr
		}
		return s, nil
	default:
		return a.auto(ctx)
	}
}

// auto tries plain HTTP first and escalates to the browser when the result
// is an interstitial, an error page, or a script shell without the
// container. After a successful escalation HTTP is skipped for
// PreferBrowserFor.
func (a *Acquirer) auto(ctx context.Context) (*models.Snapshot, error) {
	if a.renderer != nil && a.prefer.active(a.now()) {
		snap, err := a.viaBrowser(ctx)
		if err != nil {
			a.prefer.forget()
		}
		return snap, err
	}

	snap, err := a.viaHTTP(ctx)
	if err == nil {
		err = verify(snap)
		if err == nil && !NeedsBrowser([]byte(snap.HTML)) {
			return snap, nil
		}
	}
	if a.renderer == nil {
		if err != nil {
			return nil, err
		}
		return snap, nil
	}

	var se *models.ScrapeError
	if errors.As(err, &se) && se.Reason == models.ReasonTimeout && ctx.Err() != nil {
		return nil, err
	}
	a.logger.Info("scraper: escalating to browser", "url", a.cfg.TargetURL, "http_error", err)
	snap, err = a.viaBrowser(ctx)
	if err == nil {
		a.prefer.remember(a.now())
	}
	return snap, err
}

// viaHTTP fetches the target and follows at most one meta-refresh hop.
func (a *Acquirer) viaHTTP(ctx context.Context) (*models.Snapshot, error) {
	res, err := a.fetch(ctx, a.cfg.TargetURL)
	if err != nil {
		return nil, err
	}

	if target, ok := MetaRefreshTarget(res.HTML, res.FinalURL); ok && !hasContainer(res.HTML) {
		a.logger.Debug("scraper: following meta refresh", "from", res.FinalURL, "to", target)
		res, err = a.fetch(ctx, target)
		if err != nil {
			return nil, err
		}
	}
	return a.snapshot(res), nil
}

func (a *Acquirer) fetch(ctx context.Context, target string) (*engine.FetchResult, error) {
	res, err := a.fetcher.Fetch(ctx, &engine.FetchRequest{
		URL:          target,
		Timeout:      a.cfg.FetchTimeout,
		MaxRedirects: a.cfg.MaxRedirects,
	})
	if err != nil {
		return nil, normalizeError(err, "fetch "+target)
	}
	return res, nil
}

func (a *Acquirer) viaBrowser(ctx context.Context) (*models.Snapshot, error) {
	wait := a.cfg.SettleDelay
	if a.cfg.ContainerWait < wait {
		wait = a.cfg.ContainerWait
	}
	res, err := a.renderer.Render(ctx, &engine.RenderRequest{
		URL:           a.cfg.TargetURL,
		Timeout:       a.cfg.FetchTimeout + wait,
		WaitSelector:  extractor.ContainerCSS,
		ContainerWait: a.cfg.ContainerWait,
		SettleDelay:   a.cfg.SettleDelay,
	})
	if err != nil {
		return nil, normalizeError(err, "render "+a.cfg.TargetURL)
	}
	snap := a.snapshot(res)
	if IsInterstitial(snap) {
		return nil, models.NewScrapeError(models.ReasonRedirecting, "rendered page is still an interstitial", nil)
	}
	return snap, nil
}

func (a *Acquirer) snapshot(res *engine.FetchResult) *models.Snapshot {
	return &models.Snapshot{
		HTML:       res.HTML,
		Title:      res.Title,
		FinalURL:   res.FinalURL,
		StatusCode: res.StatusCode,
		EngineName: res.EngineName,
		FetchedAt:  a.now(),
	}
}

// verify rejects interstitials and error statuses. Interstitials are
// checked first since challenge pages are usually served with 403 or 503.
func verify(snap *models.Snapshot) error {
	if IsInterstitial(snap) {
		return models.NewScrapeError(models.ReasonRedirecting, "interstitial page: "+snap.Title, nil)
	}
	if snap.StatusCode >= 400 {
		return models.NewScrapeError(fmt.Sprintf("http %d", snap.StatusCode), "upstream error status", nil)
	}
	return nil
}

// normalizeError makes sure every error leaving the package is a
// *models.ScrapeError.
func normalizeError(err error, msg string) *models.ScrapeError {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ReasonTimeout, msg, err)
	default:
		return models.NewScrapeError(models.ReasonTransport, msg, err)
	}
}
