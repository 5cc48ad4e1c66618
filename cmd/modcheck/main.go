package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/modcheck/api"
	"github.com/use-agent/modcheck/cache"
	"github.com/use-agent/modcheck/config"
	"github.com/use-agent/modcheck/engine"
	"github.com/use-agent/modcheck/extractor"
	"github.com/use-agent/modcheck/refresh"
	"github.com/use-agent/modcheck/scraper"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("modcheck starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"target", cfg.Scraper.TargetURL,
		"mode", cfg.Scraper.Mode,
		"interval", cfg.Refresh.Interval,
	)

	// ── 3. Initialise engines for the acquisition mode ──────────────
	var (
		fetcher  engine.Fetcher
		renderer engine.Renderer
	)
	if cfg.Scraper.Mode != config.ModeBrowser {
		fetcher = engine.NewHTTPEngine(cfg.Browser.Proxy)
	}
	if cfg.Scraper.Mode != config.ModeHTTP {
		rod := engine.NewRodEngine(cfg.Browser, slog.Default())
		defer rod.Close()
		renderer = rod
	}

	acq, err := scraper.NewAcquirer(cfg.Scraper, fetcher, renderer, slog.Default())
	if err != nil {
		slog.Error("failed to initialise acquirer", "error", err)
		os.Exit(1)
	}

	// ── 4. Extraction chain, cache and refresh loop ─────────────────
	chain := extractor.NewChain(
		extractor.WithKnownNames(cfg.Extractor.KnownMods),
		extractor.WithLogger(slog.Default()),
	)
	slog.Info("extraction chain ready", "strategies", chain.StrategyNames())

	coord := refresh.NewCoordinator(cfg.Refresh, acq, chain, cache.New(),
		refresh.WithLogger(slog.Default()),
	)

	rootCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	coord.Start(rootCtx)

	// ── 5. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(coord, cfg, startTime)

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Forced refreshes can hold a request for a full fetch; allow for it.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Scraper.FetchTimeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	coord.Stop()

	// The browser, if any, is closed by the deferred rod.Close().
	slog.Info("modcheck stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
