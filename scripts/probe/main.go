// Command probe scrapes the target once per run in each acquisition mode
// and reports which modes produce a conclusive result and how long they
// take. It runs in-process and does not need the server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/use-agent/modcheck/config"
	"github.com/use-agent/modcheck/engine"
	"github.com/use-agent/modcheck/extractor"
	"github.com/use-agent/modcheck/models"
	"github.com/use-agent/modcheck/scraper"
)

// CLI flags
var (
	targetURL = flag.String("url", config.DefaultTargetURL, "Page to probe")
	modes     = flag.String("modes", "http,browser,auto", "Comma-separated acquisition modes to try")
	runs      = flag.Int("runs", 3, "Number of runs per mode")
	output    = flag.String("output", "probe-results.json", "JSON output file path")
	verbose   = flag.Bool("v", false, "Log scraper activity to stderr")
)

type runResult struct {
	Run        int    `json:"run"`
	TotalMs    int64  `json:"total_ms"`
	Engine     string `json:"engine,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Outcome    string `json:"outcome"`
	Strategy   string `json:"strategy,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Value      string `json:"value"`
}

type modeResult struct {
	Mode       string      `json:"mode"`
	Runs       []runResult `json:"runs"`
	Conclusive int         `json:"conclusive"`
	AvgMs      float64     `json:"avg_ms"`
}

type probeReport struct {
	Timestamp   string       `json:"timestamp"`
	TargetURL   string       `json:"target_url"`
	RunsPerMode int          `json:"runs_per_mode"`
	Results     []modeResult `json:"results"`
}

func main() {
	flag.Parse()

	cfg := config.Load()
	cfg.Scraper.TargetURL = *targetURL
	cfg.Scraper.PreferBrowserFor = 0

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	fmt.Println("=== modcheck probe ===")
	fmt.Printf("Target:    %s\n", *targetURL)
	fmt.Printf("Runs/mode: %d\n", *runs)
	fmt.Printf("Output:    %s\n", *output)
	fmt.Println()

	fetcher := engine.NewHTTPEngine(cfg.Browser.Proxy)
	renderer := engine.NewRodEngine(cfg.Browser, logger)
	defer renderer.Close()

	chain := extractor.NewChain(
		extractor.WithKnownNames(cfg.Extractor.KnownMods),
		extractor.WithLogger(logger),
	)

	report := probeReport{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		TargetURL:   *targetURL,
		RunsPerMode: *runs,
	}

	for _, mode := range strings.Split(*modes, ",") {
		mode = strings.TrimSpace(mode)
		if mode == "" {
			continue
		}
		sc := cfg.Scraper
		sc.Mode = mode
		acq, err := scraper.NewAcquirer(sc, fetcher, renderer, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Probing mode %q ...\n", mode)
		mr := modeResult{Mode: mode}
		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := probeOnce(acq, chain, i)
			fmt.Printf("%-7s %5dms  %s\n", rr.Outcome, rr.TotalMs, firstLine(rr.Value))
			mr.Runs = append(mr.Runs, rr)
		}
		summarize(&mr)
		report.Results = append(report.Results, mr)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func probeOnce(acq *scraper.Acquirer, chain *extractor.Chain, run int) runResult {
	rr := runResult{Run: run}
	start := time.Now()

	var res models.Result
	snap, err := acq.Acquire(context.Background())
	if err != nil {
		reason := models.ReasonTransport
		var se *models.ScrapeError
		if errors.As(err, &se) {
			reason = se.Reason
		}
		res = models.Failure(reason)
	} else {
		res = chain.Extract(snap)
		rr.Engine = snap.EngineName
		rr.StatusCode = snap.StatusCode
	}

	rr.TotalMs = time.Since(start).Milliseconds()
	rr.Outcome = res.Outcome.String()
	rr.Strategy = res.Strategy
	rr.Reason = res.Reason
	rr.Value = res.Display()
	return rr
}

func summarize(mr *modeResult) {
	var total int64
	for _, r := range mr.Runs {
		total += r.TotalMs
		if r.Outcome != models.OutcomeFailure.String() {
			mr.Conclusive++
		}
	}
	if len(mr.Runs) > 0 {
		mr.AvgMs = float64(total) / float64(len(mr.Runs))
	}
}

func printTable(results []modeResult) {
	fmt.Println(strings.Repeat("─", 72))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Mode\tAvg Latency\tConclusive\tLast Strategy\tLast Reason\n")
	fmt.Fprintf(w, "────\t───────────\t──────────\t─────────────\t───────────\n")

	for _, r := range results {
		var strategy, reason string
		if n := len(r.Runs); n > 0 {
			strategy, reason = r.Runs[n-1].Strategy, r.Runs[n-1].Reason
		}
		fmt.Fprintf(w, "%s\t%dms\t%d/%d\t%s\t%s\n",
			r.Mode,
			int64(r.AvgMs),
			r.Conclusive, len(r.Runs),
			dashIfEmpty(strategy),
			dashIfEmpty(reason),
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 72))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func writeJSON(path string, report probeReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
