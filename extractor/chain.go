// Package extractor turns an acquired page snapshot into the list of mods
// currently online. Strategies run in a fixed order of decreasing
// confidence; the first conclusive result wins and results are never merged.
package extractor

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/use-agent/modcheck/models"
)

// DefaultKnownNames seeds the substring fallback.
var DefaultKnownNames = []string{"ubiops", "windyplay"}

// Chain runs strategies in order until one is conclusive.
type Chain struct {
	strategies []Strategy
	logger     *slog.Logger
}

// Option configures a Chain built by NewChain.
type Option func(*chainOptions)

type chainOptions struct {
	known  []string
	logger *slog.Logger
}

// WithKnownNames replaces the names the substring fallback searches for.
func WithKnownNames(names []string) Option {
	return func(o *chainOptions) { o.known = names }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *chainOptions) { o.logger = l }
}

// NewChain builds the default chain:
// container → relaxed → container-missing → substring.
func NewChain(opts ...Option) *Chain {
	o := chainOptions{
		known:  DefaultKnownNames,
		logger: slog.Default(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	return &Chain{
		strategies: []Strategy{
			containerStrategy{},
			relaxedStrategy{},
			containerMissingStrategy{},
			substringStrategy{known: o.known},
		},
		logger: o.logger,
	}
}

// New builds a chain from explicit strategies.
func New(logger *slog.Logger, strategies ...Strategy) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{strategies: strategies, logger: logger}
}

// StrategyNames lists the strategies in evaluation order.
func (c *Chain) StrategyNames() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Extract runs the chain on a snapshot. It always returns a Result; parse
// errors and panics inside a strategy become Failure("unparseable").
func (c *Chain) Extract(snap *models.Snapshot) (res models.Result) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("extractor: strategy panicked", "panic", r)
			res = models.Failure(models.ReasonUnparseable)
		}
	}()

	doc, err := ParseDocument(snap)
	if err != nil {
		reason := models.ReasonUnparseable
		var se *models.ScrapeError
		if errors.As(err, &se) {
			reason = se.Reason
		}
		return models.Failure(reason)
	}
	return c.run(doc)
}

func (c *Chain) run(doc *Document) models.Result {
	var first *models.Result
	tried := make([]string, 0, len(c.strategies))

	for _, s := range c.strategies {
		r := s.Attempt(doc)
		r.Strategy = s.Name()
		tried = append(tried, s.Name())
		if r.Conclusive() {
			c.logger.Debug("extractor: conclusive result",
				"strategy", r.Strategy,
				"outcome", r.Outcome.String(),
				"names", len(r.Names),
			)
			return r
		}
		if first == nil {
			first = &r
		}
	}

	if first == nil {
		return models.Failure(models.ReasonContainerNotFound)
	}
	c.logger.Debug("extractor: no strategy conclusive",
		"reason", first.Reason,
		"tried", strings.Join(tried, ","),
	)
	return *first
}
