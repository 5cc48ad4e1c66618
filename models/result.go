package models

import (
	"strings"
	"time"
)

// NoModsOnline is the display string for a confirmed empty list. It is also
// the value served before the first refresh completes.
const NoModsOnline = "No mods online."

// failurePrefix prefixes every failure display string.
const failurePrefix = "Error scraping website: "

// Outcome tags an extraction Result.
type Outcome int

const (
	OutcomeFailure Outcome = iota
	OutcomeEmpty
	OutcomeNames
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNames:
		return "names"
	case OutcomeEmpty:
		return "empty"
	default:
		return "failure"
	}
}

// Result is the outcome of running the extraction chain on one snapshot.
// Exactly one of the three shapes holds:
//
//	OutcomeNames   Names is non-empty, deduplicated, first-seen order
//	OutcomeEmpty   the page confirmed zero mods online
//	OutcomeFailure Reason says why the state could not be determined
type Result struct {
	Outcome  Outcome
	Names    []string
	Reason   string
	Strategy string
}

// Names builds a Names result. Duplicates are dropped and an empty list
// collapses to Empty.
func Names(names []string) Result {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	if len(out) == 0 {
		return Empty()
	}
	return Result{Outcome: OutcomeNames, Names: out}
}

// Empty builds a confirmed-empty result.
func Empty() Result {
	return Result{Outcome: OutcomeEmpty}
}

// Failure builds a failure result with the given reason.
func Failure(reason string) Result {
	return Result{Outcome: OutcomeFailure, Reason: reason}
}

// Conclusive reports whether the result ends the strategy chain.
func (r Result) Conclusive() bool {
	return r.Outcome != OutcomeFailure
}

// Display renders the result the way the read endpoint serves it.
func (r Result) Display() string {
	switch r.Outcome {
	case OutcomeNames:
		return strings.Join(r.Names, "\n")
	case OutcomeEmpty:
		return NoModsOnline
	default:
		return FailureDisplay(r.Reason)
	}
}

// FailureDisplay formats a failure reason for readers.
func FailureDisplay(reason string) string {
	if reason == "" {
		reason = ReasonTransport
	}
	return failurePrefix + reason
}

// Snapshot is one acquired rendering of the target page. It is created per
// fetch attempt and discarded after extraction.
type Snapshot struct {
	HTML       string
	Title      string
	FinalURL   string
	StatusCode int
	EngineName string
	FetchedAt  time.Time
}
