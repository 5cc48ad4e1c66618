package models

import "fmt"

// Failure reasons carried by ScrapeError and by Result.Reason. They are short
// and stable so the display string stays machine-greppable.
const (
	ReasonTimeout           = "timeout"
	ReasonTransport         = "transport"
	ReasonTooManyRedirects  = "too many redirects"
	ReasonBrowserCrash      = "browser crash"
	ReasonRedirecting       = "redirecting"
	ReasonContainerNotFound = "container not found"
	ReasonNoLabels          = "no labels matched"
	ReasonUnparseable       = "unparseable"
)

// Kind groups failure reasons into the three failure classes the refresh
// coordinator cares about.
type Kind int

const (
	TransportFailure Kind = iota
	StructuralFailure
	RedirectPending
)

func (k Kind) String() string {
	switch k {
	case StructuralFailure:
		return "structural"
	case RedirectPending:
		return "redirect_pending"
	default:
		return "transport"
	}
}

// KindOf classifies a failure reason.
func KindOf(reason string) Kind {
	switch reason {
	case ReasonRedirecting:
		return RedirectPending
	case ReasonContainerNotFound, ReasonNoLabels, ReasonUnparseable:
		return StructuralFailure
	default:
		return TransportFailure
	}
}

// ScrapeError is the internal error type carrying a failure reason.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Reason  string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// Kind reports the failure class of the error.
func (e *ScrapeError) Kind() Kind {
	return KindOf(e.Reason)
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(reason, message string, err error) *ScrapeError {
	return &ScrapeError{Reason: reason, Message: message, Err: err}
}
