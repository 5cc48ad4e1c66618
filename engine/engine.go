package engine

import (
	"context"
	"time"
)

// Fetcher retrieves a page over plain HTTP without running scripts.
type Fetcher interface {
	// Name returns the engine identifier (e.g. "http").
	Name() string

	// Fetch retrieves the page. Responses of any status are returned as a
	// FetchResult; only transport problems are errors.
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

// Renderer loads a page in a browser, lets its scripts run, and returns the
// rendered DOM.
type Renderer interface {
	Name() string
	Render(ctx context.Context, req *RenderRequest) (*FetchResult, error)
	Close() error
}

// FetchRequest contains everything a Fetcher needs.
type FetchRequest struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration

	// MaxRedirects bounds HTTP redirect hops. With 0 any redirect fails
	// with a too-many-redirects error.
	MaxRedirects int
}

// RenderRequest contains everything a Renderer needs.
type RenderRequest struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration

	// WaitSelector is the element whose appearance means the content has
	// been populated. Empty means wait SettleDelay unconditionally.
	WaitSelector string

	// ContainerWait bounds the wait for WaitSelector.
	ContainerWait time.Duration

	// SettleDelay is the fixed wait after navigation; the snapshot is taken
	// after whichever of WaitSelector or SettleDelay comes first.
	SettleDelay time.Duration
}

// FetchResult is the output of a successful fetch or render.
type FetchResult struct {
	HTML       string
	Title      string
	StatusCode int
	FinalURL   string
	EngineName string
}
