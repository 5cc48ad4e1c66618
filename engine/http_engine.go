package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	tls "github.com/refraction-networking/utls"
	"github.com/use-agent/modcheck/models"
	"golang.org/x/net/html"
)

// ChromeUA is the desktop Chrome User-Agent sent by every engine.
const ChromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// maxBody caps how much of a response is read.
const maxBody = 10 << 20

// errTooManyRedirects is returned from CheckRedirect when the hop limit is hit.
var errTooManyRedirects = errors.New("too many redirects")

// HTTPEngine fetches pages over net/http with a Chrome-like TLS fingerprint.
type HTTPEngine struct {
	transport *http.Transport
}

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// NewHTTPEngine creates an HTTPEngine. proxy, if non-empty, is an http(s)
// proxy URL used for every request.
func NewHTTPEngine(proxy string) *HTTPEngine {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("http_engine: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2: false,
		IdleConnTimeout:   90 * time.Second,
	}
	if proxy != "" {
		if proxyURL, err := url.Parse(proxy); err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return &HTTPEngine{transport: transport}
}

func (e *HTTPEngine) Name() string { return "http" }

// client builds a client whose redirect policy matches the request.
func (e *HTTPEngine) client(maxRedirects int) *http.Client {
	return &http.Client{
		Transport: e.transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return errTooManyRedirects
			}
			return nil
		},
	}
}

func (e *HTTPEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, models.NewScrapeError(models.ReasonTransport, "build request", err)
	}

	httpReq.Header.Set("User-Agent", ChromeUA)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	httpReq.Header.Set("Accept-Encoding", "identity")
	httpReq.Header.Set("Cache-Control", "no-cache")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := e.client(req.MaxRedirects).Do(httpReq)
	if err != nil {
		return nil, categorizeError(err, "http request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, categorizeError(err, "read body")
	}

	bodyStr := string(body)
	return &FetchResult{
		HTML:       bodyStr,
		Title:      ExtractTitle(bodyStr),
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
		EngineName: e.Name(),
	}, nil
}

// ExtractTitle uses the Go HTML tokenizer to find the first <title> element.
func ExtractTitle(htmlStr string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(htmlStr))
	inTitle := false
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(tokenizer.Text()))
			}
		case html.EndTagToken:
			if inTitle {
				return ""
			}
		}
	}
}

// categorizeError wraps raw transport errors into typed ScrapeErrors.
func categorizeError(err error, msg string) *models.ScrapeError {
	var urlErr *url.Error
	switch {
	case errors.Is(err, errTooManyRedirects):
		return models.NewScrapeError(models.ReasonTooManyRedirects, msg, err)
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ReasonTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ReasonTimeout, "request canceled", err)
	case errors.As(err, &urlErr) && urlErr.Timeout():
		return models.NewScrapeError(models.ReasonTimeout, msg, err)
	default:
		return models.NewScrapeError(models.ReasonTransport, msg, err)
	}
}
