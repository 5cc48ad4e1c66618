package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/modcheck/models"
)

func reasonOf(t *testing.T, err error) string {
	t.Helper()
	var se *models.ScrapeError
	if !errors.As(err, &se) {
		t.Fatalf("expected *models.ScrapeError, got %T: %v", err, err)
	}
	return se.Reason
}

func TestHTTPEngine_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != ChromeUA {
			t.Errorf("User-Agent = %q", got)
		}
		if got := r.Header.Get("X-Test"); got != "1" {
			t.Errorf("X-Test = %q, want 1", got)
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title> GTID </title></head><body>hi</body></html>`)
	}))
	defer srv.Close()

	res, err := NewHTTPEngine("").Fetch(context.Background(), &FetchRequest{
		URL:          srv.URL,
		Headers:      map[string]string{"X-Test": "1"},
		Timeout:      time.Second,
		MaxRedirects: 5,
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Title != "GTID" {
		t.Errorf("Title = %q, want GTID", res.Title)
	}
	if res.StatusCode != http.StatusOK || res.EngineName != "http" {
		t.Errorf("got status %d engine %q", res.StatusCode, res.EngineName)
	}
}

func TestHTTPEngine_FollowsRedirectsWithinLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/a", http.StatusFound)
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>done</body></html>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := NewHTTPEngine("")
	res, err := e.Fetch(context.Background(), &FetchRequest{URL: srv.URL + "/", MaxRedirects: 2})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.FinalURL != srv.URL+"/final" {
		t.Errorf("FinalURL = %q", res.FinalURL)
	}

	_, err = e.Fetch(context.Background(), &FetchRequest{URL: srv.URL + "/", MaxRedirects: 1})
	if got := reasonOf(t, err); got != models.ReasonTooManyRedirects {
		t.Errorf("reason = %q, want %q", got, models.ReasonTooManyRedirects)
	}
}

func TestHTTPEngine_ZeroRedirectsRejectsAnyRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>done</body></html>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := NewHTTPEngine("").Fetch(context.Background(), &FetchRequest{URL: srv.URL + "/", MaxRedirects: 0})
	if got := reasonOf(t, err); got != models.ReasonTooManyRedirects {
		t.Errorf("reason = %q, want %q", got, models.ReasonTooManyRedirects)
	}

	res, err := NewHTTPEngine("").Fetch(context.Background(), &FetchRequest{URL: srv.URL + "/final", MaxRedirects: 0})
	if err != nil {
		t.Fatalf("Fetch without redirect: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", res.StatusCode)
	}
}

func TestHTTPEngine_ErrorStatusIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "<html><head><title>Just a moment...</title></head></html>")
	}))
	defer srv.Close()

	res, err := NewHTTPEngine("").Fetch(context.Background(), &FetchRequest{URL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", res.StatusCode)
	}
}

func TestHTTPEngine_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewHTTPEngine("").Fetch(context.Background(), &FetchRequest{URL: srv.URL, Timeout: 50 * time.Millisecond})
	if got := reasonOf(t, err); got != models.ReasonTimeout {
		t.Errorf("reason = %q, want timeout", got)
	}
}

func TestHTTPEngine_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewHTTPEngine("").Fetch(context.Background(), &FetchRequest{URL: addr, Timeout: time.Second})
	if got := reasonOf(t, err); got != models.ReasonTransport {
		t.Errorf("reason = %q, want transport", got)
	}
}

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		html string
		want string
	}{
		{"<html><head><title>Hello</title></head></html>", "Hello"},
		{"<title>  Redirecting...  </title>", "Redirecting..."},
		{"<html><body>no title</body></html>", ""},
		{"<title></title>", ""},
	}
	for _, tt := range tests {
		if got := ExtractTitle(tt.html); got != tt.want {
			t.Errorf("ExtractTitle(%q) = %q, want %q", tt.html, got, tt.want)
		}
	}
}

func TestBlockedSet(t *testing.T) {
	got := blockedSet([]string{"Image", "Font", "Script", "Bogus"})
	if len(got) != 2 {
		t.Fatalf("blockedSet size = %d, want 2", len(got))
	}
	if _, ok := got[proto.NetworkResourceTypeImage]; !ok {
		t.Error("Image should be blocked")
	}
	if _, ok := got[proto.NetworkResourceTypeScript]; ok {
		t.Error("Script must never be blocked")
	}
}
