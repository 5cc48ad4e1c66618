package scraper

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/use-agent/modcheck/extractor"
	"github.com/use-agent/modcheck/models"
	"golang.org/x/net/html"
)

var (
	containerSelector = cascadia.MustCompile(extractor.ContainerCSS)
	labelSelector     = cascadia.MustCompile(`li, [class*="break-words"]`)
)

// interstitialMarkers appear in the title or body of the pages served while
// the site is still redirecting or challenging the client.
var interstitialMarkers = []string{
	"redirecting",
	"please wait",
	"just a moment",
	"checking your browser",
}

var reNoscript = regexp.MustCompile(`<noscript[^>]*>[^<]*(enable|activate|turn on|requires?)\s+javascript`)

// hasContainer reports whether the mods container exists in the markup.
func hasContainer(rawHTML string) bool {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return false
	}
	return cascadia.Query(doc, containerSelector) != nil
}

// IsInterstitial reports whether a snapshot is a redirect or challenge page
// rather than the target page. A page that already shows the container is
// never an interstitial.
func IsInterstitial(snap *models.Snapshot) bool {
	if hasContainer(snap.HTML) {
		return false
	}
	title := strings.ToLower(snap.Title)
	for _, m := range interstitialMarkers {
		if strings.Contains(title, m) {
			return true
		}
	}
	if _, ok := MetaRefreshTarget(snap.HTML, snap.FinalURL); ok {
		return true
	}

	// Only short pages: a long page merely mentioning "please wait" is not
	// an interstitial.
	text := strings.ToLower(extractVisibleText([]byte(snap.HTML)))
	if len(text) > 500 {
		return false
	}
	for _, m := range interstitialMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// containerState reports whether the mods container exists and whether it
// already carries content: the no-data marker or at least one non-blank
// label.
func containerState(rawHTML string) (found, populated bool) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return false, false
	}
	c := cascadia.Query(doc, containerSelector)
	if c == nil {
		return false, false
	}
	if strings.Contains(strings.ToLower(nodeText(c)), strings.ToLower(extractor.NoDataMarker)) {
		return true, true
	}
	for _, n := range cascadia.QueryAll(c, labelSelector) {
		if strings.TrimSpace(nodeText(n)) != "" {
			return true, true
		}
	}
	return true, false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(n)
	return b.String()
}

// NeedsBrowser uses heuristics to decide if HTTP-fetched HTML is a script
// shell whose content only exists after rendering. A container that is
// served empty and filled in by script counts as a shell.
func NeedsBrowser(body []byte) bool {
	found, populated := containerState(string(body))
	if !found || !populated {
		return true
	}

	lower := strings.ToLower(string(body))
	if reNoscript.MatchString(lower) {
		return true
	}

	bodyText := extractVisibleText(body)
	scriptCount := strings.Count(lower, "<script")
	return scriptCount > 10 && len(bodyText) < 200
}

// MetaRefreshTarget finds a <meta http-equiv="refresh"> directive and
// returns its target resolved against base.
func MetaRefreshTarget(rawHTML, base string) (string, bool) {
	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return "", false
		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			if string(tn) != "meta" || !hasAttr {
				continue
			}
			var equiv, content string
			for {
				key, val, more := tokenizer.TagAttr()
				switch strings.ToLower(string(key)) {
				case "http-equiv":
					equiv = string(val)
				case "content":
					content = string(val)
				}
				if !more {
					break
				}
			}
			if !strings.EqualFold(strings.TrimSpace(equiv), "refresh") {
				continue
			}
			if target, ok := refreshURL(content, base); ok {
				return target, true
			}
		}
	}
}

// refreshURL parses a refresh directive such as `0; URL='https://x/'`.
func refreshURL(content, base string) (string, bool) {
	idx := strings.Index(strings.ToLower(content), "url=")
	if idx < 0 {
		return "", false
	}
	raw := strings.TrimSpace(content[idx+len("url="):])
	raw = strings.Trim(raw, `'"`)
	if raw == "" {
		return "", false
	}

	target, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if b, err := url.Parse(base); err == nil && base != "" {
		target = b.ResolveReference(target)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return "", false
	}
	return target.String(), true
}

// extractVisibleText extracts the visible text from within <body>, stripping
// all tags and <script>/<style> content. Used for heuristic analysis only.
func extractVisibleText(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	var buf strings.Builder
	inBody := false
	skipDepth := 0

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return strings.TrimSpace(buf.String())
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if tag == "body" {
				inBody = true
			}
			if tag == "script" || tag == "style" || tag == "noscript" {
				skipDepth++
			}
		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if (tag == "script" || tag == "style" || tag == "noscript") && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if inBody && skipDepth == 0 {
				if text := strings.TrimSpace(string(tokenizer.Text())); text != "" {
					buf.WriteString(text)
					buf.WriteByte(' ')
				}
			}
		}
	}
}
