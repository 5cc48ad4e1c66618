package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/modcheck/models"
)

// ContainerCSS locates the structured container holding the mods panel.
const ContainerCSS = "#modsChecker"

// Selectors for the mods panel. Compiled once; goquery accepts cascadia
// selectors directly as Matchers.
var (
	containerSelector    = cascadia.MustCompile(ContainerCSS)
	labelSelector        = cascadia.MustCompile("ul li.flex.items-start span.break-words")
	relaxedLabelSelector = cascadia.MustCompile(`[class*="break-words"]`)
	itemSelector         = cascadia.MustCompile("li")
)

// Document is a parsed snapshot shared by every strategy in one chain run.
type Document struct {
	doc       *goquery.Document
	raw       string
	rawLower  string
	container *goquery.Selection
}

// ParseDocument parses snapshot markup. Blank markup is reported as
// unparseable since it cannot be told apart from a truncated response.
func ParseDocument(snap *models.Snapshot) (*Document, error) {
	if snap == nil || strings.TrimSpace(snap.HTML) == "" {
		return nil, models.NewScrapeError(models.ReasonUnparseable, "empty document", nil)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		return nil, models.NewScrapeError(models.ReasonUnparseable, "parse document", err)
	}

	d := &Document{
		doc:      doc,
		raw:      snap.HTML,
		rawLower: strings.ToLower(snap.HTML),
	}
	if c := doc.FindMatcher(containerSelector); c.Length() > 0 {
		d.container = c.First()
	}
	return d, nil
}

// HasContainer reports whether the structured container is in the document.
func (d *Document) HasContainer() bool {
	return d.container != nil
}

// Container returns the structured container, or nil when absent.
func (d *Document) Container() *goquery.Selection {
	return d.container
}

// ContainerStatesEmpty reports whether the container carries the no-data
// marker text.
func (d *Document) ContainerStatesEmpty() bool {
	if d.container == nil {
		return false
	}
	return strings.Contains(strings.ToLower(d.container.Text()), noDataMarkerLower)
}

// RawContains reports whether the raw markup contains s, case-insensitively.
func (d *Document) RawContains(s string) bool {
	return strings.Contains(d.rawLower, strings.ToLower(s))
}

// RawIndex returns the first case-insensitive offset of s in the raw
// markup, or -1.
func (d *Document) RawIndex(s string) int {
	return strings.Index(d.rawLower, strings.ToLower(s))
}

// texts collects the trimmed text of every element in sel.
func texts(sel *goquery.Selection) []string {
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}
