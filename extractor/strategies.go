package extractor

import (
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/modcheck/models"
)

// Strategy is one way of locating mod labels in a document. Attempt returns
// a conclusive Result (Names or Empty) or a Failure that lets the chain move
// on to the next strategy.
type Strategy interface {
	Name() string
	Attempt(doc *Document) models.Result
}

// containerStrategy reads the panel the way the page is currently built:
// the marker text inside the container means nobody is online, otherwise
// each list item carries a span.break-words label.
type containerStrategy struct{}

func (containerStrategy) Name() string { return "container" }

func (containerStrategy) Attempt(doc *Document) models.Result {
	if !doc.HasContainer() {
		return models.Failure(models.ReasonContainerNotFound)
	}
	if doc.ContainerStatesEmpty() {
		return models.Empty()
	}
	names := normalizeAll(texts(doc.Container().FindMatcher(labelSelector)))
	if len(names) == 0 {
		return models.Failure(models.ReasonNoLabels)
	}
	return models.Names(names)
}

// relaxedStrategy tolerates class and nesting drift inside the container:
// any element whose class mentions break-words, then any list item.
type relaxedStrategy struct{}

func (relaxedStrategy) Name() string { return "relaxed" }

func (relaxedStrategy) Attempt(doc *Document) models.Result {
	if !doc.HasContainer() {
		return models.Failure(models.ReasonContainerNotFound)
	}
	c := doc.Container()

	if names := normalizeAll(texts(c.FindMatcher(relaxedLabelSelector))); len(names) > 0 {
		return models.Names(names)
	}

	var labels []string
	c.FindMatcher(itemSelector).Each(func(_ int, li *goquery.Selection) {
		// Nested lists would otherwise be read twice.
		if li.FindMatcher(itemSelector).Length() > 0 {
			return
		}
		if t := strings.TrimSpace(li.Text()); t != "" {
			labels = append(labels, t)
		}
	})
	if names := normalizeAll(labels); len(names) > 0 {
		return models.Names(names)
	}
	return models.Failure(models.ReasonNoLabels)
}

// containerMissingStrategy never succeeds. It pins the failure reason so
// that a page without the container is reported as undetermined rather than
// empty.
type containerMissingStrategy struct{}

func (containerMissingStrategy) Name() string { return "container-missing" }

func (containerMissingStrategy) Attempt(doc *Document) models.Result {
	if !doc.HasContainer() {
		return models.Failure(models.ReasonContainerNotFound)
	}
	return models.Failure(models.ReasonNoLabels)
}

// substringStrategy is the degraded-confidence fallback: it only runs when
// the container is absent and looks for previously seen mod names anywhere
// in the raw markup.
type substringStrategy struct {
	known []string
}

func (substringStrategy) Name() string { return "substring" }

func (s substringStrategy) Attempt(doc *Document) models.Result {
	if doc.HasContainer() {
		return models.Failure(models.ReasonNoLabels)
	}

	type hit struct {
		name string
		at   int
	}
	var hits []hit
	for _, k := range s.known {
		name, ok := Normalize(k)
		if !ok {
			continue
		}
		if at := doc.RawIndex(name); at >= 0 {
			hits = append(hits, hit{name: name, at: at})
		}
	}
	if len(hits) > 0 {
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].at < hits[j].at })
		names := make([]string, len(hits))
		for i, h := range hits {
			names[i] = h.name
		}
		return models.Names(names)
	}

	if doc.RawContains(NoDataMarker) {
		return models.Empty()
	}
	return models.Failure(models.ReasonContainerNotFound)
}
