package extractor

import "strings"

// NoDataMarker is the text the page shows inside the container when nobody
// is online. Matching is case-insensitive.
const NoDataMarker = "No mods online"

var noDataMarkerLower = strings.ToLower(NoDataMarker)

// placeholderLabels are header captions that sometimes render inside the
// label list and must never be reported as names.
var placeholderLabels = map[string]struct{}{
	"mods online": {},
	"online mods": {},
	"mods":        {},
	"moderators":  {},
}

// Normalize turns a raw label into a canonical mod name. The second return
// value is false when the label is not a name at all: the no-data marker, a
// placeholder caption, or blank text.
//
// "  Ubiops (Undercover) " -> "ubiops"
func Normalize(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)
	if strings.Contains(lower, noDataMarkerLower) {
		return "", false
	}
	if _, ok := placeholderLabels[lower]; ok {
		return "", false
	}

	if i := strings.IndexByte(lower, '('); i >= 0 {
		lower = lower[:i]
	}
	name := strings.TrimSpace(lower)
	if name == "" {
		return "", false
	}
	if _, ok := placeholderLabels[name]; ok {
		return "", false
	}
	return name, true
}

// normalizeAll normalizes labels, dropping rejects.
func normalizeAll(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if name, ok := Normalize(l); ok {
			out = append(out, name)
		}
	}
	return out
}
