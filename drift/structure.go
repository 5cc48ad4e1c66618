package drift

import (
	"sort"
	"strings"

	"golang.org/x/net/html"
)

const shingleSize = 3

// Fingerprint reduces an HTML document to a SimHash of its element
// structure. Text content is ignored, so a changed list of names leaves
// the fingerprint untouched while a renamed container or restyled list
// moves it.
func Fingerprint(rawHTML string) uint64 {
	tokens := structureTokens(rawHTML)
	if len(tokens) == 0 {
		return 0
	}
	if sh := shingles(tokens, shingleSize); len(sh) > 0 {
		return simhash(sh)
	}
	return simhash(tokens)
}

// structureTokens lists every opening element as tag#id.class1.class2,
// classes sorted.
func structureTokens(rawHTML string) []string {
	z := html.NewTokenizer(strings.NewReader(rawHTML))
	var tokens []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tokens
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tokens = append(tokens, elementToken(string(name), z, hasAttr))
		}
	}
}

func elementToken(tag string, z *html.Tokenizer, hasAttr bool) string {
	var id string
	var classes []string
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		switch string(key) {
		case "id":
			id = strings.TrimSpace(string(val))
		case "class":
			classes = strings.Fields(string(val))
		}
	}

	var b strings.Builder
	b.WriteString(tag)
	if id != "" {
		b.WriteByte('#')
		b.WriteString(id)
	}
	sort.Strings(classes)
	for _, c := range classes {
		b.WriteByte('.')
		b.WriteString(c)
	}
	return b.String()
}

// shingles returns the n-grams of tokens joined with a space, or nil when
// there are fewer than n tokens.
func shingles(tokens []string, n int) []string {
	if len(tokens) < n {
		return nil
	}
	out := make([]string, 0, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		out = append(out, strings.Join(tokens[i:i+n], " "))
	}
	return out
}
