package filtering

import (
	"strings"
	"unicode"
)

// text is a listing field set prepared for keyword matching.
type text struct {
	lower  string
	tokens map[string]struct{}
}

func newText(fields ...string) text {
	lower := strings.ToLower(strings.Join(fields, " "))
	return text{lower: lower, tokens: tokenize(lower)}
}

// contains matches plain words against whole tokens, so "go" does not match "google".
// Keywords with punctuation or spaces ("c#", "node.js", "machine learning") match as substrings.
func (t text) contains(keyword string) bool {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return false
	}
	if isWord(keyword) {
		_, ok := t.tokens[keyword]
		return ok
	}
	return strings.Contains(t.lower, keyword)
}

// firstMatch returns the first keyword found in t.
func (t text) firstMatch(keywords []string) (string, bool) {
	for _, kw := range keywords {
		if t.contains(kw) {
			return strings.TrimSpace(kw), true
		}
	}
	return "", false
}

func tokenize(s string) map[string]struct{} {
	var b strings.Builder
	for _, r := range s {
		if isWordRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	words := strings.Fields(b.String())
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

func isWord(s string) bool {
	for _, r := range s {
		if !isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
