package connector

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const blockElements = "br, p, li, div, ul, ol, h1, h2, h3, h4, tr"

// CleanText turns provider HTML fragments into plain text with collapsed whitespace.
func CleanText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.ContainsAny(raw, "<&") {
		return strings.Join(strings.Fields(raw), " ")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return strings.Join(strings.Fields(raw), " ")
	}
	doc.Find(blockElements).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// ParseTime tries each layout in turn and returns nil when none match.
func ParseTime(value string, layouts ...string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if len(layouts) == 0 {
		layouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05-0700", "2006-01-02T15:04:05", time.DateOnly}
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// ContainsAnyFold reports whether text contains any of the terms, ignoring case.
// Blank terms are skipped.
func ContainsAnyFold(text string, terms ...string) bool {
	text = strings.ToLower(text)
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
