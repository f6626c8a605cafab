package aggregator

import (
	"strings"
	"unicode"

	"github.com/spigell/job-aggregator/internal/listing"
)

// Dedup removes duplicates in two passes: first by ExternalID, then by the normalized
// (title, company, location) triple. On a collision the listing with the strictly higher
// completeness wins; otherwise the earlier one is kept in its original position.
// Running Dedup on its own output changes nothing.
//
// The triple pass is a heuristic: two genuinely different postings with identical
// title, company and location collapse into one.
func Dedup(listings []*listing.Listing) ([]*listing.Listing, int) {
	byID := dedupBy(listings, func(l *listing.Listing) string {
		return strings.TrimSpace(l.ExternalID)
	})
	byTriple := dedupBy(byID, tripleKey)
	return byTriple, len(listings) - len(byTriple) - countNil(listings)
}

func dedupBy(listings []*listing.Listing, key func(*listing.Listing) string) []*listing.Listing {
	out := make([]*listing.Listing, 0, len(listings))
	index := make(map[string]int, len(listings))

	for _, l := range listings {
		if l == nil {
			continue
		}
		k := key(l)
		if k == "" {
			out = append(out, l)
			continue
		}
		if idx, seen := index[k]; seen {
			if l.Completeness() > out[idx].Completeness() {
				out[idx] = l
			}
			continue
		}
		index[k] = len(out)
		out = append(out, l)
	}
	return out
}

// tripleKey is empty when title and company are both blank, which disables the pass.
func tripleKey(l *listing.Listing) string {
	title := normalize(l.Title)
	company := normalize(l.Company)
	if title == "" && company == "" {
		return ""
	}
	return title + "\x00" + company + "\x00" + normalize(l.Location)
}

// normalize lowercases, folds punctuation to spaces and collapses whitespace.
func normalize(s string) string {
	folded := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(folded), " ")
}

func countNil(listings []*listing.Listing) int {
	n := 0
	for _, l := range listings {
		if l == nil {
			n++
		}
	}
	return n
}
