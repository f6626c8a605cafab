package aggregator

import (
	"sort"

	"github.com/spigell/job-aggregator/internal/listing"
)

// Rank sorts listings in place by completeness (desc), publish date (desc, missing last)
// and source priority (asc). The sort is stable, so equal listings keep their input order.
// Sources missing from priority sort after all known ones.
func Rank(listings []*listing.Listing, priority map[listing.Source]int) []*listing.Listing {
	rankOf := func(src listing.Source) int {
		if p, ok := priority[src]; ok {
			return p
		}
		return len(priority)
	}

	sort.SliceStable(listings, func(i, j int) bool {
		a, b := listings[i], listings[j]

		if ca, cb := a.Completeness(), b.Completeness(); ca != cb {
			return ca > cb
		}

		switch {
		case a.PublishedAt != nil && b.PublishedAt == nil:
			return true
		case a.PublishedAt == nil && b.PublishedAt != nil:
			return false
		case a.PublishedAt != nil && b.PublishedAt != nil && !a.PublishedAt.Equal(*b.PublishedAt):
			return a.PublishedAt.After(*b.PublishedAt)
		}

		return rankOf(a.Source) < rankOf(b.Source)
	})
	return listings
}
