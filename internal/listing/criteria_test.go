package listing

import (
	"errors"
	"testing"
	"time"
)

func TestSearchCriteriaValidate(t *testing.T) {
	tests := []struct {
		name     string
		criteria SearchCriteria
		wantErr  error
	}{
		{name: "ok", criteria: SearchCriteria{Keywords: "golang"}},
		{name: "empty", criteria: SearchCriteria{}, wantErr: ErrEmptyKeywords},
		{name: "blank", criteria: SearchCriteria{Keywords: "  \t"}, wantErr: ErrEmptyKeywords},
		{name: "negative page", criteria: SearchCriteria{Keywords: "go", Page: -1}, wantErr: ErrNegativePage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.criteria.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCacheKeyNormalizes(t *testing.T) {
	a := SearchCriteria{Keywords: "Go  Developer", Location: "Berlin "}
	b := SearchCriteria{Keywords: "go developer", Location: "berlin"}
	if a.CacheKey() != b.CacheKey() {
		t.Fatalf("expected equal keys for equivalent criteria")
	}

	c := SearchCriteria{Keywords: "go developer", Location: "berlin", Page: 1}
	if a.CacheKey() == c.CacheKey() {
		t.Fatalf("expected page to change the key")
	}
}

func TestDaysSincePosted(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	if got := (SearchCriteria{}).DaysSincePosted(now); got != 0 {
		t.Fatalf("expected 0 without posted-after, got %d", got)
	}

	after := now.Add(-72 * time.Hour)
	if got := (SearchCriteria{PostedAfter: &after}).DaysSincePosted(now); got != 4 {
		t.Fatalf("expected 4 days, got %d", got)
	}

	future := now.Add(time.Hour)
	if got := (SearchCriteria{PostedAfter: &future}).DaysSincePosted(now); got != 1 {
		t.Fatalf("expected minimum of 1 day, got %d", got)
	}
}
