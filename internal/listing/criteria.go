package listing

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrEmptyKeywords is returned before any network call when the search has no keywords.
	ErrEmptyKeywords = errors.New("keywords must not be empty")
	// ErrNegativePage rejects pages below zero.
	ErrNegativePage = errors.New("page must not be negative")
)

// SearchCriteria is what the user is looking for. Connectors translate it to provider parameters.
type SearchCriteria struct {
	Keywords    string     `json:"keywords" mapstructure:"keywords"`
	Location    string     `json:"location,omitempty" mapstructure:"location"`
	Page        int        `json:"page,omitempty" mapstructure:"page"`
	PostedAfter *time.Time `json:"postedAfter,omitempty" mapstructure:"posted-after"`
}

// Validate reports criteria that must never reach a provider.
func (c SearchCriteria) Validate() error {
	if strings.TrimSpace(c.Keywords) == "" {
		return ErrEmptyKeywords
	}
	if c.Page < 0 {
		return ErrNegativePage
	}
	return nil
}

// DaysSincePosted converts PostedAfter into the whole-day window several providers expect.
// Zero means no restriction.
func (c SearchCriteria) DaysSincePosted(now time.Time) int {
	if c.PostedAfter == nil || c.PostedAfter.IsZero() {
		return 0
	}
	days := int(now.Sub(*c.PostedAfter).Hours()/24) + 1
	if days < 1 {
		return 1
	}
	return days
}

// CacheKey is a stable digest of the normalized criteria.
func (c SearchCriteria) CacheKey() string {
	posted := ""
	if c.PostedAfter != nil {
		posted = c.PostedAfter.UTC().Format(time.DateOnly)
	}
	raw := fmt.Sprintf("%s|%s|%d|%s",
		strings.ToLower(strings.Join(strings.Fields(c.Keywords), " ")),
		strings.ToLower(strings.TrimSpace(c.Location)),
		c.Page,
		posted,
	)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:12])
}
