// Package connector holds the contract every job board adapter implements and the
// HTTP plumbing they share.
package connector

import (
	"context"

	"github.com/spigell/job-aggregator/internal/listing"
)

// Connector fetches one page of results from a single job board and normalizes them.
// Implementations must be safe for concurrent use and must not panic.
type Connector interface {
	Source() listing.Source
	Search(ctx context.Context, criteria listing.SearchCriteria) (*Response, error)
}

// Response is a normalized page. Total is the provider's own count of matching postings,
// which may exceed len(Listings).
type Response struct {
	Listings []*listing.Listing `json:"listings"`
	Total    int                `json:"total"`
}
