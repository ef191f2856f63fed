package search

import (
	"context"
	"errors"

	"github.com/brabijan/webshare-arr-connector/internal/domain"
)

var (
	ErrInvalidQuery = errors.New("query title is required")
	ErrNoProviders  = errors.New("no search providers configured")

	// ErrAllProvidersFailed is returned only when every provider errored and
	// nothing was merged. Partial failures with at least one result are not
	// an error; the statuses carry the details.
	ErrAllProvidersFailed = errors.New("all search providers failed")
)

// Provider is one upstream candidate source. Search runs a single text
// query and returns raw candidates; limit caps how many the provider
// should fetch.
type Provider interface {
	Name() string
	Search(ctx context.Context, text string, limit int) ([]domain.RawCandidate, error)
}

// ProviderStatus records the outcome of one provider call within a search,
// including which query variant it ran.
type ProviderStatus struct {
	Name    string `json:"name"`
	Variant string `json:"variant"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Count   int    `json:"count"`
}
