package repository

import (
	"context"
	"errors"

	"github.com/tomichandesu/research-tool-sub000/internal/entity"
)

var (
	ErrSearchTimeout     = errors.New("search timed out")
	ErrNavigationFailed  = errors.New("navigation failed")
	ErrExtractionFailed  = errors.New("failed to extract listings from page")
	ErrContentRestricted = errors.New("content is restricted or requires authentication")
)

// SearchRepository defines the contract for querying both marketplaces.
type SearchRepository interface {
	// Search returns destination-marketplace listings for a keyword.
	Search(ctx context.Context, keyword string) ([]entity.CandidateListing, error)
	// ImageSearch returns source-marketplace products that look like the given image.
	ImageSearch(ctx context.Context, imageURL string) ([]entity.SourcingCandidate, error)
}

// SuggestRepository defines the contract for autocomplete expansion.
type SuggestRepository interface {
	// Suggest returns related queries for a keyword, excluding the keyword itself.
	Suggest(ctx context.Context, keyword string) ([]string, error)
}
