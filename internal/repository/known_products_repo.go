package repository

import "context"

// KnownProductRepository is the cross-session registry of reported product IDs.
type KnownProductRepository interface {
	// Load returns every known product ID.
	Load(ctx context.Context) (map[string]struct{}, error)
	// Add merges ids into the registry. Existing IDs are never removed.
	Add(ctx context.Context, ids []string) error
}
