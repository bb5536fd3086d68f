package repository

import (
	"context"

	"github.com/tomichandesu/research-tool-sub000/internal/entity"
)

// StateRepository persists the exploration state between sessions.
type StateRepository interface {
	// Load returns the persisted state, or a fresh one when nothing usable is stored.
	Load(ctx context.Context) (*entity.ExplorationState, error)
	// Save replaces the persisted state.
	Save(ctx context.Context, state *entity.ExplorationState) error
	// Reset discards the persisted state.
	Reset(ctx context.Context) error
}
