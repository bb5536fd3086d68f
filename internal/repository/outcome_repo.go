package repository

import (
	"context"

	"github.com/tomichandesu/research-tool-sub000/internal/entity"
)

// KeywordStat is an aggregate over stored outcomes of one keyword.
type KeywordStat struct {
	Keyword      string
	Explorations int
	BestScore    float64
	Matches      int
}

// OutcomeRepository stores keyword outcomes for later analysis.
type OutcomeRepository interface {
	// Save stores one outcome and its matched products.
	Save(ctx context.Context, sessionID string, outcome *entity.KeywordOutcome) error
	// TopKeywords returns the best scoring keywords across sessions.
	TopKeywords(ctx context.Context, limit int) ([]KeywordStat, error)
}
