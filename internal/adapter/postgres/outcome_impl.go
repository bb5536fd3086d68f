package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tomichandesu/research-tool-sub000/internal/entity"
	"github.com/tomichandesu/research-tool-sub000/internal/repository"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// OutcomeRepoImpl provides a concrete implementation for the OutcomeRepository interface using PostgreSQL.
type OutcomeRepoImpl struct {
	db *pgxpool.Pool
}

var _ repository.OutcomeRepository = (*OutcomeRepoImpl)(nil)

// NewOutcomeRepo creates a new instance of OutcomeRepoImpl.
func NewOutcomeRepo(db *pgxpool.Pool) *OutcomeRepoImpl {
	return &OutcomeRepoImpl{db: db}
}

// Save stores the outcome row and its matched products within a single transaction.
func (r *OutcomeRepoImpl) Save(ctx context.Context, sessionID string, o *entity.KeywordOutcome) error {
	reasons, err := json.Marshal(o.FilterReasons)
	if err != nil {
		return fmt.Errorf("marshal filter reasons: %w", err)
	}
	if o.FilterReasons == nil {
		reasons = []byte("{}")
	}

	query, args, err := insertOutcome(sessionID, o, reasons)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	if err := tx.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}

	if len(o.Matches) > 0 {
		batch := &pgx.Batch{}
		for _, m := range o.Matches {
			q, a, err := insertMatch(id, m)
			if err != nil {
				return err
			}
			batch.Queue(q, a...)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert matches: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func insertOutcome(sessionID string, o *entity.KeywordOutcome, reasons []byte) (string, []any, error) {
	return psql.Insert("keyword_outcomes").
		Columns("session_id", "keyword", "searched", "passed", "matches", "score", "error", "filter_reasons", "started_at", "duration_ms").
		Values(sessionID, o.Keyword, o.Searched, o.Passed, len(o.Matches), o.Score, o.Err, string(reasons), o.StartedAt, o.Duration.Milliseconds()).
		Suffix("RETURNING id").
		ToSql()
}

func insertMatch(outcomeID int64, m entity.MatchedProduct) (string, []any, error) {
	return psql.Insert("matched_products").
		Columns("outcome_id", "product_id", "title", "price", "product_url", "source_url", "source_price_cny", "profit", "margin", "combined", "match_path", "duplicate").
		Values(outcomeID, m.Listing.ID, m.Listing.Title, m.Listing.Price, m.Listing.ProductURL,
			m.Best.Candidate.ProductURL, m.Best.Candidate.PriceCNY, m.Best.Profit.Profit, m.Best.Profit.Margin,
			m.Best.Signal.Combined, string(m.Best.Signal.Path), m.Duplicate).
		Suffix("ON CONFLICT (outcome_id, product_id) DO NOTHING").
		ToSql()
}

func topKeywordsQuery(limit int) (string, []any, error) {
	return psql.Select("keyword", "COUNT(*)", "MAX(score)", "COALESCE(SUM(matches), 0)").
		From("keyword_outcomes").
		Where(sq.Eq{"error": ""}).
		GroupBy("keyword").
		OrderBy("MAX(score) DESC", "keyword").
		Limit(uint64(max(limit, 1))).
		ToSql()
}

// TopKeywords returns the best scoring successfully explored keywords.
func (r *OutcomeRepoImpl) TopKeywords(ctx context.Context, limit int) ([]repository.KeywordStat, error) {
	query, args, err := topKeywordsQuery(limit)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query top keywords: %w", err)
	}
	defer rows.Close()

	var out []repository.KeywordStat
	for rows.Next() {
		var s repository.KeywordStat
		if err := rows.Scan(&s.Keyword, &s.Explorations, &s.BestScore, &s.Matches); err != nil {
			return nil, fmt.Errorf("scan keyword stat: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
