package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tomichandesu/research-tool-sub000/internal/entity"
	"github.com/tomichandesu/research-tool-sub000/internal/filter"
	"github.com/tomichandesu/research-tool-sub000/internal/matcher"
	"github.com/tomichandesu/research-tool-sub000/internal/repository"
	"github.com/tomichandesu/research-tool-sub000/internal/scoring"
	"github.com/tomichandesu/research-tool-sub000/pkg/config"
	"github.com/tomichandesu/research-tool-sub000/pkg/logger"
	"github.com/tomichandesu/research-tool-sub000/pkg/metrics"
)

// KeywordResearcher runs the full search, filter and match pipeline for one keyword.
type KeywordResearcher interface {
	// Research always returns an outcome. A non-nil error means the outcome
	// is partial; the keyword must still be treated as explored.
	Research(ctx context.Context, keyword string) (*entity.KeywordOutcome, error)
	SessionID() string
}

// CandidateMatcher scores sourcing candidates against a listing image.
type CandidateMatcher interface {
	Match(ctx context.Context, ref matcher.Reference, candidates []entity.SourcingCandidate) []entity.MatchSignal
}

type researchUseCase struct {
	search    repository.SearchRepository
	pipeline  *filter.Pipeline
	matcher   CandidateMatcher
	profit    *filter.ProfitCalculator
	outcomes  repository.OutcomeRepository
	cfg       config.MatcherConfig
	sessionID string
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewResearcher creates the keyword research pipeline. outcomes may be nil.
func NewResearcher(
	search repository.SearchRepository,
	pipeline *filter.Pipeline,
	m CandidateMatcher,
	profit *filter.ProfitCalculator,
	outcomes repository.OutcomeRepository,
	cfg config.MatcherConfig,
	l *zap.Logger,
	mt *metrics.Metrics,
) KeywordResearcher {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &researchUseCase{
		search:    search,
		pipeline:  pipeline,
		matcher:   m,
		profit:    profit,
		outcomes:  outcomes,
		cfg:       cfg,
		sessionID: id.String(),
		logger:    logger.OrNop(l).Named("research"),
		metrics:   mt,
		now:       time.Now,
	}
}

func (uc *researchUseCase) SessionID() string { return uc.sessionID }

func (uc *researchUseCase) Research(ctx context.Context, keyword string) (*entity.KeywordOutcome, error) {
	start := uc.now()
	out := &entity.KeywordOutcome{
		Keyword:       keyword,
		FilterReasons: make(map[entity.RejectReason]int),
		StartedAt:     start,
	}
	defer func() {
		out.Score = scoring.ScoreOutcome(out)
		out.Duration = uc.now().Sub(start)
		uc.save(ctx, out)
	}()

	listings, err := uc.search.Search(ctx, keyword)
	if err != nil {
		out.Err = err.Error()
		return out, fmt.Errorf("search %q: %w", keyword, err)
	}
	out.Searched = len(listings)

	for _, l := range listings {
		v := uc.pipeline.Check(l)
		if !v.Passed {
			out.FilterReasons[v.Reason]++
			uc.metrics.IncFilterRejection(string(v.Reason))
			continue
		}
		out.Passed++

		if err := ctx.Err(); err != nil {
			out.Err = err.Error()
			return out, fmt.Errorf("research %q interrupted: %w", keyword, err)
		}
		if mp, ok := uc.matchListing(ctx, l, v); ok {
			out.Matches = append(out.Matches, mp)
		}
	}

	uc.logger.Info("keyword researched",
		zap.String("keyword", keyword),
		zap.Int("searched", out.Searched),
		zap.Int("passed", out.Passed),
		zap.Int("matched", len(out.Matches)),
	)
	return out, nil
}

// matchListing looks the listing up on the source marketplace and keeps the
// visually matching, plausibly profitable candidates, best margin first.
func (uc *researchUseCase) matchListing(ctx context.Context, l entity.CandidateListing, v entity.FilterVerdict) (entity.MatchedProduct, bool) {
	if l.ImageURL == "" {
		return entity.MatchedProduct{}, false
	}
	cands, err := uc.search.ImageSearch(ctx, l.ImageURL)
	if err != nil {
		uc.logger.Warn("image search failed", zap.String("listing", l.ID), zap.Error(err))
		return entity.MatchedProduct{}, false
	}
	if len(cands) == 0 {
		return entity.MatchedProduct{}, false
	}

	signals := uc.matcher.Match(ctx, matcher.Reference{ImageURL: l.ImageURL, Title: l.Title}, cands)
	category := uc.pipeline.NormalizeCategory(l.Category)

	var scored []entity.ScoredCandidate
	for i, sig := range signals {
		if !sig.Keep {
			continue
		}
		p := uc.profit.Calculate(l, cands[i].PriceCNY, category)
		if !uc.plausibleMargin(p.Margin) {
			continue
		}
		scored = append(scored, entity.ScoredCandidate{Candidate: cands[i], Signal: sig, Profit: p})
	}
	if len(scored) == 0 {
		return entity.MatchedProduct{}, false
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Profit.Margin != scored[j].Profit.Margin {
			return scored[i].Profit.Margin > scored[j].Profit.Margin
		}
		return scored[i].Signal.Combined > scored[j].Signal.Combined
	})
	if limit := uc.cfg.MaxCandidates; limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return entity.MatchedProduct{
		Listing:      l,
		Verdict:      v,
		Best:         scored[0],
		Alternatives: scored[1:],
	}, true
}

// plausibleMargin drops losses and margins too good to be the same product.
func (uc *researchUseCase) plausibleMargin(margin float64) bool {
	if margin < uc.cfg.MinProfitRate {
		return false
	}
	if uc.cfg.MaxProfitRate > 0 && margin > uc.cfg.MaxProfitRate {
		return false
	}
	return true
}

func (uc *researchUseCase) save(ctx context.Context, out *entity.KeywordOutcome) {
	if uc.outcomes == nil {
		return
	}
	// The keyword deadline may already have passed; the record is still wanted.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := uc.outcomes.Save(sctx, uc.sessionID, out); err != nil && !errors.Is(err, context.Canceled) {
		uc.logger.Warn("failed to store outcome", zap.String("keyword", out.Keyword), zap.Error(err))
	}
}
