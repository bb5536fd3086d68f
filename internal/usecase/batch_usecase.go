package usecase

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tomichandesu/research-tool-sub000/internal/entity"
	"github.com/tomichandesu/research-tool-sub000/internal/repository"
	"github.com/tomichandesu/research-tool-sub000/pkg/logger"
	"github.com/tomichandesu/research-tool-sub000/pkg/metrics"
	"github.com/tomichandesu/research-tool-sub000/pkg/utils"
)

const defaultBatchConcurrency = 5

// BatchResult is the merged result of a flat keyword list.
type BatchResult struct {
	Outcomes   []*entity.KeywordOutcome `json:"outcomes"`
	Skipped    []string                 `json:"skipped,omitempty"`
	Found      int                      `json:"found"`
	Duplicates int                      `json:"duplicates"`
}

// BatchRunner researches independent keywords concurrently.
type BatchRunner interface {
	Run(ctx context.Context, keywords []string) (*BatchResult, error)
}

type batchUseCase struct {
	researcher  KeywordResearcher
	known       repository.KnownProductRepository
	concurrency int
	timeout     time.Duration
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// NewBatchRunner creates a runner with at most concurrency keywords in
// flight. timeout bounds each keyword; zero means no bound.
func NewBatchRunner(
	researcher KeywordResearcher,
	known repository.KnownProductRepository,
	concurrency int,
	timeout time.Duration,
	l *zap.Logger,
	m *metrics.Metrics,
) BatchRunner {
	if concurrency <= 0 {
		concurrency = defaultBatchConcurrency
	}
	return &batchUseCase{
		researcher:  researcher,
		known:       known,
		concurrency: concurrency,
		timeout:     timeout,
		logger:      logger.OrNop(l).Named("batch"),
		metrics:     m,
	}
}

// Run researches every keyword once. Keywords not yet started when ctx is
// cancelled are reported as skipped; started keywords always finish.
func (uc *batchUseCase) Run(ctx context.Context, keywords []string) (*BatchResult, error) {
	keywords = uniqueKeywords(keywords)
	outcomes := make([]*entity.KeywordOutcome, len(keywords))

	g := new(errgroup.Group)
	g.SetLimit(uc.concurrency)
	for i, kw := range keywords {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			kctx, cancel := uc.keywordContext(ctx)
			defer cancel()

			start := time.Now()
			out, err := uc.researcher.Research(kctx, kw)
			if out == nil {
				out = &entity.KeywordOutcome{Keyword: kw, StartedAt: start}
			}
			if err != nil {
				if out.Err == "" {
					out.Err = err.Error()
				}
				uc.logger.Warn("keyword research failed", zap.String("keyword", kw), zap.Error(err))
			}
			uc.metrics.ObserveKeyword(err != nil, time.Since(start))
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()

	res := &BatchResult{}
	for i, out := range outcomes {
		if out == nil {
			res.Skipped = append(res.Skipped, keywords[i])
			continue
		}
		res.Outcomes = append(res.Outcomes, out)
	}
	if err := uc.merge(ctx, res); err != nil {
		return res, err
	}
	uc.logger.Info("batch finished",
		zap.Int("keywords", len(res.Outcomes)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("found", res.Found),
		zap.Int("duplicates", res.Duplicates),
	)
	return res, nil
}

// merge deduplicates matches across outcomes and against the registry, then
// records the new product IDs.
func (uc *batchUseCase) merge(ctx context.Context, res *BatchResult) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	known, err := uc.known.Load(pctx)
	if err != nil {
		uc.logger.Warn("known product registry unavailable, starting empty", zap.Error(err))
		known = make(map[string]struct{})
	}
	seen := make(map[string]struct{})
	var fresh []string
	for _, out := range res.Outcomes {
		kept := out.Matches[:0]
		for _, m := range out.Matches {
			id := m.Listing.ID
			switch {
			case id == "":
				res.Found++
			case contains(seen, id):
				continue
			case contains(known, id):
				m.Duplicate = true
				res.Duplicates++
				seen[id] = struct{}{}
			default:
				seen[id] = struct{}{}
				fresh = append(fresh, id)
				res.Found++
			}
			kept = append(kept, m)
		}
		out.Matches = kept
	}
	uc.metrics.AddMatchedProducts(res.Found)
	if len(fresh) == 0 {
		return nil
	}
	sort.Strings(fresh)
	return uc.known.Add(pctx, fresh)
}

func (uc *batchUseCase) keywordContext(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if uc.timeout <= 0 {
		return context.WithCancel(base)
	}
	return context.WithTimeout(base, uc.timeout)
}

// uniqueKeywords normalizes keywords and drops blanks and repeats, keeping order.
func uniqueKeywords(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = utils.NormalizeKeyword(kw)
		if kw == "" || contains(seen, kw) {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}
