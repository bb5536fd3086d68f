package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tomichandesu/research-tool-sub000/internal/repository"
	"github.com/tomichandesu/research-tool-sub000/pkg/logger"
)

var ErrKeywordRecentlySubmitted = errors.New("keyword was submitted recently and force is false")

// SubmitResult reports what happened to each keyword of a submission.
type SubmitResult struct {
	Queued   []string `json:"queued"`
	Rejected []string `json:"rejected,omitempty"`
}

// KeywordManager accepts keywords for batch research.
type KeywordManager interface {
	Submit(ctx context.Context, keywords []string, force bool) (*SubmitResult, error)
	QueueLength(ctx context.Context) (int64, error)
}

type keywordManagerUseCase struct {
	submitted repository.SubmittedRepository
	queue     repository.QueueRepository
	expiry    time.Duration
	logger    *zap.Logger
}

// NewKeywordManager creates a KeywordManager. A keyword submitted again
// within expiry is rejected unless forced.
func NewKeywordManager(
	submitted repository.SubmittedRepository,
	queue repository.QueueRepository,
	expiry time.Duration,
	l *zap.Logger,
) KeywordManager {
	return &keywordManagerUseCase{
		submitted: submitted,
		queue:     queue,
		expiry:    expiry,
		logger:    logger.OrNop(l).Named("submit"),
	}
}

func (uc *keywordManagerUseCase) Submit(ctx context.Context, keywords []string, force bool) (*SubmitResult, error) {
	res := &SubmitResult{}
	for _, kw := range uniqueKeywords(keywords) {
		if err := uc.submitOne(ctx, kw, force); err != nil {
			if errors.Is(err, ErrKeywordRecentlySubmitted) {
				res.Rejected = append(res.Rejected, kw)
				continue
			}
			return res, err
		}
		res.Queued = append(res.Queued, kw)
	}
	return res, nil
}

func (uc *keywordManagerUseCase) submitOne(ctx context.Context, keyword string, force bool) error {
	if force {
		if err := uc.submitted.RemoveSubmitted(ctx, keyword); err != nil {
			uc.logger.Warn("failed to clear submitted marker for forced keyword", zap.String("keyword", keyword), zap.Error(err))
		}
	} else {
		seen, err := uc.submitted.IsSubmitted(ctx, keyword)
		if err != nil {
			return err
		}
		if seen {
			return ErrKeywordRecentlySubmitted
		}
	}

	if err := uc.queue.Push(ctx, keyword); err != nil {
		return err
	}

	if err := uc.submitted.MarkSubmitted(ctx, keyword, uc.expiry); err != nil {
		// The keyword is queued but may be accepted again before it runs.
		uc.logger.Error("failed to mark keyword as submitted after queueing", zap.String("keyword", keyword), zap.Error(err))
	}
	return nil
}

func (uc *keywordManagerUseCase) QueueLength(ctx context.Context) (int64, error) {
	return uc.queue.Size(ctx)
}
