package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tomichandesu/research-tool-sub000/internal/repository"
	"github.com/tomichandesu/research-tool-sub000/pkg/logger"
	"github.com/tomichandesu/research-tool-sub000/pkg/metrics"
)

// QueueWorker drains submitted keywords into batches.
type QueueWorker interface {
	// ProcessQueue pops up to one batch of keywords and researches them. It
	// returns the number of keywords processed; 0 means the queue was empty.
	ProcessQueue(ctx context.Context) (int, error)
	// Start calls ProcessQueue until ctx is cancelled, sleeping between empty polls.
	Start(ctx context.Context)
}

type queueUseCase struct {
	queue     repository.QueueRepository
	runner    BatchRunner
	batchSize int
	poll      time.Duration
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewQueueWorker creates a worker taking up to batchSize keywords at a time.
func NewQueueWorker(
	queue repository.QueueRepository,
	runner BatchRunner,
	batchSize int,
	poll time.Duration,
	l *zap.Logger,
	m *metrics.Metrics,
) QueueWorker {
	if batchSize <= 0 {
		batchSize = defaultBatchConcurrency
	}
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &queueUseCase{
		queue:     queue,
		runner:    runner,
		batchSize: batchSize,
		poll:      poll,
		logger:    logger.OrNop(l).Named("queue"),
		metrics:   m,
	}
}

func (uc *queueUseCase) ProcessQueue(ctx context.Context) (int, error) {
	var batch []string
	for len(batch) < uc.batchSize {
		kw, err := uc.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, repository.ErrQueueEmpty) {
				break
			}
			if len(batch) == 0 {
				return 0, fmt.Errorf("failed to pop keyword from queue: %w", err)
			}
			uc.logger.Warn("queue pop failed, running partial batch", zap.Error(err))
			break
		}
		batch = append(batch, kw)
	}
	if n, err := uc.queue.Size(ctx); err == nil {
		uc.metrics.SetBatchQueueLength(n)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	uc.logger.Info("processing keywords from queue", zap.Strings("keywords", batch))
	res, err := uc.runner.Run(ctx, batch)
	var skipped int
	if res != nil && len(res.Skipped) > 0 {
		// Put back what the runner never started so a restart picks it up first.
		skipped = len(res.Skipped)
		if qerr := uc.queue.Requeue(context.WithoutCancel(ctx), res.Skipped...); qerr != nil {
			uc.logger.Error("failed to requeue skipped keywords", zap.Strings("keywords", res.Skipped), zap.Error(qerr))
		}
	}
	if err != nil {
		return len(batch) - skipped, fmt.Errorf("failed to record batch results: %w", err)
	}
	return len(batch) - skipped, nil
}

func (uc *queueUseCase) Start(ctx context.Context) {
	uc.logger.Info("queue worker started", zap.Int("batch_size", uc.batchSize), zap.Duration("poll", uc.poll))
	for {
		if ctx.Err() != nil {
			uc.logger.Info("queue worker stopped")
			return
		}
		n, err := uc.ProcessQueue(ctx)
		if err != nil {
			uc.logger.Error("queue processing failed", zap.Error(err))
		}
		if n > 0 && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
		case <-time.After(uc.poll):
		}
	}
}
