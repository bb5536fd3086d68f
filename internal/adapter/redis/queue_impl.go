package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/tomichandesu/research-tool-sub000/internal/repository"
)

const batchQueueKey = "research:batch_queue"

// QueueRepoImpl keeps the batch queue in a redis list: new keywords enter on
// the left and are popped from the right.
type QueueRepoImpl struct {
	client *redis.Client
}

var _ repository.QueueRepository = (*QueueRepoImpl)(nil)

func NewQueueRepo(client *redis.Client) *QueueRepoImpl {
	return &QueueRepoImpl{client: client}
}

func (r *QueueRepoImpl) Push(ctx context.Context, keywords ...string) error {
	if len(keywords) == 0 {
		return nil
	}
	return r.client.LPush(ctx, batchQueueKey, toArgs(keywords, false)...).Err()
}

// Requeue pushes on the pop side in reverse, so keywords[0] is popped next.
func (r *QueueRepoImpl) Requeue(ctx context.Context, keywords ...string) error {
	if len(keywords) == 0 {
		return nil
	}
	return r.client.RPush(ctx, batchQueueKey, toArgs(keywords, true)...).Err()
}

func toArgs(keywords []string, reverse bool) []any {
	args := make([]any, len(keywords))
	for i, kw := range keywords {
		if reverse {
			args[len(keywords)-1-i] = kw
		} else {
			args[i] = kw
		}
	}
	return args
}

// Pop returns ErrQueueEmpty when the list is empty.
func (r *QueueRepoImpl) Pop(ctx context.Context) (string, error) {
	kw, err := r.client.RPop(ctx, batchQueueKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", repository.ErrQueueEmpty
	}
	return kw, err
}

func (r *QueueRepoImpl) Size(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, batchQueueKey).Result()
}
