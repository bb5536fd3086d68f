package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomichandesu/research-tool-sub000/internal/repository"
	"github.com/tomichandesu/research-tool-sub000/pkg/utils"
)

const submittedPrefix = "research:submitted:"

// SubmittedRepoImpl remembers batch submissions with expiring keys.
type SubmittedRepoImpl struct {
	client *redis.Client
}

var _ repository.SubmittedRepository = (*SubmittedRepoImpl)(nil)

func NewSubmittedRepo(client *redis.Client) *SubmittedRepoImpl {
	return &SubmittedRepoImpl{client: client}
}

// key hashes the normalized keyword so multibyte text yields a safe key.
func (r *SubmittedRepoImpl) key(keyword string) string {
	return submittedPrefix + utils.KeywordKey(keyword)
}

func (r *SubmittedRepoImpl) MarkSubmitted(ctx context.Context, keyword string, expiry time.Duration) error {
	return r.client.SetEx(ctx, r.key(keyword), "1", expiry).Err()
}

func (r *SubmittedRepoImpl) IsSubmitted(ctx context.Context, keyword string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(keyword)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *SubmittedRepoImpl) RemoveSubmitted(ctx context.Context, keyword string) error {
	return r.client.Del(ctx, r.key(keyword)).Err()
}
