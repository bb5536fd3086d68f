package redis

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/tomichandesu/research-tool-sub000/internal/repository"
)

// KnownRepoImpl keeps the known-product registry in a redis set so several
// researcher processes can share it.
type KnownRepoImpl struct {
	client *redis.Client
	key    string
}

var _ repository.KnownProductRepository = (*KnownRepoImpl)(nil)

func NewKnownRepo(client *redis.Client, key string) *KnownRepoImpl {
	return &KnownRepoImpl{client: client, key: key}
}

func (r *KnownRepoImpl) Load(ctx context.Context) (map[string]struct{}, error) {
	ids, err := r.client.SMembers(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func (r *KnownRepoImpl) Add(ctx context.Context, ids []string) error {
	members := make([]any, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			members = append(members, id)
		}
	}
	if len(members) == 0 {
		return nil
	}
	return r.client.SAdd(ctx, r.key, members...).Err()
}

// Compact drops blank members. Set semantics already keep the rest unique.
func (r *KnownRepoImpl) Compact(ctx context.Context) (int, error) {
	ids, err := r.client.SMembers(ctx, r.key).Result()
	if err != nil {
		return 0, err
	}
	var blank []any
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			blank = append(blank, id)
		}
	}
	if len(blank) == 0 {
		return 0, nil
	}
	n, err := r.client.SRem(ctx, r.key, blank...).Result()
	return int(n), err
}
