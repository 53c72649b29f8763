// Package checkpoint persists continuation tokens so an interrupted export can resume.
package checkpoint

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"activity-export/internal/common/errors"
)

// Key namespaces a checkpoint by instance host and export start date.
func Key(prefix, host, since string) string {
	return strings.Join([]string{prefix, host, since}, ":")
}

// RedisStore keeps one continuation token per key.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisStore returns a store whose entries expire after ttl; zero keeps them forever.
func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Load returns the saved token and whether one exists.
func (s *RedisStore) Load(ctx context.Context, key string) (string, bool, error) {
	token, err := s.client.Get(ctx, key).Result()
	if stderrors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewCheckpointError("load", err)
	}
	return token, true, nil
}

func (s *RedisStore) Save(ctx context.Context, key, token string) error {
	if err := s.client.Set(ctx, key, token, s.ttl).Err(); err != nil {
		return errors.NewCheckpointError("save", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return errors.NewCheckpointError("delete", err)
	}
	return nil
}
