package redis_repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/apilog/internal/cache"
)

const keyPrefix = "apilog:"

// redisCacheStore implements cache.Store using Redis
type redisCacheStore struct {
	client *redis.Client
}

func (r redisCacheStore) Get(ctx context.Context, key string) (cache.Entry, error) {
	val, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return cache.Entry{}, cache.ErrMiss
		}
		return cache.Entry{}, err
	}
	var e cache.Entry
	if err := json.Unmarshal(val, &e); err != nil {
		return cache.Entry{}, err
	}
	return e, nil
}

// Set stores e with an expiry of ttl; redis evicts it, entries are never updated in place.
func (r redisCacheStore) Set(ctx context.Context, key string, e cache.Entry, ttl time.Duration) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, keyPrefix+key, data, ttl).Err()
}

func NewRedisCacheStore(client *redis.Client) *redisCacheStore {
	return &redisCacheStore{
		client: client,
	}
}
