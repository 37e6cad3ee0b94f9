package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mohammad-safakhou/apilog/internal/cache"
	"github.com/mohammad-safakhou/apilog/repository/redis_repository"
)

type RepoType string

const (
	RepoTypeMemory RepoType = "memory"
	RepoTypeRedis  RepoType = "redis"
)

// RedisOptions locates the redis server used by RepoTypeRedis.
type RedisOptions struct {
	Host     string
	Port     int
	Password string
	DB       int
	Timeout  time.Duration
}

// NewCacheStore builds the backing store of the aggregate cache.
func NewCacheStore(ctx context.Context, t RepoType, maxEntries int, ttl time.Duration, ro RedisOptions) (cache.Store, error) {
	switch t {
	case RepoTypeMemory, "":
		return cache.NewMemory(maxEntries, ttl), nil
	case RepoTypeRedis:
		host := ro.Host
		if host == "" {
			host = "localhost"
		}
		port := ro.Port
		if port == 0 {
			port = 6379
		}
		timeout := ro.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		c, err := redis_repository.Conn(ctx, host, strconv.Itoa(port), ro.Password, ro.DB, timeout)
		if err != nil {
			return nil, fmt.Errorf("redis cache store: %w", err)
		}
		return redis_repository.NewRedisCacheStore(c), nil
	}
	return nil, fmt.Errorf("invalid repository type: %s", t)
}
