package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const DefaultMaxEntries = 256

// Memory is an in-process store with LRU eviction and a fixed TTL.
type Memory struct {
	lru *expirable.LRU[string, Entry]
}

func NewMemory(maxEntries int, ttl time.Duration) *Memory {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Memory{lru: expirable.NewLRU[string, Entry](maxEntries, nil, ttl)}
}

func (m *Memory) Get(_ context.Context, key string) (Entry, error) {
	e, ok := m.lru.Get(key)
	if !ok {
		return Entry{}, ErrMiss
	}
	return e, nil
}

// Set ignores ttl; the store-wide TTL given to NewMemory applies.
func (m *Memory) Set(_ context.Context, key string, e Entry, _ time.Duration) error {
	m.lru.Add(key, e)
	return nil
}

func (m *Memory) Len() int { return m.lru.Len() }
