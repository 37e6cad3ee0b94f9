// Package cache is the short-lived aggregate cache in front of report generation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/mohammad-safakhou/apilog/internal/bundle"
	"github.com/mohammad-safakhou/apilog/internal/telemetry"
	"github.com/mohammad-safakhou/apilog/models"
)

// ErrMiss is returned by stores for an absent or expired key.
var ErrMiss = errors.New("cache miss")

// Entry is one cached value. Entries are replaced wholesale, never updated.
type Entry struct {
	Value     []byte    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the storage backend of the cache.
type Store interface {
	Get(ctx context.Context, key string) (Entry, error)
	Set(ctx context.Context, key string, e Entry, ttl time.Duration) error
}

// Entry kinds, also used as metric labels.
const (
	KindBundle = "bundle"
	KindReport = "report"
)

// Cache stores bundles and reports. A nil *Cache never hits and drops writes.
// Backend errors are logged and treated as misses.
type Cache struct {
	store   Store
	ttl     time.Duration
	logger  *log.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

func New(store Store, ttl time.Duration, logger *log.Logger, metrics *telemetry.Metrics) *Cache {
	if store == nil || ttl <= 0 {
		return nil
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[CACHE] ", log.LstdFlags)
	}
	return &Cache{store: store, ttl: ttl, logger: logger, metrics: metrics, now: time.Now}
}

func (c *Cache) get(ctx context.Context, kind, key string, out any) bool {
	if c == nil {
		return false
	}
	e, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Printf("get %s: %v", key, err)
		}
		c.metrics.Cache(kind, false)
		return false
	}
	if c.now().Sub(e.CreatedAt) > c.ttl {
		c.metrics.Cache(kind, false)
		return false
	}
	if err := json.Unmarshal(e.Value, out); err != nil {
		c.logger.Printf("decode %s: %v", key, err)
		c.metrics.Cache(kind, false)
		return false
	}
	c.metrics.Cache(kind, true)
	return true
}

func (c *Cache) put(ctx context.Context, key string, v any) {
	if c == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Printf("encode %s: %v", key, err)
		return
	}
	if err := c.store.Set(ctx, key, Entry{Value: data, CreatedAt: c.now()}, c.ttl); err != nil {
		c.logger.Printf("set %s: %v", key, err)
	}
}

// Bundle returns the cached bundle for w.
func (c *Cache) Bundle(ctx context.Context, w models.TimeWindow) (*bundle.WidgetBundle, bool) {
	var b bundle.WidgetBundle
	if !c.get(ctx, KindBundle, BundleKey(w), &b) {
		return nil, false
	}
	return &b, true
}

func (c *Cache) PutBundle(ctx context.Context, w models.TimeWindow, b *bundle.WidgetBundle) {
	if b == nil {
		return
	}
	c.put(ctx, BundleKey(w), b)
}

// Report returns the cached report stored under key (see ReportKey).
func (c *Cache) Report(ctx context.Context, key string) (models.ReportDocument, bool) {
	var doc models.ReportDocument
	if !c.get(ctx, KindReport, key, &doc) {
		return models.ReportDocument{}, false
	}
	return doc, true
}

// PutReport stores doc. Error-mode reports are not cached.
func (c *Cache) PutReport(ctx context.Context, key string, doc models.ReportDocument) {
	if doc.Meta.Mode == models.ModeError {
		return
	}
	c.put(ctx, key, doc)
}
