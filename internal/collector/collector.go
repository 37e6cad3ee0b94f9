// Package collector gathers widget endpoint results into a bundle.
package collector

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/apilog/internal/bundle"
	"github.com/mohammad-safakhou/apilog/internal/telemetry"
	"github.com/mohammad-safakhou/apilog/internal/transport"
	"github.com/mohammad-safakhou/apilog/models"
)

// Widget is a known endpoint and the bundle key its result is stored under.
type Widget struct {
	Key    string
	Path   string
	Params url.Values
}

// KnownWidgets are fetched with a single GET, in this order.
var KnownWidgets = []Widget{
	{Key: "browser_share", Path: "/browser-share", Params: url.Values{"range": {"7d"}}},
	{Key: "country_share", Path: "/country-share", Params: url.Values{"range": {"7d"}}},
	{Key: "daily_count", Path: "/daily-count", Params: url.Values{"range": {"7d"}}},
	{Key: "device_share", Path: "/device-share", Params: url.Values{"range": {"7d"}}},
	{Key: "dwell_time", Path: "/dwell-time", Params: url.Values{"range": {"7d"}, "limit": {"20"}}},
	{Key: "page_exit_rate", Path: "/page-exit-rate", Params: url.Values{"range": {"7d"}, "limit": {"20"}}},
	{Key: "time_top_pages", Path: "/time-top-pages", Params: url.Values{"range": {"7d"}}},
	{Key: "top_pages", Path: "/top-pages", Params: url.Values{"range": {"7d"}, "limit": {"20"}}},
	{Key: "top_buttons_global", Path: "/top-buttons/global", Params: url.Values{"range": {"7d"}, "limit": {"20"}}},
}

// Two-step interaction detail: list candidate paths, then fetch detail for the first.
const (
	PathsEndpoint  = "/top-buttons/paths"
	ByPathEndpoint = "/top-buttons/by-path"
	ByPathKey      = "top_buttons_by_path"
)

const (
	DefaultQueryPath = "/api/query"
	DefaultWorkers   = 4
)

type Options struct {
	// Base is the address of the widget service, e.g. http://127.0.0.1:8000.
	Base         string
	QueryPath    string
	Discoverer   Discoverer
	Client       *transport.HTTPClient
	Workers      int
	FetchTimeout time.Duration
	RowCap       int
	BucketCap    int
	Logger       *log.Logger
	Metrics      *telemetry.Metrics
}

type Collector struct {
	base      string
	queryPath string
	discover  Discoverer
	client    *transport.HTTPClient
	workers   int
	timeout   time.Duration
	rowCap    int
	bucketCap int
	logger    *log.Logger
	metrics   *telemetry.Metrics
}

func New(opts Options) *Collector {
	qp := opts.QueryPath
	if qp == "" {
		qp = DefaultQueryPath
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 20 * time.Second
	}
	if opts.RowCap <= 0 {
		opts.RowCap = bundle.DefaultRowCap
	}
	if opts.BucketCap <= 0 {
		opts.BucketCap = bundle.DefaultBucketCap
	}
	if opts.Client == nil {
		opts.Client = transport.NewHTTPClient(opts.FetchTimeout, 0, 0, 0)
	}
	if opts.Discoverer == nil {
		opts.Discoverer = DefaultStatic()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[COLLECT] ", log.LstdFlags)
	}
	return &Collector{
		base:      strings.TrimRight(opts.Base, "/") + "/" + strings.Trim(qp, "/"),
		queryPath: "/" + strings.Trim(qp, "/"),
		discover:  opts.Discoverer,
		client:    opts.Client,
		workers:   opts.Workers,
		timeout:   opts.FetchTimeout,
		rowCap:    opts.RowCap,
		bucketCap: opts.BucketCap,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
}

type result struct {
	entry bundle.Entry
	path  string
}

type task struct {
	slot int
	run  func(ctx context.Context) result
}

// Collect fetches every discovered widget and returns the bundle. Per-endpoint
// failures are recorded inline; only a discovery failure is returned as error.
func (c *Collector) Collect(ctx context.Context, w models.TimeWindow) (*bundle.WidgetBundle, error) {
	discovered, err := c.discover.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover endpoints: %w", err)
	}
	tails := map[string]struct{}{}
	var order []string
	for _, p := range discovered {
		t := c.tail(p)
		if _, ok := tails[t]; ok {
			continue
		}
		tails[t] = struct{}{}
		order = append(order, t)
	}

	known := map[string]struct{}{PathsEndpoint: {}, ByPathEndpoint: {}}
	var tasks []task
	slot := 0
	next := func(run func(ctx context.Context) result) {
		tasks = append(tasks, task{slot: slot, run: run})
		slot++
	}

	for _, wd := range KnownWidgets {
		known[wd.Path] = struct{}{}
		if _, ok := tails[wd.Path]; !ok {
			continue
		}
		wd := wd
		next(func(ctx context.Context) result {
			return c.fetch(ctx, wd.Key, wd.Path, c.params(wd.Params, w))
		})
	}
	_, hasPaths := tails[PathsEndpoint]
	_, hasByPath := tails[ByPathEndpoint]
	if hasPaths && hasByPath {
		next(func(ctx context.Context) result { return c.byPath(ctx, w) })
	}
	miscStart := slot
	keys := map[string]struct{}{ByPathKey: {}}
	for _, wd := range KnownWidgets {
		keys[wd.Key] = struct{}{}
	}
	for _, t := range order {
		if _, ok := known[t]; ok || strings.Contains(t, "{") {
			continue
		}
		t, key := t, uniqueKey(keys, Slug(t))
		next(func(ctx context.Context) result {
			return c.fetch(ctx, key, t, c.params(nil, w))
		})
	}

	results := make([]result, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, tk := range tasks {
		tk := tk
		g.Go(func() error {
			results[tk.slot] = tk.run(gctx)
			return nil
		})
	}
	_ = g.Wait()

	b := bundle.NewBuilder(bundle.Meta{Base: c.base, Discovered: discovered})
	for i, r := range results {
		if i >= miscStart {
			b.Misc(r.entry)
		} else {
			b.Put(r.entry)
		}
		if r.path != "" {
			b.Used(r.path)
		}
	}
	out := b.Build()
	c.logger.Printf("collected %d widgets (%d missing, %d misc) from %s", out.Len(), len(out.Missing()), len(out.Misc()), c.base)
	return out, nil
}

// fetch performs one bounded GET and turns any failure into an inline marker.
func (c *Collector) fetch(ctx context.Context, key, path string, params url.Values) result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	u := c.base + path
	var payload any
	err := c.client.GetJSON(ctx, u, params, &payload)
	c.metrics.WidgetFetch(key, err == nil)
	if err != nil {
		c.logger.Printf("fetch %s failed: %v", u, err)
		return result{entry: bundle.Entry{Key: key, Fail: &bundle.Failure{Error: err.Error(), URL: u}}, path: path}
	}
	return result{entry: bundle.Entry{Key: key, Payload: bundle.Trim(payload, c.rowCap, c.bucketCap)}, path: path}
}

func (c *Collector) byPath(ctx context.Context, w models.TimeWindow) result {
	first := c.fetch(ctx, ByPathKey, PathsEndpoint, c.params(nil, w))
	sample := ""
	if first.entry.OK() {
		sample = firstPath(first.entry.Payload)
	}
	if sample == "" {
		return result{entry: bundle.Entry{Key: ByPathKey, Skip: "no path candidates"}, path: PathsEndpoint}
	}
	params := c.params(url.Values{"path": {sample}, "range": {"7d"}}, w)
	return c.fetch(ctx, ByPathKey, ByPathEndpoint, params)
}

func firstPath(payload any) string {
	var list []any
	switch t := payload.(type) {
	case []any:
		list = t
	case map[string]any:
		for _, k := range []string{"paths", "rows"} {
			if l, ok := t[k].([]any); ok && len(l) > 0 {
				list = l
				break
			}
		}
	}
	if len(list) == 0 {
		return ""
	}
	switch v := list[0].(type) {
	case string:
		return v
	case map[string]any:
		s, _ := v["path"].(string)
		return s
	}
	return ""
}

// params merges endpoint defaults with the request window.
func (c *Collector) params(defaults url.Values, w models.TimeWindow) url.Values {
	out := url.Values{}
	for k, vs := range defaults {
		out[k] = append([]string(nil), vs...)
	}
	if w.From != "" && w.To != "" {
		out.Set("from", w.From)
		out.Set("to", w.To)
	}
	if w.Bucket != "" {
		out.Set("bucket", w.Bucket)
	}
	if w.SiteID != "" {
		out.Set("site_id", w.SiteID)
	}
	return out
}

// tail strips the query prefix so paths compare equal whether discovered absolute
// or relative.
func (c *Collector) tail(p string) string {
	t := strings.TrimPrefix(p, c.queryPath)
	if !strings.HasPrefix(t, "/") {
		t = "/" + t
	}
	return t
}

// uniqueKey claims key in used, suffixing _2, _3, ... when distinct tails
// slug to the same key.
func uniqueKey(used map[string]struct{}, key string) string {
	k := key
	for n := 2; ; n++ {
		if _, taken := used[k]; !taken {
			used[k] = struct{}{}
			return k
		}
		k = fmt.Sprintf("%s_%d", key, n)
	}
}

// Slug turns a path tail into a misc key: lower case, non-alphanumerics become
// underscores, and the empty path is "root".
func Slug(tail string) string {
	t := strings.Trim(strings.ToLower(tail), "/")
	var b strings.Builder
	for _, r := range t {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "root"
	}
	return b.String()
}
