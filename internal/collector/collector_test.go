package collector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mohammad-safakhou/apilog/internal/transport"
	"github.com/mohammad-safakhou/apilog/models"
)

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type widgetSurface struct {
	mu      sync.Mutex
	queries map[string]string
}

func (s *widgetSurface) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	record := func(r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.queries[r.URL.Path] = r.URL.RawQuery
	}
	mux.HandleFunc("/api/query/daily-count", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, map[string]any{"rows": []any{
			map[string]any{"date": "2024-01-01", "cnt": 100},
			map[string]any{"date": "2024-01-02", "cnt": 130},
		}})
	})
	mux.HandleFunc("/api/query/device-share", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/query/top-pages", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		rows := make([]any, 120)
		for i := range rows {
			rows[i] = map[string]any{"path": "/p", "views": i}
		}
		writeJSON(w, map[string]any{"rows": rows})
	})
	mux.HandleFunc("/api/query/top-buttons/paths", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, map[string]any{"paths": []any{map[string]any{"path": "/checkout", "count": 10}}})
	})
	mux.HandleFunc("/api/query/top-buttons/by-path", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		if got := r.URL.Query().Get("path"); got != "/checkout" {
			t.Errorf("expected by-path for /checkout, got %q", got)
		}
		writeJSON(w, []any{map[string]any{"path": "/checkout", "element_text": "Pay", "count": 7}})
	})
	mux.HandleFunc("/api/query/extra/Funnel", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, map[string]any{"ok": true})
	})
	return mux
}

func TestCollect_RecordsFailuresInlineAndTrims(t *testing.T) {
	surface := &widgetSurface{queries: map[string]string{}}
	srv := httptest.NewServer(surface.handler(t))
	defer srv.Close()

	c := New(Options{
		Base: srv.URL,
		Discoverer: Static{
			"/api/query/daily-count",
			"/device-share",
			"/api/query/top-pages",
			PathsEndpoint,
			ByPathEndpoint,
			"/api/query/extra/Funnel",
			"/api/query/items/{id}",
		},
		Client:       transport.NewHTTPClient(2*time.Second, time.Second, 0, 0),
		FetchTimeout: 2 * time.Second,
		Logger:       quietLogger(),
	})
	b, err := c.Collect(context.Background(), models.TimeWindow{SiteID: "site-1"})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	wantKeys := []string{"daily_count", "device_share", "top_pages", ByPathKey}
	if got := b.Keys(); !reflect.DeepEqual(got, wantKeys) {
		t.Fatalf("expected keys %v, got %v", wantKeys, got)
	}
	if got := b.Missing(); !reflect.DeepEqual(got, []string{"device_share"}) {
		t.Fatalf("expected device_share missing, got %v", got)
	}
	dev, _ := b.Get("device_share")
	if dev.Fail == nil || !strings.HasSuffix(dev.Fail.URL, "/api/query/device-share") {
		t.Fatalf("expected failure marker with url, got %#v", dev)
	}
	if n := len(b.Rows("top_pages")); n != 80 {
		t.Fatalf("expected top_pages trimmed to 80 rows, got %d", n)
	}
	if n := len(b.Rows(ByPathKey)); n != 1 {
		t.Fatalf("expected by-path detail rows, got %d", n)
	}
	misc := b.Misc()
	if len(misc) != 1 || misc[0].Key != "extra_funnel" {
		t.Fatalf("unexpected misc entries %#v", misc)
	}

	surface.mu.Lock()
	q := surface.queries["/api/query/daily-count"]
	surface.mu.Unlock()
	if !strings.Contains(q, "site_id=site-1") || !strings.Contains(q, "range=7d") {
		t.Fatalf("expected range and site_id forwarded, got %q", q)
	}
}

func TestCollect_SkipsByPathWithoutCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"paths": []any{}})
	}))
	defer srv.Close()

	c := New(Options{Base: srv.URL, Discoverer: Static{PathsEndpoint, ByPathEndpoint}, Logger: quietLogger()})
	b, err := c.Collect(context.Background(), models.TimeWindow{})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	e, ok := b.Get(ByPathKey)
	if !ok || e.Skip != "no path candidates" {
		t.Fatalf("expected skip marker, got %#v", e)
	}
}

type brokenDiscoverer struct{}

func (brokenDiscoverer) Discover(context.Context) ([]string, error) {
	return nil, errors.New("router import failed")
}

func TestCollect_DiscoveryFailureIsFatal(t *testing.T) {
	c := New(Options{Base: "http://127.0.0.1:1", Discoverer: brokenDiscoverer{}, Logger: quietLogger()})
	if _, err := c.Collect(context.Background(), models.TimeWindow{}); err == nil {
		t.Fatalf("expected discovery error")
	}
}

func TestOpenAPIDiscover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"paths": map[string]any{
			"/api/query/daily-count":    map[string]any{"get": map[string]any{}},
			"/api/query/browser-share":  map[string]any{"get": map[string]any{}},
			"/api/query/snapshot/page":  map[string]any{"get": map[string]any{}},
			"/api/query/heatmap":        map[string]any{"get": map[string]any{}},
			"/api/ai-report/generate":   map[string]any{"post": map[string]any{}},
			"/api/query/ai-report/x":    map[string]any{"get": map[string]any{}},
			"/api/query/collect":        map[string]any{"post": map[string]any{}},
			"/api/other/daily-count":    map[string]any{"get": map[string]any{}},
		}})
	}))
	defer srv.Close()

	d := OpenAPI{Client: transport.NewHTTPClient(time.Second, 0, 0, 0), URL: srv.URL + "/openapi.json", QueryPath: DefaultQueryPath}
	got, err := d.Discover(context.Background())
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	want := []string{"/api/query/browser-share", "/api/query/daily-count"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestCollect_MiscKeysStayDistinct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"served": r.URL.Path})
	}))
	defer srv.Close()

	c := New(Options{Base: srv.URL, Discoverer: Static{"/a-b", "/a_b", "/daily_count", "/A-B"}, Logger: quietLogger()})
	b, err := c.Collect(context.Background(), models.TimeWindow{})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	var keys []string
	for _, e := range b.Misc() {
		keys = append(keys, e.Key)
	}
	want := []string{"a_b", "a_b_2", "daily_count_2", "a_b_3"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("expected misc keys %v, got %v", want, keys)
	}
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"/extra/Funnel": "extra_funnel",
		"/":             "root",
		"":              "root",
		"/a-b/c":        "a_b_c",
	}
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Fatalf("Slug(%q): expected %q, got %q", in, want, got)
		}
	}
}
