package collector

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mohammad-safakhou/apilog/internal/transport"
)

// Discoverer lists the GET endpoints of the widget surface. Returned paths may be
// absolute (/api/query/daily-count) or relative to the query path (/daily-count).
type Discoverer interface {
	Discover(ctx context.Context) ([]string, error)
}

// Static is a fixed endpoint list.
type Static []string

func (s Static) Discover(context.Context) ([]string, error) {
	return append([]string(nil), s...), nil
}

// DefaultStatic lists every widget endpoint the collector knows how to use.
func DefaultStatic() Static {
	out := make(Static, 0, len(KnownWidgets)+2)
	for _, w := range KnownWidgets {
		out = append(out, w.Path)
	}
	return append(out, PathsEndpoint, ByPathEndpoint)
}

// OpenAPI discovers endpoints from the service's OpenAPI document.
type OpenAPI struct {
	Client *transport.HTTPClient
	// URL of the OpenAPI document, e.g. http://127.0.0.1:8000/openapi.json
	URL string
	// QueryPath restricts results to paths under this prefix.
	QueryPath string
}

type openAPIDoc struct {
	Paths map[string]map[string]any `json:"paths"`
}

func (o OpenAPI) Discover(ctx context.Context) ([]string, error) {
	if o.Client == nil {
		return nil, fmt.Errorf("openapi discovery: no http client")
	}
	var doc openAPIDoc
	if err := o.Client.GetJSON(ctx, o.URL, nil, &doc); err != nil {
		return nil, fmt.Errorf("openapi discovery: %w", err)
	}
	seen := map[string]struct{}{}
	var out []string
	for path, ops := range doc.Paths {
		if _, ok := ops["get"]; !ok {
			continue
		}
		if o.QueryPath != "" && !strings.HasPrefix(path, o.QueryPath) {
			continue
		}
		if excluded(path) {
			continue
		}
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}
		out = append(out, path)
	}
	sort.Strings(out)
	return out, nil
}

// excluded drops endpoints that are not widget reads.
func excluded(path string) bool {
	return strings.Contains(path, "/ai-report") || strings.Contains(path, "snapshot") || strings.Contains(path, "heatmap")
}
