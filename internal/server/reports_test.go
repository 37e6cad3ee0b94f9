package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/apilog/internal/bundle"
	"github.com/mohammad-safakhou/apilog/internal/report"
	"github.com/mohammad-safakhou/apilog/models"
)

type stubSource struct {
	b    *bundle.WidgetBundle
	err  error
	last models.TimeWindow
}

func (s *stubSource) Collect(_ context.Context, w models.TimeWindow) (*bundle.WidgetBundle, error) {
	s.last = w
	return s.b, s.err
}

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func newHandler(src report.BundleSource) *ReportsHandler {
	return &ReportsHandler{Service: report.NewService(report.Options{Source: src, Logger: quiet()})}
}

func sample() *bundle.WidgetBundle {
	return bundle.NewBuilder(bundle.Meta{Base: "http://w/api/query"}).
		Add("daily_count", map[string]any{"rows": []any{
			map[string]any{"date": "2024-01-01", "cnt": 100.0},
			map[string]any{"date": "2024-01-02", "cnt": 80.0},
		}}).
		Build()
}

func postJSON(body string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/api/ai-report/generate", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req, httptest.NewRecorder()
}

func TestGenerate(t *testing.T) {
	e := echo.New()
	src := &stubSource{b: sample()}
	h := newHandler(src)

	req, rec := postJSON(`{"time_window": {"from": "2024-01-01", "to": "2024-01-08", "site_id": "site-1"}, "language": "ko"}`)
	if err := h.generate(e.NewContext(req, rec)); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var doc models.ReportDocument
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if doc.Meta.Mode != models.ModeDeterministic || doc.Meta.SiteID != "site-1" {
		t.Fatalf("unexpected meta: %+v", doc.Meta)
	}
	if src.last.Bucket != "1h" || src.last.From != "2024-01-01" {
		t.Fatalf("expected defaulted window to reach the collector, got %+v", src.last)
	}
	if len(doc.RadarScores) != 5 {
		t.Fatalf("expected 5 radar scores, got %d", len(doc.RadarScores))
	}
}

func TestGenerate_TimeAlias(t *testing.T) {
	e := echo.New()
	src := &stubSource{b: sample()}
	req, rec := postJSON(`{"time": {"from": "a", "to": "b", "bucket": "1d"}}`)
	if err := newHandler(src).generate(e.NewContext(req, rec)); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if src.last.From != "a" || src.last.Bucket != "1d" {
		t.Fatalf("expected time alias to be honoured, got %+v", src.last)
	}
}

func TestGenerate_EmptyBodyUsesDefaults(t *testing.T) {
	e := echo.New()
	src := &stubSource{b: sample()}
	req, rec := postJSON("")
	if err := newHandler(src).generate(e.NewContext(req, rec)); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if rec.Code != http.StatusOK || src.last.Bucket != "1h" {
		t.Fatalf("expected 200 with default bucket, got %d %+v", rec.Code, src.last)
	}
}

func TestGenerate_CollectFailureIsStill200(t *testing.T) {
	e := echo.New()
	req, rec := postJSON(`{}`)
	if err := newHandler(&stubSource{err: errors.New("widgets down")}).generate(e.NewContext(req, rec)); err != nil {
		t.Fatalf("generate: %v", err)
	}
	var doc models.ReportDocument
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rec.Code != http.StatusOK || doc.Meta.Mode != models.ModeError || !strings.Contains(doc.Meta.Error, "widgets down") {
		t.Fatalf("expected error-mode report, got %d %+v", rec.Code, doc.Meta)
	}
}

func TestGenerate_BadJSON(t *testing.T) {
	e := echo.New()
	req, rec := postJSON(`{"time_window": `)
	err := newHandler(&stubSource{b: sample()}).generate(e.NewContext(req, rec))
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 http error, got %v", err)
	}
}

func TestAggregate(t *testing.T) {
	e := echo.New()
	src := &stubSource{b: sample()}
	req := httptest.NewRequest(http.MethodGet, "/api/ai-report/aggregate?from=2024-01-01&to=2024-01-08&site_id=s", nil)
	rec := httptest.NewRecorder()
	if err := newHandler(src).aggregate(e.NewContext(req, rec)); err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := body["daily_count"]; !ok {
		t.Fatalf("expected daily_count in bundle, got %s", rec.Body.String())
	}
	if _, ok := body["_meta"]; !ok {
		t.Fatalf("expected _meta in bundle")
	}
	if src.last.SiteID != "s" || src.last.Bucket != "1h" {
		t.Fatalf("unexpected window %+v", src.last)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/ai-report/aggregate", nil)
	rec = httptest.NewRecorder()
	err := newHandler(&stubSource{err: errors.New("discovery broke")}).aggregate(e.NewContext(req, rec))
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %v", err)
	}
}

func TestRoutes(t *testing.T) {
	e := New(Options{Reports: newHandler(&stubSource{b: sample()}).Service, Logger: quiet()})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected healthz %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Fatalf("expected a request id header")
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if strings.TrimSpace(rec.Body.String()) != `{"ok":true}` {
		t.Fatalf("unexpected health body %q", rec.Body.String())
	}

	req, rec := postJSON(`not json`)
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), `"error":"invalid request body"`) {
		t.Fatalf("expected structured 400, got %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected metrics endpoint, got %d", rec.Code)
	}
}
