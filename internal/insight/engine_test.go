package insight

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/apilog/internal/bundle"
	"github.com/mohammad-safakhou/apilog/models"
)

func dailyBundle(counts ...float64) *bundle.WidgetBundle {
	rows := make([]any, len(counts))
	for i, c := range counts {
		rows[i] = map[string]any{"date": time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC).Format("2006-01-02"), "cnt": c}
	}
	return bundle.NewBuilder(bundle.Meta{}).Add("daily_count", map[string]any{"rows": rows}).Build()
}

func richBundle() *bundle.WidgetBundle {
	return bundle.NewBuilder(bundle.Meta{Base: "http://widgets/api/query"}).
		Add("daily_count", []any{
			map[string]any{"date": "2024-01-02", "cnt": 100},
			map[string]any{"date": "2024-01-01", "cnt": 120},
			map[string]any{"date": "2024-01-03", "cnt": 90},
			map[string]any{"date": "2024-01-04", "cnt": 80},
		}).
		Add("device_share", map[string]any{"rows": []any{
			map[string]any{"device": "desktop", "sessions": 120, "pct": 63.16},
			map[string]any{"device": "mobile", "sessions": 60, "pct": 31.58},
			map[string]any{"device": "tablet", "sessions": 10, "pct": 5.26},
		}}).
		Add("browser_share", map[string]any{"rows": []any{
			map[string]any{"browser": "Chrome", "sessions": 150},
			map[string]any{"browser": "Safari", "sessions": 50},
		}}).
		Add("page_exit_rate", map[string]any{"rows": []any{
			map[string]any{"path": "/a", "views": 500, "exits": 400, "exit_rate": 80},
			map[string]any{"path": "/b", "views": 100, "exits": 40, "exit_rate": 40},
			map[string]any{"path": "/c", "views": 200, "exits": 120, "exit_rate": 60},
			map[string]any{"path": "/d", "views": 50, "exits": 10, "exit_rate": 20},
		}}).
		Add("dwell_time", map[string]any{"rows": []any{
			map[string]any{"path": "/a", "avg_seconds": 10},
			map[string]any{"path": "/c", "avg_seconds": 100},
		}}).
		Add("top_pages", map[string]any{"rows": []any{
			map[string]any{"path": "/a", "views": 500},
			map[string]any{"path": "/c", "views": 300},
			map[string]any{"path": "/b", "views": 200},
		}}).
		Add("top_buttons_global", []any{
			map[string]any{"element_text": "Buy", "count": 6000},
			map[string]any{"element_text": "Help", "count": 2000},
			map[string]any{"element_text": "Info", "count": 2000},
		}).
		Fail("country_share", errors.New("502 bad gateway"), "http://widgets/api/query/country-share").
		Build()
}

func TestSeries_UndatedRowsSortLast(t *testing.T) {
	rows := []bundle.Row{
		{"date": "2024-01-03", "cnt": 3},
		{"cnt": 90},
		{"date": "2024-01-01", "cnt": 1},
		{"cnt": 91},
		{"date": "2024-01-02", "cnt": 2},
	}
	got := Series(rows)
	want := []float64{1, 2, 3, 90, 91}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestComputeTrend_Rising(t *testing.T) {
	tr := ComputeTrend([]float64{100, 100, 100, 130}, 6)
	if tr == nil {
		t.Fatalf("expected trend")
	}
	if tr.Label != "rising" {
		t.Fatalf("expected rising, got %s", tr.Label)
	}
	if tr.ChangePct != 30 {
		t.Fatalf("expected change 30, got %v", tr.ChangePct)
	}
	if tr.MomentumPct == nil || *tr.MomentumPct != 15 {
		t.Fatalf("expected momentum 15, got %v", tr.MomentumPct)
	}
}

func TestComputeTrend_Labels(t *testing.T) {
	cases := []struct {
		in   []float64
		want string
	}{
		{[]float64{100, 105}, "flat"},
		{[]float64{100, 94}, "falling"},
		{[]float64{100, 50, 106}, "rising"},
		{[]float64{0, 0}, "flat"},
	}
	for _, c := range cases {
		tr := ComputeTrend(c.in, 6)
		if tr == nil || tr.Label != c.want {
			t.Fatalf("trend %v: expected %s, got %#v", c.in, c.want, tr)
		}
	}
	if ComputeTrend([]float64{1}, 6) != nil {
		t.Fatalf("expected nil trend for a single point")
	}
}

func TestBuild_DailyOnlyScenario(t *testing.T) {
	doc := New(Options{}).Build(dailyBundle(100, 100, 100, 130), "")
	if doc.Meta.Trend == nil || doc.Meta.Trend.Label != "rising" || doc.Meta.Trend.ChangePct != 30 {
		t.Fatalf("unexpected trend %#v", doc.Meta.Trend)
	}
	if doc.Meta.Mode != models.ModeDeterministic {
		t.Fatalf("expected deterministic mode, got %s", doc.Meta.Mode)
	}
	if !strings.Contains(doc.Summary, "rising") {
		t.Fatalf("expected summary to mention trend, got %q", doc.Summary)
	}
}

func TestBuild_IsDeterministic(t *testing.T) {
	e := New(DefaultOptions())
	a := e.Build(richBundle(), "focus on checkout")
	b := e.WithClock(func() time.Time { return time.Unix(0, 0) }).Build(richBundle(), "focus on checkout")
	a.GeneratedAt, b.GeneratedAt = "", ""
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("expected identical documents\n%#v\n%#v", a, b)
	}
}

func TestBuild_PageIssueOrderAndRationale(t *testing.T) {
	doc := New(DefaultOptions()).Build(richBundle(), "")
	if len(doc.PageIssues) != 3 {
		t.Fatalf("expected 3 page issues, got %d", len(doc.PageIssues))
	}
	var pages []string
	for _, p := range doc.PageIssues {
		pages = append(pages, p.Page)
	}
	if want := []string{"/a", "/c", "/b"}; !reflect.DeepEqual(pages, want) {
		t.Fatalf("expected order %v, got %v", want, pages)
	}
	if !strings.Contains(doc.PageIssues[0].Insight, "bounce") {
		t.Fatalf("expected bounce rationale for short dwell, got %q", doc.PageIssues[0].Insight)
	}
	if !strings.Contains(doc.PageIssues[1].Insight, "CTA is missing or unclear") {
		t.Fatalf("expected CTA rationale for long dwell, got %q", doc.PageIssues[1].Insight)
	}
	if !strings.Contains(doc.PageIssues[2].Insight, "stall") {
		t.Fatalf("expected generic rationale, got %q", doc.PageIssues[2].Insight)
	}
	if doc.PageIssues[0].DwellTime != "10s" || doc.PageIssues[2].DwellTime != "" {
		t.Fatalf("unexpected dwell annotations %#v", doc.PageIssues)
	}
}

func TestBuild_PredictionsUseComputedNumbers(t *testing.T) {
	doc := New(DefaultOptions()).Build(richBundle(), "")
	if len(doc.Predictions) == 0 {
		t.Fatalf("expected predictions")
	}
	p := doc.Predictions[0]
	if p.Baseline != 80 || p.Expected != 75 {
		t.Fatalf("expected exit prediction 80 -> 75, got %v -> %v", p.Baseline, p.Expected)
	}
	low := bundle.NewBuilder(bundle.Meta{}).Add("page_exit_rate", []any{
		map[string]any{"path": "/x", "exit_rate": 3},
	}).Build()
	doc = New(DefaultOptions()).Build(low, "")
	if doc.Predictions[0].Expected != 0 {
		t.Fatalf("expected prediction clamped at 0, got %v", doc.Predictions[0].Expected)
	}
}

func TestBuild_ClickConcentration(t *testing.T) {
	doc := New(DefaultOptions()).Build(richBundle(), "")
	if len(doc.InteractionInsights) != 2 {
		t.Fatalf("expected leader and trailing insights, got %#v", doc.InteractionInsights)
	}
	if doc.InteractionInsights[0].Area != "Buy" || doc.InteractionInsights[1].Area != "Info" {
		t.Fatalf("unexpected areas %#v", doc.InteractionInsights)
	}
	if !strings.Contains(doc.InteractionInsights[0].Insight, "10,000") {
		t.Fatalf("expected humanized click total, got %q", doc.InteractionInsights[0].Insight)
	}
	if !strings.Contains(doc.InteractionInsights[0].Action, "concentrate") {
		t.Fatalf("expected concentration action, got %q", doc.InteractionInsights[0].Action)
	}
}

func TestBuild_MissingWidgetsAndDiagnostics(t *testing.T) {
	doc := New(DefaultOptions()).Build(richBundle(), "")
	if !reflect.DeepEqual(doc.Meta.MissingWidgets, []string{"country_share"}) {
		t.Fatalf("expected country_share missing, got %v", doc.Meta.MissingWidgets)
	}
	var device *models.Diagnostic
	for i := range doc.Diagnostics {
		if doc.Diagnostics[i].Widget == "device_share" {
			device = &doc.Diagnostics[i]
		}
	}
	if device == nil || device.Focus != "Device: tablet" || device.Severity != "High" {
		t.Fatalf("unexpected device diagnostic %#v", device)
	}
	for _, d := range doc.Diagnostics {
		if d.Widget == "daily_count" && d.Severity != "High" {
			t.Fatalf("expected a -33%% trend to be High severity, got %s", d.Severity)
		}
	}
}

func TestRadar_BoundsAndOrder(t *testing.T) {
	bl := bundle.NewBuilder(bundle.Meta{})
	for _, k := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"} {
		bl.Fail(k, errors.New("down"), "http://x/"+k)
	}
	for _, b := range []*bundle.WidgetBundle{richBundle(), dailyBundle(1, 1000), bl.Build(), bundle.NewBuilder(bundle.Meta{}).Build()} {
		doc := New(DefaultOptions()).Build(b, "")
		if len(doc.RadarScores) != 5 {
			t.Fatalf("expected 5 radar scores, got %d", len(doc.RadarScores))
		}
		for i, r := range doc.RadarScores {
			if r.Axis != models.RadarAxes[i] {
				t.Fatalf("expected axis %s at %d, got %s", models.RadarAxes[i], i, r.Axis)
			}
			if r.Score < 20 || r.Score > 95 {
				t.Fatalf("score out of range: %#v", r)
			}
		}
	}
	doc := New(DefaultOptions()).Build(bundle.NewBuilder(bundle.Meta{}).Build(), "")
	for _, r := range doc.RadarScores[:4] {
		if r.Score != 50 || r.Commentary != DataUnavailable {
			t.Fatalf("expected neutral axis, got %#v", r)
		}
	}
	if doc.RadarScores[4].Score != 90 {
		t.Fatalf("expected stability 90 with no failures, got %d", doc.RadarScores[4].Score)
	}
}

func TestBuild_HintIsCapped(t *testing.T) {
	doc := New(DefaultOptions()).Build(dailyBundle(1, 2), strings.Repeat("가", 500))
	if got := len([]rune(doc.Meta.Notes["hint"])); got != 400 {
		t.Fatalf("expected hint capped at 400 runes, got %d", got)
	}
}

func TestShares_ComputesMissingPct(t *testing.T) {
	rows := bundle.Normalize([]any{
		map[string]any{"browser": "Chrome", "sessions": 75},
		map[string]any{"browser": "Firefox", "sessions": 25},
	})
	got := Shares(rows, []string{"browser"}, []string{"sessions"})
	if len(got) != 2 || got[0].Label != "Chrome" || got[0].Pct != 75 || got[1].Pct != 25 {
		t.Fatalf("unexpected shares %#v", got)
	}
}
