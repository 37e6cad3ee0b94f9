// Package insight builds a complete report from a widget bundle without a model.
package insight

import (
	"time"

	"github.com/mohammad-safakhou/apilog/internal/bundle"
	"github.com/mohammad-safakhou/apilog/models"
)

// Options tunes the heuristics. Zero fields fall back to DefaultOptions.
type Options struct {
	TrendThresholdPct   float64
	DwellWeight         float64
	TopPageIssues       int
	ShortDwellSeconds   float64
	LongDwellSeconds    float64
	ConcentrationShare  float64
	ConcentrationRatio  float64
	ExitReductionPts    float64
	DwellImprovementPct float64
	RadarMin            int
	RadarMax            int
	NeutralScore        int
	HintChars           int
}

func DefaultOptions() Options {
	return Options{
		TrendThresholdPct:   6,
		DwellWeight:         0.25,
		TopPageIssues:       3,
		ShortDwellSeconds:   15,
		LongDwellSeconds:    60,
		ConcentrationShare:  50,
		ConcentrationRatio:  2,
		ExitReductionPts:    5,
		DwellImprovementPct: 15,
		RadarMin:            20,
		RadarMax:            95,
		NeutralScore:        50,
		HintChars:           400,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TrendThresholdPct <= 0 {
		o.TrendThresholdPct = d.TrendThresholdPct
	}
	if o.DwellWeight <= 0 {
		o.DwellWeight = d.DwellWeight
	}
	if o.TopPageIssues <= 0 {
		o.TopPageIssues = d.TopPageIssues
	}
	if o.ShortDwellSeconds <= 0 {
		o.ShortDwellSeconds = d.ShortDwellSeconds
	}
	if o.LongDwellSeconds <= 0 {
		o.LongDwellSeconds = d.LongDwellSeconds
	}
	if o.ConcentrationShare <= 0 {
		o.ConcentrationShare = d.ConcentrationShare
	}
	if o.ConcentrationRatio <= 0 {
		o.ConcentrationRatio = d.ConcentrationRatio
	}
	if o.ExitReductionPts <= 0 {
		o.ExitReductionPts = d.ExitReductionPts
	}
	if o.DwellImprovementPct <= 0 {
		o.DwellImprovementPct = d.DwellImprovementPct
	}
	if o.RadarMax <= 0 || o.RadarMax > 100 {
		o.RadarMax = d.RadarMax
	}
	if o.RadarMin <= 0 || o.RadarMin >= o.RadarMax {
		o.RadarMin = d.RadarMin
	}
	if o.NeutralScore <= 0 {
		o.NeutralScore = d.NeutralScore
	}
	if o.HintChars <= 0 {
		o.HintChars = d.HintChars
	}
	return o
}

// SourceWidgetBundle tags reports derived from a collected bundle.
const SourceWidgetBundle = "router_scan"

// Engine is safe for concurrent use; Build has no side effects.
type Engine struct {
	opts Options
	now  func() time.Time
}

func New(opts Options) *Engine {
	return &Engine{opts: opts.withDefaults(), now: time.Now}
}

// WithClock replaces the timestamp source used for generated_at.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	cp := *e
	cp.now = now
	return &cp
}

// signals are the quantities every section is derived from.
type signals struct {
	trend     *models.Trend
	pages     PageRanking
	devices   []Share
	browsers  []Share
	countries []Share
	views     []Share
	clicks    Clicks
	hasClicks bool
	mobile    float64
	hasMobile bool
	missing   []string
	available []string
}

func (e *Engine) signals(b *bundle.WidgetBundle) signals {
	s := signals{
		trend:     ComputeTrend(Series(b.Rows("daily_count")), e.opts.TrendThresholdPct),
		pages:     RankPages(b.Rows("page_exit_rate"), b.Rows("dwell_time"), e.opts.DwellWeight),
		devices:   Shares(b.Rows("device_share"), []string{"device", "label", "name"}, []string{"sessions", "count", "cnt"}),
		browsers:  Shares(b.Rows("browser_share"), []string{"browser", "label", "name"}, []string{"sessions", "count", "cnt"}),
		countries: Shares(b.Rows("country_share"), []string{"label", "country", "code"}, []string{"sessions", "count", "cnt"}),
		views:     PageViews(b),
		missing:   b.Missing(),
		available: b.Available(),
	}
	if rows := b.Rows("top_buttons_by_path"); len(rows) > 0 {
		s.clicks, s.hasClicks = ComputeClicks(rows, "top_buttons_by_path", e.opts.ConcentrationShare, e.opts.ConcentrationRatio)
	}
	if !s.hasClicks {
		s.clicks, s.hasClicks = ComputeClicks(b.Rows("top_buttons_global"), "top_buttons_global", e.opts.ConcentrationShare, e.opts.ConcentrationRatio)
	}
	s.mobile, s.hasMobile = MobileShare(s.devices)
	return s
}

// Build derives the full report from b. Apart from generated_at the result
// depends only on b and hint.
func (e *Engine) Build(b *bundle.WidgetBundle, hint string) models.ReportDocument {
	if b == nil {
		b = bundle.NewBuilder(bundle.Meta{}).Build()
	}
	s := e.signals(b)
	doc := models.ReportDocument{
		GeneratedAt:         e.now().UTC().Format(time.RFC3339),
		Title:               models.DefaultTitle,
		Diagnostics:         e.diagnostics(s),
		PageIssues:          e.pageIssues(s),
		InteractionInsights: e.interactions(s),
		UXRecommendations:   e.uxRecommendations(s),
		TechRecommendations: e.techRecommendations(s),
		Priorities:          e.priorities(s),
		MetricsToTrack:      e.metrics(s),
		Predictions:         e.predictions(s),
		RadarScores:         e.radar(s),
	}
	doc.Summary = e.summary(s)
	doc.Meta = models.Meta{
		Mode:           models.ModeDeterministic,
		PromptVersion:  models.DefaultPromptVersion,
		Source:         SourceWidgetBundle,
		Widgets:        nonNil(s.available),
		MissingWidgets: nonNil(s.missing),
		Trend:          s.trend,
		Time:           map[string]string{},
		Notes:          map[string]string{},
		Extras:         map[string]any{},
	}
	if h := capRunes(hint, e.opts.HintChars); h != "" {
		doc.Meta.Notes["hint"] = h
	}
	return doc
}

func nonNil(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	return xs
}

func capRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
