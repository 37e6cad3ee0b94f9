package report

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/mohammad-safakhou/apilog/internal/bundle"
	"github.com/mohammad-safakhou/apilog/models"
)

const (
	unknownIdentity  = "unknown"
	neutralScore     = 50
	noCommentary     = "data unavailable"
	missingRationale = "Tracking rationale missing"
	defaultPriority  = "Medium"
)

// Provenance is stamped onto every finalized report.
type Provenance struct {
	Provider string
	Model    string
	Mode     models.Mode
	Now      func() time.Time
}

// axisAliases maps lower-cased, space-free labels to canonical axes.
var axisAliases = map[string]models.RadarAxis{
	"performance": models.AxisPerformance,
	"perf":        models.AxisPerformance,
	"성능":          models.AxisPerformance,
	"experience":  models.AxisExperience,
	"ux":          models.AxisExperience,
	"사용자경험":       models.AxisExperience,
	"경험":          models.AxisExperience,
	"growth":      models.AxisGrowth,
	"conversion":  models.AxisGrowth,
	"전환":          models.AxisGrowth,
	"성장":          models.AxisGrowth,
	"search":      models.AxisSearch,
	"도달":          models.AxisSearch,
	"seo":         models.AxisSearch,
	"검색":          models.AxisSearch,
	"stability":   models.AxisStability,
	"안정성":         models.AxisStability,
	"기술안정성":       models.AxisStability,
}

// ResolveAxis maps a label to a canonical axis. Labels of five or more runes
// within edit distance 1 of exactly one alias are accepted too.
func ResolveAxis(label string) (models.RadarAxis, bool) {
	k := strings.ToLower(strings.Join(strings.Fields(label), ""))
	if k == "" {
		return "", false
	}
	if a, ok := axisAliases[k]; ok {
		return a, true
	}
	if len([]rune(k)) < 5 {
		return "", false
	}
	var match models.RadarAxis
	for alias, axis := range axisAliases {
		if len([]rune(alias)) < 5 || levenshtein.ComputeDistance(k, alias) > 1 {
			continue
		}
		if match != "" && match != axis {
			return "", false
		}
		match = axis
	}
	return match, match != ""
}

// Finalize turns any candidate object into a schema-valid document. It never
// fails: wrong-shaped fields degrade to defaults. Finalize is idempotent.
func Finalize(candidate map[string]any, p Provenance) models.ReportDocument {
	if candidate == nil {
		candidate = map[string]any{}
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	doc := models.ReportDocument{
		GeneratedAt:         str(candidate["generated_at"]),
		Title:               str(candidate["title"]),
		Summary:             str(candidate["summary"]),
		Diagnostics:         diagnostics(candidate["diagnostics"]),
		PageIssues:          pageIssues(candidate["page_issues"]),
		InteractionInsights: interactions(candidate["interaction_insights"]),
		UXRecommendations:   recommendations(candidate["ux_recommendations"], "UX"),
		TechRecommendations: recommendations(candidate["tech_recommendations"], "Tech"),
		Priorities:          priorities(candidate["priorities"]),
		MetricsToTrack:      metricWatches(candidate["metrics_to_track"]),
		Predictions:         predictions(candidate["predictions"]),
		RadarScores:         radarScores(candidate["radar_scores"]),
		Meta:                meta(candidate["meta"], p),
	}
	if strings.TrimSpace(doc.GeneratedAt) == "" {
		doc.GeneratedAt = now().UTC().Format(time.RFC3339)
	}
	if strings.TrimSpace(doc.Title) == "" {
		doc.Title = models.DefaultTitle
	}
	return doc
}

// FinalizeDocument re-finalizes an already typed document.
func FinalizeDocument(doc models.ReportDocument, p Provenance) models.ReportDocument {
	return Finalize(doc.ToMap(), p)
}

func items(v any) []map[string]any {
	list, _ := v.([]any)
	out := make([]map[string]any, 0, len(list))
	for _, it := range list {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

func trimmed(v any) string { return strings.TrimSpace(str(v)) }

func diagnostics(v any) []models.Diagnostic {
	out := []models.Diagnostic{}
	for _, m := range items(v) {
		out = append(out, models.Diagnostic{
			Focus:    trimmed(m["focus"]),
			Finding:  trimmed(m["finding"]),
			Widget:   trimmed(m["widget"]),
			Severity: trimmed(m["severity"]),
			Share:    trimmed(m["share"]),
			Insight:  trimmed(m["insight"]),
		})
	}
	return out
}

func pageIssues(v any) []models.PageIssue {
	out := []models.PageIssue{}
	for _, m := range items(v) {
		out = append(out, models.PageIssue{
			Page:      trimmed(m["page"]),
			Issue:     trimmed(m["issue"]),
			Widget:    trimmed(m["widget"]),
			DwellTime: trimmed(m["dwell_time"]),
			ExitRate:  trimmed(m["exit_rate"]),
			Insight:   trimmed(m["insight"]),
		})
	}
	return out
}

func interactions(v any) []models.InteractionInsight {
	out := []models.InteractionInsight{}
	for _, m := range items(v) {
		out = append(out, models.InteractionInsight{
			Area:    trimmed(m["area"]),
			Insight: trimmed(m["insight"]),
			Widget:  trimmed(m["widget"]),
			Action:  trimmed(m["action"]),
		})
	}
	return out
}

// recommendations drops entries without a suggestion, defaults the category and
// removes case-insensitive duplicate suggestions.
func recommendations(v any, category string) []models.Recommendation {
	out := []models.Recommendation{}
	seen := map[string]struct{}{}
	for _, m := range items(v) {
		s := trimmed(m["suggestion"])
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		c := trimmed(m["category"])
		if c == "" {
			c = category
		}
		out = append(out, models.Recommendation{
			Category:   c,
			Suggestion: s,
			Rationale:  trimmed(m["rationale"]),
			Validation: trimmed(m["validation"]),
		})
	}
	return out
}

func priorities(v any) []models.Priority {
	out := []models.Priority{}
	for _, m := range items(v) {
		title := trimmed(m["title"])
		if title == "" {
			continue
		}
		p := models.Priority{
			Title:           title,
			Priority:        trimmed(m["priority"]),
			Impact:          trimmed(m["impact"]),
			Widget:          trimmed(m["widget"]),
			Effort:          trimmed(m["effort"]),
			BusinessOutcome: trimmed(m["business_outcome"]),
		}
		if p.Priority == "" {
			p.Priority = defaultPriority
		}
		if c, ok := m["expected_metric_change"].(map[string]any); ok {
			mc := &models.MetricChange{
				Metric: trimmed(c["metric"]),
				Period: trimmed(c["period"]),
				Target: trimmed(c["target"]),
			}
			if b, ok := bundle.Number(c, "baseline"); ok {
				mc.Baseline = &b
			}
			p.ExpectedMetricChange = mc
		}
		out = append(out, p)
	}
	return out
}

func metricWatches(v any) []models.MetricWatch {
	out := []models.MetricWatch{}
	for _, m := range items(v) {
		w := models.MetricWatch{
			Metric:       trimmed(m["metric"]),
			Widget:       trimmed(m["widget"]),
			Reason:       trimmed(m["reason"]),
			TargetChange: trimmed(m["target_change"]),
			Timeframe:    trimmed(m["timeframe"]),
		}
		if w.Reason == "" {
			w.Reason = missingRationale
		}
		out = append(out, w)
	}
	return out
}

func predictions(v any) []models.Prediction {
	out := []models.Prediction{}
	for _, m := range items(v) {
		p := models.Prediction{
			Metric:    trimmed(m["metric"]),
			Unit:      trimmed(m["unit"]),
			Narrative: trimmed(m["narrative"]),
		}
		p.Baseline, _ = bundle.Number(m, "baseline")
		p.Expected, _ = bundle.Number(m, "expected")
		out = append(out, p)
	}
	return out
}

// radarScores keeps the first score seen per canonical axis. Composite labels
// ("performance/search") feed every axis they name.
func radarScores(v any) []models.RadarScore {
	found := map[models.RadarAxis]models.RadarScore{}
	for _, m := range items(v) {
		label := strings.ReplaceAll(str(m["axis"]), "/", "|")
		for _, seg := range strings.Split(label, "|") {
			axis, ok := ResolveAxis(seg)
			if !ok {
				continue
			}
			if _, dup := found[axis]; dup {
				continue
			}
			found[axis] = models.RadarScore{Axis: axis, Score: score(m["score"]), Commentary: commentary(m["commentary"])}
		}
	}
	out := make([]models.RadarScore, 0, len(models.RadarAxes))
	for _, axis := range models.RadarAxes {
		if r, ok := found[axis]; ok {
			out = append(out, r)
			continue
		}
		out = append(out, models.RadarScore{Axis: axis, Score: neutralScore, Commentary: noCommentary})
	}
	return out
}

func score(v any) int {
	f, ok := bundle.Number(map[string]any{"v": v}, "v")
	if !ok || math.IsNaN(f) {
		return neutralScore
	}
	return int(math.Max(0, math.Min(100, f)))
}

func commentary(v any) string {
	if s := trimmed(v); s != "" {
		return s
	}
	return noCommentary
}

// metaKeys are decoded into typed fields; anything else lands in Extras.
var metaKeys = map[string]struct{}{
	"provider": {}, "model": {}, "prompt_version": {}, "mode": {}, "source": {}, "site_id": {},
	"time": {}, "widgets": {}, "missing_widgets": {}, "trend": {}, "llm_error": {}, "llm_error_code": {},
	"error": {}, "notes": {}, "extras": {},
}

func meta(v any, p Provenance) models.Meta {
	m, _ := v.(map[string]any)
	out := models.Meta{
		Provider:       trimmed(m["provider"]),
		Model:          trimmed(m["model"]),
		PromptVersion:  trimmed(m["prompt_version"]),
		Source:         trimmed(m["source"]),
		SiteID:         trimmed(m["site_id"]),
		Time:           stringMap(m["time"]),
		Widgets:        stringList(m["widgets"]),
		MissingWidgets: stringList(m["missing_widgets"]),
		Trend:          trend(m["trend"]),
		LLMError:       trimmed(m["llm_error"]),
		LLMErrorCode:   trimmed(m["llm_error_code"]),
		Error:          trimmed(m["error"]),
		Notes:          stringMap(m["notes"]),
		Extras:         map[string]any{},
	}
	if ex, ok := m["extras"].(map[string]any); ok {
		for k, v := range ex {
			out.Extras[k] = v
		}
	}
	for k, v := range m {
		if _, known := metaKeys[k]; !known {
			out.Extras[k] = v
		}
	}
	if p.Provider != "" {
		out.Provider = p.Provider
	}
	if p.Model != "" {
		out.Model = p.Model
	}
	if out.Provider == "" {
		out.Provider = unknownIdentity
	}
	if out.Model == "" {
		out.Model = unknownIdentity
	}
	if out.PromptVersion == "" {
		out.PromptVersion = models.DefaultPromptVersion
	}
	if out.Source == "" {
		out.Source = "router_scan"
	}
	out.Mode = p.Mode
	if out.Mode == "" {
		out.Mode = models.Mode(trimmed(m["mode"]))
	}
	if out.Mode == "" {
		out.Mode = models.ModeLLM
	}
	return out
}

func stringList(v any) []string {
	out := []string{}
	list, _ := v.([]any)
	for _, it := range list {
		if s := trimmed(it); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func stringMap(v any) map[string]string {
	out := map[string]string{}
	m, _ := v.(map[string]any)
	for k, val := range m {
		if s := str(val); s != "" {
			out[k] = s
		}
	}
	return out
}

func trend(v any) *models.Trend {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	var t models.Trend
	if err := json.Unmarshal(raw, &t); err != nil || t.Label == "" {
		return nil
	}
	return &t
}
