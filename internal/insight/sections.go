package insight

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/mohammad-safakhou/apilog/models"
)

func pct(x float64) string { return fmt.Sprintf("%.1f%%", round1(x)) }

func severity(gap float64) string {
	switch {
	case gap >= 50:
		return "High"
	case gap >= 25:
		return "Medium"
	}
	return "Low"
}

func count(x float64) string { return humanize.Comma(int64(math.Round(x))) }

func (e *Engine) diagnostics(s signals) []models.Diagnostic {
	out := []models.Diagnostic{}
	if d, ok := splitDiagnostic("Device", "device_share", s.devices); ok {
		d.Insight = "Check whether layout and load time on " + s.devices[len(s.devices)-1].Label + " hold this segment back."
		out = append(out, d)
	}
	if d, ok := splitDiagnostic("Browser", "browser_share", s.browsers); ok {
		d.Insight = "Look for rendering or script errors specific to " + s.browsers[len(s.browsers)-1].Label + "."
		out = append(out, d)
	}
	if t := s.trend; t != nil {
		d := models.Diagnostic{
			Focus:    "Traffic trend",
			Finding:  fmt.Sprintf("Daily traffic is %s (%+.1f%% from first to last day over %d days).", t.Label, t.ChangePct, t.Days),
			Widget:   "daily_count",
			Severity: "Low",
		}
		if t.Label == "falling" {
			d.Severity = "Medium"
			if t.ChangePct <= -2*e.opts.TrendThresholdPct {
				d.Severity = "High"
			}
		}
		if len(s.views) > 0 {
			lead := make([]string, 0, 2)
			for _, v := range s.views[:min(2, len(s.views))] {
				lead = append(lead, fmt.Sprintf("%s (%s)", v.Label, pct(v.Pct)))
			}
			d.Insight = "Inbound views are led by " + strings.Join(lead, " and ") + "."
			d.Share = pct(s.views[0].Pct)
		}
		out = append(out, d)
	}
	if len(s.countries) > 0 {
		c := s.countries[0]
		out = append(out, models.Diagnostic{
			Focus:    "Country: " + c.Label,
			Finding:  fmt.Sprintf("%s accounts for %s of sessions (%s sessions).", c.Label, pct(c.Pct), count(c.Value)),
			Widget:   "country_share",
			Severity: "Low",
			Share:    pct(c.Pct),
		})
	}
	return out
}

func splitDiagnostic(kind, widget string, shares []Share) (models.Diagnostic, bool) {
	switch len(shares) {
	case 0:
		return models.Diagnostic{}, false
	case 1:
		return models.Diagnostic{
			Focus:    kind + ": " + shares[0].Label,
			Finding:  "All tracked sessions come from " + shares[0].Label + ".",
			Widget:   widget,
			Severity: "Low",
			Share:    pct(shares[0].Pct),
		}, true
	}
	strong, weak := shares[0], shares[len(shares)-1]
	gap := strong.Pct - weak.Pct
	return models.Diagnostic{
		Focus:    kind + ": " + weak.Label,
		Finding:  fmt.Sprintf("%s holds %s of sessions versus %s at %s (gap %.1fpt).", weak.Label, pct(weak.Pct), strong.Label, pct(strong.Pct), round1(gap)),
		Widget:   widget,
		Severity: severity(gap),
		Share:    pct(weak.Pct),
	}, true
}

func (e *Engine) topPages(s signals) []PageStat {
	n := min(e.opts.TopPageIssues, len(s.pages.Pages))
	return s.pages.Pages[:n]
}

func (e *Engine) rationale(p PageStat, avgExit float64) string {
	switch {
	case p.HasDwell && p.Dwell < e.opts.ShortDwellSeconds:
		return "Visitors bounce before consuming content; check above-the-fold relevance and load time."
	case p.HasDwell && p.Dwell >= e.opts.LongDwellSeconds && p.Exit > avgExit:
		return "Visitors read but leave; the next-step CTA is missing or unclear."
	}
	return "Visitors stall before reaching a CTA; surface the next step earlier."
}

func (e *Engine) pageIssues(s signals) []models.PageIssue {
	out := []models.PageIssue{}
	for _, p := range e.topPages(s) {
		pi := models.PageIssue{
			Page:     p.Path,
			Issue:    fmt.Sprintf("Exit rate %s vs %s average", pct(p.Exit), pct(s.pages.AvgExit)),
			Widget:   "page_exit_rate",
			ExitRate: pct(p.Exit),
			Insight:  e.rationale(p, s.pages.AvgExit),
		}
		if p.HasDwell {
			pi.DwellTime = fmt.Sprintf("%.0fs", p.Dwell)
		}
		out = append(out, pi)
	}
	return out
}

func (e *Engine) interactions(s signals) []models.InteractionInsight {
	out := []models.InteractionInsight{}
	if !s.hasClicks {
		return out
	}
	c := s.clicks
	lead := models.InteractionInsight{
		Area:    c.Leader.Label,
		Insight: fmt.Sprintf("%s draws %s of %s clicks.", c.Leader.Label, pct(c.Leader.Pct), count(c.Total)),
		Widget:  c.Widget,
		Action:  "Clicks are spread across elements; keep the primary CTA prominent.",
	}
	if c.Concentrated {
		lead.Action = "Clicks concentrate on one element; give secondary CTAs more visibility or remove competing elements."
	}
	out = append(out, lead)
	if c.Trailing != nil {
		out = append(out, models.InteractionInsight{
			Area:    c.Trailing.Label,
			Insight: fmt.Sprintf("%s receives only %s of clicks.", c.Trailing.Label, pct(c.Trailing.Pct)),
			Widget:  c.Widget,
			Action:  "Review its placement, or remove it if it is not needed.",
		})
	}
	return out
}

func gapOf(shares []Share) float64 {
	if len(shares) < 2 {
		return 0
	}
	return shares[0].Pct - shares[len(shares)-1].Pct
}

func (e *Engine) uxRecommendations(s signals) []models.Recommendation {
	out := []models.Recommendation{}
	if top := e.topPages(s); len(top) > 0 {
		p := top[0]
		out = append(out, models.Recommendation{
			Category:   "UX",
			Suggestion: "Clarify the primary CTA and move key content higher on " + p.Path,
			Rationale:  fmt.Sprintf("Exit rate %s is %.1fpt above the %s average.", pct(p.Exit), round1(p.Exit-s.pages.AvgExit), pct(s.pages.AvgExit)),
			Validation: "Compare page_exit_rate for " + p.Path + " over the next 7 days.",
		})
	}
	if s.hasClicks && s.clicks.Concentrated {
		out = append(out, models.Recommendation{
			Category:   "UX",
			Suggestion: fmt.Sprintf("Rebalance the CTA hierarchy around %q", s.clicks.Leader.Label),
			Rationale:  fmt.Sprintf("%s takes %s of clicks.", s.clicks.Leader.Label, pct(s.clicks.Leader.Pct)),
			Validation: "Check the click distribution in " + s.clicks.Widget + " after 7 days.",
		})
	}
	if s.pages.HasDwell && s.pages.AvgDwell < e.opts.ShortDwellSeconds {
		out = append(out, models.Recommendation{
			Category:   "UX",
			Suggestion: "Shorten the path to relevant content on entry pages",
			Rationale:  fmt.Sprintf("Average dwell time is %.0fs.", s.pages.AvgDwell),
			Validation: "Track dwell_time for a +15% change.",
		})
	}
	return out
}

func (e *Engine) techRecommendations(s signals) []models.Recommendation {
	out := []models.Recommendation{}
	if gap := gapOf(s.devices); gap >= 25 {
		weak := s.devices[len(s.devices)-1]
		out = append(out, models.Recommendation{
			Category:   "Tech",
			Suggestion: "Profile load performance for " + weak.Label + " sessions (bundle size, image lazy-loading)",
			Rationale:  fmt.Sprintf("%s holds only %s of sessions, %.1fpt behind %s.", weak.Label, pct(weak.Pct), round1(gap), s.devices[0].Label),
			Validation: "Watch device_share and daily_count over the next 7 days.",
		})
	}
	if gap := gapOf(s.browsers); gap >= 25 {
		weak := s.browsers[len(s.browsers)-1]
		out = append(out, models.Recommendation{
			Category:   "Tech",
			Suggestion: "Check compatibility and script errors on " + weak.Label,
			Rationale:  fmt.Sprintf("%s holds only %s of sessions.", weak.Label, pct(weak.Pct)),
			Validation: "Compare browser_share after fixes ship.",
		})
	}
	if len(s.missing) > 0 {
		out = append(out, models.Recommendation{
			Category:   "Tech",
			Suggestion: "Restore the failing widget endpoints: " + strings.Join(s.missing, ", "),
			Rationale:  fmt.Sprintf("%d widget(s) returned no data for this window.", len(s.missing)),
			Validation: "All widgets respond on the next collection.",
		})
	}
	if len(out) == 0 && len(s.available) == 0 {
		out = append(out, models.Recommendation{
			Category:   "Tech",
			Suggestion: "Verify tracking coverage on every page",
			Rationale:  "No widget data was available to derive findings.",
			Validation: "Widgets return rows on the next collection.",
		})
	}
	return out
}

func (e *Engine) priorities(s signals) []models.Priority {
	out := []models.Priority{}
	if top := e.topPages(s); len(top) > 0 {
		p := top[0]
		level := "Medium"
		if p.Exit-s.pages.AvgExit >= 10 {
			level = "High"
		}
		target := math.Max(0, p.Exit-e.opts.ExitReductionPts)
		out = append(out, models.Priority{
			Title:    "Reduce exits on " + p.Path,
			Priority: level,
			Impact:   fmt.Sprintf("Exit rate %s to %s", pct(p.Exit), pct(target)),
			Widget:   "page_exit_rate",
			Effort:   "Medium",
			ExpectedMetricChange: &models.MetricChange{
				Metric:   "page_exit_rate",
				Period:   "7d",
				Target:   fmt.Sprintf("-%.0fpt", e.opts.ExitReductionPts),
				Baseline: ptr(round1(p.Exit)),
			},
			BusinessOutcome: "More sessions reach the next step.",
		})
	}
	if t := s.trend; t != nil && t.Label == "falling" {
		pr := models.Priority{
			Title:           "Recover declining traffic",
			Priority:        "High",
			Impact:          fmt.Sprintf("Daily traffic changed %+.1f%%", t.ChangePct),
			Widget:          "daily_count",
			Effort:          "Medium",
			BusinessOutcome: "Stabilized acquisition.",
		}
		if t.Last != nil {
			pr.ExpectedMetricChange = &models.MetricChange{
				Metric:   "daily_count",
				Period:   "7d",
				Target:   fmt.Sprintf("+%.1f%%", math.Abs(t.ChangePct)),
				Baseline: ptr(*t.Last),
			}
		}
		out = append(out, pr)
	}
	if s.hasClicks && s.clicks.Concentrated {
		out = append(out, models.Priority{
			Title:           "Rebalance CTA hierarchy",
			Priority:        "Medium",
			Impact:          fmt.Sprintf("%s currently takes %s of clicks", s.clicks.Leader.Label, pct(s.clicks.Leader.Pct)),
			Widget:          s.clicks.Widget,
			Effort:          "Low",
			BusinessOutcome: "Secondary journeys get discovered.",
		})
	}
	if s.pages.HasDwell {
		out = append(out, models.Priority{
			Title:    "Increase time on page",
			Priority: "Low",
			Impact:   fmt.Sprintf("+%.0f%% average dwell time", e.opts.DwellImprovementPct),
			Widget:   "dwell_time",
			Effort:   "Medium",
			ExpectedMetricChange: &models.MetricChange{
				Metric:   "avg_dwell_seconds",
				Period:   "7d",
				Target:   fmt.Sprintf("+%.0f%%", e.opts.DwellImprovementPct),
				Baseline: ptr(round1(s.pages.AvgDwell)),
			},
			BusinessOutcome: "Deeper content engagement.",
		})
	}
	return out
}

func (e *Engine) metrics(s signals) []models.MetricWatch {
	out := []models.MetricWatch{}
	if top := e.topPages(s); len(top) > 0 {
		out = append(out, models.MetricWatch{
			Metric:       "page_exit_rate",
			Widget:       "page_exit_rate",
			Reason:       "Confirm exits drop on " + top[0].Path + ".",
			TargetChange: fmt.Sprintf("-%.0fpt", e.opts.ExitReductionPts),
			Timeframe:    "7d",
		})
	}
	if s.pages.HasDwell {
		out = append(out, models.MetricWatch{
			Metric:       "avg_dwell_seconds",
			Widget:       "dwell_time",
			Reason:       "Validate UX changes through time on page.",
			TargetChange: fmt.Sprintf("+%.0f%%", e.opts.DwellImprovementPct),
			Timeframe:    "7d",
		})
	}
	if s.trend != nil {
		out = append(out, models.MetricWatch{
			Metric:    "daily_count",
			Widget:    "daily_count",
			Reason:    "Watch whether the " + s.trend.Label + " trend holds.",
			Timeframe: "7d",
		})
	}
	if s.hasClicks {
		out = append(out, models.MetricWatch{
			Metric:    "click_share",
			Widget:    s.clicks.Widget,
			Reason:    "Check the click distribution after CTA changes.",
			Timeframe: "7d",
		})
	}
	return out
}

func (e *Engine) predictions(s signals) []models.Prediction {
	out := []models.Prediction{}
	if top := e.topPages(s); len(top) > 0 {
		p := top[0]
		out = append(out, models.Prediction{
			Metric:    "page_exit_rate " + p.Path,
			Baseline:  round1(p.Exit),
			Expected:  round1(math.Max(0, p.Exit-e.opts.ExitReductionPts)),
			Unit:      "%",
			Narrative: "If the CTA on " + p.Path + " is clarified.",
		})
	}
	if s.pages.HasDwell {
		out = append(out, models.Prediction{
			Metric:    "avg_dwell_seconds",
			Baseline:  round1(s.pages.AvgDwell),
			Expected:  round1(s.pages.AvgDwell * (1 + e.opts.DwellImprovementPct/100)),
			Unit:      "s",
			Narrative: "If entry pages surface relevant content earlier.",
		})
	}
	if t := s.trend; t != nil && t.Last != nil && t.MomentumPct != nil {
		out = append(out, models.Prediction{
			Metric:    "daily_count",
			Baseline:  *t.Last,
			Expected:  round1(math.Max(0, *t.Last*(1+*t.MomentumPct/100))),
			Unit:      "sessions",
			Narrative: "If the current momentum holds.",
		})
	}
	return out
}

func (e *Engine) summary(s signals) string {
	var parts []string
	if t := s.trend; t != nil {
		parts = append(parts, fmt.Sprintf("Traffic is %s (%+.1f%% over %d days).", t.Label, t.ChangePct, t.Days))
	}
	if top := e.topPages(s); len(top) > 0 {
		parts = append(parts, fmt.Sprintf("%s has the weakest page signal with a %s exit rate.", top[0].Path, pct(top[0].Exit)))
	}
	if len(s.devices) > 1 {
		weak := s.devices[len(s.devices)-1]
		parts = append(parts, fmt.Sprintf("%s trails at %s of sessions.", weak.Label, pct(weak.Pct)))
	}
	if s.hasClicks {
		parts = append(parts, fmt.Sprintf("%s leads interactions with %s of %s clicks.", s.clicks.Leader.Label, pct(s.clicks.Leader.Pct), count(s.clicks.Total)))
	}
	if len(parts) < 2 {
		parts = append(parts, fmt.Sprintf("Built from %d widget(s), %d missing.", len(s.available), len(s.missing)))
	}
	if len(parts) > 4 {
		parts = parts[:4]
	}
	return strings.Join(parts, " ")
}
