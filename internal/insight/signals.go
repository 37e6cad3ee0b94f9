package insight

import (
	"math"
	"sort"
	"strings"

	"github.com/mohammad-safakhou/apilog/internal/bundle"
	"github.com/mohammad-safakhou/apilog/models"
)

// Share is one segment of a distribution, with Pct in percent of the total.
type Share struct {
	Label string
	Value float64
	Pct   float64
}

// Shares reads a categorical distribution. A row's own "pct" wins over the
// computed share. The result is sorted by Pct descending, then label.
func Shares(rows []bundle.Row, labelKeys, valueKeys []string) []Share {
	var (
		out   []Share
		total float64
	)
	for _, r := range rows {
		label := bundle.Text(r, labelKeys...)
		if label == "" {
			continue
		}
		v, _ := bundle.Number(r, valueKeys...)
		total += v
		pct := -1.0
		if p, ok := bundle.Number(r, "pct", "share", "percent"); ok {
			pct = p
		}
		out = append(out, Share{Label: label, Value: v, Pct: pct})
	}
	for i := range out {
		if out[i].Pct >= 0 {
			continue
		}
		if total > 0 {
			out[i].Pct = out[i].Value / total * 100
		} else {
			out[i].Pct = 0
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Pct != out[j].Pct {
			return out[i].Pct > out[j].Pct
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// Series extracts a daily-count series ordered by date. Undated rows keep
// their relative order after the dated ones.
func Series(rows []bundle.Row) []float64 {
	type point struct {
		date string
		v    float64
	}
	var pts []point
	for _, r := range rows {
		v, ok := bundle.Number(r, "cnt", "count", "value", "sessions", "total")
		if !ok {
			continue
		}
		pts = append(pts, point{date: bundle.Text(r, "date", "day", "bucket", "time"), v: v})
	}
	sort.SliceStable(pts, func(i, j int) bool {
		di, dj := pts[i].date, pts[j].date
		if (di == "") != (dj == "") {
			return dj == ""
		}
		return di < dj
	})
	out := make([]float64, len(pts))
	for i, p := range pts {
		out[i] = p.v
	}
	return out
}

// ComputeTrend compares the first and last values (change) and the means of the
// first and second halves (momentum). An odd middle value is in neither half.
// It returns nil for fewer than two points.
func ComputeTrend(values []float64, thresholdPct float64) *models.Trend {
	n := len(values)
	if n < 2 {
		return nil
	}
	first, last := values[0], values[n-1]
	change := pctChange(first, last)

	half := n / 2
	m1 := mean(values[:half])
	m2 := mean(values[n-half:])
	label := "flat"
	switch {
	case change >= thresholdPct:
		label = "rising"
	case change <= -thresholdPct:
		label = "falling"
	}
	t := &models.Trend{
		Label:     label,
		ChangePct: round1(change),
		Days:      n,
		Last:      ptr(round1(last)),
	}
	if m1 != 0 {
		t.MomentumPct = ptr(round1((m2 - m1) / m1 * 100))
	}
	return t
}

// PageStat is one ranked page-issue candidate.
type PageStat struct {
	Path     string
	Views    float64
	Exit     float64
	Dwell    float64
	HasDwell bool
	Score    float64
}

// PageRanking holds the scored pages and the averages they were scored against.
type PageRanking struct {
	Pages    []PageStat
	AvgExit  float64
	AvgDwell float64
	HasDwell bool
}

// RankPages scores every path with an exit-rate observation:
// (exit - avgExit) - weight*(dwell - avgDwell). The dwell term is zero for paths
// without a dwell observation. Ties break on path.
func RankPages(exitRows, dwellRows []bundle.Row, weight float64) PageRanking {
	dwell := map[string]float64{}
	var dwellVals []float64
	for _, r := range dwellRows {
		p := bundle.Text(r, "path", "page", "url")
		v, ok := bundle.Number(r, "avg_seconds", "avg_duration", "avg_time", "seconds")
		if p == "" || !ok {
			continue
		}
		if _, dup := dwell[p]; dup {
			continue
		}
		dwell[p] = v
		dwellVals = append(dwellVals, v)
	}

	var pages []PageStat
	seen := map[string]struct{}{}
	var exitVals []float64
	for _, r := range exitRows {
		p := bundle.Text(r, "path", "page", "url")
		x, ok := bundle.Number(r, "exit_rate", "ratio")
		if p == "" || !ok {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		views, _ := bundle.Number(r, "views", "total_views", "count")
		ps := PageStat{Path: p, Views: views, Exit: x}
		if d, ok := dwell[p]; ok {
			ps.Dwell, ps.HasDwell = d, true
		}
		pages = append(pages, ps)
		exitVals = append(exitVals, x)
	}

	rk := PageRanking{AvgExit: mean(exitVals), AvgDwell: mean(dwellVals), HasDwell: len(dwellVals) > 0}
	for i := range pages {
		s := pages[i].Exit - rk.AvgExit
		if pages[i].HasDwell {
			s -= weight * (pages[i].Dwell - rk.AvgDwell)
		}
		pages[i].Score = s
	}
	sort.SliceStable(pages, func(i, j int) bool {
		if pages[i].Score != pages[j].Score {
			return pages[i].Score > pages[j].Score
		}
		return pages[i].Path < pages[j].Path
	})
	rk.Pages = pages
	return rk
}

// TopExit is the exit rate of the most viewed page, falling back to the best
// ranked one when views are not reported.
func (rk PageRanking) TopExit() (float64, bool) {
	if len(rk.Pages) == 0 {
		return 0, false
	}
	best := -1
	for i, p := range rk.Pages {
		if p.Views > 0 && (best == -1 || p.Views > rk.Pages[best].Views ||
			(p.Views == rk.Pages[best].Views && p.Path < rk.Pages[best].Path)) {
			best = i
		}
	}
	if best == -1 {
		best = 0
	}
	return rk.Pages[best].Exit, true
}

// Clicks summarises a click-count distribution.
type Clicks struct {
	Leader       Share
	RunnerUp     *Share
	Trailing     *Share
	Total        float64
	Concentrated bool
	Widget       string
}

// ComputeClicks identifies the leading and trailing elements. Concentration is
// flagged when the leader's share is at least minShare percent or at least ratio
// times the runner-up.
func ComputeClicks(rows []bundle.Row, widget string, minShare, ratio float64) (Clicks, bool) {
	shares := Shares(rows, []string{"element_text", "label", "button", "name", "area"}, []string{"count", "clicks", "cnt"})
	if len(shares) == 0 {
		return Clicks{}, false
	}
	c := Clicks{Leader: shares[0], Widget: widget}
	for _, s := range shares {
		c.Total += s.Value
	}
	if len(shares) > 1 {
		ru := shares[1]
		tr := shares[len(shares)-1]
		c.RunnerUp, c.Trailing = &ru, &tr
	}
	c.Concentrated = c.Leader.Pct >= minShare || (c.RunnerUp != nil && c.RunnerUp.Pct > 0 && c.Leader.Pct >= ratio*c.RunnerUp.Pct)
	return c, true
}

// PageViews reads page popularity from top_pages, or aggregates time_top_pages
// buckets when top_pages is absent.
func PageViews(b *bundle.WidgetBundle) []Share {
	viewKeys := []string{"views", "total_views", "count", "cnt", "sessions"}
	if rows := b.Rows("top_pages"); len(rows) > 0 {
		return Shares(rows, []string{"path", "url", "page"}, viewKeys)
	}
	totals := map[string]float64{}
	for _, bucket := range b.Rows("time_top_pages") {
		inner, _ := bucket["rows"].([]any)
		for _, r := range bundle.Normalize(inner) {
			p := bundle.Text(r, "path", "url", "page")
			v, ok := bundle.Number(r, viewKeys...)
			if p == "" || !ok {
				continue
			}
			totals[p] += v
		}
	}
	rows := make([]bundle.Row, 0, len(totals))
	for _, p := range bundle.SortedKeys(totals) {
		rows = append(rows, bundle.Row{"path": p, "views": totals[p]})
	}
	return Shares(rows, []string{"path"}, []string{"views"})
}

// MobileShare finds the share of sessions on mobile devices.
func MobileShare(devices []Share) (float64, bool) {
	found := false
	var pct float64
	for _, d := range devices {
		l := strings.ToLower(d.Label)
		if strings.Contains(l, "mobile") || strings.Contains(l, "phone") {
			pct += d.Pct
			found = true
		}
	}
	return pct, found
}

func pctChange(from, to float64) float64 {
	if from == 0 {
		if to > 0 {
			return 100
		}
		return 0
	}
	return (to - from) / from * 100
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func round1(x float64) float64 { return math.Round(x*10) / 10 }

func ptr[T any](v T) *T { return &v }
