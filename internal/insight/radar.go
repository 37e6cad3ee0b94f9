package insight

import (
	"fmt"
	"math"

	"github.com/mohammad-safakhou/apilog/models"
)

// DataUnavailable is the commentary of an axis with no supporting signal.
const DataUnavailable = "data unavailable"

func (e *Engine) clamp(x float64) int {
	v := int(math.Round(x))
	return max(e.opts.RadarMin, min(e.opts.RadarMax, v))
}

func (e *Engine) neutral(axis models.RadarAxis) models.RadarScore {
	return models.RadarScore{Axis: axis, Score: e.opts.NeutralScore, Commentary: DataUnavailable}
}

// radar scores the five canonical axes in canonical order.
func (e *Engine) radar(s signals) []models.RadarScore {
	out := make([]models.RadarScore, 0, len(models.RadarAxes))
	for _, axis := range models.RadarAxes {
		switch axis {
		case models.AxisPerformance:
			out = append(out, e.performance(s))
		case models.AxisExperience:
			out = append(out, e.experience(s))
		case models.AxisGrowth:
			out = append(out, e.growth(s))
		case models.AxisSearch:
			out = append(out, e.search(s))
		case models.AxisStability:
			out = append(out, e.stability(s))
		default:
			out = append(out, e.neutral(axis))
		}
	}
	return out
}

// 85 - 0.5*topExit - 0.2*(100-mobileShare)
func (e *Engine) performance(s signals) models.RadarScore {
	topExit, hasExit := s.pages.TopExit()
	if !hasExit && !s.hasMobile {
		return e.neutral(models.AxisPerformance)
	}
	score := 85.0
	comment := ""
	if hasExit {
		score -= 0.5 * topExit
		comment = "top page exit " + pct(topExit)
	}
	if s.hasMobile {
		score -= 0.2 * (100 - s.mobile)
		if comment != "" {
			comment += ", "
		}
		comment += "mobile share " + pct(s.mobile)
	}
	return models.RadarScore{Axis: models.AxisPerformance, Score: e.clamp(score), Commentary: comment}
}

// 40 + 0.5*min(avgDwell, 90), minus 10 when clicks are concentrated
func (e *Engine) experience(s signals) models.RadarScore {
	if !s.pages.HasDwell && !s.hasClicks {
		return e.neutral(models.AxisExperience)
	}
	score := 40.0
	comment := ""
	if s.pages.HasDwell {
		score += 0.5 * math.Min(s.pages.AvgDwell, 90)
		comment = fmt.Sprintf("average dwell %.0fs", s.pages.AvgDwell)
	}
	if s.hasClicks && s.clicks.Concentrated {
		score -= 10
		if comment != "" {
			comment += ", "
		}
		comment += "clicks concentrated on " + s.clicks.Leader.Label
	} else if comment == "" {
		comment = "clicks spread across elements"
	}
	return models.RadarScore{Axis: models.AxisExperience, Score: e.clamp(score), Commentary: comment}
}

// 55 + momentum/2
func (e *Engine) growth(s signals) models.RadarScore {
	if s.trend == nil || s.trend.MomentumPct == nil {
		return e.neutral(models.AxisGrowth)
	}
	m := *s.trend.MomentumPct
	return models.RadarScore{
		Axis:       models.AxisGrowth,
		Score:      e.clamp(55 + m/2),
		Commentary: fmt.Sprintf("traffic %s, momentum %+.1f%%", s.trend.Label, m),
	}
}

// 40 + 50*(1 - topPageShare/100)
func (e *Engine) search(s signals) models.RadarScore {
	if len(s.views) == 0 {
		return e.neutral(models.AxisSearch)
	}
	share := s.views[0].Pct
	return models.RadarScore{
		Axis:       models.AxisSearch,
		Score:      e.clamp(40 + 50*(1-share/100)),
		Commentary: fmt.Sprintf("%s takes %s of views", s.views[0].Label, pct(share)),
	}
}

// 90 - 12*missing
func (e *Engine) stability(s signals) models.RadarScore {
	n := len(s.missing)
	comment := "all widgets responded"
	if n > 0 {
		comment = fmt.Sprintf("%d widget(s) failed", n)
	}
	return models.RadarScore{Axis: models.AxisStability, Score: e.clamp(90 - 12*float64(n)), Commentary: comment}
}
