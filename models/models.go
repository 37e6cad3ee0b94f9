package models

import "encoding/json"

// DefaultTitle is used when a candidate report carries no title
const DefaultTitle = "AI Traffic Diagnosis Report"

// DefaultPromptVersion tags the prompt/schema generation a report was produced with
const DefaultPromptVersion = "v2"

// Mode records which path produced a report
type Mode string

const (
	ModeLLM           Mode = "llm"
	ModeDeterministic Mode = "deterministic"
	ModeFallback      Mode = "fallback"
	ModeError         Mode = "error"
)

// RadarAxis is one of the five canonical quality dimensions
type RadarAxis string

const (
	AxisPerformance RadarAxis = "performance"
	AxisExperience  RadarAxis = "experience"
	AxisGrowth      RadarAxis = "growth"
	AxisSearch      RadarAxis = "search"
	AxisStability   RadarAxis = "stability"
)

// RadarAxes lists the canonical axes in output order.
var RadarAxes = []RadarAxis{AxisPerformance, AxisExperience, AxisGrowth, AxisSearch, AxisStability}

// ReportDocument is the canonical report returned to callers
type ReportDocument struct {
	GeneratedAt         string               `json:"generated_at" yaml:"generated_at"`
	Title               string               `json:"title" yaml:"title"`
	Summary             string               `json:"summary" yaml:"summary"`
	Diagnostics         []Diagnostic         `json:"diagnostics" yaml:"diagnostics"`
	PageIssues          []PageIssue          `json:"page_issues" yaml:"page_issues"`
	InteractionInsights []InteractionInsight `json:"interaction_insights" yaml:"interaction_insights"`
	UXRecommendations   []Recommendation     `json:"ux_recommendations" yaml:"ux_recommendations"`
	TechRecommendations []Recommendation     `json:"tech_recommendations" yaml:"tech_recommendations"`
	Priorities          []Priority           `json:"priorities" yaml:"priorities"`
	MetricsToTrack      []MetricWatch        `json:"metrics_to_track" yaml:"metrics_to_track"`
	Predictions         []Prediction         `json:"predictions" yaml:"predictions"`
	RadarScores         []RadarScore         `json:"radar_scores" yaml:"radar_scores"`
	Meta                Meta                 `json:"meta" yaml:"meta"`
}

type Diagnostic struct {
	Focus    string `json:"focus" yaml:"focus"`
	Finding  string `json:"finding" yaml:"finding"`
	Widget   string `json:"widget" yaml:"widget"`
	Severity string `json:"severity,omitempty" yaml:"severity,omitempty"`
	Share    string `json:"share,omitempty" yaml:"share,omitempty"`
	Insight  string `json:"insight,omitempty" yaml:"insight,omitempty"`
}

type PageIssue struct {
	Page      string `json:"page" yaml:"page"`
	Issue     string `json:"issue" yaml:"issue"`
	Widget    string `json:"widget" yaml:"widget"`
	DwellTime string `json:"dwell_time,omitempty" yaml:"dwell_time,omitempty"`
	ExitRate  string `json:"exit_rate,omitempty" yaml:"exit_rate,omitempty"`
	Insight   string `json:"insight,omitempty" yaml:"insight,omitempty"`
}

type InteractionInsight struct {
	Area    string `json:"area" yaml:"area"`
	Insight string `json:"insight" yaml:"insight"`
	Widget  string `json:"widget" yaml:"widget"`
	Action  string `json:"action,omitempty" yaml:"action,omitempty"`
}

type Recommendation struct {
	Category   string `json:"category" yaml:"category"`
	Suggestion string `json:"suggestion" yaml:"suggestion"`
	Rationale  string `json:"rationale,omitempty" yaml:"rationale,omitempty"`
	Validation string `json:"validation,omitempty" yaml:"validation,omitempty"`
}

type MetricChange struct {
	Metric   string   `json:"metric,omitempty" yaml:"metric,omitempty"`
	Period   string   `json:"period,omitempty" yaml:"period,omitempty"`
	Target   string   `json:"target,omitempty" yaml:"target,omitempty"`
	Baseline *float64 `json:"baseline,omitempty" yaml:"baseline,omitempty"`
}

type Priority struct {
	Title                string        `json:"title" yaml:"title"`
	Priority             string        `json:"priority" yaml:"priority"`
	Impact               string        `json:"impact" yaml:"impact"`
	Widget               string        `json:"widget,omitempty" yaml:"widget,omitempty"`
	Effort               string        `json:"effort,omitempty" yaml:"effort,omitempty"`
	ExpectedMetricChange *MetricChange `json:"expected_metric_change,omitempty" yaml:"expected_metric_change,omitempty"`
	BusinessOutcome      string        `json:"business_outcome,omitempty" yaml:"business_outcome,omitempty"`
}

type MetricWatch struct {
	Metric       string `json:"metric" yaml:"metric"`
	Widget       string `json:"widget" yaml:"widget"`
	Reason       string `json:"reason" yaml:"reason"`
	TargetChange string `json:"target_change,omitempty" yaml:"target_change,omitempty"`
	Timeframe    string `json:"timeframe,omitempty" yaml:"timeframe,omitempty"`
}

type Prediction struct {
	Metric    string  `json:"metric" yaml:"metric"`
	Baseline  float64 `json:"baseline" yaml:"baseline"`
	Expected  float64 `json:"expected" yaml:"expected"`
	Unit      string  `json:"unit,omitempty" yaml:"unit,omitempty"`
	Narrative string  `json:"narrative,omitempty" yaml:"narrative,omitempty"`
}

type RadarScore struct {
	Axis       RadarAxis `json:"axis" yaml:"axis"`
	Score      int       `json:"score" yaml:"score"`
	Commentary string    `json:"commentary,omitempty" yaml:"commentary,omitempty"`
}

// Trend summarises a daily-count series
type Trend struct {
	Label       string   `json:"label" yaml:"label"`
	ChangePct   float64  `json:"change_pct" yaml:"change_pct"`
	MomentumPct *float64 `json:"momentum_pct,omitempty" yaml:"momentum_pct,omitempty"`
	Days        int      `json:"days,omitempty" yaml:"days,omitempty"`
	Last        *float64 `json:"last,omitempty" yaml:"last,omitempty"`
}

// Meta carries report provenance
type Meta struct {
	Provider       string            `json:"provider" yaml:"provider"`
	Model          string            `json:"model" yaml:"model"`
	PromptVersion  string            `json:"prompt_version" yaml:"prompt_version"`
	Mode           Mode              `json:"mode" yaml:"mode"`
	Source         string            `json:"source,omitempty" yaml:"source,omitempty"`
	SiteID         string            `json:"site_id,omitempty" yaml:"site_id,omitempty"`
	Time           map[string]string `json:"time" yaml:"time"`
	Widgets        []string          `json:"widgets" yaml:"widgets"`
	MissingWidgets []string          `json:"missing_widgets" yaml:"missing_widgets"`
	Trend          *Trend            `json:"trend,omitempty" yaml:"trend,omitempty"`
	LLMError       string            `json:"llm_error,omitempty" yaml:"llm_error,omitempty"`
	LLMErrorCode   string            `json:"llm_error_code,omitempty" yaml:"llm_error_code,omitempty"`
	Error          string            `json:"error,omitempty" yaml:"error,omitempty"`
	Notes          map[string]string `json:"notes" yaml:"notes"`
	Extras         map[string]any    `json:"extras" yaml:"extras"`
}

// ToMap converts the document into its generic JSON object form.
func (d ReportDocument) ToMap() map[string]any {
	b, err := json.Marshal(d)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// Chat roles understood by every model backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a model prompt. Order is significant.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TimeWindow identifies the data a report is built over.
type TimeWindow struct {
	From   string `json:"from" yaml:"from"`
	To     string `json:"to" yaml:"to"`
	Bucket string `json:"bucket" yaml:"bucket"`
	SiteID string `json:"site_id,omitempty" yaml:"site_id,omitempty"`
}
