package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/apilog/internal/bundle"
	"github.com/mohammad-safakhou/apilog/models"
)

// Request defaults.
const (
	DefaultBucket    = "1h"
	DefaultLanguage  = "en"
	DefaultAudience  = "product"
	DefaultWordLimit = 600

	HintChars        = 400
	RetryPrefixChars = 4000
	SnippetChars     = 1200
)

// Request is one report generation call.
type Request struct {
	Window    models.TimeWindow `json:"time_window"`
	Prompt    string            `json:"prompt"`
	Language  string            `json:"language"`
	Audience  string            `json:"audience"`
	WordLimit int               `json:"word_limit"`
}

// WithDefaults fills empty fields.
func (r Request) WithDefaults() Request {
	if r.Window.Bucket == "" {
		r.Window.Bucket = DefaultBucket
	}
	if strings.TrimSpace(r.Language) == "" {
		r.Language = DefaultLanguage
	}
	if strings.TrimSpace(r.Audience) == "" {
		r.Audience = DefaultAudience
	}
	if r.WordLimit <= 0 {
		r.WordLimit = DefaultWordLimit
	}
	return r
}

const systemPrompt = "You are a senior analytics engineer. Return STRICT JSON ONLY that matches the schema. " +
	"No preface, no markdown, no extra text. Reply in the requested language."

const instructions = `Build an AI report that does the following:
- ` + "`diagnostics`" + `: 2-4 key environment-level problems, each grounded in widget data.
- ` + "`page_issues`" + `: only pages whose exit rate is high relative to dwell time, with a hypothesis.
- ` + "`interaction_insights`" + `: improvement directions from button and click patterns.
- ` + "`ux_recommendations`" + `: UX actions that can ship now, with a validation method.
- ` + "`tech_recommendations`" + `: technical actions and how to track them.
- ` + "`priorities`" + `: High/Medium/Low by impact relative to effort.
- ` + "`metrics_to_track`" + `: widgets to monitor for 7 days after the change, with the target change.
- ` + "`predictions`" + `: numeric baseline and expected values if the actions are taken.
- ` + "`radar_scores`" + `: five axes scored 0-100, each based on different evidence.`

// RetryPrompt is the final user turn of the retry-for-validity round-trip.
const RetryPrompt = "The previous response was not valid JSON. Re-read the instructions and respond AGAIN " +
	"with strict JSON only (no markdown fences, no explanations). The output must be a single " +
	"JSON object that matches the requested schema."

// schemaHint shows the model the expected shape.
var schemaHint = map[string]any{
	"generated_at":         "ISO8601 string",
	"title":                models.DefaultTitle,
	"summary":              "string",
	"diagnostics":          []any{map[string]any{"focus": "Mobile Chrome", "finding": "string", "widget": "device_share", "severity": "High"}},
	"page_issues":          []any{map[string]any{"page": "/checkout", "issue": "string", "widget": "page_exit_rate"}},
	"interaction_insights": []any{map[string]any{"area": "CTA button", "insight": "string", "widget": "top_buttons_global"}},
	"ux_recommendations":   []any{map[string]any{"category": "UX", "suggestion": "string"}},
	"tech_recommendations": []any{map[string]any{"category": "Tech", "suggestion": "string"}},
	"priorities":           []any{map[string]any{"title": "string", "priority": "High|Medium|Low", "impact": "string"}},
	"metrics_to_track":     []any{map[string]any{"metric": "page_exit_rate", "widget": "page_exit_rate"}},
	"predictions":          []any{map[string]any{"metric": "conversion_rate", "baseline": 2.1, "expected": 2.6, "unit": "%"}},
	"radar_scores":         []any{map[string]any{"axis": "performance|experience|growth|search|stability", "score": 60}},
	"meta":                 map[string]any{"prompt_version": models.DefaultPromptVersion},
}

// BuildMessages renders the system and user turns for b. The user hint is
// capped at HintChars runes.
func BuildMessages(b *bundle.WidgetBundle, req Request) ([]models.ChatMessage, error) {
	req = req.WithDefaults()
	hint, err := json.Marshal(schemaHint)
	if err != nil {
		return nil, fmt.Errorf("marshal schema hint: %w", err)
	}
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal widget bundle: %w", err)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Language: %s\n", req.Language)
	fmt.Fprintf(&sb, "Audience: %s\n", req.Audience)
	fmt.Fprintf(&sb, "WordLimit: %d\n", req.WordLimit)
	fmt.Fprintf(&sb, "UserHint(LightlyIncorporate): %s\n\n", truncateRunes(strings.TrimSpace(req.Prompt), HintChars))
	sb.WriteString(instructions)
	sb.WriteString("\n\nRespond with JSON only, conforming to this schema:\n")
	sb.Write(hint)
	sb.WriteString("\n\nWIDGET_API_BUNDLE:\n")
	sb.Write(data)
	return []models.ChatMessage{
		{Role: models.RoleSystem, Content: systemPrompt},
		{Role: models.RoleUser, Content: sb.String()},
	}, nil
}

// RetryMessages clones messages and appends the bad output (at most prefix
// runes, omitted when blank) and the strict-JSON instruction.
func RetryMessages(messages []models.ChatMessage, last string, prefix int) []models.ChatMessage {
	if prefix <= 0 {
		prefix = RetryPrefixChars
	}
	out := make([]models.ChatMessage, 0, len(messages)+2)
	for _, m := range messages {
		role := m.Role
		if role == "" {
			role = models.RoleUser
		}
		out = append(out, models.ChatMessage{Role: role, Content: m.Content})
	}
	if s := strings.TrimSpace(last); s != "" {
		out = append(out, models.ChatMessage{Role: models.RoleAssistant, Content: truncateRunes(s, prefix)})
	}
	return append(out, models.ChatMessage{Role: models.RoleUser, Content: RetryPrompt})
}

// Snippet renders untrusted text for a log line: newlines escaped, at most
// limit runes.
func Snippet(text string, limit int) string {
	if limit <= 0 {
		limit = SnippetChars
	}
	s := strings.NewReplacer("\r", `\r`, "\n", `\n`).Replace(text)
	if r := []rune(s); len(r) > limit {
		return string(r[:limit]) + "...(truncated)"
	}
	return s
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
