// Package report runs the report synthesis pipeline.
package report

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/mohammad-safakhou/apilog/internal/bundle"
	"github.com/mohammad-safakhou/apilog/internal/cache"
	"github.com/mohammad-safakhou/apilog/internal/insight"
	"github.com/mohammad-safakhou/apilog/internal/repair"
	"github.com/mohammad-safakhou/apilog/internal/telemetry"
	"github.com/mohammad-safakhou/apilog/models"
	"github.com/mohammad-safakhou/apilog/provider"
)

// BundleSource produces the widget bundle for a window.
type BundleSource interface {
	Collect(ctx context.Context, w models.TimeWindow) (*bundle.WidgetBundle, error)
}

type Options struct {
	Source BundleSource
	// Provider is nil when the model path is disabled.
	Provider         provider.Provider
	Engine           *insight.Engine
	Cache            *cache.Cache
	Metrics          *telemetry.Metrics
	Logger           *log.Logger
	RetryPrefixChars int
	// Backfill fills list sections the model left empty from the deterministic report.
	Backfill bool
	Now      func() time.Time
}

type Service struct {
	source      BundleSource
	provider    provider.Provider
	engine      *insight.Engine
	cache       *cache.Cache
	metrics     *telemetry.Metrics
	logger      *log.Logger
	retryPrefix int
	backfill    bool
	now         func() time.Time
}

func NewService(opts Options) *Service {
	if opts.Engine == nil {
		opts.Engine = insight.New(insight.DefaultOptions())
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[REPORT] ", log.LstdFlags)
	}
	if opts.RetryPrefixChars <= 0 {
		opts.RetryPrefixChars = RetryPrefixChars
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		source:      opts.Source,
		provider:    opts.Provider,
		engine:      opts.Engine.WithClock(opts.Now),
		cache:       opts.Cache,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		retryPrefix: opts.RetryPrefixChars,
		backfill:    opts.Backfill,
		now:         opts.Now,
	}
}

func (s *Service) identity() (string, string) {
	if s.provider == nil {
		return string(provider.Disabled), ""
	}
	return s.provider.Name(), s.provider.Model()
}

// Aggregate returns the bundle for w, from cache when possible.
func (s *Service) Aggregate(ctx context.Context, w models.TimeWindow) (*bundle.WidgetBundle, error) {
	if w.Bucket == "" {
		w.Bucket = DefaultBucket
	}
	if b, ok := s.cache.Bundle(ctx, w); ok {
		return b, nil
	}
	if s.source == nil {
		return nil, stageErr(StageCollect, errors.New("no bundle source configured"))
	}
	b, err := s.source.Collect(ctx, w)
	if err != nil {
		return nil, stageErr(StageCollect, err)
	}
	s.cache.PutBundle(ctx, w, b)
	return b, nil
}

// Generate always returns a schema-valid document. Only a collection failure
// yields mode "error".
func (s *Service) Generate(ctx context.Context, req Request) models.ReportDocument {
	req = req.WithDefaults()
	name, model := s.identity()
	key := cache.ReportKey(req.Window, cache.Variant{
		Prompt:    req.Prompt,
		Language:  req.Language,
		Audience:  req.Audience,
		WordLimit: req.WordLimit,
		Provider:  name,
		Model:     model,
	})
	if doc, ok := s.cache.Report(ctx, key); ok {
		return doc
	}

	b, err := s.Aggregate(ctx, req.Window)
	if err != nil {
		s.logger.Printf("collection failed: %v", err)
		doc := s.errorReport(req, err)
		s.metrics.Report(string(doc.Meta.Mode))
		return doc
	}
	doc := s.fromBundle(ctx, b, req)
	s.cache.PutReport(ctx, key, doc)
	s.metrics.Report(string(doc.Meta.Mode))
	return doc
}

// FromBundle runs the model and deterministic paths over an existing bundle.
func (s *Service) FromBundle(ctx context.Context, b *bundle.WidgetBundle, req Request) models.ReportDocument {
	return s.fromBundle(ctx, b, req.WithDefaults())
}

func (s *Service) fromBundle(ctx context.Context, b *bundle.WidgetBundle, req Request) models.ReportDocument {
	det := make(chan models.ReportDocument, 1)
	go func() { det <- s.engine.Build(b, req.Prompt) }()

	name, model := s.identity()
	var doc models.ReportDocument
	if s.provider == nil {
		doc = FinalizeDocument(<-det, s.provenance(models.ModeDeterministic))
	} else {
		res := s.modelPath(ctx, b, req)
		fallback := <-det
		if res.Err != nil {
			s.logger.Printf("model path failed, using deterministic report: %v", res.Err)
			doc = FinalizeDocument(fallback, s.provenance(models.ModeFallback))
			doc.Meta.LLMError = res.Err.Error()
			doc.Meta.LLMErrorCode = provider.ErrorCode(s.provider, res.Err)
		} else {
			doc = Finalize(res.Value, s.provenance(models.ModeLLM))
			if s.backfill {
				s.backfillFrom(&doc, fallback)
			}
			if doc.Meta.Trend == nil {
				doc.Meta.Trend = fallback.Meta.Trend
			}
		}
	}
	doc.Meta.Provider, doc.Meta.Model = name, orUnknown(model)
	stampWindow(&doc, req.Window, b)
	return doc
}

func orUnknown(s string) string {
	if s == "" {
		return unknownIdentity
	}
	return s
}

func (s *Service) provenance(mode models.Mode) Provenance {
	name, model := s.identity()
	return Provenance{Provider: name, Model: model, Mode: mode, Now: s.now}
}

// modelPath is invoke -> repair, with one retry-for-validity round-trip when
// repair gives up on the first output.
func (s *Service) modelPath(ctx context.Context, b *bundle.WidgetBundle, req Request) Result[map[string]any] {
	msgs, err := BuildMessages(b, req)
	if err != nil {
		return Fail[map[string]any](StageInvoke, err)
	}
	content := Map(Ok(msgs), StageInvoke, func(m []models.ChatMessage) (string, error) {
		return s.invoke(ctx, m)
	})
	obj := Map(content, StageRepair, func(text string) (map[string]any, error) {
		if o, ok := repair.Object(text); ok {
			return o, nil
		}
		s.logger.Printf("model returned invalid JSON, retrying. snippet=%s", Snippet(text, SnippetChars))
		return nil, ErrUnrepairable
	})
	return obj.Recover(func(err error) (map[string]any, error) {
		var pe *PipelineError
		if !errors.As(err, &pe) || pe.Stage != StageRepair {
			return nil, err
		}
		text, err := s.invoke(ctx, RetryMessages(msgs, content.Value, s.retryPrefix))
		if err != nil {
			s.logger.Printf("retry failed: %v", err)
			return nil, stageErr(StageRetry, err)
		}
		if o, ok := repair.Object(text); ok {
			return o, nil
		}
		s.logger.Printf("retry output still invalid. snippet=%s", Snippet(text, SnippetChars))
		return nil, stageErr(StageRetry, ErrUnrepairable)
	})
}

func (s *Service) invoke(ctx context.Context, msgs []models.ChatMessage) (string, error) {
	start := time.Now()
	out, err := s.provider.Chat(ctx, msgs)
	if err == nil && strings.TrimSpace(out) == "" {
		err = errors.New("empty model response")
	}
	s.metrics.LLMRequest(s.provider.Name(), err == nil, time.Since(start))
	return out, err
}

// backfillFrom copies non-empty sections of det into sections the model left
// empty and records which ones in meta.notes["backfilled"].
func (s *Service) backfillFrom(doc *models.ReportDocument, det models.ReportDocument) {
	var filled []string
	fill := func(name string, empty, has bool, apply func()) {
		if empty && has {
			apply()
			filled = append(filled, name)
		}
	}
	fill("summary", strings.TrimSpace(doc.Summary) == "", det.Summary != "", func() { doc.Summary = det.Summary })
	fill("diagnostics", len(doc.Diagnostics) == 0, len(det.Diagnostics) > 0, func() { doc.Diagnostics = det.Diagnostics })
	fill("page_issues", len(doc.PageIssues) == 0, len(det.PageIssues) > 0, func() { doc.PageIssues = det.PageIssues })
	fill("interaction_insights", len(doc.InteractionInsights) == 0, len(det.InteractionInsights) > 0, func() { doc.InteractionInsights = det.InteractionInsights })
	fill("ux_recommendations", len(doc.UXRecommendations) == 0, len(det.UXRecommendations) > 0, func() { doc.UXRecommendations = det.UXRecommendations })
	fill("tech_recommendations", len(doc.TechRecommendations) == 0, len(det.TechRecommendations) > 0, func() { doc.TechRecommendations = det.TechRecommendations })
	fill("priorities", len(doc.Priorities) == 0, len(det.Priorities) > 0, func() { doc.Priorities = det.Priorities })
	fill("metrics_to_track", len(doc.MetricsToTrack) == 0, len(det.MetricsToTrack) > 0, func() { doc.MetricsToTrack = det.MetricsToTrack })
	fill("predictions", len(doc.Predictions) == 0, len(det.Predictions) > 0, func() { doc.Predictions = det.Predictions })
	if len(filled) > 0 {
		doc.Meta.Notes["backfilled"] = strings.Join(filled, ",")
	}
}

func (s *Service) errorReport(req Request, err error) models.ReportDocument {
	doc := Finalize(map[string]any{
		"summary": "Widget data could not be collected; no report was generated.",
	}, s.provenance(models.ModeError))
	doc.Meta.Error = err.Error()
	name, model := s.identity()
	doc.Meta.Provider, doc.Meta.Model = name, orUnknown(model)
	stampWindow(&doc, req.Window, nil)
	return doc
}

// stampWindow records the request window and the widget inventory.
func stampWindow(doc *models.ReportDocument, w models.TimeWindow, b *bundle.WidgetBundle) {
	doc.Meta.SiteID = w.SiteID
	doc.Meta.Time = map[string]string{"bucket": w.Bucket}
	if w.From != "" {
		doc.Meta.Time["from"] = w.From
	}
	if w.To != "" {
		doc.Meta.Time["to"] = w.To
	}
	if b == nil {
		return
	}
	doc.Meta.Widgets = append([]string{}, b.Available()...)
	doc.Meta.MissingWidgets = append([]string{}, b.Missing()...)
	if misc := b.Misc(); len(misc) > 0 {
		keys := make([]string, 0, len(misc))
		for _, e := range misc {
			keys = append(keys, e.Key)
		}
		sort.Strings(keys)
		doc.Meta.Extras["misc_widgets"] = keys
	}
}
