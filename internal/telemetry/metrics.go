// Package telemetry exposes the Prometheus metrics of the report pipeline.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	widgetFetch *prometheus.CounterVec
	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec
	reports     *prometheus.CounterVec
	cache       *prometheus.CounterVec
}

// New registers the pipeline metrics on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		widgetFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "apilog_widget_fetch_total",
			Help: "Widget endpoint fetches by outcome.",
		}, []string{"widget", "outcome"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "apilog_llm_requests_total",
			Help: "Model backend calls by outcome.",
		}, []string{"provider", "outcome"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "apilog_llm_request_seconds",
			Help:    "Model backend call latency.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"provider"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "apilog_reports_total",
			Help: "Reports produced by mode.",
		}, []string{"mode"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "apilog_report_cache_total",
			Help: "Aggregate cache lookups by entry kind and result.",
		}, []string{"kind", "result"}),
	}
	reg.MustRegister(m.widgetFetch, m.llmRequests, m.llmLatency, m.reports, m.cache)
	return m
}

func (m *Metrics) WidgetFetch(widget string, ok bool) {
	if m == nil {
		return
	}
	m.widgetFetch.WithLabelValues(widget, outcome(ok)).Inc()
}

func (m *Metrics) LLMRequest(provider string, ok bool, took time.Duration) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(provider, outcome(ok)).Inc()
	m.llmLatency.WithLabelValues(provider).Observe(took.Seconds())
}

func (m *Metrics) Report(mode string) {
	if m == nil {
		return
	}
	m.reports.WithLabelValues(mode).Inc()
}

func (m *Metrics) Cache(kind string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cache.WithLabelValues(kind, result).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
