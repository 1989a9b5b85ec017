package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/ideaforge-backend/internal/platform/envutil"
)

// Metrics holds the service's Prometheus collectors. All methods are safe on
// a nil receiver so callers never branch on whether metrics are enabled.
type Metrics struct {
	registry *prometheus.Registry

	sessionsStarted  *prometheus.CounterVec
	sessionsFinished *prometheus.CounterVec
	sessionDuration  *prometheus.HistogramVec
	stageEntered     *prometheus.CounterVec
	activeSessions   prometheus.Gauge

	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec
	llmTokens   *prometheus.CounterVec

	duplicateChecks *prometheus.CounterVec
	schedulerFires  *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	httpInflight prometheus.Gauge
	streamConns  *prometheus.GaugeVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", true)
}

// Init builds the process-wide metrics once. It returns nil when metrics are
// disabled.
func Init() *Metrics {
	initOnce.Do(func() {
		if !Enabled() {
			return
		}
		instance = NewMetrics(prometheus.NewRegistry())
	})
	return instance
}

func Current() *Metrics {
	return instance
}

// NewMetrics registers a fresh collector set on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		sessionsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ideaforge_generation_sessions_started_total",
			Help: "Generation sessions started",
		}, []string{"trigger"}),
		sessionsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ideaforge_generation_sessions_finished_total",
			Help: "Generation sessions reaching a terminal status",
		}, []string{"status", "error_kind"}),
		sessionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ideaforge_generation_session_duration_seconds",
			Help:    "Wall time from session start to terminal status",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"status"}),
		stageEntered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ideaforge_generation_stage_entered_total",
			Help: "Stage transitions written",
		}, []string{"stage"}),
		activeSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "ideaforge_generation_active_sessions",
			Help: "Sessions currently in progress in this process",
		}),
		llmRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ideaforge_llm_requests_total",
			Help: "LLM generation requests",
		}, []string{"provider", "model", "outcome"}),
		llmLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ideaforge_llm_request_duration_seconds",
			Help:    "LLM generation latency",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"provider", "model"}),
		llmTokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ideaforge_llm_tokens_total",
			Help: "Tokens reported by LLM providers",
		}, []string{"provider", "model", "type"}),
		duplicateChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ideaforge_duplicate_checks_total",
			Help: "Duplicate checks by method and verdict",
		}, []string{"method", "duplicate"}),
		schedulerFires: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ideaforge_scheduler_fires_total",
			Help: "Scheduler decisions per due slot",
		}, []string{"slot", "outcome"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ideaforge_http_requests_total",
			Help: "HTTP requests served",
		}, []string{"method", "route", "status"}),
		httpLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ideaforge_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "ideaforge_http_inflight_requests",
			Help: "HTTP requests being served",
		}),
		streamConns: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ideaforge_stream_connections",
			Help: "Open streaming connections",
		}, []string{"transport"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionStarted(trigger string) {
	if m == nil {
		return
	}
	m.sessionsStarted.WithLabelValues(trigger).Inc()
	m.activeSessions.Inc()
}

func (m *Metrics) StageEntered(stage string) {
	if m == nil {
		return
	}
	m.stageEntered.WithLabelValues(stage).Inc()
}

func (m *Metrics) SessionFinished(status, errorKind string, d time.Duration) {
	if m == nil {
		return
	}
	m.sessionsFinished.WithLabelValues(status, errorKind).Inc()
	m.sessionDuration.WithLabelValues(status).Observe(d.Seconds())
	m.activeSessions.Dec()
}

func (m *Metrics) LLMRequest(provider, model, outcome string, d time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(provider, model, outcome).Inc()
	m.llmLatency.WithLabelValues(provider, model).Observe(d.Seconds())
	if inputTokens > 0 {
		m.llmTokens.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.llmTokens.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
}

func (m *Metrics) DuplicateCheck(method string, duplicate bool) {
	if m == nil {
		return
	}
	m.duplicateChecks.WithLabelValues(method, strconv.FormatBool(duplicate)).Inc()
}

func (m *Metrics) SchedulerFire(slot int, outcome string) {
	if m == nil {
		return
	}
	m.schedulerFires.WithLabelValues(strconv.Itoa(slot), outcome).Inc()
}

func (m *Metrics) HTTPInflight(delta float64) {
	if m == nil {
		return
	}
	m.httpInflight.Add(delta)
}

func (m *Metrics) HTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) StreamOpened(transport string) {
	if m == nil {
		return
	}
	m.streamConns.WithLabelValues(transport).Inc()
}

func (m *Metrics) StreamClosed(transport string) {
	if m == nil {
		return
	}
	m.streamConns.WithLabelValues(transport).Dec()
}
