// Package metrics exposes Prometheus counters for the gallery server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder captures request and domain metrics.
type Recorder interface {
	ObserveRequest(method, route, status string, durationSeconds float64)
	IncTenantResolution(outcome string)
	IncLocaleDecision(kind string)
	IncToolCall(tool, outcome string)
	IncChatTurn(outcome string)
}

// Tenant resolution outcomes.
const (
	OutcomeResolved   = "resolved"
	OutcomeUnresolved = "unresolved"
	OutcomeError      = "error"
)

// Noop implements Recorder without emitting anything.
type Noop struct{}

func (Noop) ObserveRequest(string, string, string, float64) {}
func (Noop) IncTenantResolution(string)                     {}
func (Noop) IncLocaleDecision(string)                       {}
func (Noop) IncToolCall(string, string)                     {}
func (Noop) IncChatTurn(string)                             {}

// Prom implements Recorder on a private registry, so several instances can
// coexist in one process.
type Prom struct {
	registry          *prometheus.Registry
	requests          *prometheus.CounterVec
	latency           *prometheus.HistogramVec
	tenantResolutions *prometheus.CounterVec
	localeDecisions   *prometheus.CounterVec
	toolCalls         *prometheus.CounterVec
	chatTurns         *prometheus.CounterVec
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		tenantResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tenant_resolutions_total",
			Help:      "Edge tenant resolutions by outcome",
		}, []string{"outcome"}),
		localeDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locale_decisions_total",
			Help:      "Locale negotiation decisions by kind",
		}, []string{"kind"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_tool_calls_total",
			Help:      "Chat tool calls by tool and outcome",
		}, []string{"tool", "outcome"}),
		chatTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat model turns by outcome",
		}, []string{"outcome"}),
	}
	p.registry.MustRegister(
		p.requests, p.latency,
		p.tenantResolutions, p.localeDecisions,
		p.toolCalls, p.chatTurns,
	)
	return p
}

func (p *Prom) ObserveRequest(method, route, status string, durationSeconds float64) {
	p.requests.WithLabelValues(method, route, status).Inc()
	p.latency.WithLabelValues(method, route).Observe(durationSeconds)
}

func (p *Prom) IncTenantResolution(outcome string) {
	p.tenantResolutions.WithLabelValues(outcome).Inc()
}

func (p *Prom) IncLocaleDecision(kind string) {
	p.localeDecisions.WithLabelValues(kind).Inc()
}

func (p *Prom) IncToolCall(tool, outcome string) {
	p.toolCalls.WithLabelValues(tool, outcome).Inc()
}

func (p *Prom) IncChatTurn(outcome string) {
	p.chatTurns.WithLabelValues(outcome).Inc()
}

// Registry returns the registry the collectors are registered on.
func (p *Prom) Registry() *prometheus.Registry {
	return p.registry
}

// Handler returns an HTTP handler for /metrics.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency labelled by the matched chi
// route pattern. Unmatched requests are labelled "unmatched".
func Middleware(rec Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if pattern := rc.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			rec.ObserveRequest(r.Method, route, strconv.Itoa(sw.status), time.Since(start).Seconds())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
