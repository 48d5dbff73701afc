package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sistec"

// Triage outcome labels.
const (
	TriageOutcomeAutomated = "automated"
	TriageOutcomeHuman     = "human"
	TriageOutcomeFallback  = "fallback"
	TriageOutcomeSkipped   = "skipped"
	TriageOutcomeFailed    = "failed"
)

// Metrics groups the Prometheus collectors exported by the service.
type Metrics struct {
	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	errors           *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	triageOutcomes   *prometheus.CounterVec
	aiCallDuration   *prometheus.HistogramVec
	queueDeadLetters prometheus.Counter
}

// NewMetrics builds collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests handled, partitioned by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "HTTP errors, partitioned by route, method and error code.",
		}, []string{"route", "method", "code"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticket_transitions_total",
			Help:      "Committed ticket status transitions.",
		}, []string{"from", "to"}),
		triageOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triage_outcomes_total",
			Help:      "Triage runs, partitioned by outcome.",
		}, []string{"outcome"}),
		aiCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ai_call_seconds",
			Help:      "Generative-AI call latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"operation", "result"}),
		queueDeadLetters: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triage_dead_letters_total",
			Help:      "Triage jobs moved to the dead-letter set.",
		}),
	}

	collectors := []prometheus.Collector{
		m.requests,
		m.requestDuration,
		m.errors,
		m.transitions,
		m.triageOutcomes,
		m.aiCallDuration,
		m.queueDeadLetters,
	}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return nil, err
		}
	}
	return m, nil
}

// RecordRequest observes one handled request.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError counts an error response.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// RecordTransition counts a committed status change.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordTriage counts a finished triage run.
func (m *Metrics) RecordTriage(outcome string) {
	if m == nil {
		return
	}
	m.triageOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveAICall records the latency of one AI call.
func (m *Metrics) ObserveAICall(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	if duration < 0 {
		duration = 0
	}
	m.aiCallDuration.WithLabelValues(operation, result).Observe(duration.Seconds())
}

// RecordDeadLetter counts a job given up on.
func (m *Metrics) RecordDeadLetter() {
	if m == nil {
		return
	}
	m.queueDeadLetters.Inc()
}
