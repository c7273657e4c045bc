package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dictation_gateway_active_sessions",
		Help: "Number of active recording sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dictation_gateway_sessions_total",
		Help: "Total number of recording sessions started",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dictation_gateway_session_duration_seconds",
		Help:    "Duration of recording sessions in seconds",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800},
	})

	// Transcript metrics
	transcriptEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dictation_gateway_transcript_events_total",
		Help: "Total transcript events received from the recognizer",
	}, []string{"kind"}) // kind: "final", "interim", "dropped"

	// Recognizer connection metrics
	recognizerConnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dictation_gateway_recognizer_connects_total",
		Help: "Total recognizer connection attempts",
	}, []string{"outcome"}) // outcome: "open", "timeout", "error"

	recognizerConnectLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dictation_gateway_recognizer_connect_seconds",
		Help:    "Time for the recognizer transport to reach open",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	// Credential metrics
	tokenFetchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dictation_gateway_token_fetch_seconds",
		Help:    "Session key fetch latency in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
	})

	tokenFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dictation_gateway_token_fetches_total",
		Help: "Total session key fetches",
	}, []string{"status"})

	// Audio metrics
	audioBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dictation_gateway_audio_bytes_total",
		Help: "Total audio bytes handled by the pipeline",
	}, []string{"disposition"}) // disposition: "sent" or "dropped"

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dictation_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dictation_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dictation_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// Metrics tracks metrics for a single recording session
type Metrics struct {
	sessionID string
	startTime time.Time
	mu        sync.Mutex
	ended     bool
}

// NewSessionMetrics creates a metrics tracker for one recording session
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a recording session
func (m *Metrics) RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a recording session; safe to call twice
func (m *Metrics) RecordSessionEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return
	}
	m.ended = true
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordTranscriptEvent records one transcript event by kind
func (m *Metrics) RecordTranscriptEvent(kind string) {
	transcriptEvents.WithLabelValues(kind).Inc()
}

// RecordAudioBytes records audio bytes by disposition ("sent" or "dropped")
func (m *Metrics) RecordAudioBytes(disposition string, bytes int64) {
	audioBytes.WithLabelValues(disposition).Add(float64(bytes))
}

// RecordError records an error by type and component
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordConnectOutcome records a recognizer connection attempt outcome
func RecordConnectOutcome(outcome string) {
	recognizerConnects.WithLabelValues(outcome).Inc()
}

// RecordConnectLatency records time to reach the open state
func RecordConnectLatency(d time.Duration) {
	recognizerConnectLatency.Observe(d.Seconds())
}

// RecordTokenFetch records one session key fetch
func RecordTokenFetch(d time.Duration, success bool) {
	tokenFetchLatency.Observe(d.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	tokenFetches.WithLabelValues(status).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
