// Package metrics provides Prometheus metrics for the practice service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns all Prometheus collectors for the service. A single default
// manager backs the package-level helpers; tests may construct their own
// against a private registry.
type Manager struct {
	registry *prometheus.Registry

	// Session lifecycle
	sessionsStarted   prometheus.Counter
	sessionsCompleted prometheus.Counter
	sessionsAborted   prometheus.Counter
	activeSessions    prometheus.Gauge

	// Scoring
	beatsVisited    prometheus.Counter
	notesMatched    prometheus.Counter
	notesMissed     prometheus.Counter
	chordsCoalesced prometheus.Counter
	chordSize       prometheus.Histogram

	// Persistence pipeline
	queueSize         prometheus.Gauge
	queueCapacity     prometheus.Gauge
	queueEnqueues     prometheus.Counter
	queueDequeues     prometheus.Counter
	queueEnqueueErrs  *prometheus.CounterVec
	persistLatency    prometheus.Histogram
	persistErrors     prometheus.Counter
	sessionsPersisted prometheus.Counter
	storedSessions    prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Conversion service
	conversionRequests *prometheus.CounterVec
}

// Option applies a configuration option to the Manager.
type Option func(*managerConfig)

type managerConfig struct {
	namespace string
	registry  *prometheus.Registry
}

// WithNamespace sets the metric namespace prefix.
func WithNamespace(ns string) Option {
	return func(c *managerConfig) {
		if ns != "" {
			c.namespace = ns
		}
	}
}

// WithRegistry sets a custom registry, used by tests.
func WithRegistry(r *prometheus.Registry) Option {
	return func(c *managerConfig) {
		if r != nil {
			c.registry = r
		}
	}
}

// NewManager creates a manager and registers all collectors.
func NewManager(opts ...Option) *Manager {
	cfg := managerConfig{namespace: "etude", registry: prometheus.NewRegistry()}
	for _, opt := range opts {
		opt(&cfg)
	}

	f := promauto.With(cfg.registry)
	ns := cfg.namespace

	m := &Manager{registry: cfg.registry}

	m.sessionsStarted = f.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Name: "sessions_started_total",
		Help: "Playback attempts started.",
	})
	m.sessionsCompleted = f.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Name: "sessions_completed_total",
		Help: "Sessions that reached the end of the piece.",
	})
	m.sessionsAborted = f.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Name: "sessions_aborted_total",
		Help: "Sessions ended early by the mistake ceiling.",
	})
	m.activeSessions = f.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Name: "sessions_active",
		Help: "Live practice sessions.",
	})

	m.beatsVisited = f.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Name: "beats_visited_total",
		Help: "Beat windows opened by the tempo clock.",
	})
	m.notesMatched = f.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Name: "notes_matched_total",
		Help: "Beats scored as correct.",
	})
	m.notesMissed = f.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Name: "notes_missed_total",
		Help: "Beats scored as mistakes.",
	})
	m.chordsCoalesced = f.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Name: "chords_coalesced_total",
		Help: "Chords emitted by the aggregation window.",
	})
	m.chordSize = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns, Name: "chord_size",
		Help:    "Pitches per coalesced chord.",
		Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
	})

	m.queueSize = f.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Name: "summary_queue_size",
		Help: "Summaries waiting for persistence.",
	})
	m.queueCapacity = f.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Name: "summary_queue_capacity",
		Help: "Configured summary queue capacity.",
	})
	m.queueEnqueues = f.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Name: "summary_queue_enqueues_total",
		Help: "Summaries accepted by the queue.",
	})
	m.queueDequeues = f.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Name: "summary_queue_dequeues_total",
		Help: "Summaries handed to workers.",
	})
	m.queueEnqueueErrs = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "summary_queue_enqueue_errors_total",
		Help: "Summaries dropped at enqueue, by reason.",
	}, []string{"reason"})
	m.persistLatency = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns, Name: "persist_latency_ms",
		Help:    "Store write latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
	m.persistErrors = f.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Name: "persist_errors_total",
		Help: "Failed store writes.",
	})
	m.sessionsPersisted = f.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Name: "sessions_persisted_total",
		Help: "Summaries durably written.",
	})
	m.storedSessions = f.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Name: "stored_sessions",
		Help: "Summaries resident in the store.",
	})

	m.httpRequests = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "http_requests_total",
		Help: "HTTP requests by endpoint, method, and status.",
	}, []string{"endpoint", "method", "status"})
	m.httpRequestDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "http_request_duration_ms",
		Help:    "HTTP request duration in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	}, []string{"endpoint", "method"})

	m.conversionRequests = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "conversion_requests_total",
		Help: "Sheet-image conversion requests by result.",
	}, []string{"result"})

	return m
}

// Registry returns the manager's registry, for serving /healthz.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

var defaultManager = NewManager()

// GetRegistry returns the default manager's registry.
func GetRegistry() *prometheus.Registry {
	return defaultManager.registry
}

// Session lifecycle helpers.

func RecordSessionStarted()   { defaultManager.sessionsStarted.Inc() }
func RecordSessionCompleted() { defaultManager.sessionsCompleted.Inc() }
func RecordSessionAborted()   { defaultManager.sessionsAborted.Inc() }

// UpdateActiveSessions sets the live session gauge.
func UpdateActiveSessions(n int) { defaultManager.activeSessions.Set(float64(n)) }

// Scoring helpers.

func RecordBeatVisited() { defaultManager.beatsVisited.Inc() }
func RecordNoteMatched() { defaultManager.notesMatched.Inc() }
func RecordNoteMissed()  { defaultManager.notesMissed.Inc() }

// RecordChordCoalesced counts one emitted chord of the given size.
func RecordChordCoalesced(size int) {
	defaultManager.chordsCoalesced.Inc()
	defaultManager.chordSize.Observe(float64(size))
}

// Queue helpers.

func UpdateQueueSize(n int)     { defaultManager.queueSize.Set(float64(n)) }
func UpdateQueueCapacity(n int) { defaultManager.queueCapacity.Set(float64(n)) }
func RecordQueueEnqueue()       { defaultManager.queueEnqueues.Inc() }
func RecordQueueDequeue()       { defaultManager.queueDequeues.Inc() }

// RecordQueueEnqueueError counts a dropped summary by reason.
func RecordQueueEnqueueError(reason string) {
	defaultManager.queueEnqueueErrs.WithLabelValues(reason).Inc()
}

// Persistence helpers.

func RecordPersistLatency(ms float64) { defaultManager.persistLatency.Observe(ms) }
func RecordPersistError()             { defaultManager.persistErrors.Inc() }
func RecordSessionPersisted()         { defaultManager.sessionsPersisted.Inc() }
func UpdateStoredSessions(n int)      { defaultManager.storedSessions.Set(float64(n)) }

// HTTP helpers.

func RecordHTTPRequest(endpoint, method, status string) {
	defaultManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
}

func RecordHTTPRequestDuration(endpoint, method string, ms float64) {
	defaultManager.httpRequestDuration.WithLabelValues(endpoint, method).Observe(ms)
}

// RecordConversionRequest counts a sheet-image conversion by result
// ("ok", "rejected", "failed").
func RecordConversionRequest(result string) {
	defaultManager.conversionRequests.WithLabelValues(result).Inc()
}
