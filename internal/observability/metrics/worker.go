package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics instruments the background proof-processing pipeline.
type WorkerMetrics struct {
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	queueLag        *prometheus.HistogramVec
	matchTotal      *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cpe",
			Subsystem: "worker",
			Name:      "proof_process_total",
			Help:      "Total processed proofs by status.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cpe",
			Subsystem: "worker",
			Name:      "proof_process_duration_seconds",
			Help:      "Proof processing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cpe",
			Subsystem: "worker",
			Name:      "proof_process_in_flight",
			Help:      "Number of in-flight proof processing tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cpe",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between proof upload and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	matchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cpe",
			Subsystem: "worker",
			Name:      "auto_match_total",
			Help:      "Automatically linked price tags and receipt items by kind.",
		},
		[]string{"kind"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, queueLag, matchTotal)

	return &WorkerMetrics{
		registry:        registry,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		queueLag:        queueLag,
		matchTotal:      matchTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartProof() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishProof(service string, duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.processTotal.WithLabelValues(service, status).Inc()
	m.processDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

// ObserveMatches records how many regions or receipt lines one sweep linked.
func (m *WorkerMetrics) ObserveMatches(kind string, linked int) {
	if linked <= 0 {
		return
	}
	m.matchTotal.WithLabelValues(kind).Add(float64(linked))
}
