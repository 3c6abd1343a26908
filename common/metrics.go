package common

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors the pipeline and server report to
type Metrics struct {
	PostersGenerated  *prometheus.CounterVec
	ExtractionFailure *prometheus.CounterVec
	ProviderLatency   *prometheus.HistogramVec
	UploadsRejected   *prometheus.CounterVec
	FieldsDropped     prometheus.Counter
}

// MustNewMetrics registers the collectors on reg. Collectors that are
// already registered are reused.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PostersGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "posterpro",
			Name:      "posters_generated_total",
			Help:      "Posters written, by content source.",
		}, []string{"mode"}),
		ExtractionFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "posterpro",
			Name:      "extraction_failures_total",
			Help:      "Failed content extractions, by provider.",
		}, []string{"provider"}),
		ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "posterpro",
			Name:      "provider_request_seconds",
			Help:      "Latency of AI provider calls.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
		}, []string{"provider"}),
		UploadsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "posterpro",
			Name:      "uploads_rejected_total",
			Help:      "Rejected uploads, by reason.",
		}, []string{"reason"}),
		FieldsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "posterpro",
			Name:      "fields_dropped_total",
			Help:      "Non-empty content fields with no matching template shape.",
		}),
	}

	m.PostersGenerated = register(reg, m.PostersGenerated)
	m.ExtractionFailure = register(reg, m.ExtractionFailure)
	m.ProviderLatency = register(reg, m.ProviderLatency)
	m.UploadsRejected = register(reg, m.UploadsRejected)
	m.FieldsDropped = register(reg, m.FieldsDropped)
	return m
}

// NopMetrics returns collectors that are not registered anywhere
func NopMetrics() *Metrics {
	return MustNewMetrics(prometheus.NewRegistry())
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
