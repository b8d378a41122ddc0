package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PostbackMetrics struct {
	processed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

func NewPostbackMetrics(registerer prometheus.Registerer) *PostbackMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	processed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewardgate_postbacks_total",
			Help: "Postbacks processed, by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rewardgate_postback_duration_seconds",
			Help:    "Time from receipt to outcome for a postback.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	registerer.MustRegister(processed, duration)

	return &PostbackMetrics{
		processed: processed,
		duration:  duration,
	}
}

func (m *PostbackMetrics) ObservePostback(provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(provider, outcome).Inc()
	m.duration.WithLabelValues(provider).Observe(elapsed.Seconds())
}
