package calendar

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks feed refreshes.
type Metrics struct {
	refreshes  *prometheus.CounterVec
	duration   prometheus.Histogram
	activities prometheus.Gauge
	feedErrors prometheus.Gauge
}

// NewMetrics creates the refresh collectors and registers them with r.
func NewMetrics(r prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weekcal",
			Name:      "refreshes_total",
			Help:      "Feed refreshes by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weekcal",
			Name:      "refresh_duration_seconds",
			Help:      "Time spent fetching, parsing and expanding feeds.",
			Buckets:   prometheus.DefBuckets,
		}),
		activities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weekcal",
			Name:      "activities",
			Help:      "Activities in the current snapshot.",
		}),
		feedErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weekcal",
			Name:      "feed_errors",
			Help:      "Feeds that failed during the last refresh.",
		}),
	}
	r.MustRegister(m.refreshes, m.duration, m.activities, m.feedErrors)
	return m
}

func (m *Metrics) observe(began time.Time, snap *Snapshot, err error) {
	m.duration.Observe(time.Since(began).Seconds())
	if err != nil {
		m.refreshes.WithLabelValues("error").Inc()
		return
	}
	m.refreshes.WithLabelValues("ok").Inc()
	m.activities.Set(float64(len(snap.Activities)))
	m.feedErrors.Set(float64(snap.FeedErrors))
}
