package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flood_monitor"

// Metrics holds the Prometheus collectors for polling, prediction and delivery.
type Metrics struct {
	Polls        *prometheus.CounterVec // labels: outcome={success,error}
	PollDuration prometheus.Histogram
	BatchSize    prometheus.Histogram

	CurrentLevel   prometheus.Gauge
	PredictedLevel prometheus.Gauge
	AvgChange      prometheus.Gauge
	FloodRisk      prometheus.Gauge
	FloodAlerts    prometheus.Counter

	ReadingsQueued  prometheus.Counter
	ReadingsDropped prometheus.Counter

	WebSocketClients prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build
// as many instances as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Feed polls by outcome.",
		}, []string{"outcome"}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of a fetch and predict cycle.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Readings per fetched batch.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 500},
		}),
		CurrentLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_level",
			Help:      "Latest water level.",
		}),
		PredictedLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "predicted_level",
			Help:      "Projected water level.",
		}),
		AvgChange: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "avg_change",
			Help:      "Mean change between consecutive valid readings.",
		}),
		FloodRisk: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "flood_risk",
			Help:      "1 while the predicted level exceeds the flood threshold.",
		}),
		FloodAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flood_alerts_total",
			Help:      "Times the predicted level crossed above the flood threshold.",
		}),
		ReadingsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_queued_total",
			Help:      "Readings handed to the database writer.",
		}),
		ReadingsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_dropped_total",
			Help:      "Readings dropped because the writer queue was full.",
		}),
		WebSocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected dashboard WebSocket clients.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Polls,
		m.PollDuration,
		m.BatchSize,
		m.CurrentLevel,
		m.PredictedLevel,
		m.AvgChange,
		m.FloodRisk,
		m.FloodAlerts,
		m.ReadingsQueued,
		m.ReadingsDropped,
		m.WebSocketClients,
	}
}
