package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	sessions        prometheus.Gauge
	rooms           prometheus.Gauge
	moves           *prometheus.CounterVec
	framesDropped   prometheus.Counter
	persistDuration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "crossword",
			Name:      "sessions",
			Help:      "Live sessions registered with the coordinator",
		}),
		rooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "crossword",
			Name:      "rooms",
			Help:      "Rooms with members or pending persistence work",
		}),
		moves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crossword",
			Name:      "moves_total",
			Help:      "Moves handed to persistence, by outcome",
		}, []string{"result"}),
		framesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "crossword",
			Name:      "frames_dropped_total",
			Help:      "Outbound frames that could not be queued; the recipient is removed",
		}),
		persistDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crossword",
			Name:      "persist_duration_seconds",
			Help:      "Latency of persistence calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
}
