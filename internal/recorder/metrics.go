package recorder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fixesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "triplog_recorder_fixes_total",
		Help: "Raw position fixes seen by the recorder, by outcome",
	}, []string{"result"})

	interpolatedPointsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "triplog_recorder_interpolated_points_total",
		Help: "Synthetic track points inserted to fill gaps",
	})

	routesCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "triplog_recorder_routes_completed_total",
		Help: "Routes finalized by stop",
	})

	watchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "triplog_recorder_watch_errors_total",
		Help: "Geolocation errors reported during an active watch",
	})
)
