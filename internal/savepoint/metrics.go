package savepoint

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	savesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goban_savepoint_saves_total",
		Help: "Snapshot writes attempted by the save-point coordinator.",
	}, []string{"status"})

	saveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "goban_savepoint_save_duration_seconds",
		Help:    "Duration of snapshot writes.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	outstandingBegins = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "goban_savepoint_outstanding_begins",
		Help: "Open begin/commit brackets.",
	})

	restoreTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goban_savepoint_restore_total",
		Help: "Restores by the tier that produced the state.",
	}, []string{"tier"})

	backgroundTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goban_savepoint_background_tasks_total",
		Help: "Background grace periods requested while suspending.",
	}, []string{"outcome"})
)
