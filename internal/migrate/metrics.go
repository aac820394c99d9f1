package migrate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goban_prefs_migration_steps_total",
		Help: "Preferences migration steps applied, by target version.",
	}, []string{"version"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goban_prefs_migration_runs_total",
		Help: "Preferences migration runs by outcome.",
	}, []string{"result"})
)
