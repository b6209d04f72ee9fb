package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	executionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stepflow_executions_started_total",
		Help: "Total number of execution claims that succeeded.",
	})

	executionsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stepflow_executions_completed_total",
		Help: "Total number of executions reaching a terminal status.",
	}, []string{"status"})

	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stepflow_step_duration_seconds",
		Help:    "Wall time of step attempts by action kind and outcome.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"action", "status"})

	stepsStuck = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stepflow_steps_stuck_total",
		Help: "Total number of step claims lost to a live worker.",
	})

	signalsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stepflow_signals_consumed_total",
		Help: "Total number of signal events consumed by waiting steps.",
	})

	timersScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stepflow_timers_scheduled_total",
		Help: "Total number of durable timers scheduled.",
	})
)
