// Package metrics provides Prometheus metrics for the Birdle server.
// Labels are bounded enums only (mode, outcome, result, kind); never
// session or player ids.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsStarted counts sessions that entered play, by mode.
	SessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "birdle_sessions_started_total",
		Help: "Total number of puzzle sessions started, by mode.",
	}, []string{"mode"})

	// SessionsLocked counts daily start attempts refused by the daily lock.
	SessionsLocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "birdle_sessions_locked_total",
		Help: "Total number of daily starts refused because the day was already played.",
	})

	// SessionsFinished counts sessions leaving play, by mode and outcome
	// (success, failure, abandoned).
	SessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "birdle_sessions_finished_total",
		Help: "Total number of puzzle sessions finished, by mode and outcome.",
	}, []string{"mode", "outcome"})

	// Guesses counts accepted guesses by correctness.
	Guesses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "birdle_guesses_total",
		Help: "Total number of accepted guesses, by result (correct/incorrect).",
	}, []string{"result"})

	// FrameLoads counts frame image fetches by result (loaded/failed).
	FrameLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "birdle_frame_loads_total",
		Help: "Total number of frame image loads, by result.",
	}, []string{"result"})

	// UpstreamErrors counts failed calls to the upstream Birdle API, by kind.
	UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "birdle_upstream_errors_total",
		Help: "Total number of upstream API failures, by error kind.",
	}, []string{"kind"})

	// HistoryWriteErrors counts swallowed history append failures.
	HistoryWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "birdle_history_write_errors_total",
		Help: "Total number of puzzle results that could not be written to history.",
	})

	// LiveSessions tracks sessions held in memory.
	LiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "birdle_live_sessions",
		Help: "Current number of puzzle sessions held in memory.",
	})
)
