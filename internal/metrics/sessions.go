// SPDX-License-Identifier: MIT

// Package metrics holds the Prometheus collectors for parlord.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parlor_sessions_started_total",
		Help: "Session creation attempts by result",
	}, []string{"result"}) // result=ok|invalid|capacity|room_error|spawn_error|duplicate

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parlor_sessions_active",
		Help: "Number of rooms currently registered",
	})

	cleanupTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parlor_cleanup_total",
		Help: "Completed room teardowns by trigger reason",
	}, []string{"reason"})

	cleanupDuplicateTriggers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parlor_cleanup_duplicate_triggers_total",
		Help: "Cleanup triggers that found teardown already done or in progress",
	})

	roomDeleteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parlor_room_delete_failures_total",
		Help: "Remote room deletions abandoned after exhausting retries",
	})

	workerTerminate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parlor_worker_terminate_total",
		Help: "Worker terminations by signal and outcome",
	}, []string{"signal", "outcome"}) // signal=SIGTERM|SIGKILL outcome=sent|error

	workerExit = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parlor_worker_exit_total",
		Help: "Worker process exits by kind",
	}, []string{"kind"}) // kind=exit0|exit_nonzero|forced_exit0|forced_error
)

func IncSessionStarted(result string) { sessionsStarted.WithLabelValues(result).Inc() }

func SetSessionsActive(n int) { sessionsActive.Set(float64(n)) }

func IncCleanup(reason string) { cleanupTotal.WithLabelValues(reason).Inc() }

func IncCleanupDuplicate() { cleanupDuplicateTriggers.Inc() }

func IncRoomDeleteFailure() { roomDeleteFailures.Inc() }

func IncWorkerTerminate(signal, outcome string) {
	workerTerminate.WithLabelValues(signal, outcome).Inc()
}

func IncWorkerExit(kind string) { workerExit.WithLabelValues(kind).Inc() }
