/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package sched

import "github.com/prometheus/client_golang/prometheus"

var (
	dequeDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ocr",
		Subsystem: "sched",
		Name:      "deque_depth",
		Help:      "current number of runnable EDTs held by a scheduler context's local deque",
	}, []string{"ctx"})

	stealTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ocr",
		Subsystem: "sched",
		Name:      "steal_total",
		Help:      "total EDTs pulled from a peer context's deque",
	}, []string{"ctx"})

	affRequestFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ocr",
		Subsystem: "sched",
		Name:      "aff_request_fail_total",
		Help:      "affinitized NOTIFY_EDT_READY placements whose hinted context did not exist, plus affinitized steal attempts that found the victim empty",
	}, []string{"ctx"})

	parkTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ocr",
		Subsystem: "sched",
		Name:      "park_total",
		Help:      "GET_WORK calls that found nothing anywhere and parked",
	}, []string{"ctx"})
)

// RegisterMetrics adds the scheduler's collectors to reg. Safe to call once
// per process; cmd/ocrd does this alongside the other components'
// RegisterMetrics calls (spec.md §4.9).
func RegisterMetrics(reg *prometheus.Registry) {
	reg.MustRegister(dequeDepth, stealTotal, affRequestFailTotal, parkTotal)
}
