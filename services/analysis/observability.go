// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level Prometheus metrics for the ask endpoint.
// Auto-registered via promauto so no explicit registry wiring is needed.
var (
	// askDuration measures end-to-end ask handling time, agent included.
	//
	// Labels:
	//   - outcome: "success", "failed", or "error"
	askDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "analysis",
			Subsystem: "ask",
			Name:      "duration_seconds",
			Help:      "End-to-end duration of ask requests in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	// asksTotal counts ask requests by outcome.
	//
	// Labels:
	//   - outcome: "success", "failed", or "error"
	asksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "analysis",
			Subsystem: "ask",
			Name:      "requests_total",
			Help:      "Total ask requests by outcome.",
		},
		[]string{"outcome"},
	)
)

// recordAskMetrics records one completed ask. The confidence score encodes
// the outcome: 0.85 success, 0.35 agent failure, 0.2 setup error.
func recordAskMetrics(duration time.Duration, confidence float64) {
	outcome := "success"
	switch {
	case confidence <= 0.2:
		outcome = "error"
	case confidence < 0.85:
		outcome = "failed"
	}
	askDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	asksTotal.WithLabelValues(outcome).Inc()
}
