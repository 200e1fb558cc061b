// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exposes the Prometheus instrumentation surface for the
// fetch core: counters for the two open questions SPEC_FULL.md resolves
// (logging-sampler failures and stale-serving-info degradation), plus the
// usual request/latency counters for the HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LogSamplerFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetchcore_logsampler_failures_total",
		Help: "Logging sampler sink/codec failures, which never fail a fetch but are worth alerting on.",
	})

	ServingInfoStaleServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetchcore_servinginfo_stale_served_total",
		Help: "Requests served with a stale ServingInfo after a failed forced refresh.",
	})

	FetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetchcore_fetch_requests_total",
		Help: "Fetch requests by layer (groupby|join) and outcome (ok|failed).",
	}, []string{"layer", "outcome"})

	FetchDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fetchcore_fetch_duration_seconds",
		Help:    "Fetch call latency by layer.",
		Buckets: prometheus.DefBuckets,
	}, []string{"layer"})
)
