// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics exposes optional Prometheus instrumentation for a run.
//
// The endpoint is disabled by default and only served when the user passes
// --metrics-addr. Counters are registered unconditionally; incrementing
// them without a listener is free.
package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TfFilesParsed counts .tf files successfully parsed.
	TfFilesParsed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lppc_tf_files_parsed_total",
		Help: "Number of Terraform files parsed",
	})

	// BlocksCollected counts AWS blocks collected from parsed files.
	BlocksCollected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lppc_blocks_collected_total",
		Help: "Number of AWS resource/data/ephemeral/action blocks collected",
	})

	// MappingsLoaded counts YAML mapping files read from disk (cache misses).
	MappingsLoaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lppc_mappings_loaded_total",
		Help: "Number of mapping files loaded from the repository",
	})

	// GitOperations counts git subprocess invocations by operation.
	GitOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lppc_git_operations_total",
		Help: "Number of git subprocess invocations",
	}, []string{"operation"})
)

// Serve starts the metrics endpoint in the background. A failure to bind
// is logged and otherwise ignored; metrics are best-effort diagnostics.
func Serve(addr string, logger *slog.Logger) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		logger.Info("metrics.http.start", "addr", addr, "path", "/metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics.http.error", "err", err)
		}
	}()
}
