//-------------------------------------------------------------------------
//
// pgEdge Star Schema ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package metrics records per-run gauges and pushes them to a Prometheus
// Pushgateway. A batch job does not live long enough to be scraped.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Namespace prefixes every metric.
const Namespace = "starschema"

// Stages label the step a table count or failure belongs to.
const (
	StageExtract   = "extract"
	StageTransform = "transform"
	StageFile      = "file"
	StageLoad      = "load"
)

// Run holds the gauges of one pipeline run.
type Run struct {
	registry *prometheus.Registry

	tableRows            *prometheus.GaugeVec
	tableFailures        *prometheus.GaugeVec
	duplicatesRemoved    *prometheus.GaugeVec
	internalDuplicates   *prometheus.GaugeVec
	secondaryContributed *prometheus.GaugeVec
	duration             prometheus.Gauge
	lastSuccess          prometheus.Gauge
}

// NewRun creates the gauges on a private registry.
func NewRun() *Run {
	r := &Run{registry: prometheus.NewRegistry()}

	r.tableRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "table_rows",
			Help:      "Rows handled per table and stage in the last run.",
		},
		[]string{"stage", "source", "table"},
	)
	r.tableFailures = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "table_failures",
			Help:      "Tables that failed per stage in the last run (1 = failed).",
		},
		[]string{"stage", "source", "table"},
	)
	r.duplicatesRemoved = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "consolidation_duplicates_removed",
			Help:      "Keys present in both sources per entity; the primary row is kept.",
		},
		[]string{"entity"},
	)
	r.internalDuplicates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "consolidation_internal_duplicates",
			Help:      "Rows discarded because their key repeats within one source, per entity.",
		},
		[]string{"entity"},
	)
	r.secondaryContributed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "consolidation_secondary_contributed",
			Help:      "Rows contributed by the secondary source per entity.",
		},
		[]string{"entity"},
	)
	r.duration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of the last run.",
		},
	)
	r.lastSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "run_last_success_timestamp_seconds",
			Help:      "Unix time of the last run that finished without table failures.",
		},
	)

	r.registry.MustRegister(
		r.tableRows,
		r.tableFailures,
		r.duplicatesRemoved,
		r.internalDuplicates,
		r.secondaryContributed,
		r.duration,
		r.lastSuccess,
	)
	return r
}

// Rows records the row count of a table at a stage. source is empty for
// output tables.
func (r *Run) Rows(stage, source, table string, n int) {
	r.tableRows.WithLabelValues(stage, source, table).Set(float64(n))
}

// Failure marks a table as failed at a stage.
func (r *Run) Failure(stage, source, table string) {
	r.tableFailures.WithLabelValues(stage, source, table).Set(1)
}

// Consolidated records dedup results for an entity: keys shared by both
// sources, keys repeated within a source, and secondary-only rows kept.
func (r *Run) Consolidated(entity string, duplicates, internal, secondaryContributed int) {
	r.duplicatesRemoved.WithLabelValues(entity).Set(float64(duplicates))
	r.internalDuplicates.WithLabelValues(entity).Set(float64(internal))
	r.secondaryContributed.WithLabelValues(entity).Set(float64(secondaryContributed))
}

// Finish records the run duration and, when ok, the success timestamp.
func (r *Run) Finish(elapsed time.Duration, ok bool) {
	r.duration.Set(elapsed.Seconds())
	if ok {
		r.lastSuccess.SetToCurrentTime()
	}
}

// Gatherer exposes the registry.
func (r *Run) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Push replaces the job's metric group on the Pushgateway at url.
func (r *Run) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
