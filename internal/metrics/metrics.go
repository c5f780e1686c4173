// Package metrics provides Prometheus metrics for the retail ETL.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal tracks pipeline runs by trigger and final status
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retail_etl",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by trigger and status",
		},
		[]string{"trigger", "status"},
	)

	// RunDuration tracks whole-run duration in seconds
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retail_etl",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"status"},
	)

	// StageDuration tracks duration of individual pipeline stages
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retail_etl",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"stage", "status"},
	)

	// StageRows tracks the number of rows leaving each stage
	StageRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retail_etl",
			Subsystem: "pipeline",
			Name:      "stage_rows_total",
			Help:      "Total number of rows produced by each stage",
		},
		[]string{"stage"},
	)

	// RowsDropped tracks rows removed by each cleaning rule
	RowsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retail_etl",
			Subsystem: "clean",
			Name:      "rows_dropped_total",
			Help:      "Total number of rows dropped by cleaning rule",
		},
		[]string{"reason"},
	)

	// SinkBytes tracks bytes written per output table
	SinkBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retail_etl",
			Subsystem: "sink",
			Name:      "bytes_written_total",
			Help:      "Total number of Parquet bytes written per table",
		},
		[]string{"table"},
	)

	// QueueJobsProcessed tracks jobs processed from the queue
	QueueJobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retail_etl",
			Subsystem: "queue",
			Name:      "jobs_processed_total",
			Help:      "Total number of jobs processed from the queue",
		},
		[]string{"status"},
	)

	// QueueJobsInFlight tracks jobs currently being processed
	QueueJobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "retail_etl",
			Subsystem: "queue",
			Name:      "jobs_in_flight",
			Help:      "Number of jobs currently being processed",
		},
	)

	// HTTPRequestsTotal tracks API requests by method and status code
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retail_etl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of API requests",
		},
		[]string{"method", "status_code"},
	)
)
