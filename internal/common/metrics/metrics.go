// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PagesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activity_export_pages_fetched_total",
			Help: "Total number of activity pages fetched successfully",
		},
	)

	RecordsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_export_records_received_total",
			Help: "Total number of activity records received, by activity type",
		},
		[]string{"activity_type_id"},
	)

	RowsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activity_export_rows_written_total",
			Help: "Total number of rows written to the output sinks",
		},
	)

	RecordsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_export_records_dropped_total",
			Help: "Total number of records that produced no row, by reason",
		},
		[]string{"reason"},
	)

	CredentialRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activity_export_credential_refreshes_total",
			Help: "Total number of access token refreshes after expiry",
		},
	)

	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_export_upstream_errors_total",
			Help: "Total number of upstream API errors, by upstream code",
		},
		[]string{"code"},
	)

	PageFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "activity_export_page_fetch_duration_seconds",
			Help:    "Duration of activity page fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Drop reasons
const (
	ReasonUntrackedField  = "untracked_field"
	ReasonUnsupportedType = "unsupported_type"
)
