package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DocumentsParsed tracks parsed documents per layout and outcome
	DocumentsParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statement_documents_parsed_total",
			Help: "Total number of statement documents parsed",
		},
		[]string{"format", "outcome"},
	)

	// TransactionsExtracted tracks drafts produced per layout
	TransactionsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statement_transactions_extracted_total",
			Help: "Total number of transaction drafts extracted",
		},
		[]string{"format"},
	)

	// ParseDuration tracks how long a document takes to parse
	ParseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "statement_parse_duration_seconds",
			Help:    "Statement parse duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"format"},
	)

	// DuplicatesDropped tracks drafts removed by deduplication
	DuplicatesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statement_duplicates_dropped_total",
			Help: "Total number of drafts dropped as duplicates",
		},
		[]string{"scope"}, // "pass" or "history"
	)

	// RowsSkipped tracks tabular rows that failed soft normalization
	RowsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statement_rows_skipped_total",
			Help: "Total number of tabular rows skipped during normalization",
		},
		[]string{"format"},
	)
)

// ObserveParse records one completed parse attempt.
func ObserveParse(format, outcome string, extracted int, start time.Time) {
	DocumentsParsed.WithLabelValues(format, outcome).Inc()
	if extracted > 0 {
		TransactionsExtracted.WithLabelValues(format).Add(float64(extracted))
	}
	ParseDuration.WithLabelValues(format).Observe(time.Since(start).Seconds())
}
