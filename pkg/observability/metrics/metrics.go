package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
)

var (
	predictionsUpstream  atomic.Int64
	predictionsFallback  atomic.Int64
	predictionsFailed    atomic.Int64
	predictionsEmpty     atomic.Int64
	predictionsInvalid   atomic.Int64
	upstreamNetwork      atomic.Int64
	upstreamStatus       atomic.Int64
	upstreamMalformed    atomic.Int64
	registryWriteFailed  atomic.Int64
	registryEntries      atomic.Int64
	registrySessions     atomic.Int64
	searchesSuperseded   atomic.Int64
	freeTextScrubbed     atomic.Int64
	freeTextNoTerms      atomic.Int64
	auditRecordsWritten  atomic.Int64
	detailMergedMatches atomic.Int64
)

// Outcome labels for ObservePrediction.
const (
	OutcomeUpstream = "upstream"
	OutcomeFallback = "fallback"
	OutcomeFailed   = "failed"
	OutcomeEmpty    = "empty"
	OutcomeInvalid  = "invalid"
)

func ObservePrediction(outcome string) {
	switch outcome {
	case OutcomeUpstream:
		predictionsUpstream.Add(1)
	case OutcomeFallback:
		predictionsFallback.Add(1)
	case OutcomeFailed:
		predictionsFailed.Add(1)
	case OutcomeEmpty:
		predictionsEmpty.Add(1)
	case OutcomeInvalid:
		predictionsInvalid.Add(1)
	}
}

// ObserveUpstreamError counts failed upstream calls by error kind.
func ObserveUpstreamError(kind string) {
	switch kind {
	case "network":
		upstreamNetwork.Add(1)
	case "status":
		upstreamStatus.Add(1)
	case "malformed":
		upstreamMalformed.Add(1)
	}
}

func ObserveRegistryWriteFailure() { registryWriteFailed.Add(1) }

func ObserveRegistrySize(entries, sessions int) {
	registryEntries.Store(int64(entries))
	registrySessions.Store(int64(sessions))
}

func ObserveSearchSuperseded() { searchesSuperseded.Add(1) }

func ObserveFreeTextScrubbed() { freeTextScrubbed.Add(1) }

func ObserveNoTermsFound() { freeTextNoTerms.Add(1) }

func ObserveAuditRecord() { auditRecordsWritten.Add(1) }

func ObserveMergedMatches(n int) { detailMergedMatches.Add(int64(n)) }

// Reset zeroes every metric.
func Reset() {
	for _, v := range []*atomic.Int64{
		&predictionsUpstream, &predictionsFallback, &predictionsFailed, &predictionsEmpty, &predictionsInvalid,
		&upstreamNetwork, &upstreamStatus, &upstreamMalformed,
		&registryWriteFailed, &registryEntries, &registrySessions,
		&searchesSuperseded, &freeTextScrubbed, &freeTextNoTerms,
		&auditRecordsWritten, &detailMergedMatches,
	} {
		v.Store(0)
	}
}

func Handler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	WritePrometheus(w)
}

func WritePrometheus(w io.Writer) {
	fmt.Fprintf(w, "# HELP raredx_predictions_total Prediction submissions by outcome.\n")
	fmt.Fprintf(w, "# TYPE raredx_predictions_total counter\n")
	fmt.Fprintf(w, "raredx_predictions_total{outcome=%q} %d\n", OutcomeUpstream, predictionsUpstream.Load())
	fmt.Fprintf(w, "raredx_predictions_total{outcome=%q} %d\n", OutcomeFallback, predictionsFallback.Load())
	fmt.Fprintf(w, "raredx_predictions_total{outcome=%q} %d\n", OutcomeFailed, predictionsFailed.Load())
	fmt.Fprintf(w, "raredx_predictions_total{outcome=%q} %d\n", OutcomeEmpty, predictionsEmpty.Load())
	fmt.Fprintf(w, "raredx_predictions_total{outcome=%q} %d\n", OutcomeInvalid, predictionsInvalid.Load())

	fmt.Fprintf(w, "# HELP raredx_upstream_errors_total Failed upstream calls by error kind.\n")
	fmt.Fprintf(w, "# TYPE raredx_upstream_errors_total counter\n")
	fmt.Fprintf(w, "raredx_upstream_errors_total{kind=\"network\"} %d\n", upstreamNetwork.Load())
	fmt.Fprintf(w, "raredx_upstream_errors_total{kind=\"status\"} %d\n", upstreamStatus.Load())
	fmt.Fprintf(w, "raredx_upstream_errors_total{kind=\"malformed\"} %d\n", upstreamMalformed.Load())

	fmt.Fprintf(w, "# HELP raredx_registry_write_failures_total Match registry writes that failed.\n")
	fmt.Fprintf(w, "# TYPE raredx_registry_write_failures_total counter\n")
	fmt.Fprintf(w, "raredx_registry_write_failures_total %d\n", registryWriteFailed.Load())

	fmt.Fprintf(w, "# HELP raredx_registry_entries Match registry entries held in memory.\n")
	fmt.Fprintf(w, "# TYPE raredx_registry_entries gauge\n")
	fmt.Fprintf(w, "raredx_registry_entries %d\n", registryEntries.Load())

	fmt.Fprintf(w, "# HELP raredx_registry_sessions Prediction sessions held by the match registry.\n")
	fmt.Fprintf(w, "# TYPE raredx_registry_sessions gauge\n")
	fmt.Fprintf(w, "raredx_registry_sessions %d\n", registrySessions.Load())

	fmt.Fprintf(w, "# HELP raredx_searches_superseded_total Phenotype searches cancelled by a newer search.\n")
	fmt.Fprintf(w, "# TYPE raredx_searches_superseded_total counter\n")
	fmt.Fprintf(w, "raredx_searches_superseded_total %d\n", searchesSuperseded.Load())

	fmt.Fprintf(w, "# HELP raredx_free_text_scrubbed_total Free-text submissions that had identifiers masked.\n")
	fmt.Fprintf(w, "# TYPE raredx_free_text_scrubbed_total counter\n")
	fmt.Fprintf(w, "raredx_free_text_scrubbed_total %d\n", freeTextScrubbed.Load())

	fmt.Fprintf(w, "# HELP raredx_free_text_no_terms_total Free-text submissions that mapped to no phenotype.\n")
	fmt.Fprintf(w, "# TYPE raredx_free_text_no_terms_total counter\n")
	fmt.Fprintf(w, "raredx_free_text_no_terms_total %d\n", freeTextNoTerms.Load())

	fmt.Fprintf(w, "# HELP raredx_audit_records_total Prediction audit records written.\n")
	fmt.Fprintf(w, "# TYPE raredx_audit_records_total counter\n")
	fmt.Fprintf(w, "raredx_audit_records_total %d\n", auditRecordsWritten.Load())

	fmt.Fprintf(w, "# HELP raredx_detail_merged_matches_total Detail phenotypes flipped to matched by stored evidence.\n")
	fmt.Fprintf(w, "# TYPE raredx_detail_merged_matches_total counter\n")
	fmt.Fprintf(w, "raredx_detail_merged_matches_total %d\n", detailMergedMatches.Load())
}
