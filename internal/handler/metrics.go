package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/tollgate/tollgate/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeLabeled(w, "tollgate_metered_requests_total", "outcome", snap.MeteredRequests)
	writeMetric(w, "tollgate_upstream_duration_seconds_count %d\n", snap.UpstreamDurationCount)
	writeMetric(w, "tollgate_upstream_duration_seconds_sum %.6f\n", float64(snap.UpstreamDurationTotalNs)/1e9)
	writeMetric(w, "tollgate_tokens_debited_total %d\n", snap.TokensDebited)
	writeMetric(w, "tollgate_debit_shortfalls_total %d\n", snap.DebitShortfalls)
	writeMetric(w, "tollgate_usage_record_failures_total %d\n", snap.UsageRecordFailures)
	writeLabeled(w, "tollgate_billing_events_total", "outcome", snap.BillingEvents)
}

// writeLabeled writes one sample per label value, sorted for stable output.
func writeLabeled(w http.ResponseWriter, name, label string, values map[string]uint64) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeMetric(w, "%s{%s=%q} %d\n", name, label, k, values[k])
	}
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
