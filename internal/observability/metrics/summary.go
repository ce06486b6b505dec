package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

const (
	operationsFamily = "clinic_scheduling_operations_total"
	latencyFamily    = "clinic_scheduling_operation_latency_seconds"
	replaysFamily    = "clinic_scheduling_idempotent_replays_total"
)

// OperationStats summarizes one engine operation.
type OperationStats struct {
	Total    int64            `json:"total"`
	Outcomes map[string]int64 `json:"outcomes"`
	P95Ms    float64          `json:"p95_ms"`
}

// Summary is a JSON-friendly digest of the scheduling metrics, served to
// operators who do not run a Prometheus server.
type Summary struct {
	Operations map[string]OperationStats `json:"operations"`
	Replays    int64                     `json:"idempotent_replays"`
}

// Summarize reads the scheduling families from gatherer.
func Summarize(gatherer prometheus.Gatherer) (Summary, error) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	out := Summary{Operations: map[string]OperationStats{}}

	mfs, err := gatherer.Gather()
	if err != nil {
		return out, err
	}

	for _, mf := range mfs {
		if mf == nil {
			continue
		}
		switch mf.GetName() {
		case operationsFamily:
			for _, metric := range mf.Metric {
				if metric == nil || metric.GetCounter() == nil {
					continue
				}
				op := labelValue(metric, "operation")
				stats := out.Operations[op]
				if stats.Outcomes == nil {
					stats.Outcomes = map[string]int64{}
				}
				n := int64(metric.GetCounter().GetValue())
				stats.Total += n
				stats.Outcomes[labelValue(metric, "outcome")] += n
				out.Operations[op] = stats
			}
		case replaysFamily:
			for _, metric := range mf.Metric {
				if metric != nil && metric.GetCounter() != nil {
					out.Replays += int64(metric.GetCounter().GetValue())
				}
			}
		}
	}

	for _, mf := range mfs {
		if mf == nil || mf.GetName() != latencyFamily {
			continue
		}
		for _, metric := range mf.Metric {
			if metric == nil || metric.GetHistogram() == nil {
				continue
			}
			op := labelValue(metric, "operation")
			stats, ok := out.Operations[op]
			if !ok {
				continue
			}
			stats.P95Ms = histogramQuantile(0.95, metric.GetHistogram()) * 1000.0
			out.Operations[op] = stats
		}
	}
	return out, nil
}

// SummaryHandler serves Summarize as JSON.
func SummaryHandler(gatherer prometheus.Gatherer, logger *logging.Logger) http.HandlerFunc {
	if logger == nil {
		logger = logging.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := Summarize(gatherer)
		if err != nil {
			logger.Error("failed to gather scheduling metrics", "error", err)
			http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(summary)
	}
}

func labelValue(metric *dto.Metric, name string) string {
	for _, lp := range metric.Label {
		if lp != nil && lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// histogramQuantile interpolates linearly inside the bucket holding the
// q-th observation.
func histogramQuantile(q float64, h *dto.Histogram) float64 {
	total := h.GetSampleCount()
	if total == 0 || q <= 0 {
		return 0
	}

	buckets := make([]*dto.Bucket, 0, len(h.Bucket))
	for _, b := range h.Bucket {
		if b != nil {
			buckets = append(buckets, b)
		}
	}
	if len(buckets) == 0 {
		return 0
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].GetUpperBound() < buckets[j].GetUpperBound()
	})

	target := q * float64(total)
	var prevUpper, prevCum float64
	for _, b := range buckets {
		upper := b.GetUpperBound()
		cum := float64(b.GetCumulativeCount())
		if cum < target {
			prevUpper = upper
			prevCum = cum
			continue
		}
		bucketCount := cum - prevCum
		if bucketCount <= 0 || upper == prevUpper {
			return upper
		}
		if math.IsInf(upper, 1) {
			return prevUpper
		}
		fraction := math.Min(math.Max((target-prevCum)/bucketCount, 0), 1)
		return prevUpper + fraction*(upper-prevUpper)
	}
	// Observations above the last finite bucket.
	return buckets[len(buckets)-1].GetUpperBound()
}
