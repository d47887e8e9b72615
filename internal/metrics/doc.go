// Package metrics provides lock-free counters and latency histograms.
//
// Counters live in cache-line-padded uint64 slots and are incremented with
// sync/atomic. Histograms use [BucketCount] fixed buckets (≤5ms … +Inf).
// The write path does not allocate.
//
// The package only stores values. Names, help strings and export to
// Prometheus or OpenTelemetry belong to the root package and metrics/export.
package metrics
