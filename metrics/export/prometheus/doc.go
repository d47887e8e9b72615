// Package prometheus exposes goGuard engine counters through
// prometheus/client_golang. [Collector] reads an engine snapshot on every
// scrape, so nothing is double counted and no state lives here.
//
// Callers either register the Collector with their own registry or mount
// [Collector.Handler], which uses a private registry.
package prometheus
