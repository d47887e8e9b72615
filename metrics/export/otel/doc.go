// Package otel registers goGuard engine counters as OpenTelemetry
// asynchronous instruments. Values are read from the engine snapshot inside
// a single meter callback.
package otel
