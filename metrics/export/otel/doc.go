// Package otel publishes onboardgate counters and histograms as OpenTelemetry
// observable instruments.
//
// [NewOTelExporter] registers an Int64ObservableCounter per counter and an
// Int64ObservableGauge per histogram bucket. A single callback reads
// [onboardgate.Gate.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate gate state.
package otel
