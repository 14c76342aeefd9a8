// Package prometheus renders onboardgate metrics in Prometheus text exposition
// format.
//
// [NewPrometheusExporter] reads [onboardgate.Gate.MetricsSnapshot] on every
// scrape. Counter names are prefixed onboardgate_ and end in _total. The two
// histograms are onboardgate_lookup_latency_seconds and
// onboardgate_evaluate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate gate state.
package prometheus
