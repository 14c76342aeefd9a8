// Package flows contains the pure decision function shared by every gate
// entry point.
//
// [RunEvaluate] takes a classified path, the session facts it needs, and a
// dependency struct carrying the existence lookup. The edge middleware and
// the JSON check endpoint both end up here, so they cannot disagree.
//
// # Architecture boundaries
//
// Flow functions coordinate the record lookups, their timeouts and latency
// observation. They do NOT own the record store, the cache, metrics or
// logging. Ownership stays with the Gate.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import onboardgate (to avoid import cycles).
//   - Perform I/O directly. All I/O goes through EvaluateDeps.Exists.
package flows
