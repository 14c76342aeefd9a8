// Package routes holds the static route policy of the gate: path
// normalization and classification of a path into passthrough, API, public,
// auth-exempt, terminal onboarding step, or gated.
//
// # What this package must NOT do
//
//   - Perform I/O or look at session state.
//   - Import onboardgate (no import cycles).
package routes
