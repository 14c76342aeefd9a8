// Package internal holds the private building blocks of onboardgate.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - bootstrap: config loading and process wiring for the onboardgate command
//   - flows: the pure decision function behind every gate entry point
//   - httpapi: chi router, JSON handlers and the upstream reverse proxy
//   - rate: Redis-backed fixed-window limiter for record creation
//   - routes: path normalization and route classification
//   - stores: Redis cache of positive record existence results
//
// # What this package must NOT do
//
//   - Export types that appear in the public onboardgate API.
//   - Be imported by any package outside the onboardgate module.
package internal
