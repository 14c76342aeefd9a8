// Package middleware adapts an onboardgate.Gate to net/http.
//
// # Handlers
//
//   - [Gate] runs the gate on every navigation and answers redirects with
//     307 Temporary Redirect.
//   - [CheckHandler] serves the same decision as JSON for client-side checks.
//   - [RequireSession] rejects anonymous API calls with 401.
//
// The resolved session and the decision are stored in the request context
// and read back with [SessionFromContext] and [DecisionFromContext].
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Gate calls. Every decision is
// delegated to the Gate.
//
// # What this package must NOT do
//
//   - Parse or verify tokens directly.
//   - Access Redis or a record backend.
//   - Decide on navigations beyond what the Gate returned.
package middleware
