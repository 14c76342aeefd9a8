// Package onboardgate provides the onboarding redirect gate of the dating web
// client: auth, then phone verification, then profile creation, then the app.
//
// A [Gate] is built once through [Builder] and evaluated on every navigation,
// either directly with [Gate.Evaluate] or from an HTTP request with
// [Gate.Check]. The decision is a pure function of the route table, the
// session and two record existence lookups, so the edge middleware and the
// client-side JSON check always agree.
//
// # Architecture boundaries
//
// onboardgate is the public surface. It exposes [Gate], [Builder], [Config],
// the [RecordStore] and [SessionProvider] collaborator interfaces, and value
// types ([Decision], MetricsSnapshot). Rule evaluation, the route table, the
// Redis existence cache, the create rate limiter and audit dispatch live under
// internal/. Backend adapters live under backend/ and implement [RecordStore].
//
// # Failure semantics
//
// Evaluate fails open. A failed or timed-out lookup allows the navigation, sets
// [Decision].FailedOpen, logs the error and counts it. A backend answer that
// cannot be read ([ErrMalformedResponse]) means the record is absent.
//
// # What this package must NOT do
//
//   - Branch on backend identity.
//   - Retry lookups or take locks on the decision path.
//   - Mutate onboarding records outside [Gate.CreateRecord].
package onboardgate
