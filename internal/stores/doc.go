// Package stores provides the Redis-backed existence cache that sits in front
// of the record backends.
//
// # Design
//
// Only positive results are stored. Onboarding records are never deleted by any
// flow, so a cached "exists" stays true, while a missing entry always falls
// through to the backend and a just-created record is seen at once.
//
// # Architecture boundaries
//
// This package owns the cache keys and TTLs. It does NOT decide what a cache
// error means for a request; the Gate logs it and asks the backend.
//
// # What this package must NOT do
//
//   - Import onboardgate or any sibling internal package.
//   - Cache negative lookups.
package stores
