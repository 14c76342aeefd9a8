// Package session resolves the signed-in identity of an HTTP request.
//
// # Token sources
//
// The Supabase access token is read from, in order: the Authorization bearer
// header, a plain access-token cookie, and the auth-helpers cookie
// sb-<ref>-auth-token (JSON array or object, optionally base64- prefixed and
// possibly split into .0/.1 chunks).
//
// # Architecture boundaries
//
// This package owns the [Resolver] and the Redis-backed [RevocationStore]. It
// verifies tokens through the jwt package and does NOT look at onboarding
// records or decide redirects. Those belong to the Gate.
//
// # What this package must NOT do
//
//   - Import onboardgate (no upward imports).
//   - Treat an unreadable or invalid token as an error. It is simply no session.
//   - Store tokens or secrets in Redis. Only session ids and user ids are keyed.
package session
