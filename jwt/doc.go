// Package jwt verifies Supabase access tokens and mints development tokens with the
// same claim shape. HS256 (the project JWT secret) and Ed25519 keys are supported.
package jwt
