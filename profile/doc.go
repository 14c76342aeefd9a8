// Package profile decodes and validates the payloads of the two onboarding
// records: the verified phone number and the dating profile.
//
// Payloads arrive as loosely typed JSON objects. [DecodePhone] and
// [DecodeProfile] turn them into typed values, Validate checks the same rules
// the sign-up forms enforce, and Fields turns a valid value back into the
// document a backend stores.
package profile
