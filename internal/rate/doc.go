// Package rate limits onboarding record creation per user with Redis
// fixed-window counters.
//
// # Window semantics
//
// INCR + EXPIRE on the first hit of a window. Keys are {prefix}:rc:{userID}, so
// phone and profile creates share one budget.
//
// # What this package must NOT do
//
//   - Decide what a limited request means. The Gate maps ErrRateLimited.
//   - Be imported outside the onboardgate module.
package rate
