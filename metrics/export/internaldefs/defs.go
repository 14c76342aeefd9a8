package internaldefs

import (
	"github.com/heartlink/onboardgate"
)

// CounterDef names one counter for the exporters.
type CounterDef struct {
	ID   onboardgate.MetricID
	Name string
	Help string
}

// HistogramDef names one latency histogram for the exporters.
type HistogramDef struct {
	ID   onboardgate.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: onboardgate.MetricDecisionAllow, Name: "onboardgate_decision_allow_total", Help: "Navigations allowed by the gate."},
	{ID: onboardgate.MetricDecisionRedirect, Name: "onboardgate_decision_redirect_total", Help: "Navigations redirected by the gate."},
	{ID: onboardgate.MetricRedirectSignIn, Name: "onboardgate_redirect_sign_in_total", Help: "Redirects to sign-in."},
	{ID: onboardgate.MetricRedirectVerify, Name: "onboardgate_redirect_verify_total", Help: "Redirects to phone verification."},
	{ID: onboardgate.MetricRedirectProfileCreate, Name: "onboardgate_redirect_profile_create_total", Help: "Redirects to profile creation."},
	{ID: onboardgate.MetricRedirectLanding, Name: "onboardgate_redirect_landing_total", Help: "Onboarded users redirected away from profile creation."},
	{ID: onboardgate.MetricFailOpen, Name: "onboardgate_fail_open_total", Help: "Navigations allowed because a check failed."},
	{ID: onboardgate.MetricLookupFailure, Name: "onboardgate_lookup_failure_total", Help: "Failed record existence lookups."},
	{ID: onboardgate.MetricLookupTimeout, Name: "onboardgate_lookup_timeout_total", Help: "Record existence lookups that timed out."},
	{ID: onboardgate.MetricMalformedResponse, Name: "onboardgate_malformed_response_total", Help: "Backend responses read as record absent."},
	{ID: onboardgate.MetricSessionBackendError, Name: "onboardgate_session_backend_error_total", Help: "Requests whose session could not be resolved."},
	{ID: onboardgate.MetricCacheHit, Name: "onboardgate_cache_hit_total", Help: "Existence lookups answered from the cache."},
	{ID: onboardgate.MetricCacheMiss, Name: "onboardgate_cache_miss_total", Help: "Existence lookups sent to the backend."},
	{ID: onboardgate.MetricCacheError, Name: "onboardgate_cache_error_total", Help: "Existence cache failures."},
	{ID: onboardgate.MetricRecordCreated, Name: "onboardgate_record_created_total", Help: "Onboarding records created."},
	{ID: onboardgate.MetricRecordDuplicate, Name: "onboardgate_record_duplicate_total", Help: "Record creations refused as duplicate."},
	{ID: onboardgate.MetricRecordInvalid, Name: "onboardgate_record_invalid_total", Help: "Record creations refused by validation."},
	{ID: onboardgate.MetricRecordRateLimited, Name: "onboardgate_record_rate_limited_total", Help: "Rate-limited record creations."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: onboardgate.MetricLookupLatency, Name: "onboardgate_lookup_latency_seconds", Help: "Record existence lookup latency histogram."},
	{ID: onboardgate.MetricEvaluateLatency, Name: "onboardgate_evaluate_latency_seconds", Help: "Gate decision latency histogram."},
}

// HistogramBounds are the upper bounds, in seconds, of the eight buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix renders HistogramBounds as instrument-name suffixes.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the eight snapshot buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form
// Prometheus expects.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
