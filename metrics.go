package onboardgate

import (
	"sync/atomic"
	"time"
)

// MetricID defines a public type used by onboardgate APIs.
//
// MetricID instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricID uint16

const (
	// MetricDecisionAllow counts navigations let through.
	MetricDecisionAllow MetricID = iota
	// MetricDecisionRedirect counts navigations redirected to any target.
	MetricDecisionRedirect
	// MetricRedirectSignIn counts redirects to sign-in.
	MetricRedirectSignIn
	// MetricRedirectVerify counts redirects to phone verification.
	MetricRedirectVerify
	// MetricRedirectProfileCreate counts redirects to profile creation.
	MetricRedirectProfileCreate
	// MetricRedirectLanding counts onboarded users sent away from profile creation.
	MetricRedirectLanding
	// MetricFailOpen counts navigations allowed because a lookup failed.
	MetricFailOpen
	// MetricLookupFailure counts failed existence lookups.
	MetricLookupFailure
	// MetricLookupTimeout counts existence lookups that ran out of time.
	MetricLookupTimeout
	// MetricMalformedResponse counts backend answers read as "record absent".
	MetricMalformedResponse
	// MetricSessionBackendError counts requests whose session could not be resolved.
	MetricSessionBackendError
	// MetricCacheHit counts lookups answered by the existence cache.
	MetricCacheHit
	// MetricCacheMiss counts lookups that went to the backend.
	MetricCacheMiss
	// MetricCacheError counts existence cache failures.
	MetricCacheError
	// MetricRecordCreated counts records written.
	MetricRecordCreated
	// MetricRecordDuplicate counts creations refused because the record exists.
	MetricRecordDuplicate
	// MetricRecordInvalid counts creations refused by payload validation.
	MetricRecordInvalid
	// MetricRecordRateLimited counts creations refused by the rate limiter.
	MetricRecordRateLimited
	// MetricLookupLatency is the existence lookup latency histogram.
	MetricLookupLatency
	// MetricEvaluateLatency is the end-to-end decision latency histogram.
	MetricEvaluateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters and latency histograms.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot defines a public type used by onboardgate APIs.
//
// MetricsSnapshot instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns metrics configured by cfg. A disabled Metrics ignores
// every update.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled describes the enabled operation and its observable behavior.
//
// Enabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled describes the latencyenabled operation and its observable behavior.
//
// LatencyEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc describes the inc operation and its observable behavior.
//
// Inc does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram id. Counter IDs are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || !isHistogram(id) {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value describes the value operation and its observable behavior.
//
// Value does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter, and every histogram when latency
// histograms are enabled. A disabled Metrics yields empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 2),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if isHistogram(id) {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for _, id := range []MetricID{MetricLookupLatency, MetricEvaluateLatency} {
			buckets := make([]uint64, histBucketCount)
			for i := 0; i < histBucketCount; i++ {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
		}
	}

	return s
}

func isHistogram(id MetricID) bool {
	return id == MetricLookupLatency || id == MetricEvaluateLatency
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
