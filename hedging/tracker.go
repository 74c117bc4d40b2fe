package hedging

import (
	"sort"
	"sync"
	"time"
)

// Default sizing for the latency tracker.
const (
	// DefaultWindowSize is the number of samples kept per endpoint.
	DefaultWindowSize = 100

	// DefaultMinSamples is the number of samples required before percentile
	// estimates are trusted. Below this threshold queries fall back to the
	// caller-supplied default so sparse data cannot skew hedge timing.
	DefaultMinSamples = 10
)

// LatencyTracker maintains a bounded sliding window of observed latencies per
// endpoint and computes percentiles on demand. It is the only state shared
// across concurrent dispatches and is safe for concurrent use; a percentile
// query observes an atomic snapshot of the window.
//
// Inject one tracker per client (or share one across clients hitting the same
// backends) rather than reaching for ambient global state, so lifecycle and
// clearing stay explicit and testable.
type LatencyTracker struct {
	mu         sync.RWMutex
	endpoints  map[string]*latencyWindow
	windowSize int
	minSamples int
}

// latencyWindow is a circular buffer of latency samples. head points at the
// slot the next sample will overwrite, which is also the oldest entry once
// the buffer has wrapped.
type latencyWindow struct {
	samples []time.Duration
	head    int
	count   int
}

// NewLatencyTracker creates a tracker keeping windowSize samples per endpoint
// and requiring minSamples before percentile estimates are produced.
// Non-positive arguments fall back to the package defaults.
func NewLatencyTracker(windowSize, minSamples int) *LatencyTracker {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	return &LatencyTracker{
		endpoints:  make(map[string]*latencyWindow),
		windowSize: windowSize,
		minSamples: minSamples,
	}
}

// Record appends a latency sample for the endpoint, evicting the oldest
// sample once the window is full. Negative latencies are clamped to zero.
func (t *LatencyTracker) Record(endpoint string, latency time.Duration) {
	if latency < 0 {
		latency = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	window, ok := t.endpoints[endpoint]
	if !ok {
		window = &latencyWindow{
			samples: make([]time.Duration, t.windowSize),
		}
		t.endpoints[endpoint] = window
	}

	window.samples[window.head] = latency
	window.head = (window.head + 1) % t.windowSize
	if window.count < t.windowSize {
		window.count++
	}
}

// Percentile returns the latency at percentile p (0-1) for the endpoint.
// It returns false when the endpoint is unknown or has fewer than the
// minimum number of samples.
func (t *LatencyTracker) Percentile(endpoint string, p float64) (time.Duration, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	window, ok := t.endpoints[endpoint]
	if !ok || window.count < t.minSamples {
		return 0, false
	}

	// Copy before sorting so the stored recency order is untouched.
	samples := make([]time.Duration, window.count)
	copy(samples, window.samples[:window.count])
	sort.Slice(samples, func(i, j int) bool {
		return samples[i] < samples[j]
	})

	idx := int(float64(len(samples)-1) * p)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(samples) {
		idx = len(samples) - 1
	}

	return samples[idx], true
}

// PercentileOr returns the latency at percentile p for the endpoint, or
// fallback unchanged when fewer than the minimum sample count has been
// recorded. This is the form the adaptive timing policy uses to degrade
// gracefully to the configured target SLO under sparse data.
func (t *LatencyTracker) PercentileOr(endpoint string, p float64, fallback time.Duration) time.Duration {
	if d, ok := t.Percentile(endpoint, p); ok {
		return d
	}
	return fallback
}

// Count returns the number of samples currently held for the endpoint.
func (t *LatencyTracker) Count(endpoint string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	window, ok := t.endpoints[endpoint]
	if !ok {
		return 0
	}
	return window.count
}

// Samples returns a copy of the endpoint's window in recency order, oldest
// first. It returns nil for an unknown endpoint.
func (t *LatencyTracker) Samples(endpoint string) []time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	window, ok := t.endpoints[endpoint]
	if !ok {
		return nil
	}

	out := make([]time.Duration, 0, window.count)
	if window.count < len(window.samples) {
		out = append(out, window.samples[:window.count]...)
		return out
	}
	out = append(out, window.samples[window.head:]...)
	out = append(out, window.samples[:window.head]...)
	return out
}

// Clear drops history for the given endpoints, or for all endpoints when none
// are given. Long-lived adaptive deployments can use this to bound key growth.
func (t *LatencyTracker) Clear(endpoints ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(endpoints) == 0 {
		t.endpoints = make(map[string]*latencyWindow)
		return
	}
	for _, endpoint := range endpoints {
		delete(t.endpoints, endpoint)
	}
}
