package hedging

import (
	"fmt"
	"sort"
	"time"
)

// TimingPolicy computes the ordered delays, measured from dispatch start, at
// which hedge attempts fire for an endpoint. Implementations must be safe for
// concurrent use; the dispatcher calls Delays once per dispatch without
// additional locking.
type TimingPolicy interface {
	Delays(endpoint string) []time.Duration
}

// AdaptiveSLO replaces a policy's static target SLO with the observed
// percentile latency of the endpoint whenever the tracker has enough samples,
// falling back to the configured target otherwise. It is orthogonal to the
// policy variant: both fixed-fraction and percentile-ladder policies accept it.
type AdaptiveSLO struct {
	Tracker    *LatencyTracker
	Percentile float64
}

func (a *AdaptiveSLO) effectiveSLO(endpoint string, target time.Duration) time.Duration {
	if a == nil || a.Tracker == nil {
		return target
	}
	return a.Tracker.PercentileOr(endpoint, a.Percentile, target)
}

// FixedPolicy fires MaxHedges hedges at integer multiples of a single base
// delay, TargetSLO × HedgeAt. With MaxHedges=1 this is the classic "hedge at
// a fraction of the SLO" scheme.
type FixedPolicy struct {
	targetSLO time.Duration
	hedgeAt   float64
	maxHedges int
	adaptive  *AdaptiveSLO
}

// NewFixedPolicy creates a fixed-fraction timing policy. targetSLO must be
// positive, hedgeAt strictly between 0 and 1, and maxHedges at least 1;
// violations fail with ErrInvalidConfig before any request is dispatched.
func NewFixedPolicy(targetSLO time.Duration, hedgeAt float64, maxHedges int) (*FixedPolicy, error) {
	if targetSLO <= 0 {
		return nil, fmt.Errorf("%w: target SLO must be positive, got %v", ErrInvalidConfig, targetSLO)
	}
	if hedgeAt <= 0 || hedgeAt >= 1 {
		return nil, fmt.Errorf("%w: hedge fraction must be in (0,1), got %v", ErrInvalidConfig, hedgeAt)
	}
	if maxHedges < 1 {
		return nil, fmt.Errorf("%w: max hedges must be at least 1, got %d", ErrInvalidConfig, maxHedges)
	}
	return &FixedPolicy{
		targetSLO: targetSLO,
		hedgeAt:   hedgeAt,
		maxHedges: maxHedges,
	}, nil
}

// Adapt attaches an adaptive SLO overlay to the policy and returns it.
// percentile must be strictly between 0 and 1.
func (p *FixedPolicy) Adapt(tracker *LatencyTracker, percentile float64) (*FixedPolicy, error) {
	if percentile <= 0 || percentile >= 1 {
		return nil, fmt.Errorf("%w: adaptive percentile must be in (0,1), got %v", ErrInvalidConfig, percentile)
	}
	p.adaptive = &AdaptiveSLO{Tracker: tracker, Percentile: percentile}
	return p, nil
}

// Delays implements TimingPolicy.
func (p *FixedPolicy) Delays(endpoint string) []time.Duration {
	slo := p.adaptive.effectiveSLO(endpoint, p.targetSLO)
	base := time.Duration(float64(slo) * p.hedgeAt)

	delays := make([]time.Duration, p.maxHedges)
	for i := range delays {
		delays[i] = base * time.Duration(i+1)
	}
	return delays
}

// PercentilePolicy fires one hedge per configured point, with each delay a
// fraction of the SLO. Points are sorted ascending at construction so the
// hedges fire in order, e.g. points {0.5, 0.75, 0.95} of a 1s SLO fire at
// 500ms, 750ms and 950ms.
type PercentilePolicy struct {
	targetSLO time.Duration
	points    []float64
	adaptive  *AdaptiveSLO
}

// NewPercentilePolicy creates a multi-point timing policy. targetSLO must be
// positive, points non-empty and each strictly between 0 and 1; violations
// fail with ErrInvalidConfig before any request is dispatched.
func NewPercentilePolicy(targetSLO time.Duration, points []float64) (*PercentilePolicy, error) {
	if targetSLO <= 0 {
		return nil, fmt.Errorf("%w: target SLO must be positive, got %v", ErrInvalidConfig, targetSLO)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: at least one hedge point is required", ErrInvalidConfig)
	}
	for _, point := range points {
		if point <= 0 || point >= 1 {
			return nil, fmt.Errorf("%w: hedge points must be in (0,1), got %v", ErrInvalidConfig, point)
		}
	}

	sorted := make([]float64, len(points))
	copy(sorted, points)
	sort.Float64s(sorted)

	return &PercentilePolicy{
		targetSLO: targetSLO,
		points:    sorted,
	}, nil
}

// Adapt attaches an adaptive SLO overlay to the policy and returns it.
// percentile must be strictly between 0 and 1.
func (p *PercentilePolicy) Adapt(tracker *LatencyTracker, percentile float64) (*PercentilePolicy, error) {
	if percentile <= 0 || percentile >= 1 {
		return nil, fmt.Errorf("%w: adaptive percentile must be in (0,1), got %v", ErrInvalidConfig, percentile)
	}
	p.adaptive = &AdaptiveSLO{Tracker: tracker, Percentile: percentile}
	return p, nil
}

// Delays implements TimingPolicy.
func (p *PercentilePolicy) Delays(endpoint string) []time.Duration {
	slo := p.adaptive.effectiveSLO(endpoint, p.targetSLO)

	delays := make([]time.Duration, len(p.points))
	for i, point := range p.points {
		delays[i] = time.Duration(float64(slo) * point)
	}
	return delays
}

// tracker returns the adaptive tracker attached to the policy, if any. The
// dispatcher records winning latencies into it.
func (p *FixedPolicy) tracker() *LatencyTracker {
	if p.adaptive == nil {
		return nil
	}
	return p.adaptive.Tracker
}

func (p *PercentilePolicy) tracker() *LatencyTracker {
	if p.adaptive == nil {
		return nil
	}
	return p.adaptive.Tracker
}
