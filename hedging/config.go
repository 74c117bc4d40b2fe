package hedging

import (
	"fmt"
	"time"
)

// Attribution selects which latency a winning dispatch feeds back into the
// LatencyTracker for adaptive learning.
type Attribution int

const (
	// AttributionRace records the race duration: time from dispatch start to
	// the winner settling. This is what the caller actually experienced and
	// is the default.
	AttributionRace Attribution = iota

	// AttributionAttempt records the winning attempt's own duration, from
	// the moment that attempt started. Use this when the tracker should
	// estimate raw endpoint latency independent of hedge timing.
	AttributionAttempt
)

// HedgeConfig configures hedged requests for tail-latency reduction.
//
// Exactly one timing variant applies per config: when HedgePoints is set the
// dispatcher uses the multi-point percentile ladder, otherwise the
// fixed-fraction scheme (HedgeAt × TargetSLO, repeated MaxHedges times).
//
// IMPORTANT: hedged requests should only be used for idempotent operations.
// Non-idempotent operations (like a POST creating a resource) may produce
// duplicate side effects.
//
// Example usage:
//
//	client, err := hedging.New(
//	    hedging.WithHedgeConfig(hedging.HedgeConfig{
//	        TargetSLO: 200 * time.Millisecond,
//	        HedgeAt:   0.75, // hedge when 150ms have passed
//	        MaxHedges: 1,
//	    }),
//	)
//
// Best practices:
//   - Set TargetSLO to the latency objective of the call, not the mean
//   - Use MaxHedges of 1-2; each extra hedge buys less tail and costs a
//     duplicate request
//   - Enable Adaptive so timing follows the endpoint instead of the config
//   - Monitor the hedging.wins metric to tune HedgeAt
type HedgeConfig struct {
	// TargetSLO is the latency objective the hedge timing is derived from.
	// Must be positive.
	TargetSLO time.Duration

	// HedgeAt is the fraction of the SLO at which the first hedge fires,
	// strictly between 0 and 1. Subsequent hedges fire at integer multiples
	// of the same base delay. Ignored when HedgePoints is set.
	//
	// Default: 0.95
	HedgeAt float64

	// MaxHedges is the number of hedge attempts for the fixed-fraction
	// variant. With MaxHedges=1 at most two requests are in flight.
	// Ignored when HedgePoints is set.
	//
	// Default: 1
	MaxHedges int

	// HedgePoints selects the multi-point variant: one hedge per point, each
	// strictly between 0 and 1, fired at point × SLO. Points are sorted
	// ascending at construction.
	HedgePoints []float64

	// Adaptive replaces the static TargetSLO with the endpoint's observed
	// AdaptivePercentile latency once the tracker holds at least MinSamples
	// samples for that endpoint. Until then TargetSLO is used unchanged.
	Adaptive bool

	// AdaptivePercentile is the percentile used for the adaptive SLO (0-1).
	//
	// Default: 0.95
	AdaptivePercentile float64

	// WindowSize is the number of latency samples kept per endpoint when the
	// client owns its tracker.
	//
	// Default: 100
	WindowSize int

	// MinSamples is the sample count below which adaptive estimates are not
	// trusted and TargetSLO applies.
	//
	// Default: 10
	MinSamples int

	// Attribution selects the latency fed back to the tracker on a win.
	//
	// Default: AttributionRace
	Attribution Attribution
}

// DefaultHedgeConfig returns a balanced configuration: a single hedge at 95%
// of a one second SLO, adaptive timing at P95.
func DefaultHedgeConfig() HedgeConfig {
	return HedgeConfig{
		TargetSLO:          time.Second,
		HedgeAt:            0.95,
		MaxHedges:          1,
		Adaptive:           true,
		AdaptivePercentile: 0.95,
		WindowSize:         DefaultWindowSize,
		MinSamples:         DefaultMinSamples,
	}
}

// AggressiveHedgeConfig returns a configuration for critical read paths:
// three hedge points across the SLO for maximum tail reduction, at the price
// of up to three duplicate requests.
//
// Use only where the downstream can absorb the extra load.
func AggressiveHedgeConfig() HedgeConfig {
	return HedgeConfig{
		TargetSLO:          time.Second,
		HedgePoints:        []float64{0.5, 0.75, 0.95},
		Adaptive:           true,
		AdaptivePercentile: 0.95,
		WindowSize:         DefaultWindowSize,
		MinSamples:         DefaultMinSamples,
	}
}

// ConservativeHedgeConfig returns a configuration for expensive downstreams:
// a single late hedge, static timing, no adaptive learning.
func ConservativeHedgeConfig() HedgeConfig {
	return HedgeConfig{
		TargetSLO: time.Second,
		HedgeAt:   0.99,
		MaxHedges: 1,
	}
}

// Enabled returns true if the config describes at least one hedge attempt.
func (c HedgeConfig) Enabled() bool {
	if len(c.HedgePoints) > 0 {
		return c.TargetSLO > 0
	}
	return c.TargetSLO > 0 && c.HedgeAt > 0 && c.MaxHedges > 0
}

// Validate checks the configuration, wrapping ErrInvalidConfig on violation.
// A zero-value (disabled) config is valid.
func (c HedgeConfig) Validate() error {
	if !c.Enabled() {
		if c.TargetSLO < 0 {
			return fmt.Errorf("%w: target SLO must not be negative, got %v", ErrInvalidConfig, c.TargetSLO)
		}
		return nil
	}
	_, _, err := c.buildPolicy(nil)
	return err
}

// NewPolicy constructs the TimingPolicy the config describes. When Adaptive
// is set, tracker is attached as the adaptive overlay; pass nil to let the
// dispatcher own a fresh tracker sized by WindowSize/MinSamples.
func (c HedgeConfig) NewPolicy(tracker *LatencyTracker) (TimingPolicy, *LatencyTracker, error) {
	return c.buildPolicy(tracker)
}

func (c HedgeConfig) buildPolicy(tracker *LatencyTracker) (TimingPolicy, *LatencyTracker, error) {
	if c.Adaptive && tracker == nil {
		tracker = NewLatencyTracker(c.WindowSize, c.MinSamples)
	}

	percentile := c.AdaptivePercentile
	if c.Adaptive && percentile == 0 {
		percentile = 0.95
	}

	if len(c.HedgePoints) > 0 {
		policy, err := NewPercentilePolicy(c.TargetSLO, c.HedgePoints)
		if err != nil {
			return nil, nil, err
		}
		if c.Adaptive {
			if _, err := policy.Adapt(tracker, percentile); err != nil {
				return nil, nil, err
			}
		}
		return policy, tracker, nil
	}

	policy, err := NewFixedPolicy(c.TargetSLO, c.HedgeAt, c.MaxHedges)
	if err != nil {
		return nil, nil, err
	}
	if c.Adaptive {
		if _, err := policy.Adapt(tracker, percentile); err != nil {
			return nil, nil, err
		}
	}
	return policy, tracker, nil
}
