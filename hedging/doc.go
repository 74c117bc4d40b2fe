// Package hedging provides a client-side request-hedging engine for
// tail-latency reduction, with OpenTelemetry instrumentation.
//
// Hedging races an initial HTTP attempt against one or more delayed duplicate
// attempts, returns the first successful result, and cancels the rest. The
// technique comes from Google's "The Tail at Scale" paper: by spending a small
// amount of extra load, the 99th percentile latency of a latency-sensitive
// client can be bounded close to the median.
//
// # Features
//
//   - First-success-wins racing with cancellation of all losing attempts
//     before the call returns (no attempt outlives its dispatch)
//   - Fixed-fraction and multi-point percentile timing policies
//   - Adaptive SLO: hedge delays learned from a per-endpoint sliding window
//     of observed latencies instead of a static guess
//   - Hedge budget capping the global rate of duplicate attempts
//   - In-flight coalescing of identical dispatches
//   - OpenTelemetry tracing and metrics, zerolog debug logging
//
// # Quick Start
//
// Wrap the hedging transport in a client with a fixed timing policy:
//
//	client, err := hedging.New(
//	    hedging.WithBaseURL("https://api.example.com"),
//	    hedging.WithServiceName("search-client"),
//	    hedging.WithHedgeConfig(hedging.HedgeConfig{
//	        TargetSLO: 200 * time.Millisecond,
//	        HedgeAt:   0.75, // hedge at 150ms
//	        MaxHedges: 1,
//	    }),
//	)
//
//	resp, err := client.Get(ctx, "/search?q=go")
//
// # Adaptive Hedging
//
// With Adaptive enabled the effective SLO is the observed percentile latency
// of the endpoint, falling back to TargetSLO until enough samples exist:
//
//	client, err := hedging.New(
//	    hedging.WithHedgeConfig(hedging.HedgeConfig{
//	        TargetSLO:          2 * time.Second,
//	        HedgeAt:            0.9,
//	        MaxHedges:          1,
//	        Adaptive:           true,
//	        AdaptivePercentile: 0.95,
//	    }),
//	)
//
// Every winning dispatch feeds its latency back into the tracker, so hedge
// timing converges on the endpoint's real latency profile.
//
// # Multi-Point Hedging
//
// A percentile ladder fires several hedges at increasing fractions of the SLO:
//
//	cfg := hedging.HedgeConfig{
//	    TargetSLO:   400 * time.Millisecond,
//	    HedgePoints: []float64{0.25, 0.5, 0.75}, // hedges at 100/200/300ms
//	}
//
// # Transport Wrapping
//
// The dispatcher is a plain http.RoundTripper and can wrap any transport:
//
//	policy, _ := hedging.NewFixedPolicy(time.Second, 0.95, 1)
//	rt := hedging.NewDispatcher(http.DefaultTransport, policy)
//	httpClient := &http.Client{Transport: rt}
//
// IMPORTANT: hedged requests should only be used for idempotent operations.
// The underlying transport may be invoked more than once concurrently with an
// identical request; duplicate side effects are the caller's responsibility.
package hedging
