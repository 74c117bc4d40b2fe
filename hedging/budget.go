package hedging

import "golang.org/x/time/rate"

// BudgetConfig caps the global rate of hedge attempts a dispatcher may issue.
//
// Hedging trades extra load for bounded tail latency; under a latency storm
// every dispatch hedges and the duplicate traffic can make the storm worse.
// The budget is a token bucket spent only by hedge attempts (the original
// attempt of a dispatch always runs). A hedge whose timer fires while the
// bucket is empty is skipped and accounted as a failed attempt with
// ErrBudgetExhausted.
type BudgetConfig struct {
	// HedgesPerSecond is the maximum sustained rate of hedge attempts
	// across all dispatches sharing the dispatcher. Zero disables the
	// budget.
	HedgesPerSecond float64

	// Burst is the number of hedges allowed to fire back to back.
	//
	// Default: 1 when HedgesPerSecond is set
	Burst int
}

// Enabled returns true if the budget is configured.
func (c BudgetConfig) Enabled() bool {
	return c.HedgesPerSecond > 0
}

// hedgeBudget wraps a token bucket limiter. A nil budget allows everything.
type hedgeBudget struct {
	limiter *rate.Limiter
}

func newHedgeBudget(cfg BudgetConfig) *hedgeBudget {
	if !cfg.Enabled() {
		return nil
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &hedgeBudget{
		limiter: rate.NewLimiter(rate.Limit(cfg.HedgesPerSecond), burst),
	}
}

// allow reports whether one hedge attempt may fire now. It never waits: a
// hedge delayed by the budget would fire at the wrong point of the SLO, so
// denial skips the hedge outright.
func (b *hedgeBudget) allow() bool {
	if b == nil {
		return true
	}
	return b.limiter.Allow()
}
