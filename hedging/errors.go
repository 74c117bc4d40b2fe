package hedging

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is returned (wrapped) by constructors and Validate when a
// hedging configuration is rejected. It is never returned mid-dispatch.
var ErrInvalidConfig = errors.New("hedging: invalid configuration")

// ErrBudgetExhausted marks a hedge attempt that was skipped because the hedge
// budget had no tokens available when its timer fired. It appears among the
// attempt errors of a TransportError when every other attempt also failed.
var ErrBudgetExhausted = errors.New("hedging: hedge budget exhausted")

// TransportError is returned by a dispatch when every attempt (the original
// plus all hedges that were scheduled) failed. It aggregates the individual
// attempt errors so callers can diagnose a hedge-exhausted failure without
// knowing hedging is present.
type TransportError struct {
	// Endpoint is the endpoint key of the failed dispatch.
	Endpoint string

	// Attempts is the number of attempts that were scheduled for the
	// dispatch, including the original.
	Attempts int

	// Errs holds one error per attempt, tagged with the attempt ordinal
	// (0 = original), in the order the attempts settled.
	Errs []error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "hedging: all %d attempts failed for %s", e.Attempts, e.Endpoint)
	for _, err := range e.Errs {
		b.WriteString("; ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap exposes the per-attempt errors to errors.Is and errors.As.
func (e *TransportError) Unwrap() []error {
	return e.Errs
}

// Hedged reports whether the dispatch had hedge attempts scheduled, i.e.
// whether this is a hedge-exhausted failure rather than a plain
// single-attempt failure.
func (e *TransportError) Hedged() bool {
	return e.Attempts > 1
}

// InternalError is returned when the race orchestration itself faults, such
// as a panic inside an attempt goroutine. It is surfaced immediately after
// all outstanding attempts have been cancelled and is never retried.
type InternalError struct {
	// Ordinal is the attempt in which the fault occurred (0 = original).
	Ordinal int

	// Cause is the recovered fault.
	Cause error
}

// Error implements the error interface.
func (e *InternalError) Error() string {
	return fmt.Sprintf("hedging: internal fault in attempt %d: %v", e.Ordinal, e.Cause)
}

// Unwrap returns the underlying fault.
func (e *InternalError) Unwrap() error {
	return e.Cause
}
