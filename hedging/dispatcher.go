package hedging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Compile-time interface check.
var _ http.RoundTripper = (*Dispatcher)(nil)

// Dispatcher is the hedging orchestration core. It implements
// http.RoundTripper: every RoundTrip races the original attempt against
// delayed duplicates according to the timing policy, returns the first
// successful result and cancels the rest.
//
// Guarantees per dispatch:
//   - Attempt 0 starts immediately; hedge i starts no earlier than its
//     scheduled delay (measured from dispatch start) and never starts at all
//     once the race is decided.
//   - Exactly one attempt produces the returned outcome.
//   - Every losing attempt is cancelled and its cancellation acknowledged
//     before RoundTrip returns; no attempt outlives the call. The winning
//     attempt's context stays alive until the response body is closed.
//   - An attempt failing fast does not accelerate or cancel pending hedges:
//     hedging reacts to latency, not to failure.
type Dispatcher struct {
	next        http.RoundTripper
	policy      TimingPolicy
	tracker     *LatencyTracker
	budget      *hedgeBudget
	attribution Attribution

	tracer  trace.Tracer
	metrics *metrics
	attrs   []attribute.KeyValue
	debug   bool
}

// DispatcherOption configures a standalone Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatchTracker sets the latency tracker winning latencies are recorded
// into. When the timing policy carries an adaptive overlay, its tracker is
// used by default.
func WithDispatchTracker(t *LatencyTracker) DispatcherOption {
	return func(d *Dispatcher) {
		d.tracker = t
	}
}

// WithDispatchBudget caps the rate of hedge attempts.
func WithDispatchBudget(cfg BudgetConfig) DispatcherOption {
	return func(d *Dispatcher) {
		d.budget = newHedgeBudget(cfg)
	}
}

// WithDispatchAttribution selects which latency is fed back to the tracker.
func WithDispatchAttribution(a Attribution) DispatcherOption {
	return func(d *Dispatcher) {
		d.attribution = a
	}
}

// WithDispatchDebug enables zerolog debug output for each dispatch.
func WithDispatchDebug() DispatcherOption {
	return func(d *Dispatcher) {
		d.debug = true
	}
}

// trackedPolicy is implemented by policies carrying an adaptive overlay.
type trackedPolicy interface {
	tracker() *LatencyTracker
}

// NewDispatcher creates a hedging round tripper over next. A nil next falls
// back to http.DefaultTransport. The policy must come from one of the policy
// constructors, so it is already validated.
func NewDispatcher(next http.RoundTripper, policy TimingPolicy, opts ...DispatcherOption) *Dispatcher {
	if next == nil {
		next = http.DefaultTransport
	}

	d := &Dispatcher{
		next:   next,
		policy: policy,
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.tracker == nil {
		if tp, ok := policy.(trackedPolicy); ok {
			d.tracker = tp.tracker()
		}
	}
	if d.tracer == nil {
		d.tracer = otel.GetTracerProvider().Tracer(scope)
	}
	if d.metrics == nil {
		d.metrics, _ = newMetrics(otel.GetMeterProvider().Meter(scope))
	}

	return d
}

// attemptResult is the settlement of a single attempt.
type attemptResult struct {
	ordinal int
	resp    *http.Response
	err     error
	cancel  context.CancelFunc
	started time.Time
}

// raceState is the atomic gate between winner selection and attempt launch.
// An attempt registers its cancel func before touching the transport;
// registration fails once the race is decided, so a cancelled loser can never
// start a new network call after the winner is already selected.
type raceState struct {
	mu      sync.Mutex
	done    bool
	cancels map[int]context.CancelFunc
	doneCh  chan struct{}
}

func newRaceState() *raceState {
	return &raceState{
		cancels: make(map[int]context.CancelFunc),
		doneCh:  make(chan struct{}),
	}
}

func (s *raceState) register(ordinal int, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	s.cancels[ordinal] = cancel
	return true
}

// finish decides the race: every registered attempt except the winner is
// cancelled and sleeping hedge tasks are woken. winner -1 cancels everything.
func (s *raceState) finish(winner int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	close(s.doneCh)
	for ordinal, cancel := range s.cancels {
		if ordinal != winner {
			cancel()
		}
	}
}

// RoundTrip implements http.RoundTripper with hedged attempts.
func (d *Dispatcher) RoundTrip(req *http.Request) (*http.Response, error) {
	endpoint := EndpointKey(req)
	delays := d.policy.Delays(endpoint)

	ctx, span := d.tracer.Start(req.Context(), "HEDGE "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(d.attrs,
			attribute.String("http.request.method", req.Method),
			attribute.String("hedge.endpoint", endpoint),
			attribute.Int("hedge.max_hedges", len(delays)),
		)...),
	)
	defer span.End()
	req = req.WithContext(ctx)

	var dispatchID string
	if d.debug {
		dispatchID = uuid.NewString()
		debugLogger.Debug().
			Str("dispatch_id", dispatchID).
			Str("endpoint", endpoint).
			Int("hedges_scheduled", len(delays)).
			Msg("hedge dispatch start")
	}

	// Buffer the request body once so every attempt can replay it.
	var bodyBytes []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	start := time.Now()
	total := len(delays) + 1
	state := newRaceState()
	results := make(chan attemptResult, total)
	var wg sync.WaitGroup

	// Attempt 0: the original, fired immediately.
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.runAttempt(req, bodyBytes, 0, state, results, span)
	}()

	// Hedge attempts, each sleeping its own delay measured from dispatch
	// start. A sleeper woken by race completion or caller cancellation never
	// touches the transport.
	for i, delay := range delays {
		wg.Add(1)
		go func(ordinal int, delay time.Duration) {
			defer wg.Done()

			timer := time.NewTimer(delay)
			defer timer.Stop()

			select {
			case <-state.doneCh:
				return
			case <-req.Context().Done():
				results <- attemptResult{ordinal: ordinal, err: req.Context().Err()}
				return
			case <-timer.C:
			}

			if !d.budget.allow() {
				d.metrics.recordBudgetDenied(req.Context(), d.attrs)
				results <- attemptResult{ordinal: ordinal, err: ErrBudgetExhausted}
				return
			}

			d.runAttempt(req, bodyBytes, ordinal, state, results, span)
		}(i+1, delay)
	}

	var failures []error
	for received := 0; received < total; received++ {
		r := <-results

		var fault *InternalError
		if r.err != nil && errors.As(r.err, &fault) {
			state.finish(-1)
			wg.Wait()
			drainResults(results)
			span.RecordError(r.err)
			span.SetStatus(codes.Error, r.err.Error())
			return nil, r.err
		}

		if r.err == nil && r.resp != nil {
			return d.settleWinner(req, span, state, &wg, results, r, start, endpoint, dispatchID)
		}

		// Failed attempt: release its context and keep racing. Hedges
		// still sleeping fire at their scheduled delays regardless.
		if r.cancel != nil {
			r.cancel()
		}
		err := r.err
		if err == nil {
			err = errors.New("transport returned neither response nor error")
		}
		failures = append(failures, fmt.Errorf("attempt %d: %w", r.ordinal, err))
	}

	// Every scheduled attempt has failed.
	state.finish(-1)
	wg.Wait()
	drainResults(results)

	terr := &TransportError{
		Endpoint: endpoint,
		Attempts: total,
		Errs:     failures,
	}
	d.metrics.recordExhausted(ctx, d.attrs)
	d.metrics.recordDispatchDuration(ctx, time.Since(start), d.attrs)
	span.RecordError(terr)
	span.SetStatus(codes.Error, "all attempts failed")

	if d.debug {
		debugLogger.Debug().
			Str("dispatch_id", dispatchID).
			Str("endpoint", endpoint).
			Int("attempts", total).
			Dur("elapsed", time.Since(start)).
			Msg("hedge dispatch exhausted")
	}

	return nil, terr
}

// settleWinner tears the race down around the winning attempt: losers are
// cancelled and awaited, stragglers drained, and the winner's latency is
// recorded for adaptive learning.
func (d *Dispatcher) settleWinner(
	req *http.Request,
	span trace.Span,
	state *raceState,
	wg *sync.WaitGroup,
	results chan attemptResult,
	winner attemptResult,
	start time.Time,
	endpoint string,
	dispatchID string,
) (*http.Response, error) {
	state.finish(winner.ordinal)
	wg.Wait()
	drainResults(results)

	raceDuration := time.Since(start)
	latency := raceDuration
	if d.attribution == AttributionAttempt {
		latency = time.Since(winner.started)
	}
	if d.tracker != nil {
		d.tracker.Record(endpoint, latency)
	}

	ctx := req.Context()
	d.metrics.recordWin(ctx, d.attrs, winner.ordinal)
	d.metrics.recordDispatchDuration(ctx, raceDuration, d.attrs)

	span.SetAttributes(attribute.Int("hedge.winner", winner.ordinal))
	if span.IsRecording() {
		span.AddEvent("hedge.win", trace.WithAttributes(
			attribute.Int("hedge.ordinal", winner.ordinal),
			attribute.Int64("hedge.race_duration_ms", raceDuration.Milliseconds()),
		))
	}

	if d.debug {
		debugLogger.Debug().
			Str("dispatch_id", dispatchID).
			Str("endpoint", endpoint).
			Int("winner", winner.ordinal).
			Dur("race_duration", raceDuration).
			Msg("hedge dispatch won")
	}

	// The winner keeps its context until the caller closes the body, so the
	// connection is not torn down under a streaming read.
	if winner.cancel != nil {
		if winner.resp.Body != nil {
			winner.resp.Body = &cancelOnCloseBody{
				ReadCloser: winner.resp.Body,
				cancel:     winner.cancel,
			}
		} else {
			winner.cancel()
		}
	}

	return winner.resp, nil
}

// runAttempt executes one attempt against the underlying transport. It is
// called from a goroutine tracked by the dispatch WaitGroup, so a result is
// always delivered (the channel is sized for every scheduled attempt) before
// the dispatch returns.
func (d *Dispatcher) runAttempt(
	req *http.Request,
	bodyBytes []byte,
	ordinal int,
	state *raceState,
	results chan<- attemptResult,
	span trace.Span,
) {
	defer func() {
		if rec := recover(); rec != nil {
			results <- attemptResult{
				ordinal: ordinal,
				err:     &InternalError{Ordinal: ordinal, Cause: fmt.Errorf("panic: %v", rec)},
			}
		}
	}()

	attemptCtx, cancel := context.WithCancel(req.Context())
	if !state.register(ordinal, cancel) {
		// The race was decided while this hedge was firing.
		cancel()
		return
	}

	d.metrics.recordAttempt(req.Context(), d.attrs, ordinal)
	if ordinal > 0 && span.IsRecording() {
		span.AddEvent("hedge.fire", trace.WithAttributes(
			attribute.Int("hedge.ordinal", ordinal),
		))
	}

	started := time.Now()
	attempt := req.Clone(attemptCtx)
	if bodyBytes != nil {
		attempt.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		attempt.ContentLength = int64(len(bodyBytes))
	} else if req.GetBody != nil {
		if body, err := req.GetBody(); err == nil {
			attempt.Body = body
		}
	}

	resp, err := d.next.RoundTrip(attempt)

	results <- attemptResult{
		ordinal: ordinal,
		resp:    resp,
		err:     err,
		cancel:  cancel,
		started: started,
	}
}

// drainResults closes response bodies of attempts that settled after the race
// was decided. Their contexts were already cancelled by raceState.finish.
func drainResults(results chan attemptResult) {
	for len(results) > 0 {
		r := <-results
		if r.resp != nil && r.resp.Body != nil {
			r.resp.Body.Close()
		}
	}
}

// cancelOnCloseBody releases the winning attempt's context when the caller
// closes the response body.
type cancelOnCloseBody struct {
	io.ReadCloser
	cancel context.CancelFunc
	once   sync.Once
}

func (b *cancelOnCloseBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.cancel)
	return err
}
