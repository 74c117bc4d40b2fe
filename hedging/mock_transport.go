package hedging

import (
	"bytes"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// MockTransport is a configurable http.RoundTripper for testing hedged
// dispatches. Beyond stubbing responses it supports per-call latency
// scripts, so a test can make the original attempt slow and the hedge fast,
// and it tracks outstanding calls, so a test can assert that no attempt
// outlives its dispatch.
//
// Latencies are context-aware: a scripted delay is interrupted when the
// attempt is cancelled, and the call then returns the context error, which
// mirrors how a real transport reacts to cancellation mid-flight.
type MockTransport struct {
	mu            sync.Mutex
	calls         int
	latencies     []time.Duration
	errScript     []error
	defaultStatus int
	defaultBody   []byte
	defaultErr    error
	requests      []*http.Request

	outstanding atomic.Int32
	started     atomic.Int32
	cancelled   atomic.Int32
}

// NewMockTransport creates a MockTransport answering 200 OK with an empty
// body until stubbed otherwise.
func NewMockTransport() *MockTransport {
	return &MockTransport{defaultStatus: http.StatusOK}
}

// StubResponse stubs all calls to return the given response.
func (m *MockTransport) StubResponse(statusCode int, body string) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultStatus = statusCode
	m.defaultBody = []byte(body)
	m.defaultErr = nil
	return m
}

// StubError stubs all calls to return the given error.
func (m *MockTransport) StubError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultErr = err
	return m
}

// ScriptErrors sets per-call outcomes: call i fails with errs[i] when
// non-nil and answers the stubbed response otherwise. Calls beyond the
// script fall back to the default stub.
func (m *MockTransport) ScriptErrors(errs ...error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errScript = errs
	return m
}

// ScriptLatencies sets per-call latencies: call i sleeps latencies[i] before
// answering. Calls beyond the script answer immediately. With a hedged
// dispatch, call order is attempt firing order, so ScriptLatencies(slow,
// fast) makes the original slow and the first hedge fast.
func (m *MockTransport) ScriptLatencies(latencies ...time.Duration) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies = latencies
	return m
}

// RoundTrip implements http.RoundTripper.
func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.started.Add(1)
	m.outstanding.Add(1)
	defer m.outstanding.Add(-1)

	m.mu.Lock()
	call := m.calls
	m.calls++
	m.requests = append(m.requests, req)

	var delay time.Duration
	if call < len(m.latencies) {
		delay = m.latencies[call]
	}
	var scripted error
	if call < len(m.errScript) {
		scripted = m.errScript[call]
	}
	status := m.defaultStatus
	body := m.defaultBody
	err := m.defaultErr
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-req.Context().Done():
			m.cancelled.Add(1)
			return nil, req.Context().Err()
		case <-timer.C:
		}
	} else if req.Context().Err() != nil {
		m.cancelled.Add(1)
		return nil, req.Context().Err()
	}

	if scripted != nil {
		return nil, scripted
	}
	if err != nil {
		return nil, err
	}

	return &http.Response{
		Status:        http.StatusText(status),
		StatusCode:    status,
		Header:        make(http.Header),
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}, nil
}

// Started returns the number of calls that began.
func (m *MockTransport) Started() int {
	return int(m.started.Load())
}

// Outstanding returns the number of calls currently in flight. After a
// hedged dispatch returns this must be zero: no attempt may outlive the
// dispatch.
func (m *MockTransport) Outstanding() int {
	return int(m.outstanding.Load())
}

// Cancelled returns the number of calls that ended due to context
// cancellation.
func (m *MockTransport) Cancelled() int {
	return int(m.cancelled.Load())
}

// Requests returns all requests seen, in arrival order.
func (m *MockTransport) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request{}, m.requests...)
}

// Reset clears recorded calls and scripts, keeping the default stub.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = 0
	m.latencies = nil
	m.errScript = nil
	m.requests = nil
	m.started.Store(0)
	m.cancelled.Store(0)
}
