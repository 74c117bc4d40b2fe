package hedging

import (
	"context"
	"net/http"
	"strings"
)

// Client is a hedging HTTP client. Its transport chain is
// coalesce (optional) → hedge dispatcher → base transport, so callers see
// either a normal successful response, indistinguishable from a non-hedged
// call, or a single aggregated TransportError.
//
// Create a Client with New():
//
//	client, err := hedging.New(
//	    hedging.WithBaseURL("https://api.example.com"),
//	    hedging.WithServiceName("search-client"),
//	    hedging.WithHedgeConfig(hedging.DefaultHedgeConfig()),
//	)
type Client struct {
	httpClient *http.Client
	dispatcher *Dispatcher
	tracker    *LatencyTracker
	baseURL    string
}

// New creates a hedging Client. It fails with an error wrapping
// ErrInvalidConfig when the hedge configuration is invalid; no request is
// ever dispatched with a bad policy.
func New(opts ...Option) (*Client, error) {
	cfg := newConfig(opts...)

	var transport http.RoundTripper
	if cfg.MockTransport != nil {
		transport = cfg.MockTransport
	} else {
		transport = cfg.buildTransport()
	}

	var (
		dispatcher *Dispatcher
		tracker    = cfg.Tracker
	)
	if cfg.HedgeConfig.Enabled() {
		policy, policyTracker, err := cfg.HedgeConfig.NewPolicy(cfg.Tracker)
		if err != nil {
			return nil, err
		}
		if tracker == nil {
			tracker = policyTracker
		}

		dispatcher = NewDispatcher(transport, policy,
			WithDispatchTracker(tracker),
			WithDispatchBudget(cfg.Budget),
			WithDispatchAttribution(cfg.Attribution),
		)
		dispatcher.tracer = cfg.Tracer
		dispatcher.metrics = cfg.Metrics
		dispatcher.attrs = cfg.baseAttributes()
		dispatcher.debug = cfg.Debug
		transport = dispatcher
	} else if err := cfg.HedgeConfig.Validate(); err != nil {
		return nil, err
	}

	if cfg.Coalesce {
		transport = newCoalesceTransport(transport)
	}

	httpClient := &http.Client{
		Transport: transport,
		Timeout:   cfg.httpConfig.Timeout,
	}

	return &Client{
		httpClient: httpClient,
		dispatcher: dispatcher,
		tracker:    tracker,
		baseURL:    cfg.BaseURL,
	}, nil
}

// NewTransport creates a hedging http.RoundTripper over base for use with a
// custom http.Client. A nil base falls back to http.DefaultTransport.
func NewTransport(base http.RoundTripper, cfg HedgeConfig, opts ...DispatcherOption) (http.RoundTripper, error) {
	if !cfg.Enabled() {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if base == nil {
			return http.DefaultTransport, nil
		}
		return base, nil
	}

	policy, tracker, err := cfg.NewPolicy(nil)
	if err != nil {
		return nil, err
	}

	all := make([]DispatcherOption, 0, len(opts)+1)
	all = append(all, WithDispatchTracker(tracker))
	all = append(all, opts...)
	return NewDispatcher(base, policy, all...), nil
}

// HTTP returns the underlying *http.Client for advanced use cases, such as
// passing it to libraries that expect one.
func (c *Client) HTTP() *http.Client {
	return c.httpClient
}

// Tracker returns the latency tracker feeding adaptive hedge timing, or nil
// when the client neither adapts nor was given a tracker. Use it to inspect
// learned latencies or to Clear endpoints in long-lived deployments.
func (c *Client) Tracker() *LatencyTracker {
	return c.tracker
}

// Do dispatches the request through the hedging transport chain.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// Get issues a hedged GET against the given URL, which may be relative to
// the configured base URL.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolveURL(url), nil)
	if err != nil {
		return nil, err
	}
	return c.httpClient.Do(req)
}

// Head issues a hedged HEAD against the given URL, which may be relative to
// the configured base URL.
func (c *Client) Head(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.resolveURL(url), nil)
	if err != nil {
		return nil, err
	}
	return c.httpClient.Do(req)
}

// resolveURL joins a relative path with the base URL. Absolute URLs pass
// through unchanged.
func (c *Client) resolveURL(url string) string {
	if c.baseURL == "" || strings.Contains(url, "://") {
		return url
	}
	return strings.TrimSuffix(c.baseURL, "/") + "/" + strings.TrimPrefix(url, "/")
}
