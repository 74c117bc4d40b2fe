package hedging

import "net/http"

// EndpointKey derives the stable identity used to partition tracked latencies
// and adaptive timing decisions.
//
// The key is host + path. The HTTP method is deliberately excluded: hedge
// timing is a property of the route, not the verb, and splitting samples by
// method would starve the adaptive estimator. Query parameters are excluded
// for the same reason.
func EndpointKey(req *http.Request) string {
	if req == nil || req.URL == nil {
		return ""
	}
	host := req.URL.Host
	if host == "" {
		host = req.Host
	}
	return host + req.URL.Path
}
