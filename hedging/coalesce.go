package hedging

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/sync/singleflight"
)

// CoalesceKey creates the deduplication key for a dispatch:
// SHA256(method + normalized URL + sorted query params + body hash).
//
// Unlike the endpoint key, coalescing does include the method and query
// string: only requests that are byte-for-byte the same logical call may
// share a response.
func CoalesceKey(method, rawURL string, body []byte) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return hashString(method + rawURL + string(body))
	}

	query := parsed.Query()
	sortedParams := make([]string, 0, len(query))
	for key, values := range query {
		sort.Strings(values)
		for _, v := range values {
			sortedParams = append(sortedParams, key+"="+v)
		}
	}
	sort.Strings(sortedParams)

	parts := []string{
		method,
		parsed.Scheme + "://" + parsed.Host + parsed.Path,
		strings.Join(sortedParams, "&"),
	}
	if len(body) > 0 {
		bodyHash := sha256.Sum256(body)
		parts = append(parts, hex.EncodeToString(bodyHash[:]))
	}

	return hashString(strings.Join(parts, "|"))
}

func hashString(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:])
}

// coalesceTransport deduplicates identical in-flight dispatches: while one
// hedged race for a given key is running, further callers with the same key
// wait for its outcome instead of starting races of their own. The shared
// response body is buffered so every caller gets an independent reader.
type coalesceTransport struct {
	next  http.RoundTripper
	group singleflight.Group
}

// newCoalesceTransport wraps next with in-flight request coalescing.
func newCoalesceTransport(next http.RoundTripper) http.RoundTripper {
	return &coalesceTransport{next: next}
}

// sharedResult is the buffered outcome of the coalesced round trip.
type sharedResult struct {
	resp *http.Response
	body []byte
}

// RoundTrip implements http.RoundTripper.
func (t *coalesceTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var bodyBytes []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	key := CoalesceKey(req.Method, req.URL.String(), bodyBytes)

	v, err, _ := t.group.Do(key, func() (any, error) {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}

		var respBody []byte
		if resp.Body != nil {
			respBody, err = io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, err
			}
		}
		return &sharedResult{resp: resp, body: respBody}, nil
	})
	if err != nil {
		return nil, err
	}

	shared := v.(*sharedResult)
	return cloneSharedResponse(shared), nil
}

// cloneSharedResponse gives each coalesced caller its own response with an
// independent body reader over the shared bytes.
func cloneSharedResponse(shared *sharedResult) *http.Response {
	resp := *shared.resp
	resp.Header = shared.resp.Header.Clone()
	resp.Body = io.NopCloser(bytes.NewReader(shared.body))
	resp.ContentLength = int64(len(shared.body))
	return &resp
}
