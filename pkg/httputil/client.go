// Package httputil provides shared HTTP plumbing for the TrapLine gateway:
// a pooled transport, timeout-tiered clients for upstream calls, and safe
// response-body handling.
package httputil

import (
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// MaxResponseSize bounds how much of an upstream response body we read.
// The inference providers TrapLine talks to are external services; a
// misbehaving one must not be able to exhaust gateway memory.
const MaxResponseSize = 2 * 1024 * 1024 // 2MB, generous for any chat completion

// Shared transport with connection pooling, reused by every upstream client.
var sharedTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ForceAttemptHTTP2:     true,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
}

// TimeoutTier defines standard timeout categories for upstream operations.
type TimeoutTier int

const (
	// TierFast for health checks and warmup probes (5s)
	TierFast TimeoutTier = iota
	// TierOracle for inference calls on the request path (8s). A call that
	// outlives this tier is treated as a transport failure by the caller.
	TierOracle
	// TierSlow for off-request-path operations like pattern embedding (30s)
	TierSlow
)

var timeoutDurations = map[TimeoutTier]time.Duration{
	TierFast:   5 * time.Second,
	TierOracle: 8 * time.Second,
	TierSlow:   30 * time.Second,
}

var (
	clients    map[TimeoutTier]*http.Client
	clientOnce sync.Once
)

func initClients() {
	clients = make(map[TimeoutTier]*http.Client, len(timeoutDurations))
	for tier, d := range timeoutDurations {
		clients[tier] = &http.Client{Timeout: d, Transport: sharedTransport}
	}
}

// Client returns the shared HTTP client for the given timeout tier. These
// clients share one connection pool; use them instead of constructing an
// http.Client per request.
func Client(tier TimeoutTier) *http.Client {
	clientOnce.Do(initClients)
	if c, ok := clients[tier]; ok {
		return c
	}
	return clients[TierOracle]
}

// NewClient returns a client with a caller-chosen timeout on the shared
// transport, for callers whose deadline is configured rather than tiered.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: sharedTransport}
}

// ReadResponseBody reads an HTTP response body with a size limit.
func ReadResponseBody(r io.Reader, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = MaxResponseSize
	}
	return io.ReadAll(io.LimitReader(r, maxSize))
}

// DrainAndClose drains and closes a response body so the connection can
// return to the pool.
func DrainAndClose(body io.ReadCloser) {
	if body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(body, MaxResponseSize))
		_ = body.Close()
	}
}
