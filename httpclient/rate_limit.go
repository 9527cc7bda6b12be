package httpclient

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a hop is rejected by the rate limiter.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitConfig throttles a client's outgoing hops. Every hop counts,
// so a call that follows two redirects consumes three tokens.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate. Zero or less disables the
	// limiter.
	RequestsPerSecond float64

	// Burst is the number of hops allowed above the rate. Minimum 1.
	Burst int

	// PerHost gives every server address its own bucket instead of one
	// bucket shared by the whole client.
	PerHost bool

	// FailFast rejects a hop with ErrRateLimited instead of waiting for a
	// token.
	FailFast bool
}

// DefaultRateLimitConfig returns 100 hops per second with a burst of 10,
// shared across hosts, waiting for tokens.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             10,
	}
}

// RateLimiterStats is a snapshot of one token bucket.
type RateLimiterStats struct {
	Limit           float64
	Burst           int
	TokensAvailable float64
}

type rateLimitTransport struct {
	next http.RoundTripper
	cfg  RateLimitConfig

	shared *rate.Limiter

	mu    sync.Mutex
	hosts map[string]*rate.Limiter
}

func newRateLimitTransport(next http.RoundTripper, cfg RateLimitConfig) http.RoundTripper {
	if cfg.RequestsPerSecond <= 0 {
		return next
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	t := &rateLimitTransport{next: next, cfg: cfg}
	if cfg.PerHost {
		t.hosts = make(map[string]*rate.Limiter)
	} else {
		t.shared = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	return t
}

// RoundTrip implements http.RoundTripper.
func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	limiter := t.limiterFor(req.URL.Host)
	ctx := req.Context()

	if t.cfg.FailFast {
		if !limiter.Allow() {
			return nil, ErrRateLimited
		}
		return t.next.RoundTrip(req)
	}

	if err := limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		// Wait fails early when the deadline cannot be met.
		return nil, errors.Join(ErrRateLimited, err)
	}
	return t.next.RoundTrip(req)
}

// Unwrap returns the next transport in the chain.
func (t *rateLimitTransport) Unwrap() http.RoundTripper {
	return t.next
}

func (t *rateLimitTransport) limiterFor(host string) *rate.Limiter {
	if t.shared != nil {
		return t.shared
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.hosts[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(t.cfg.RequestsPerSecond), t.cfg.Burst)
		t.hosts[host] = l
	}
	return l
}

// stats returns the bucket for host, or the shared bucket.
func (t *rateLimitTransport) stats(host string) RateLimiterStats {
	l := t.limiterFor(host)
	return RateLimiterStats{
		Limit:           float64(l.Limit()),
		Burst:           l.Burst(),
		TokensAvailable: l.Tokens(),
	}
}
