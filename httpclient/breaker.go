package httpclient

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
	gobreakerredis "github.com/sony/gobreaker/v2/redis"
)

// NewRedisStore returns a gobreaker store that shares breaker state
// between processes through Redis.
//
// Example:
//
//	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{"localhost:6379"}})
//	client := httpclient.New(
//	    httpclient.WithServiceName("ledger"),
//	    httpclient.WithBreaker(httpclient.DistributedBreakerConfig(httpclient.NewRedisStore(rdb))),
//	)
func NewRedisStore(client redis.UniversalClient) gobreaker.SharedDataStore {
	return gobreakerredis.NewStoreFromClient(client)
}

// BreakerClassifier reports whether a hop outcome counts as a failure.
type BreakerClassifier func(resp *http.Response, err error) bool

// BreakerConfig configures the client circuit breaker. The breaker sees
// every hop, so redirects count as individual requests.
type BreakerConfig struct {
	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests uint32

	// Interval clears the closed-state counts periodically. Zero never
	// clears them.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration

	// FailureThreshold is the minimum request count before the failure
	// ratio is considered.
	FailureThreshold uint32

	// FailureRatio trips the breaker when reached (0.0 - 1.0).
	FailureRatio float64

	// ConsecutiveFailures trips the breaker when reached. Zero disables
	// the rule.
	ConsecutiveFailures uint32

	// Store shares state between processes. Nil keeps the breaker local.
	Store gobreaker.SharedDataStore

	// Classifier decides which outcomes are failures.
	// Default: DefaultBreakerClassifier
	Classifier BreakerClassifier

	// OnStateChange is called on every state transition.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig returns a local breaker that opens after five
// consecutive failures, or at a 50% failure rate over at least 20 hops.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            10 * time.Second,
		Timeout:             10 * time.Second,
		FailureThreshold:    20,
		FailureRatio:        0.5,
		ConsecutiveFailures: 5,
		Classifier:          DefaultBreakerClassifier,
	}
}

// DistributedBreakerConfig returns DefaultBreakerConfig backed by store.
func DistributedBreakerConfig(store gobreaker.SharedDataStore) BreakerConfig {
	cfg := DefaultBreakerConfig()
	cfg.Store = store
	return cfg
}

// DefaultBreakerClassifier counts network errors and 5xx responses as
// failures. Redirects and 4xx responses are successes.
func DefaultBreakerClassifier(resp *http.Response, err error) bool {
	if err != nil {
		return isNetworkError(err)
	}
	return resp != nil && resp.StatusCode >= 500
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT)
}

// isBreakerRejection reports whether err is a breaker refusal rather
// than a hop failure.
func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// settings builds gobreaker settings named name.
func (bc BreakerConfig) settings(name string, m *metrics) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if bc.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= bc.ConsecutiveFailures {
				return true
			}
			if bc.FailureThreshold > 0 && counts.Requests < bc.FailureThreshold {
				return false
			}
			if bc.FailureRatio > 0 && counts.Requests > 0 {
				return float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureRatio
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.recordBreakerState(context.Background(), name, int64(to))
			if bc.OnStateChange != nil {
				bc.OnStateChange(name, from, to)
			}
		},
	}
}

// circuitBreaker runs one hop under a breaker.
type circuitBreaker interface {
	execute(ctx context.Context, fn func() (*http.Response, error)) (*http.Response, error)
}

type localBreaker struct {
	cb *gobreaker.CircuitBreaker[*http.Response]
}

func (b localBreaker) execute(_ context.Context, fn func() (*http.Response, error)) (*http.Response, error) {
	return b.cb.Execute(fn)
}

type distributedBreaker struct {
	cb *gobreaker.DistributedCircuitBreaker[*http.Response]
}

func (b distributedBreaker) execute(_ context.Context, fn func() (*http.Response, error)) (*http.Response, error) {
	return b.cb.Execute(fn)
}

// newBreaker creates the breaker for bc. A distributed breaker that
// cannot be created falls back to a local one.
func newBreaker(name string, bc BreakerConfig, m *metrics) circuitBreaker {
	st := bc.settings(name, m)
	if bc.Store != nil {
		if dcb, err := gobreaker.NewDistributedCircuitBreaker[*http.Response](bc.Store, st); err == nil {
			return distributedBreaker{cb: dcb}
		}
	}
	return localBreaker{cb: gobreaker.NewCircuitBreaker[*http.Response](st)}
}
