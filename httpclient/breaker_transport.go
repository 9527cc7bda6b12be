package httpclient

import (
	"errors"
	"net/http"
)

// errClassifiedFailure marks a response the classifier counted as a
// failure. It never leaves the transport.
var errClassifiedFailure = errors.New("classified failure")

type circuitBreakerTransport struct {
	breaker    circuitBreaker
	next       http.RoundTripper
	classifier BreakerClassifier
	metrics    *metrics
	name       string
}

// newCircuitBreakerTransport wraps next in the breaker configured on cfg,
// named after the service name.
func newCircuitBreakerTransport(next http.RoundTripper, cfg *internalConfig) http.RoundTripper {
	if cfg.BreakerConfig == nil {
		return next
	}

	name := cfg.ServiceName
	if name == "" {
		name = "courier"
	}

	classifier := cfg.BreakerConfig.Classifier
	if classifier == nil {
		classifier = DefaultBreakerClassifier
	}

	return &circuitBreakerTransport{
		breaker:    newBreaker(name, *cfg.BreakerConfig, cfg.Metrics),
		next:       next,
		classifier: classifier,
		metrics:    cfg.Metrics,
		name:       name,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *circuitBreakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	var classified *http.Response
	resp, err := t.breaker.execute(ctx, func() (*http.Response, error) {
		resp, err := t.next.RoundTrip(req) //nolint:bodyclose // returned to the caller
		if t.classifier(resp, err) {
			if err != nil {
				return nil, err
			}
			classified = resp
			return resp, errClassifiedFailure
		}
		return resp, err
	})

	switch {
	case err == nil:
		t.metrics.recordBreakerRequest(ctx, t.name, "success")
		return resp, nil
	case errors.Is(err, errClassifiedFailure):
		// The server answered; the caller still gets its response.
		t.metrics.recordBreakerRequest(ctx, t.name, "failure")
		return classified, nil
	case isBreakerRejection(err):
		t.metrics.recordBreakerRequest(ctx, t.name, "rejected")
		return nil, err
	default:
		t.metrics.recordBreakerRequest(ctx, t.name, "failure")
		return nil, err
	}
}

// Unwrap returns the next transport in the chain.
func (t *circuitBreakerTransport) Unwrap() http.RoundTripper {
	return t.next
}
