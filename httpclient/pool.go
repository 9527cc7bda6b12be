package httpclient

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
)

// Pool is a named connection pool ("agent"). It owns an *http.Transport
// built from a Config, plus one derived transport per client certificate
// so mutual-TLS connections are pooled separately from anonymous ones.
//
// Pools are safe for concurrent use and may be shared between clients.
//
// Example:
//
//	pool := httpclient.NewPool("payments", httpclient.HighThroughputConfig())
//	client := httpclient.New(httpclient.WithPool(pool))
type Pool struct {
	name      string
	cfg       Config
	transport *http.Transport

	mu  sync.Mutex
	tls map[string]*http.Transport

	active atomic.Int64
	total  atomic.Uint64
}

// NewPool creates a pool from cfg.
func NewPool(name string, cfg Config) *Pool {
	return &Pool{
		name:      name,
		cfg:       cfg,
		transport: cfg.buildTransport(),
		tls:       make(map[string]*http.Transport),
	}
}

// Name returns the pool name.
func (p *Pool) Name() string {
	return p.name
}

// Config returns the configuration the pool was built from.
func (p *Pool) Config() Config {
	return p.cfg
}

// Transport returns the pool's base transport.
func (p *Pool) Transport() *http.Transport {
	return p.transport
}

// CloseIdleConnections closes idle connections of every transport the
// pool owns. In-flight requests are not affected.
func (p *Pool) CloseIdleConnections() {
	p.transport.CloseIdleConnections()

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.tls {
		t.CloseIdleConnections()
	}
}

// forCertificate returns the transport presenting cert, creating and
// caching it on first use.
func (p *Pool) forCertificate(cert *Certificate) (*http.Transport, error) {
	if cert == nil {
		return p.transport, nil
	}

	key := cert.fingerprint()

	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.tls[key]; ok {
		return t, nil
	}

	tlsCfg, err := cert.TLSConfig()
	if err != nil {
		return nil, err
	}

	t := p.transport.Clone()
	t.TLSClientConfig = tlsCfg
	p.tls[key] = t
	return t, nil
}

// roundTrip sends req on rt and keeps the usage counters.
func (p *Pool) roundTrip(rt http.RoundTripper, req *http.Request) (*http.Response, error) {
	p.total.Add(1)
	p.active.Add(1)
	defer p.active.Add(-1)
	return rt.RoundTrip(req)
}

// =============================================================================
// Process-wide pool
// =============================================================================

var defaultPool atomic.Pointer[Pool]

func init() {
	defaultPool.Store(NewPool("default", DefaultConfig()))
}

// DefaultPool returns the process-wide pool used by clients that were not
// given their own.
func DefaultPool() *Pool {
	return defaultPool.Load()
}

// SetDefaultPool replaces the process-wide pool. Calls already in flight
// keep the pool they started with. Idle connections of the previous pool
// are closed. A nil pool is ignored.
func SetDefaultPool(p *Pool) {
	if p == nil {
		return
	}
	if old := defaultPool.Swap(p); old != nil && old != p {
		old.CloseIdleConnections()
	}
}

// ConfigureDefaultPool rebuilds the process-wide pool from cfg.
//
// Example - raise the global connection limit:
//
//	cfg := httpclient.DefaultConfig()
//	cfg.MaxConnsPerHost = 500
//	httpclient.ConfigureDefaultPool(cfg)
func ConfigureDefaultPool(cfg Config) {
	SetDefaultPool(NewPool("default", cfg))
}

// =============================================================================
// Agent selection
// =============================================================================

type agentKind int

const (
	agentDefault agentKind = iota
	agentPool
	agentInline
	agentNone
)

// Agent selects the connection pool for one call. The zero value uses the
// client's pool, or the process-wide pool when the client has none.
type Agent struct {
	kind agentKind
	pool *Pool
	cfg  Config
}

// AgentPool routes the call through p.
func AgentPool(p *Pool) Agent {
	if p == nil {
		return Agent{}
	}
	return Agent{kind: agentPool, pool: p}
}

// AgentConfig builds a pool from cfg for this call only. Its idle
// connections are closed once the call resolves.
func AgentConfig(cfg Config) Agent {
	return Agent{kind: agentInline, cfg: cfg}
}

// AgentNone disables connection pooling for the call: the connection is
// closed after the response.
func AgentNone() Agent {
	return Agent{kind: agentNone}
}

// resolve returns the pool for the call and whether it is private to it.
func (a Agent) resolve(clientPool *Pool) (*Pool, bool) {
	switch a.kind {
	case agentPool:
		return a.pool, false
	case agentInline:
		return NewPool("inline", a.cfg), true
	case agentNone:
		cfg := DefaultConfig()
		if clientPool != nil {
			cfg = clientPool.cfg
		}
		cfg.DisableKeepAlives = true
		return NewPool("none", cfg), true
	default:
		if clientPool != nil {
			return clientPool, false
		}
		return DefaultPool(), false
	}
}

// key identifies the agent in coalescing keys.
func (a Agent) key() string {
	switch a.kind {
	case agentPool:
		return fmt.Sprintf("pool:%s:%p", a.pool.name, a.pool)
	case agentInline:
		return fmt.Sprintf("inline:%+v", a.cfg)
	case agentNone:
		return "none"
	default:
		return ""
	}
}

// poolRouter is the innermost RoundTripper of a client. It sends each
// request on the transport the dispatcher attached to the request context.
type poolRouter struct{}

// RoundTrip implements http.RoundTripper.
func (poolRouter) RoundTrip(req *http.Request) (*http.Response, error) {
	r, ok := req.Context().Value(routeKey{}).(route)
	if !ok {
		p := DefaultPool()
		return p.roundTrip(p.transport, req)
	}
	return r.pool.roundTrip(r.transport, req)
}

type routeKey struct{}

type route struct {
	pool      *Pool
	transport *http.Transport
}

// buildTransport creates an http.Transport from the configuration.
func (hc Config) buildTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:       hc.DialTimeout,
		KeepAlive:     hc.KeepAlive,
		FallbackDelay: hc.FallbackDelay,
	}

	transport := &http.Transport{
		DialContext:            dialer.DialContext,
		MaxIdleConns:           hc.MaxIdleConns,
		MaxIdleConnsPerHost:    hc.MaxIdleConnsPerHost,
		MaxConnsPerHost:        hc.MaxConnsPerHost,
		IdleConnTimeout:        hc.IdleConnTimeout,
		TLSHandshakeTimeout:    hc.TLSHandshakeTimeout,
		ResponseHeaderTimeout:  hc.ResponseHeaderTimeout,
		ExpectContinueTimeout:  hc.ExpectContinueTimeout,
		DisableKeepAlives:      hc.DisableKeepAlives,
		DisableCompression:     hc.DisableCompression,
		WriteBufferSize:        hc.WriteBufferSize,
		ReadBufferSize:         hc.ReadBufferSize,
		MaxResponseHeaderBytes: hc.MaxResponseHeaderBytes,
		ForceAttemptHTTP2:      hc.ForceHTTP2,
	}

	// Explicit per-call proxies are addressed directly; only the
	// environment proxy is delegated to the transport.
	if hc.ProxyFromEnvironment {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return transport
}
