package httpclient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PoolStats is a snapshot of a pool's settings and usage.
//
// Example:
//
//	stats := client.PoolStats()
//	fmt.Printf("%s: %d in flight, %d sent\n", stats.Name, stats.Active, stats.Total)
type PoolStats struct {
	Name string

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	DisableKeepAlives   bool

	// Active is the number of exchanges currently in flight.
	Active int64

	// Total is the number of exchanges sent since the pool was created.
	Total uint64

	// CertificateTransports is the number of client-certificate
	// transports derived from the pool.
	CertificateTransports int
}

// Stats returns a snapshot of the pool.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	certs := len(p.tls)
	p.mu.Unlock()

	return PoolStats{
		Name:                  p.name,
		MaxIdleConns:          p.transport.MaxIdleConns,
		MaxIdleConnsPerHost:   p.transport.MaxIdleConnsPerHost,
		MaxConnsPerHost:       p.transport.MaxConnsPerHost,
		IdleConnTimeout:       p.transport.IdleConnTimeout,
		DisableKeepAlives:     p.transport.DisableKeepAlives,
		Active:                p.active.Load(),
		Total:                 p.total.Load(),
		CertificateTransports: certs,
	}
}

// PoolStats returns a snapshot of the client's pool.
func (c *Client) PoolStats() PoolStats {
	return c.Pool().Stats()
}

// =============================================================================
// Prometheus
// =============================================================================

var (
	poolActiveDesc = prometheus.NewDesc(
		"courier_pool_active_requests",
		"Exchanges currently in flight on the pool.",
		[]string{"pool"}, nil,
	)
	poolTotalDesc = prometheus.NewDesc(
		"courier_pool_requests_total",
		"Exchanges sent through the pool.",
		[]string{"pool"}, nil,
	)
	poolMaxConnsDesc = prometheus.NewDesc(
		"courier_pool_max_conns_per_host",
		"Connection limit per host, 0 when unlimited.",
		[]string{"pool"}, nil,
	)
)

// poolCollector exports pool usage to Prometheus.
type poolCollector struct {
	pools []*Pool
}

// NewPoolCollector returns a prometheus.Collector reporting the given
// pools. With no pools it reports the process-wide pool current at
// scrape time.
//
// Example:
//
//	prometheus.MustRegister(httpclient.NewPoolCollector(paymentsPool))
func NewPoolCollector(pools ...*Pool) prometheus.Collector {
	return &poolCollector{pools: pools}
}

// Describe implements prometheus.Collector.
func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- poolActiveDesc
	ch <- poolTotalDesc
	ch <- poolMaxConnsDesc
}

// Collect implements prometheus.Collector.
func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	pools := c.pools
	if len(pools) == 0 {
		pools = []*Pool{DefaultPool()}
	}
	for _, p := range pools {
		s := p.Stats()
		ch <- prometheus.MustNewConstMetric(poolActiveDesc, prometheus.GaugeValue, float64(s.Active), s.Name)
		ch <- prometheus.MustNewConstMetric(poolTotalDesc, prometheus.CounterValue, float64(s.Total), s.Name)
		ch <- prometheus.MustNewConstMetric(poolMaxConnsDesc, prometheus.GaugeValue, float64(s.MaxConnsPerHost), s.Name)
	}
}
