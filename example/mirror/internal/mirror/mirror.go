package mirror

import (
	"context"
	"log"
	"os"

	"github.com/kroma-labs/courier/example/mirror/internal/config"
	"github.com/kroma-labs/courier/httpclient"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Mirror copies the files listed in an upstream manifest to a local
// directory.
type Mirror struct {
	client *httpclient.Client
	dir    string
}

// NewPool creates the connection pool shared by every mirror call.
func NewPool() *httpclient.Pool {
	return httpclient.NewPool("mirror", httpclient.HighThroughputConfig())
}

// New creates a Mirror on pool. When Redis is reachable the circuit
// breaker state is shared with other mirror instances.
func New(ctx context.Context, pool *httpclient.Pool) (*Mirror, error) {
	if err := os.MkdirAll(config.DefaultMirrorDir, 0o755); err != nil {
		return nil, err
	}

	breaker := httpclient.DefaultBreakerConfig()
	rdb := redis.NewClient(&redis.Options{Addr: config.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("Redis unavailable, using a local breaker: %v", err)
		_ = rdb.Close()
	} else {
		breaker = httpclient.DistributedBreakerConfig(httpclient.NewRedisStore(rdb))
	}

	opts := []httpclient.Option{
		httpclient.WithServiceName(config.ServiceName),
		httpclient.WithPool(pool),
		httpclient.WithFollowRedirects(true),
		httpclient.WithMaxRedirects(config.MaxRedirects),
		httpclient.WithBreaker(breaker),
		httpclient.WithRateLimit(httpclient.RateLimitConfig{
			RequestsPerSecond: config.RequestsPerSecond,
			Burst:             config.RequestBurst,
			PerHost:           true,
		}),
		httpclient.WithCoalescing(),
		httpclient.WithRequestInterceptor(
			httpclient.UserAgentInterceptor(config.ServiceName+"/"+config.ServiceVersion),
			httpclient.RequestIDInterceptor("X-Request-ID"),
		),
		httpclient.WithLogger(zerolog.New(os.Stderr).With().Timestamp().Logger()),
		httpclient.WithDebug(true),
	}
	if config.DefaultProxy != "" {
		opts = append(opts, httpclient.WithDefaultProxy(config.DefaultProxy))
	}

	return &Mirror{
		client: httpclient.New(opts...),
		dir:    config.DefaultMirrorDir,
	}, nil
}

// Stats returns the connection pool statistics of the mirror client.
func (m *Mirror) Stats() httpclient.PoolStats {
	return m.client.PoolStats()
}
