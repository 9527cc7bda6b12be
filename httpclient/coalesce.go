package httpclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"
)

// coalescer shares one in-flight exchange between identical calls of a
// client.
type coalescer struct {
	group singleflight.Group
}

// eligible reports whether cfg describes a call whose result can be
// shared: a buffered GET with no body, no download and no certificate.
func (c *coalescer) eligible(cfg *RequestConfig) bool {
	return c != nil &&
		cfg.Method == http.MethodGet &&
		!cfg.Stream &&
		!cfg.downloads() &&
		cfg.Body.IsEmpty() &&
		cfg.Certificate == nil
}

// do runs fn once per key among concurrent callers. The boolean reports
// whether the result was shared with another caller.
func (c *coalescer) do(
	ctx context.Context,
	key string,
	fn func(context.Context) (*Response, error),
) (*Response, bool, error) {
	// Detach from the first caller's cancellation; every waiter still
	// honours its own ctx below.
	ch := c.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		resp, _ := res.Val.(*Response)
		if res.Shared && resp != nil {
			resp = resp.shallowCopy()
		}
		return resp, res.Shared, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// coalesceKey identifies a call by method, normalized target, proxy,
// agent, redirect policy and the headers that would be sent.
func coalesceKey(target *url.URL, cfg *RequestConfig) string {
	params := target.Query()
	sorted := make([]string, 0, len(params))
	for k, vs := range params {
		vs = append([]string(nil), vs...)
		sort.Strings(vs)
		for _, v := range vs {
			sorted = append(sorted, k+"="+v)
		}
	}
	sort.Strings(sorted)

	headers := make([]string, 0, len(cfg.Header))
	for k, vs := range cfg.Header {
		headers = append(headers, http.CanonicalHeaderKey(k)+":"+strings.Join(vs, ","))
	}
	sort.Strings(headers)

	parts := []string{
		cfg.Method,
		target.Scheme + "://" + target.Host + target.EscapedPath(),
		strings.Join(sorted, "&"),
		strings.Join(headers, "\n"),
		cfg.Proxy,
		cfg.Agent.key(),
	}
	if cfg.FollowRedirects {
		parts = append(parts, "follow:"+strconv.Itoa(cfg.MaxRedirects))
	}
	if !cfg.Parse {
		parts = append(parts, "raw")
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
