package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rpattn/dashlens/pkg/pagekey"
)

// Request describes one upstream fetch.
type Request struct {
	// Endpoint is the path below the client base URL, e.g. "/aggregates".
	Endpoint string
	// Params is the query built from the merged filter state.
	Params map[string]string
	// Priority skips the concurrency queue. Reserved for user-blocking
	// fetches such as exports the user is waiting on.
	Priority bool
	// ForceRefresh skips the cache read but still stores the fresh result.
	ForceRefresh bool
}

// Signature is the cache identity of a request: endpoint plus the stable
// encoding of its parameters. Equal filter state yields equal signatures.
func Signature(endpoint string, params map[string]string) string {
	return endpoint + "?" + pagekey.EncodeParams(params)
}

// IsCanceled reports whether err is a cooperative cancellation rather than
// a real failure. Callers treat canceled fetches as no-ops.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Client funnels every outbound data request through the shared limiter and
// response cache.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *Limiter
	cache      *Cache
}

// ClientOption adjusts client construction.
type ClientOption func(*Client)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a client for the given base URL. The limiter and cache
// are shared dependencies; pass the process-wide instances.
func NewClient(baseURL string, limiter *Limiter, cache *Cache, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    limiter,
		cache:      cache,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the response body for the request, serving from cache when
// a fresh entry exists. Cache misses wait for a limiter slot before hitting
// the network. A canceled context aborts at every stage and an aborted
// result is never cached; use IsCanceled to tell aborts from failures.
func (c *Client) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.Endpoint, err)
	}

	sig := Signature(req.Endpoint, req.Params)
	if !req.ForceRefresh {
		if data, ok := c.cache.Get(sig); ok {
			return data, nil
		}
	}

	if err := c.limiter.Acquire(ctx, req.Priority); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.Endpoint, err)
	}
	defer c.limiter.Release()

	data, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		// Canceled while the response was landing; drop it uncached.
		return nil, fmt.Errorf("fetch %s: %w", req.Endpoint, err)
	}
	c.cache.Put(sig, data)
	return data, nil
}

// FetchMany runs several fetches concurrently and returns bodies in input
// order. The shared limiter still bounds real network fan-out; the first
// error cancels the remaining fetches.
func (c *Client) FetchMany(ctx context.Context, reqs []Request) ([][]byte, error) {
	g, ctx := errgroup.WithContext(ctx)
	results := make([][]byte, len(reqs))
	for i, req := range reqs {
		g.Go(func() error {
			data, err := c.Fetch(ctx, req)
			if err != nil {
				return err
			}
			results[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Client) do(ctx context.Context, req Request) ([]byte, error) {
	query := url.Values{}
	for k, v := range req.Params {
		query.Set(k, v)
	}
	target := c.baseURL + req.Endpoint
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.Endpoint, err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status code: %d", req.Endpoint, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", req.Endpoint, err)
	}
	return data, nil
}
