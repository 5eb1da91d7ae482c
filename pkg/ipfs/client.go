// Package ipfs retrieves content-addressed blobs through one or more IPFS
// HTTP gateways.
package ipfs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgeandnode/qos-oracle/pkg/utils"
)

// Client fetches blobs by content hash from a set of gateway endpoints,
// with a token-bucket rate limit and a per-endpoint circuit-breaker.
type Client struct {
	endpoints []string
	client    *http.Client

	// token-bucket
	tokens      int64
	maxTokens   int64
	refillEvery time.Duration
	lastRefill  atomic.Value // time.Time

	// circuit-breaker
	mu       sync.Mutex
	failures map[string]int
	opened   map[string]time.Time

	breakerThreshold int
	breakerCooldown  time.Duration

	maxBlobBytes int64
}

// Opts is the set of options for a new Client.
type Opts struct {
	Endpoints       []string
	Timeout         time.Duration
	RPS             int
	Burst           int
	BreakerFailures int
	BreakerCooldown time.Duration
	MaxBlobBytes    int64
	HTTPClient      *http.Client
}

// NewWithOpts creates a new Client with the given options.
func NewWithOpts(o Opts) *Client {
	if o.RPS <= 0 {
		o.RPS = 10
	}
	if o.Burst <= 0 {
		o.Burst = 20
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.BreakerFailures <= 0 {
		o.BreakerFailures = 3
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 5 * time.Second
	}
	if o.MaxBlobBytes <= 0 {
		o.MaxBlobBytes = 32 << 20
	}

	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	} else if client.Timeout == 0 {
		client.Timeout = o.Timeout
	}

	c := &Client{
		endpoints:        utils.Dedup(o.Endpoints),
		client:           client,
		maxTokens:        int64(o.Burst),
		refillEvery:      time.Second / time.Duration(o.RPS),
		failures:         map[string]int{},
		opened:           map[string]time.Time{},
		breakerThreshold: o.BreakerFailures,
		breakerCooldown:  o.BreakerCooldown,
		maxBlobBytes:     o.MaxBlobBytes,
	}
	c.tokens = c.maxTokens
	c.lastRefill.Store(time.Now())
	return c
}

// NewFromEnv creates a Client for the gateways named by the IPFS_GATEWAYS
// environment variable, comma-separated.
func NewFromEnv() *Client {
	gateways := strings.Split(utils.Env("IPFS_GATEWAYS", "https://ipfs.thegraph.com"), ",")
	return NewWithOpts(Opts{Endpoints: gateways})
}

// refill refills the token-bucket with new tokens if necessary.
func (c *Client) refill() {
	last := c.lastRefill.Load().(time.Time)
	now := time.Now()
	if now.Sub(last) >= c.refillEvery {
		if atomic.LoadInt64(&c.tokens) < c.maxTokens {
			atomic.AddInt64(&c.tokens, 1)
		}
		c.lastRefill.Store(now)
	}
}

// acquire acquires a token from the token-bucket, blocking until one is
// available or ctx is done.
func (c *Client) acquire(ctx context.Context) error {
	for {
		c.refill()
		if atomic.LoadInt64(&c.tokens) > 0 {
			atomic.AddInt64(&c.tokens, -1)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.refillEvery / 2):
		}
	}
}

// isOpen returns true if the endpoint's breaker is in the OPEN state.
func (c *Client) isOpen(ep string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.opened[ep]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(c.opened, ep)
		c.failures[ep] = 0
		return false
	}
	return true
}

// noteFailure marks an endpoint as failed and opens its breaker once the
// failure count exceeds the threshold.
func (c *Client) noteFailure(ep string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ep]++
	if c.failures[ep] >= c.breakerThreshold {
		c.opened[ep] = time.Now().Add(c.breakerCooldown)
	}
}

// Cat returns the bytes behind the given content hash, trying each gateway
// until one answers. A hash no gateway can serve is an error; the ingest
// pipeline records the attempt and moves on rather than retrying.
func (c *Client) Cat(ctx context.Context, hash string) ([]byte, error) {
	if len(c.endpoints) == 0 {
		return nil, fmt.Errorf("no gateway endpoints configured")
	}
	if hash == "" {
		return nil, fmt.Errorf("empty content hash")
	}

	var lastErr error
	for i := 0; i < len(c.endpoints); i++ {
		ep := c.endpoints[i%len(c.endpoints)]
		if c.isOpen(ep) {
			continue
		}

		if err := c.acquire(ctx); err != nil {
			return nil, err
		}

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, ep+"/ipfs/"+hash, nil)
		if reqErr != nil {
			return nil, reqErr
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			c.noteFailure(ep)
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("gateway %d", resp.StatusCode)
			c.noteFailure(ep)
			_ = utils.DrainAndClose(resp.Body)
			continue
		}
		if resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("http %d", resp.StatusCode)
			_ = utils.DrainAndClose(resp.Body)
			continue
		}

		data, readErr := io.ReadAll(io.LimitReader(resp.Body, c.maxBlobBytes))
		if cerr := utils.DrainAndClose(resp.Body); cerr != nil && readErr == nil {
			readErr = cerr
		}
		if readErr != nil {
			lastErr = readErr
			c.noteFailure(ep)
			continue
		}
		return data, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("all gateways unavailable")
	}
	return nil, fmt.Errorf("cat %s: %w", hash, lastErr)
}
