package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/5dlabs/taskmaster-sync/internal/debug"
	"github.com/5dlabs/taskmaster-sync/internal/types"
)

// DefaultEndpoint is the production GraphQL endpoint.
const DefaultEndpoint = "https://api.github.com/graphql"

const (
	defaultConcurrency = 8
	defaultTimeout     = 30 * time.Second
	maxAttempts        = 6
	baseDelay          = 500 * time.Millisecond
)

// Codes the API reports for transient failures. Anything else in a GraphQL
// error is terminal for that operation.
var retryableCodes = map[string]bool{
	"RATE_LIMITED":           true,
	"SECONDARY_RATE_LIMITED": true,
	"INTERNAL":               true,
}

// Options configures a Client. Zero values take the documented defaults.
type Options struct {
	Endpoint       string
	Tokens         TokenProvider
	Concurrency    int
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

// Client executes GraphQL operations with retry, rate-limit awareness, and
// bounded concurrency. Safe for concurrent use; mutations against the same
// item id are serialized.
type Client struct {
	endpoint string
	httpc    *http.Client
	tokens   TokenProvider
	timeout  time.Duration
	sem      chan struct{}

	lockMu    sync.Mutex
	itemLocks map[string]*sync.Mutex

	mutations atomic.Int64

	// sleep is a seam for tests; production uses time.Sleep.
	sleep func(time.Duration)
}

// NewClient builds a client from opts.
func NewClient(opts Options) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Tokens == nil {
		opts.Tokens = NewCLITokenProvider()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &Client{
		endpoint:  opts.Endpoint,
		httpc:     opts.HTTPClient,
		tokens:    opts.Tokens,
		timeout:   opts.RequestTimeout,
		sem:       make(chan struct{}, opts.Concurrency),
		itemLocks: make(map[string]*sync.Mutex),
		sleep:     time.Sleep,
	}
}

// Concurrency reports the client's in-flight request cap.
func (c *Client) Concurrency() int { return cap(c.sem) }

// Mutations reports how many mutations this client has performed.
func (c *Client) Mutations() int64 { return c.mutations.Load() }

// lockItem returns the mutex serializing mutations on one remote item.
func (c *Client) lockItem(itemID string) *sync.Mutex {
	c.lockMu.Lock()
	defer c.lockMu.Unlock()
	m, ok := c.itemLocks[itemID]
	if !ok {
		m = &sync.Mutex{}
		c.itemLocks[itemID] = m
	}
	return m
}

// withItemLock runs fn while holding the per-item mutation lock.
func (c *Client) withItemLock(itemID string, fn func() error) error {
	m := c.lockItem(itemID)
	m.Lock()
	defer m.Unlock()
	return fn()
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// do executes one GraphQL operation with the full retry policy and decodes
// the data payload into out (which may be nil for fire-and-forget mutations).
func (c *Client) do(ctx context.Context, op, query string, vars map[string]any, out any) error {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	reqID := uuid.NewString()
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("%s: encoding request: %w", op, err)
	}

	var lastErr error
	authRetried := false
	waitedForReset := false
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 && !waitedForReset {
			c.sleep(backoff(attempt))
		}
		waitedForReset = false

		start := time.Now()
		data, retryable, wait, err := c.once(ctx, op, body)
		debug.Logf("gql op=%s req=%s attempt=%d dur=%s err=%v", op, reqID, attempt+1, time.Since(start).Round(time.Millisecond), err)

		if err == nil {
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("%s: decoding response: %w", op, err)
			}
			return nil
		}

		if errors.Is(err, types.ErrAuth) {
			// A cached token may have expired; refresh once before giving up.
			if !authRetried {
				authRetried = true
				c.tokens.Invalidate()
				lastErr = err
				continue
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !retryable {
			return err
		}
		if wait > 0 {
			// The API told us when the rate limit resets; honor it instead
			// of backing off blindly.
			debug.Logf("gql op=%s req=%s rate limited, sleeping %s", op, reqID, wait)
			c.sleep(wait)
			waitedForReset = true
		}
		lastErr = err
	}
	return fmt.Errorf("%s: giving up after %d attempts: %w", op, maxAttempts, lastErr)
}

// once performs a single HTTP round trip. It returns the data payload on
// success, or an error plus whether it is retryable and an optional
// rate-limit wait.
func (c *Client) once(ctx context.Context, op string, body []byte) (json.RawMessage, bool, time.Duration, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	token, err := c.tokens.Token(reqCtx)
	if err != nil {
		return nil, false, 0, err
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, 0, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, true, 0, fmt.Errorf("%s: transport: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, 0, fmt.Errorf("%s: reading response: %w", op, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, false, 0, fmt.Errorf("%w: token rejected (%s)", types.ErrAuth, op)
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, resetWait(resp), fmt.Errorf("%s: rate limited (HTTP %d)", op, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, true, 0, fmt.Errorf("%s: server error (HTTP %d)", op, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, 0, &APIError{Operation: op, Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(respBody))}
	}

	var gql graphQLResponse
	if err := json.Unmarshal(respBody, &gql); err != nil {
		return nil, false, 0, fmt.Errorf("%s: decoding envelope: %w", op, err)
	}
	if len(gql.Errors) > 0 {
		first := gql.Errors[0]
		apiErr := &APIError{Operation: op, Code: first.Type, Message: first.Message}
		if retryableCodes[first.Type] {
			return nil, true, resetWait(resp), apiErr
		}
		// Unlisted codes are treated like the known terminal set.
		return nil, false, 0, apiErr
	}
	return gql.Data, false, 0, nil
}

// resetWait derives how long to wait from rate-limit response headers.
func resetWait(resp *http.Response) time.Duration {
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if s := resp.Header.Get("X-RateLimit-Reset"); s != "" {
		if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
			if wait := time.Until(time.Unix(epoch, 0)); wait > 0 {
				return wait
			}
		}
	}
	return 0
}

// backoff computes the delay before the given retry attempt: exponential
// from 500ms with factor 2 and ±20% jitter.
func backoff(attempt int) time.Duration {
	d := baseDelay << (attempt - 1)
	jitter := 0.8 + 0.4*rand.Float64() // #nosec G404 - timing jitter only
	return time.Duration(float64(d) * jitter)
}

func truncate(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "…"
	}
	return string(b)
}
