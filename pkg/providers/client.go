// Copyright 2026 Wandercast
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package providers implements the uniform HTTP client for external content
// providers plus the catalog of concrete providers. Every provider differs
// only in its descriptor, its request builder, and its response transform;
// caching, rate limiting, retries, and error classification are shared.
package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wandercast/wandercast/pkg/content"
	"github.com/wandercast/wandercast/pkg/ratelimit"
	"github.com/wandercast/wandercast/pkg/store"
)

// Query is one provider search request.
type Query struct {
	Text     string
	Kind     content.RequestKind
	Location *content.Location
	Limit    int
}

// RequestBuilder maps a query onto a provider-specific endpoint path and
// parameter set. API keys are injected later by the client, never here.
type RequestBuilder func(q Query) (endpoint string, params url.Values)

// Transform parses a raw provider payload into normalized candidate items.
type Transform func(q Query, payload []byte) ([]*content.CandidateItem, error)

// CallMeta reports how one Search was satisfied.
type CallMeta struct {
	Cached        bool
	ReplyReceived bool
	Cost          float64
	Elapsed       time.Duration
}

// Default retry backoff bounds.
const (
	defaultBackoffBase = 2 * time.Second
	defaultBackoffCap  = 10 * time.Second
	maxResponseBytes   = 4 << 20
)

// Config assembles a provider client.
type Config struct {
	Descriptor content.ProviderDescriptor
	Build      RequestBuilder
	Transform  Transform

	Cache      store.CacheRepo
	HTTPClient *http.Client
	Logger     *zap.Logger

	BackoffBase time.Duration
	BackoffCap  time.Duration
}

func (c *Config) withDefaults() {
	if c.HTTPClient == nil {
		timeout := c.Descriptor.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		c.HTTPClient = &http.Client{Timeout: timeout}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = defaultBackoffCap
	}
}

// Client is the uniform provider client. One instance per provider per
// process; the rate bucket and the disabled flag are process-wide state.
type Client struct {
	desc      content.ProviderDescriptor
	build     RequestBuilder
	transform Transform

	httpClient *http.Client
	bucket     *ratelimit.Bucket
	cache      store.CacheRepo
	logger     *zap.Logger
	apiKey     string

	backoffBase time.Duration
	backoffCap  time.Duration

	mu       sync.Mutex
	disabled bool
}

// NewClient builds a provider client from its config. The API key, if the
// descriptor names one, is read from the environment once at construction.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Descriptor.Name == "" {
		return nil, errors.New("provider descriptor requires a name")
	}
	if cfg.Build == nil || cfg.Transform == nil {
		return nil, fmt.Errorf("provider %s requires a request builder and a transform", cfg.Descriptor.Name)
	}
	cfg.withDefaults()

	rate := cfg.Descriptor.RateLimit
	if rate <= 0 {
		rate = 1
	}
	period := cfg.Descriptor.RatePeriod
	if period <= 0 {
		period = time.Second
	}

	apiKey := ""
	if cfg.Descriptor.KeyEnvVar != "" {
		apiKey = os.Getenv(cfg.Descriptor.KeyEnvVar)
	}

	return &Client{
		desc:        cfg.Descriptor,
		build:       cfg.Build,
		transform:   cfg.Transform,
		httpClient:  cfg.HTTPClient,
		bucket:      ratelimit.NewBucket(rate, period),
		cache:       cfg.Cache,
		logger:      cfg.Logger.With(zap.String("provider", cfg.Descriptor.Name)),
		apiKey:      apiKey,
		backoffBase: cfg.BackoffBase,
		backoffCap:  cfg.BackoffCap,
	}, nil
}

// Descriptor returns the provider's configuration.
func (c *Client) Descriptor() content.ProviderDescriptor {
	return c.desc
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.desc.Name
}

// Disabled reports whether the client was shut off after an auth failure.
func (c *Client) Disabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disabled
}

// Available reports whether the client can serve requests at all: it is not
// disabled and, when the descriptor names a key, the key is present.
func (c *Client) Available() bool {
	if c.Disabled() {
		return false
	}
	if c.desc.KeyEnvVar != "" && c.apiKey == "" {
		return false
	}
	return true
}

// Search runs one provider call: cache lookup, rate limit, HTTP with
// retries, transform, cache write. Cost is charged only when an HTTP reply
// was received; a cache hit or a pure transport failure costs nothing.
func (c *Client) Search(ctx context.Context, q Query) ([]*content.CandidateItem, CallMeta, error) {
	start := time.Now()
	meta := CallMeta{}

	if c.Disabled() {
		return nil, meta, NewError(KindAuthFailure, c.desc.Name, errors.New("client disabled after authentication failure"))
	}

	endpoint, params := c.build(q)
	key := content.CacheKey(c.desc.Name, endpoint, params.Encode())

	if payload, ok := c.cacheGet(ctx, key); ok {
		items, err := c.transform(q, payload)
		if err == nil {
			meta.Cached = true
			meta.Elapsed = time.Since(start)
			return items, meta, nil
		}
		// A stale entry that no longer parses falls through to the network.
		c.logger.Warn("cached payload failed to parse, refetching", zap.Error(err))
	}

	if err := c.bucket.Acquire(ctx); err != nil {
		return nil, meta, NewError(KindCancelled, c.desc.Name, err)
	}

	payload, replyReceived, err := c.fetch(ctx, endpoint, params)
	meta.ReplyReceived = replyReceived
	if replyReceived {
		meta.Cost = c.desc.CostPerRequest
	}
	meta.Elapsed = time.Since(start)
	if err != nil {
		return nil, meta, err
	}

	items, err := c.transform(q, payload)
	if err != nil {
		return nil, meta, NewError(KindParseFailure, c.desc.Name, err)
	}

	c.cacheSet(ctx, key, payload)
	return items, meta, nil
}

// fetch issues the HTTP request with exponential backoff. The second return
// reports whether any HTTP reply arrived, even a failed one.
func (c *Client) fetch(ctx context.Context, endpoint string, params url.Values) ([]byte, bool, error) {
	attempts := c.desc.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	replyReceived := false
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.backoff(attempt, lastErr)); err != nil {
				return nil, replyReceived, NewError(KindCancelled, c.desc.Name, err)
			}
		}

		payload, gotReply, err := c.doOnce(ctx, endpoint, params)
		if gotReply {
			replyReceived = true
		}
		if err == nil {
			return payload, replyReceived, nil
		}
		lastErr = err

		if !c.retryable(err) {
			return nil, replyReceived, err
		}
		c.logger.Debug("provider call failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return nil, replyReceived, lastErr
}

func (c *Client) doOnce(ctx context.Context, endpoint string, params url.Values) ([]byte, bool, error) {
	reqURL, err := c.requestURL(endpoint, params)
	if err != nil {
		return nil, false, NewError(KindInternal, c.desc.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, false, NewError(KindInternal, c.desc.Name, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "wandercast/1.0")
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, NewError(KindCancelled, c.desc.Name, ctx.Err())
		}
		return nil, false, NewError(KindTransport, c.desc.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, true, NewError(KindTransport, c.desc.Name, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, true, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.disable()
		return nil, true, NewError(KindAuthFailure, c.desc.Name,
			fmt.Errorf("upstream returned %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, &retryAfterError{
			err:   NewError(KindRateLimitedUpstream, c.desc.Name, errors.New("upstream rate limit")),
			after: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode >= 500:
		return nil, true, NewError(KindTransport, c.desc.Name,
			fmt.Errorf("upstream returned %d", resp.StatusCode))
	default:
		return nil, true, NewError(KindInternal, c.desc.Name,
			fmt.Errorf("upstream rejected request with %d", resp.StatusCode))
	}
}

func (c *Client) requestURL(endpoint string, params url.Values) (string, error) {
	base, err := url.Parse(c.desc.BaseURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	u := base.ResolveReference(ref)

	merged := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			merged.Add(k, v)
		}
	}
	if c.desc.AuthMode == content.AuthQueryKey && c.apiKey != "" {
		merged.Set(c.desc.AuthName, c.apiKey)
	}
	u.RawQuery = merged.Encode()
	return u.String(), nil
}

func (c *Client) applyAuth(req *http.Request) {
	if c.apiKey == "" {
		return
	}
	switch c.desc.AuthMode {
	case content.AuthHeaderKey:
		req.Header.Set(c.desc.AuthName, c.apiKey)
	case content.AuthBearer:
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// retryable failures are those worth another attempt against the same
// upstream: transient transport errors and upstream throttling.
func (c *Client) retryable(err error) bool {
	switch KindOf(err) {
	case KindTransport, KindRateLimitedUpstream:
		return true
	default:
		return false
	}
}

// backoff returns the pre-attempt delay: exponential from the base, capped,
// overridden by an upstream Retry-After when one was given.
func (c *Client) backoff(attempt int, lastErr error) time.Duration {
	var ra *retryAfterError
	if errors.As(lastErr, &ra) && ra.after > 0 {
		if ra.after > c.backoffCap {
			return c.backoffCap
		}
		return ra.after
	}

	d := c.backoffBase << (attempt - 1)
	if d > c.backoffCap || d <= 0 {
		return c.backoffCap
	}
	return d
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.disabled {
		c.disabled = true
		c.logger.Error("disabling provider after authentication failure")
	}
}

func (c *Client) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	if c.cache == nil {
		return nil, false
	}
	payload, err := c.cache.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	return payload, true
}

func (c *Client) cacheSet(ctx context.Context, key string, payload []byte) {
	if c.cache == nil {
		return
	}
	ttl := c.desc.CacheTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if err := c.cache.Set(ctx, key, payload, ttl); err != nil {
		c.logger.Debug("cache write failed", zap.Error(err))
	}
}

// retryAfterError carries an upstream Retry-After hint through the retry loop.
type retryAfterError struct {
	err   *Error
	after time.Duration
}

func (r *retryAfterError) Error() string { return r.err.Error() }
func (r *retryAfterError) Unwrap() error { return r.err }

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
