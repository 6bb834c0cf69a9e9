// Package resilient wraps outbound HTTP calls to an upstream with a circuit
// breaker, retries with exponential backoff and jitter, and a health probe.
// One Client exists per upstream target; its breaker state is shared by every
// caller of that target.
package resilient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

const (
	defaultHealthPath   = "/health"
	defaultProbeTimeout = 5 * time.Second
	maxResponseBytes    = 10 << 20
)

// Doer is the transport capability the client is composed over. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Recorder receives resilience telemetry.
type Recorder interface {
	ObserveRequest(upstream, outcome string)
	ObserveRetry(upstream string)
	ObserveState(upstream string, state State)
}

// Config holds the per-upstream resilience policy.
type Config struct {
	Name    string
	BaseURL string
	// Timeout bounds a single attempt, not the whole retry loop.
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	MaxJitter   time.Duration
	// FailureThreshold is the failure percentage above which the breaker opens.
	FailureThreshold float64
	MinRequests      uint32
	ResetTimeout     time.Duration
	RollingWindow    time.Duration
	HealthPath       string
	ProbeTimeout     time.Duration
}

// DefaultConfig mirrors the gateway's production defaults.
func DefaultConfig(name, baseURL string) Config {
	return Config{
		Name:             name,
		BaseURL:          baseURL,
		Timeout:          10 * time.Second,
		MaxAttempts:      3,
		BaseDelay:        time.Second,
		MaxJitter:        500 * time.Millisecond,
		FailureThreshold: 50,
		MinRequests:      1,
		ResetTimeout:     30 * time.Second,
		RollingWindow:    15 * time.Second,
		HealthPath:       defaultHealthPath,
		ProbeTimeout:     defaultProbeTimeout,
	}
}

// Request describes one logical upstream call.
type Request struct {
	Method string
	Path   string
	Body   any
	Header http.Header
	// MaxAttempts lowers the configured attempt budget for this call; zero keeps it.
	MaxAttempts int
}

// Response is a fully read upstream response with a 2xx status.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if r == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// Client is the resilient remote client for a single upstream.
type Client struct {
	cfg       Config
	transport Doer
	breaker   *gobreaker.CircuitBreaker[*Response]
	logger    *slog.Logger
	recorder  Recorder
	listeners []func(Transition)
	random    func() float64
}

// Option configures a Client.
type Option func(*Client)

// WithTransport injects the HTTP transport.
func WithTransport(doer Doer) Option {
	return func(c *Client) {
		c.transport = doer
	}
}

// WithLogger injects a slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRecorder injects the telemetry recorder.
func WithRecorder(recorder Recorder) Option {
	return func(c *Client) {
		c.recorder = recorder
	}
}

// WithTransitionListener registers a callback for breaker state changes.
// Listeners run while the breaker holds its lock and must not call back into the client.
func WithTransitionListener(fn func(Transition)) Option {
	return func(c *Client) {
		if fn != nil {
			c.listeners = append(c.listeners, fn)
		}
	}
}

// WithRandom overrides the jitter source, mainly for tests.
func WithRandom(random func() float64) Option {
	return func(c *Client) {
		c.random = random
	}
}

// New builds a client for the upstream described by cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, errors.New("upstream base URL is required")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, errors.New("upstream name is required")
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = defaultHealthPath
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	c := &Client{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.transport == nil {
		c.transport = &http.Client{}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c.breaker = c.newBreaker()
	if c.recorder != nil {
		c.recorder.ObserveState(cfg.Name, StateClosed)
	}
	return c, nil
}

// Name identifies the upstream.
func (c *Client) Name() string {
	return c.cfg.Name
}

// State reports the current breaker state.
func (c *Client) State() State {
	return fromBreakerState(c.breaker.State())
}

// Call executes req through the retry loop; every attempt passes the breaker.
func (c *Client) Call(ctx context.Context, req Request) (*Response, error) {
	attempts := c.cfg.MaxAttempts
	if req.MaxAttempts > 0 && req.MaxAttempts < attempts {
		attempts = req.MaxAttempts
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(newJitterBackOff(c.cfg.BaseDelay, c.cfg.MaxJitter, c.random), uint64(attempts-1)),
		ctx,
	)
	attempt := func() (*Response, error) {
		resp, err := c.attempt(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	notify := func(err error, wait time.Duration) {
		if c.recorder != nil {
			c.recorder.ObserveRetry(c.cfg.Name)
		}
		c.logger.Warn("retrying upstream call",
			slog.String("upstream", c.cfg.Name),
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.Duration("backoff", wait),
			slog.String("error", err.Error()),
		)
	}
	return backoff.RetryNotifyWithData[*Response](attempt, policy, notify)
}

func (c *Client) attempt(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.breaker.Execute(func() (*Response, error) {
		return c.do(ctx, req)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.observe("rejected")
		return nil, fmt.Errorf("%w: %s: %w", ErrCircuitOpen, c.cfg.Name, err)
	case err != nil:
		c.observe("failure")
		return nil, err
	}
	c.observe("success")
	return resp, nil
}

func (c *Client) do(ctx context.Context, req Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s request body: %w", req.Method, req.Path, err)
		}
		body = bytes.NewReader(payload)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.cfg.BaseURL+req.Path, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s request: %w", req.Method, req.Path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	httpResp, err := c.transport.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call %s %s %s: %w", c.cfg.Name, req.Method, req.Path, err)
	}
	defer httpResp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s %s %s response: %w", c.cfg.Name, req.Method, req.Path, err)
	}
	if httpResp.StatusCode < http.StatusOK || httpResp.StatusCode >= http.StatusMultipleChoices {
		return nil, &StatusError{
			Method:     req.Method,
			Path:       req.Path,
			StatusCode: httpResp.StatusCode,
			Status:     httpResp.Status,
			Body:       payload,
		}
	}
	return &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: payload}, nil
}

// Probe checks the upstream liveness endpoint, bypassing breaker and retries.
// Any status below 500 counts as healthy; failures are logged, never returned.
func (c *Client) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+c.cfg.HealthPath, nil)
	if err != nil {
		c.logger.Warn("health check failed", slog.String("upstream", c.cfg.Name), slog.String("error", err.Error()))
		return false
	}
	resp, err := c.transport.Do(req)
	if err != nil {
		c.logger.Warn("health check failed", slog.String("upstream", c.cfg.Name), slog.String("error", err.Error()))
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode >= http.StatusInternalServerError {
		c.logger.Warn("health check failed", slog.String("upstream", c.cfg.Name), slog.Int("status", resp.StatusCode))
		return false
	}
	return true
}

func (c *Client) onTransition(t Transition) {
	level := slog.LevelInfo
	if t.To == StateOpen {
		level = slog.LevelWarn
	}
	c.logger.LogAttrs(context.Background(), level, "circuit breaker "+string(t.To),
		slog.String("upstream", t.Upstream),
		slog.String("from", string(t.From)),
	)
	if c.recorder != nil {
		c.recorder.ObserveState(t.Upstream, t.To)
	}
	for _, listener := range c.listeners {
		listener(t)
	}
}

func (c *Client) observe(outcome string) {
	if c.recorder != nil {
		c.recorder.ObserveRequest(c.cfg.Name, outcome)
	}
}
