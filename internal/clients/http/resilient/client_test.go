package resilient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingDoer struct {
	inner Doer
	calls atomic.Int32
}

func (d *countingDoer) Do(req *http.Request) (*http.Response, error) {
	d.calls.Add(1)
	return d.inner.Do(req)
}

type transitionLog struct {
	mu          sync.Mutex
	transitions []Transition
}

func (l *transitionLog) record(t Transition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transitions = append(l.transitions, t)
}

func (l *transitionLog) snapshot() []Transition {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Transition(nil), l.transitions...)
}

func testConfig(baseURL string) Config {
	cfg := DefaultConfig("catalog", baseURL)
	cfg.Timeout = time.Second
	cfg.BaseDelay = time.Millisecond
	cfg.MaxJitter = 0
	cfg.MinRequests = 1000
	return cfg
}

func newStatusServer(t *testing.T, status int, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, `{"status":%d}`, status)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestCall_SuccessDecodesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/products", r.URL.Path)
		require.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}))
	t.Cleanup(server.Close)

	client, err := New(testConfig(server.URL))
	require.NoError(t, err)

	resp, err := client.Call(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/products",
		Body:   map[string]string{"name": "A"},
		Header: http.Header{"Idempotency-Key": []string{"key-1"}},
	})
	require.NoError(t, err)
	var payload struct {
		ID string `json:"id"`
	}
	require.NoError(t, resp.Decode(&payload))
	require.Equal(t, "1", payload.ID)
}

func TestCall_Retries5xxUpToMaxAttempts(t *testing.T) {
	var hits atomic.Int32
	server := newStatusServer(t, http.StatusServiceUnavailable, &hits)

	client, err := New(testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.Call(context.Background(), Request{Method: http.MethodGet, Path: "/products"})
	require.Error(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	require.EqualValues(t, 3, hits.Load())
}

func TestCall_RequestCanLowerAttemptBudget(t *testing.T) {
	var hits atomic.Int32
	server := newStatusServer(t, http.StatusServiceUnavailable, &hits)

	client, err := New(testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.Call(context.Background(), Request{Method: http.MethodGet, Path: "/stock", MaxAttempts: 1})
	require.Error(t, err)
	require.EqualValues(t, 1, hits.Load())

	_, err = client.Call(context.Background(), Request{Method: http.MethodGet, Path: "/stock", MaxAttempts: 10})
	require.Error(t, err)
	require.EqualValues(t, 4, hits.Load(), "a request cannot raise the configured budget")
}

func TestCall_RecoversAfterTransientFailure(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(server.Close)

	client, err := New(testConfig(server.URL))
	require.NoError(t, err)

	resp, err := client.Call(context.Background(), Request{Method: http.MethodGet, Path: "/products"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 2, hits.Load())
}

func TestCall_DoesNotRetry4xx(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var hits atomic.Int32
			server := newStatusServer(t, status, &hits)

			client, err := New(testConfig(server.URL))
			require.NoError(t, err)

			_, err = client.Call(context.Background(), Request{Method: http.MethodGet, Path: "/products/1"})
			require.Error(t, err)
			require.False(t, IsRetryable(err))
			require.Equal(t, status == http.StatusNotFound, IsNotFound(err))
			require.EqualValues(t, 1, hits.Load())
		})
	}
}

func TestCall_RetriesConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	doer := &countingDoer{inner: &http.Client{}}
	client, err := New(testConfig(baseURL), WithTransport(doer))
	require.NoError(t, err)

	_, err = client.Call(context.Background(), Request{Method: http.MethodGet, Path: "/stock"})
	require.Error(t, err)
	require.ErrorIs(t, err, syscall.ECONNREFUSED)
	require.EqualValues(t, 3, doer.calls.Load())
}

func TestCall_AttemptTimeoutIsRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(500 * time.Millisecond):
		}
	}))
	t.Cleanup(server.Close)

	cfg := testConfig(server.URL)
	cfg.Timeout = 20 * time.Millisecond
	cfg.MaxAttempts = 2
	client, err := New(cfg)
	require.NoError(t, err)

	_, err = client.Call(context.Background(), Request{Method: http.MethodGet, Path: "/stock/1"})
	require.Error(t, err)
	require.True(t, IsRetryable(err))
	require.EqualValues(t, 2, hits.Load())
}

func TestCall_StopsWhenContextCancelled(t *testing.T) {
	var hits atomic.Int32
	server := newStatusServer(t, http.StatusInternalServerError, &hits)

	cfg := testConfig(server.URL)
	cfg.BaseDelay = time.Second
	client, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Call(ctx, Request{Method: http.MethodGet, Path: "/products"})
	require.Error(t, err)
	require.EqualValues(t, 1, hits.Load())
}

func TestBreaker_OpensAndFailsFast(t *testing.T) {
	var hits atomic.Int32
	server := newStatusServer(t, http.StatusServiceUnavailable, &hits)

	cfg := testConfig(server.URL)
	cfg.MaxAttempts = 1
	cfg.MinRequests = 2
	cfg.FailureThreshold = 50
	cfg.ResetTimeout = time.Minute
	log := &transitionLog{}
	client, err := New(cfg, WithTransitionListener(log.record))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = client.Call(context.Background(), Request{Method: http.MethodGet, Path: "/products"})
		require.Error(t, err)
	}
	require.Equal(t, StateOpen, client.State())

	_, err = client.Call(context.Background(), Request{Method: http.MethodGet, Path: "/products"})
	require.ErrorIs(t, err, ErrCircuitOpen)
	require.EqualValues(t, 2, hits.Load(), "open breaker must not reach the transport")

	transitions := log.snapshot()
	require.Len(t, transitions, 1)
	require.Equal(t, StateClosed, transitions[0].From)
	require.Equal(t, StateOpen, transitions[0].To)
	require.Equal(t, "catalog", transitions[0].Upstream)
}

func TestBreaker_DefaultPolicyTripsOnFirstFailure(t *testing.T) {
	var hits atomic.Int32
	server := newStatusServer(t, http.StatusServiceUnavailable, &hits)

	cfg := DefaultConfig("stock", server.URL)
	cfg.MaxAttempts = 1
	client, err := New(cfg)
	require.NoError(t, err)

	_, err = client.Call(context.Background(), Request{Method: http.MethodGet, Path: "/stock"})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrCircuitOpen)
	require.Equal(t, StateOpen, client.State())

	for i := 0; i < 3; i++ {
		_, err = client.Call(context.Background(), Request{Method: http.MethodGet, Path: "/stock"})
		require.ErrorIs(t, err, ErrCircuitOpen)
	}
	require.EqualValues(t, 1, hits.Load())
}

func TestBreaker_DefaultPolicyRetryStopsAtOpenBreaker(t *testing.T) {
	var hits atomic.Int32
	server := newStatusServer(t, http.StatusBadGateway, &hits)

	cfg := DefaultConfig("stock", server.URL)
	cfg.BaseDelay = time.Millisecond
	cfg.MaxJitter = 0
	client, err := New(cfg)
	require.NoError(t, err)

	_, err = client.Call(context.Background(), Request{Method: http.MethodGet, Path: "/stock"})
	require.ErrorIs(t, err, ErrCircuitOpen)
	require.EqualValues(t, 1, hits.Load())
}

func TestBreaker_HalfOpenAllowsSingleTrial(t *testing.T) {
	var (
		healthy atomic.Bool
		hits    atomic.Int32
	)
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if !healthy.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		entered <- struct{}{}
		<-release
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)

	cfg := testConfig(server.URL)
	cfg.MaxAttempts = 1
	cfg.MinRequests = 1
	cfg.ResetTimeout = 50 * time.Millisecond
	log := &transitionLog{}
	client, err := New(cfg, WithTransitionListener(log.record))
	require.NoError(t, err)

	_, err = client.Call(context.Background(), Request{Method: http.MethodGet, Path: "/products"})
	require.Error(t, err)
	require.Equal(t, StateOpen, client.State())

	healthy.Store(true)
	time.Sleep(80 * time.Millisecond)

	trial := make(chan error, 1)
	go func() {
		_, err := client.Call(context.Background(), Request{Method: http.MethodGet, Path: "/products"})
		trial <- err
	}()
	<-entered

	_, err = client.Call(context.Background(), Request{Method: http.MethodGet, Path: "/products"})
	require.ErrorIs(t, err, ErrCircuitOpen, "only one trial call is allowed while half-open")

	close(release)
	require.NoError(t, <-trial)
	require.Equal(t, StateClosed, client.State())
	require.EqualValues(t, 2, hits.Load())

	var states []State
	for _, tr := range log.snapshot() {
		states = append(states, tr.To)
	}
	require.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, states)
}

func TestBreaker_FailedTrialReopens(t *testing.T) {
	var hits atomic.Int32
	server := newStatusServer(t, http.StatusInternalServerError, &hits)

	cfg := testConfig(server.URL)
	cfg.MaxAttempts = 1
	cfg.MinRequests = 1
	cfg.ResetTimeout = 30 * time.Millisecond
	client, err := New(cfg)
	require.NoError(t, err)

	_, _ = client.Call(context.Background(), Request{Method: http.MethodGet, Path: "/products"})
	require.Equal(t, StateOpen, client.State())
	time.Sleep(50 * time.Millisecond)

	_, err = client.Call(context.Background(), Request{Method: http.MethodGet, Path: "/products"})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrCircuitOpen)
	require.Equal(t, StateOpen, client.State())
	require.EqualValues(t, 2, hits.Load())
}

func TestBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	var hits atomic.Int32
	server := newStatusServer(t, http.StatusBadRequest, &hits)

	cfg := testConfig(server.URL)
	cfg.MinRequests = 1
	client, err := New(cfg)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = client.Call(context.Background(), Request{Method: http.MethodGet, Path: "/products"})
		require.Error(t, err)
	}
	require.Equal(t, StateClosed, client.State())
	require.EqualValues(t, 5, hits.Load())
}

func TestProbe(t *testing.T) {
	cases := map[string]struct {
		status  int
		healthy bool
	}{
		"ok":          {status: http.StatusOK, healthy: true},
		"not found":   {status: http.StatusNotFound, healthy: true},
		"unavailable": {status: http.StatusServiceUnavailable, healthy: false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/health", r.URL.Path)
				w.WriteHeader(tc.status)
			}))
			t.Cleanup(server.Close)

			client, err := New(testConfig(server.URL))
			require.NoError(t, err)
			require.Equal(t, tc.healthy, client.Probe(context.Background()))
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		baseURL := server.URL
		server.Close()

		client, err := New(testConfig(baseURL))
		require.NoError(t, err)
		require.False(t, client.Probe(context.Background()))
	})
}

func TestNew_ValidatesConfig(t *testing.T) {
	_, err := New(Config{Name: "catalog"})
	require.Error(t, err)
	_, err = New(Config{BaseURL: "http://localhost"})
	require.Error(t, err)
}

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(&StatusError{StatusCode: http.StatusInternalServerError}))
	require.True(t, IsRetryable(&StatusError{StatusCode: http.StatusGatewayTimeout}))
	require.False(t, IsRetryable(&StatusError{StatusCode: http.StatusBadRequest}))
	require.False(t, IsRetryable(&StatusError{StatusCode: http.StatusNotFound}))
	require.True(t, IsRetryable(fmt.Errorf("dial: %w", syscall.ECONNRESET)))
	require.True(t, IsRetryable(fmt.Errorf("wait: %w", context.DeadlineExceeded)))
	require.False(t, IsRetryable(fmt.Errorf("%w: catalog", ErrCircuitOpen)))
	require.False(t, IsRetryable(errors.New("boom")))
	require.False(t, IsRetryable(nil))
}
