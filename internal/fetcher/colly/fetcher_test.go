package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/concurso-crawler/internal/contest"
)

func TestFetchReturnsBody(t *testing.T) {
	t.Parallel()

	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "concurso-test", Timeout: 2 * time.Second}, nil, nil)
	resp, err := f.Fetch(context.Background(), srv.URL+"/edital.pdf")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "%PDF-1.4", string(resp.Body))
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Equal(t, "concurso-test", gotUA.Load())
}

func TestFetchSameURLTwice(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 2 * time.Second}, nil, nil)
	for i := 0; i < 2; i++ {
		resp, err := f.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
		assert.Equal(t, "ok", string(resp.Body))
	}
}

func TestFetchNon2xxIsFetchError(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.NotFound(w, nil)
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 2 * time.Second, MaxRetries: 3}, nil, nil)
	_, err := f.Fetch(context.Background(), srv.URL+"/missing")
	require.Error(t, err)

	var fe *contest.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.Equal(t, int32(1), hits.Load(), "status errors are not retried")
}

func TestFetchTimeoutRetries(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 100 * time.Millisecond, MaxRetries: 1}, nil, nil)
	f.retry.baseDelay = time.Millisecond
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var fe *contest.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Zero(t, fe.StatusCode)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	f := New(Config{Timeout: time.Second}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, "http://127.0.0.1:1")
	require.Error(t, err)
	var fe *contest.FetchError
	assert.ErrorAs(t, err, &fe)
}

func TestFetchUsesLimiter(t *testing.T) {
	t.Parallel()

	limiter := &stubWaiter{err: errors.New("limited")}
	f := New(Config{}, limiter, nil)
	_, err := f.Fetch(context.Background(), "https://example.com")
	require.Error(t, err)
	assert.Equal(t, []string{"https://example.com"}, limiter.urls)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{Headers: http.Header{"Accept-Language": {"pt-BR"}}}, nil, nil)
	var result contest.Response
	var fetchErr *contest.FetchError

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, "https://example.com", time.Now(), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	assert.Equal(t, "pt-BR", collyReq.Headers.Get("Accept-Language"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com/final")},
	})
	assert.Equal(t, "body", string(result.Body))
	assert.Equal(t, "https://example.com/final", result.FinalURL)
	assert.Equal(t, "ok", result.Header.Get("X-Resp"))

	hooks.onError(&colly.Response{StatusCode: http.StatusBadGateway}, errors.New("bad gateway"))
	require.NotNil(t, fetchErr)
	assert.Equal(t, http.StatusBadGateway, fetchErr.StatusCode)

	hooks.onError(nil, nil)
	assert.Zero(t, fetchErr.StatusCode)
	assert.EqualError(t, fetchErr.Err, "unknown colly error")
}

func TestRetryPolicy(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(2)
	timeout := &contest.FetchError{URL: "u", Err: &url.Error{Op: "Get", URL: "u", Err: timeoutErr{}}}

	assert.True(t, p.ShouldRetry(timeout, 0))
	assert.True(t, p.ShouldRetry(timeout, 1))
	assert.False(t, p.ShouldRetry(timeout, 2))
	assert.False(t, p.ShouldRetry(&contest.FetchError{URL: "u", StatusCode: 503, Err: errors.New("x")}, 0))
	assert.False(t, p.ShouldRetry(errors.New("plain"), 0))
	assert.False(t, p.ShouldRetry(context.Canceled, 0))
	assert.False(t, p.ShouldRetry(nil, 0))

	for attempt := 0; attempt < 6; attempt++ {
		d := p.Backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, p.maxDelay)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type stubWaiter struct {
	err  error
	urls []string
}

func (s *stubWaiter) Wait(_ context.Context, url string) error {
	s.urls = append(s.urls, url)
	return s.err
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback)   { s.onRequest = cb }
func (s *stubHooks) OnResponse(cb colly.ResponseCallback) { s.onResponse = cb }
func (s *stubHooks) OnError(cb colly.ErrorCallback)       { s.onError = cb }

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
