package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/tejaschuahan/job-scraper-bot/internal/fetcher"
	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

func TestFetchSendsIdentity(t *testing.T) {
	t.Parallel()

	seen := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Clone()
		_, _ = w.Write([]byte(`{"jobs":[]}`))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: time.Second})
	resp, err := f.Fetch(context.Background(), fetcher.Request{
		Source:   "remotive",
		URL:      srv.URL + "/api",
		Headers:  http.Header{"Accept-Language": {"en-US"}},
		Identity: scraper.Identity{UserAgent: "test-agent/1.0"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"jobs":[]}`, string(resp.Body))
	got := <-seen
	require.Equal(t, "test-agent/1.0", got.Get("User-Agent"))
	require.Equal(t, "en-US", got.Get("Accept-Language"))
}

func TestFetchClassifiesStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		status    int
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusBadGateway, true},
		{"forbidden", http.StatusForbidden, false},
		{"not found", http.StatusNotFound, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			t.Cleanup(srv.Close)

			_, err := New(Config{Timeout: time.Second}).Fetch(context.Background(), fetcher.Request{Source: "board", URL: srv.URL})
			require.Error(t, err)
			require.Equal(t, tc.transient, scraper.IsTransient(err))
			require.Equal(t, !tc.transient, scraper.IsPermanent(err))
		})
	}
}

func TestFetchCanceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := New(Config{Timeout: 5 * time.Second}).Fetch(ctx, fetcher.Request{Source: "board", URL: srv.URL})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTransportPooledPerProxy(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	direct, err := f.transportFor("")
	require.NoError(t, err)
	again, err := f.transportFor("")
	require.NoError(t, err)
	require.Same(t, direct, again)

	proxied, err := f.transportFor("http://proxy.local:3128")
	require.NoError(t, err)
	require.NotSame(t, direct, proxied)

	proxyURL, err := proxied.Proxy(httptest.NewRequest(http.MethodGet, "https://example.com", nil))
	require.NoError(t, err)
	require.Equal(t, "proxy.local:3128", proxyURL.Host)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	require.NoError(t, classify("s", http.StatusOK, nil))
	require.True(t, scraper.IsPermanent(classify("s", 0, colly.ErrRobotsTxtBlocked)))
	require.True(t, scraper.IsPermanent(classify("s", 0, &url.Error{Op: "parse", URL: "::", Err: errors.New("bad")})))
	require.True(t, scraper.IsTransient(classify("s", 0, errors.New("connection reset by peer"))))
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	req := fetcher.Request{URL: "https://example.com", Headers: http.Header{"X-Trace": {"yes"}}}
	var result fetcher.Response
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))

	u, err := url.Parse("https://example.com")
	require.NoError(t, err)
	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: u},
	})
	require.Equal(t, http.StatusCreated, result.StatusCode)
	require.Equal(t, "ok", result.Headers.Get("X-Resp"))

	hooks.onError(&colly.Response{StatusCode: http.StatusServiceUnavailable}, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
	require.Equal(t, http.StatusServiceUnavailable, result.StatusCode)
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback)   { s.onRequest = cb }
func (s *stubHooks) OnResponse(cb colly.ResponseCallback) { s.onResponse = cb }
func (s *stubHooks) OnError(cb colly.ErrorCallback)       { s.onError = cb }
