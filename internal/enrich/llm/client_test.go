package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejaschuahan/job-scraper-bot/internal/enrich"
	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

func TestSummarize(t *testing.T) {
	t.Parallel()

	requests := make(chan chatRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests <- req
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  • SQL, 2 years\n• $90k\n• Fully remote  "}}]}`))
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/v1/", APIKey: "secret", Model: "m"})
	require.NoError(t, err)

	sum, err := c.Summarize(context.Background(), scraper.JobRecord{
		Title:       "Data Analyst",
		Company:     "Acme",
		Description: strings.Repeat("x", 3000),
	})
	require.NoError(t, err)
	assert.Equal(t, "• SQL, 2 years\n• $90k\n• Fully remote", sum.Text)

	req := <-requests
	assert.Equal(t, "m", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Contains(t, req.Messages[1].Content, "Company: Acme")
	assert.Contains(t, req.Messages[1].Content, "Location: N/A")
	assert.Less(t, len(req.Messages[1].Content), 1200)
}

func TestSummarizeFailuresAreUnavailable(t *testing.T) {
	t.Parallel()

	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		},
		"api error": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"error":{"message":"quota"}}`))
		},
		"no choices": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		},
		"garbage": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(h)
			t.Cleanup(srv.Close)
			c, err := New(Config{BaseURL: srv.URL, APIKey: "k"})
			require.NoError(t, err)
			_, err = c.Summarize(context.Background(), scraper.JobRecord{Title: "t"})
			require.ErrorIs(t, err, enrich.ErrUnavailable)
		})
	}
}

func TestNewRequiresKey(t *testing.T) {
	t.Parallel()
	_, err := New(Config{})
	require.Error(t, err)
}

func TestNoop(t *testing.T) {
	t.Parallel()
	_, err := enrich.Noop{}.Summarize(context.Background(), scraper.JobRecord{})
	require.ErrorIs(t, err, enrich.ErrUnavailable)
}
