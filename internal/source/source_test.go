package source

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

type stubAdapter struct{ id scraper.SourceID }

func (s stubAdapter) ID() scraper.SourceID { return s.id }

func (s stubAdapter) Fetch(context.Context, string, string, scraper.Identity) ([]scraper.JobRecord, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(stubAdapter{id: "remotive"}, stubAdapter{id: "adzuna"})
	require.NoError(t, err)
	require.Equal(t, []scraper.SourceID{"adzuna", "remotive"}, r.IDs())

	require.Error(t, r.Register(stubAdapter{id: "remotive"}))
	require.Error(t, r.Register(stubAdapter{}))

	all, err := r.Resolve(nil)
	require.NoError(t, err)
	require.Len(t, all, 2)

	some, err := r.Resolve([]scraper.SourceID{"adzuna", "linkedin"})
	require.ErrorContains(t, err, "linkedin")
	require.Len(t, some, 1)
}

func TestPlainText(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Build dashboards & reports", PlainText("<p>Build <b>dashboards</b> &amp; reports</p>"))
	require.Equal(t, "plain text", PlainText("  plain \n text "))

	long := strings.Repeat("é", MaxDescription+20)
	require.Len(t, []rune(PlainText(long)), MaxDescription)
}
