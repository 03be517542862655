package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

func TestMarkerMarkSeenAndPrune(t *testing.T) {
	t.Parallel()
	m := New()
	ctx := context.Background()
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	ok, err := m.MarkSeen(ctx, scraper.SeenJob{Fingerprint: "a", FirstSeen: old})
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = m.MarkSeen(ctx, scraper.SeenJob{Fingerprint: "a", FirstSeen: old.Add(time.Hour)})
	require.NoError(t, err)
	require.False(t, ok)
	_, err = m.MarkSeen(ctx, scraper.SeenJob{Fingerprint: "b", FirstSeen: old.Add(48 * time.Hour)})
	require.NoError(t, err)

	n, err := m.Prune(ctx, old.Add(24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Equal(t, 1, m.Len())
}
