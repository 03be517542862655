package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterWaitPacesPerSource(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "remotive"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "remotive"))
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// A different source has its own bucket.
	start = time.Now()
	require.NoError(t, l.Wait(ctx, "adzuna"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterOverrideAndUnlimited(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.001, PerSourceRPS: map[string]float64{"fast": 0}})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(ctx, "fast"))
	}
}

func TestLimiterWaitCanceled(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.01, DefaultBurst: 1})
	require.NoError(t, l.Wait(context.Background(), "slow"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "slow"))
}
