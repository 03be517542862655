package system

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.True(t, got.After(before) && got.Before(after))
}

func TestClockSleepHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New().Sleep(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, New().Sleep(context.Background(), time.Millisecond))
}

func TestClockAfterFunc(t *testing.T) {
	t.Parallel()

	var fired atomic.Bool
	New().AfterFunc(time.Millisecond, func() { fired.Store(true) })
	require.Eventually(t, fired.Load, time.Second, 5*time.Millisecond)

	var stopped atomic.Bool
	timer := New().AfterFunc(time.Hour, func() { stopped.Store(true) })
	require.True(t, timer.Stop())
	require.False(t, stopped.Load())
}
