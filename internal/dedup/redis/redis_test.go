package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

type fakeRedis struct {
	mu   sync.Mutex
	keys map[string]time.Duration
	err  error
}

func (f *fakeRedis) SetNX(_ context.Context, key string, _ any, ttl time.Duration) *goredis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return goredis.NewBoolResult(false, f.err)
	}
	if _, ok := f.keys[key]; ok {
		return goredis.NewBoolResult(false, nil)
	}
	f.keys[key] = ttl
	return goredis.NewBoolResult(true, nil)
}

func TestMarkSeenUsesPrefixAndTTL(t *testing.T) {
	t.Parallel()
	fr := &fakeRedis{keys: map[string]time.Duration{}}
	s, err := newStore(fr, Config{Retention: 720 * time.Hour})
	require.NoError(t, err)

	ok, err := s.MarkSeen(context.Background(), scraper.SeenJob{Fingerprint: "abc", Source: "remotive"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 720*time.Hour, fr.keys[DefaultKeyPrefix+"abc"])

	ok, err = s.MarkSeen(context.Background(), scraper.SeenJob{Fingerprint: "abc"})
	require.NoError(t, err)
	require.False(t, ok)

	n, err := s.Prune(context.Background(), time.Now())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestMarkSeenPropagatesErrors(t *testing.T) {
	t.Parallel()
	s, err := newStore(&fakeRedis{keys: map[string]time.Duration{}, err: errors.New("READONLY")}, Config{Retention: time.Hour})
	require.NoError(t, err)

	_, err = s.MarkSeen(context.Background(), scraper.SeenJob{Fingerprint: "abc"})
	require.ErrorContains(t, err, "READONLY")
}

func TestNewValidates(t *testing.T) {
	t.Parallel()
	_, err := New(nil, Config{Retention: time.Hour})
	require.Error(t, err)
	_, err = newStore(&fakeRedis{}, Config{})
	require.Error(t, err)
}
