package cache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headline-goat/vwo-pulse/internal/cache"
	"github.com/headline-goat/vwo-pulse/internal/experiments"
	"github.com/headline-goat/vwo-pulse/internal/vwo"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type loader struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (l *loader) Load(ctx context.Context, b cache.Bucket) ([]experiments.Experiment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return []experiments.Experiment{{ID: int64(l.calls), Status: b.Status}}, nil
}

func (l *loader) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func setup(opts ...cache.Option) (*cache.Cache, *loader, *clock) {
	clk := &clock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	l := &loader{}
	c := cache.New(l.Load, cache.DefaultTTLs(), append([]cache.Option{cache.WithClock(clk.Now)}, opts...)...)
	return c, l, clk
}

var running = cache.NewBucket(vwo.StatusRunning, nil)

func TestGet_RunningTTL(t *testing.T) {
	c, l, clk := setup()
	ctx := context.Background()

	first, err := c.Get(ctx, running)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 1, l.Calls())

	clk.Advance(29 * time.Minute)
	second, err := c.Get(ctx, running)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.LastUpdate, second.LastUpdate)
	assert.Equal(t, 1, l.Calls())

	clk.Advance(2 * time.Minute)
	third, err := c.Get(ctx, running)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, 2, l.Calls())
}

func TestGet_TTLBoundary(t *testing.T) {
	c, l, clk := setup()
	ctx := context.Background()

	_, err := c.Get(ctx, running)
	require.NoError(t, err)

	clk.Advance(30*time.Minute - time.Millisecond)
	r, err := c.Get(ctx, running)
	require.NoError(t, err)
	assert.True(t, r.Cached, "TTL-1ms is fresh")

	clk.Advance(time.Millisecond)
	r, err = c.Get(ctx, running)
	require.NoError(t, err)
	assert.False(t, r.Cached, "exactly TTL is stale")
	assert.Equal(t, 2, l.Calls())
}

func TestGet_PerStatusTTL(t *testing.T) {
	c, l, clk := setup()
	ctx := context.Background()
	draft := cache.NewBucket(vwo.StatusDraft, nil)

	_, err := c.Get(ctx, draft)
	require.NoError(t, err)

	clk.Advance(45 * time.Minute)
	r, err := c.Get(ctx, draft)
	require.NoError(t, err)
	assert.True(t, r.Cached, "drafts live for an hour")
	assert.Equal(t, 1, l.Calls())
}

func TestGet_BucketsAreIndependent(t *testing.T) {
	c, l, _ := setup()
	ctx := context.Background()

	_, err := c.Get(ctx, running)
	require.NoError(t, err)
	_, err = c.Get(ctx, cache.NewBucket(vwo.StatusPaused, nil))
	require.NoError(t, err)
	_, err = c.Get(ctx, cache.NewBucket(vwo.StatusRunning, []string{vwo.TypeAB}))
	require.NoError(t, err)
	assert.Equal(t, 3, l.Calls())

	// same types in another order hit the same bucket
	r, err := c.Get(ctx, cache.NewBucket(vwo.StatusRunning, []string{vwo.TypeSplitURL, vwo.TypeAB, vwo.TypeMultivariate, vwo.TypeAB}))
	require.NoError(t, err)
	assert.True(t, r.Cached)
}

func TestGet_ErrorLeavesBucketUntouched(t *testing.T) {
	c, l, clk := setup()
	ctx := context.Background()

	good, err := c.Get(ctx, running)
	require.NoError(t, err)

	clk.Advance(31 * time.Minute)
	l.err = errors.New("upstream down")
	_, err = c.Get(ctx, running)
	require.Error(t, err)

	// a later success replaces it; before that the old timestamp stands
	l.err = nil
	r, err := c.Get(ctx, running)
	require.NoError(t, err)
	assert.False(t, r.Cached)
	assert.True(t, r.LastUpdate.After(good.LastUpdate))
}

func TestGet_ErrorOnEmptyPropagates(t *testing.T) {
	c, l, _ := setup()
	l.err = errors.New("boom")

	_, err := c.Get(context.Background(), running)
	assert.EqualError(t, err, "boom")

	_, err = c.Get(context.Background(), running)
	assert.Error(t, err, "failed load must not populate the bucket")
	assert.Equal(t, 2, l.Calls())
}

func TestGet_ServeStale(t *testing.T) {
	c, l, clk := setup(cache.WithServeStale(true))
	ctx := context.Background()

	good, err := c.Get(ctx, running)
	require.NoError(t, err)

	clk.Advance(time.Hour)
	l.err = errors.New("upstream down")
	r, err := c.Get(ctx, running)
	require.NoError(t, err)
	assert.True(t, r.Stale)
	assert.Equal(t, good.Experiments, r.Experiments)
	assert.Equal(t, good.LastUpdate, r.LastUpdate)
}

func TestInvalidate(t *testing.T) {
	c, l, _ := setup()
	ctx := context.Background()
	paused := cache.NewBucket(vwo.StatusPaused, nil)

	_, _ = c.Get(ctx, running)
	_, _ = c.Get(ctx, paused)

	assert.Equal(t, 1, c.Invalidate(vwo.StatusRunning))

	r, err := c.Get(ctx, paused)
	require.NoError(t, err)
	assert.True(t, r.Cached)

	r, err = c.Get(ctx, running)
	require.NoError(t, err)
	assert.False(t, r.Cached)
	assert.Equal(t, 3, l.Calls())

	assert.Equal(t, 2, c.Invalidate(""))
}

func TestGet_EmptyResultIsCached(t *testing.T) {
	clk := &clock{t: time.Now()}
	calls := 0
	c := cache.New(func(ctx context.Context, b cache.Bucket) ([]experiments.Experiment, error) {
		calls++
		return nil, nil
	}, nil, cache.WithClock(clk.Now))

	r, err := c.Get(context.Background(), running)
	require.NoError(t, err)
	assert.NotNil(t, r.Experiments)
	assert.Empty(t, r.Experiments)

	r, err = c.Get(context.Background(), running)
	require.NoError(t, err)
	assert.True(t, r.Cached)
	assert.Equal(t, 1, calls)
}
