package registry

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestRegistry(t *testing.T, maxWorkers int, timeout time.Duration) (*Registry, *clock) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	return New(rdb, maxWorkers, timeout, WithClock(clk.Now)), clk
}

func TestTryRegister_UpToCapacity(t *testing.T) {
	r, _ := newTestRegistry(t, 2, time.Minute)
	ctx := context.Background()

	ok, err := r.TryRegister(ctx, "aaaa")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.TryRegister(ctx, "aaab")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.TryRegister(ctx, "aaac")
	require.NoError(t, err)
	assert.False(t, ok, "third registration should be rejected at capacity 2")

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTryRegister_RejectsDuplicate(t *testing.T) {
	r, _ := newTestRegistry(t, 5, time.Minute)
	ctx := context.Background()

	ok, err := r.TryRegister(ctx, "aaaa")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.TryRegister(ctx, "aaaa")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUnregister_FreesSlot(t *testing.T) {
	r, _ := newTestRegistry(t, 1, time.Minute)
	ctx := context.Background()

	ok, err := r.TryRegister(ctx, "aaaa")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, r.Unregister(ctx, "aaaa"))

	ok, err = r.TryRegister(ctx, "aaab")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnregister_Idempotent(t *testing.T) {
	r, _ := newTestRegistry(t, 1, time.Minute)
	ctx := context.Background()

	require.NoError(t, r.Unregister(ctx, "never-registered"))
	require.NoError(t, r.Unregister(ctx, "never-registered"))
}

func TestMembers_ReturnsCurrentSet(t *testing.T) {
	r, _ := newTestRegistry(t, 5, time.Minute)
	ctx := context.Background()

	for _, p := range []string{"aaaa", "aaab"} {
		ok, err := r.TryRegister(ctx, p)
		require.NoError(t, err)
		require.True(t, ok)
	}

	members, err := r.Members(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"aaaa", "aaab"}, members)
}

func TestStaleEviction(t *testing.T) {
	r, clk := newTestRegistry(t, 2, time.Minute)
	ctx := context.Background()

	ok, err := r.TryRegister(ctx, "aaaa")
	require.NoError(t, err)
	require.True(t, ok)

	// A second registration well within the timeout.
	clk.Advance(50 * time.Second)
	ok, err = r.TryRegister(ctx, "aaab")
	require.NoError(t, err)
	require.True(t, ok)

	// 70s after "aaaa" started: it is past the 60s timeout, "aaab" is not.
	clk.Advance(20 * time.Second)
	members, err := r.Members(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaab"}, members)

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStaleEviction_MissingTimestamp(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r := New(rdb, 5, time.Minute)
	ctx := context.Background()

	ok, err := r.TryRegister(ctx, "aaaa")
	require.NoError(t, err)
	require.True(t, ok)

	// A member whose timestamp was deleted out from under the registry is
	// reclaimed on the next read.
	require.NoError(t, rdb.SAdd(ctx, "active_searches", "orphan").Err())

	members, err := r.Members(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaa"}, members)

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStaleEviction_FreesCapacity(t *testing.T) {
	r, clk := newTestRegistry(t, 1, time.Minute)
	ctx := context.Background()

	ok, err := r.TryRegister(ctx, "aaaa")
	require.NoError(t, err)
	require.True(t, ok)

	clk.Advance(2 * time.Minute)

	// Count runs eviction first, so the crashed worker's slot is free.
	n, err := r.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	ok, err = r.TryRegister(ctx, "aaab")
	require.NoError(t, err)
	assert.True(t, ok)
}
