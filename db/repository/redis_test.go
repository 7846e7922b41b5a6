package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newTestRedisRepository(t *testing.T) *RedisRepository {
	t.Helper()
	mr := miniredis.RunT(t)
	repo, err := NewRedisRepository("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRedisRepository_SetAndGetCacheRoundTrips(t *testing.T) {
	repo := newTestRedisRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.SetCache(ctx, "player:1", map[string]string{"name": "Alice"}, time.Minute))

	var got map[string]string
	require.NoError(t, repo.GetCache(ctx, "player:1", &got))
	require.Equal(t, "Alice", got["name"])
}

func TestRedisRepository_GetCacheMissReturnsError(t *testing.T) {
	repo := newTestRedisRepository(t)
	var got map[string]string
	err := repo.GetCache(context.Background(), "missing", &got)
	require.Error(t, err)
}

func TestRedisRepository_DeleteCacheRemovesKey(t *testing.T) {
	repo := newTestRedisRepository(t)
	ctx := context.Background()
	require.NoError(t, repo.SetCache(ctx, "k", "v", time.Minute))
	require.NoError(t, repo.DeleteCache(ctx, "k"))

	var got string
	require.Error(t, repo.GetCache(ctx, "k", &got))
}

func TestRedisRepository_DeleteCachePrefixRemovesOnlyMatching(t *testing.T) {
	repo := newTestRedisRepository(t)
	ctx := context.Background()
	require.NoError(t, repo.SetCache(ctx, "player:1", "a", time.Minute))
	require.NoError(t, repo.SetCache(ctx, "player:2", "b", time.Minute))
	require.NoError(t, repo.SetCache(ctx, "game:1", "c", time.Minute))

	deleted, err := repo.DeleteCachePrefix(ctx, "player:")
	require.NoError(t, err)
	require.Equal(t, 2, deleted)

	var got string
	require.Error(t, repo.GetCache(ctx, "player:1", &got))
	require.NoError(t, repo.GetCache(ctx, "game:1", &got))
}

func TestRedisRepository_IncrementCountsUp(t *testing.T) {
	repo := newTestRedisRepository(t)
	ctx := context.Background()

	first, err := repo.Increment(ctx, "hits")
	require.NoError(t, err)
	require.Equal(t, int64(1), first)

	second, err := repo.Increment(ctx, "hits")
	require.NoError(t, err)
	require.Equal(t, int64(2), second)
}
