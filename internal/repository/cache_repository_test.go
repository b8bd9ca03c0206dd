package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/portal-estudiante-api/pkg/errors"
)

func newCacheRepo(t *testing.T) (*CacheRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheRepository(client, nil), mr
}

func TestCacheRepositorySetGetDelete(t *testing.T) {
	repo, mr := newCacheRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "notifications:unread:s1", 4, time.Minute))
	var count int
	require.NoError(t, repo.Get(ctx, "notifications:unread:s1", &count))
	assert.Equal(t, 4, count)
	assert.Equal(t, time.Minute, mr.TTL("notifications:unread:s1"))

	require.NoError(t, repo.Delete(ctx, "notifications:unread:s1"))
	assert.ErrorIs(t, repo.Get(ctx, "notifications:unread:s1", &count), appErrors.ErrCacheMiss)
}

func TestCacheRepositoryDeleteByPattern(t *testing.T) {
	repo, mr := newCacheRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "notifications:unread:a", 1, 0))
	require.NoError(t, repo.Set(ctx, "notifications:unread:b", 2, 0))
	require.NoError(t, repo.Set(ctx, "other", 3, 0))

	require.NoError(t, repo.DeleteByPattern(ctx, "notifications:unread:*"))
	assert.False(t, mr.Exists("notifications:unread:a"))
	assert.False(t, mr.Exists("notifications:unread:b"))
	assert.True(t, mr.Exists("other"))
}

func TestCacheRepositoryNilClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	var v int
	assert.ErrorIs(t, repo.Get(context.Background(), "k", &v), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "k", 1, 0))
	assert.NoError(t, repo.Delete(context.Background(), "k"))
	assert.NoError(t, repo.Close())
}
