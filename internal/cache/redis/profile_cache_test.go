package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/open-builders/feedback-relay/internal/common/errors"
	domain "github.com/open-builders/feedback-relay/internal/domain/profile"
	rplatform "github.com/open-builders/feedback-relay/internal/platform/redis"
)

func setupCache(t *testing.T, ttl time.Duration) (*ProfileCache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client, err := rplatform.Open(context.Background(), s.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewProfileCache(client, ttl), s
}

func TestProfileCacheRoundTrip(t *testing.T) {
	cache, _ := setupCache(t, time.Minute)
	ctx := context.Background()

	p := &domain.Profile{ID: 5, DisplayName: "Alice", Handle: "alice99"}
	require.NoError(t, cache.Set(ctx, p))

	got, err := cache.GetByID(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Alice", got.DisplayName)
	assert.Equal(t, "alice99", got.Handle)
}

func TestProfileCacheMissIsNil(t *testing.T) {
	cache, _ := setupCache(t, time.Minute)

	got, err := cache.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestProfileCacheExpires(t *testing.T) {
	cache, s := setupCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, &domain.Profile{ID: 5, DisplayName: "Alice"}))
	s.FastForward(2 * time.Minute)

	got, err := cache.GetByID(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestProfileCacheInvalidate(t *testing.T) {
	cache, s := setupCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, &domain.Profile{ID: 5, DisplayName: "Alice"}))
	require.NoError(t, cache.Invalidate(ctx, 5))

	assert.False(t, s.Exists("relay:profile:5"))
}

func TestProfileCacheKeepsNewerSnapshot(t *testing.T) {
	cache, _ := setupCache(t, time.Minute)
	ctx := context.Background()
	t0 := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, cache.Set(ctx, &domain.Profile{ID: 5, DisplayName: "Alice B", UpdatedAt: t0.Add(time.Second)}))
	require.NoError(t, cache.Set(ctx, &domain.Profile{ID: 5, DisplayName: "Alice", UpdatedAt: t0}))

	got, err := cache.GetByID(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "Alice B", got.DisplayName)

	require.NoError(t, cache.Set(ctx, &domain.Profile{ID: 5, DisplayName: "Alice C", UpdatedAt: t0.Add(2 * time.Second)}))
	got, err = cache.GetByID(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "Alice C", got.DisplayName)
}

func TestProfileCacheErrorsAreTagged(t *testing.T) {
	cache, s := setupCache(t, time.Minute)
	ctx := context.Background()
	s.Close()

	_, err := cache.GetByID(ctx, 5)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCacheError))
	err = cache.Set(ctx, &domain.Profile{ID: 5})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCacheError))
	err = cache.Invalidate(ctx, 5)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCacheError))
	assert.False(t, apperrors.IsStorage(err))
}
