package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	apperrors "github.com/open-builders/feedback-relay/internal/common/errors"
	domain "github.com/open-builders/feedback-relay/internal/domain/profile"
	rplatform "github.com/open-builders/feedback-relay/internal/platform/redis"
)

const setRetries = 3

// ProfileCache provides Redis-based caching for profile snapshots.
// SQLite stays the source of truth; cache errors never fail a caller's operation.
type ProfileCache struct {
	client *rplatform.Client
	ttl    time.Duration
}

func NewProfileCache(client *rplatform.Client, ttl time.Duration) *ProfileCache {
	return &ProfileCache{client: client, ttl: ttl}
}

func (c *ProfileCache) keyByID(id int64) string { return fmt.Sprintf("relay:profile:%d", id) }

// Set stores p unless the cached snapshot has the same or a later UpdatedAt.
// The compare and the write run under WATCH, so a slow reader can never put an
// older row back over a fresher one.
func (c *ProfileCache) Set(ctx context.Context, p *domain.Profile) error {
	b, err := json.Marshal(p)
	if err != nil {
		return apperrors.NewCacheError("encode profile", err).WithUserID(p.ID)
	}
	key := c.keyByID(p.ID)

	txf := func(tx *goredis.Tx) error {
		cached, err := decode(tx.Get(ctx, key).Bytes())
		if err != nil {
			return err
		}
		if cached != nil && !p.UpdatedAt.After(cached.UpdatedAt) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, b, c.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < setRetries; i++ {
		err = c.client.Watch(ctx, txf, key)
		if !errors.Is(err, goredis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return apperrors.NewCacheError("set profile", err).WithUserID(p.ID)
	}
	return nil
}

// GetByID returns the cached profile, or nil on a cache miss.
func (c *ProfileCache) GetByID(ctx context.Context, id int64) (*domain.Profile, error) {
	p, err := decode(c.client.Get(ctx, c.keyByID(id)).Bytes())
	if err != nil {
		return nil, apperrors.NewCacheError("get profile", err).WithUserID(id)
	}
	return p, nil
}

// Invalidate removes the cached entry for the user.
func (c *ProfileCache) Invalidate(ctx context.Context, id int64) error {
	if err := c.client.Del(ctx, c.keyByID(id)).Err(); err != nil {
		return apperrors.NewCacheError("invalidate profile", err).WithUserID(id)
	}
	return nil
}

func decode(v []byte, err error) (*domain.Profile, error) {
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var p domain.Profile
	if err := json.Unmarshal(v, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
