package blocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"residia/internal/model"
)

// Source loads the flat block list of a community.
type Source interface {
	ListBlocks(ctx context.Context, communityID int64) ([]model.Block, error)
}

type cachedForest struct {
	forest   *Forest
	loadedAt time.Time
}

// Resolver expands block ids to their jurisdiction.
// Built forests are cached in-process; the raw block list can additionally be cached in Redis.
type Resolver struct {
	source Source
	ttl    time.Duration
	logger zerolog.Logger

	redis    *redis.Client
	redisTTL time.Duration

	mu      sync.Mutex
	forests map[int64]cachedForest
	now     func() time.Time
}

// NewResolver creates a resolver. ttl <= 0 disables the in-process cache.
func NewResolver(source Source, ttl time.Duration, logger zerolog.Logger) *Resolver {
	return &Resolver{
		source:  source,
		ttl:     ttl,
		logger:  logger.With().Str("component", "blocks").Logger(),
		forests: make(map[int64]cachedForest),
		now:     time.Now,
	}
}

// UseRedisCache configures optional Redis caching of community block lists.
func (r *Resolver) UseRedisCache(client *redis.Client, ttl time.Duration) {
	r.redis = client
	r.redisTTL = ttl
}

// ExpandDescendants returns base ∪ all descendants of base within the community.
func (r *Resolver) ExpandDescendants(ctx context.Context, communityID int64, base []int64) ([]int64, error) {
	if len(base) == 0 {
		return []int64{}, nil
	}
	forest, err := r.Forest(ctx, communityID)
	if err != nil {
		return nil, err
	}
	return forest.Expand(base), nil
}

// AllBlocks returns every block id of the community.
func (r *Resolver) AllBlocks(ctx context.Context, communityID int64) ([]int64, error) {
	forest, err := r.Forest(ctx, communityID)
	if err != nil {
		return nil, err
	}
	return forest.All(), nil
}

// Forest returns the community's block forest, loading it when not cached.
func (r *Resolver) Forest(ctx context.Context, communityID int64) (*Forest, error) {
	if f, ok := r.cached(communityID); ok {
		return f, nil
	}

	list, err := r.load(ctx, communityID)
	if err != nil {
		return nil, err
	}
	forest := NewForest(list)

	if r.ttl > 0 {
		r.mu.Lock()
		r.forests[communityID] = cachedForest{forest: forest, loadedAt: r.now()}
		r.mu.Unlock()
	}
	return forest, nil
}

// Invalidate drops cached data for the community after its block tree changed.
func (r *Resolver) Invalidate(ctx context.Context, communityID int64) {
	r.mu.Lock()
	delete(r.forests, communityID)
	r.mu.Unlock()

	if r.redis != nil {
		if err := r.redis.Del(ctx, cacheKey(communityID)).Err(); err != nil {
			r.logger.Warn().Err(err).Int64("community_id", communityID).Msg("failed to drop cached blocks")
		}
	}
}

func (r *Resolver) cached(communityID int64) (*Forest, bool) {
	if r.ttl <= 0 {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.forests[communityID]
	if !ok || r.now().Sub(c.loadedAt) > r.ttl {
		return nil, false
	}
	return c.forest, true
}

func (r *Resolver) load(ctx context.Context, communityID int64) ([]model.Block, error) {
	key := cacheKey(communityID)
	var list []model.Block
	if r.readCache(ctx, key, &list) {
		return list, nil
	}

	list, err := r.source.ListBlocks(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("list blocks of community %d: %w", communityID, err)
	}
	r.writeCache(ctx, key, list)
	return list, nil
}

func (r *Resolver) readCache(ctx context.Context, key string, out any) bool {
	if r.redis == nil || r.redisTTL <= 0 {
		return false
	}
	val, err := r.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (r *Resolver) writeCache(ctx context.Context, key string, val any) {
	if r.redis == nil || r.redisTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := r.redis.Set(ctx, key, data, r.redisTTL).Err(); err != nil {
		r.logger.Debug().Err(err).Str("key", key).Msg("block cache write failed")
	}
}

func cacheKey(communityID int64) string {
	return fmt.Sprintf("blocks:%d", communityID)
}
