package flags

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"flipswitch/internal/constants"
	"flipswitch/internal/logger"
	"flipswitch/pkg/metrics"
)

// Repository is the cache-coherent read path over the durable store. Reads
// go through the cache and fall back to the store; writes hit the store
// first and then synchronously invalidate both the single-flag entry and
// the tenant's list entry.
type Repository interface {
	Get(ctx context.Context, tenant, key string) (*Flag, error)
	List(ctx context.Context, tenant string) ([]Flag, error)
	Write(ctx context.Context, tenant string, flag *Flag) (*Flag, error)
	Delete(ctx context.Context, tenant, key string) (bool, error)
}

type CachedRepository struct {
	store  Store
	cache  Cache
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedRepository(store Store, cache Cache, ttl time.Duration, log logger.Logger) *CachedRepository {
	if ttl <= 0 {
		ttl = constants.DefaultCacheTTL
	}
	return &CachedRepository{store: store, cache: cache, ttl: ttl, logger: log}
}

func flagCacheKey(tenant, key string) string {
	return constants.CacheKeyPrefix + tenant + ":flag:" + key
}

func listCacheKey(tenant string) string {
	return constants.CacheKeyPrefix + tenant + ":flags"
}

func (r *CachedRepository) Get(ctx context.Context, tenant, key string) (*Flag, error) {
	cacheKey := flagCacheKey(tenant, key)

	if data, err := r.cache.Get(ctx, cacheKey); err == nil {
		var flag Flag
		if err := json.Unmarshal(data, &flag); err == nil {
			metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
			return &flag, nil
		}
		r.logger.WarnwCtx(ctx, "Discarding undecodable cache entry", "key", cacheKey)
	} else if !errors.Is(err, ErrCacheMiss) {
		metrics.CacheRequestsTotal.WithLabelValues("error").Inc()
		r.logger.WarnwCtx(ctx, "Cache read failed, falling back to store", "key", cacheKey, "error", err)
	} else {
		metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()
	}

	storeCtx, cancel := context.WithTimeout(ctx, constants.StoreTimeout)
	defer cancel()

	flag, err := r.store.FindFlag(storeCtx, tenant, key)
	if err != nil {
		return nil, err
	}
	if flag == nil {
		return nil, nil
	}

	r.populate(ctx, cacheKey, flag)
	return flag, nil
}

func (r *CachedRepository) List(ctx context.Context, tenant string) ([]Flag, error) {
	cacheKey := listCacheKey(tenant)

	if data, err := r.cache.Get(ctx, cacheKey); err == nil {
		var list []Flag
		if err := json.Unmarshal(data, &list); err == nil {
			metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
			return list, nil
		}
		r.logger.WarnwCtx(ctx, "Discarding undecodable cache entry", "key", cacheKey)
	} else if !errors.Is(err, ErrCacheMiss) {
		metrics.CacheRequestsTotal.WithLabelValues("error").Inc()
		r.logger.WarnwCtx(ctx, "Cache read failed, falling back to store", "key", cacheKey, "error", err)
	} else {
		metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()
	}

	storeCtx, cancel := context.WithTimeout(ctx, constants.StoreTimeout)
	defer cancel()

	list, err := r.store.ListFlags(storeCtx, tenant)
	if err != nil {
		return nil, err
	}

	r.populate(ctx, cacheKey, list)
	return list, nil
}

// Write persists first, then invalidates. The order matters: invalidating
// before the store commit could let a concurrent read repopulate the cache
// with pre-write state.
func (r *CachedRepository) Write(ctx context.Context, tenant string, flag *Flag) (*Flag, error) {
	storeCtx, cancel := context.WithTimeout(ctx, constants.StoreTimeout)
	defer cancel()

	written, err := r.store.UpsertFlag(storeCtx, tenant, flag)
	if err != nil {
		return nil, err
	}

	r.invalidate(ctx, tenant, flag.Key)
	return written, nil
}

func (r *CachedRepository) Delete(ctx context.Context, tenant, key string) (bool, error) {
	storeCtx, cancel := context.WithTimeout(ctx, constants.StoreTimeout)
	defer cancel()

	deleted, err := r.store.DeleteFlag(storeCtx, tenant, key)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}

	r.invalidate(ctx, tenant, key)
	return true, nil
}

func (r *CachedRepository) populate(ctx context.Context, cacheKey string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := r.cache.SetWithTTL(ctx, cacheKey, data, r.ttl); err != nil {
		r.logger.WarnwCtx(ctx, "Cache populate failed", "key", cacheKey, "error", err)
	}
}

func (r *CachedRepository) invalidate(ctx context.Context, tenant, key string) {
	if err := r.cache.Delete(ctx, flagCacheKey(tenant, key), listCacheKey(tenant)); err != nil {
		// The bounded TTL caps how long the stale entry can survive this.
		r.logger.ErrorwCtx(ctx, "Cache invalidation failed",
			"tenant", tenant, "flag_key", key, "error", err)
	}
}
