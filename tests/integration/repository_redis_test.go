package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flipswitch/internal/flags"
	"flipswitch/internal/logger"
)

func TestCachedRepository_ReadThrough(t *testing.T) {
	infra := SetupTestInfra(t)

	store := flags.NewPostgresStore(infra.PostgresDB)
	cache := flags.NewRedisCache(infra.RedisClient)
	repo := flags.NewCachedRepository(store, cache, time.Minute, logger.NopLogger())
	ctx := context.Background()

	_, err := store.UpsertFlag(ctx, "acme", testFlag("beta",
		flags.Rule{Attribute: "plan", Comparator: flags.ComparatorEquals, Value: "pro", Rollout: 100},
	))
	require.NoError(t, err)

	flag, err := repo.Get(ctx, "acme", "beta")
	require.NoError(t, err)
	require.NotNil(t, flag)

	exists, err := infra.RedisClient.Exists(ctx, "flipswitch:acme:flag:beta").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)

	// Second read is served from redis even after the row disappears.
	_, err = infra.PostgresDB.ExecContext(ctx,
		`DELETE FROM flags WHERE tenant = 'acme' AND key = 'beta'`)
	require.NoError(t, err)

	cached, err := repo.Get(ctx, "acme", "beta")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "beta", cached.Key)
}

func TestCachedRepository_WriteInvalidates(t *testing.T) {
	infra := SetupTestInfra(t)

	store := flags.NewPostgresStore(infra.PostgresDB)
	cache := flags.NewRedisCache(infra.RedisClient)
	repo := flags.NewCachedRepository(store, cache, time.Minute, logger.NopLogger())
	ctx := context.Background()

	_, err := repo.Write(ctx, "acme", testFlag("beta"))
	require.NoError(t, err)

	// Warm both cache entries.
	_, err = repo.Get(ctx, "acme", "beta")
	require.NoError(t, err)
	_, err = repo.List(ctx, "acme")
	require.NoError(t, err)

	updated := testFlag("beta")
	updated.DefaultValue = true
	_, err = repo.Write(ctx, "acme", updated)
	require.NoError(t, err)

	exists, err := infra.RedisClient.Exists(ctx, "flipswitch:acme:flag:beta", "flipswitch:acme:flags").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)

	flag, err := repo.Get(ctx, "acme", "beta")
	require.NoError(t, err)
	assert.True(t, flag.DefaultValue)
}

func TestCachedRepository_DeleteInvalidates(t *testing.T) {
	infra := SetupTestInfra(t)

	store := flags.NewPostgresStore(infra.PostgresDB)
	cache := flags.NewRedisCache(infra.RedisClient)
	repo := flags.NewCachedRepository(store, cache, time.Minute, logger.NopLogger())
	ctx := context.Background()

	_, err := repo.Write(ctx, "acme", testFlag("beta"))
	require.NoError(t, err)
	_, err = repo.Get(ctx, "acme", "beta")
	require.NoError(t, err)

	deleted, err := repo.Delete(ctx, "acme", "beta")
	require.NoError(t, err)
	assert.True(t, deleted)

	exists, err := infra.RedisClient.Exists(ctx, "flipswitch:acme:flag:beta").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)

	flag, err := repo.Get(ctx, "acme", "beta")
	require.NoError(t, err)
	assert.Nil(t, flag)
}

func TestCachedRepository_ListReadThrough(t *testing.T) {
	infra := SetupTestInfra(t)

	store := flags.NewPostgresStore(infra.PostgresDB)
	cache := flags.NewRedisCache(infra.RedisClient)
	repo := flags.NewCachedRepository(store, cache, time.Minute, logger.NopLogger())
	ctx := context.Background()

	_, err := store.UpsertFlag(ctx, "acme", testFlag("one"))
	require.NoError(t, err)
	_, err = store.UpsertFlag(ctx, "acme", testFlag("two"))
	require.NoError(t, err)

	list, err := repo.List(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	exists, err := infra.RedisClient.Exists(ctx, "flipswitch:acme:flags").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
}
