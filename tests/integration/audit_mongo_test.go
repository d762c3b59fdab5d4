package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flipswitch/internal/flags"
	"flipswitch/pkg/migrations"
)

func TestMongoAuditStore_AppendAndList(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true, false)

	ctx := context.Background()
	require.NoError(t, migrations.EnsureAuditCollection(ctx, infra.MongoDB))

	store := flags.NewMongoAuditStore(infra.MongoDB)
	actor := flags.Actor{ID: "u-1", Name: "Jordan", Email: "jordan@example.com", Role: "admin"}

	for _, flagKey := range []string{"beta", "beta", "other"} {
		err := store.AppendAuditEntry(ctx, "acme", &flags.AuditEntry{
			Actor:   actor,
			FlagKey: flagKey,
			Action:  flags.ChangeUpdated,
		})
		require.NoError(t, err)
		time.Sleep(timestampDelay)
	}

	entries, err := store.ListAuditEntries(ctx, "acme", "", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "other", entries[0].FlagKey) // newest first
	assert.Equal(t, "u-1", entries[0].Actor.ID)
	assert.Equal(t, "jordan@example.com", entries[0].Actor.Email)
	assert.Nil(t, entries[0].Enabled)

	filtered, err := store.ListAuditEntries(ctx, "acme", "beta", 10)
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	for _, entry := range filtered {
		assert.Equal(t, "beta", entry.FlagKey)
	}

	limited, err := store.ListAuditEntries(ctx, "acme", "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMongoAuditStore_TenantIsolation(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true, false)

	ctx := context.Background()
	store := flags.NewMongoAuditStore(infra.MongoDB)

	require.NoError(t, store.AppendAuditEntry(ctx, "acme", &flags.AuditEntry{
		Actor:   flags.Actor{ID: "u-1"},
		FlagKey: "beta",
		Action:  flags.ChangeCreated,
	}))

	entries, err := store.ListAuditEntries(ctx, "globex", "", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
