package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stackfield/tenantdb/internal/models"
	"github.com/stackfield/tenantdb/internal/store"
	"github.com/stretchr/testify/require"
)

func newEntry(orgID int64, storeName string) *models.DirectoryEntry {
	now := time.Now()
	return &models.DirectoryEntry{
		OrgID:     orgID,
		StoreName: storeName,
		State:     models.ProvisionStatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestDirectoryStoreEntryUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewDirectoryStore()

	require.NoError(t, s.CreateEntry(ctx, newEntry(1, "tenant_1")))

	t.Run("duplicate organization", func(t *testing.T) {
		err := s.CreateEntry(ctx, newEntry(1, "tenant_1_other"))

		var conflict *store.ProvisioningConflictError
		require.ErrorAs(t, err, &conflict)
		require.Equal(t, int64(1), conflict.OrgID)
	})

	t.Run("duplicate store name", func(t *testing.T) {
		err := s.CreateEntry(ctx, newEntry(2, "tenant_1"))

		var conflict *store.ProvisioningConflictError
		require.ErrorAs(t, err, &conflict)
	})

	entries, err := s.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestDirectoryStoreGetEntry(t *testing.T) {
	ctx := context.Background()
	s := NewDirectoryStore()

	_, err := s.GetEntry(ctx, 404)
	require.ErrorIs(t, err, store.ErrEntryNotFound)

	require.NoError(t, s.CreateEntry(ctx, newEntry(3, "tenant_3")))

	entry, err := s.GetEntry(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, "tenant_3", entry.StoreName)

	// Returned entries are clones; mutating them does not leak back.
	entry.StoreName = "mutated"
	again, err := s.GetEntry(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, "tenant_3", again.StoreName)
}

func TestDirectoryStoreAdvanceEntryState(t *testing.T) {
	ctx := context.Background()
	s := NewDirectoryStore()

	require.NoError(t, s.CreateEntry(ctx, newEntry(5, "tenant_5")))

	err := s.AdvanceEntryState(ctx, 5, models.ProvisionStatePending, models.ProvisionStateStoreCreated)
	require.NoError(t, err)

	// Compare-and-set: advancing from a stale state is a conflict.
	err = s.AdvanceEntryState(ctx, 5, models.ProvisionStatePending, models.ProvisionStateStoreCreated)
	require.ErrorIs(t, err, store.ErrStateConflict)

	err = s.AdvanceEntryState(ctx, 404, models.ProvisionStatePending, models.ProvisionStateStoreCreated)
	require.ErrorIs(t, err, store.ErrEntryNotFound)

	entry, err := s.GetEntry(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, models.ProvisionStateStoreCreated, entry.State)
}

func TestDirectoryStoreListEntriesInState(t *testing.T) {
	ctx := context.Background()
	s := NewDirectoryStore()

	require.NoError(t, s.CreateEntry(ctx, newEntry(1, "tenant_1")))
	require.NoError(t, s.CreateEntry(ctx, newEntry(2, "tenant_2")))
	require.NoError(t, s.AdvanceEntryState(ctx, 2, models.ProvisionStatePending, models.ProvisionStateStoreCreated))

	pending, err := s.ListEntriesInState(ctx, models.ProvisionStatePending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, int64(1), pending[0].OrgID)

	stuck, err := s.ListEntriesInState(ctx, models.ProvisionStatePending, models.ProvisionStateStoreCreated)
	require.NoError(t, err)
	require.Len(t, stuck, 2)
}
