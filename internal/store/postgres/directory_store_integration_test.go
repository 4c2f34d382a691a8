//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stackfield/tenantdb/internal/models"
	"github.com/stackfield/tenantdb/internal/store"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (string, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "directory",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://test:test@%s:%s/directory?sslmode=disable", host, port.Port())

	cleanup := func() {
		_ = container.Terminate(ctx)
	}

	return connString, cleanup
}

func setupDirectoryPool(t *testing.T, ctx context.Context, connString string) *pgxpool.Pool {
	pool, err := NewPool(ctx, &PoolConfig{ConnString: connString})
	require.NoError(t, err)

	err = MigrateDirectory(ctx, pool)
	require.NoError(t, err)

	return pool
}

func TestIntegration_DirectoryStore(t *testing.T) {
	ctx := context.Background()
	connString, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	pool := setupDirectoryPool(t, ctx, connString)
	defer pool.Close()

	s := NewDirectoryStore(pool)

	t.Run("organizations", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Microsecond)
		org := &models.Organization{
			ID:           1,
			ExternalID:   uuid.New(),
			Name:         "Acme Corp",
			ContactEmail: "ops@acme.example",
			BillingTier:  "enterprise",
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		require.NoError(t, s.CreateOrganization(ctx, org))

		got, err := s.GetOrganization(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, org.Name, got.Name)
		require.Equal(t, org.ExternalID, got.ExternalID)
		require.Equal(t, org.BillingTier, got.BillingTier)

		_, err = s.GetOrganization(ctx, 404)
		require.ErrorIs(t, err, store.ErrOrganizationNotFound)
	})

	t.Run("entries", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Microsecond)
		entry := &models.DirectoryEntry{
			OrgID:     5,
			StoreName: "tenant_5",
			State:     models.ProvisionStatePending,
			CreatedAt: now,
			UpdatedAt: now,
		}

		require.NoError(t, s.CreateEntry(ctx, entry))

		got, err := s.GetEntry(ctx, 5)
		require.NoError(t, err)
		require.Equal(t, "tenant_5", got.StoreName)
		require.Equal(t, models.ProvisionStatePending, got.State)

		_, err = s.GetEntry(ctx, 404)
		require.ErrorIs(t, err, store.ErrEntryNotFound)
	})

	t.Run("unique constraints pick one winner", func(t *testing.T) {
		now := time.Now()

		err := s.CreateEntry(ctx, &models.DirectoryEntry{
			OrgID:     5,
			StoreName: "tenant_5_other",
			State:     models.ProvisionStatePending,
			CreatedAt: now,
			UpdatedAt: now,
		})
		var conflict *store.ProvisioningConflictError
		require.ErrorAs(t, err, &conflict)

		err = s.CreateEntry(ctx, &models.DirectoryEntry{
			OrgID:     6,
			StoreName: "tenant_5",
			State:     models.ProvisionStatePending,
			CreatedAt: now,
			UpdatedAt: now,
		})
		require.ErrorAs(t, err, &conflict)

		entries, err := s.ListEntries(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
	})

	t.Run("advance state", func(t *testing.T) {
		err := s.AdvanceEntryState(ctx, 5, models.ProvisionStatePending, models.ProvisionStateStoreCreated)
		require.NoError(t, err)

		err = s.AdvanceEntryState(ctx, 5, models.ProvisionStatePending, models.ProvisionStateStoreCreated)
		require.ErrorIs(t, err, store.ErrStateConflict)

		err = s.AdvanceEntryState(ctx, 404, models.ProvisionStatePending, models.ProvisionStateStoreCreated)
		require.ErrorIs(t, err, store.ErrEntryNotFound)

		stuck, err := s.ListEntriesInState(ctx, models.ProvisionStateStoreCreated)
		require.NoError(t, err)
		require.Len(t, stuck, 1)
		require.Equal(t, int64(5), stuck[0].OrgID)
	})

	t.Run("migrations are idempotent", func(t *testing.T) {
		require.NoError(t, MigrateDirectory(ctx, pool))
	})
}

func TestIntegration_Admin(t *testing.T) {
	ctx := context.Background()
	connString, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	pool, err := NewPool(ctx, &PoolConfig{ConnString: connString})
	require.NoError(t, err)
	defer pool.Close()

	admin := NewAdmin(pool)

	t.Run("create store", func(t *testing.T) {
		require.NoError(t, admin.CreateStore(ctx, "tenant_it_1"))

		names, err := admin.ListStores(ctx, "tenant_")
		require.NoError(t, err)
		require.Equal(t, []string{"tenant_it_1"}, names)
	})

	t.Run("create is not idempotent", func(t *testing.T) {
		err := admin.CreateStore(ctx, "tenant_it_1")

		var conflict *store.ProvisioningConflictError
		require.ErrorAs(t, err, &conflict)
		require.Equal(t, "tenant_it_1", conflict.StoreName)
	})

	t.Run("store is connectable", func(t *testing.T) {
		desc, err := ParseDescriptor(connString)
		require.NoError(t, err)

		tenantPool, err := NewPool(ctx, &PoolConfig{ConnString: desc.WithDatabase("tenant_it_1").ConnString()})
		require.NoError(t, err)
		defer tenantPool.Close()

		require.NoError(t, ApplyTenantSchema(ctx, tenantPool))

		var n int
		err = tenantPool.QueryRow(ctx, "SELECT count(*) FROM tenant_info").Scan(&n)
		require.NoError(t, err)
		require.Equal(t, 0, n)
	})

	t.Run("drop store", func(t *testing.T) {
		require.NoError(t, admin.DropStore(ctx, "tenant_it_1"))

		names, err := admin.ListStores(ctx, "tenant_")
		require.NoError(t, err)
		require.Empty(t, names)

		// Dropping a missing store is a no-op.
		require.NoError(t, admin.DropStore(ctx, "tenant_it_1"))
	})
}
