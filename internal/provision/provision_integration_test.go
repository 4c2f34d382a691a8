//go:build integration

package provision

import (
	"context"
	"fmt"
	"testing"

	"github.com/stackfield/tenantdb/internal/models"
	"github.com/stackfield/tenantdb/internal/router"
	"github.com/stackfield/tenantdb/internal/store"
	"github.com/stackfield/tenantdb/internal/store/postgres"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestIntegration_ProvisionAndResolve runs the whole workflow against a
// real server: provision a tenant, resolve it through the router, and read
// back the stamp the schema step wrote into the tenant store.
func TestIntegration_ProvisionAndResolve(t *testing.T) {
	ctx := context.Background()

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
	defer func() { _ = container.Terminate(ctx) }()

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://test:test@%s:%s/directory?sslmode=disable", host, port.Port())

	dirPool, err := postgres.NewPool(ctx, &postgres.PoolConfig{ConnString: connString})
	require.NoError(t, err)
	defer dirPool.Close()

	require.NoError(t, postgres.MigrateDirectory(ctx, dirPool))

	rt, err := router.New(router.Config{DirectoryDSN: connString})
	require.NoError(t, err)
	defer rt.CloseAll()

	directory, err := rt.DirectoryStore(ctx)
	require.NoError(t, err)

	p := New(Config{
		Directory: directory,
		Admin:     postgres.NewAdmin(dirPool),
		Router:    rt,
	})

	t.Run("unprovisioned organization rejects", func(t *testing.T) {
		_, err := rt.Tenant(ctx, 999)

		var notProvisioned *store.NotProvisionedError
		require.ErrorAs(t, err, &notProvisioned)
		require.Equal(t, 0, rt.CachedTenantCount())
	})

	t.Run("provision", func(t *testing.T) {
		require.NoError(t, p.Provision(ctx, 42, "tenant_42_custom"))

		entry, err := directory.GetEntry(ctx, 42)
		require.NoError(t, err)
		require.Equal(t, "tenant_42_custom", entry.StoreName)
		require.Equal(t, models.ProvisionStateReady, entry.State)
	})

	t.Run("resolve hits the provisioned store", func(t *testing.T) {
		h, err := rt.Tenant(ctx, 42)
		require.NoError(t, err)
		require.Equal(t, "tenant_42_custom", h.StoreName)

		// The schema step stamped the store with its identity; reading
		// it back proves we are connected to the right database.
		var orgID int64
		var storeName string
		err = h.Pool().QueryRow(ctx, "SELECT org_id, store_name FROM tenant_info").Scan(&orgID, &storeName)
		require.NoError(t, err)
		require.Equal(t, int64(42), orgID)
		require.Equal(t, "tenant_42_custom", storeName)

		var database string
		err = h.Pool().QueryRow(ctx, "SELECT current_database()").Scan(&database)
		require.NoError(t, err)
		require.Equal(t, "tenant_42_custom", database)
	})

	t.Run("provision twice conflicts", func(t *testing.T) {
		err := p.Provision(ctx, 42, "")

		var conflict *store.ProvisioningConflictError
		require.ErrorAs(t, err, &conflict)

		entries, err := directory.ListEntries(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
	})

	t.Run("reconcile reports orphans", func(t *testing.T) {
		require.NoError(t, postgres.NewAdmin(dirPool).CreateStore(ctx, "tenant_orphan"))

		report, err := p.Reconcile(ctx)
		require.NoError(t, err)
		require.Empty(t, report.Failed)
		require.Equal(t, []string{"tenant_orphan"}, report.Orphans)
	})
}
