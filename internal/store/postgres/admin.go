package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/stackfield/tenantdb/internal/store"
)

// Admin implements store.TenantAdmin against a PostgreSQL server. The pool
// must be connected as a role with CREATEDB; under the single-server
// addressing contract this is the same server that hosts the directory.
type Admin struct {
	pool *pgxpool.Pool
}

// NewAdmin creates a new tenant store administrator.
func NewAdmin(pool *pgxpool.Pool) *Admin {
	return &Admin{
		pool: pool,
	}
}

// CreateStore creates a physical tenant database. Not idempotent: creating
// a name that already exists returns *store.ProvisioningConflictError.
func (a *Admin) CreateStore(ctx context.Context, name string) error {
	// CREATE DATABASE does not take bind parameters; the identifier is
	// quoted through pgx to keep arbitrary store names safe.
	query := "CREATE DATABASE " + pgx.Identifier{name}.Sanitize()

	_, err := a.pool.Exec(ctx, query)
	if err != nil {
		if isDuplicateDatabase(err) {
			return &store.ProvisioningConflictError{StoreName: name}
		}
		return fmt.Errorf("failed to create tenant store %q: %w", name, err)
	}

	log.Info().Str("store_name", name).Msg("Created tenant store")

	return nil
}

// DropStore removes a physical tenant database if it exists. Only the
// audit tooling calls this, and only when explicitly asked to prune.
func (a *Admin) DropStore(ctx context.Context, name string) error {
	query := "DROP DATABASE IF EXISTS " + pgx.Identifier{name}.Sanitize()

	_, err := a.pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to drop tenant store %q: %w", name, err)
	}

	log.Info().Str("store_name", name).Msg("Dropped tenant store")

	return nil
}

// ListStores returns the names of all non-template databases on the server
// whose name starts with prefix.
func (a *Admin) ListStores(ctx context.Context, prefix string) ([]string, error) {
	query := `
		SELECT datname
		FROM pg_database
		WHERE NOT datistemplate AND datname LIKE $1 || '%'
		ORDER BY datname
	`

	rows, err := a.pool.Query(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant stores: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan database name: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating databases: %w", err)
	}

	return names, nil
}
