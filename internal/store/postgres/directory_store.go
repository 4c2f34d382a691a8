package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/stackfield/tenantdb/internal/models"
	"github.com/stackfield/tenantdb/internal/store"
)

// DirectoryStore implements store.DirectoryStore using PostgreSQL.
type DirectoryStore struct {
	pool *pgxpool.Pool
}

// NewDirectoryStore creates a new PostgreSQL-backed directory store on top
// of the shared directory connection pool.
func NewDirectoryStore(pool *pgxpool.Pool) *DirectoryStore {
	return &DirectoryStore{
		pool: pool,
	}
}

// Pool returns the underlying connection pool.
func (s *DirectoryStore) Pool() *pgxpool.Pool {
	return s.pool
}

// CreateOrganization creates a new organization record.
func (s *DirectoryStore) CreateOrganization(ctx context.Context, org *models.Organization) error {
	query := `
		INSERT INTO organizations (
			id, external_id, name, contact_email, billing_tier, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	_, err := s.pool.Exec(ctx, query,
		org.ID,
		org.ExternalID,
		org.Name,
		org.ContactEmail,
		org.BillingTier,
		org.CreatedAt,
		org.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return &store.ProvisioningConflictError{OrgID: org.ID}
		}
		return fmt.Errorf("failed to create organization: %w", err)
	}

	log.Debug().
		Int64("org_id", org.ID).
		Str("name", org.Name).
		Msg("Created organization")

	return nil
}

// GetOrganization retrieves an organization by ID.
func (s *DirectoryStore) GetOrganization(ctx context.Context, orgID int64) (*models.Organization, error) {
	query := `
		SELECT id, external_id, name, contact_email, billing_tier, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`

	var org models.Organization
	err := s.pool.QueryRow(ctx, query, orgID).Scan(
		&org.ID,
		&org.ExternalID,
		&org.Name,
		&org.ContactEmail,
		&org.BillingTier,
		&org.CreatedAt,
		&org.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return &org, nil
}

// CreateEntry inserts a tenant directory entry. The unique constraints on
// org_id and store_name pick exactly one winner among concurrent
// provisioners; the loser gets a *store.ProvisioningConflictError.
func (s *DirectoryStore) CreateEntry(ctx context.Context, entry *models.DirectoryEntry) error {
	query := `
		INSERT INTO tenant_directory (
			org_id, store_name, provision_state, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5
		)
	`

	_, err := s.pool.Exec(ctx, query,
		entry.OrgID,
		entry.StoreName,
		entry.State,
		entry.CreatedAt,
		entry.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return &store.ProvisioningConflictError{OrgID: entry.OrgID, StoreName: entry.StoreName}
		}
		return fmt.Errorf("failed to create directory entry: %w", err)
	}

	log.Debug().
		Int64("org_id", entry.OrgID).
		Str("store_name", entry.StoreName).
		Msg("Created tenant directory entry")

	return nil
}

// GetEntry retrieves the directory entry for an organization.
func (s *DirectoryStore) GetEntry(ctx context.Context, orgID int64) (*models.DirectoryEntry, error) {
	query := `
		SELECT org_id, store_name, provision_state, created_at, updated_at
		FROM tenant_directory
		WHERE org_id = $1
	`

	var entry models.DirectoryEntry
	err := s.pool.QueryRow(ctx, query, orgID).Scan(
		&entry.OrgID,
		&entry.StoreName,
		&entry.State,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get directory entry: %w", err)
	}

	return &entry, nil
}

// ListEntries returns all tenant directory entries.
func (s *DirectoryStore) ListEntries(ctx context.Context) ([]*models.DirectoryEntry, error) {
	query := `
		SELECT org_id, store_name, provision_state, created_at, updated_at
		FROM tenant_directory
		ORDER BY org_id
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListEntriesInState returns all entries whose provision state is one of the
// given states, oldest first so the reconciler repairs the longest-stuck
// tenants before fresh ones.
func (s *DirectoryStore) ListEntriesInState(ctx context.Context, states ...models.ProvisionState) ([]*models.DirectoryEntry, error) {
	query := `
		SELECT org_id, store_name, provision_state, created_at, updated_at
		FROM tenant_directory
		WHERE provision_state = ANY($1)
		ORDER BY updated_at
	`

	names := make([]string, 0, len(states))
	for _, st := range states {
		names = append(names, string(st))
	}

	rows, err := s.pool.Query(ctx, query, names)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory entries by state: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// AdvanceEntryState moves an entry from one provision state to the next
// using a compare-and-set on the current state.
func (s *DirectoryStore) AdvanceEntryState(ctx context.Context, orgID int64, from, to models.ProvisionState) error {
	query := `
		UPDATE tenant_directory SET
			provision_state = $3,
			updated_at = $4
		WHERE org_id = $1 AND provision_state = $2
	`

	result, err := s.pool.Exec(ctx, query, orgID, from, to, time.Now())
	if err != nil {
		return fmt.Errorf("failed to advance provision state: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Either the entry is missing or another process moved it.
		if _, err := s.GetEntry(ctx, orgID); err != nil {
			return err
		}
		return store.ErrStateConflict
	}

	log.Debug().
		Int64("org_id", orgID).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Advanced provision state")

	return nil
}

func scanEntries(rows pgx.Rows) ([]*models.DirectoryEntry, error) {
	var entries []*models.DirectoryEntry
	for rows.Next() {
		var entry models.DirectoryEntry
		err := rows.Scan(
			&entry.OrgID,
			&entry.StoreName,
			&entry.State,
			&entry.CreatedAt,
			&entry.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan directory entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating directory entries: %w", err)
	}

	return entries, nil
}
