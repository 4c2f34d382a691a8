package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/stackfield/tenantdb/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrNoConnString         = errors.New("directory connection string is required")
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrEntryNotFound        = errors.New("tenant directory entry not found")
	ErrStateConflict        = errors.New("provision state changed concurrently")
)

// NotProvisionedError is returned when resolution is requested for an
// organization that has no directory entry. There is no fallback tenant;
// callers must treat this as a hard failure.
type NotProvisionedError struct {
	OrgID int64
}

func (e *NotProvisionedError) Error() string {
	return fmt.Sprintf("organization %d is not provisioned", e.OrgID)
}

// ProvisioningConflictError is returned when provisioning is requested for
// an organization or store name that already exists.
type ProvisioningConflictError struct {
	OrgID     int64
	StoreName string
}

func (e *ProvisioningConflictError) Error() string {
	if e.StoreName != "" {
		return fmt.Sprintf("organization %d is already provisioned (store %q)", e.OrgID, e.StoreName)
	}
	return fmt.Sprintf("organization %d is already provisioned", e.OrgID)
}

// ConnectionError is a transport-level failure opening either the directory
// store or a tenant store. Addr never contains credentials.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Conn is an open transport to the directory store or one tenant store.
// *pgxpool.Pool satisfies this interface.
type Conn interface {
	Ping(ctx context.Context) error
	Close()
}

// DirectoryStore defines the interface for directory persistence: the
// organization records and the organization -> physical store mapping.
type DirectoryStore interface {
	// Organizations
	CreateOrganization(ctx context.Context, org *models.Organization) error
	GetOrganization(ctx context.Context, orgID int64) (*models.Organization, error)

	// Tenant directory entries
	CreateEntry(ctx context.Context, entry *models.DirectoryEntry) error
	GetEntry(ctx context.Context, orgID int64) (*models.DirectoryEntry, error)
	ListEntries(ctx context.Context) ([]*models.DirectoryEntry, error)
	ListEntriesInState(ctx context.Context, states ...models.ProvisionState) ([]*models.DirectoryEntry, error)

	// AdvanceEntryState moves an entry from one provision state to the
	// next. Returns ErrStateConflict if the entry is no longer in the
	// expected state (another provisioner or the reconciler got there
	// first).
	AdvanceEntryState(ctx context.Context, orgID int64, from, to models.ProvisionState) error
}

// TenantAdmin defines the administrative interface to the database server:
// creating, dropping and listing physical tenant stores. CreateStore is not
// idempotent; creating a store that already exists fails with
// *ProvisioningConflictError.
type TenantAdmin interface {
	CreateStore(ctx context.Context, name string) error
	DropStore(ctx context.Context, name string) error
	ListStores(ctx context.Context, prefix string) ([]string, error)
}
