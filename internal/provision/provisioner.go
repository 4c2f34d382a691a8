// Package provision implements the tenant provisioning workflow: creating a
// brand-new physical tenant store, registering it in the directory, and
// applying its initial schema.
//
// The physical-store engine and the directory store are independent failure
// domains, so the workflow is not one cross-system transaction. Progress is
// recorded per tenant as a provision state persisted in the directory entry
// (pending -> store_created -> schema_applied -> ready), and the reconciler
// re-drives any tenant stuck short of ready.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stackfield/tenantdb/internal/models"
	"github.com/stackfield/tenantdb/internal/router"
	"github.com/stackfield/tenantdb/internal/store"
	"github.com/stackfield/tenantdb/internal/store/postgres"
	"github.com/stackfield/tenantdb/internal/telemetry"
)

// DefaultStoreNamePrefix is prepended to the organization id when no store
// name is given.
const DefaultStoreNamePrefix = "tenant_"

// ApplySchemaFunc applies the initial tenant schema over a resolved tenant
// connection.
type ApplySchemaFunc func(ctx context.Context, h *router.Handle) error

// Config holds provisioner configuration.
type Config struct {
	Directory store.DirectoryStore
	Admin     store.TenantAdmin
	Router    *router.Router

	// StoreNamePrefix defaults to DefaultStoreNamePrefix. The reconciler
	// also uses it to recognize tenant stores when scanning for orphans.
	StoreNamePrefix string

	// ApplySchema defaults to running the embedded tenant schema
	// migrations through pgx. Tests override it.
	ApplySchema ApplySchemaFunc

	// MaxRepairTries bounds the reconciler's retries per tenant.
	// Default: 3
	MaxRepairTries uint
}

// Provisioner runs the provisioning workflow and the reconciliation audit.
type Provisioner struct {
	directory   store.DirectoryStore
	admin       store.TenantAdmin
	router      *router.Router
	prefix      string
	applySchema ApplySchemaFunc
	maxTries    uint
}

// New creates a Provisioner.
func New(cfg Config) *Provisioner {
	p := &Provisioner{
		directory:   cfg.Directory,
		admin:       cfg.Admin,
		router:      cfg.Router,
		prefix:      cfg.StoreNamePrefix,
		applySchema: cfg.ApplySchema,
		maxTries:    cfg.MaxRepairTries,
	}

	if p.prefix == "" {
		p.prefix = DefaultStoreNamePrefix
	}
	if p.applySchema == nil {
		p.applySchema = applySchemaPool
	}
	if p.maxTries == 0 {
		p.maxTries = 3
	}

	return p
}

// StoreName returns the deterministic default store name for an
// organization.
func (p *Provisioner) StoreName(orgID int64) string {
	return fmt.Sprintf("%s%d", p.prefix, orgID)
}

// Provision provisions a tenant store for the organization. An empty
// storeName selects the deterministic default. The directory entry is
// created first, in state pending; its unique constraints on organization id
// and store name pick exactly one winner among concurrent provisioners, and
// losers get a *store.ProvisioningConflictError.
//
// A failure after the entry exists leaves the tenant short of ready; the
// reconciler repairs it. Provision itself never tolerates a pre-existing
// physical store: a name collision on CREATE is a conflict, not something to
// adopt silently.
func (p *Provisioner) Provision(ctx context.Context, orgID int64, storeName string) error {
	if storeName == "" {
		storeName = p.StoreName(orgID)
	}

	now := time.Now()
	entry := &models.DirectoryEntry{
		OrgID:     orgID,
		StoreName: storeName,
		State:     models.ProvisionStatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := p.directory.CreateEntry(ctx, entry); err != nil {
		var conflict *store.ProvisioningConflictError
		if errors.As(err, &conflict) {
			telemetry.GetMetrics().ProvisionConflictsTotal.Add(ctx, 1)
		}
		return err
	}

	log.Info().
		Int64("org_id", orgID).
		Str("store_name", storeName).
		Msg("Registered tenant, provisioning store")

	return p.driveToReady(ctx, orgID, false)
}

// driveToReady advances a tenant from its current provision state to ready,
// persisting each transition. When tolerateExisting is set (repair), an
// already-existing physical store is treated as a completed create step.
func (p *Provisioner) driveToReady(ctx context.Context, orgID int64, tolerateExisting bool) error {
	entry, err := p.directory.GetEntry(ctx, orgID)
	if err != nil {
		return err
	}

	for entry.State != models.ProvisionStateReady {
		next, err := entry.State.Next()
		if err != nil {
			return fmt.Errorf("directory entry for organization %d: %w", orgID, err)
		}

		switch entry.State {
		case models.ProvisionStatePending:
			if err := p.admin.CreateStore(ctx, entry.StoreName); err != nil {
				var conflict *store.ProvisioningConflictError
				isConflict := errors.As(err, &conflict)
				if !tolerateExisting || !isConflict {
					if isConflict {
						telemetry.GetMetrics().ProvisionConflictsTotal.Add(ctx, 1)
					}
					return err
				}
				log.Debug().
					Int64("org_id", orgID).
					Str("store_name", entry.StoreName).
					Msg("Tenant store already exists, adopting it")
			}

		case models.ProvisionStateStoreCreated:
			// Resolving through the router both validates reachability
			// and yields the connection the schema is applied over.
			h, err := p.router.Tenant(ctx, orgID)
			if err != nil {
				return err
			}
			if err := p.applySchema(ctx, h); err != nil {
				return fmt.Errorf("failed to apply tenant schema: %w", err)
			}

		case models.ProvisionStateSchemaApplied:
			h, err := p.router.Tenant(ctx, orgID)
			if err != nil {
				return err
			}
			if err := h.Conn.Ping(ctx); err != nil {
				return &store.ConnectionError{Addr: entry.StoreName, Err: err}
			}
		}

		if err := p.directory.AdvanceEntryState(ctx, orgID, entry.State, next); err != nil {
			return err
		}
		entry.State = next
	}

	telemetry.GetMetrics().StoresProvisionedTotal.Add(ctx, 1)

	log.Info().
		Int64("org_id", orgID).
		Str("store_name", entry.StoreName).
		Msg("Tenant store ready")

	return nil
}

// applySchemaPool is the default ApplySchemaFunc: run the embedded tenant
// schema migrations and stamp the store with its identity.
func applySchemaPool(ctx context.Context, h *router.Handle) error {
	pool := h.Pool()
	if pool == nil {
		return fmt.Errorf("tenant connection is not a pgx pool")
	}

	if err := postgres.ApplyTenantSchema(ctx, pool); err != nil {
		return err
	}

	_, err := pool.Exec(ctx, `
		INSERT INTO tenant_info (org_id, store_name)
		VALUES ($1, $2)
		ON CONFLICT (org_id) DO NOTHING
	`, h.OrgID, h.StoreName)
	if err != nil {
		return fmt.Errorf("failed to stamp tenant store: %w", err)
	}

	return nil
}
