package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/stackfield/tenantdb/internal/models"
	"github.com/stackfield/tenantdb/internal/store"
	"github.com/stackfield/tenantdb/internal/store/postgres"
	"github.com/stackfield/tenantdb/internal/telemetry"
)

// ErrRepairsFailed indicates a reconciliation pass completed but left some
// tenants unrepaired.
var ErrRepairsFailed = errors.New("some tenants could not be repaired")

// Failure records one tenant the reconciler could not repair.
type Failure struct {
	OrgID int64
	Err   error
}

// Report summarizes one reconciliation pass.
type Report struct {
	// Repaired lists organizations driven to ready during this pass.
	Repaired []int64

	// Failed lists organizations still short of ready after retries.
	Failed []Failure

	// Orphans lists physical stores matching the tenant name pattern
	// with no directory entry. They are unreachable through normal
	// resolution; reporting them is this pass's job, removing them is an
	// explicit operator decision (see PruneOrphans).
	Orphans []string
}

// Reconcile audits the directory against the physical server and repairs
// what it can: entries stuck short of ready are re-driven through the
// remaining provisioning steps, and physical stores with no directory entry
// are reported as orphans. Transient failures are retried with exponential
// backoff; everything else fails that tenant's repair immediately.
func (p *Provisioner) Reconcile(ctx context.Context) (*Report, error) {
	report := &Report{}

	stuck, err := p.directory.ListEntriesInState(ctx,
		models.ProvisionStatePending,
		models.ProvisionStateStoreCreated,
		models.ProvisionStateSchemaApplied,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck tenants: %w", err)
	}

	for _, entry := range stuck {
		if err := p.repair(ctx, entry); err != nil {
			log.Warn().
				Int64("org_id", entry.OrgID).
				Str("store_name", entry.StoreName).
				Err(err).
				Msg("Failed to repair tenant")
			report.Failed = append(report.Failed, Failure{OrgID: entry.OrgID, Err: err})
			continue
		}

		telemetry.GetMetrics().ReconcileRepairedTotal.Add(ctx, 1)
		report.Repaired = append(report.Repaired, entry.OrgID)
	}

	orphans, err := p.findOrphans(ctx)
	if err != nil {
		return nil, err
	}
	report.Orphans = orphans

	log.Info().
		Int("stuck", len(stuck)).
		Int("repaired", len(report.Repaired)).
		Int("failed", len(report.Failed)).
		Int("orphans", len(report.Orphans)).
		Msg("Reconciliation pass complete")

	return report, nil
}

// repair drives one stuck tenant to ready, retrying transient failures.
func (p *Provisioner) repair(ctx context.Context, entry *models.DirectoryEntry) error {
	op := func() (any, error) {
		err := p.driveToReady(ctx, entry.OrgID, true)
		if err != nil && !isTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(p.maxTries),
	)
	return err
}

// findOrphans lists physical stores matching the tenant prefix that have no
// directory entry.
func (p *Provisioner) findOrphans(ctx context.Context) ([]string, error) {
	names, err := p.admin.ListStores(ctx, p.prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant stores: %w", err)
	}

	entries, err := p.directory.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory entries: %w", err)
	}

	registered := make(map[string]bool, len(entries))
	for _, entry := range entries {
		registered[entry.StoreName] = true
	}

	var orphans []string
	for _, name := range names {
		if !registered[name] {
			orphans = append(orphans, name)
			telemetry.GetMetrics().ReconcileOrphansDetected.Add(ctx, 1)
			log.Warn().Str("store_name", name).Msg("Found orphaned tenant store")
		}
	}

	return orphans, nil
}

// PruneOrphans drops the given orphaned physical stores. Destructive; only
// the audit tooling calls this, and only behind an explicit flag.
func (p *Provisioner) PruneOrphans(ctx context.Context, orphans []string) error {
	for _, name := range orphans {
		if err := p.admin.DropStore(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// isTransient reports whether err is worth retrying: transport-level
// failures can clear on their own, conflicts and missing entries cannot.
func isTransient(err error) bool {
	var connErr *store.ConnectionError
	if errors.As(err, &connErr) {
		return true
	}
	return postgres.IsConnectionError(err)
}
