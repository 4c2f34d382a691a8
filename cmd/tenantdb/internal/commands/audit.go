package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/stackfield/tenantdb/internal/logger"
	"github.com/stackfield/tenantdb/internal/provision"
	"github.com/stackfield/tenantdb/internal/telemetry"
)

// AuditCmd runs the reconciliation pass: repairs tenants stuck short of
// ready and reports orphaned physical stores. One-shot by default; with
// --interval it keeps running.
type AuditCmd struct {
	DatabaseFlags

	Interval time.Duration `help:"rerun the audit at this interval (0 = run once)" default:"0" env:"TENANTDB_AUDIT_INTERVAL"`
	Prune    bool          `help:"drop orphaned tenant stores (destructive)" default:"false"`
	Tracing  bool          `help:"enable OpenTelemetry export" default:"false" env:"TENANTDB_TRACING"`
}

func (c *AuditCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	if c.Tracing {
		shutdown, err := telemetry.InitTelemetry(ctx, "tenantdb-audit", globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("Failed to shutdown telemetry")
				}
			}()
		}
	}

	core, cleanup, err := c.buildCore(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if c.Interval == 0 {
		return c.runOnce(ctx, core)
	}

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	for {
		if err := c.runOnce(ctx, core); err != nil {
			log.Error().Err(err).Msg("Audit pass failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *AuditCmd) runOnce(ctx context.Context, core *core) error {
	report, err := core.provisioner.Reconcile(ctx)
	if err != nil {
		return err
	}

	for _, orgID := range report.Repaired {
		fmt.Printf("repaired: organization %d\n", orgID)
	}
	for _, failure := range report.Failed {
		fmt.Printf("failed: organization %d: %v\n", failure.OrgID, failure.Err)
	}
	for _, name := range report.Orphans {
		fmt.Printf("orphaned store: %s\n", name)
	}

	if c.Prune && len(report.Orphans) > 0 {
		if err := core.provisioner.PruneOrphans(ctx, report.Orphans); err != nil {
			return err
		}
		fmt.Printf("pruned %d orphaned store(s)\n", len(report.Orphans))
	}

	if len(report.Failed) > 0 {
		return provision.ErrRepairsFailed
	}

	return nil
}
