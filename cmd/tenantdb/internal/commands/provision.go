package commands

import (
	"context"

	"github.com/stackfield/tenantdb/internal/logger"
)

// ProvisionCmd provisions a tenant store for one organization.
type ProvisionCmd struct {
	DatabaseFlags

	OrgID     int64  `arg:"" help:"organization id to provision"`
	StoreName string `help:"physical store name (defaults to a deterministic name derived from the org id)"`
}

func (c *ProvisionCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	core, cleanup, err := c.buildCore(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := core.provisioner.Provision(ctx, c.OrgID, c.StoreName); err != nil {
		return err
	}

	log.Info().Int64("org_id", c.OrgID).Msg("Provisioning complete")
	return nil
}
