package commands

import (
	"context"

	"github.com/stackfield/tenantdb/internal/logger"
	"github.com/stackfield/tenantdb/internal/store/postgres"
)

// MigrateCmd applies the directory store schema migrations. The directory
// database itself must already exist.
type MigrateCmd struct {
	DatabaseFlags
}

func (c *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	cfg, err := c.resolve()
	if err != nil {
		return err
	}

	poolCfg := c.poolConfig(cfg)
	poolCfg.ConnString = cfg.DirectoryDSN
	pool, err := postgres.NewPool(ctx, &poolCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.MigrateDirectory(ctx, pool); err != nil {
		return err
	}

	log.Info().Msg("Directory store migrations complete")
	return nil
}
