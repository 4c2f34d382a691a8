package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/stackfield/tenantdb/internal/logger"
	"github.com/stackfield/tenantdb/internal/store"
)

// StatusCmd shows the directory entry for an organization and probes the
// tenant store's reachability.
type StatusCmd struct {
	DatabaseFlags

	OrgID int64 `arg:"" help:"organization id to inspect"`
}

func (c *StatusCmd) Run(ctx context.Context, globals *Globals) error {
	logger.Setup(globals.Debug)

	core, cleanup, err := c.buildCore(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	directory, err := core.router.DirectoryStore(ctx)
	if err != nil {
		return err
	}

	entry, err := directory.GetEntry(ctx, c.OrgID)
	if err != nil {
		if errors.Is(err, store.ErrEntryNotFound) {
			fmt.Printf("organization %d: not provisioned\n", c.OrgID)
			return nil
		}
		return err
	}

	fmt.Printf("organization %d\n", entry.OrgID)
	fmt.Printf("  store name:      %s\n", entry.StoreName)
	fmt.Printf("  provision state: %s\n", entry.State)
	fmt.Printf("  created at:      %s\n", entry.CreatedAt.Format("2006-01-02 15:04:05 MST"))

	h, err := core.router.Tenant(ctx, c.OrgID)
	if err != nil {
		fmt.Printf("  reachable:       no (%v)\n", err)
		return nil
	}
	if err := h.Conn.Ping(ctx); err != nil {
		fmt.Printf("  reachable:       no (%v)\n", err)
		return nil
	}

	fmt.Printf("  reachable:       yes\n")
	return nil
}
