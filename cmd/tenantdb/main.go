package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/stackfield/tenantdb/cmd/tenantdb/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug     bool                  `help:"Enable debug mode."`
		Version   kong.VersionFlag
		Migrate   commands.MigrateCmd   `cmd:"" help:"Apply directory store schema migrations"`
		Provision commands.ProvisionCmd `cmd:"" help:"Provision a tenant store for an organization"`
		Audit     commands.AuditCmd     `cmd:"" help:"Reconcile the directory against the physical server"`
		Status    commands.StatusCmd    `cmd:"" help:"Show directory entry and reachability for an organization"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
