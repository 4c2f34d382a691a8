package commands

import (
	"context"
	"fmt"

	"github.com/stackfield/tenantdb/internal/config"
	"github.com/stackfield/tenantdb/internal/provision"
	"github.com/stackfield/tenantdb/internal/router"
	"github.com/stackfield/tenantdb/internal/store/postgres"
)

type Globals struct {
	Debug   bool
	Version string
}

// DatabaseFlags are shared by every command that talks to the directory
// store. Flags and environment variables win; the config file fills in
// whatever they leave blank.
type DatabaseFlags struct {
	DirectoryDSN    string `help:"directory store connection string" env:"TENANTDB_DIRECTORY_DSN"`
	AdminDSN        string `help:"admin connection string for CREATE DATABASE (defaults to directory DSN)" env:"TENANTDB_ADMIN_DSN"`
	StoreNamePrefix string `help:"prefix for default tenant store names" env:"TENANTDB_STORE_PREFIX"`
	Config          string `help:"path to YAML config file" env:"TENANTDB_CONFIG" type:"path"`
}

// resolve merges the flags with the optional config file.
func (f *DatabaseFlags) resolve() (*config.Config, error) {
	cfg := &config.Config{}
	if f.Config != "" {
		loaded, err := config.Load(f.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if f.DirectoryDSN != "" {
		cfg.DirectoryDSN = f.DirectoryDSN
	}
	if f.AdminDSN != "" {
		cfg.AdminDSN = f.AdminDSN
	}
	if f.StoreNamePrefix != "" {
		cfg.StoreNamePrefix = f.StoreNamePrefix
	}

	if cfg.DirectoryDSN == "" {
		return nil, fmt.Errorf("directory DSN is required (--directory-dsn, TENANTDB_DIRECTORY_DSN or config file)")
	}

	return cfg, nil
}

func (f *DatabaseFlags) poolConfig(cfg *config.Config) postgres.PoolConfig {
	return postgres.PoolConfig{
		MaxConns:        cfg.Pool.MaxConns,
		MinConns:        cfg.Pool.MinConns,
		MaxConnLifetime: cfg.Pool.MaxConnLifetime,
		MaxConnIdleTime: cfg.Pool.MaxConnIdleTime,
		ConnectTimeout:  cfg.Pool.ConnectTimeout,
	}
}

// core is the composition root: one router and one provisioner wired onto
// the configured directory and admin connections.
type core struct {
	router      *router.Router
	provisioner *provision.Provisioner
}

// buildCore wires up the routing core. The returned cleanup closes every
// connection the core opened.
func (f *DatabaseFlags) buildCore(ctx context.Context) (*core, func(), error) {
	cfg, err := f.resolve()
	if err != nil {
		return nil, nil, err
	}

	rt, err := router.New(router.Config{
		DirectoryDSN: cfg.DirectoryDSN,
		Pool:         f.poolConfig(cfg),
	})
	if err != nil {
		return nil, nil, err
	}

	directory, err := rt.DirectoryStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	adminPoolCfg := f.poolConfig(cfg)
	adminPoolCfg.ConnString = cfg.AdminDSNOrDefault()
	adminPool, err := postgres.NewPool(ctx, &adminPoolCfg)
	if err != nil {
		rt.CloseAll()
		return nil, nil, err
	}

	provisioner := provision.New(provision.Config{
		Directory:       directory,
		Admin:           postgres.NewAdmin(adminPool),
		Router:          rt,
		StoreNamePrefix: cfg.StoreNamePrefix,
	})

	cleanup := func() {
		rt.CloseAll()
		adminPool.Close()
	}

	return &core{router: rt, provisioner: provisioner}, cleanup, nil
}
