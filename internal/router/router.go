// Package router implements the tenant data routing core: given an
// organization id it resolves and returns a live connection to that
// organization's dedicated data store, caching connections for reuse across
// the process lifetime.
//
// A Router is constructed once by the composition root and passed explicitly
// to every collaborator. Resolution never falls back to a default store; an
// unresolved tenant surfaces as an error because silently mis-routing tenant
// data is a correctness violation, not a degraded experience.
package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/stackfield/tenantdb/internal/store"
	"github.com/stackfield/tenantdb/internal/store/postgres"
	"github.com/stackfield/tenantdb/internal/telemetry"
	"golang.org/x/sync/singleflight"
)

// DialFunc opens a transport to the store addressed by connString.
type DialFunc func(ctx context.Context, connString string) (store.Conn, error)

// OpenDirectoryFunc wraps a raw directory connection in a typed directory
// store.
type OpenDirectoryFunc func(conn store.Conn) (store.DirectoryStore, error)

// Config holds router configuration.
type Config struct {
	// DirectoryDSN is the connection string of the directory store. Tenant
	// addresses are derived from it by substituting the database name.
	DirectoryDSN string

	// Pool is the template pool configuration applied to the directory
	// pool and every tenant pool. ConnString is filled in per dial.
	Pool postgres.PoolConfig

	// Dial overrides how transports are opened. Tests use this to avoid a
	// real server; when nil, pools are opened with postgres.NewPool.
	Dial DialFunc

	// OpenDirectory overrides how the directory store is built from the
	// directory connection. When nil, the connection must be a pgx pool.
	OpenDirectory OpenDirectoryFunc
}

// Router resolves organization ids to live tenant store connections. It owns
// the only shared mutable state in the routing core: the directory singleton
// and the registry cache.
type Router struct {
	desc          *postgres.Descriptor
	poolCfg       postgres.PoolConfig
	dial          DialFunc
	openDirectory OpenDirectoryFunc

	// mu guards the directory singleton. Held across the dial so
	// concurrent first calls collapse into one open. Not a sync.Once: a
	// failed open must stay retryable, and CloseAll resets the singleton.
	mu       sync.Mutex
	dirConn  store.Conn
	dirStore store.DirectoryStore

	// group collapses concurrent cache misses for the same organization
	// into a single in-flight resolution.
	group singleflight.Group

	cacheMu sync.RWMutex
	tenants map[int64]*Handle
}

// New creates a Router. The directory DSN is parsed eagerly so a malformed
// address is rejected at construction rather than on first use.
func New(cfg Config) (*Router, error) {
	if cfg.DirectoryDSN == "" {
		return nil, store.ErrNoConnString
	}

	desc, err := postgres.ParseDescriptor(cfg.DirectoryDSN)
	if err != nil {
		return nil, err
	}

	r := &Router{
		desc:          desc,
		poolCfg:       cfg.Pool,
		dial:          cfg.Dial,
		openDirectory: cfg.OpenDirectory,
		tenants:       make(map[int64]*Handle),
	}

	if r.dial == nil {
		r.dial = r.dialPool
	}
	if r.openDirectory == nil {
		r.openDirectory = openDirectoryPool
	}

	return r, nil
}

// Directory returns the process-wide directory store connection, opening it
// on first use. A failed open leaves the singleton unset so the next call
// retries.
func (r *Router) Directory(ctx context.Context) (store.Conn, error) {
	conn, _, err := r.directory(ctx)
	return conn, err
}

// DirectoryStore returns the typed directory store backed by the singleton
// connection.
func (r *Router) DirectoryStore(ctx context.Context) (store.DirectoryStore, error) {
	_, dir, err := r.directory(ctx)
	return dir, err
}

func (r *Router) directory(ctx context.Context) (store.Conn, store.DirectoryStore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dirConn != nil {
		return r.dirConn, r.dirStore, nil
	}

	conn, err := r.dial(ctx, r.desc.ConnString())
	if err != nil {
		return nil, nil, &store.ConnectionError{Addr: r.desc.Redacted(), Err: err}
	}

	dir, err := r.openDirectory(conn)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open directory store: %w", err)
	}

	r.dirConn = conn
	r.dirStore = dir

	log.Info().Str("addr", r.desc.Redacted()).Msg("Opened directory store connection")

	return r.dirConn, r.dirStore, nil
}

// Tenant returns a connection handle for the organization's tenant store.
// Cached handles are returned without any I/O. On a miss, concurrent callers
// for the same organization share one resolution; the cache never holds a
// partially opened entry.
func (r *Router) Tenant(ctx context.Context, orgID int64) (*Handle, error) {
	m := telemetry.GetMetrics()

	r.cacheMu.RLock()
	h, ok := r.tenants[orgID]
	r.cacheMu.RUnlock()
	if ok {
		m.TenantCacheHits.Add(ctx, 1)
		return h, nil
	}

	m.TenantCacheMisses.Add(ctx, 1)

	v, err, _ := r.group.Do(strconv.FormatInt(orgID, 10), func() (any, error) {
		return r.resolve(ctx, orgID)
	})
	if err != nil {
		m.TenantResolutionErrorsTotal.Add(ctx, 1)
		return nil, err
	}

	return v.(*Handle), nil
}

// resolve performs the uncached resolution path: directory lookup, address
// derivation, transport open, cache insert. Runs inside the single-flight
// group, so at most one resolve per organization is in flight.
func (r *Router) resolve(ctx context.Context, orgID int64) (*Handle, error) {
	// A caller that lost the race to enter the flight group may find the
	// winner's handle already cached.
	r.cacheMu.RLock()
	h, ok := r.tenants[orgID]
	r.cacheMu.RUnlock()
	if ok {
		return h, nil
	}

	_, dir, err := r.directory(ctx)
	if err != nil {
		return nil, err
	}

	entry, err := dir.GetEntry(ctx, orgID)
	if err != nil {
		if errors.Is(err, store.ErrEntryNotFound) {
			return nil, &store.NotProvisionedError{OrgID: orgID}
		}
		return nil, fmt.Errorf("failed to look up tenant directory: %w", err)
	}

	tenant := r.desc.WithDatabase(entry.StoreName)

	conn, err := r.dial(ctx, tenant.ConnString())
	if err != nil {
		return nil, &store.ConnectionError{Addr: tenant.Redacted(), Err: err}
	}

	h = &Handle{
		OrgID:     orgID,
		StoreName: entry.StoreName,
		Conn:      conn,
	}

	r.cacheMu.Lock()
	r.tenants[orgID] = h
	r.cacheMu.Unlock()

	m := telemetry.GetMetrics()
	m.TenantResolutionsTotal.Add(ctx, 1)
	m.TenantsCached.Add(ctx, 1)

	log.Debug().
		Int64("org_id", orgID).
		Str("store_name", entry.StoreName).
		Msg("Resolved tenant store connection")

	return h, nil
}

// DirectoryAvailable reports whether the directory singleton is currently
// open. Observability hook, no side effects.
func (r *Router) DirectoryAvailable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.dirConn != nil
}

// CachedTenantCount returns the number of organizations with a cached
// tenant connection. Observability hook, no side effects.
func (r *Router) CachedTenantCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	return len(r.tenants)
}

// CloseAll closes every cached tenant connection and the directory
// singleton, resetting the router to its initial state. Safe to call when
// nothing is open. Individual closes are logged but never abort the rest;
// shutdown always completes.
func (r *Router) CloseAll() {
	m := telemetry.GetMetrics()

	r.cacheMu.Lock()
	tenants := r.tenants
	r.tenants = make(map[int64]*Handle)
	r.cacheMu.Unlock()

	ctx := context.Background()
	for orgID, h := range tenants {
		h.Conn.Close()
		m.TenantsCached.Add(ctx, -1)
		m.ConnectionsClosedTotal.Add(ctx, 1)
		log.Debug().Int64("org_id", orgID).Str("store_name", h.StoreName).Msg("Closed tenant store connection")
	}

	r.mu.Lock()
	if r.dirConn != nil {
		r.dirConn.Close()
		r.dirConn = nil
		r.dirStore = nil
		m.ConnectionsClosedTotal.Add(ctx, 1)
		log.Debug().Msg("Closed directory store connection")
	}
	r.mu.Unlock()

	log.Info().Int("tenants", len(tenants)).Msg("Closed all store connections")
}

// dialPool is the default DialFunc, opening a pgx pool with the router's
// pool template.
func (r *Router) dialPool(ctx context.Context, connString string) (store.Conn, error) {
	cfg := r.poolCfg
	cfg.ConnString = connString

	pool, err := postgres.NewPool(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// openDirectoryPool is the default OpenDirectoryFunc.
func openDirectoryPool(conn store.Conn) (store.DirectoryStore, error) {
	pool, ok := conn.(*pgxpool.Pool)
	if !ok {
		return nil, fmt.Errorf("directory connection is not a pgx pool")
	}
	return postgres.NewDirectoryStore(pool), nil
}
