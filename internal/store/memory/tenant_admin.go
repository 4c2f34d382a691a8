package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/stackfield/tenantdb/internal/store"
)

// TenantAdmin implements store.TenantAdmin using in-memory storage. Like
// the real server, CreateStore is not idempotent.
type TenantAdmin struct {
	mu sync.Mutex

	stores map[string]bool

	// CreateErr, when set, is returned by the next CreateStore call and
	// then cleared. Used by tests to produce partial-failure states.
	CreateErr error
}

// NewTenantAdmin creates a new in-memory tenant store administrator.
func NewTenantAdmin() *TenantAdmin {
	return &TenantAdmin{
		stores: make(map[string]bool),
	}
}

// CreateStore records a new tenant store name.
func (a *TenantAdmin) CreateStore(ctx context.Context, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.CreateErr != nil {
		err := a.CreateErr
		a.CreateErr = nil
		return err
	}

	if a.stores[name] {
		return &store.ProvisioningConflictError{StoreName: name}
	}

	a.stores[name] = true
	return nil
}

// DropStore removes a tenant store name. Dropping a missing store is a
// no-op, matching DROP DATABASE IF EXISTS.
func (a *TenantAdmin) DropStore(ctx context.Context, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.stores, name)
	return nil
}

// ListStores returns all store names with the given prefix, sorted.
func (a *TenantAdmin) ListStores(ctx context.Context, prefix string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var names []string
	for name := range a.stores {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}

	sort.Strings(names)
	return names, nil
}

// Exists reports whether a store with the given name has been created.
func (a *TenantAdmin) Exists(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.stores[name]
}
