package memory

import (
	"context"
	"sync"
	"time"

	"github.com/stackfield/tenantdb/internal/models"
	"github.com/stackfield/tenantdb/internal/store"
)

// DirectoryStore implements store.DirectoryStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type DirectoryStore struct {
	mu sync.RWMutex

	organizations map[int64]*models.Organization
	entries       map[int64]*models.DirectoryEntry // org_id -> entry
	storeNames    map[string]int64                 // store_name -> org_id
}

// NewDirectoryStore creates a new in-memory directory store.
func NewDirectoryStore() *DirectoryStore {
	return &DirectoryStore{
		organizations: make(map[int64]*models.Organization),
		entries:       make(map[int64]*models.DirectoryEntry),
		storeNames:    make(map[string]int64),
	}
}

// CreateOrganization creates a new organization in memory.
func (s *DirectoryStore) CreateOrganization(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.organizations[org.ID]; exists {
		return &store.ProvisioningConflictError{OrgID: org.ID}
	}

	// Clone to avoid external modifications
	clone := *org
	s.organizations[org.ID] = &clone

	return nil
}

// GetOrganization retrieves an organization by ID.
func (s *DirectoryStore) GetOrganization(ctx context.Context, orgID int64) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, exists := s.organizations[orgID]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	clone := *org
	return &clone, nil
}

// CreateEntry inserts a tenant directory entry, enforcing the same
// uniqueness rules as the database constraints.
func (s *DirectoryStore) CreateEntry(ctx context.Context, entry *models.DirectoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.OrgID]; exists {
		return &store.ProvisioningConflictError{OrgID: entry.OrgID, StoreName: entry.StoreName}
	}
	if _, exists := s.storeNames[entry.StoreName]; exists {
		return &store.ProvisioningConflictError{OrgID: entry.OrgID, StoreName: entry.StoreName}
	}

	clone := *entry
	s.entries[entry.OrgID] = &clone
	s.storeNames[entry.StoreName] = entry.OrgID

	return nil
}

// GetEntry retrieves the directory entry for an organization.
func (s *DirectoryStore) GetEntry(ctx context.Context, orgID int64) (*models.DirectoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.entries[orgID]
	if !exists {
		return nil, store.ErrEntryNotFound
	}

	clone := *entry
	return &clone, nil
}

// ListEntries returns all tenant directory entries.
func (s *DirectoryStore) ListEntries(ctx context.Context) ([]*models.DirectoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*models.DirectoryEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		clone := *entry
		entries = append(entries, &clone)
	}

	return entries, nil
}

// ListEntriesInState returns all entries in any of the given states.
func (s *DirectoryStore) ListEntriesInState(ctx context.Context, states ...models.ProvisionState) ([]*models.DirectoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []*models.DirectoryEntry
	for _, entry := range s.entries {
		for _, st := range states {
			if entry.State == st {
				clone := *entry
				entries = append(entries, &clone)
				break
			}
		}
	}

	return entries, nil
}

// AdvanceEntryState moves an entry between provision states with the same
// compare-and-set semantics as the PostgreSQL implementation.
func (s *DirectoryStore) AdvanceEntryState(ctx context.Context, orgID int64, from, to models.ProvisionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[orgID]
	if !exists {
		return store.ErrEntryNotFound
	}

	if entry.State != from {
		return store.ErrStateConflict
	}

	entry.State = to
	entry.UpdatedAt = time.Now()

	return nil
}
