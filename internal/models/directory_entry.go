package models

import (
	"fmt"
	"time"
)

// ProvisionState tracks how far a tenant's provisioning workflow has
// progressed. Store creation, schema application and the final readiness
// check are independent failure domains, so the state is persisted in the
// directory itself and re-driven by the reconciler when a step fails.
type ProvisionState string

const (
	// ProvisionStatePending means the directory entry exists but the
	// physical store has not been created yet.
	ProvisionStatePending ProvisionState = "pending"

	// ProvisionStateStoreCreated means the physical store exists but has
	// no schema applied.
	ProvisionStateStoreCreated ProvisionState = "store_created"

	// ProvisionStateSchemaApplied means the initial schema has been
	// applied but the final readiness check has not passed.
	ProvisionStateSchemaApplied ProvisionState = "schema_applied"

	// ProvisionStateReady means the tenant store is fully provisioned.
	ProvisionStateReady ProvisionState = "ready"
)

// Valid reports whether s is one of the known provision states.
func (s ProvisionState) Valid() bool {
	switch s {
	case ProvisionStatePending, ProvisionStateStoreCreated, ProvisionStateSchemaApplied, ProvisionStateReady:
		return true
	}
	return false
}

// Next returns the state that follows s in the provisioning workflow.
func (s ProvisionState) Next() (ProvisionState, error) {
	switch s {
	case ProvisionStatePending:
		return ProvisionStateStoreCreated, nil
	case ProvisionStateStoreCreated:
		return ProvisionStateSchemaApplied, nil
	case ProvisionStateSchemaApplied:
		return ProvisionStateReady, nil
	default:
		return "", fmt.Errorf("no state follows %q", s)
	}
}

// DirectoryEntry is the authoritative mapping from an organization to its
// physical tenant store. Created exactly once by the provisioning workflow;
// the store name is never rewritten after creation.
type DirectoryEntry struct {
	OrgID     int64
	StoreName string
	State     ProvisionState
	CreatedAt time.Time
	UpdatedAt time.Time
}
