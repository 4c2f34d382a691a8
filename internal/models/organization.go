package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization represents a tenant organization registered in the directory
// store. The numeric ID is the routing key; ExternalID is the identifier
// handed out to signup and billing systems.
type Organization struct {
	ID           int64
	ExternalID   uuid.UUID // UUIDv7
	Name         string
	ContactEmail string
	BillingTier  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
