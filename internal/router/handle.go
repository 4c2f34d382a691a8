package router

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stackfield/tenantdb/internal/store"
)

// Handle is an open, usable connection to one organization's tenant store.
// Handles live only in process memory and are owned by the router's registry
// cache; collaborators must not close them.
type Handle struct {
	OrgID     int64
	StoreName string
	Conn      store.Conn
}

// Pool returns the underlying pgx pool for typed queries, or nil when the
// handle was opened through a non-pgx dialer (tests).
func (h *Handle) Pool() *pgxpool.Pool {
	pool, _ := h.Conn.(*pgxpool.Pool)
	return pool
}
