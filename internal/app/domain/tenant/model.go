// Package tenant defines the registry's tenant directory records.
package tenant

import "time"

// Status is the lifecycle state of a registered tenant. Tenants are never
// deleted; they transition status instead.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusClosed    Status = "closed"
)

// Config is the registered business profile. Identity fields are stored as
// opaque hashes and the two CIDs are content-addressed pointers the core
// never dereferences.
type Config struct {
	OwnerHash       string
	LegalNameHash   string
	DisplayNameHash string
	MetadataCID     string
	CatalogCID      string
	Country         string // ISO 3166-1 alpha-2
	Currency        string // ISO 4217
	DailyRateLimit  int64  // USD6
	TimezoneOffset  int    // minutes east of UTC
	TaxBps          int64
	OracleRef       string
	Status          Status
}

// Record wraps a Config with registry bookkeeping.
type Record struct {
	Address       string
	Config        Config
	SuspendReason string
	RegisteredAt  time.Time
	UpdatedAt     time.Time
}
