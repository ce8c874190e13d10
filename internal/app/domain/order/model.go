// Package order defines the settlement ledger's order records.
package order

import "time"

// Status is the order lifecycle state. Transitions run forward only, except
// the explicit refund and cancel branches.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusSettled   Status = "settled"
	StatusRefunded  Status = "refunded"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusSettled || s == StatusRefunded || s == StatusCancelled
}

// CanTransition reports whether from -> to is a legal edge of the lifecycle.
func CanTransition(from, to Status) bool {
	switch to {
	case StatusConfirmed:
		return from == StatusPending
	case StatusSettled:
		return from == StatusConfirmed
	case StatusRefunded:
		return from == StatusPending || from == StatusConfirmed
	case StatusCancelled:
		return from == StatusPending
	default:
		return false
	}
}

// Order is one settlement-ledger entry, identified by a 128-bit hex id.
type Order struct {
	ID           string
	TenantAddr   string
	CustomerAddr string
	AmountUsd6   int64
	Status       Status
	// Flagged marks an order held for governance review after an anomaly
	// trip; the order stays PENDING until reviewed.
	Flagged    bool
	FlagReason string
	PaidAt     time.Time
	SettledAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// FeeEntry records the commission cut applied when an order settles. Entries
// are append-only audit rows; recomputing a rule never rewrites them.
type FeeEntry struct {
	ID         string
	OrderID    string
	TenantAddr string
	SupplierID string
	GrossUsd6  int64
	FeeUsd6    int64
	RateBps    int64
	CreatedAt  time.Time
}
