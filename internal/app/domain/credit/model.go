// Package credit defines supplier credit lines and invoices.
package credit

import "time"

// InvoiceStatus is the repayment state of an invoice.
type InvoiceStatus string

const (
	InvoicePending InvoiceStatus = "pending"
	InvoicePartial InvoiceStatus = "partial"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceOverdue InvoiceStatus = "overdue"
)

// Line is the credit budget extended by one supplier to one tenant.
type Line struct {
	TenantAddr string
	SupplierID string
	LimitUsd6  int64
	UsedUsd6   int64
	TermsHash  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Invoice is one credit draw against a line.
type Invoice struct {
	ID         string
	SupplierID string
	TenantAddr string
	AmountUsd6 int64
	PaidUsd6   int64
	TermsHash  string
	Status     InvoiceStatus
	DueAt      time.Time
	SettledTx  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Outstanding returns the unpaid remainder.
func (i Invoice) Outstanding() int64 { return i.AmountUsd6 - i.PaidUsd6 }
