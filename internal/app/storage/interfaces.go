package storage

import (
	"context"
	"time"

	"github.com/nilelink/trustcore/internal/app/domain/commission"
	"github.com/nilelink/trustcore/internal/app/domain/credit"
	"github.com/nilelink/trustcore/internal/app/domain/device"
	"github.com/nilelink/trustcore/internal/app/domain/fraud"
	"github.com/nilelink/trustcore/internal/app/domain/investment"
	"github.com/nilelink/trustcore/internal/app/domain/order"
	"github.com/nilelink/trustcore/internal/app/domain/tenant"
)

// TenantStore persists the tenant directory.
type TenantStore interface {
	CreateTenant(ctx context.Context, rec tenant.Record) (tenant.Record, error)
	UpdateTenant(ctx context.Context, rec tenant.Record) (tenant.Record, error)
	GetTenant(ctx context.Context, addr string) (tenant.Record, error)
	ListTenants(ctx context.Context) ([]tenant.Record, error)
	CountTenants(ctx context.Context) (int64, error)

	SetOracle(ctx context.Context, currency, oracleRef string) error
	GetOracle(ctx context.Context, currency string) (string, error)
}

// DeviceStore persists the terminal allow-list.
type DeviceStore interface {
	CreateDevice(ctx context.Context, rec device.Record) (device.Record, error)
	UpdateDevice(ctx context.Context, rec device.Record) (device.Record, error)
	GetDevice(ctx context.Context, addr string) (device.Record, error)
	ListDevices(ctx context.Context) ([]device.Record, error)
}

// CommissionStore persists per-supplier commission rules.
type CommissionStore interface {
	UpsertRule(ctx context.Context, rule commission.Rule) (commission.Rule, error)
	GetRule(ctx context.Context, supplierID string) (commission.Rule, error)
	ListRules(ctx context.Context) ([]commission.Rule, error)
}

// AnomalyStore persists anomaly records and the derived block index.
// AppendAnomaly must write the record and, when block is true, the subject's
// blocked flag in one atomic step.
type AnomalyStore interface {
	AppendAnomaly(ctx context.Context, rec fraud.Record, block bool) (fraud.Record, error)
	BlockSubject(ctx context.Context, subjectHash string) error
	IsBlocked(ctx context.Context, subjectHash string) (bool, error)
	ListAnomalies(ctx context.Context, subjectHash string) ([]fraud.Record, error)
	CountAnomalies(ctx context.Context) (int64, error)
}

// VolumeStore tracks rolling per-tenant order volume. Add must be atomic so
// concurrent checks never lose an increment.
type VolumeStore interface {
	// Add records amount against the tenant's hour and day buckets at the
	// given instant and returns the updated totals including this amount.
	Add(ctx context.Context, tenantAddr string, amountUsd6 int64, at time.Time) (hourUsd6, dayUsd6 int64, err error)
	// ResetDay clears the tenant's current day bucket (rate-limit change).
	ResetDay(ctx context.Context, tenantAddr string, at time.Time) error
}

// OrderStore persists orders and their settlement fee entries.
type OrderStore interface {
	CreateOrder(ctx context.Context, ord order.Order) (order.Order, error)
	UpdateOrder(ctx context.Context, ord order.Order) (order.Order, error)
	GetOrder(ctx context.Context, id string) (order.Order, error)
	ListOrdersByTenant(ctx context.Context, tenantAddr string) ([]order.Order, error)

	CreateFeeEntry(ctx context.Context, entry order.FeeEntry) (order.FeeEntry, error)
	ListFeeEntries(ctx context.Context, orderID string) ([]order.FeeEntry, error)
	// OrderStats returns total orders, settled gross volume, and collected fees.
	OrderStats(ctx context.Context) (total int64, settledUsd6 int64, feesUsd6 int64, err error)
}

// InvestmentStore persists investor positions and per-tenant pools.
type InvestmentStore interface {
	GetPosition(ctx context.Context, investor, tenantAddr string) (investment.Position, error)
	UpsertPosition(ctx context.Context, pos investment.Position) (investment.Position, error)
	ListPositionsByTenant(ctx context.Context, tenantAddr string) ([]investment.Position, error)
	GetPool(ctx context.Context, tenantAddr string) (investment.Pool, error)
	UpsertPool(ctx context.Context, pool investment.Pool) (investment.Pool, error)
	TotalInvested(ctx context.Context) (int64, error)
}

// CreditStore persists supplier verification, credit lines, and invoices.
type CreditStore interface {
	SetSupplierVerified(ctx context.Context, supplierID string, verified bool) error
	IsSupplierVerified(ctx context.Context, supplierID string) (bool, error)

	UpsertLine(ctx context.Context, line credit.Line) (credit.Line, error)
	GetLine(ctx context.Context, tenantAddr, supplierID string) (credit.Line, error)

	CreateInvoice(ctx context.Context, inv credit.Invoice) (credit.Invoice, error)
	UpdateInvoice(ctx context.Context, inv credit.Invoice) (credit.Invoice, error)
	GetInvoice(ctx context.Context, id string) (credit.Invoice, error)
	ListInvoicesByTenant(ctx context.Context, tenantAddr string) ([]credit.Invoice, error)
	ListUnpaidInvoicesDueBefore(ctx context.Context, cutoff time.Time) ([]credit.Invoice, error)
}

// ProtocolStore persists the protocol-wide fee and pause switches.
type ProtocolStore interface {
	GetProtocolState(ctx context.Context) (ProtocolState, error)
	SaveProtocolState(ctx context.Context, state ProtocolState) (ProtocolState, error)
}

// ProtocolState is the protocol-wide configuration row.
type ProtocolState struct {
	FeeBps         int64
	Paused         bool
	GovernanceAddr string
	UpdatedAt      time.Time
}
