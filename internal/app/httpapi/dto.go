package httpapi

import (
	"time"

	"github.com/nilelink/trustcore/internal/app/domain/commission"
	"github.com/nilelink/trustcore/internal/app/domain/credit"
	"github.com/nilelink/trustcore/internal/app/domain/device"
	"github.com/nilelink/trustcore/internal/app/domain/fraud"
	"github.com/nilelink/trustcore/internal/app/domain/investment"
	"github.com/nilelink/trustcore/internal/app/domain/order"
	"github.com/nilelink/trustcore/internal/app/domain/tenant"
)

// Wire views for domain records. Domain structs stay tag-free; the REST
// surface owns the JSON shape.

type tenantView struct {
	Address         string    `json:"address"`
	OwnerHash       string    `json:"owner_hash"`
	LegalNameHash   string    `json:"legal_name_hash"`
	DisplayNameHash string    `json:"display_name_hash"`
	MetadataCID     string    `json:"metadata_cid"`
	CatalogCID      string    `json:"catalog_cid"`
	Country         string    `json:"country"`
	Currency        string    `json:"currency"`
	DailyRateLimit  int64     `json:"daily_rate_limit_usd6"`
	TimezoneOffset  int       `json:"timezone_offset_minutes"`
	TaxBps          int64     `json:"tax_bps"`
	OracleRef       string    `json:"oracle_ref,omitempty"`
	Status          string    `json:"status"`
	SuspendReason   string    `json:"suspend_reason,omitempty"`
	RegisteredAt    time.Time `json:"registered_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func viewTenant(rec tenant.Record) tenantView {
	return tenantView{
		Address:         rec.Address,
		OwnerHash:       rec.Config.OwnerHash,
		LegalNameHash:   rec.Config.LegalNameHash,
		DisplayNameHash: rec.Config.DisplayNameHash,
		MetadataCID:     rec.Config.MetadataCID,
		CatalogCID:      rec.Config.CatalogCID,
		Country:         rec.Config.Country,
		Currency:        rec.Config.Currency,
		DailyRateLimit:  rec.Config.DailyRateLimit,
		TimezoneOffset:  rec.Config.TimezoneOffset,
		TaxBps:          rec.Config.TaxBps,
		OracleRef:       rec.Config.OracleRef,
		Status:          string(rec.Config.Status),
		SuspendReason:   rec.SuspendReason,
		RegisteredAt:    rec.RegisteredAt,
		UpdatedAt:       rec.UpdatedAt,
	}
}

func viewTenants(recs []tenant.Record) []tenantView {
	out := make([]tenantView, len(recs))
	for i, rec := range recs {
		out[i] = viewTenant(rec)
	}
	return out
}

type deviceView struct {
	Address      string    `json:"address"`
	DeviceID     string    `json:"device_id"`
	Active       bool      `json:"active"`
	AddedBy      string    `json:"added_by"`
	RegisteredAt time.Time `json:"registered_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func viewDevice(rec device.Record) deviceView {
	return deviceView{
		Address:      rec.Address,
		DeviceID:     rec.DeviceID,
		Active:       rec.Active,
		AddedBy:      rec.AddedBy,
		RegisteredAt: rec.RegisteredAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

type ruleView struct {
	SupplierID string    `json:"supplier_id"`
	RateBps    int64     `json:"rate_bps"`
	Tier       string    `json:"tier,omitempty"`
	Active     bool      `json:"active"`
	UpdatedBy  string    `json:"updated_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func viewRule(rule commission.Rule) ruleView {
	return ruleView{
		SupplierID: rule.SupplierID,
		RateBps:    rule.RateBps,
		Tier:       rule.Tier,
		Active:     rule.Active,
		UpdatedBy:  rule.UpdatedBy,
		CreatedAt:  rule.CreatedAt,
		UpdatedAt:  rule.UpdatedAt,
	}
}

type orderView struct {
	ID           string     `json:"id"`
	TenantAddr   string     `json:"tenant_addr"`
	CustomerAddr string     `json:"customer_addr"`
	AmountUsd6   int64      `json:"amount_usd6"`
	Status       string     `json:"status"`
	Flagged      bool       `json:"flagged,omitempty"`
	FlagReason   string     `json:"flag_reason,omitempty"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
	SettledAt    *time.Time `json:"settled_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func viewOrder(ord order.Order) orderView {
	v := orderView{
		ID:           ord.ID,
		TenantAddr:   ord.TenantAddr,
		CustomerAddr: ord.CustomerAddr,
		AmountUsd6:   ord.AmountUsd6,
		Status:       string(ord.Status),
		Flagged:      ord.Flagged,
		FlagReason:   ord.FlagReason,
		CreatedAt:    ord.CreatedAt,
		UpdatedAt:    ord.UpdatedAt,
	}
	if !ord.PaidAt.IsZero() {
		t := ord.PaidAt
		v.PaidAt = &t
	}
	if !ord.SettledAt.IsZero() {
		t := ord.SettledAt
		v.SettledAt = &t
	}
	return v
}

type feeEntryView struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"order_id"`
	TenantAddr string    `json:"tenant_addr"`
	SupplierID string    `json:"supplier_id"`
	GrossUsd6  int64     `json:"gross_usd6"`
	FeeUsd6    int64     `json:"fee_usd6"`
	RateBps    int64     `json:"rate_bps"`
	CreatedAt  time.Time `json:"created_at"`
}

func viewFeeEntry(fee order.FeeEntry) feeEntryView {
	return feeEntryView{
		ID:         fee.ID,
		OrderID:    fee.OrderID,
		TenantAddr: fee.TenantAddr,
		SupplierID: fee.SupplierID,
		GrossUsd6:  fee.GrossUsd6,
		FeeUsd6:    fee.FeeUsd6,
		RateBps:    fee.RateBps,
		CreatedAt:  fee.CreatedAt,
	}
}

type anomalyView struct {
	ID          string    `json:"id"`
	SubjectHash string    `json:"subject_hash"`
	AnomalyType string    `json:"anomaly_type"`
	Severity    int       `json:"severity"`
	DetailsHash string    `json:"details_hash,omitempty"`
	Blocked     bool      `json:"blocked"`
	CreatedAt   time.Time `json:"created_at"`
}

func viewAnomaly(rec fraud.Record) anomalyView {
	return anomalyView{
		ID:          rec.ID,
		SubjectHash: rec.SubjectHash,
		AnomalyType: rec.AnomalyType,
		Severity:    rec.Severity,
		DetailsHash: rec.DetailsHash,
		Blocked:     rec.Blocked,
		CreatedAt:   rec.CreatedAt,
	}
}

type assessmentView struct {
	IsAnomaly bool   `json:"is_anomaly"`
	Severity  int    `json:"severity"`
	Action    string `json:"action"`
	Reason    string `json:"reason,omitempty"`
}

func viewAssessment(a fraud.Assessment) assessmentView {
	return assessmentView{
		IsAnomaly: a.IsAnomaly,
		Severity:  a.Severity,
		Action:    string(a.Action),
		Reason:    a.Reason,
	}
}

type positionView struct {
	Investor     string    `json:"investor"`
	TenantAddr   string    `json:"tenant_addr"`
	InvestedUsd6 int64     `json:"invested_usd6"`
	OwnershipBps int64     `json:"ownership_bps"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func viewPosition(pos investment.Position) positionView {
	return positionView{
		Investor:     pos.Investor,
		TenantAddr:   pos.TenantAddr,
		InvestedUsd6: pos.InvestedUsd6,
		OwnershipBps: pos.OwnershipBps,
		CreatedAt:    pos.CreatedAt,
		UpdatedAt:    pos.UpdatedAt,
	}
}

type poolView struct {
	TenantAddr string    `json:"tenant_addr"`
	TotalUsd6  int64     `json:"total_usd6"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type lineView struct {
	TenantAddr string    `json:"tenant_addr"`
	SupplierID string    `json:"supplier_id"`
	LimitUsd6  int64     `json:"limit_usd6"`
	UsedUsd6   int64     `json:"used_usd6"`
	TermsHash  string    `json:"terms_hash,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func viewLine(line credit.Line) lineView {
	return lineView{
		TenantAddr: line.TenantAddr,
		SupplierID: line.SupplierID,
		LimitUsd6:  line.LimitUsd6,
		UsedUsd6:   line.UsedUsd6,
		TermsHash:  line.TermsHash,
		CreatedAt:  line.CreatedAt,
		UpdatedAt:  line.UpdatedAt,
	}
}

type invoiceView struct {
	ID         string    `json:"id"`
	SupplierID string    `json:"supplier_id"`
	TenantAddr string    `json:"tenant_addr"`
	AmountUsd6 int64     `json:"amount_usd6"`
	PaidUsd6   int64     `json:"paid_usd6"`
	TermsHash  string    `json:"terms_hash,omitempty"`
	Status     string    `json:"status"`
	DueAt      time.Time `json:"due_at"`
	SettledTx  string    `json:"settled_tx,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func viewInvoice(inv credit.Invoice) invoiceView {
	return invoiceView{
		ID:         inv.ID,
		SupplierID: inv.SupplierID,
		TenantAddr: inv.TenantAddr,
		AmountUsd6: inv.AmountUsd6,
		PaidUsd6:   inv.PaidUsd6,
		TermsHash:  inv.TermsHash,
		Status:     string(inv.Status),
		DueAt:      inv.DueAt,
		SettledTx:  inv.SettledTx,
		CreatedAt:  inv.CreatedAt,
		UpdatedAt:  inv.UpdatedAt,
	}
}
