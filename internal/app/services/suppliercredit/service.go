// Package suppliercredit implements buy-now-pay-later credit lines between
// verified suppliers and tenants, with invoice tracking and an overdue
// sweeper.
package suppliercredit

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nilelink/trustcore/internal/app/auth"
	domain "github.com/nilelink/trustcore/internal/app/domain/credit"
	"github.com/nilelink/trustcore/internal/app/events"
	"github.com/nilelink/trustcore/internal/app/funds"
	"github.com/nilelink/trustcore/internal/app/ledger"
	"github.com/nilelink/trustcore/internal/app/storage"
	"github.com/nilelink/trustcore/internal/errors"
	"github.com/nilelink/trustcore/pkg/logger"
)

// DefaultSweepSchedule runs the overdue sweep at the top of every hour.
const DefaultSweepSchedule = "0 * * * *"

// Service manages supplier credit lines and invoices. It is also a
// lifecycle-managed component: Start schedules the overdue sweep.
type Service struct {
	store storage.CreditStore
	funds funds.Substrate
	locks *ledger.KeyedMutex
	bus   *events.Bus
	log   *logger.Logger

	schedule string
	cron     *cron.Cron
}

// New constructs the supplier credit service. An empty schedule selects the
// hourly default.
func New(store storage.CreditStore, substrate funds.Substrate, schedule string, bus *events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("suppliercredit")
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Service{
		store:    store,
		funds:    substrate,
		locks:    ledger.NewKeyedMutex(),
		bus:      bus,
		log:      log,
		schedule: schedule,
	}
}

// Name implements system.Service.
func (s *Service) Name() string { return "suppliercredit" }

// Start schedules the overdue invoice sweep.
func (s *Service) Start(_ context.Context) error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.SweepOverdue(context.Background(), time.Now()); err != nil {
			s.log.WithError(err).Error("overdue sweep failed")
		}
	}); err != nil {
		return errors.Internal("scheduling overdue sweep", err)
	}
	s.cron.Start()
	s.log.WithField("schedule", s.schedule).Info("overdue sweep scheduled")
	return nil
}

// Stop halts the sweep scheduler.
func (s *Service) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// VerifySupplier flips a supplier's verification flag. Governance only.
func (s *Service) VerifySupplier(ctx context.Context, actor auth.Actor, supplierID string, verified bool) error {
	if err := auth.Require(actor, auth.OpVerifySupplier); err != nil {
		return err
	}
	supplierID = strings.ToLower(strings.TrimSpace(supplierID))
	if supplierID == "" {
		return errors.Validation("supplier id is required")
	}
	if err := s.store.SetSupplierVerified(ctx, supplierID, verified); err != nil {
		return err
	}
	s.log.WithField("supplier", supplierID).WithField("verified", verified).Info("supplier verification updated")
	return nil
}

// IsSupplierVerified reports the supplier's verification flag.
func (s *Service) IsSupplierVerified(ctx context.Context, supplierID string) bool {
	ok, err := s.store.IsSupplierVerified(ctx, strings.ToLower(strings.TrimSpace(supplierID)))
	if err != nil {
		s.log.WithError(err).Warn("supplier verification lookup failed")
		return false
	}
	return ok
}

// SetCreditLine sets or resizes the (tenant, supplier) credit budget.
// Governance only. Shrinking below the used amount is rejected.
func (s *Service) SetCreditLine(ctx context.Context, actor auth.Actor, tenantAddr, supplierID string, limitUsd6 int64, termsHash string) (domain.Line, error) {
	if err := auth.Require(actor, auth.OpSetCreditLine); err != nil {
		return domain.Line{}, err
	}
	tenantAddr = strings.ToLower(strings.TrimSpace(tenantAddr))
	supplierID = strings.ToLower(strings.TrimSpace(supplierID))
	if tenantAddr == "" || supplierID == "" {
		return domain.Line{}, errors.Validation("tenant and supplier are required")
	}
	if limitUsd6 < 0 {
		return domain.Line{}, errors.Validation("credit limit cannot be negative")
	}

	unlock := s.locks.Lock(lineKey(tenantAddr, supplierID))
	defer unlock()

	now := time.Now().UTC()
	line, err := s.store.GetLine(ctx, tenantAddr, supplierID)
	if errors.IsCode(err, errors.CodeNotFound) {
		line = domain.Line{TenantAddr: tenantAddr, SupplierID: supplierID, CreatedAt: now}
	} else if err != nil {
		return domain.Line{}, err
	}
	if limitUsd6 < line.UsedUsd6 {
		return domain.Line{}, errors.Validation("limit below outstanding usage").
			WithDetails("used_usd6", line.UsedUsd6)
	}
	line.LimitUsd6 = limitUsd6
	line.TermsHash = termsHash
	line.UpdatedAt = now

	line, err = s.store.UpsertLine(ctx, line)
	if err != nil {
		return domain.Line{}, err
	}
	s.log.WithField("tenant", tenantAddr).
		WithField("supplier", supplierID).
		WithField("limit", ledger.FormatUSD6(limitUsd6)).
		Info("credit line set")
	return line, nil
}

// GetCreditLine returns the (tenant, supplier) line or NotFound.
func (s *Service) GetCreditLine(ctx context.Context, tenantAddr, supplierID string) (domain.Line, error) {
	return s.store.GetLine(ctx, strings.ToLower(strings.TrimSpace(tenantAddr)), strings.ToLower(strings.TrimSpace(supplierID)))
}

// UseCredit draws amountUsd6 from the line and opens an invoice due at dueAt.
// Only verified suppliers can extend credit.
func (s *Service) UseCredit(ctx context.Context, supplierID, tenantAddr, invoiceID string, amountUsd6 int64, dueAt time.Time, termsHash string) (domain.Invoice, error) {
	supplierID = strings.ToLower(strings.TrimSpace(supplierID))
	tenantAddr = strings.ToLower(strings.TrimSpace(tenantAddr))
	invoiceID = strings.ToLower(strings.TrimSpace(invoiceID))
	if invoiceID == "" {
		return domain.Invoice{}, errors.Validation("invoice id is required")
	}
	if amountUsd6 <= 0 {
		return domain.Invoice{}, errors.Validation("credit amount must be positive")
	}
	if !s.IsSupplierVerified(ctx, supplierID) {
		return domain.Invoice{}, errors.Unauthorized("supplier is not verified")
	}

	unlock := s.locks.Lock(lineKey(tenantAddr, supplierID))
	defer unlock()

	line, err := s.store.GetLine(ctx, tenantAddr, supplierID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if line.UsedUsd6+amountUsd6 > line.LimitUsd6 {
		return domain.Invoice{}, errors.Validation("draw exceeds credit limit").
			WithDetails("limit_usd6", line.LimitUsd6).
			WithDetails("used_usd6", line.UsedUsd6)
	}

	now := time.Now().UTC()
	inv, err := s.store.CreateInvoice(ctx, domain.Invoice{
		ID:         invoiceID,
		SupplierID: supplierID,
		TenantAddr: tenantAddr,
		AmountUsd6: amountUsd6,
		TermsHash:  termsHash,
		Status:     domain.InvoicePending,
		DueAt:      dueAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	line.UsedUsd6 += amountUsd6
	line.UpdatedAt = now
	if _, err := s.store.UpsertLine(ctx, line); err != nil {
		return domain.Invoice{}, err
	}

	s.log.WithField("invoice", inv.ID).
		WithField("tenant", tenantAddr).
		WithField("supplier", supplierID).
		WithField("amount", ledger.FormatUSD6(amountUsd6)).
		Info("credit drawn")
	if s.bus != nil {
		s.bus.Emit(events.TypeInvoiceCreated, map[string]interface{}{
			"invoice":  inv.ID,
			"tenant":   tenantAddr,
			"supplier": supplierID,
			"amount":   amountUsd6,
			"due_at":   dueAt,
		})
	}
	return inv, nil
}

// Repay pays amountUsd6 of the invoice from the tenant to the supplier.
// Partial repayments are allowed; credit is released as it is repaid and the
// invoice flips to PAID at full repayment.
func (s *Service) Repay(ctx context.Context, tenantAddr, invoiceID string, amountUsd6 int64, txRef string) (domain.Invoice, error) {
	tenantAddr = strings.ToLower(strings.TrimSpace(tenantAddr))
	invoiceID = strings.ToLower(strings.TrimSpace(invoiceID))
	if amountUsd6 <= 0 {
		return domain.Invoice{}, errors.Validation("repayment must be positive")
	}

	inv, err := s.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if inv.TenantAddr != tenantAddr {
		return domain.Invoice{}, errors.Unauthorized("invoice belongs to another tenant")
	}
	if inv.Status == domain.InvoicePaid {
		return domain.Invoice{}, errors.InvalidState("invoice is already paid")
	}

	unlock := s.locks.Lock(lineKey(inv.TenantAddr, inv.SupplierID))
	defer unlock()

	if amountUsd6 > inv.Outstanding() {
		return domain.Invoice{}, errors.Validation("repayment exceeds outstanding amount").
			WithDetails("outstanding_usd6", inv.Outstanding())
	}

	if err := s.funds.Transfer(ctx, inv.TenantAddr, inv.SupplierID, amountUsd6); err != nil {
		return domain.Invoice{}, err
	}

	now := time.Now().UTC()
	inv.PaidUsd6 += amountUsd6
	inv.SettledTx = txRef
	inv.UpdatedAt = now
	if inv.Outstanding() == 0 {
		inv.Status = domain.InvoicePaid
	} else if inv.Status != domain.InvoiceOverdue {
		inv.Status = domain.InvoicePartial
	}
	inv, err = s.store.UpdateInvoice(ctx, inv)
	if err != nil {
		return domain.Invoice{}, err
	}

	line, err := s.store.GetLine(ctx, inv.TenantAddr, inv.SupplierID)
	if err != nil {
		return domain.Invoice{}, err
	}
	line.UsedUsd6 -= amountUsd6
	if line.UsedUsd6 < 0 {
		line.UsedUsd6 = 0
	}
	line.UpdatedAt = now
	if _, err := s.store.UpsertLine(ctx, line); err != nil {
		return domain.Invoice{}, err
	}

	s.log.WithField("invoice", inv.ID).
		WithField("paid", ledger.FormatUSD6(inv.PaidUsd6)).
		WithField("status", string(inv.Status)).
		Info("invoice repayment")
	if s.bus != nil && inv.Status == domain.InvoicePaid {
		s.bus.Emit(events.TypeInvoiceSettled, map[string]interface{}{
			"invoice":  inv.ID,
			"tenant":   inv.TenantAddr,
			"supplier": inv.SupplierID,
			"tx_ref":   txRef,
		})
	}
	return inv, nil
}

// GetInvoice returns the invoice or NotFound.
func (s *Service) GetInvoice(ctx context.Context, invoiceID string) (domain.Invoice, error) {
	return s.store.GetInvoice(ctx, strings.ToLower(strings.TrimSpace(invoiceID)))
}

// ListInvoices returns a tenant's invoices.
func (s *Service) ListInvoices(ctx context.Context, tenantAddr string) ([]domain.Invoice, error) {
	return s.store.ListInvoicesByTenant(ctx, strings.ToLower(strings.TrimSpace(tenantAddr)))
}

// SweepOverdue flips unpaid invoices past their due date to OVERDUE.
func (s *Service) SweepOverdue(ctx context.Context, now time.Time) error {
	due, err := s.store.ListUnpaidInvoicesDueBefore(ctx, now)
	if err != nil {
		return err
	}
	for _, inv := range due {
		if inv.Status == domain.InvoiceOverdue {
			continue
		}
		inv.Status = domain.InvoiceOverdue
		inv.UpdatedAt = now.UTC()
		if _, err := s.store.UpdateInvoice(ctx, inv); err != nil {
			return err
		}
		s.log.WithField("invoice", inv.ID).WithField("tenant", inv.TenantAddr).Warn("invoice overdue")
	}
	return nil
}

func lineKey(tenantAddr, supplierID string) string {
	return "credit:" + tenantAddr + "|" + supplierID
}
