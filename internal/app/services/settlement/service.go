// Package settlement implements the order ledger: the PENDING -> CONFIRMED ->
// SETTLED lifecycle, the refund and cancel branches, and the commission fee
// entries written at settlement time.
package settlement

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/nilelink/trustcore/internal/app/domain/order"
	"github.com/nilelink/trustcore/internal/app/domain/fraud"
	"github.com/nilelink/trustcore/internal/app/domain/tenant"
	"github.com/nilelink/trustcore/internal/app/events"
	"github.com/nilelink/trustcore/internal/app/funds"
	"github.com/nilelink/trustcore/internal/app/ledger"
	"github.com/nilelink/trustcore/internal/app/metrics"
	"github.com/nilelink/trustcore/internal/app/storage"
	"github.com/nilelink/trustcore/internal/errors"
	"github.com/nilelink/trustcore/pkg/logger"
)

// CommissionSource prices the platform cut for a settling order.
type CommissionSource interface {
	GetCommission(ctx context.Context, supplierID string, grossUsd6 int64) (feeUsd6 int64, rateBps int64)
}

// RiskChecker is the fraud detector view consulted before a payment is
// accepted.
type RiskChecker interface {
	IsBlocked(ctx context.Context, subjectHash string) bool
	CheckOrderAnomaly(ctx context.Context, tenantAddr, orderID string, amountUsd6 int64) (fraud.Assessment, error)
}

// TenantDirectory resolves tenants at order creation.
type TenantDirectory interface {
	GetTenant(ctx context.Context, addr string) (tenant.Record, error)
}

// Service is the settlement ledger.
type Service struct {
	store       storage.OrderStore
	tenants     TenantDirectory
	commissions CommissionSource
	risk        RiskChecker
	funds       funds.Substrate
	locks       *ledger.KeyedMutex
	bus         *events.Bus
	log         *logger.Logger
}

// New constructs the settlement ledger service.
func New(store storage.OrderStore, tenants TenantDirectory, commissions CommissionSource, risk RiskChecker, substrate funds.Substrate, bus *events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("settlement")
	}
	return &Service{
		store:       store,
		tenants:     tenants,
		commissions: commissions,
		risk:        risk,
		funds:       substrate,
		locks:       ledger.NewKeyedMutex(),
		bus:         bus,
		log:         log,
	}
}

// CreateOrder opens a PENDING order against an active tenant.
func (s *Service) CreateOrder(ctx context.Context, orderID, tenantAddr, customerAddr string, amountUsd6 int64) (domain.Order, error) {
	orderID = strings.ToLower(strings.TrimSpace(orderID))
	if orderID == "" {
		return domain.Order{}, errors.Validation("order id is required")
	}
	if amountUsd6 <= 0 {
		return domain.Order{}, errors.Validation("order amount must be positive")
	}
	customerAddr = strings.ToLower(strings.TrimSpace(customerAddr))
	if customerAddr == "" {
		return domain.Order{}, errors.Validation("customer address is required")
	}

	rec, err := s.tenants.GetTenant(ctx, tenantAddr)
	if err != nil {
		return domain.Order{}, err
	}
	if rec.Config.Status != tenant.StatusActive {
		return domain.Order{}, errors.InvalidState("tenant is not active")
	}

	now := time.Now().UTC()
	ord, err := s.store.CreateOrder(ctx, domain.Order{
		ID:           orderID,
		TenantAddr:   rec.Address,
		CustomerAddr: customerAddr,
		AmountUsd6:   amountUsd6,
		Status:       domain.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.log.WithField("order_id", ord.ID).
		WithField("tenant", ord.TenantAddr).
		WithField("amount", ledger.FormatUSD6(ord.AmountUsd6)).
		Info("order created")
	if s.bus != nil {
		s.bus.Emit(events.TypeOrderCreated, map[string]interface{}{
			"order_id": ord.ID,
			"tenant":   ord.TenantAddr,
			"amount":   ord.AmountUsd6,
		})
	}
	return ord, nil
}

// ConfirmPayment moves a clear PENDING order to CONFIRMED and pulls the
// customer's funds into settlement escrow. Orders that trip the fraud check,
// or whose tenant is already blocked, are held: they stay PENDING with the
// Flagged bit set and the assessment is returned as a non-error outcome.
func (s *Service) ConfirmPayment(ctx context.Context, orderID string) (domain.Order, fraud.Assessment, error) {
	orderID = strings.ToLower(strings.TrimSpace(orderID))
	unlock := s.locks.Lock("order:" + orderID)
	defer unlock()

	ord, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, fraud.Assessment{}, err
	}
	if ord.Status != domain.StatusPending {
		return domain.Order{}, fraud.Assessment{}, errors.InvalidState("order is not pending").WithDetails("status", string(ord.Status))
	}

	if s.risk.IsBlocked(ctx, ord.TenantAddr) {
		held := fraud.Assessment{
			IsAnomaly: true,
			Severity:  fraud.AutoBlockSeverity,
			Action:    fraud.ActionBlock,
			Reason:    "tenant is blocked",
		}
		ord, err = s.holdOrder(ctx, ord, held.Reason)
		return ord, held, err
	}

	assessment, err := s.risk.CheckOrderAnomaly(ctx, ord.TenantAddr, ord.ID, ord.AmountUsd6)
	if err != nil {
		return domain.Order{}, fraud.Assessment{}, err
	}
	if assessment.IsAnomaly {
		ord, err = s.holdOrder(ctx, ord, assessment.Reason)
		return ord, assessment, err
	}

	if err := s.funds.Transfer(ctx, ord.CustomerAddr, funds.AccountEscrow, ord.AmountUsd6); err != nil {
		return domain.Order{}, fraud.Assessment{}, err
	}

	now := time.Now().UTC()
	ord.Status = domain.StatusConfirmed
	ord.PaidAt = now
	ord.UpdatedAt = now
	ord, err = s.store.UpdateOrder(ctx, ord)
	if err != nil {
		return domain.Order{}, fraud.Assessment{}, err
	}

	s.log.WithField("order_id", ord.ID).Info("payment confirmed")
	if s.bus != nil {
		s.bus.Emit(events.TypeOrderConfirmed, map[string]interface{}{
			"order_id": ord.ID,
			"tenant":   ord.TenantAddr,
			"amount":   ord.AmountUsd6,
		})
	}
	return ord, fraud.Clear(), nil
}

func (s *Service) holdOrder(ctx context.Context, ord domain.Order, reason string) (domain.Order, error) {
	ord.Flagged = true
	ord.FlagReason = reason
	ord.UpdatedAt = time.Now().UTC()
	held, err := s.store.UpdateOrder(ctx, ord)
	if err != nil {
		return domain.Order{}, err
	}
	s.log.WithField("order_id", ord.ID).
		WithField("reason", reason).
		Warn("order held for review")
	return held, nil
}

// CompleteOrder settles a CONFIRMED order: escrow pays the tenant net of
// commission, the platform collects the fee, and an append-only fee entry
// records the applied rate. A failed transfer aborts before any ledger write.
func (s *Service) CompleteOrder(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.ToLower(strings.TrimSpace(orderID))
	unlock := s.locks.Lock("order:" + orderID)
	defer unlock()

	ord, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if ord.Status != domain.StatusConfirmed {
		return domain.Order{}, errors.InvalidState("order is not confirmed").WithDetails("status", string(ord.Status))
	}

	feeUsd6, rateBps := s.commissions.GetCommission(ctx, ord.TenantAddr, ord.AmountUsd6)
	netUsd6 := ord.AmountUsd6 - feeUsd6

	if err := s.funds.Transfer(ctx, funds.AccountEscrow, ord.TenantAddr, netUsd6); err != nil {
		return domain.Order{}, err
	}
	if feeUsd6 > 0 {
		if err := s.funds.Transfer(ctx, funds.AccountEscrow, funds.AccountPlatform, feeUsd6); err != nil {
			// Return the net leg so escrow stays whole before aborting.
			if rbErr := s.funds.Transfer(ctx, ord.TenantAddr, funds.AccountEscrow, netUsd6); rbErr != nil {
				s.log.WithError(rbErr).WithField("order_id", ord.ID).Error("fee transfer rollback failed")
			}
			return domain.Order{}, err
		}
	}

	now := time.Now().UTC()
	if _, err := s.store.CreateFeeEntry(ctx, domain.FeeEntry{
		ID:         uuid.NewString(),
		OrderID:    ord.ID,
		TenantAddr: ord.TenantAddr,
		SupplierID: ord.TenantAddr,
		GrossUsd6:  ord.AmountUsd6,
		FeeUsd6:    feeUsd6,
		RateBps:    rateBps,
		CreatedAt:  now,
	}); err != nil {
		return domain.Order{}, err
	}

	ord.Status = domain.StatusSettled
	ord.SettledAt = now
	ord.UpdatedAt = now
	ord, err = s.store.UpdateOrder(ctx, ord)
	if err != nil {
		return domain.Order{}, err
	}

	metrics.OrderOutcome("settled", ord.AmountUsd6)
	s.log.WithField("order_id", ord.ID).
		WithField("net", ledger.FormatUSD6(netUsd6)).
		WithField("fee", ledger.FormatUSD6(feeUsd6)).
		Info("order settled")
	if s.bus != nil {
		s.bus.Emit(events.TypeOrderSettled, map[string]interface{}{
			"order_id": ord.ID,
			"tenant":   ord.TenantAddr,
			"gross":    ord.AmountUsd6,
			"fee":      feeUsd6,
			"rate_bps": rateBps,
		})
	}
	return ord, nil
}

// RefundOrder returns a PENDING or CONFIRMED order to the customer. Funds
// move back only when a payment was actually taken.
func (s *Service) RefundOrder(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.ToLower(strings.TrimSpace(orderID))
	unlock := s.locks.Lock("order:" + orderID)
	defer unlock()

	ord, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !domain.CanTransition(ord.Status, domain.StatusRefunded) {
		return domain.Order{}, errors.InvalidState("order cannot be refunded").WithDetails("status", string(ord.Status))
	}

	if ord.Status == domain.StatusConfirmed {
		if err := s.funds.Transfer(ctx, funds.AccountEscrow, ord.CustomerAddr, ord.AmountUsd6); err != nil {
			return domain.Order{}, err
		}
	}

	ord.Status = domain.StatusRefunded
	ord.UpdatedAt = time.Now().UTC()
	ord, err = s.store.UpdateOrder(ctx, ord)
	if err != nil {
		return domain.Order{}, err
	}

	metrics.OrderOutcome("refunded", 0)
	s.log.WithField("order_id", ord.ID).Info("order refunded")
	if s.bus != nil {
		s.bus.Emit(events.TypeOrderRefunded, map[string]interface{}{
			"order_id": ord.ID,
			"tenant":   ord.TenantAddr,
			"amount":   ord.AmountUsd6,
		})
	}
	return ord, nil
}

// CancelOrder voids a PENDING order before any payment.
func (s *Service) CancelOrder(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.ToLower(strings.TrimSpace(orderID))
	unlock := s.locks.Lock("order:" + orderID)
	defer unlock()

	ord, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !domain.CanTransition(ord.Status, domain.StatusCancelled) {
		return domain.Order{}, errors.InvalidState("only pending orders can be cancelled").WithDetails("status", string(ord.Status))
	}

	ord.Status = domain.StatusCancelled
	ord.UpdatedAt = time.Now().UTC()
	ord, err = s.store.UpdateOrder(ctx, ord)
	if err != nil {
		return domain.Order{}, err
	}

	metrics.OrderOutcome("cancelled", 0)
	s.log.WithField("order_id", ord.ID).Info("order cancelled")
	if s.bus != nil {
		s.bus.Emit(events.TypeOrderCancelled, map[string]interface{}{
			"order_id": ord.ID,
			"tenant":   ord.TenantAddr,
		})
	}
	return ord, nil
}

// GetOrder returns the order or NotFound.
func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return s.store.GetOrder(ctx, strings.ToLower(strings.TrimSpace(orderID)))
}

// GetOrderStatus returns only the lifecycle status.
func (s *Service) GetOrderStatus(ctx context.Context, orderID string) (domain.Status, error) {
	ord, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	return ord.Status, nil
}

// ListOrders returns all orders for a tenant, most recent first.
func (s *Service) ListOrders(ctx context.Context, tenantAddr string) ([]domain.Order, error) {
	return s.store.ListOrdersByTenant(ctx, strings.ToLower(strings.TrimSpace(tenantAddr)))
}

// ListFeeEntries returns the fee audit rows for an order.
func (s *Service) ListFeeEntries(ctx context.Context, orderID string) ([]domain.FeeEntry, error) {
	return s.store.ListFeeEntries(ctx, strings.ToLower(strings.TrimSpace(orderID)))
}

// Stats returns order totals for the protocol dashboard.
func (s *Service) Stats(ctx context.Context) (total, settledUsd6, feesUsd6 int64, err error) {
	return s.store.OrderStats(ctx)
}
