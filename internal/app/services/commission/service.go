// Package commission maintains the per-supplier commission rate table and
// computes fees.
package commission

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/nilelink/trustcore/internal/app/auth"
	domain "github.com/nilelink/trustcore/internal/app/domain/commission"
	"github.com/nilelink/trustcore/internal/app/events"
	"github.com/nilelink/trustcore/internal/app/ledger"
	"github.com/nilelink/trustcore/internal/app/storage"
	"github.com/nilelink/trustcore/internal/errors"
	"github.com/nilelink/trustcore/pkg/logger"
)

// Service manages commission rules.
type Service struct {
	store       storage.CommissionStore
	defaultRate atomic.Int64
	bus         *events.Bus
	log         *logger.Logger
}

// New constructs a commission service. defaultRateBps <= 0 selects the
// platform default.
func New(store storage.CommissionStore, defaultRateBps int64, bus *events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("commission")
	}
	if defaultRateBps <= 0 {
		defaultRateBps = domain.DefaultRateBps
	}
	s := &Service{store: store, bus: bus, log: log}
	s.defaultRate.Store(defaultRateBps)
	return s
}

// DefaultRate returns the platform default commission rate in bps.
func (s *Service) DefaultRate() int64 { return s.defaultRate.Load() }

// SetDefaultRate updates the platform default commission rate. Callers are
// expected to validate against the protocol fee cap.
func (s *Service) SetDefaultRate(rateBps int64) {
	s.defaultRate.Store(rateBps)
	s.log.WithField("rate_bps", rateBps).Info("default commission rate updated")
}

// UpdateRule upserts a supplier's commission rule. Admin only.
func (s *Service) UpdateRule(ctx context.Context, actor auth.Actor, supplierID string, rateBps int64, tier string, active bool) (domain.Rule, error) {
	if err := auth.Require(actor, auth.OpUpdateRule); err != nil {
		return domain.Rule{}, err
	}
	supplierID = strings.TrimSpace(supplierID)
	if supplierID == "" {
		return domain.Rule{}, errors.Validation("supplier id is required")
	}
	if rateBps < 0 || rateBps > 10_000 {
		return domain.Rule{}, errors.Validation("commission rate out of range").
			WithDetails("rate_bps", rateBps)
	}

	rule, err := s.store.UpsertRule(ctx, domain.Rule{
		SupplierID: supplierID,
		RateBps:    rateBps,
		Tier:       tier,
		Active:     active,
		UpdatedBy:  actor.Address,
	})
	if err != nil {
		return domain.Rule{}, err
	}

	s.log.WithField("supplier", supplierID).
		WithField("rate_bps", rateBps).
		WithField("active", active).
		Info("commission rule updated")
	if s.bus != nil {
		s.bus.Emit(events.TypeCommissionRuleSet, map[string]interface{}{
			"supplier": supplierID,
			"rate_bps": rateBps,
			"active":   active,
		})
	}
	return rule, nil
}

// GetRule returns the supplier's stored rule, or NotFound.
func (s *Service) GetRule(ctx context.Context, supplierID string) (domain.Rule, error) {
	return s.store.GetRule(ctx, supplierID)
}

// ListRules returns all stored rules.
func (s *Service) ListRules(ctx context.Context) ([]domain.Rule, error) {
	return s.store.ListRules(ctx)
}

// GetCommission computes floor(gross * rate / 10000) for the supplier. It
// never mutates state and never fails for a valid supplier id: absent or
// inactive rules simply select the platform default rate.
func (s *Service) GetCommission(ctx context.Context, supplierID string, grossUsd6 int64) (feeUsd6 int64, rateBps int64) {
	rateBps = s.defaultRate.Load()
	if rule, err := s.store.GetRule(ctx, supplierID); err == nil && rule.Active {
		rateBps = rule.RateBps
	}
	return ledger.ApplyBps(grossUsd6, rateBps), rateBps
}
