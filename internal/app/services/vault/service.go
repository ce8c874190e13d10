// Package vault implements proportional-ownership investment pools. Each
// tenant has one pool; investor shares are recomputed from current balances
// after every flow, so replaying the same operation history always yields the
// same shares.
package vault

import (
	"context"
	"strings"
	"time"

	domain "github.com/nilelink/trustcore/internal/app/domain/investment"
	"github.com/nilelink/trustcore/internal/app/domain/tenant"
	"github.com/nilelink/trustcore/internal/app/events"
	"github.com/nilelink/trustcore/internal/app/funds"
	"github.com/nilelink/trustcore/internal/app/ledger"
	"github.com/nilelink/trustcore/internal/app/metrics"
	"github.com/nilelink/trustcore/internal/app/storage"
	"github.com/nilelink/trustcore/internal/errors"
	"github.com/nilelink/trustcore/pkg/logger"
)

// TenantDirectory resolves tenants at deposit time.
type TenantDirectory interface {
	GetTenant(ctx context.Context, addr string) (tenant.Record, error)
}

// Service is the investment vault.
type Service struct {
	store   storage.InvestmentStore
	tenants TenantDirectory
	funds   funds.Substrate
	// retentionBps of every deposit is withheld into the vault reserve
	// account instead of being forwarded to the tenant. Zero forwards the
	// full amount; withdrawals then rely on an operator-funded reserve.
	retentionBps int64
	locks        *ledger.KeyedMutex
	bus          *events.Bus
	log          *logger.Logger
}

// New constructs the vault. retentionBps outside 0..10000 is clamped to 0.
func New(store storage.InvestmentStore, tenants TenantDirectory, substrate funds.Substrate, retentionBps int64, bus *events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("vault")
	}
	if retentionBps < 0 || retentionBps > ledger.BpsDenominator {
		retentionBps = 0
	}
	return &Service{
		store:        store,
		tenants:      tenants,
		funds:        substrate,
		retentionBps: retentionBps,
		locks:        ledger.NewKeyedMutex(),
		bus:          bus,
		log:          log,
	}
}

// Deposit stakes amountUsd6 from the investor into the tenant's pool. The
// retained slice stays in the vault reserve; the rest is forwarded to the
// tenant. All positions for the tenant are re-shared under the pool lock.
func (s *Service) Deposit(ctx context.Context, investor, tenantAddr string, amountUsd6 int64) (domain.Position, error) {
	investor = strings.ToLower(strings.TrimSpace(investor))
	if investor == "" {
		return domain.Position{}, errors.Validation("investor address is required")
	}
	if amountUsd6 <= 0 {
		return domain.Position{}, errors.Validation("deposit amount must be positive")
	}

	// Lock keys and fund accounts use the canonical lowercase address so a
	// mixed-case caller serializes against withdrawals on the same pool.
	tenantAddr = strings.ToLower(strings.TrimSpace(tenantAddr))
	if _, err := s.tenants.GetTenant(ctx, tenantAddr); err != nil {
		return domain.Position{}, err
	}

	unlock := s.locks.Lock("pool:" + tenantAddr)
	defer unlock()

	retained := ledger.ApplyBps(amountUsd6, s.retentionBps)
	forwarded := amountUsd6 - retained
	if retained > 0 {
		if err := s.funds.Transfer(ctx, investor, funds.AccountVault, retained); err != nil {
			return domain.Position{}, err
		}
	}
	if forwarded > 0 {
		if err := s.funds.Transfer(ctx, investor, tenantAddr, forwarded); err != nil {
			if retained > 0 {
				if rbErr := s.funds.Transfer(ctx, funds.AccountVault, investor, retained); rbErr != nil {
					s.log.WithError(rbErr).WithField("investor", investor).Error("retention rollback failed")
				}
			}
			return domain.Position{}, err
		}
	}

	pos, err := s.applyFlow(ctx, investor, tenantAddr, amountUsd6)
	if err != nil {
		return domain.Position{}, err
	}

	metrics.VaultFlow("deposit", amountUsd6)
	s.log.WithField("investor", investor).
		WithField("tenant", tenantAddr).
		WithField("amount", ledger.FormatUSD6(amountUsd6)).
		WithField("share_bps", pos.OwnershipBps).
		Info("investment deposited")
	if s.bus != nil {
		s.bus.Emit(events.TypeInvestmentDeposited, map[string]interface{}{
			"investor":  investor,
			"tenant":    tenantAddr,
			"amount":    amountUsd6,
			"share_bps": pos.OwnershipBps,
		})
	}
	return pos, nil
}

// Withdraw returns amountUsd6 of the investor's stake from the vault reserve.
// InsufficientBalance when the stake is smaller than the request,
// InsufficientLiquidity when the reserve cannot cover the payout.
func (s *Service) Withdraw(ctx context.Context, investor, tenantAddr string, amountUsd6 int64) (domain.Position, error) {
	investor = strings.ToLower(strings.TrimSpace(investor))
	tenantAddr = strings.ToLower(strings.TrimSpace(tenantAddr))
	if amountUsd6 <= 0 {
		return domain.Position{}, errors.Validation("withdrawal amount must be positive")
	}

	unlock := s.locks.Lock("pool:" + tenantAddr)
	defer unlock()

	pos, err := s.store.GetPosition(ctx, investor, tenantAddr)
	if err != nil {
		return domain.Position{}, err
	}
	if pos.InvestedUsd6 < amountUsd6 {
		return domain.Position{}, errors.InsufficientBalance("withdrawal exceeds invested stake").
			WithDetails("invested_usd6", pos.InvestedUsd6)
	}

	if err := s.funds.Transfer(ctx, funds.AccountVault, investor, amountUsd6); err != nil {
		return domain.Position{}, err
	}

	pos, err = s.applyFlow(ctx, investor, tenantAddr, -amountUsd6)
	if err != nil {
		return domain.Position{}, err
	}

	metrics.VaultFlow("withdraw", amountUsd6)
	s.log.WithField("investor", investor).
		WithField("tenant", tenantAddr).
		WithField("amount", ledger.FormatUSD6(amountUsd6)).
		Info("investment withdrawn")
	if s.bus != nil {
		s.bus.Emit(events.TypeInvestmentWithdrawn, map[string]interface{}{
			"investor":  investor,
			"tenant":    tenantAddr,
			"amount":    amountUsd6,
			"share_bps": pos.OwnershipBps,
		})
	}
	return pos, nil
}

// applyFlow adjusts one position and the pool by delta, then recomputes every
// share for the tenant. Callers hold the pool lock.
func (s *Service) applyFlow(ctx context.Context, investor, tenantAddr string, delta int64) (domain.Position, error) {
	now := time.Now().UTC()

	pos, err := s.store.GetPosition(ctx, investor, tenantAddr)
	if errors.IsCode(err, errors.CodeNotFound) {
		pos = domain.Position{Investor: investor, TenantAddr: tenantAddr, CreatedAt: now}
	} else if err != nil {
		return domain.Position{}, err
	}
	pos.InvestedUsd6 += delta
	pos.UpdatedAt = now
	if _, err := s.store.UpsertPosition(ctx, pos); err != nil {
		return domain.Position{}, err
	}

	pool, err := s.store.GetPool(ctx, tenantAddr)
	if err != nil {
		return domain.Position{}, err
	}
	pool.TenantAddr = tenantAddr
	pool.TotalUsd6 += delta
	pool.UpdatedAt = now
	if _, err := s.store.UpsertPool(ctx, pool); err != nil {
		return domain.Position{}, err
	}

	positions, err := s.store.ListPositionsByTenant(ctx, tenantAddr)
	if err != nil {
		return domain.Position{}, err
	}
	var out domain.Position
	for _, p := range domain.ComputeOwnership(positions, pool.TotalUsd6) {
		if _, err := s.store.UpsertPosition(ctx, p); err != nil {
			return domain.Position{}, err
		}
		if p.Investor == investor {
			out = p
		}
	}
	return out, nil
}

// GetPosition returns one investor's stake or NotFound.
func (s *Service) GetPosition(ctx context.Context, investor, tenantAddr string) (domain.Position, error) {
	return s.store.GetPosition(ctx, strings.ToLower(strings.TrimSpace(investor)), strings.ToLower(strings.TrimSpace(tenantAddr)))
}

// ListPositions returns every stake in a tenant's pool.
func (s *Service) ListPositions(ctx context.Context, tenantAddr string) ([]domain.Position, error) {
	return s.store.ListPositionsByTenant(ctx, strings.ToLower(strings.TrimSpace(tenantAddr)))
}

// GetPool returns the tenant's aggregate pool; unknown tenants report a zero
// pool.
func (s *Service) GetPool(ctx context.Context, tenantAddr string) (domain.Pool, error) {
	return s.store.GetPool(ctx, strings.ToLower(strings.TrimSpace(tenantAddr)))
}

// TotalInvested returns the platform-wide invested total.
func (s *Service) TotalInvested(ctx context.Context) (int64, error) {
	return s.store.TotalInvested(ctx)
}
