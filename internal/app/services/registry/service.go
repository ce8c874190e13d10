// Package registry manages the tenant directory: identity, jurisdiction, and
// per-tenant rate limits.
package registry

import (
	"context"
	"strings"
	"time"

	"github.com/nilelink/trustcore/internal/app/auth"
	"github.com/nilelink/trustcore/internal/app/domain/tenant"
	"github.com/nilelink/trustcore/internal/app/events"
	"github.com/nilelink/trustcore/internal/app/ledger"
	"github.com/nilelink/trustcore/internal/app/storage"
	"github.com/nilelink/trustcore/internal/errors"
	"github.com/nilelink/trustcore/pkg/logger"
)

// MinDailyRateLimit is the smallest accepted daily limit: $100.
const MinDailyRateLimit = 100 * ledger.OneUSD

// MaxTimezoneOffsetMinutes bounds the stored timezone offset (UTC±14h).
const MaxTimezoneOffsetMinutes = 14 * 60

// Service manages tenant records.
type Service struct {
	store   storage.TenantStore
	volumes storage.VolumeStore
	bus     *events.Bus
	log     *logger.Logger
}

// New constructs a registry service. volumes may be nil when no rolling usage
// tracking is attached.
func New(store storage.TenantStore, volumes storage.VolumeStore, bus *events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("registry")
	}
	return &Service{store: store, volumes: volumes, bus: bus, log: log}
}

// Register creates a tenant record. Governance only; duplicate addresses and
// out-of-range configuration are rejected with no partial write.
func (s *Service) Register(ctx context.Context, actor auth.Actor, addr string, cfg tenant.Config) (tenant.Record, error) {
	if err := auth.Require(actor, auth.OpRegisterTenant); err != nil {
		return tenant.Record{}, err
	}
	addr = CanonicalAddr(addr)
	if addr == "" {
		return tenant.Record{}, errors.Validation("tenant address is required")
	}
	if err := validateConfig(cfg); err != nil {
		return tenant.Record{}, err
	}

	cfg.Status = tenant.StatusActive
	created, err := s.store.CreateTenant(ctx, tenant.Record{Address: addr, Config: cfg})
	if err != nil {
		return tenant.Record{}, err
	}

	s.log.WithField("tenant", addr).
		WithField("country", cfg.Country).
		WithField("currency", cfg.Currency).
		WithField("daily_limit", ledger.FormatUSD6(cfg.DailyRateLimit)).
		Info("tenant registered")
	if s.bus != nil {
		s.bus.Emit(events.TypeTenantRegistered, map[string]interface{}{
			"tenant":   addr,
			"country":  cfg.Country,
			"currency": cfg.Currency,
		})
	}
	return created, nil
}

// CanonicalAddr is the canonical form of a tenant address: trimmed and
// lowercased. Every keyed lookup, lock, and volume bucket derives from it so
// mixed-case callers always land on the same tenant.
func CanonicalAddr(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Get returns the tenant record or NotFound.
func (s *Service) Get(ctx context.Context, addr string) (tenant.Record, error) {
	return s.store.GetTenant(ctx, CanonicalAddr(addr))
}

// List returns all tenant records.
func (s *Service) List(ctx context.Context) ([]tenant.Record, error) {
	return s.store.ListTenants(ctx)
}

// IsActive reports whether the tenant exists and is ACTIVE. Unknown tenants
// are simply inactive, not an error.
func (s *Service) IsActive(ctx context.Context, addr string) bool {
	rec, err := s.store.GetTenant(ctx, CanonicalAddr(addr))
	if err != nil {
		return false
	}
	return rec.Config.Status == tenant.StatusActive
}

// UpdateConfig replaces the tenant configuration. The tenant owner or
// governance may call it; status transitions stay with Suspend.
func (s *Service) UpdateConfig(ctx context.Context, actor auth.Actor, addr string, cfg tenant.Config) (tenant.Record, error) {
	addr = CanonicalAddr(addr)
	if err := auth.RequireOwnerOf(actor, addr, auth.OpRegisterTenant); err != nil {
		return tenant.Record{}, err
	}
	if err := validateConfig(cfg); err != nil {
		return tenant.Record{}, err
	}

	rec, err := s.store.GetTenant(ctx, addr)
	if err != nil {
		return tenant.Record{}, err
	}
	cfg.Status = rec.Config.Status
	rec.Config = cfg
	updated, err := s.store.UpdateTenant(ctx, rec)
	if err != nil {
		return tenant.Record{}, err
	}
	s.log.WithField("tenant", addr).Info("tenant config updated")
	return updated, nil
}

// SetDailyRateLimit changes the tenant's daily limit and clears the current
// day's accumulated usage so the new limit applies from a clean slate.
func (s *Service) SetDailyRateLimit(ctx context.Context, actor auth.Actor, addr string, limitUsd6 int64) (tenant.Record, error) {
	addr = CanonicalAddr(addr)
	if err := auth.RequireOwnerOf(actor, addr, auth.OpRegisterTenant); err != nil {
		return tenant.Record{}, err
	}
	if limitUsd6 < MinDailyRateLimit {
		return tenant.Record{}, errors.Validation("daily rate limit below minimum").
			WithDetails("min_usd6", MinDailyRateLimit)
	}

	rec, err := s.store.GetTenant(ctx, addr)
	if err != nil {
		return tenant.Record{}, err
	}
	rec.Config.DailyRateLimit = limitUsd6
	updated, err := s.store.UpdateTenant(ctx, rec)
	if err != nil {
		return tenant.Record{}, err
	}

	if s.volumes != nil {
		if err := s.volumes.ResetDay(ctx, addr, time.Now()); err != nil {
			s.log.WithError(err).WithField("tenant", addr).Warn("reset daily usage failed")
		}
	}
	s.log.WithField("tenant", addr).
		WithField("daily_limit", ledger.FormatUSD6(limitUsd6)).
		Info("daily rate limit updated")
	return updated, nil
}

// Suspend transitions the tenant to SUSPENDED. Governance only; the record is
// kept.
func (s *Service) Suspend(ctx context.Context, actor auth.Actor, addr, reason string) (tenant.Record, error) {
	if err := auth.Require(actor, auth.OpSuspendTenant); err != nil {
		return tenant.Record{}, err
	}

	addr = CanonicalAddr(addr)
	rec, err := s.store.GetTenant(ctx, addr)
	if err != nil {
		return tenant.Record{}, err
	}
	if rec.Config.Status == tenant.StatusSuspended {
		return rec, nil
	}
	rec.Config.Status = tenant.StatusSuspended
	rec.SuspendReason = reason
	updated, err := s.store.UpdateTenant(ctx, rec)
	if err != nil {
		return tenant.Record{}, err
	}

	s.log.WithField("tenant", addr).WithField("reason", reason).Warn("tenant suspended")
	if s.bus != nil {
		s.bus.Emit(events.TypeTenantSuspended, map[string]interface{}{
			"tenant": addr,
			"reason": reason,
		})
	}
	return updated, nil
}

// SetOracle maps a currency to its oracle reference.
func (s *Service) SetOracle(ctx context.Context, actor auth.Actor, currency, oracleRef string) error {
	if err := auth.Require(actor, auth.OpSetOracle); err != nil {
		return err
	}
	if len(currency) != 3 {
		return errors.Validation("currency must be a 3-letter code")
	}
	return s.store.SetOracle(ctx, currency, oracleRef)
}

// GetOracle returns the oracle reference for a currency.
func (s *Service) GetOracle(ctx context.Context, currency string) (string, error) {
	return s.store.GetOracle(ctx, currency)
}

func validateConfig(cfg tenant.Config) error {
	if len(cfg.Country) != 2 {
		return errors.Validation("country must be a 2-letter code")
	}
	if len(cfg.Currency) != 3 {
		return errors.Validation("currency must be a 3-letter code")
	}
	if cfg.TaxBps < 0 || cfg.TaxBps > 10_000 {
		return errors.Validation("tax bps out of range").WithDetails("tax_bps", cfg.TaxBps)
	}
	if cfg.DailyRateLimit < MinDailyRateLimit {
		return errors.Validation("daily rate limit below minimum").
			WithDetails("min_usd6", MinDailyRateLimit)
	}
	if cfg.TimezoneOffset < -MaxTimezoneOffsetMinutes || cfg.TimezoneOffset > MaxTimezoneOffsetMinutes {
		return errors.Validation("timezone offset out of range")
	}
	return nil
}
