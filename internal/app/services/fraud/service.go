// Package fraud scores order anomalies and maintains the append-only blocking
// ledger. A subject moves CLEAR -> BLOCKED exactly once, either automatically
// from a high-severity anomaly or by explicit governance action; unblocking is
// a manual governance procedure outside this service.
package fraud

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nilelink/trustcore/internal/app/auth"
	domain "github.com/nilelink/trustcore/internal/app/domain/fraud"
	"github.com/nilelink/trustcore/internal/app/domain/tenant"
	"github.com/nilelink/trustcore/internal/app/events"
	"github.com/nilelink/trustcore/internal/app/ledger"
	"github.com/nilelink/trustcore/internal/app/metrics"
	"github.com/nilelink/trustcore/internal/app/storage"
	"github.com/nilelink/trustcore/internal/errors"
	"github.com/nilelink/trustcore/pkg/logger"
)

// DefaultMaxOrderUsd6 is the absolute single-order cap: $10,000.
const DefaultMaxOrderUsd6 = 10_000 * ledger.OneUSD

// Severities derived by the order check. A single order above twice the cap
// is treated as hostile and auto-blocks; a plain cap or daily-limit breach is
// held for review.
const (
	severityDailyLimit  = 5
	severityCapBreach   = 7
	severityCapExtreme  = 9
	severityExternalRef = 5
)

// TenantDirectory is the narrow registry view the detector consults for
// per-tenant limits.
type TenantDirectory interface {
	GetTenant(ctx context.Context, addr string) (tenant.Record, error)
}

// Service is the anomaly detector.
type Service struct {
	store    storage.AnomalyStore
	volumes  storage.VolumeStore
	tenants  TenantDirectory
	maxOrder int64
	bus      *events.Bus
	log      *logger.Logger
}

// New constructs a fraud detector. maxOrderUsd6 <= 0 selects the default cap.
func New(store storage.AnomalyStore, volumes storage.VolumeStore, tenants TenantDirectory, maxOrderUsd6 int64, bus *events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("fraud")
	}
	if maxOrderUsd6 <= 0 {
		maxOrderUsd6 = DefaultMaxOrderUsd6
	}
	return &Service{
		store:    store,
		volumes:  volumes,
		tenants:  tenants,
		maxOrder: maxOrderUsd6,
		bus:      bus,
		log:      log,
	}
}

// SubjectForTenant maps a tenant address to its anomaly subject hash.
func SubjectForTenant(tenantAddr string) string {
	return strings.ToLower(strings.TrimSpace(tenantAddr))
}

// FlagAnomaly appends an anomaly record. Severity at or above the auto-block
// threshold sets the subject's blocked flag in the same atomic store write,
// so no concurrent reader can observe the record without the block.
func (s *Service) FlagAnomaly(ctx context.Context, subjectHash, anomalyType string, severity int, detailsHash string) (string, error) {
	if severity < domain.MinSeverity || severity > domain.MaxSeverity {
		return "", errors.Validation("severity out of range").WithDetails("severity", severity)
	}
	subjectHash = strings.ToLower(strings.TrimSpace(subjectHash))
	if subjectHash == "" {
		return "", errors.Validation("subject hash is required")
	}

	now := time.Now().UTC()
	rec := domain.Record{
		ID:          fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString()[:8]),
		SubjectHash: subjectHash,
		AnomalyType: anomalyType,
		Severity:    severity,
		DetailsHash: detailsHash,
		CreatedAt:   now,
	}
	block := severity >= domain.AutoBlockSeverity
	rec, err := s.store.AppendAnomaly(ctx, rec, block)
	if err != nil {
		return "", err
	}

	metrics.AnomalyFlagged(anomalyType, block)
	s.log.WithField("subject", subjectHash).
		WithField("type", anomalyType).
		WithField("severity", severity).
		WithField("blocked", block).
		Warn("anomaly flagged")
	if s.bus != nil {
		s.bus.Emit(events.TypeAnomalyFlagged, map[string]interface{}{
			"record_id": rec.ID,
			"subject":   subjectHash,
			"type":      anomalyType,
			"severity":  severity,
			"blocked":   block,
		})
	}
	return rec.ID, nil
}

// IsBlocked reports the subject's derived block state. Unknown subjects are
// clear.
func (s *Service) IsBlocked(ctx context.Context, subjectHash string) bool {
	blocked, err := s.store.IsBlocked(ctx, strings.ToLower(strings.TrimSpace(subjectHash)))
	if err != nil {
		s.log.WithError(err).Warn("block lookup failed")
		return false
	}
	return blocked
}

// ListAnomalies returns the subject's append-only anomaly history.
func (s *Service) ListAnomalies(ctx context.Context, subjectHash string) ([]domain.Record, error) {
	return s.store.ListAnomalies(ctx, strings.ToLower(strings.TrimSpace(subjectHash)))
}

// CheckOrderAnomaly scores an order against the tenant's rolling volume and
// absolute cap. It is a state-mutating check: the amount is added to the
// tenant's hour and day counters before evaluation and the increment is kept
// even when no rule trips.
func (s *Service) CheckOrderAnomaly(ctx context.Context, tenantAddr, orderID string, amountUsd6 int64) (domain.Assessment, error) {
	if amountUsd6 <= 0 {
		return domain.Assessment{}, errors.Validation("order amount must be positive")
	}
	subject := SubjectForTenant(tenantAddr)

	_, dayTotal, err := s.volumes.Add(ctx, subject, amountUsd6, time.Now())
	if err != nil {
		return domain.Assessment{}, errors.Internal("volume tracking failed", err)
	}

	severity := 0
	anomalyType := ""
	reason := ""

	if amountUsd6 > s.maxOrder {
		severity = severityCapBreach
		if amountUsd6 > 2*s.maxOrder {
			severity = severityCapExtreme
		}
		anomalyType = domain.TypeOrderCapExceeded
		reason = fmt.Sprintf("order %s exceeds cap %s", ledger.FormatUSD6(amountUsd6), ledger.FormatUSD6(s.maxOrder))
	}

	if rec, err := s.tenants.GetTenant(ctx, tenantAddr); err == nil {
		if limit := rec.Config.DailyRateLimit; limit > 0 && dayTotal > limit {
			if severityDailyLimit > severity {
				severity = severityDailyLimit
				anomalyType = domain.TypeDailyLimitReached
				reason = fmt.Sprintf("daily volume %s exceeds limit %s", ledger.FormatUSD6(dayTotal), ledger.FormatUSD6(limit))
			}
		}
	}

	if severity == 0 {
		return domain.Clear(), nil
	}

	if _, err := s.FlagAnomaly(ctx, subject, anomalyType, severity, orderID); err != nil {
		return domain.Assessment{}, err
	}
	action := domain.ActionReview
	if severity >= domain.AutoBlockSeverity {
		action = domain.ActionBlock
	}
	return domain.Assessment{
		IsAnomaly: true,
		Severity:  severity,
		Action:    action,
		Reason:    reason,
	}, nil
}

// BlockTransaction unconditionally blocks a transaction reference on an
// external report. Governance only.
func (s *Service) BlockTransaction(ctx context.Context, actor auth.Actor, txRef, reason string) error {
	if err := auth.Require(actor, auth.OpBlockTransaction); err != nil {
		return err
	}
	txRef = strings.ToLower(strings.TrimSpace(txRef))
	if txRef == "" {
		return errors.Validation("transaction reference is required")
	}

	now := time.Now().UTC()
	rec := domain.Record{
		ID:          fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString()[:8]),
		SubjectHash: txRef,
		AnomalyType: domain.TypeExternalReport,
		Severity:    severityExternalRef,
		DetailsHash: reason,
		CreatedAt:   now,
	}
	// The block is unconditional regardless of severity.
	if _, err := s.store.AppendAnomaly(ctx, rec, true); err != nil {
		return err
	}

	metrics.AnomalyFlagged(domain.TypeExternalReport, true)
	s.log.WithField("tx_ref", txRef).
		WithField("blocked_by", actor.Address).
		Warn("transaction blocked by governance")
	if s.bus != nil {
		s.bus.Emit(events.TypeTransactionBlocked, map[string]interface{}{
			"tx_ref": txRef,
			"reason": reason,
		})
	}
	return nil
}

// CountAnomalies returns the total number of stored anomaly records.
func (s *Service) CountAnomalies(ctx context.Context) (int64, error) {
	return s.store.CountAnomalies(ctx)
}
