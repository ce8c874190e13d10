// Package protocol is the outer facade tying the terminal flow together:
// device-gated one-call checkout, protocol-wide fee and pause switches, and
// the aggregate dashboard stats.
package protocol

import (
	"context"
	"strings"
	"time"

	"github.com/nilelink/trustcore/internal/app/auth"
	"github.com/nilelink/trustcore/internal/app/domain/device"
	"github.com/nilelink/trustcore/internal/app/domain/fraud"
	"github.com/nilelink/trustcore/internal/app/domain/order"
	"github.com/nilelink/trustcore/internal/app/services/commission"
	"github.com/nilelink/trustcore/internal/app/services/deviceauth"
	"github.com/nilelink/trustcore/internal/app/services/settlement"
	"github.com/nilelink/trustcore/internal/app/services/vault"
	"github.com/nilelink/trustcore/internal/app/storage"
	"github.com/nilelink/trustcore/internal/errors"
	"github.com/nilelink/trustcore/pkg/logger"
)

// MaxFeeBps caps the protocol fee at 100 bps (1%).
const MaxFeeBps = 100

// AnomalyCounter is the fraud detector view used for stats.
type AnomalyCounter interface {
	CountAnomalies(ctx context.Context) (int64, error)
}

// Service is the protocol facade.
type Service struct {
	state       storage.ProtocolStore
	tenants     storage.TenantStore
	settlement  *settlement.Service
	devices     *deviceauth.Service
	commissions *commission.Service
	vault       *vault.Service
	anomalies   AnomalyCounter
	log         *logger.Logger
}

// Stats is the aggregate protocol dashboard row.
type Stats struct {
	Tenants            int64 `json:"tenants"`
	Orders             int64 `json:"orders"`
	SettledVolumeUsd6  int64 `json:"settled_volume_usd6"`
	FeesCollectedUsd6  int64 `json:"fees_collected_usd6"`
	Anomalies          int64 `json:"anomalies"`
	TotalInvestedUsd6  int64 `json:"total_invested_usd6"`
	ProtocolFeeBps     int64 `json:"protocol_fee_bps"`
	Paused             bool  `json:"paused"`
}

// New constructs the protocol facade.
func New(state storage.ProtocolStore, tenants storage.TenantStore, settle *settlement.Service, devices *deviceauth.Service, commissions *commission.Service, vlt *vault.Service, anomalies AnomalyCounter, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("protocol")
	}
	return &Service{
		state:       state,
		tenants:     tenants,
		settlement:  settle,
		devices:     devices,
		commissions: commissions,
		vault:       vlt,
		anomalies:   anomalies,
		log:         log,
	}
}

// currentState reads the protocol row, defaulting to the unpaused state with
// the commission engine's default rate before the first save.
func (s *Service) currentState(ctx context.Context) (storage.ProtocolState, error) {
	state, err := s.state.GetProtocolState(ctx)
	if errors.IsCode(err, errors.CodeNotFound) {
		return storage.ProtocolState{FeeBps: s.commissions.DefaultRate()}, nil
	}
	return state, err
}

func (s *Service) requireUnpaused(ctx context.Context) error {
	state, err := s.currentState(ctx)
	if err != nil {
		return err
	}
	if state.Paused {
		return errors.InvalidState("protocol is paused")
	}
	return nil
}

// CreateAndPayOrder is the terminal checkout path: the calling device must be
// on the allow-list, then the order is created, confirmed, and settled in one
// call. A fraud hold stops after confirmation and surfaces the assessment.
func (s *Service) CreateAndPayOrder(ctx context.Context, deviceAddr, orderID, tenantAddr, customerAddr string, amountUsd6 int64) (order.Order, fraud.Assessment, error) {
	if err := s.requireUnpaused(ctx); err != nil {
		return order.Order{}, fraud.Assessment{}, err
	}
	if !s.devices.IsAuthorized(ctx, deviceAddr) {
		return order.Order{}, fraud.Assessment{}, errors.Unauthorized("device is not authorized").
			WithDetails("device", strings.ToLower(strings.TrimSpace(deviceAddr)))
	}

	ord, err := s.settlement.CreateOrder(ctx, orderID, tenantAddr, customerAddr, amountUsd6)
	if err != nil {
		return order.Order{}, fraud.Assessment{}, err
	}
	ord, assessment, err := s.settlement.ConfirmPayment(ctx, ord.ID)
	if err != nil {
		return order.Order{}, fraud.Assessment{}, err
	}
	if assessment.IsAnomaly {
		return ord, assessment, nil
	}
	ord, err = s.settlement.CompleteOrder(ctx, ord.ID)
	if err != nil {
		return order.Order{}, fraud.Assessment{}, err
	}
	return ord, fraud.Clear(), nil
}

// SetAuthorizedDevice is the governance passthrough to the device allow-list.
func (s *Service) SetAuthorizedDevice(ctx context.Context, actor auth.Actor, deviceAddr, deviceID string, authorized bool) (device.Record, error) {
	if err := s.requireUnpaused(ctx); err != nil {
		return device.Record{}, err
	}
	if authorized {
		return s.devices.Authorize(ctx, actor, deviceAddr, deviceID)
	}
	if err := s.devices.Deactivate(ctx, actor, deviceAddr); err != nil {
		return device.Record{}, err
	}
	return s.devices.GetInfo(ctx, deviceAddr)
}

// UpdateProtocolFee sets the platform default commission rate. Rates above
// the 100 bps cap are rejected.
func (s *Service) UpdateProtocolFee(ctx context.Context, actor auth.Actor, feeBps int64) error {
	if err := auth.Require(actor, auth.OpUpdateFee); err != nil {
		return err
	}
	if feeBps < 0 || feeBps > MaxFeeBps {
		return errors.Validation("protocol fee above cap").
			WithDetails("fee_bps", feeBps).
			WithDetails("max_bps", MaxFeeBps)
	}
	if err := s.requireUnpaused(ctx); err != nil {
		return err
	}

	state, err := s.currentState(ctx)
	if err != nil {
		return err
	}
	state.FeeBps = feeBps
	state.UpdatedAt = time.Now().UTC()
	if _, err := s.state.SaveProtocolState(ctx, state); err != nil {
		return err
	}
	s.commissions.SetDefaultRate(feeBps)
	s.log.WithField("fee_bps", feeBps).WithField("updated_by", actor.Address).Info("protocol fee updated")
	return nil
}

// EmergencyPause halts all mutating protocol calls. Governance only.
func (s *Service) EmergencyPause(ctx context.Context, actor auth.Actor) error {
	if err := auth.Require(actor, auth.OpPause); err != nil {
		return err
	}
	return s.setPaused(ctx, true, actor)
}

// Unpause resumes the protocol.
func (s *Service) Unpause(ctx context.Context, actor auth.Actor) error {
	if err := auth.Require(actor, auth.OpUnpause); err != nil {
		return err
	}
	return s.setPaused(ctx, false, actor)
}

func (s *Service) setPaused(ctx context.Context, paused bool, actor auth.Actor) error {
	state, err := s.currentState(ctx)
	if err != nil {
		return err
	}
	if state.Paused == paused {
		return nil
	}
	state.Paused = paused
	state.UpdatedAt = time.Now().UTC()
	if _, err := s.state.SaveProtocolState(ctx, state); err != nil {
		return err
	}
	s.log.WithField("paused", paused).WithField("by", actor.Address).Warn("protocol pause state changed")
	return nil
}

// IsPaused reports the pause switch.
func (s *Service) IsPaused(ctx context.Context) bool {
	state, err := s.currentState(ctx)
	return err == nil && state.Paused
}

// SetGovernance records the governance address handover. Governance only.
func (s *Service) SetGovernance(ctx context.Context, actor auth.Actor, governanceAddr string) error {
	if err := auth.Require(actor, auth.OpSetGovernance); err != nil {
		return err
	}
	governanceAddr = strings.ToLower(strings.TrimSpace(governanceAddr))
	if governanceAddr == "" {
		return errors.Validation("governance address is required")
	}

	state, err := s.currentState(ctx)
	if err != nil {
		return err
	}
	state.GovernanceAddr = governanceAddr
	state.UpdatedAt = time.Now().UTC()
	if _, err := s.state.SaveProtocolState(ctx, state); err != nil {
		return err
	}
	s.log.WithField("governance", governanceAddr).Warn("governance address changed")
	return nil
}

// GetStats aggregates the protocol dashboard counters.
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	tenants, err := s.tenants.CountTenants(ctx)
	if err != nil {
		return Stats{}, err
	}
	orders, settled, fees, err := s.settlement.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	anomalies, err := s.anomalies.CountAnomalies(ctx)
	if err != nil {
		return Stats{}, err
	}
	invested, err := s.vault.TotalInvested(ctx)
	if err != nil {
		return Stats{}, err
	}
	state, err := s.currentState(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Tenants:           tenants,
		Orders:            orders,
		SettledVolumeUsd6: settled,
		FeesCollectedUsd6: fees,
		Anomalies:         anomalies,
		TotalInvestedUsd6: invested,
		ProtocolFeeBps:    state.FeeBps,
		Paused:            state.Paused,
	}, nil
}
