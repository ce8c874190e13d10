// Package deviceauth maintains the allow-list of physical terminals permitted
// to submit transactions.
package deviceauth

import (
	"context"
	"strings"

	"github.com/nilelink/trustcore/internal/app/auth"
	"github.com/nilelink/trustcore/internal/app/domain/device"
	"github.com/nilelink/trustcore/internal/app/events"
	"github.com/nilelink/trustcore/internal/app/storage"
	"github.com/nilelink/trustcore/internal/errors"
	"github.com/nilelink/trustcore/pkg/logger"
)

// Service manages terminal authorization records.
type Service struct {
	store storage.DeviceStore
	bus   *events.Bus
	log   *logger.Logger
}

// New constructs a device authorization service.
func New(store storage.DeviceStore, bus *events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("deviceauth")
	}
	return &Service{store: store, bus: bus, log: log}
}

// Authorize creates or reactivates a device record, recording the admin who
// approved it. Admin only.
func (s *Service) Authorize(ctx context.Context, actor auth.Actor, deviceAddr, deviceID string) (device.Record, error) {
	if err := auth.Require(actor, auth.OpAuthorizeDevice); err != nil {
		return device.Record{}, err
	}
	deviceAddr = strings.TrimSpace(deviceAddr)
	deviceID = strings.TrimSpace(deviceID)
	if deviceAddr == "" || deviceID == "" {
		return device.Record{}, errors.Validation("device address and id are required")
	}

	rec, err := s.store.GetDevice(ctx, deviceAddr)
	switch {
	case err == nil:
		// Reactivation keeps the original registration history.
		rec.DeviceID = deviceID
		rec.Active = true
		rec.AddedBy = actor.Address
		rec, err = s.store.UpdateDevice(ctx, rec)
	case errors.IsCode(err, errors.CodeNotFound):
		rec, err = s.store.CreateDevice(ctx, device.Record{
			Address:  deviceAddr,
			DeviceID: deviceID,
			Active:   true,
			AddedBy:  actor.Address,
		})
	}
	if err != nil {
		return device.Record{}, err
	}

	s.log.WithField("device", deviceAddr).
		WithField("device_id", deviceID).
		WithField("added_by", actor.Address).
		Info("device authorized")
	if s.bus != nil {
		s.bus.Emit(events.TypeDeviceAuthorized, map[string]interface{}{
			"device":    deviceAddr,
			"device_id": deviceID,
			"added_by":  actor.Address,
		})
	}
	return rec, nil
}

// Deactivate flips the device inactive. Idempotent: deactivating an already
// inactive or unknown device is a no-op success and the record is never
// deleted.
func (s *Service) Deactivate(ctx context.Context, actor auth.Actor, deviceAddr string) error {
	if err := auth.Require(actor, auth.OpDeactivateDevice); err != nil {
		return err
	}

	rec, err := s.store.GetDevice(ctx, deviceAddr)
	if errors.IsCode(err, errors.CodeNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !rec.Active {
		return nil
	}

	rec.Active = false
	if _, err := s.store.UpdateDevice(ctx, rec); err != nil {
		return err
	}

	s.log.WithField("device", deviceAddr).Info("device deactivated")
	if s.bus != nil {
		s.bus.Emit(events.TypeDeviceDeactivated, map[string]interface{}{"device": deviceAddr})
	}
	return nil
}

// IsAuthorized reports whether the device is on the active allow-list.
// Absent devices are simply unauthorized, not an error.
func (s *Service) IsAuthorized(ctx context.Context, deviceAddr string) bool {
	rec, err := s.store.GetDevice(ctx, deviceAddr)
	if err != nil {
		return false
	}
	return rec.Active
}

// GetInfo returns the device record, or NotFound if it was never registered.
func (s *Service) GetInfo(ctx context.Context, deviceAddr string) (device.Record, error) {
	return s.store.GetDevice(ctx, deviceAddr)
}

// List returns every device record, active or not.
func (s *Service) List(ctx context.Context) ([]device.Record, error) {
	return s.store.ListDevices(ctx)
}
