package app

import (
	"context"
	"fmt"

	"github.com/nilelink/trustcore/internal/app/events"
	"github.com/nilelink/trustcore/internal/app/funds"
	"github.com/nilelink/trustcore/internal/app/services/commission"
	"github.com/nilelink/trustcore/internal/app/services/deviceauth"
	"github.com/nilelink/trustcore/internal/app/services/fraud"
	"github.com/nilelink/trustcore/internal/app/services/protocol"
	"github.com/nilelink/trustcore/internal/app/services/registry"
	"github.com/nilelink/trustcore/internal/app/services/settlement"
	"github.com/nilelink/trustcore/internal/app/services/suppliercredit"
	"github.com/nilelink/trustcore/internal/app/services/vault"
	"github.com/nilelink/trustcore/internal/app/storage"
	"github.com/nilelink/trustcore/internal/app/storage/memory"
	"github.com/nilelink/trustcore/internal/app/system"
	"github.com/nilelink/trustcore/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation, so tests and local runs need no setup.
type Stores struct {
	Tenants     storage.TenantStore
	Devices     storage.DeviceStore
	Commissions storage.CommissionStore
	Anomalies   storage.AnomalyStore
	Volumes     storage.VolumeStore
	Orders      storage.OrderStore
	Investments storage.InvestmentStore
	Credit      storage.CreditStore
	Protocol    storage.ProtocolStore
}

// Options carries the protocol parameters and the value substrate. Zero
// values select the service defaults (50 bps commission, $10,000 order cap,
// no vault retention, hourly credit sweep, in-memory substrate).
type Options struct {
	DefaultRateBps int64
	MaxOrderUsd6   int64
	RetentionBps   int64
	SweepSchedule  string
	Substrate      funds.Substrate
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Bus *events.Bus

	Registry    *registry.Service
	Devices     *deviceauth.Service
	Commissions *commission.Service
	Fraud       *fraud.Service
	Settlement  *settlement.Service
	Vault       *vault.Service
	Credit      *suppliercredit.Service
	Protocol    *protocol.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Tenants == nil {
		stores.Tenants = mem
	}
	if stores.Devices == nil {
		stores.Devices = mem
	}
	if stores.Commissions == nil {
		stores.Commissions = mem
	}
	if stores.Anomalies == nil {
		stores.Anomalies = mem
	}
	if stores.Volumes == nil {
		stores.Volumes = mem
	}
	if stores.Orders == nil {
		stores.Orders = mem
	}
	if stores.Investments == nil {
		stores.Investments = mem
	}
	if stores.Credit == nil {
		stores.Credit = mem
	}
	if stores.Protocol == nil {
		stores.Protocol = mem
	}
	if opts.Substrate == nil {
		opts.Substrate = funds.NewMemoryLedger()
	}

	bus := events.NewBus()
	manager := system.NewManager()

	registrySvc := registry.New(stores.Tenants, stores.Volumes, bus, log)
	deviceSvc := deviceauth.New(stores.Devices, bus, log)
	commissionSvc := commission.New(stores.Commissions, opts.DefaultRateBps, bus, log)
	fraudSvc := fraud.New(stores.Anomalies, stores.Volumes, stores.Tenants, opts.MaxOrderUsd6, bus, log)
	settlementSvc := settlement.New(stores.Orders, stores.Tenants, commissionSvc, fraudSvc, opts.Substrate, bus, log)
	vaultSvc := vault.New(stores.Investments, stores.Tenants, opts.Substrate, opts.RetentionBps, bus, log)
	creditSvc := suppliercredit.New(stores.Credit, opts.Substrate, opts.SweepSchedule, bus, log)
	protocolSvc := protocol.New(stores.Protocol, stores.Tenants, settlementSvc, deviceSvc, commissionSvc, vaultSvc, fraudSvc, log)

	if err := manager.Register(creditSvc); err != nil {
		return nil, fmt.Errorf("register suppliercredit: %w", err)
	}

	return &Application{
		manager:     manager,
		log:         log,
		Bus:         bus,
		Registry:    registrySvc,
		Devices:     deviceSvc,
		Commissions: commissionSvc,
		Fraud:       fraudSvc,
		Settlement:  settlementSvc,
		Vault:       vaultSvc,
		Credit:      creditSvc,
		Protocol:    protocolSvc,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services and closes the event bus.
func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.Stop(ctx)
	a.Bus.Close()
	return err
}
