package protocol

import (
	"context"
	"testing"

	"github.com/nilelink/trustcore/internal/app/auth"
	"github.com/nilelink/trustcore/internal/app/domain/order"
	"github.com/nilelink/trustcore/internal/app/domain/tenant"
	"github.com/nilelink/trustcore/internal/app/funds"
	"github.com/nilelink/trustcore/internal/app/ledger"
	"github.com/nilelink/trustcore/internal/app/services/commission"
	"github.com/nilelink/trustcore/internal/app/services/deviceauth"
	"github.com/nilelink/trustcore/internal/app/services/fraud"
	"github.com/nilelink/trustcore/internal/app/services/settlement"
	"github.com/nilelink/trustcore/internal/app/services/vault"
	"github.com/nilelink/trustcore/internal/app/storage/memory"
	"github.com/nilelink/trustcore/internal/errors"
)

var (
	governance = auth.Actor{Address: "0xgov", Role: auth.RoleGovernance}
	admin      = auth.Actor{Address: "0xadmin", Role: auth.RoleAdmin}
)

type fixture struct {
	svc  *Service
	bank *funds.MemoryLedger
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	bank := funds.NewMemoryLedger()
	ctx := context.Background()

	if _, err := store.CreateTenant(ctx, tenant.Record{
		Address: "0xrest",
		Config: tenant.Config{
			OwnerHash:      "h:owner",
			Country:        "LB",
			Currency:       "LBP",
			DailyRateLimit: 1_000_000 * ledger.OneUSD,
			Status:         tenant.StatusActive,
		},
	}); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	risk := fraud.New(store, store, store, 0, nil, nil)
	fees := commission.New(store, 0, nil, nil)
	settle := settlement.New(store, store, fees, risk, bank, nil, nil)
	devices := deviceauth.New(store, nil, nil)
	vlt := vault.New(store, store, bank, 0, nil, nil)

	svc := New(store, store, settle, devices, fees, vlt, risk, nil)
	if _, err := svc.SetAuthorizedDevice(ctx, admin, "0xpos1", "terminal-1", true); err != nil {
		t.Fatalf("authorize device: %v", err)
	}
	return fixture{svc: svc, bank: bank}
}

func TestCreateAndPayOrder(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.bank.Mint("0xcust", 500*ledger.OneUSD)

	ord, assessment, err := fx.svc.CreateAndPayOrder(ctx, "0xpos1", "0xo1", "0xrest", "0xcust", 100*ledger.OneUSD)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if assessment.IsAnomaly {
		t.Fatalf("clean checkout flagged: %+v", assessment)
	}
	if ord.Status != order.StatusSettled {
		t.Fatalf("checkout should settle in one call: %s", ord.Status)
	}
	if got, _ := fx.bank.Balance(ctx, funds.AccountPlatform); got != 500_000 {
		t.Fatalf("platform should collect the 50 bps fee: %d", got)
	}
}

func TestCreateAndPayOrderRequiresDevice(t *testing.T) {
	fx := newFixture(t)
	_, _, err := fx.svc.CreateAndPayOrder(context.Background(), "0xrogue", "0xo1", "0xrest", "0xcust", ledger.OneUSD)
	if !errors.IsCode(err, errors.CodeUnauthorized) {
		t.Fatalf("unlisted device should be UNAUTHORIZED: %v", err)
	}
}

func TestCreateAndPayOrderStopsOnHold(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.bank.Mint("0xcust", 50_000*ledger.OneUSD)

	ord, assessment, err := fx.svc.CreateAndPayOrder(ctx, "0xpos1", "0xo1", "0xrest", "0xcust", 12_000*ledger.OneUSD)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if !assessment.IsAnomaly || ord.Status != order.StatusPending || !ord.Flagged {
		t.Fatalf("held checkout must stop before settlement: %+v %+v", ord, assessment)
	}
	if got, _ := fx.bank.Balance(ctx, funds.AccountEscrow); got != 0 {
		t.Fatalf("no funds may move for a held checkout: %d", got)
	}
}

func TestUpdateProtocolFee(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if err := fx.svc.UpdateProtocolFee(ctx, admin, 75); err != nil {
		t.Fatalf("update fee: %v", err)
	}
	stats, err := fx.svc.GetStats(ctx)
	if err != nil || stats.ProtocolFeeBps != 75 {
		t.Fatalf("fee not applied: %+v %v", stats, err)
	}

	if err := fx.svc.UpdateProtocolFee(ctx, admin, 101); !errors.IsCode(err, errors.CodeValidation) {
		t.Fatalf("fee above 100 bps should fail validation: %v", err)
	}
	terminal := auth.Actor{Address: "0xpos1", Role: auth.RoleTerminal}
	if err := fx.svc.UpdateProtocolFee(ctx, terminal, 10); !errors.IsCode(err, errors.CodeUnauthorized) {
		t.Fatalf("terminal should be UNAUTHORIZED: %v", err)
	}
}

func TestPauseBlocksMutations(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.bank.Mint("0xcust", 500*ledger.OneUSD)

	if err := fx.svc.EmergencyPause(ctx, governance); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !fx.svc.IsPaused(ctx) {
		t.Fatal("protocol should report paused")
	}

	_, _, err := fx.svc.CreateAndPayOrder(ctx, "0xpos1", "0xo1", "0xrest", "0xcust", ledger.OneUSD)
	if !errors.IsCode(err, errors.CodeInvalidState) {
		t.Fatalf("paused checkout should be INVALID_STATE: %v", err)
	}
	if err := fx.svc.UpdateProtocolFee(ctx, admin, 10); !errors.IsCode(err, errors.CodeInvalidState) {
		t.Fatalf("paused fee update should be INVALID_STATE: %v", err)
	}

	if err := fx.svc.Unpause(ctx, admin); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if _, _, err := fx.svc.CreateAndPayOrder(ctx, "0xpos1", "0xo1", "0xrest", "0xcust", ledger.OneUSD); err != nil {
		t.Fatalf("checkout after unpause: %v", err)
	}
}

func TestPauseRequiresGovernance(t *testing.T) {
	fx := newFixture(t)
	if err := fx.svc.EmergencyPause(context.Background(), admin); !errors.IsCode(err, errors.CodeUnauthorized) {
		t.Fatalf("admin pause should be UNAUTHORIZED: %v", err)
	}
}

func TestGetStats(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.bank.Mint("0xcust", 500*ledger.OneUSD)
	fx.bank.Mint("0xinv", 500*ledger.OneUSD)

	if _, _, err := fx.svc.CreateAndPayOrder(ctx, "0xpos1", "0xo1", "0xrest", "0xcust", 100*ledger.OneUSD); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	vlt := fx.svc.vault
	if _, err := vlt.Deposit(ctx, "0xinv", "0xrest", 200*ledger.OneUSD); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	stats, err := fx.svc.GetStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Tenants != 1 || stats.Orders != 1 {
		t.Fatalf("wrong counts: %+v", stats)
	}
	if stats.SettledVolumeUsd6 != 100*ledger.OneUSD || stats.FeesCollectedUsd6 != 500_000 {
		t.Fatalf("wrong volume: %+v", stats)
	}
	if stats.TotalInvestedUsd6 != 200*ledger.OneUSD {
		t.Fatalf("wrong invested total: %+v", stats)
	}
}
