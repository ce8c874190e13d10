package vault

import (
	"context"
	"testing"
	"time"

	"github.com/nilelink/trustcore/internal/app/domain/tenant"
	"github.com/nilelink/trustcore/internal/app/funds"
	"github.com/nilelink/trustcore/internal/app/ledger"
	"github.com/nilelink/trustcore/internal/app/storage/memory"
	"github.com/nilelink/trustcore/internal/errors"
)

func newTestVault(t *testing.T, retentionBps int64) (*Service, *funds.MemoryLedger) {
	t.Helper()
	store := memory.New()
	bank := funds.NewMemoryLedger()

	if _, err := store.CreateTenant(context.Background(), tenant.Record{
		Address: "0xrest",
		Config: tenant.Config{
			OwnerHash: "h:owner",
			Country:   "LB",
			Currency:  "LBP",
			Status:    tenant.StatusActive,
		},
	}); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	return New(store, store, bank, retentionBps, nil, nil), bank
}

func vaultBalance(t *testing.T, bank *funds.MemoryLedger, account string) int64 {
	t.Helper()
	b, err := bank.Balance(context.Background(), account)
	if err != nil {
		t.Fatalf("balance %s: %v", account, err)
	}
	return b
}

func TestDepositForwardsToTenant(t *testing.T) {
	svc, bank := newTestVault(t, 0)
	ctx := context.Background()
	bank.Mint("0xalice", 1_000*ledger.OneUSD)

	pos, err := svc.Deposit(ctx, "0xAlice", "0xrest", 300*ledger.OneUSD)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if pos.InvestedUsd6 != 300*ledger.OneUSD || pos.OwnershipBps != 10_000 {
		t.Fatalf("sole investor should own 10000 bps: %+v", pos)
	}
	if got := vaultBalance(t, bank, "0xrest"); got != 300*ledger.OneUSD {
		t.Fatalf("tenant should receive the full deposit: %d", got)
	}
	if got := vaultBalance(t, bank, funds.AccountVault); got != 0 {
		t.Fatalf("zero retention must keep nothing in reserve: %d", got)
	}
}

func TestDepositRetention(t *testing.T) {
	svc, bank := newTestVault(t, 2_000) // 20%
	ctx := context.Background()
	bank.Mint("0xalice", 1_000*ledger.OneUSD)

	if _, err := svc.Deposit(ctx, "0xalice", "0xrest", 100*ledger.OneUSD); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := vaultBalance(t, bank, funds.AccountVault); got != 20*ledger.OneUSD {
		t.Fatalf("reserve should retain 20%%: %d", got)
	}
	if got := vaultBalance(t, bank, "0xrest"); got != 80*ledger.OneUSD {
		t.Fatalf("tenant should receive the remainder: %d", got)
	}
}

func TestDepositValidation(t *testing.T) {
	svc, bank := newTestVault(t, 0)
	ctx := context.Background()
	bank.Mint("0xalice", ledger.OneUSD)

	if _, err := svc.Deposit(ctx, "0xalice", "0xrest", 0); !errors.IsCode(err, errors.CodeValidation) {
		t.Fatalf("zero deposit should fail validation: %v", err)
	}
	if _, err := svc.Deposit(ctx, "0xalice", "0xghost", ledger.OneUSD); !errors.IsCode(err, errors.CodeNotFound) {
		t.Fatalf("unknown tenant should be NOT_FOUND: %v", err)
	}
	if _, err := svc.Deposit(ctx, "0xbroke", "0xrest", ledger.OneUSD); !errors.IsCode(err, errors.CodeInsufficientLiquidity) {
		t.Fatalf("unfunded investor should be INSUFFICIENT_LIQUIDITY: %v", err)
	}
}

func TestOwnershipSharesSumToWhole(t *testing.T) {
	svc, bank := newTestVault(t, 0)
	ctx := context.Background()

	stakes := map[string]int64{
		"0xa": 100 * ledger.OneUSD,
		"0xb": 250 * ledger.OneUSD,
		"0xc": 333 * ledger.OneUSD,
	}
	for investor, amount := range stakes {
		bank.Mint(investor, amount)
		if _, err := svc.Deposit(ctx, investor, "0xrest", amount); err != nil {
			t.Fatalf("deposit %s: %v", investor, err)
		}
	}

	positions, err := svc.ListPositions(ctx, "0xrest")
	if err != nil || len(positions) != 3 {
		t.Fatalf("expected three positions: %v %v", positions, err)
	}
	var sum int64
	for _, p := range positions {
		sum += p.OwnershipBps
	}
	// Floor division loses at most one bps per additional investor.
	if sum > 10_000 || sum < 10_000-int64(len(positions)-1) {
		t.Fatalf("ownership sum out of tolerance: %d", sum)
	}
}

func TestWithdraw(t *testing.T) {
	svc, bank := newTestVault(t, 0)
	ctx := context.Background()
	bank.Mint("0xalice", 500*ledger.OneUSD)
	bank.Mint("0xbob", 500*ledger.OneUSD)
	// Operator pre-funds the payout reserve.
	bank.Mint(funds.AccountVault, 1_000*ledger.OneUSD)

	if _, err := svc.Deposit(ctx, "0xalice", "0xrest", 300*ledger.OneUSD); err != nil {
		t.Fatalf("deposit alice: %v", err)
	}
	if _, err := svc.Deposit(ctx, "0xbob", "0xrest", 100*ledger.OneUSD); err != nil {
		t.Fatalf("deposit bob: %v", err)
	}

	pos, err := svc.Withdraw(ctx, "0xalice", "0xrest", 200*ledger.OneUSD)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	// Pool is now 200: alice 100 (5000 bps), bob 100 (5000 bps).
	if pos.InvestedUsd6 != 100*ledger.OneUSD || pos.OwnershipBps != 5_000 {
		t.Fatalf("post-withdrawal share wrong: %+v", pos)
	}
	bob, err := svc.GetPosition(ctx, "0xbob", "0xrest")
	if err != nil || bob.OwnershipBps != 5_000 {
		t.Fatalf("peer share must be recomputed: %+v %v", bob, err)
	}
	if got := vaultBalance(t, bank, "0xalice"); got != 400*ledger.OneUSD {
		t.Fatalf("investor payout wrong: %d", got)
	}
}

func TestWithdrawExceedingStake(t *testing.T) {
	svc, bank := newTestVault(t, 0)
	ctx := context.Background()
	bank.Mint("0xalice", 100*ledger.OneUSD)
	bank.Mint(funds.AccountVault, 1_000*ledger.OneUSD)

	if _, err := svc.Deposit(ctx, "0xalice", "0xrest", 50*ledger.OneUSD); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	_, err := svc.Withdraw(ctx, "0xalice", "0xrest", 60*ledger.OneUSD)
	if !errors.IsCode(err, errors.CodeInsufficientBalance) {
		t.Fatalf("over-withdrawal should be INSUFFICIENT_BALANCE: %v", err)
	}
}

func TestWithdrawUnfundedReserve(t *testing.T) {
	svc, bank := newTestVault(t, 0)
	ctx := context.Background()
	bank.Mint("0xalice", 100*ledger.OneUSD)

	if _, err := svc.Deposit(ctx, "0xalice", "0xrest", 50*ledger.OneUSD); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	_, err := svc.Withdraw(ctx, "0xalice", "0xrest", 50*ledger.OneUSD)
	if !errors.IsCode(err, errors.CodeInsufficientLiquidity) {
		t.Fatalf("empty reserve should be INSUFFICIENT_LIQUIDITY: %v", err)
	}

	// The failed payout must not touch the stake.
	pos, err := svc.GetPosition(ctx, "0xalice", "0xrest")
	if err != nil || pos.InvestedUsd6 != 50*ledger.OneUSD {
		t.Fatalf("stake must survive a failed payout: %+v %v", pos, err)
	}
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	svc, bank := newTestVault(t, 0)
	ctx := context.Background()
	bank.Mint("0xalice", 100*ledger.OneUSD)
	bank.Mint(funds.AccountVault, 100*ledger.OneUSD)

	if _, err := svc.Deposit(ctx, "0xalice", "0xrest", 100*ledger.OneUSD); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	pos, err := svc.Withdraw(ctx, "0xalice", "0xrest", 100*ledger.OneUSD)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if pos.InvestedUsd6 != 0 || pos.OwnershipBps != 0 {
		t.Fatalf("round trip should zero the position: %+v", pos)
	}
	pool, err := svc.GetPool(ctx, "0xrest")
	if err != nil || pool.TotalUsd6 != 0 {
		t.Fatalf("round trip should zero the pool: %+v %v", pool, err)
	}
	if got := vaultBalance(t, bank, "0xalice"); got != 100*ledger.OneUSD {
		t.Fatalf("investor should be made whole: %d", got)
	}
}

// Deposits and withdrawals on the same pool must contend on one lock key no
// matter how the caller cases or pads the tenant address, or the read-modify-
// write in applyFlow can interleave and lose a flow.
func TestPoolLockKeyIsCaseInsensitive(t *testing.T) {
	svc, bank := newTestVault(t, 0)
	ctx := context.Background()
	bank.Mint("0xalice", 1_000*ledger.OneUSD)
	bank.Mint(funds.AccountVault, 1_000*ledger.OneUSD)

	hold := func(flow string, run func() error) {
		t.Helper()
		unlock := svc.locks.Lock("pool:0xrest")
		done := make(chan error, 1)
		go func() { done <- run() }()

		select {
		case <-done:
			t.Fatalf("%s must wait for the held pool lock", flow)
		case <-time.After(50 * time.Millisecond):
		}

		unlock()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("%s after unlock: %v", flow, err)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s did not finish after the lock was released", flow)
		}
	}

	hold("deposit", func() error {
		_, err := svc.Deposit(ctx, "0xalice", "  0xREST ", 100*ledger.OneUSD)
		return err
	})
	hold("withdraw", func() error {
		_, err := svc.Withdraw(ctx, "0xalice", "0xReSt", 40*ledger.OneUSD)
		return err
	})
}
