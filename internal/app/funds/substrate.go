// Package funds abstracts the external value-transfer substrate. The core
// moves USD6 between tenant, customer, investor, and platform accounts through
// this interface and treats any transfer failure as abort-the-operation.
package funds

import (
	"context"
	"fmt"
	"sync"

	"github.com/nilelink/trustcore/internal/errors"
)

// Well-known internal account names.
const (
	// AccountVault holds retained investment reserves awaiting withdrawal.
	AccountVault = "vault"
	// AccountEscrow holds confirmed order payments until settlement.
	AccountEscrow = "settlement-escrow"
	// AccountPlatform collects protocol fees.
	AccountPlatform = "platform"
)

// Substrate moves value between accounts. Implementations must make Transfer
// atomic: either both balances move or neither does.
type Substrate interface {
	Transfer(ctx context.Context, from, to string, amountUsd6 int64) error
	Balance(ctx context.Context, account string) (int64, error)
}

// MemoryLedger is an in-process Substrate used by tests and local runs. The
// production substrate is an external system wired in at the edge.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]int64
}

var _ Substrate = (*MemoryLedger)(nil)

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]int64)}
}

// Mint credits an account out of thin air. Test setup only.
func (l *MemoryLedger) Mint(account string, amountUsd6 int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] += amountUsd6
}

func (l *MemoryLedger) Transfer(_ context.Context, from, to string, amountUsd6 int64) error {
	if amountUsd6 <= 0 {
		return errors.Validation("transfer amount must be positive")
	}
	if from == to {
		return errors.Validation("transfer endpoints must differ")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[from] < amountUsd6 {
		return errors.InsufficientLiquidity(
			fmt.Sprintf("account %s cannot fund transfer", from))
	}
	l.balances[from] -= amountUsd6
	l.balances[to] += amountUsd6
	return nil
}

func (l *MemoryLedger) Balance(_ context.Context, account string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account], nil
}
