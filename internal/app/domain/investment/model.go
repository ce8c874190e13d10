// Package investment defines the proportional-ownership vault records.
package investment

import "time"

// Position is one investor's stake in one tenant. Zero balance is a valid
// terminal value; positions are never deleted.
type Position struct {
	Investor     string
	TenantAddr   string
	InvestedUsd6 int64
	OwnershipBps int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Pool is the aggregate invested value for one tenant, the denominator for
// proportional ownership.
type Pool struct {
	TenantAddr string
	TotalUsd6  int64
	UpdatedAt  time.Time
}

// ComputeOwnership recomputes every position's ownership share against the
// pool total: floor(invested * 10000 / total). With a zero pool all shares
// are zero. The result is deterministic for any serial operation history
// because it depends only on current balances.
func ComputeOwnership(positions []Position, totalUsd6 int64) []Position {
	out := make([]Position, len(positions))
	for i, pos := range positions {
		if totalUsd6 > 0 {
			pos.OwnershipBps = pos.InvestedUsd6 * 10_000 / totalUsd6
		} else {
			pos.OwnershipBps = 0
		}
		out[i] = pos
	}
	return out
}
