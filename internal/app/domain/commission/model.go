// Package commission defines per-supplier commission rules.
package commission

import "time"

// DefaultRateBps is the platform default applied when a supplier has no
// active rule: 0.5%.
const DefaultRateBps int64 = 50

// Rule is one supplier's commission configuration.
type Rule struct {
	SupplierID string
	RateBps    int64
	Tier       string
	Active     bool
	UpdatedBy  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
