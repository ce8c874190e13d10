package ledger

import "fmt"

// USD6 amounts are fixed-point integers with six implied decimals:
// 1_000_000 == $1.00.

const (
	// OneUSD is $1 in USD6.
	OneUSD int64 = 1_000_000
	// BpsDenominator is the basis-point scale: 10000 bps == 100%.
	BpsDenominator int64 = 10_000
)

// ApplyBps returns floor(amount * bps / 10000).
func ApplyBps(amountUsd6 int64, bps int64) int64 {
	return amountUsd6 * bps / BpsDenominator
}

// ShareBps returns floor(part * 10000 / whole), the proportional ownership of
// part within whole. whole must be > 0.
func ShareBps(partUsd6, wholeUsd6 int64) int64 {
	return partUsd6 * BpsDenominator / wholeUsd6
}

// FormatUSD6 renders an amount for logs, e.g. 1500000 -> "1.500000".
func FormatUSD6(amountUsd6 int64) string {
	sign := ""
	if amountUsd6 < 0 {
		sign = "-"
		amountUsd6 = -amountUsd6
	}
	return fmt.Sprintf("%s%d.%06d", sign, amountUsd6/OneUSD, amountUsd6%OneUSD)
}
