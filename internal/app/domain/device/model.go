// Package device defines the terminal allow-list records.
package device

import "time"

// Record is one physical terminal's authorization entry. Deauthorization
// flips Active; records are never deleted so the history stays auditable.
type Record struct {
	Address      string
	DeviceID     string
	Active       bool
	AddedBy      string
	RegisteredAt time.Time
	UpdatedAt    time.Time
}
