// Package fraud defines anomaly records and the derived block state.
package fraud

import "time"

// Severity bounds for anomaly records. Severity at or above AutoBlockSeverity
// blocks the subject in the same write that appends the record.
const (
	MinSeverity       = 0
	MaxSeverity       = 10
	AutoBlockSeverity = 8
)

// Well-known anomaly type tags.
const (
	TypeOrderCapExceeded  = "ORDER_CAP_EXCEEDED"
	TypeDailyLimitReached = "DAILY_LIMIT_REACHED"
	TypeExternalReport    = "EXTERNAL_REPORT"
)

// Action tells the caller what the detector decided.
type Action string

const (
	ActionNone   Action = "none"
	ActionReview Action = "review"
	ActionBlock  Action = "block"
)

// Record is one append-only anomaly entry. Records are never mutated after
// creation; the blocked flag lives in a derived index keyed by subject.
type Record struct {
	ID          string
	SubjectHash string
	AnomalyType string
	Severity    int
	DetailsHash string
	Blocked     bool // whether this record blocked the subject
	CreatedAt   time.Time
}

// Assessment is the outcome of a state-mutating order check.
type Assessment struct {
	IsAnomaly bool
	Severity  int
	Action    Action
	Reason    string
}

// Clear is the assessment returned when no rule trips.
func Clear() Assessment {
	return Assessment{Action: ActionNone}
}
