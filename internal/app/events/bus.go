// Package events carries ledger notifications to external subscribers. The
// core appends events as part of committing a state change and dispatch is
// asynchronous: a slow or absent subscriber can never hold up settlement.
package events

import (
	"sync"
	"time"
)

// Type names an emitted event.
type Type string

const (
	TypeTenantRegistered    Type = "TenantRegistered"
	TypeTenantSuspended     Type = "TenantSuspended"
	TypeDeviceAuthorized    Type = "DeviceAuthorized"
	TypeDeviceDeactivated   Type = "DeviceDeactivated"
	TypeCommissionRuleSet   Type = "CommissionRuleSet"
	TypeAnomalyFlagged      Type = "AnomalyFlagged"
	TypeTransactionBlocked  Type = "TransactionBlocked"
	TypeOrderCreated        Type = "OrderCreated"
	TypeOrderConfirmed      Type = "OrderConfirmed"
	TypeOrderSettled        Type = "OrderSettled"
	TypeOrderRefunded       Type = "OrderRefunded"
	TypeOrderCancelled      Type = "OrderCancelled"
	TypeInvestmentDeposited Type = "InvestmentDeposited"
	TypeInvestmentWithdrawn Type = "InvestmentWithdrawn"
	TypeInvoiceCreated      Type = "InvoiceCreated"
	TypeInvoiceSettled      Type = "InvoiceSettled"
)

// Event is the fixed payload shape delivered to subscribers.
type Event struct {
	Type      Type                   `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
}

// Bus fans events out to subscribers. Publish never blocks: subscribers with
// full buffers miss events rather than back-pressuring the ledger.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a buffered subscriber channel and returns it with a
// cancel function. The channel is closed on cancel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Publish delivers the event to every subscriber that has buffer room.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Emit is shorthand for publishing a typed payload.
func (b *Bus) Emit(t Type, payload map[string]interface{}) {
	b.Publish(Event{Type: t, Payload: payload})
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
