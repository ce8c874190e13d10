package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nilelink/trustcore/internal/app/domain/commission"
	"github.com/nilelink/trustcore/internal/app/domain/credit"
	"github.com/nilelink/trustcore/internal/app/domain/device"
	"github.com/nilelink/trustcore/internal/app/domain/fraud"
	"github.com/nilelink/trustcore/internal/app/domain/investment"
	"github.com/nilelink/trustcore/internal/app/domain/order"
	"github.com/nilelink/trustcore/internal/app/domain/tenant"
	"github.com/nilelink/trustcore/internal/app/storage"
	"github.com/nilelink/trustcore/internal/errors"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local runs.
type Store struct {
	mu          sync.RWMutex
	nextID      int64
	tenants     map[string]tenant.Record
	oracles     map[string]string
	devices     map[string]device.Record
	rules       map[string]commission.Rule
	anomalies   map[string][]fraud.Record
	blocked     map[string]bool
	orders      map[string]order.Order
	feeEntries  map[string][]order.FeeEntry
	positions   map[string]investment.Position // investor|tenant
	poolByAddr  map[string]investment.Pool
	suppliers   map[string]bool
	lines       map[string]credit.Line // tenant|supplier
	invoices    map[string]credit.Invoice
	hourVolumes map[string]int64 // tenant|hour-bucket
	dayVolumes  map[string]int64 // tenant|day-bucket
	protocol    storage.ProtocolState
	hasProtocol bool
}

var _ storage.TenantStore = (*Store)(nil)
var _ storage.DeviceStore = (*Store)(nil)
var _ storage.CommissionStore = (*Store)(nil)
var _ storage.AnomalyStore = (*Store)(nil)
var _ storage.VolumeStore = (*Store)(nil)
var _ storage.OrderStore = (*Store)(nil)
var _ storage.InvestmentStore = (*Store)(nil)
var _ storage.CreditStore = (*Store)(nil)
var _ storage.ProtocolStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:      1,
		tenants:     make(map[string]tenant.Record),
		oracles:     make(map[string]string),
		devices:     make(map[string]device.Record),
		rules:       make(map[string]commission.Rule),
		anomalies:   make(map[string][]fraud.Record),
		blocked:     make(map[string]bool),
		orders:      make(map[string]order.Order),
		feeEntries:  make(map[string][]order.FeeEntry),
		positions:   make(map[string]investment.Position),
		poolByAddr:  make(map[string]investment.Pool),
		suppliers:   make(map[string]bool),
		lines:       make(map[string]credit.Line),
		invoices:    make(map[string]credit.Invoice),
		hourVolumes: make(map[string]int64),
		dayVolumes:  make(map[string]int64),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

func pairKey(a, b string) string { return a + "|" + b }

// TenantStore implementation -------------------------------------------------

func (s *Store) CreateTenant(_ context.Context, rec tenant.Record) (tenant.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(rec.Address)
	if _, exists := s.tenants[key]; exists {
		return tenant.Record{}, errors.Duplicate("tenant", rec.Address)
	}

	now := time.Now().UTC()
	rec.RegisteredAt = now
	rec.UpdatedAt = now
	s.tenants[key] = rec
	return rec, nil
}

func (s *Store) UpdateTenant(_ context.Context, rec tenant.Record) (tenant.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(rec.Address)
	original, ok := s.tenants[key]
	if !ok {
		return tenant.Record{}, errors.NotFound("tenant", rec.Address)
	}

	rec.RegisteredAt = original.RegisteredAt
	rec.UpdatedAt = time.Now().UTC()
	s.tenants[key] = rec
	return rec, nil
}

func (s *Store) GetTenant(_ context.Context, addr string) (tenant.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tenants[strings.ToLower(addr)]
	if !ok {
		return tenant.Record{}, errors.NotFound("tenant", addr)
	}
	return rec, nil
}

func (s *Store) ListTenants(_ context.Context) ([]tenant.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]tenant.Record, 0, len(s.tenants))
	for _, rec := range s.tenants {
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Address < result[j].Address })
	return result, nil
}

func (s *Store) CountTenants(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.tenants)), nil
}

func (s *Store) SetOracle(_ context.Context, currency, oracleRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.oracles[strings.ToUpper(currency)] = oracleRef
	return nil
}

func (s *Store) GetOracle(_ context.Context, currency string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.oracles[strings.ToUpper(currency)]
	if !ok {
		return "", errors.NotFound("oracle for currency", currency)
	}
	return ref, nil
}

// DeviceStore implementation -------------------------------------------------

func (s *Store) CreateDevice(_ context.Context, rec device.Record) (device.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(rec.Address)
	if _, exists := s.devices[key]; exists {
		return device.Record{}, errors.Duplicate("device", rec.Address)
	}

	now := time.Now().UTC()
	rec.RegisteredAt = now
	rec.UpdatedAt = now
	s.devices[key] = rec
	return rec, nil
}

func (s *Store) UpdateDevice(_ context.Context, rec device.Record) (device.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(rec.Address)
	original, ok := s.devices[key]
	if !ok {
		return device.Record{}, errors.NotFound("device", rec.Address)
	}

	rec.RegisteredAt = original.RegisteredAt
	rec.UpdatedAt = time.Now().UTC()
	s.devices[key] = rec
	return rec, nil
}

func (s *Store) GetDevice(_ context.Context, addr string) (device.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.devices[strings.ToLower(addr)]
	if !ok {
		return device.Record{}, errors.NotFound("device", addr)
	}
	return rec, nil
}

func (s *Store) ListDevices(_ context.Context) ([]device.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]device.Record, 0, len(s.devices))
	for _, rec := range s.devices {
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Address < result[j].Address })
	return result, nil
}

// CommissionStore implementation ---------------------------------------------

func (s *Store) UpsertRule(_ context.Context, rule commission.Rule) (commission.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if original, ok := s.rules[rule.SupplierID]; ok {
		rule.CreatedAt = original.CreatedAt
	} else {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	s.rules[rule.SupplierID] = rule
	return rule, nil
}

func (s *Store) GetRule(_ context.Context, supplierID string) (commission.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[supplierID]
	if !ok {
		return commission.Rule{}, errors.NotFound("commission rule", supplierID)
	}
	return rule, nil
}

func (s *Store) ListRules(_ context.Context) ([]commission.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]commission.Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		result = append(result, rule)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SupplierID < result[j].SupplierID })
	return result, nil
}

// AnomalyStore implementation ------------------------------------------------

func (s *Store) AppendAnomaly(_ context.Context, rec fraud.Record, block bool) (fraud.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.Blocked = block
	s.anomalies[rec.SubjectHash] = append(s.anomalies[rec.SubjectHash], rec)
	if block {
		// Same critical section as the append: a concurrent IsBlocked can
		// never observe the record without the flag.
		s.blocked[rec.SubjectHash] = true
	}
	return rec, nil
}

func (s *Store) BlockSubject(_ context.Context, subjectHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked[subjectHash] = true
	return nil
}

func (s *Store) IsBlocked(_ context.Context, subjectHash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blocked[subjectHash], nil
}

func (s *Store) ListAnomalies(_ context.Context, subjectHash string) ([]fraud.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]fraud.Record(nil), s.anomalies[subjectHash]...), nil
}

func (s *Store) CountAnomalies(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, recs := range s.anomalies {
		total += int64(len(recs))
	}
	return total, nil
}

// VolumeStore implementation -------------------------------------------------

func hourBucket(at time.Time) string { return at.UTC().Format("2006010215") }
func dayBucket(at time.Time) string  { return at.UTC().Format("20060102") }

func (s *Store) Add(_ context.Context, tenantAddr string, amountUsd6 int64, at time.Time) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hourKey := pairKey(strings.ToLower(tenantAddr), hourBucket(at))
	dayKey := pairKey(strings.ToLower(tenantAddr), dayBucket(at))
	s.hourVolumes[hourKey] += amountUsd6
	s.dayVolumes[dayKey] += amountUsd6
	return s.hourVolumes[hourKey], s.dayVolumes[dayKey], nil
}

func (s *Store) ResetDay(_ context.Context, tenantAddr string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dayVolumes, pairKey(strings.ToLower(tenantAddr), dayBucket(at)))
	return nil
}

// OrderStore implementation --------------------------------------------------

func (s *Store) CreateOrder(_ context.Context, ord order.Order) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[ord.ID]; exists {
		return order.Order{}, errors.Duplicate("order", ord.ID)
	}

	now := time.Now().UTC()
	ord.CreatedAt = now
	ord.UpdatedAt = now
	s.orders[ord.ID] = ord
	return ord, nil
}

func (s *Store) UpdateOrder(_ context.Context, ord order.Order) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.orders[ord.ID]
	if !ok {
		return order.Order{}, errors.NotFound("order", ord.ID)
	}

	ord.CreatedAt = original.CreatedAt
	ord.UpdatedAt = time.Now().UTC()
	s.orders[ord.ID] = ord
	return ord, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ord, ok := s.orders[id]
	if !ok {
		return order.Order{}, errors.NotFound("order", id)
	}
	return ord, nil
}

func (s *Store) ListOrdersByTenant(_ context.Context, tenantAddr string) ([]order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]order.Order, 0)
	for _, ord := range s.orders {
		if strings.EqualFold(ord.TenantAddr, tenantAddr) {
			result = append(result, ord)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) CreateFeeEntry(_ context.Context, entry order.FeeEntry) (order.FeeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = s.nextIDLocked()
	}
	entry.CreatedAt = time.Now().UTC()
	s.feeEntries[entry.OrderID] = append(s.feeEntries[entry.OrderID], entry)
	return entry, nil
}

func (s *Store) ListFeeEntries(_ context.Context, orderID string) ([]order.FeeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]order.FeeEntry(nil), s.feeEntries[orderID]...), nil
}

func (s *Store) OrderStats(_ context.Context) (int64, int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total, settled, fees int64
	for _, ord := range s.orders {
		total++
		if ord.Status == order.StatusSettled {
			settled += ord.AmountUsd6
		}
	}
	for _, entries := range s.feeEntries {
		for _, entry := range entries {
			fees += entry.FeeUsd6
		}
	}
	return total, settled, fees, nil
}

// InvestmentStore implementation ---------------------------------------------

func (s *Store) GetPosition(_ context.Context, investor, tenantAddr string) (investment.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[pairKey(strings.ToLower(investor), strings.ToLower(tenantAddr))]
	if !ok {
		return investment.Position{}, errors.NotFound("position", pairKey(investor, tenantAddr))
	}
	return pos, nil
}

func (s *Store) UpsertPosition(_ context.Context, pos investment.Position) (investment.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(strings.ToLower(pos.Investor), strings.ToLower(pos.TenantAddr))
	now := time.Now().UTC()
	if original, ok := s.positions[key]; ok {
		pos.CreatedAt = original.CreatedAt
	} else {
		pos.CreatedAt = now
	}
	pos.UpdatedAt = now
	s.positions[key] = pos
	return pos, nil
}

func (s *Store) ListPositionsByTenant(_ context.Context, tenantAddr string) ([]investment.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]investment.Position, 0)
	for _, pos := range s.positions {
		if strings.EqualFold(pos.TenantAddr, tenantAddr) {
			result = append(result, pos)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Investor < result[j].Investor })
	return result, nil
}

func (s *Store) GetPool(_ context.Context, tenantAddr string) (investment.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pool, ok := s.poolByAddr[strings.ToLower(tenantAddr)]
	if !ok {
		return investment.Pool{TenantAddr: tenantAddr}, nil
	}
	return pool, nil
}

func (s *Store) UpsertPool(_ context.Context, pool investment.Pool) (investment.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool.UpdatedAt = time.Now().UTC()
	s.poolByAddr[strings.ToLower(pool.TenantAddr)] = pool
	return pool, nil
}

func (s *Store) TotalInvested(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, pool := range s.poolByAddr {
		total += pool.TotalUsd6
	}
	return total, nil
}

// CreditStore implementation -------------------------------------------------

func (s *Store) SetSupplierVerified(_ context.Context, supplierID string, verified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppliers[supplierID] = verified
	return nil
}

func (s *Store) IsSupplierVerified(_ context.Context, supplierID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.suppliers[supplierID], nil
}

func (s *Store) UpsertLine(_ context.Context, line credit.Line) (credit.Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(strings.ToLower(line.TenantAddr), line.SupplierID)
	now := time.Now().UTC()
	if original, ok := s.lines[key]; ok {
		line.CreatedAt = original.CreatedAt
	} else {
		line.CreatedAt = now
	}
	line.UpdatedAt = now
	s.lines[key] = line
	return line, nil
}

func (s *Store) GetLine(_ context.Context, tenantAddr, supplierID string) (credit.Line, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	line, ok := s.lines[pairKey(strings.ToLower(tenantAddr), supplierID)]
	if !ok {
		return credit.Line{}, errors.NotFound("credit line", pairKey(tenantAddr, supplierID))
	}
	return line, nil
}

func (s *Store) CreateInvoice(_ context.Context, inv credit.Invoice) (credit.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoices[inv.ID]; exists {
		return credit.Invoice{}, errors.Duplicate("invoice", inv.ID)
	}

	now := time.Now().UTC()
	inv.CreatedAt = now
	inv.UpdatedAt = now
	s.invoices[inv.ID] = inv
	return inv, nil
}

func (s *Store) UpdateInvoice(_ context.Context, inv credit.Invoice) (credit.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.invoices[inv.ID]
	if !ok {
		return credit.Invoice{}, errors.NotFound("invoice", inv.ID)
	}

	inv.CreatedAt = original.CreatedAt
	inv.UpdatedAt = time.Now().UTC()
	s.invoices[inv.ID] = inv
	return inv, nil
}

func (s *Store) GetInvoice(_ context.Context, id string) (credit.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[id]
	if !ok {
		return credit.Invoice{}, errors.NotFound("invoice", id)
	}
	return inv, nil
}

func (s *Store) ListInvoicesByTenant(_ context.Context, tenantAddr string) ([]credit.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]credit.Invoice, 0)
	for _, inv := range s.invoices {
		if strings.EqualFold(inv.TenantAddr, tenantAddr) {
			result = append(result, inv)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) ListUnpaidInvoicesDueBefore(_ context.Context, cutoff time.Time) ([]credit.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]credit.Invoice, 0)
	for _, inv := range s.invoices {
		if inv.Status != credit.InvoicePaid && inv.Status != credit.InvoiceOverdue && inv.DueAt.Before(cutoff) {
			result = append(result, inv)
		}
	}
	return result, nil
}

// ProtocolStore implementation -----------------------------------------------

func (s *Store) GetProtocolState(_ context.Context) (storage.ProtocolState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.hasProtocol {
		return storage.ProtocolState{}, errors.NotFound("protocol state", "singleton")
	}
	return s.protocol, nil
}

func (s *Store) SaveProtocolState(_ context.Context, state storage.ProtocolState) (storage.ProtocolState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state.UpdatedAt = time.Now().UTC()
	s.protocol = state
	s.hasProtocol = true
	return state, nil
}
