// Package postgres implements the storage interfaces backed by PostgreSQL.
// Rows map one-to-one onto the domain records; amounts are stored as BIGINT
// USD6 values so no floating point ever touches money.
package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/lib/pq"

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

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
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

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

func mapErr(err error, kind, id string) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NotFound(kind, id)
	}
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return errors.Duplicate(kind, id)
	}
	return errors.Internal("database error", err)
}

// --- TenantStore ------------------------------------------------------------

func (s *Store) CreateTenant(ctx context.Context, rec tenant.Record) (tenant.Record, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (
			addr, owner_hash, legal_name_hash, display_name_hash,
			metadata_cid, catalog_cid, country, currency, daily_rate_limit,
			timezone_offset, tax_bps, oracle_ref, status, suspend_reason,
			registered_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, rec.Address, rec.Config.OwnerHash, rec.Config.LegalNameHash, rec.Config.DisplayNameHash,
		rec.Config.MetadataCID, rec.Config.CatalogCID, rec.Config.Country, rec.Config.Currency,
		rec.Config.DailyRateLimit, rec.Config.TimezoneOffset, rec.Config.TaxBps, rec.Config.OracleRef,
		string(rec.Config.Status), rec.SuspendReason, rec.RegisteredAt, rec.UpdatedAt)
	if err != nil {
		return tenant.Record{}, mapErr(err, "tenant", rec.Address)
	}
	return rec, nil
}

func (s *Store) UpdateTenant(ctx context.Context, rec tenant.Record) (tenant.Record, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tenants
		SET owner_hash = $2, legal_name_hash = $3, display_name_hash = $4,
			metadata_cid = $5, catalog_cid = $6, country = $7, currency = $8,
			daily_rate_limit = $9, timezone_offset = $10, tax_bps = $11,
			oracle_ref = $12, status = $13, suspend_reason = $14, updated_at = $15
		WHERE addr = $1
	`, rec.Address, rec.Config.OwnerHash, rec.Config.LegalNameHash, rec.Config.DisplayNameHash,
		rec.Config.MetadataCID, rec.Config.CatalogCID, rec.Config.Country, rec.Config.Currency,
		rec.Config.DailyRateLimit, rec.Config.TimezoneOffset, rec.Config.TaxBps, rec.Config.OracleRef,
		string(rec.Config.Status), rec.SuspendReason, rec.UpdatedAt)
	if err != nil {
		return tenant.Record{}, mapErr(err, "tenant", rec.Address)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return tenant.Record{}, errors.NotFound("tenant", rec.Address)
	}
	return rec, nil
}

const tenantColumns = `
	addr, owner_hash, legal_name_hash, display_name_hash,
	metadata_cid, catalog_cid, country, currency, daily_rate_limit,
	timezone_offset, tax_bps, oracle_ref, status, suspend_reason,
	registered_at, updated_at
`

func scanTenant(row interface{ Scan(...interface{}) error }) (tenant.Record, error) {
	var (
		rec    tenant.Record
		status string
	)
	err := row.Scan(&rec.Address, &rec.Config.OwnerHash, &rec.Config.LegalNameHash,
		&rec.Config.DisplayNameHash, &rec.Config.MetadataCID, &rec.Config.CatalogCID,
		&rec.Config.Country, &rec.Config.Currency, &rec.Config.DailyRateLimit,
		&rec.Config.TimezoneOffset, &rec.Config.TaxBps, &rec.Config.OracleRef,
		&status, &rec.SuspendReason, &rec.RegisteredAt, &rec.UpdatedAt)
	rec.Config.Status = tenant.Status(status)
	return rec, err
}

func (s *Store) GetTenant(ctx context.Context, addr string) (tenant.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE addr = $1`, addr)
	rec, err := scanTenant(row)
	if err != nil {
		return tenant.Record{}, mapErr(err, "tenant", addr)
	}
	return rec, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]tenant.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY registered_at`)
	if err != nil {
		return nil, mapErr(err, "tenant", "")
	}
	defer rows.Close()

	var result []tenant.Record
	for rows.Next() {
		rec, err := scanTenant(rows)
		if err != nil {
			return nil, mapErr(err, "tenant", "")
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *Store) CountTenants(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tenants`).Scan(&n)
	return n, mapErr(err, "tenant", "")
}

func (s *Store) SetOracle(ctx context.Context, currency, oracleRef string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oracles (currency, oracle_ref)
		VALUES ($1, $2)
		ON CONFLICT (currency) DO UPDATE SET oracle_ref = EXCLUDED.oracle_ref
	`, currency, oracleRef)
	return mapErr(err, "oracle", currency)
}

func (s *Store) GetOracle(ctx context.Context, currency string) (string, error) {
	var ref string
	err := s.db.QueryRowContext(ctx, `SELECT oracle_ref FROM oracles WHERE currency = $1`, currency).Scan(&ref)
	if err != nil {
		return "", mapErr(err, "oracle", currency)
	}
	return ref, nil
}

// --- DeviceStore ------------------------------------------------------------

func (s *Store) CreateDevice(ctx context.Context, rec device.Record) (device.Record, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (addr, device_id, active, added_by, registered_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.Address, rec.DeviceID, rec.Active, rec.AddedBy, rec.RegisteredAt, rec.UpdatedAt)
	if err != nil {
		return device.Record{}, mapErr(err, "device", rec.Address)
	}
	return rec, nil
}

func (s *Store) UpdateDevice(ctx context.Context, rec device.Record) (device.Record, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE devices
		SET device_id = $2, active = $3, added_by = $4, updated_at = $5
		WHERE addr = $1
	`, rec.Address, rec.DeviceID, rec.Active, rec.AddedBy, rec.UpdatedAt)
	if err != nil {
		return device.Record{}, mapErr(err, "device", rec.Address)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return device.Record{}, errors.NotFound("device", rec.Address)
	}
	return rec, nil
}

func (s *Store) GetDevice(ctx context.Context, addr string) (device.Record, error) {
	var rec device.Record
	err := s.db.QueryRowContext(ctx, `
		SELECT addr, device_id, active, added_by, registered_at, updated_at
		FROM devices WHERE addr = $1
	`, addr).Scan(&rec.Address, &rec.DeviceID, &rec.Active, &rec.AddedBy, &rec.RegisteredAt, &rec.UpdatedAt)
	if err != nil {
		return device.Record{}, mapErr(err, "device", addr)
	}
	return rec, nil
}

func (s *Store) ListDevices(ctx context.Context) ([]device.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT addr, device_id, active, added_by, registered_at, updated_at
		FROM devices ORDER BY registered_at
	`)
	if err != nil {
		return nil, mapErr(err, "device", "")
	}
	defer rows.Close()

	var result []device.Record
	for rows.Next() {
		var rec device.Record
		if err := rows.Scan(&rec.Address, &rec.DeviceID, &rec.Active, &rec.AddedBy, &rec.RegisteredAt, &rec.UpdatedAt); err != nil {
			return nil, mapErr(err, "device", "")
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// --- CommissionStore --------------------------------------------------------

func (s *Store) UpsertRule(ctx context.Context, rule commission.Rule) (commission.Rule, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO commission_rules (supplier_id, rate_bps, tier, active, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (supplier_id) DO UPDATE
		SET rate_bps = EXCLUDED.rate_bps, tier = EXCLUDED.tier, active = EXCLUDED.active,
			updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at
	`, rule.SupplierID, rule.RateBps, rule.Tier, rule.Active, rule.UpdatedBy, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return commission.Rule{}, mapErr(err, "commission rule", rule.SupplierID)
	}
	return rule, nil
}

func (s *Store) GetRule(ctx context.Context, supplierID string) (commission.Rule, error) {
	var rule commission.Rule
	err := s.db.QueryRowContext(ctx, `
		SELECT supplier_id, rate_bps, tier, active, updated_by, created_at, updated_at
		FROM commission_rules WHERE supplier_id = $1
	`, supplierID).Scan(&rule.SupplierID, &rule.RateBps, &rule.Tier, &rule.Active, &rule.UpdatedBy, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return commission.Rule{}, mapErr(err, "commission rule", supplierID)
	}
	return rule, nil
}

func (s *Store) ListRules(ctx context.Context) ([]commission.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT supplier_id, rate_bps, tier, active, updated_by, created_at, updated_at
		FROM commission_rules ORDER BY supplier_id
	`)
	if err != nil {
		return nil, mapErr(err, "commission rule", "")
	}
	defer rows.Close()

	var result []commission.Rule
	for rows.Next() {
		var rule commission.Rule
		if err := rows.Scan(&rule.SupplierID, &rule.RateBps, &rule.Tier, &rule.Active, &rule.UpdatedBy, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, mapErr(err, "commission rule", "")
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

// --- AnomalyStore -----------------------------------------------------------

func (s *Store) AppendAnomaly(ctx context.Context, rec fraud.Record, block bool) (fraud.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fraud.Record{}, mapErr(err, "anomaly", rec.ID)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO anomalies (id, subject_hash, anomaly_type, severity, details_hash, blocked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.SubjectHash, rec.AnomalyType, rec.Severity, rec.DetailsHash, block, rec.CreatedAt); err != nil {
		return fraud.Record{}, mapErr(err, "anomaly", rec.ID)
	}
	if block {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO blocked_subjects (subject_hash, blocked_at)
			VALUES ($1, $2)
			ON CONFLICT (subject_hash) DO NOTHING
		`, rec.SubjectHash, rec.CreatedAt); err != nil {
			return fraud.Record{}, mapErr(err, "anomaly", rec.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return fraud.Record{}, mapErr(err, "anomaly", rec.ID)
	}
	rec.Blocked = block
	return rec, nil
}

func (s *Store) BlockSubject(ctx context.Context, subjectHash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blocked_subjects (subject_hash, blocked_at)
		VALUES ($1, $2)
		ON CONFLICT (subject_hash) DO NOTHING
	`, subjectHash, time.Now().UTC())
	return mapErr(err, "subject", subjectHash)
}

func (s *Store) IsBlocked(ctx context.Context, subjectHash string) (bool, error) {
	var blocked bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM blocked_subjects WHERE subject_hash = $1)
	`, subjectHash).Scan(&blocked)
	return blocked, mapErr(err, "subject", subjectHash)
}

func (s *Store) ListAnomalies(ctx context.Context, subjectHash string) ([]fraud.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject_hash, anomaly_type, severity, details_hash, blocked, created_at
		FROM anomalies WHERE subject_hash = $1 ORDER BY created_at
	`, subjectHash)
	if err != nil {
		return nil, mapErr(err, "anomaly", subjectHash)
	}
	defer rows.Close()

	var result []fraud.Record
	for rows.Next() {
		var rec fraud.Record
		if err := rows.Scan(&rec.ID, &rec.SubjectHash, &rec.AnomalyType, &rec.Severity, &rec.DetailsHash, &rec.Blocked, &rec.CreatedAt); err != nil {
			return nil, mapErr(err, "anomaly", subjectHash)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *Store) CountAnomalies(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM anomalies`).Scan(&n)
	return n, mapErr(err, "anomaly", "")
}

// --- VolumeStore ------------------------------------------------------------

const (
	hourBucketFormat = "2006010215"
	dayBucketFormat  = "20060102"
)

func (s *Store) Add(ctx context.Context, tenantAddr string, amountUsd6 int64, at time.Time) (hourUsd6, dayUsd6 int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, mapErr(err, "volume", tenantAddr)
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO volumes (tenant_addr, bucket, amount_usd6)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_addr, bucket) DO UPDATE
		SET amount_usd6 = volumes.amount_usd6 + EXCLUDED.amount_usd6
		RETURNING amount_usd6
	`
	at = at.UTC()
	if err := tx.QueryRowContext(ctx, upsert, tenantAddr, "h:"+at.Format(hourBucketFormat), amountUsd6).Scan(&hourUsd6); err != nil {
		return 0, 0, mapErr(err, "volume", tenantAddr)
	}
	if err := tx.QueryRowContext(ctx, upsert, tenantAddr, "d:"+at.Format(dayBucketFormat), amountUsd6).Scan(&dayUsd6); err != nil {
		return 0, 0, mapErr(err, "volume", tenantAddr)
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, mapErr(err, "volume", tenantAddr)
	}
	return hourUsd6, dayUsd6, nil
}

func (s *Store) ResetDay(ctx context.Context, tenantAddr string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM volumes WHERE tenant_addr = $1 AND bucket = $2
	`, tenantAddr, "d:"+at.UTC().Format(dayBucketFormat))
	return mapErr(err, "volume", tenantAddr)
}

// --- OrderStore -------------------------------------------------------------

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func (s *Store) CreateOrder(ctx context.Context, ord order.Order) (order.Order, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (
			id, tenant_addr, customer_addr, amount_usd6, status,
			flagged, flag_reason, paid_at, settled_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, ord.ID, ord.TenantAddr, ord.CustomerAddr, ord.AmountUsd6, string(ord.Status),
		ord.Flagged, ord.FlagReason, nullTime(ord.PaidAt), nullTime(ord.SettledAt), ord.CreatedAt, ord.UpdatedAt)
	if err != nil {
		return order.Order{}, mapErr(err, "order", ord.ID)
	}
	return ord, nil
}

func (s *Store) UpdateOrder(ctx context.Context, ord order.Order) (order.Order, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, flagged = $3, flag_reason = $4, paid_at = $5,
			settled_at = $6, updated_at = $7
		WHERE id = $1
	`, ord.ID, string(ord.Status), ord.Flagged, ord.FlagReason,
		nullTime(ord.PaidAt), nullTime(ord.SettledAt), ord.UpdatedAt)
	if err != nil {
		return order.Order{}, mapErr(err, "order", ord.ID)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return order.Order{}, errors.NotFound("order", ord.ID)
	}
	return ord, nil
}

const orderColumns = `
	id, tenant_addr, customer_addr, amount_usd6, status,
	flagged, flag_reason, paid_at, settled_at, created_at, updated_at
`

func scanOrder(row interface{ Scan(...interface{}) error }) (order.Order, error) {
	var (
		ord               order.Order
		status            string
		paidAt, settledAt sql.NullTime
	)
	err := row.Scan(&ord.ID, &ord.TenantAddr, &ord.CustomerAddr, &ord.AmountUsd6, &status,
		&ord.Flagged, &ord.FlagReason, &paidAt, &settledAt, &ord.CreatedAt, &ord.UpdatedAt)
	ord.Status = order.Status(status)
	if paidAt.Valid {
		ord.PaidAt = paidAt.Time
	}
	if settledAt.Valid {
		ord.SettledAt = settledAt.Time
	}
	return ord, err
}

func (s *Store) GetOrder(ctx context.Context, id string) (order.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	ord, err := scanOrder(row)
	if err != nil {
		return order.Order{}, mapErr(err, "order", id)
	}
	return ord, nil
}

func (s *Store) ListOrdersByTenant(ctx context.Context, tenantAddr string) ([]order.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE tenant_addr = $1 ORDER BY created_at DESC
	`, tenantAddr)
	if err != nil {
		return nil, mapErr(err, "order", "")
	}
	defer rows.Close()

	var result []order.Order
	for rows.Next() {
		ord, err := scanOrder(rows)
		if err != nil {
			return nil, mapErr(err, "order", "")
		}
		result = append(result, ord)
	}
	return result, rows.Err()
}

func (s *Store) CreateFeeEntry(ctx context.Context, entry order.FeeEntry) (order.FeeEntry, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fee_entries (id, order_id, tenant_addr, supplier_id, gross_usd6, fee_usd6, rate_bps, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.OrderID, entry.TenantAddr, entry.SupplierID,
		entry.GrossUsd6, entry.FeeUsd6, entry.RateBps, entry.CreatedAt)
	if err != nil {
		return order.FeeEntry{}, mapErr(err, "fee entry", entry.ID)
	}
	return entry, nil
}

func (s *Store) ListFeeEntries(ctx context.Context, orderID string) ([]order.FeeEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, tenant_addr, supplier_id, gross_usd6, fee_usd6, rate_bps, created_at
		FROM fee_entries WHERE order_id = $1 ORDER BY created_at
	`, orderID)
	if err != nil {
		return nil, mapErr(err, "fee entry", orderID)
	}
	defer rows.Close()

	var result []order.FeeEntry
	for rows.Next() {
		var entry order.FeeEntry
		if err := rows.Scan(&entry.ID, &entry.OrderID, &entry.TenantAddr, &entry.SupplierID,
			&entry.GrossUsd6, &entry.FeeUsd6, &entry.RateBps, &entry.CreatedAt); err != nil {
			return nil, mapErr(err, "fee entry", orderID)
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (s *Store) OrderStats(ctx context.Context) (total int64, settledUsd6 int64, feesUsd6 int64, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM orders),
			COALESCE((SELECT SUM(amount_usd6) FROM orders WHERE status = 'settled'), 0),
			COALESCE((SELECT SUM(fee_usd6) FROM fee_entries), 0)
	`).Scan(&total, &settledUsd6, &feesUsd6)
	if err != nil {
		return 0, 0, 0, mapErr(err, "order", "")
	}
	return total, settledUsd6, feesUsd6, nil
}

// --- InvestmentStore --------------------------------------------------------

func (s *Store) GetPosition(ctx context.Context, investor, tenantAddr string) (investment.Position, error) {
	var pos investment.Position
	err := s.db.QueryRowContext(ctx, `
		SELECT investor, tenant_addr, invested_usd6, ownership_bps, created_at, updated_at
		FROM positions WHERE investor = $1 AND tenant_addr = $2
	`, investor, tenantAddr).Scan(&pos.Investor, &pos.TenantAddr, &pos.InvestedUsd6, &pos.OwnershipBps, &pos.CreatedAt, &pos.UpdatedAt)
	if err != nil {
		return investment.Position{}, mapErr(err, "position", investor)
	}
	return pos, nil
}

func (s *Store) UpsertPosition(ctx context.Context, pos investment.Position) (investment.Position, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (investor, tenant_addr, invested_usd6, ownership_bps, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (investor, tenant_addr) DO UPDATE
		SET invested_usd6 = EXCLUDED.invested_usd6, ownership_bps = EXCLUDED.ownership_bps,
			updated_at = EXCLUDED.updated_at
	`, pos.Investor, pos.TenantAddr, pos.InvestedUsd6, pos.OwnershipBps, pos.CreatedAt, pos.UpdatedAt)
	if err != nil {
		return investment.Position{}, mapErr(err, "position", pos.Investor)
	}
	return pos, nil
}

func (s *Store) ListPositionsByTenant(ctx context.Context, tenantAddr string) ([]investment.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT investor, tenant_addr, invested_usd6, ownership_bps, created_at, updated_at
		FROM positions WHERE tenant_addr = $1 ORDER BY investor
	`, tenantAddr)
	if err != nil {
		return nil, mapErr(err, "position", tenantAddr)
	}
	defer rows.Close()

	var result []investment.Position
	for rows.Next() {
		var pos investment.Position
		if err := rows.Scan(&pos.Investor, &pos.TenantAddr, &pos.InvestedUsd6, &pos.OwnershipBps, &pos.CreatedAt, &pos.UpdatedAt); err != nil {
			return nil, mapErr(err, "position", tenantAddr)
		}
		result = append(result, pos)
	}
	return result, rows.Err()
}

func (s *Store) GetPool(ctx context.Context, tenantAddr string) (investment.Pool, error) {
	var pool investment.Pool
	err := s.db.QueryRowContext(ctx, `
		SELECT tenant_addr, total_usd6, updated_at FROM pools WHERE tenant_addr = $1
	`, tenantAddr).Scan(&pool.TenantAddr, &pool.TotalUsd6, &pool.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		// A tenant with no investments has a valid zero pool.
		return investment.Pool{TenantAddr: tenantAddr}, nil
	}
	if err != nil {
		return investment.Pool{}, mapErr(err, "pool", tenantAddr)
	}
	return pool, nil
}

func (s *Store) UpsertPool(ctx context.Context, pool investment.Pool) (investment.Pool, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pools (tenant_addr, total_usd6, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_addr) DO UPDATE
		SET total_usd6 = EXCLUDED.total_usd6, updated_at = EXCLUDED.updated_at
	`, pool.TenantAddr, pool.TotalUsd6, pool.UpdatedAt)
	if err != nil {
		return investment.Pool{}, mapErr(err, "pool", pool.TenantAddr)
	}
	return pool, nil
}

func (s *Store) TotalInvested(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(total_usd6), 0) FROM pools`).Scan(&total)
	return total, mapErr(err, "pool", "")
}

// --- CreditStore ------------------------------------------------------------

func (s *Store) SetSupplierVerified(ctx context.Context, supplierID string, verified bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (supplier_id, verified)
		VALUES ($1, $2)
		ON CONFLICT (supplier_id) DO UPDATE SET verified = EXCLUDED.verified
	`, supplierID, verified)
	return mapErr(err, "supplier", supplierID)
}

func (s *Store) IsSupplierVerified(ctx context.Context, supplierID string) (bool, error) {
	var verified bool
	err := s.db.QueryRowContext(ctx, `
		SELECT verified FROM suppliers WHERE supplier_id = $1
	`, supplierID).Scan(&verified)
	if stderrors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return verified, mapErr(err, "supplier", supplierID)
}

func (s *Store) UpsertLine(ctx context.Context, line credit.Line) (credit.Line, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credit_lines (tenant_addr, supplier_id, limit_usd6, used_usd6, terms_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_addr, supplier_id) DO UPDATE
		SET limit_usd6 = EXCLUDED.limit_usd6, used_usd6 = EXCLUDED.used_usd6,
			terms_hash = EXCLUDED.terms_hash, updated_at = EXCLUDED.updated_at
	`, line.TenantAddr, line.SupplierID, line.LimitUsd6, line.UsedUsd6, line.TermsHash, line.CreatedAt, line.UpdatedAt)
	if err != nil {
		return credit.Line{}, mapErr(err, "credit line", line.TenantAddr)
	}
	return line, nil
}

func (s *Store) GetLine(ctx context.Context, tenantAddr, supplierID string) (credit.Line, error) {
	var line credit.Line
	err := s.db.QueryRowContext(ctx, `
		SELECT tenant_addr, supplier_id, limit_usd6, used_usd6, terms_hash, created_at, updated_at
		FROM credit_lines WHERE tenant_addr = $1 AND supplier_id = $2
	`, tenantAddr, supplierID).Scan(&line.TenantAddr, &line.SupplierID, &line.LimitUsd6, &line.UsedUsd6, &line.TermsHash, &line.CreatedAt, &line.UpdatedAt)
	if err != nil {
		return credit.Line{}, mapErr(err, "credit line", tenantAddr+"|"+supplierID)
	}
	return line, nil
}

const invoiceColumns = `
	id, supplier_id, tenant_addr, amount_usd6, paid_usd6, terms_hash,
	status, due_at, settled_tx, created_at, updated_at
`

func scanInvoice(row interface{ Scan(...interface{}) error }) (credit.Invoice, error) {
	var (
		inv    credit.Invoice
		status string
	)
	err := row.Scan(&inv.ID, &inv.SupplierID, &inv.TenantAddr, &inv.AmountUsd6, &inv.PaidUsd6,
		&inv.TermsHash, &status, &inv.DueAt, &inv.SettledTx, &inv.CreatedAt, &inv.UpdatedAt)
	inv.Status = credit.InvoiceStatus(status)
	return inv, err
}

func (s *Store) CreateInvoice(ctx context.Context, inv credit.Invoice) (credit.Invoice, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, inv.ID, inv.SupplierID, inv.TenantAddr, inv.AmountUsd6, inv.PaidUsd6, inv.TermsHash,
		string(inv.Status), inv.DueAt, inv.SettledTx, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return credit.Invoice{}, mapErr(err, "invoice", inv.ID)
	}
	return inv, nil
}

func (s *Store) UpdateInvoice(ctx context.Context, inv credit.Invoice) (credit.Invoice, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE invoices
		SET paid_usd6 = $2, status = $3, settled_tx = $4, updated_at = $5
		WHERE id = $1
	`, inv.ID, inv.PaidUsd6, string(inv.Status), inv.SettledTx, inv.UpdatedAt)
	if err != nil {
		return credit.Invoice{}, mapErr(err, "invoice", inv.ID)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return credit.Invoice{}, errors.NotFound("invoice", inv.ID)
	}
	return inv, nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (credit.Invoice, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		return credit.Invoice{}, mapErr(err, "invoice", id)
	}
	return inv, nil
}

func (s *Store) ListInvoicesByTenant(ctx context.Context, tenantAddr string) ([]credit.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+invoiceColumns+` FROM invoices WHERE tenant_addr = $1 ORDER BY created_at
	`, tenantAddr)
	if err != nil {
		return nil, mapErr(err, "invoice", tenantAddr)
	}
	defer rows.Close()

	var result []credit.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, mapErr(err, "invoice", tenantAddr)
		}
		result = append(result, inv)
	}
	return result, rows.Err()
}

func (s *Store) ListUnpaidInvoicesDueBefore(ctx context.Context, cutoff time.Time) ([]credit.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE status IN ('pending', 'partial') AND due_at < $1
		ORDER BY due_at
	`, cutoff)
	if err != nil {
		return nil, mapErr(err, "invoice", "")
	}
	defer rows.Close()

	var result []credit.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, mapErr(err, "invoice", "")
		}
		result = append(result, inv)
	}
	return result, rows.Err()
}

// --- ProtocolStore ----------------------------------------------------------

func (s *Store) GetProtocolState(ctx context.Context) (storage.ProtocolState, error) {
	var state storage.ProtocolState
	err := s.db.QueryRowContext(ctx, `
		SELECT fee_bps, paused, governance_addr, updated_at FROM protocol_state WHERE id = 1
	`).Scan(&state.FeeBps, &state.Paused, &state.GovernanceAddr, &state.UpdatedAt)
	if err != nil {
		return storage.ProtocolState{}, mapErr(err, "protocol state", "singleton")
	}
	return state, nil
}

func (s *Store) SaveProtocolState(ctx context.Context, state storage.ProtocolState) (storage.ProtocolState, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO protocol_state (id, fee_bps, paused, governance_addr, updated_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET fee_bps = EXCLUDED.fee_bps, paused = EXCLUDED.paused,
			governance_addr = EXCLUDED.governance_addr, updated_at = EXCLUDED.updated_at
	`, state.FeeBps, state.Paused, state.GovernanceAddr, state.UpdatedAt)
	if err != nil {
		return storage.ProtocolState{}, mapErr(err, "protocol state", "singleton")
	}
	return state, nil
}
