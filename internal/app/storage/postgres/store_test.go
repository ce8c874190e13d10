package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/nilelink/trustcore/internal/app/domain/fraud"
	"github.com/nilelink/trustcore/internal/app/domain/tenant"
	"github.com/nilelink/trustcore/internal/errors"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestGetTenantNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("SELECT .* FROM tenants").WillReturnError(sql.ErrNoRows)

	_, err := store.GetTenant(context.Background(), "0xghost")
	if !errors.IsCode(err, errors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateTenantDuplicate(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("INSERT INTO tenants").
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := store.CreateTenant(context.Background(), tenant.Record{Address: "0xrest"})
	if !errors.IsCode(err, errors.CodeDuplicate) {
		t.Fatalf("expected DUPLICATE, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestVolumeAddRunsBothBucketsInOneTx(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO volumes").
		WillReturnRows(sqlmock.NewRows([]string{"amount_usd6"}).AddRow(int64(1_000_000)))
	mock.ExpectQuery("INSERT INTO volumes").
		WillReturnRows(sqlmock.NewRows([]string{"amount_usd6"}).AddRow(int64(5_000_000)))
	mock.ExpectCommit()

	hour, day, err := store.Add(context.Background(), "0xrest", 1_000_000, time.Now())
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if hour != 1_000_000 || day != 5_000_000 {
		t.Fatalf("wrong totals: %d %d", hour, day)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendAnomalyBlocksInSameTx(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO anomalies").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO blocked_subjects").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec, err := store.AppendAnomaly(context.Background(), fraud.Record{
		ID:          "rec-1",
		SubjectHash: "0xrest",
		AnomalyType: fraud.TypeOrderCapExceeded,
		Severity:    9,
		CreatedAt:   time.Now().UTC(),
	}, true)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if !rec.Blocked {
		t.Fatal("record should carry the blocked flag")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendAnomalyWithoutBlockSkipsBlockWrite(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO anomalies").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if _, err := store.AppendAnomaly(context.Background(), fraud.Record{
		ID:          "rec-1",
		SubjectHash: "0xrest",
		AnomalyType: fraud.TypeDailyLimitReached,
		Severity:    5,
		CreatedAt:   time.Now().UTC(),
	}, false); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestIsSupplierVerifiedUnknown(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("SELECT verified FROM suppliers").WillReturnError(sql.ErrNoRows)

	ok, err := store.IsSupplierVerified(context.Background(), "sup-ghost")
	if err != nil || ok {
		t.Fatalf("unknown supplier should be unverified without error: %v %v", ok, err)
	}
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store := New(db)
	ctx := context.Background()
	now := time.Now().UTC()

	rec, err := store.CreateTenant(ctx, tenant.Record{
		Address: "0xintegration",
		Config: tenant.Config{
			OwnerHash:      "h:owner",
			Country:        "LB",
			Currency:       "LBP",
			DailyRateLimit: 10_000_000_000,
			Status:         tenant.StatusActive,
		},
		RegisteredAt: now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}

	got, err := store.GetTenant(ctx, rec.Address)
	if err != nil {
		t.Fatalf("get tenant: %v", err)
	}
	if got.Config.Currency != "LBP" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
