package fraud

import (
	"context"
	"testing"

	"github.com/nilelink/trustcore/internal/app/auth"
	domain "github.com/nilelink/trustcore/internal/app/domain/fraud"
	"github.com/nilelink/trustcore/internal/app/domain/tenant"
	"github.com/nilelink/trustcore/internal/app/ledger"
	"github.com/nilelink/trustcore/internal/app/storage/memory"
	"github.com/nilelink/trustcore/internal/errors"
)

var governance = auth.Actor{Address: "0xgov", Role: auth.RoleGovernance}

func newTestDetector(t *testing.T, dailyLimitUsd6 int64) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	rec := tenant.Record{
		Address: "0xrest",
		Config: tenant.Config{
			OwnerHash:      "h:owner",
			Country:        "LB",
			Currency:       "LBP",
			DailyRateLimit: dailyLimitUsd6,
			Status:         tenant.StatusActive,
		},
	}
	if _, err := store.CreateTenant(context.Background(), rec); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	return New(store, store, store, 0, nil, nil), store
}

func TestFlagAnomalySeverityGovernsBlocking(t *testing.T) {
	svc, _ := newTestDetector(t, 0)
	ctx := context.Background()

	if _, err := svc.FlagAnomaly(ctx, "0xSubjectA", domain.TypeExternalReport, 7, "d1"); err != nil {
		t.Fatalf("flag severity 7: %v", err)
	}
	if svc.IsBlocked(ctx, "0xsubjecta") {
		t.Fatal("severity 7 must not block")
	}

	if _, err := svc.FlagAnomaly(ctx, "0xSubjectB", domain.TypeExternalReport, 8, "d2"); err != nil {
		t.Fatalf("flag severity 8: %v", err)
	}
	if !svc.IsBlocked(ctx, "0xsubjectb") {
		t.Fatal("severity 8 must block immediately")
	}
}

func TestFlagAnomalyValidatesSeverity(t *testing.T) {
	svc, _ := newTestDetector(t, 0)

	for _, sev := range []int{-1, 11} {
		if _, err := svc.FlagAnomaly(context.Background(), "0xs", domain.TypeExternalReport, sev, ""); !errors.IsCode(err, errors.CodeValidation) {
			t.Fatalf("severity %d should fail validation, got %v", sev, err)
		}
	}
}

func TestIsBlockedUnknownSubject(t *testing.T) {
	svc, _ := newTestDetector(t, 0)
	if svc.IsBlocked(context.Background(), "0xnever-seen") {
		t.Fatal("unknown subject must be clear")
	}
}

func TestCheckOrderAnomalyClear(t *testing.T) {
	svc, _ := newTestDetector(t, 100_000*ledger.OneUSD)

	got, err := svc.CheckOrderAnomaly(context.Background(), "0xrest", "order-1", 500*ledger.OneUSD)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if got.IsAnomaly || got.Severity != 0 || got.Action != domain.ActionNone {
		t.Fatalf("clean order should be clear: %+v", got)
	}
}

func TestCheckOrderAnomalyCapBreach(t *testing.T) {
	svc, store := newTestDetector(t, 0)
	ctx := context.Background()

	got, err := svc.CheckOrderAnomaly(ctx, "0xRest", "order-1", 12_000*ledger.OneUSD)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !got.IsAnomaly || got.Severity != 7 || got.Action != domain.ActionReview {
		t.Fatalf("cap breach should be severity 7 review: %+v", got)
	}
	if svc.IsBlocked(ctx, "0xrest") {
		t.Fatal("severity 7 must not block the tenant")
	}

	recs, err := store.ListAnomalies(ctx, "0xrest")
	if err != nil || len(recs) != 1 {
		t.Fatalf("expected one anomaly record: %v %v", recs, err)
	}
	if recs[0].AnomalyType != domain.TypeOrderCapExceeded || recs[0].DetailsHash != "order-1" {
		t.Fatalf("wrong record: %+v", recs[0])
	}
}

func TestCheckOrderAnomalyExtremeAmountBlocks(t *testing.T) {
	svc, _ := newTestDetector(t, 0)
	ctx := context.Background()

	got, err := svc.CheckOrderAnomaly(ctx, "0xrest", "order-1", 25_000*ledger.OneUSD)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if got.Severity != 9 || got.Action != domain.ActionBlock {
		t.Fatalf("amount above twice the cap should auto-block: %+v", got)
	}
	if !svc.IsBlocked(ctx, "0xrest") {
		t.Fatal("tenant should be blocked after severity 9 anomaly")
	}
}

func TestCheckOrderAnomalyDailyLimit(t *testing.T) {
	svc, _ := newTestDetector(t, 18_000*ledger.OneUSD)
	ctx := context.Background()

	// First order is clear and counts toward the day bucket.
	first, err := svc.CheckOrderAnomaly(ctx, "0xrest", "order-1", 5_000*ledger.OneUSD)
	if err != nil {
		t.Fatalf("first check: %v", err)
	}
	if first.IsAnomaly {
		t.Fatalf("first order should be clear: %+v", first)
	}

	// The second order alone is over the absolute cap, and together with
	// the first it also breaches the daily limit. The cap severity wins.
	second, err := svc.CheckOrderAnomaly(ctx, "0xrest", "order-2", 15_000*ledger.OneUSD)
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if !second.IsAnomaly || second.Severity != 7 {
		t.Fatalf("expected cap breach severity 7: %+v", second)
	}

	// A small follow-up order trips only the daily limit.
	third, err := svc.CheckOrderAnomaly(ctx, "0xrest", "order-3", 100*ledger.OneUSD)
	if err != nil {
		t.Fatalf("third check: %v", err)
	}
	if !third.IsAnomaly || third.Severity != 5 || third.Action != domain.ActionReview {
		t.Fatalf("expected daily limit severity 5 review: %+v", third)
	}
}

func TestCheckOrderAnomalyRejectsNonPositive(t *testing.T) {
	svc, _ := newTestDetector(t, 0)
	if _, err := svc.CheckOrderAnomaly(context.Background(), "0xrest", "o", 0); !errors.IsCode(err, errors.CodeValidation) {
		t.Fatalf("zero amount should fail validation: %v", err)
	}
}

func TestBlockTransaction(t *testing.T) {
	svc, store := newTestDetector(t, 0)
	ctx := context.Background()

	if err := svc.BlockTransaction(ctx, governance, "0xTxRef", "chargeback report"); err != nil {
		t.Fatalf("block: %v", err)
	}
	if !svc.IsBlocked(ctx, "0xtxref") {
		t.Fatal("tx ref should be blocked regardless of severity")
	}

	recs, err := store.ListAnomalies(ctx, "0xtxref")
	if err != nil || len(recs) != 1 {
		t.Fatalf("expected one record: %v %v", recs, err)
	}
	if recs[0].AnomalyType != domain.TypeExternalReport || recs[0].Severity != 5 {
		t.Fatalf("wrong record: %+v", recs[0])
	}
}

func TestBlockTransactionRequiresGovernance(t *testing.T) {
	svc, _ := newTestDetector(t, 0)
	admin := auth.Actor{Address: "0xadmin", Role: auth.RoleAdmin}

	err := svc.BlockTransaction(context.Background(), admin, "0xtx", "r")
	if !errors.IsCode(err, errors.CodeUnauthorized) {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
}
