package registry

import (
	"context"
	"testing"
	"time"

	"github.com/nilelink/trustcore/internal/app/auth"
	"github.com/nilelink/trustcore/internal/app/domain/tenant"
	"github.com/nilelink/trustcore/internal/app/ledger"
	"github.com/nilelink/trustcore/internal/app/storage/memory"
	"github.com/nilelink/trustcore/internal/errors"
)

var governance = auth.Actor{Address: "0xgov", Role: auth.RoleGovernance}

func validTestConfig() tenant.Config {
	return tenant.Config{
		OwnerHash:       "h:owner",
		LegalNameHash:   "h:legal",
		DisplayNameHash: "h:display",
		Country:         "LB",
		Currency:        "LBP",
		DailyRateLimit:  10_000 * ledger.OneUSD,
		TimezoneOffset:  120,
		TaxBps:          1000,
		OracleRef:       "0x1234",
	}
}

func TestRegisterAndGet(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil, nil)

	created, err := svc.Register(context.Background(), governance, "0xrest", validTestConfig())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if created.Config.Status != tenant.StatusActive {
		t.Fatalf("new tenant should be active: %s", created.Config.Status)
	}

	got, err := svc.Get(context.Background(), "0xrest")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Config.Country != "LB" || got.Config.Currency != "LBP" {
		t.Fatalf("config not persisted: %+v", got.Config)
	}
	if !svc.IsActive(context.Background(), "0xrest") {
		t.Fatal("registered tenant should be active")
	}
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil, nil)

	if _, err := svc.Register(context.Background(), governance, "0xrest", validTestConfig()); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := svc.Register(context.Background(), governance, "0xrest", validTestConfig())
	if !errors.IsCode(err, errors.CodeDuplicate) {
		t.Fatalf("expected DUPLICATE, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil, nil)

	low := validTestConfig()
	low.DailyRateLimit = 50 * ledger.OneUSD
	if _, err := svc.Register(context.Background(), governance, "0xa", low); !errors.IsCode(err, errors.CodeValidation) {
		t.Fatalf("rate limit below minimum should fail validation: %v", err)
	}

	tax := validTestConfig()
	tax.TaxBps = 10_001
	if _, err := svc.Register(context.Background(), governance, "0xb", tax); !errors.IsCode(err, errors.CodeValidation) {
		t.Fatalf("tax above 10000 bps should fail validation: %v", err)
	}

	// Failed registration must leave no partial write.
	if svc.IsActive(context.Background(), "0xa") || svc.IsActive(context.Background(), "0xb") {
		t.Fatal("rejected registration wrote state")
	}
}

func TestRegisterRequiresGovernance(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil, nil)

	customer := auth.Actor{Address: "0xcust"}
	_, err := svc.Register(context.Background(), customer, "0xrest", validTestConfig())
	if !errors.IsCode(err, errors.CodeUnauthorized) {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
}

func TestUpdateConfigAndRateLimit(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil, nil)
	ctx := context.Background()

	if _, err := svc.Register(ctx, governance, "0xrest", validTestConfig()); err != nil {
		t.Fatalf("register: %v", err)
	}

	owner := auth.Actor{Address: "0xrest", Role: auth.RoleOwner}
	cfg := validTestConfig()
	cfg.TaxBps = 1500
	cfg.DailyRateLimit = 20_000 * ledger.OneUSD
	updated, err := svc.UpdateConfig(ctx, owner, "0xrest", cfg)
	if err != nil {
		t.Fatalf("update config: %v", err)
	}
	if updated.Config.TaxBps != 1500 {
		t.Fatalf("tax not updated: %d", updated.Config.TaxBps)
	}

	rec, err := svc.SetDailyRateLimit(ctx, owner, "0xrest", 25_000*ledger.OneUSD)
	if err != nil {
		t.Fatalf("set daily rate limit: %v", err)
	}
	if rec.Config.DailyRateLimit != 25_000*ledger.OneUSD {
		t.Fatalf("rate limit not updated: %d", rec.Config.DailyRateLimit)
	}

	other := auth.Actor{Address: "0xother", Role: auth.RoleOwner}
	if _, err := svc.SetDailyRateLimit(ctx, other, "0xrest", 25_000*ledger.OneUSD); !errors.IsCode(err, errors.CodeUnauthorized) {
		t.Fatalf("foreign owner should be rejected: %v", err)
	}
}

func TestRegisterCanonicalizesAddress(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil, nil)
	ctx := context.Background()

	created, err := svc.Register(ctx, governance, "  0xREST ", validTestConfig())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if created.Address != "0xrest" {
		t.Fatalf("address must be stored lowercase: %q", created.Address)
	}
	if got, err := svc.Get(ctx, "0xReSt"); err != nil || got.Address != "0xrest" {
		t.Fatalf("mixed-case lookup must resolve: %+v %v", got, err)
	}
	if !svc.IsActive(ctx, "0XREST") {
		t.Fatal("mixed-case address should resolve to the active tenant")
	}
}

// recordingVolumes captures the addresses handed to the volume store so tests
// can check they arrive in canonical form.
type recordingVolumes struct {
	resetAddrs []string
}

func (v *recordingVolumes) Add(_ context.Context, _ string, _ int64, _ time.Time) (int64, int64, error) {
	return 0, 0, nil
}

func (v *recordingVolumes) ResetDay(_ context.Context, tenantAddr string, _ time.Time) error {
	v.resetAddrs = append(v.resetAddrs, tenantAddr)
	return nil
}

func TestSetDailyRateLimitResetsCanonicalBucket(t *testing.T) {
	store := memory.New()
	volumes := &recordingVolumes{}
	svc := New(store, volumes, nil, nil)
	ctx := context.Background()

	if _, err := svc.Register(ctx, governance, "0xrest", validTestConfig()); err != nil {
		t.Fatalf("register: %v", err)
	}

	// A checksummed owner address must still pass the ownership check and
	// the usage reset must target the stored lowercase address.
	owner := auth.Actor{Address: "0xREST", Role: auth.RoleOwner}
	if _, err := svc.SetDailyRateLimit(ctx, owner, "0xREST", 25_000*ledger.OneUSD); err != nil {
		t.Fatalf("set daily rate limit: %v", err)
	}
	if len(volumes.resetAddrs) != 1 || volumes.resetAddrs[0] != "0xrest" {
		t.Fatalf("day bucket reset must use the canonical address: %v", volumes.resetAddrs)
	}
}

func TestSuspend(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil, nil)
	ctx := context.Background()

	if _, err := svc.Register(ctx, governance, "0xrest", validTestConfig()); err != nil {
		t.Fatalf("register: %v", err)
	}
	rec, err := svc.Suspend(ctx, governance, "0xrest", "terms violation")
	if err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if rec.Config.Status != tenant.StatusSuspended {
		t.Fatalf("status not suspended: %s", rec.Config.Status)
	}
	if svc.IsActive(ctx, "0xrest") {
		t.Fatal("suspended tenant reported active")
	}
}

func TestIsActiveUnknownTenant(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil, nil)
	if svc.IsActive(context.Background(), "0xnobody") {
		t.Fatal("unknown tenant must not be active")
	}
}

func TestOracleMapping(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil, nil)
	ctx := context.Background()

	if err := svc.SetOracle(ctx, governance, "LBP", "0xoracle"); err != nil {
		t.Fatalf("set oracle: %v", err)
	}
	ref, err := svc.GetOracle(ctx, "LBP")
	if err != nil || ref != "0xoracle" {
		t.Fatalf("get oracle: %s %v", ref, err)
	}
}
