package commission

import (
	"context"
	"testing"

	"github.com/nilelink/trustcore/internal/app/auth"
	domain "github.com/nilelink/trustcore/internal/app/domain/commission"
	"github.com/nilelink/trustcore/internal/app/storage/memory"
	"github.com/nilelink/trustcore/internal/errors"
)

var admin = auth.Actor{Address: "0xadmin", Role: auth.RoleAdmin}

func TestGetCommissionWithRule(t *testing.T) {
	svc := New(memory.New(), 0, nil, nil)
	ctx := context.Background()

	// 5% rule: commission on 100 units is 5.
	if _, err := svc.UpdateRule(ctx, admin, "sup-1", 500, "standard", true); err != nil {
		t.Fatalf("update rule: %v", err)
	}
	fee, rate := svc.GetCommission(ctx, "sup-1", 100)
	if fee != 5 || rate != 500 {
		t.Fatalf("expected 5 @500bps, got %d @%dbps", fee, rate)
	}

	// Raising to 10% affects subsequent calls only; earlier computed amounts
	// are plain values and cannot be rewritten.
	if _, err := svc.UpdateRule(ctx, admin, "sup-1", 1000, "standard", true); err != nil {
		t.Fatalf("update rule: %v", err)
	}
	fee2, _ := svc.GetCommission(ctx, "sup-1", 100)
	if fee2 != 10 {
		t.Fatalf("expected 10 after rate change, got %d", fee2)
	}
	if fee != 5 {
		t.Fatalf("prior amount mutated: %d", fee)
	}
}

func TestGetCommissionDefaultRate(t *testing.T) {
	svc := New(memory.New(), 0, nil, nil)

	fee, rate := svc.GetCommission(context.Background(), "unknown-supplier", 1_000_000)
	if rate != domain.DefaultRateBps {
		t.Fatalf("expected default rate, got %d", rate)
	}
	if fee != 1_000_000*domain.DefaultRateBps/10_000 {
		t.Fatalf("unexpected default fee: %d", fee)
	}
}

func TestInactiveRuleFallsBackToDefault(t *testing.T) {
	svc := New(memory.New(), 0, nil, nil)
	ctx := context.Background()

	if _, err := svc.UpdateRule(ctx, admin, "sup-1", 500, "standard", false); err != nil {
		t.Fatalf("update rule: %v", err)
	}
	_, rate := svc.GetCommission(ctx, "sup-1", 100)
	if rate != domain.DefaultRateBps {
		t.Fatalf("inactive rule should fall back to default, got %d", rate)
	}
}

func TestUpdateRuleValidation(t *testing.T) {
	svc := New(memory.New(), 0, nil, nil)
	ctx := context.Background()

	if _, err := svc.UpdateRule(ctx, admin, "sup-1", 10_001, "", true); !errors.IsCode(err, errors.CodeValidation) {
		t.Fatalf("rate above 10000 bps should fail: %v", err)
	}
	if _, err := svc.UpdateRule(ctx, admin, "", 500, "", true); !errors.IsCode(err, errors.CodeValidation) {
		t.Fatalf("empty supplier should fail: %v", err)
	}
}

func TestUpdateRuleRequiresAdmin(t *testing.T) {
	svc := New(memory.New(), 0, nil, nil)

	nobody := auth.Actor{Address: "0xcust"}
	_, err := svc.UpdateRule(context.Background(), nobody, "sup-1", 500, "", true)
	if !errors.IsCode(err, errors.CodeUnauthorized) {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
}
