package auth

import (
	"testing"

	"github.com/nilelink/trustcore/internal/errors"
)

func TestRequire(t *testing.T) {
	gov := Actor{Address: "0xgov", Role: RoleGovernance}
	admin := Actor{Address: "0xadmin", Role: RoleAdmin}
	nobody := Actor{Address: "0xcustomer"}

	if err := Require(gov, OpBlockTransaction); err != nil {
		t.Fatalf("governance should block transactions: %v", err)
	}
	if err := Require(admin, OpBlockTransaction); err == nil {
		t.Fatal("admin must not block transactions")
	}
	if err := Require(admin, OpUpdateRule); err != nil {
		t.Fatalf("admin should update commission rules: %v", err)
	}

	err := Require(nobody, OpAuthorizeDevice)
	if !errors.IsCode(err, errors.CodeUnauthorized) {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
}

func TestRequireOwnerOf(t *testing.T) {
	owner := Actor{Address: "0xtenant", Role: RoleOwner}

	if err := RequireOwnerOf(owner, "0xtenant", OpSuspendTenant); err != nil {
		t.Fatalf("owner should act on its own tenant: %v", err)
	}
	if err := RequireOwnerOf(owner, "0xother", OpSuspendTenant); err == nil {
		t.Fatal("owner must not act on another tenant")
	}

	// Session layers may carry checksummed addresses; ownership compares
	// case-insensitively against the stored lowercase form.
	checksummed := Actor{Address: "0xTeNaNt", Role: RoleOwner}
	if err := RequireOwnerOf(checksummed, "0xtenant", OpSuspendTenant); err != nil {
		t.Fatalf("checksummed owner address should match its tenant: %v", err)
	}
}
