// Package auth models caller capabilities for the trust core. The identity
// layer in front of the core resolves sessions to an Actor; the core only
// checks the resolved role against a policy table and never authenticates.
package auth

import (
	"strings"

	"github.com/nilelink/trustcore/internal/errors"
)

// Role is a caller capability level.
type Role string

const (
	// RoleGovernance is the highest-privilege capability: force-blocking,
	// tenant registration, supplier verification, credit lines.
	RoleGovernance Role = "governance"
	// RoleAdmin manages operational tables: devices, commission rules.
	RoleAdmin Role = "admin"
	// RoleOwner is a tenant owner acting on its own tenant record.
	RoleOwner Role = "owner"
	// RoleTerminal is an authorized point-of-sale device.
	RoleTerminal Role = "terminal"
	// RoleNone is an unprivileged caller.
	RoleNone Role = ""
)

// Actor is a resolved caller identity plus capability.
type Actor struct {
	Address string
	Role    Role
}

// Operation names a privileged mutating call gated by the policy table.
type Operation string

const (
	OpRegisterTenant   Operation = "registry.register"
	OpSuspendTenant    Operation = "registry.suspend"
	OpSetOracle        Operation = "registry.set_oracle"
	OpAuthorizeDevice  Operation = "device.authorize"
	OpDeactivateDevice Operation = "device.deactivate"
	OpUpdateRule       Operation = "commission.update_rule"
	OpBlockTransaction Operation = "fraud.block_transaction"
	OpVerifySupplier   Operation = "credit.verify_supplier"
	OpSetCreditLine    Operation = "credit.set_credit_line"
	OpUpdateFee        Operation = "protocol.update_fee"
	OpPause            Operation = "protocol.pause"
	OpUnpause          Operation = "protocol.unpause"
	OpSetGovernance    Operation = "protocol.set_governance"
)

// policy maps each gated operation to the roles permitted to perform it.
// Governance implies admin for operational tables, matching the original
// protocol's role lattice.
var policy = map[Operation][]Role{
	OpRegisterTenant:   {RoleGovernance},
	OpSuspendTenant:    {RoleGovernance},
	OpSetOracle:        {RoleGovernance, RoleAdmin},
	OpAuthorizeDevice:  {RoleGovernance, RoleAdmin},
	OpDeactivateDevice: {RoleGovernance, RoleAdmin},
	OpUpdateRule:       {RoleGovernance, RoleAdmin},
	OpBlockTransaction: {RoleGovernance},
	OpVerifySupplier:   {RoleGovernance},
	OpSetCreditLine:    {RoleGovernance},
	OpUpdateFee:        {RoleGovernance, RoleAdmin},
	OpPause:            {RoleGovernance},
	OpUnpause:          {RoleGovernance, RoleAdmin},
	OpSetGovernance:    {RoleGovernance},
}

// Require returns UnauthorizedError unless the actor's role is permitted to
// perform op.
func Require(actor Actor, op Operation) error {
	for _, role := range policy[op] {
		if actor.Role == role {
			return nil
		}
	}
	return errors.Unauthorized("caller is not authorized for " + string(op)).
		WithDetails("operation", string(op)).
		WithDetails("role", string(actor.Role))
}

// RequireOwnerOf allows the tenant owner itself, or any role permitted for op.
// Addresses compare case-insensitively; tenant records store the lowercase
// form while session layers may carry the checksummed one.
func RequireOwnerOf(actor Actor, tenantAddr string, op Operation) error {
	if actor.Role == RoleOwner && strings.EqualFold(actor.Address, tenantAddr) {
		return nil
	}
	return Require(actor, op)
}
