// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package roles implements enumerable capability-based access control for the
// stable-asset engine. Every privileged operation names a capability and asks
// the registry whether the caller holds it; there is no single owner address.
package roles

import (
	"errors"
	"sync"

	"github.com/luxfi/geth/common"
)

// Role identifies a named capability.
type Role uint8

const (
	DefaultAdmin Role = iota
	Minter
	Redeemer
	CollateralManager
	Gatekeeper
	Rewarder
	BlacklistManager
	RedemptionManager
)

// String returns the canonical role name.
func (r Role) String() string {
	switch r {
	case DefaultAdmin:
		return "DEFAULT_ADMIN"
	case Minter:
		return "MINTER"
	case Redeemer:
		return "REDEEMER"
	case CollateralManager:
		return "COLLATERAL_MANAGER"
	case Gatekeeper:
		return "GATEKEEPER"
	case Rewarder:
		return "REWARDER"
	case BlacklistManager:
		return "BLACKLIST_MANAGER"
	case RedemptionManager:
		return "REDEMPTION_MANAGER"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrUnauthorized   = errors.New("unauthorized: caller lacks required role")
	ErrZeroAddress    = errors.New("invalid address: cannot be zero")
	ErrLastAdmin      = errors.New("cannot remove the last admin")
	ErrUnknownRole    = errors.New("unknown role")
	ErrAlreadyGranted = errors.New("role already granted")
)

// Registry maps capabilities to enumerable member sets.
type Registry struct {
	mu      sync.RWMutex
	members map[Role]map[common.Address]bool
}

// NewRegistry creates a registry with admin as the initial DefaultAdmin.
func NewRegistry(admin common.Address) (*Registry, error) {
	if admin == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	r := &Registry{
		members: make(map[Role]map[common.Address]bool),
	}
	r.members[DefaultAdmin] = map[common.Address]bool{admin: true}
	return r, nil
}

func validRole(role Role) bool {
	return role <= RedemptionManager
}

// Has reports whether account holds role.
func (r *Registry) Has(role Role, account common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.members[role][account]
}

// Require returns ErrUnauthorized unless account holds role.
func (r *Registry) Require(role Role, account common.Address) error {
	if !r.Has(role, account) {
		return ErrUnauthorized
	}
	return nil
}

// Grant gives account the role. Only a DefaultAdmin may grant.
func (r *Registry) Grant(caller common.Address, role Role, account common.Address) error {
	if !validRole(role) {
		return ErrUnknownRole
	}
	if account == (common.Address{}) {
		return ErrZeroAddress
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.members[DefaultAdmin][caller] {
		return ErrUnauthorized
	}
	if r.members[role][account] {
		return ErrAlreadyGranted
	}
	if r.members[role] == nil {
		r.members[role] = make(map[common.Address]bool)
	}
	r.members[role][account] = true
	return nil
}

// Revoke removes the role from account. Only a DefaultAdmin may revoke, and
// the last DefaultAdmin cannot be removed.
func (r *Registry) Revoke(caller common.Address, role Role, account common.Address) error {
	if !validRole(role) {
		return ErrUnknownRole
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.members[DefaultAdmin][caller] {
		return ErrUnauthorized
	}
	if role == DefaultAdmin && len(r.members[DefaultAdmin]) == 1 && r.members[DefaultAdmin][account] {
		return ErrLastAdmin
	}
	delete(r.members[role], account)
	return nil
}

// Members returns the enumerated holders of role.
func (r *Registry) Members(role Role) []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]common.Address, 0, len(r.members[role]))
	for addr := range r.members[role] {
		out = append(out, addr)
	}
	return out
}

// MemberCount returns the number of holders of role.
func (r *Registry) MemberCount(role Role) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members[role])
}
