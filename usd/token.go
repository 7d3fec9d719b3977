// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package usd

import (
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/stable/roles"
)

// StableToken is the fungible 18-decimal stable-asset ledger. Balances live as
// uint256 so they can never go negative; the silo bookkeeping tracks which
// owner each locked balance belongs to so redistribution can reach it.
type StableToken struct {
	mu sync.RWMutex

	roles *roles.Registry

	balances    map[common.Address]*uint256.Int
	totalSupply *uint256.Int

	restrictions map[common.Address]RestrictionLevel

	// Portion of SiloAddress's balance attributable to each owner.
	siloHoldings map[common.Address]*uint256.Int

	journal *Journal
}

// NewStableToken creates an empty ledger governed by reg.
func NewStableToken(reg *roles.Registry) *StableToken {
	return &StableToken{
		roles:        reg,
		balances:     make(map[common.Address]*uint256.Int),
		totalSupply:  uint256.NewInt(0),
		restrictions: make(map[common.Address]RestrictionLevel),
		siloHoldings: make(map[common.Address]*uint256.Int),
		journal:      NewJournal(),
	}
}

// toU256 converts a positive big.Int amount, rejecting zero, negative and
// overflowing values.
func toU256(amount *big.Int) (*uint256.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	u, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrZeroAmount
	}
	return u, nil
}

// BalanceOf returns the spendable balance of account.
func (t *StableToken) BalanceOf(account common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balanceInternal(account).ToBig()
}

func (t *StableToken) balanceInternal(account common.Address) *uint256.Int {
	if bal, ok := t.balances[account]; ok {
		return bal
	}
	return uint256.NewInt(0)
}

// TotalSupply returns the total stable-asset supply, silo included.
func (t *StableToken) TotalSupply() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalSupply.ToBig()
}

// SiloBalanceOf returns the amount locked in the silo on behalf of owner.
func (t *StableToken) SiloBalanceOf(owner common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if bal, ok := t.siloHoldings[owner]; ok {
		return bal.ToBig()
	}
	return big.NewInt(0)
}

// RestrictionOf returns the compliance tier of account.
func (t *StableToken) RestrictionOf(account common.Address) RestrictionLevel {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.restrictions[account]
}

// IsRestricted reports whether account is at or above level.
func (t *StableToken) IsRestricted(account common.Address, level RestrictionLevel) bool {
	return t.RestrictionOf(account) >= level
}

// SetRestriction moves account to the given tier. BlacklistManager only; an
// address holding DefaultAdmin can never be restricted.
func (t *StableToken) SetRestriction(caller, account common.Address, level RestrictionLevel) error {
	if err := t.roles.Require(roles.BlacklistManager, caller); err != nil {
		return err
	}
	if account == (common.Address{}) {
		return ErrZeroAddress
	}
	if level != RestrictionNone && t.roles.Has(roles.DefaultAdmin, account) {
		return ErrRestrictionImmune
	}

	t.mu.Lock()
	prev := t.restrictions[account]
	if level == RestrictionNone {
		delete(t.restrictions, account)
	} else {
		t.restrictions[account] = level
	}
	t.mu.Unlock()

	t.journal.Append(RestrictionChanged{Account: account, Previous: prev, Current: level})
	return nil
}

// Transfer moves amount between accounts. FULL restriction blocks either end;
// ordinary transfers are never credential-checked.
func (t *StableToken) Transfer(from, to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	u, err := toU256(amount)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.restrictions[from] == RestrictionFull || t.restrictions[to] == RestrictionFull {
		return ErrRestricted
	}
	return t.moveInternal(from, to, u)
}

func (t *StableToken) moveInternal(from, to common.Address, amount *uint256.Int) error {
	fromBal := t.balanceInternal(from)
	if fromBal.Lt(amount) {
		return ErrInsufficientBalance
	}
	t.balances[from] = new(uint256.Int).Sub(fromBal, amount)
	t.balances[to] = new(uint256.Int).Add(t.balanceInternal(to), amount)
	return nil
}

// Mint credits newly issued stable asset to a beneficiary. Minter only; a
// restricted beneficiary cannot receive new issuance.
func (t *StableToken) Mint(caller, to common.Address, amount *big.Int) error {
	if err := t.roles.Require(roles.Minter, caller); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	u, err := toU256(amount)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.restrictions[to] >= RestrictionSoft {
		return ErrRestricted
	}
	t.mintInternal(to, u)
	return nil
}

func (t *StableToken) mintInternal(to common.Address, amount *uint256.Int) {
	t.balances[to] = new(uint256.Int).Add(t.balanceInternal(to), amount)
	t.totalSupply = new(uint256.Int).Add(t.totalSupply, amount)
}

// Burn destroys amount held by from. Redeemer only.
func (t *StableToken) Burn(caller, from common.Address, amount *big.Int) error {
	if err := t.roles.Require(roles.Redeemer, caller); err != nil {
		return err
	}
	u, err := toU256(amount)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.burnInternal(from, u)
}

func (t *StableToken) burnInternal(from common.Address, amount *uint256.Int) error {
	fromBal := t.balanceInternal(from)
	if fromBal.Lt(amount) {
		return ErrInsufficientBalance
	}
	t.balances[from] = new(uint256.Int).Sub(fromBal, amount)
	t.totalSupply = new(uint256.Int).Sub(t.totalSupply, amount)
	return nil
}

// mintDirect is the engine's issuance hook. Restriction and capability
// checks have already happened on the engine side.
func (t *StableToken) mintDirect(to common.Address, amount *big.Int) error {
	u, err := toU256(amount)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mintInternal(to, u)
	return nil
}

// settleDirect debits net+fee from the owner's funds, burns the net portion
// and credits the fee to the treasury, all under one lock. Either every step
// happens or none does, so a second settle of the same funds fails here
// before anything else moves. fromSilo charges the owner's silo holding
// instead of the spendable balance. Engine use only.
func (t *StableToken) settleDirect(owner, treasury common.Address, net, fee *big.Int, fromSilo bool) error {
	uNet, err := toU256(net)
	if err != nil {
		return err
	}
	total := new(uint256.Int).Set(uNet)
	var uFee *uint256.Int
	if fee != nil && fee.Sign() > 0 {
		if uFee, err = toU256(fee); err != nil {
			return err
		}
		total = new(uint256.Int).Add(total, uFee)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if fromSilo {
		held := t.siloHoldings[owner]
		if held == nil || held.Lt(total) {
			return ErrInsufficientBalance
		}
		rest := new(uint256.Int).Sub(held, total)
		if rest.IsZero() {
			delete(t.siloHoldings, owner)
		} else {
			t.siloHoldings[owner] = rest
		}
		t.balances[SiloAddress] = new(uint256.Int).Sub(t.balanceInternal(SiloAddress), total)
	} else {
		bal := t.balanceInternal(owner)
		if bal.Lt(total) {
			return ErrInsufficientBalance
		}
		t.balances[owner] = new(uint256.Int).Sub(bal, total)
	}
	t.totalSupply = new(uint256.Int).Sub(t.totalSupply, uNet)
	if uFee != nil {
		t.balances[treasury] = new(uint256.Int).Add(t.balanceInternal(treasury), uFee)
	}
	return nil
}

// unsettleDirect reverses a settleDirect whose collateral payout failed.
func (t *StableToken) unsettleDirect(owner, treasury common.Address, net, fee *big.Int, fromSilo bool) {
	uNet, err := toU256(net)
	if err != nil {
		return
	}
	total := new(uint256.Int).Set(uNet)
	var uFee *uint256.Int
	if fee != nil && fee.Sign() > 0 {
		if uFee, err = toU256(fee); err == nil {
			total = new(uint256.Int).Add(total, uFee)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if uFee != nil {
		t.balances[treasury] = new(uint256.Int).Sub(t.balanceInternal(treasury), uFee)
	}
	t.totalSupply = new(uint256.Int).Add(t.totalSupply, uNet)
	if fromSilo {
		held := t.siloHoldings[owner]
		if held == nil {
			held = uint256.NewInt(0)
		}
		t.siloHoldings[owner] = new(uint256.Int).Add(held, total)
		t.balances[SiloAddress] = new(uint256.Int).Add(t.balanceInternal(SiloAddress), total)
	} else {
		t.balances[owner] = new(uint256.Int).Add(t.balanceInternal(owner), total)
	}
}

// lockToSilo moves amount from owner into the silo, remembering the owner.
// Engine use only; the owner's restriction has already been checked.
func (t *StableToken) lockToSilo(owner common.Address, amount *big.Int) error {
	u, err := toU256(amount)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.moveInternal(owner, SiloAddress, u); err != nil {
		return err
	}
	held := t.siloHoldings[owner]
	if held == nil {
		held = uint256.NewInt(0)
	}
	t.siloHoldings[owner] = new(uint256.Int).Add(held, u)
	return nil
}

// releaseFromSilo returns amount of owner's silo holding to the receiver.
func (t *StableToken) releaseFromSilo(owner, to common.Address, amount *big.Int) error {
	u, err := toU256(amount)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.debitSiloInternal(owner, u); err != nil {
		return err
	}
	return t.moveInternal(SiloAddress, to, u)
}

func (t *StableToken) debitSiloInternal(owner common.Address, amount *uint256.Int) error {
	held := t.siloHoldings[owner]
	if held == nil || held.Lt(amount) {
		return ErrInsufficientBalance
	}
	rest := new(uint256.Int).Sub(held, amount)
	if rest.IsZero() {
		delete(t.siloHoldings, owner)
	} else {
		t.siloHoldings[owner] = rest
	}
	return nil
}

// RedistributeLockedAmount burns the full transferable balance of a fully
// restricted address, plus any silo holding attributable to it, and mints the
// same amount to the receiver. A zero receiver burns outright. BlacklistManager
// only.
func (t *StableToken) RedistributeLockedAmount(caller, from, to common.Address) (*big.Int, error) {
	if err := t.roles.Require(roles.BlacklistManager, caller); err != nil {
		return nil, err
	}

	t.mu.Lock()

	if t.restrictions[from] != RestrictionFull {
		t.mu.Unlock()
		return nil, ErrNotRestricted
	}

	total := new(uint256.Int).Set(t.balanceInternal(from))

	if held, ok := t.siloHoldings[from]; ok {
		// Pull the locked portion out of the silo before burning it.
		t.balances[SiloAddress] = new(uint256.Int).Sub(t.balanceInternal(SiloAddress), held)
		total = new(uint256.Int).Add(total, held)
		delete(t.siloHoldings, from)
	}

	t.balances[from] = uint256.NewInt(0)
	t.totalSupply = new(uint256.Int).Sub(t.totalSupply, total)

	if to != (common.Address{}) {
		t.mintInternal(to, total)
	}
	t.mu.Unlock()

	moved := total.ToBig()
	t.journal.Append(LockedAmountRedistributed{From: from, To: to, Amount: moved})
	return moved, nil
}

// Events returns the token's audit journal.
func (t *StableToken) Events() []Event {
	return t.journal.Events()
}
