// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/stable/roles"
	"github.com/luxfi/stable/usd"
)

// VestingVault is the staking vault. Shares are a plain uint256 ledger; the
// exchange rate is assets-per-share where assets excludes still-vesting
// rewards and anything parked in the cooldown silo.
type VestingVault struct {
	mu sync.RWMutex

	roles        *roles.Registry
	asset        Asset
	restrictions RestrictionChecker
	chain        usd.ChainContext

	shares      map[common.Address]*uint256.Int
	totalShares *uint256.Int

	vestingPeriod    uint64
	totalUnvested    *big.Int
	lastDistribution uint64

	cooldownDuration uint64
	silo             map[common.Address]*siloEntry

	events []Event
}

// NewVestingVault builds an empty vault. vestingPeriod of zero falls back to
// DefaultVestingPeriod.
func NewVestingVault(reg *roles.Registry, asset Asset, restrictions RestrictionChecker, chain usd.ChainContext, vestingPeriod uint64) *VestingVault {
	if vestingPeriod == 0 {
		vestingPeriod = DefaultVestingPeriod
	}
	return &VestingVault{
		roles:         reg,
		asset:         asset,
		restrictions:  restrictions,
		chain:         chain,
		shares:        make(map[common.Address]*uint256.Int),
		totalShares:   uint256.NewInt(0),
		vestingPeriod: vestingPeriod,
		totalUnvested: big.NewInt(0),
		silo:          make(map[common.Address]*siloEntry),
	}
}

func (v *VestingVault) emit(ev Event) {
	v.mu.Lock()
	v.events = append(v.events, ev)
	v.mu.Unlock()
}

// Events returns a snapshot of the audit trail.
func (v *VestingVault) Events() []Event {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]Event, len(v.events))
	copy(out, v.events)
	return out
}

// =========================================================================
// Share accounting
// =========================================================================

func (v *VestingVault) shareBalance(account common.Address) *uint256.Int {
	if held, ok := v.shares[account]; ok {
		return held
	}
	return uint256.NewInt(0)
}

// SharesOf returns the share balance of account.
func (v *VestingVault) SharesOf(account common.Address) *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.shareBalance(account).ToBig()
}

// TotalShares returns the share supply.
func (v *VestingVault) TotalShares() *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.totalShares.ToBig()
}

// TotalAssets returns vault holdings net of still-vesting rewards. Silo'd
// assets live at SiloAddress and never count.
func (v *VestingVault) TotalAssets() *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.totalAssetsLocked()
}

// totalAssetsLocked reads the exchange-rate numerator. Caller holds v.mu.
func (v *VestingVault) totalAssetsLocked() *big.Int {
	raw := v.asset.BalanceOf(VaultAddress)
	return new(big.Int).Sub(raw, v.unvestedLocked())
}

// convertToShares floors assets*supply/totalAssets; 1:1 on an empty vault.
func (v *VestingVault) convertToShares(assets *big.Int) *big.Int {
	if v.totalShares.IsZero() {
		return new(big.Int).Set(assets)
	}
	total := v.totalAssetsLocked()
	if total.Sign() == 0 {
		return new(big.Int).Set(assets)
	}
	out := new(big.Int).Mul(assets, v.totalShares.ToBig())
	return out.Div(out, total)
}

// convertToSharesUp is the withdraw-side conversion, rounding against the
// caller.
func (v *VestingVault) convertToSharesUp(assets *big.Int) *big.Int {
	if v.totalShares.IsZero() {
		return new(big.Int).Set(assets)
	}
	total := v.totalAssetsLocked()
	if total.Sign() == 0 {
		return new(big.Int).Set(assets)
	}
	out := new(big.Int).Mul(assets, v.totalShares.ToBig())
	out.Add(out, new(big.Int).Sub(total, big.NewInt(1)))
	return out.Div(out, total)
}

// convertToAssets floors shares*totalAssets/supply.
func (v *VestingVault) convertToAssets(shares *big.Int) *big.Int {
	if v.totalShares.IsZero() {
		return new(big.Int).Set(shares)
	}
	out := new(big.Int).Mul(shares, v.totalAssetsLocked())
	return out.Div(out, v.totalShares.ToBig())
}

// PreviewDeposit returns the shares a deposit of assets would mint now.
func (v *VestingVault) PreviewDeposit(assets *big.Int) *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.convertToShares(assets)
}

// PreviewRedeem returns the assets a redemption of shares would release now.
func (v *VestingVault) PreviewRedeem(shares *big.Int) *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.convertToAssets(shares)
}

// checkMinShares rejects a supply inside the forbidden zone (0, MinShares).
// Caller holds v.mu.
func (v *VestingVault) checkMinShares() error {
	supply := v.totalShares.ToBig()
	if supply.Sign() > 0 && supply.Cmp(big.NewInt(MinShares)) < 0 {
		return ErrMinSharesViolation
	}
	return nil
}

func (v *VestingVault) mintShares(to common.Address, amount *uint256.Int) {
	v.shares[to] = new(uint256.Int).Add(v.shareBalance(to), amount)
	v.totalShares = new(uint256.Int).Add(v.totalShares, amount)
}

func (v *VestingVault) burnShares(from common.Address, amount *uint256.Int) error {
	held := v.shareBalance(from)
	if held.Lt(amount) {
		return ErrInsufficientShares
	}
	v.shares[from] = new(uint256.Int).Sub(held, amount)
	v.totalShares = new(uint256.Int).Sub(v.totalShares, amount)
	return v.checkMinShares()
}

// =========================================================================
// Deposit and exit
// =========================================================================

// Deposit stakes assets for receiver and mints shares at the current rate.
// SOFT or FULL restricted addresses cannot stake or receive shares.
func (v *VestingVault) Deposit(caller common.Address, assets *big.Int, receiver common.Address) (*big.Int, error) {
	if receiver == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if assets == nil || assets.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if v.restrictions.IsRestricted(caller, usd.RestrictionSoft) || v.restrictions.IsRestricted(receiver, usd.RestrictionSoft) {
		return nil, ErrRestricted
	}

	v.mu.Lock()
	shares := v.convertToShares(assets)
	if shares.Sign() == 0 {
		v.mu.Unlock()
		return nil, ErrZeroShares
	}
	u, overflow := uint256.FromBig(shares)
	if overflow {
		v.mu.Unlock()
		return nil, ErrZeroAmount
	}
	v.mintShares(receiver, u)
	if err := v.checkMinShares(); err != nil {
		v.burnShares(receiver, u)
		v.mu.Unlock()
		return nil, err
	}
	v.mu.Unlock()

	if err := v.asset.Transfer(caller, VaultAddress, assets); err != nil {
		v.mu.Lock()
		v.burnShares(receiver, u)
		v.mu.Unlock()
		return nil, err
	}

	v.emit(Deposited{Caller: caller, Receiver: receiver, Assets: new(big.Int).Set(assets), Shares: shares})
	return shares, nil
}

// Redeem burns shares and pays assets to receiver at the current rate. Only
// available while no cooldown is configured.
func (v *VestingVault) Redeem(caller common.Address, shares *big.Int, receiver common.Address) (*big.Int, error) {
	if err := v.requireCooldownOff(); err != nil {
		return nil, err
	}
	return v.exit(caller, receiver, shares, nil)
}

// Withdraw burns the shares needed to release exactly assets. Only available
// while no cooldown is configured.
func (v *VestingVault) Withdraw(caller common.Address, assets *big.Int, receiver common.Address) (*big.Int, error) {
	if err := v.requireCooldownOff(); err != nil {
		return nil, err
	}
	return v.exit(caller, receiver, nil, assets)
}

// exit burns shares (given directly, or derived from assets rounding up) and
// transfers the released assets to receiver. Exactly one of shares and assets
// is non-nil.
func (v *VestingVault) exit(owner, receiver common.Address, shares, assets *big.Int) (*big.Int, error) {
	if receiver == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if v.restrictions.IsRestricted(owner, usd.RestrictionFull) || v.restrictions.IsRestricted(receiver, usd.RestrictionFull) {
		return nil, ErrRestricted
	}

	v.mu.Lock()
	if shares == nil {
		if assets == nil || assets.Sign() <= 0 {
			v.mu.Unlock()
			return nil, ErrZeroAmount
		}
		shares = v.convertToSharesUp(assets)
	} else {
		if shares.Sign() <= 0 {
			v.mu.Unlock()
			return nil, ErrZeroShares
		}
		assets = v.convertToAssets(shares)
	}
	if assets.Sign() == 0 {
		v.mu.Unlock()
		return nil, ErrZeroAmount
	}
	u, overflow := uint256.FromBig(shares)
	if overflow {
		v.mu.Unlock()
		return nil, ErrZeroShares
	}
	if err := v.burnShares(owner, u); err != nil {
		v.mintSharesIfBurned(owner, u, err)
		v.mu.Unlock()
		return nil, err
	}
	v.mu.Unlock()

	if err := v.asset.Transfer(VaultAddress, receiver, assets); err != nil {
		v.mu.Lock()
		v.mintShares(owner, u)
		v.mu.Unlock()
		return nil, err
	}

	v.emit(Withdrawn{Owner: owner, Receiver: receiver, Assets: assets, Shares: shares})
	return assets, nil
}

// mintSharesIfBurned restores a burn that failed only the min-shares check.
// Caller holds v.mu.
func (v *VestingVault) mintSharesIfBurned(owner common.Address, amount *uint256.Int, err error) {
	if err == ErrMinSharesViolation {
		v.mintShares(owner, amount)
	}
}

// MaxRedeem returns the largest share amount owner can burn without tripping
// the min-shares floor. The sole holder can always exit completely.
func (v *VestingVault) MaxRedeem(owner common.Address) *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()

	held := v.shareBalance(owner).ToBig()
	supply := v.totalShares.ToBig()
	remainder := new(big.Int).Sub(supply, held)
	if remainder.Sign() == 0 {
		return held
	}
	// Burning held shares leaves remainder; if that lands in the forbidden
	// zone, clamp so at least MinShares survive.
	if remainder.Cmp(big.NewInt(MinShares)) >= 0 {
		return held
	}
	max := new(big.Int).Sub(supply, big.NewInt(MinShares))
	if max.Sign() < 0 {
		return big.NewInt(0)
	}
	if max.Cmp(held) > 0 {
		return held
	}
	return max
}

// MaxWithdraw returns MaxRedeem converted to assets.
func (v *VestingVault) MaxWithdraw(owner common.Address) *big.Int {
	max := v.MaxRedeem(owner)
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.convertToAssets(max)
}

// =========================================================================
// Share transfers and compliance
// =========================================================================

// TransferShares moves shares between stakers. FULL restriction blocks
// either end.
func (v *VestingVault) TransferShares(from, to common.Address, shares *big.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if shares == nil || shares.Sign() <= 0 {
		return ErrZeroShares
	}
	if v.restrictions.IsRestricted(from, usd.RestrictionFull) || v.restrictions.IsRestricted(to, usd.RestrictionFull) {
		return ErrRestricted
	}
	u, overflow := uint256.FromBig(shares)
	if overflow {
		return ErrZeroShares
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	held := v.shareBalance(from)
	if held.Lt(u) {
		return ErrInsufficientShares
	}
	v.shares[from] = new(uint256.Int).Sub(held, u)
	v.shares[to] = new(uint256.Int).Add(v.shareBalance(to), u)
	return nil
}

// RedistributeLockedShares moves the full share balance of a FULL-restricted
// address to another staker, or burns it when to is the zero address (which
// raises the rate for everyone else). BlacklistManager only.
func (v *VestingVault) RedistributeLockedShares(caller, from, to common.Address) (*big.Int, error) {
	if err := v.roles.Require(roles.BlacklistManager, caller); err != nil {
		return nil, err
	}
	if !v.restrictions.IsRestricted(from, usd.RestrictionFull) {
		return nil, ErrNotRestricted
	}
	if to != (common.Address{}) && v.restrictions.IsRestricted(to, usd.RestrictionFull) {
		return nil, ErrRestricted
	}

	v.mu.Lock()
	held := v.shareBalance(from)
	if held.IsZero() {
		v.mu.Unlock()
		return big.NewInt(0), nil
	}
	moved := held.ToBig()
	v.shares[from] = uint256.NewInt(0)
	if to == (common.Address{}) {
		v.totalShares = new(uint256.Int).Sub(v.totalShares, held)
		if err := v.checkMinShares(); err != nil {
			v.shares[from] = held
			v.totalShares = new(uint256.Int).Add(v.totalShares, held)
			v.mu.Unlock()
			return nil, err
		}
	} else {
		v.shares[to] = new(uint256.Int).Add(v.shareBalance(to), held)
	}
	v.mu.Unlock()

	v.emit(LockedSharesRedistributed{From: from, To: to, Shares: moved})
	return moved, nil
}

// =========================================================================
// Admin
// =========================================================================

// BurnAssets destroys vault-held underlying without touching share supply,
// lowering the rate. DefaultAdmin only; the burn may never cut into rewards
// still vesting.
func (v *VestingVault) BurnAssets(caller common.Address, amount *big.Int) error {
	if err := v.roles.Require(roles.DefaultAdmin, caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	v.mu.Lock()
	raw := v.asset.BalanceOf(VaultAddress)
	floor := v.unvestedLocked()
	if new(big.Int).Sub(raw, amount).Cmp(floor) < 0 {
		v.mu.Unlock()
		return ErrExceedsUnvested
	}
	v.mu.Unlock()

	if err := v.asset.Burn(VaultAddress, VaultAddress, amount); err != nil {
		return err
	}
	v.emit(AssetsBurned{Amount: new(big.Int).Set(amount)})
	return nil
}
