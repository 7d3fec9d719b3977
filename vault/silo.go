// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/stable/roles"
	"github.com/luxfi/stable/usd"
)

// Cooldown silo. While a cooldown duration is configured, exits burn shares
// immediately at the current rate and park the underlying in a per-user silo
// entry until the unlock time. Repeated cooldowns accumulate the amount and
// push the unlock out again.

// CooldownDuration returns the active cooldown, in seconds. Zero means
// standard withdraw/redeem is enabled instead.
func (v *VestingVault) CooldownDuration() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cooldownDuration
}

// SetCooldownDuration switches between the two exit modes. DefaultAdmin
// only; bounded by MaxCooldownDuration.
func (v *VestingVault) SetCooldownDuration(caller common.Address, duration uint64) error {
	if err := v.roles.Require(roles.DefaultAdmin, caller); err != nil {
		return err
	}
	if duration > MaxCooldownDuration {
		return ErrCooldownTooLong
	}

	v.mu.Lock()
	prev := v.cooldownDuration
	v.cooldownDuration = duration
	v.mu.Unlock()

	v.emit(CooldownDurationUpdated{Previous: prev, Current: duration})
	return nil
}

func (v *VestingVault) requireCooldownOff() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.cooldownDuration != 0 {
		return ErrOperationNotAllowed
	}
	return nil
}

func (v *VestingVault) requireCooldownOn() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.cooldownDuration == 0 {
		return ErrOperationNotAllowed
	}
	return nil
}

// CooldownShares burns exactly shares and silos the released assets.
// Returns the asset amount parked.
func (v *VestingVault) CooldownShares(caller common.Address, shares *big.Int) (*big.Int, error) {
	if err := v.requireCooldownOn(); err != nil {
		return nil, err
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil, ErrZeroShares
	}
	return v.cooldown(caller, shares, nil)
}

// CooldownAssets burns the shares needed (rounding up) to silo exactly
// assets. Returns the share amount burned.
func (v *VestingVault) CooldownAssets(caller common.Address, assets *big.Int) (*big.Int, error) {
	if err := v.requireCooldownOn(); err != nil {
		return nil, err
	}
	if assets == nil || assets.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	return v.cooldown(caller, nil, assets)
}

// cooldown burns and silos; exactly one of shares and assets is non-nil.
// Returns the derived quantity (assets for CooldownShares, shares for
// CooldownAssets).
func (v *VestingVault) cooldown(owner common.Address, shares, assets *big.Int) (*big.Int, error) {
	if v.restrictions.IsRestricted(owner, usd.RestrictionFull) {
		return nil, ErrRestricted
	}

	v.mu.Lock()
	byShares := shares != nil
	if byShares {
		assets = v.convertToAssets(shares)
	} else {
		shares = v.convertToSharesUp(assets)
	}
	if assets.Sign() == 0 || shares.Sign() == 0 {
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
	unlock := v.chain.Timestamp() + v.cooldownDuration
	entry := v.silo[owner]
	if entry == nil {
		entry = &siloEntry{assets: big.NewInt(0)}
		v.silo[owner] = entry
	}
	prevUnlock := entry.unlock
	entry.assets = new(big.Int).Add(entry.assets, assets)
	entry.unlock = unlock
	v.mu.Unlock()

	if err := v.asset.Transfer(VaultAddress, SiloAddress, assets); err != nil {
		v.mu.Lock()
		entry.assets = new(big.Int).Sub(entry.assets, assets)
		entry.unlock = prevUnlock
		if entry.assets.Sign() == 0 {
			delete(v.silo, owner)
		}
		v.mintShares(owner, u)
		v.mu.Unlock()
		return nil, err
	}

	v.emit(CooldownStarted{Owner: owner, Assets: assets, Shares: shares, Unlock: unlock})
	if byShares {
		return assets, nil
	}
	return shares, nil
}

// Unstake releases the caller's matured silo entry to receiver in full. A
// cooldown duration lowered to zero after the fact unlocks immediately.
func (v *VestingVault) Unstake(caller, receiver common.Address) (*big.Int, error) {
	if receiver == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if v.restrictions.IsRestricted(caller, usd.RestrictionFull) ||
		v.restrictions.IsRestricted(receiver, usd.RestrictionFull) {
		return nil, ErrRestricted
	}

	v.mu.Lock()
	entry := v.silo[caller]
	if entry == nil || entry.assets.Sign() == 0 {
		v.mu.Unlock()
		return nil, ErrNoCooldown
	}
	if v.cooldownDuration != 0 && v.chain.Timestamp() < entry.unlock {
		v.mu.Unlock()
		return nil, ErrCooldownNotFinished
	}
	assets := entry.assets
	delete(v.silo, caller)
	v.mu.Unlock()

	if err := v.asset.Transfer(SiloAddress, receiver, assets); err != nil {
		v.mu.Lock()
		v.silo[caller] = &siloEntry{assets: assets, unlock: entry.unlock}
		v.mu.Unlock()
		return nil, err
	}

	v.emit(Unstaked{Owner: caller, Receiver: receiver, Assets: assets})
	return assets, nil
}

// SiloBalanceOf returns the assets cooling down for owner and the unlock
// time.
func (v *VestingVault) SiloBalanceOf(owner common.Address) (*big.Int, uint64) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	entry := v.silo[owner]
	if entry == nil {
		return big.NewInt(0), 0
	}
	return new(big.Int).Set(entry.assets), entry.unlock
}
