// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/stable/roles"
)

// Reward vesting. Each distribution parks its full amount as unvested and
// releases it linearly over the vesting window, so the exchange rate climbs
// smoothly instead of jumping the moment rewards land.

// GetUnvestedAmount returns the portion of the last distribution that has
// not vested yet.
func (v *VestingVault) GetUnvestedAmount() *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.unvestedLocked()
}

// unvestedLocked computes totalUnvested * remaining / period, clamped at
// zero. Caller holds v.mu.
func (v *VestingVault) unvestedLocked() *big.Int {
	if v.totalUnvested.Sign() == 0 {
		return big.NewInt(0)
	}
	now := v.chain.Timestamp()
	elapsed := now - v.lastDistribution
	if elapsed >= v.vestingPeriod {
		return big.NewInt(0)
	}
	remaining := new(big.Int).SetUint64(v.vestingPeriod - elapsed)
	out := new(big.Int).Mul(v.totalUnvested, remaining)
	return out.Div(out, new(big.Int).SetUint64(v.vestingPeriod))
}

// TransferInRewards pulls amount of the underlying from the caller and
// starts a fresh vesting window. Rewarder only; a new distribution cannot
// start while the previous one is still vesting.
func (v *VestingVault) TransferInRewards(caller common.Address, amount *big.Int) error {
	if err := v.roles.Require(roles.Rewarder, caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	v.mu.Lock()
	if v.unvestedLocked().Sign() > 0 {
		v.mu.Unlock()
		return ErrStillVesting
	}
	v.totalUnvested = new(big.Int).Set(amount)
	v.lastDistribution = v.chain.Timestamp()
	v.mu.Unlock()

	if err := v.asset.Transfer(caller, VaultAddress, amount); err != nil {
		v.mu.Lock()
		v.totalUnvested = big.NewInt(0)
		v.mu.Unlock()
		return err
	}

	v.emit(RewardsReceived{Amount: new(big.Int).Set(amount)})
	return nil
}
