// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package usd

import (
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/stable/roles"
)

// Queue redemption discipline: exits settle instantly when the ledger is
// liquid; otherwise they park in a discretionary queue with no unlock time,
// settled whenever the RedemptionManager (or the owner) finds liquidity.

// Redeem settles instantly when liquidity allows, returning (collateral,
// queued=false). When the ledger is dry and allowQueue is set, the amount is
// locked into the silo and (nil, true) is returned; without allowQueue the
// call fails with ErrInsufficientCollateral.
func (e *IssuanceEngine) Redeem(caller, asset common.Address, amount *big.Int, allowQueue bool) (*big.Int, bool, error) {
	if err := e.requireDiscipline(DisciplineQueue); err != nil {
		return nil, false, err
	}
	if !e.ledger.IsSupported(asset) {
		return nil, false, ErrUnsupportedAsset
	}
	if err := e.checkRedeem(caller, amount); err != nil {
		return nil, false, err
	}

	if e.hasLiquidity(asset, amount) {
		native, err := e.settleRedeem(caller, caller, asset, amount, false)
		if err != nil {
			e.unchargeRedeemed(amount)
			return nil, false, err
		}
		return native, false, nil
	}

	if !allowQueue {
		e.unchargeRedeemed(amount)
		return nil, false, ErrInsufficientCollateral
	}

	e.mu.Lock()
	if _, exists := e.requests[caller]; exists {
		e.mu.Unlock()
		e.unchargeRedeemed(amount)
		return nil, false, ErrRequestExists
	}
	e.requests[caller] = &RedemptionRequest{
		Owner:  caller,
		Asset:  asset,
		Amount: new(big.Int).Set(amount),
	}
	e.mu.Unlock()

	if err := e.token.lockToSilo(caller, amount); err != nil {
		e.mu.Lock()
		delete(e.requests, caller)
		e.mu.Unlock()
		e.unchargeRedeemed(amount)
		return nil, false, err
	}

	e.journal.Append(RedemptionRequested{
		Owner:  caller,
		Asset:  asset,
		Amount: new(big.Int).Set(amount),
	})
	return nil, true, nil
}

// CompleteRedeemFor settles a queued request for user. RedemptionManager
// only; any completion order is valid.
func (e *IssuanceEngine) CompleteRedeemFor(caller, user common.Address) (*big.Int, error) {
	if err := e.requireDiscipline(DisciplineQueue); err != nil {
		return nil, err
	}
	if err := e.roles.Require(roles.RedemptionManager, caller); err != nil {
		return nil, err
	}
	return e.completeQueued(user)
}

// TryCompleteRedeem lets an owner attempt their own queued completion.
func (e *IssuanceEngine) TryCompleteRedeem(caller common.Address) (*big.Int, error) {
	if err := e.requireDiscipline(DisciplineQueue); err != nil {
		return nil, err
	}
	return e.completeQueued(caller)
}

// BulkCompleteRedeem settles all listed users whose completion can proceed,
// skipping the rest, and returns the completed set.
func (e *IssuanceEngine) BulkCompleteRedeem(caller common.Address, users []common.Address) ([]common.Address, error) {
	if err := e.requireDiscipline(DisciplineQueue); err != nil {
		return nil, err
	}
	if err := e.roles.Require(roles.RedemptionManager, caller); err != nil {
		return nil, err
	}

	var completed []common.Address
	for _, user := range users {
		if _, err := e.completeQueued(user); err != nil {
			continue
		}
		completed = append(completed, user)
	}
	return completed, nil
}

func (e *IssuanceEngine) completeQueued(user common.Address) (*big.Int, error) {
	// A restriction imposed after the request was made still blocks payout;
	// the silo lock stays put for RedistributeLockedAmount.
	if e.token.IsRestricted(user, RestrictionFull) {
		return nil, ErrRestricted
	}

	e.mu.Lock()
	req, ok := e.requests[user]
	if !ok {
		e.mu.Unlock()
		return nil, ErrNoRequest
	}
	asset := req.Asset
	amount := new(big.Int).Set(req.Amount)
	e.mu.Unlock()

	native, err := e.settleRedeem(user, user, asset, amount, true)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	delete(e.requests, user)
	e.mu.Unlock()
	return native, nil
}

// UpdateRedemptionRequest resizes the caller's queued amount, keeping the
// silo lock in lockstep. It never completes the request.
func (e *IssuanceEngine) UpdateRedemptionRequest(caller common.Address, newAmount *big.Int) error {
	if err := e.requireDiscipline(DisciplineQueue); err != nil {
		return err
	}
	if newAmount == nil || newAmount.Sign() <= 0 {
		return ErrZeroAmount
	}

	e.mu.Lock()
	req, ok := e.requests[caller]
	if !ok {
		e.mu.Unlock()
		return ErrNoRequest
	}
	oldAmount := new(big.Int).Set(req.Amount)
	minRedeem := new(big.Int).Set(e.minRedeemAmount)
	e.mu.Unlock()

	if newAmount.Cmp(minRedeem) < 0 {
		return ErrBelowMinimum
	}

	switch newAmount.Cmp(oldAmount) {
	case 0:
		return nil
	case 1:
		// Growing a request is new redemption demand, so the increase is
		// charged against the per-block ceiling like a fresh request.
		extra := new(big.Int).Sub(newAmount, oldAmount)
		e.mu.Lock()
		err := e.noteRedeemed(extra)
		e.mu.Unlock()
		if err != nil {
			return err
		}
		if err := e.token.lockToSilo(caller, extra); err != nil {
			e.unchargeRedeemed(extra)
			return err
		}
	case -1:
		back := new(big.Int).Sub(oldAmount, newAmount)
		if err := e.token.releaseFromSilo(caller, caller, back); err != nil {
			return err
		}
	}

	e.mu.Lock()
	if req, ok := e.requests[caller]; ok {
		req.Amount = new(big.Int).Set(newAmount)
	}
	e.mu.Unlock()

	e.journal.Append(RedemptionUpdated{Owner: caller, OldAmount: oldAmount, NewAmount: new(big.Int).Set(newAmount)})
	return nil
}
