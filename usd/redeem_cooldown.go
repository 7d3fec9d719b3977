// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package usd

import (
	"math/big"

	"github.com/luxfi/geth/common"
)

// Cooldown redemption discipline: every exit waits a fixed, uniform duration.
// The stable asset is locked in the silo the moment the request is made, so a
// cooldown can never be front-run by spending the balance.

// CooldownRedeem opens a redemption request maturing after the configured
// cooldown. One live request per owner.
func (e *IssuanceEngine) CooldownRedeem(caller, asset common.Address, amount *big.Int) (uint64, error) {
	if err := e.requireDiscipline(DisciplineCooldown); err != nil {
		return 0, err
	}
	if !e.ledger.IsSupported(asset) {
		return 0, ErrUnsupportedAsset
	}
	if err := e.checkRedeem(caller, amount); err != nil {
		return 0, err
	}

	e.mu.Lock()
	if _, exists := e.requests[caller]; exists {
		e.mu.Unlock()
		e.unchargeRedeemed(amount)
		return 0, ErrRequestExists
	}
	cooldownEnd := e.chain.Timestamp() + e.cooldownDuration
	e.requests[caller] = &RedemptionRequest{
		Owner:       caller,
		Asset:       asset,
		Amount:      new(big.Int).Set(amount),
		CooldownEnd: cooldownEnd,
	}
	e.mu.Unlock()

	if err := e.token.lockToSilo(caller, amount); err != nil {
		e.mu.Lock()
		delete(e.requests, caller)
		e.mu.Unlock()
		e.unchargeRedeemed(amount)
		return 0, err
	}

	e.journal.Append(RedemptionRequested{
		Owner:       caller,
		Asset:       asset,
		Amount:      new(big.Int).Set(amount),
		CooldownEnd: cooldownEnd,
	})
	return cooldownEnd, nil
}

// CompleteRedeem settles the caller's matured request: the silo lock is
// burned net of fee and collateral is paid out. Returns the native collateral
// amount.
func (e *IssuanceEngine) CompleteRedeem(caller common.Address) (*big.Int, error) {
	if err := e.requireDiscipline(DisciplineCooldown); err != nil {
		return nil, err
	}
	// A restriction imposed after the request was made still blocks payout;
	// the silo lock stays put for RedistributeLockedAmount.
	if e.token.IsRestricted(caller, RestrictionFull) {
		return nil, ErrRestricted
	}

	e.mu.Lock()
	req, ok := e.requests[caller]
	if !ok {
		e.mu.Unlock()
		return nil, ErrNoRequest
	}
	if e.chain.Timestamp() < req.CooldownEnd {
		e.mu.Unlock()
		return nil, ErrCooldownNotFinished
	}
	asset := req.Asset
	amount := new(big.Int).Set(req.Amount)
	e.mu.Unlock()

	native, err := e.settleRedeem(caller, caller, asset, amount, true)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	delete(e.requests, caller)
	e.mu.Unlock()
	return native, nil
}

// CancelRedeem unwinds a pending request, returning the silo lock to the
// owner in full.
func (e *IssuanceEngine) CancelRedeem(caller common.Address) error {
	if err := e.requireDiscipline(DisciplineCooldown); err != nil {
		return err
	}

	e.mu.Lock()
	req, ok := e.requests[caller]
	if !ok {
		e.mu.Unlock()
		return ErrNoRequest
	}
	asset := req.Asset
	amount := new(big.Int).Set(req.Amount)
	e.mu.Unlock()

	if err := e.token.releaseFromSilo(caller, caller, amount); err != nil {
		return err
	}

	e.mu.Lock()
	delete(e.requests, caller)
	e.mu.Unlock()

	e.journal.Append(RedemptionCancelled{Owner: caller, Asset: asset, Amount: amount})
	return nil
}
