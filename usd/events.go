// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package usd

import (
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"
)

// Event is a typed audit-trail entry. Every state-changing call appends
// exactly one event carrying final, post-fee amounts.
type Event interface {
	eventName() string
}

// Journal is an append-only event log.
type Journal struct {
	mu     sync.Mutex
	events []Event
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{events: make([]Event, 0)}
}

// Append records an event.
func (j *Journal) Append(e Event) {
	j.mu.Lock()
	j.events = append(j.events, e)
	j.mu.Unlock()
}

// Events returns a snapshot of the recorded events in order.
func (j *Journal) Events() []Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Event, len(j.events))
	copy(out, j.events)
	return out
}

// Minted is emitted once per successful mint with the post-fee credit.
type Minted struct {
	Caller      common.Address
	Beneficiary common.Address
	Asset       common.Address
	Collateral  *big.Int // native asset decimals
	Gross       *big.Int // 18-decimal stable units before fee
	Fee         *big.Int
	Net         *big.Int
}

func (Minted) eventName() string { return "Minted" }

// Redeemed is emitted on an instant redemption or a completed request.
type Redeemed struct {
	Owner      common.Address
	Asset      common.Address
	Burned     *big.Int // stable units destroyed
	Fee        *big.Int
	Collateral *big.Int // native asset decimals returned
}

func (Redeemed) eventName() string { return "Redeemed" }

// RedemptionRequested is emitted when a redemption enters the silo.
type RedemptionRequested struct {
	Owner       common.Address
	Asset       common.Address
	Amount      *big.Int
	CooldownEnd uint64 // zero for queue-discipline requests
}

func (RedemptionRequested) eventName() string { return "RedemptionRequested" }

// RedemptionCancelled is emitted when a request is cancelled and unlocked.
type RedemptionCancelled struct {
	Owner  common.Address
	Asset  common.Address
	Amount *big.Int
}

func (RedemptionCancelled) eventName() string { return "RedemptionCancelled" }

// RedemptionUpdated is emitted when a queued request's amount changes.
type RedemptionUpdated struct {
	Owner     common.Address
	OldAmount *big.Int
	NewAmount *big.Int
}

func (RedemptionUpdated) eventName() string { return "RedemptionUpdated" }

// FeeUpdated is emitted when the fee schedule changes.
type FeeUpdated struct {
	Config FeeConfig
}

func (FeeUpdated) eventName() string { return "FeeUpdated" }

// RestrictionChanged is emitted when an address changes compliance tier.
type RestrictionChanged struct {
	Account  common.Address
	Previous RestrictionLevel
	Current  RestrictionLevel
}

func (RestrictionChanged) eventName() string { return "RestrictionChanged" }

// LockedAmountRedistributed is emitted by the redistribution primitive.
type LockedAmountRedistributed struct {
	From   common.Address
	To     common.Address // zero when burned
	Amount *big.Int
}

func (LockedAmountRedistributed) eventName() string { return "LockedAmountRedistributed" }

// AssetAdded and AssetRemoved track the supported-collateral set.
type AssetAdded struct {
	Asset    common.Address
	Decimals uint8
}

func (AssetAdded) eventName() string { return "AssetAdded" }

type AssetRemoved struct {
	Asset common.Address
}

func (AssetRemoved) eventName() string { return "AssetRemoved" }

// UnbackedReceiptMinted tracks receipt issuance with no collateral increase.
type UnbackedReceiptMinted struct {
	Beneficiary common.Address
	Amount      *big.Int
}

func (UnbackedReceiptMinted) eventName() string { return "UnbackedReceiptMinted" }

// CollateralMoved tracks admin custody rebalancing (no receipt change).
type CollateralMoved struct {
	Asset     common.Address
	Amount    *big.Int // normalized 18-decimal units
	Withdrawn bool
}

func (CollateralMoved) eventName() string { return "CollateralMoved" }

// LimitsUpdated is emitted when per-block ceilings or minimums change.
type LimitsUpdated struct {
	MaxMintPerBlock   *big.Int
	MaxRedeemPerBlock *big.Int
	MinMintAmount     *big.Int
	MinRedeemAmount   *big.Int
}

func (LimitsUpdated) eventName() string { return "LimitsUpdated" }

// DelegatedSignerChanged tracks the signer handshake transitions.
type DelegatedSignerChanged struct {
	Signer    common.Address
	Delegator common.Address
	Status    DelegatedSignerStatus
}

func (DelegatedSignerChanged) eventName() string { return "DelegatedSignerChanged" }
