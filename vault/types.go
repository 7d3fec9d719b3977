// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vault implements a yield-bearing share vault over the stable
// asset. Rewards vest linearly after each distribution so the share price
// cannot be stepped, exits optionally pass through a per-user cooldown silo,
// and a minimum-shares floor keeps the supply out of the rounding-attack
// zone just above zero.
package vault

import (
	"errors"
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/stable/usd"
)

const (
	// MinShares is the exclusive lower bound for a non-zero share supply.
	// Once shares exist, the supply may never land inside (0, MinShares).
	MinShares = 1e18

	// MaxCooldownDuration bounds SetCooldownDuration, in seconds.
	MaxCooldownDuration = 90 * 24 * 60 * 60

	// DefaultVestingPeriod is the reward vesting window, in seconds.
	DefaultVestingPeriod = 8 * 60 * 60
)

// Internal custody addresses. Vault holdings and cooldown-silo holdings are
// kept apart so the share price never sees silo'd assets.
var (
	VaultAddress = common.HexToAddress("0x00000000000000000000000000000000000051C3")
	SiloAddress  = common.HexToAddress("0x00000000000000000000000000000000000051C4")
)

// Asset is the underlying stable asset as the vault sees it. Burn requires
// the vault address to hold the issuer's Redeemer capability.
type Asset interface {
	BalanceOf(account common.Address) *big.Int
	Transfer(from, to common.Address, amount *big.Int) error
	Burn(caller, from common.Address, amount *big.Int) error
}

// RestrictionChecker exposes the issuer's compliance tiers to the vault.
type RestrictionChecker interface {
	IsRestricted(account common.Address, level usd.RestrictionLevel) bool
}

// Validation errors.
var (
	ErrZeroAddress     = errors.New("zero address")
	ErrZeroAmount      = errors.New("amount must be positive")
	ErrZeroShares      = errors.New("operation yields zero shares")
	ErrCooldownTooLong = errors.New("cooldown duration above maximum")
)

// Capacity errors.
var (
	ErrInsufficientShares = errors.New("insufficient share balance")
	ErrMinSharesViolation = errors.New("share supply would fall below minimum")
	ErrExceedsUnvested    = errors.New("burn would cut into unvested rewards")
)

// State errors.
var (
	ErrStillVesting        = errors.New("previous rewards still vesting")
	ErrOperationNotAllowed = errors.New("operation not allowed in current cooldown mode")
	ErrCooldownNotFinished = errors.New("cooldown period not finished")
	ErrNoCooldown          = errors.New("no cooldown entry")
	ErrRestricted          = errors.New("address is restricted")
	ErrNotRestricted       = errors.New("address is not fully restricted")
)

// siloEntry is one user's accumulated cooled-down position.
type siloEntry struct {
	assets *big.Int
	unlock uint64
}

// Event is a typed audit record, one per state-changing call.
type Event interface {
	eventName() string
}

type Deposited struct {
	Caller   common.Address
	Receiver common.Address
	Assets   *big.Int
	Shares   *big.Int
}

func (Deposited) eventName() string { return "Deposited" }

type Withdrawn struct {
	Owner    common.Address
	Receiver common.Address
	Assets   *big.Int
	Shares   *big.Int
}

func (Withdrawn) eventName() string { return "Withdrawn" }

type RewardsReceived struct {
	Amount *big.Int
}

func (RewardsReceived) eventName() string { return "RewardsReceived" }

type CooldownStarted struct {
	Owner  common.Address
	Assets *big.Int
	Shares *big.Int
	Unlock uint64
}

func (CooldownStarted) eventName() string { return "CooldownStarted" }

type Unstaked struct {
	Owner    common.Address
	Receiver common.Address
	Assets   *big.Int
}

func (Unstaked) eventName() string { return "Unstaked" }

type AssetsBurned struct {
	Amount *big.Int
}

func (AssetsBurned) eventName() string { return "AssetsBurned" }

type CooldownDurationUpdated struct {
	Previous uint64
	Current  uint64
}

func (CooldownDurationUpdated) eventName() string { return "CooldownDurationUpdated" }

type LockedSharesRedistributed struct {
	From   common.Address
	To     common.Address // zero when burned
	Shares *big.Int
}

func (LockedSharesRedistributed) eventName() string { return "LockedSharesRedistributed" }
