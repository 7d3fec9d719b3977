// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package usd implements the multi-collateral stable-asset issuance core:
// the collateral ledger with 18-decimal normalization, the fungible stable
// token with tiered transfer restrictions, and the issuance engine with fee,
// rate-limit, credential and redemption-request handling.
//
// All amounts cross package boundaries as *big.Int in 18-decimal units unless
// a collateral asset's native decimals are explicitly involved; balances are
// held internally as uint256 and can never go negative.
package usd

import (
	"errors"
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// Internal holding addresses. The silo locks stable-asset balances backing an
// outstanding redemption request; locked balances are excluded from the
// owner's spendable balance.
var (
	SiloAddress   = common.HexToAddress("0x00000000000000000000000000000000000051C0")
	LedgerAddress = common.HexToAddress("0x00000000000000000000000000000000000051C1")
	EngineAddress = common.HexToAddress("0x00000000000000000000000000000000000051C2")
)

// Fee and amount bounds.
const (
	BpsDenominator = 10000
	MaxFeeBps      = 1000 // 10%

	// StableDecimals is the fixed precision of the stable asset and of the
	// backing receipt. Collateral with fewer native decimals is scaled up.
	StableDecimals = 18

	// MaxCooldownDuration bounds the discipline-A redemption cooldown and the
	// vault unstake cooldown (seconds).
	MaxCooldownDuration = 90 * 24 * 60 * 60
)

// RestrictionLevel is the per-address compliance tier.
type RestrictionLevel uint8

const (
	RestrictionNone RestrictionLevel = iota
	RestrictionSoft                  // blocks new minting and staking
	RestrictionFull                  // additionally blocks transfers and redemption
)

// DelegatedSignerStatus tracks the (signer, delegator) handshake.
type DelegatedSignerStatus uint8

const (
	SignerRejected DelegatedSignerStatus = iota
	SignerPending
	SignerAccepted
)

// RedeemDiscipline selects how an engine instance settles redemptions.
type RedeemDiscipline uint8

const (
	// DisciplineCooldown locks every redemption behind a fixed per-user
	// cooldown completed only by its owner.
	DisciplineCooldown RedeemDiscipline = iota
	// DisciplineQueue settles instantly when liquidity allows, otherwise
	// parks the request for discretionary completion in any order.
	DisciplineQueue
)

// ChainContext supplies block number and time. Injecting it keeps per-block
// rate limits and cooldown expiry testable without a live chain clock.
type ChainContext interface {
	BlockNumber() uint64
	Timestamp() uint64
}

// AssetBank moves units of an external collateral asset between accounts,
// denominated in the asset's native decimals.
type AssetBank interface {
	BalanceOf(asset, account common.Address) *big.Int
	Transfer(asset, from, to common.Address, amount *big.Int) error
}

// CredentialOracle answers the external credential query. A nil oracle on the
// engine means every address passes.
type CredentialOracle interface {
	HasValidCredentials(account common.Address) bool
}

// SupportedAsset is a registered collateral asset.
type SupportedAsset struct {
	Address  common.Address
	Decimals uint8
}

// FeeConfig is the issuance fee schedule. The effective fee on an operation is
// max(minimum absolute fee, amount*bps/10000), denominated in stable-asset
// units. An unset treasury disables fees entirely.
type FeeConfig struct {
	MintFeeBps   uint64
	RedeemFeeBps uint64
	Treasury     common.Address
	MinMintFee   *big.Int
	MinRedeemFee *big.Int
}

// RedemptionRequest is the single live request a user may hold. CooldownEnd is
// zero for discipline-B requests, which carry no unlock time.
type RedemptionRequest struct {
	Owner       common.Address
	Asset       common.Address
	Amount      *big.Int // stable-asset units locked in the silo
	CooldownEnd uint64
}

// signerKey derives the composite map key for a delegated-signer pair.
func signerKey(signer, delegator common.Address) [32]byte {
	h := blake3.New()
	h.Write(signer.Bytes())
	h.Write(delegator.Bytes())
	var key [32]byte
	h.Digest().Read(key[:])
	return key
}

// Errors - validation
var (
	ErrZeroAddress      = errors.New("invalid address: cannot be zero")
	ErrZeroAmount       = errors.New("invalid amount: must be positive")
	ErrUnsupportedAsset = errors.New("asset not supported")
	ErrAssetExists      = errors.New("asset already supported")
	ErrInvalidDecimals  = errors.New("asset decimals must be between 1 and 18")
	ErrBelowMinimum     = errors.New("amount below configured minimum")
	ErrFeeTooHigh       = errors.New("fee exceeds maximum (10%)")
	ErrCooldownTooLong  = errors.New("cooldown duration exceeds maximum (90 days)")
)

// Errors - capacity
var (
	ErrMaxMintPerBlockExceeded   = errors.New("max mint per block exceeded")
	ErrMaxRedeemPerBlockExceeded = errors.New("max redeem per block exceeded")
	ErrInsufficientCollateral    = errors.New("insufficient collateral")
	ErrInsufficientBalance       = errors.New("insufficient balance")
)

// Errors - state
var (
	ErrRequestExists         = errors.New("redemption request already outstanding")
	ErrNoRequest             = errors.New("no redemption request outstanding")
	ErrCooldownNotFinished   = errors.New("cooldown not finished")
	ErrInvalidSignerState    = errors.New("invalid delegated signer state")
	ErrCredentialCheckFailed = errors.New("credential check failed")
	ErrRestricted            = errors.New("address is restricted")
	ErrRestrictionImmune     = errors.New("admin address cannot be restricted")
	ErrNotRestricted         = errors.New("address is not fully restricted")
	ErrWrongDiscipline       = errors.New("operation not valid for this redemption discipline")
	ErrUnauthorized          = errors.New("unauthorized")
)
