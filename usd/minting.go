// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package usd

import (
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/stable/roles"
)

// IssuanceEngine is the single entry point for minting and redeeming the
// stable asset against ledger collateral. It owns the backing receipts, the
// fee schedule, the per-block ceilings, the credential gate and the delegated
// signer handshake. Exactly one redemption discipline is active per engine.
type IssuanceEngine struct {
	mu sync.Mutex

	roles  *roles.Registry
	token  *StableToken
	ledger *CollateralLedger
	chain  ChainContext

	oracle    CredentialOracle
	allowlist map[common.Address]bool

	fees              FeeConfig
	maxMintPerBlock   *big.Int
	maxRedeemPerBlock *big.Int
	minMintAmount     *big.Int
	minRedeemAmount   *big.Int

	// Per-block counters. Only the current block matters, so a rolling
	// pair replaces a growing map.
	mintBlock       uint64
	mintedThisBlock *big.Int
	redeemBlock     uint64
	redeemThisBlock *big.Int

	discipline       RedeemDiscipline
	cooldownDuration uint64
	requests         map[common.Address]*RedemptionRequest

	signers map[[32]byte]DelegatedSignerStatus

	journal *Journal
	log     log.Logger
}

// NewIssuanceEngine wires an engine over an existing token, ledger and role
// registry. Ceilings start at zero, which disables mint and redeem until the
// Gatekeeper configures them.
func NewIssuanceEngine(reg *roles.Registry, token *StableToken, ledger *CollateralLedger, chain ChainContext, discipline RedeemDiscipline) *IssuanceEngine {
	return &IssuanceEngine{
		roles:             reg,
		token:             token,
		ledger:            ledger,
		chain:             chain,
		allowlist:         make(map[common.Address]bool),
		maxMintPerBlock:   big.NewInt(0),
		maxRedeemPerBlock: big.NewInt(0),
		minMintAmount:     big.NewInt(0),
		minRedeemAmount:   big.NewInt(0),
		mintedThisBlock:   big.NewInt(0),
		redeemThisBlock:   big.NewInt(0),
		discipline:        discipline,
		requests:          make(map[common.Address]*RedemptionRequest),
		signers:           make(map[[32]byte]DelegatedSignerStatus),
		journal:           NewJournal(),
		log:               log.NewTestLogger(log.InfoLevel),
	}
}

// =========================================================================
// Mint paths
// =========================================================================

// MintWithCollateral deposits collateral and credits the sender with net
// stable asset.
func (e *IssuanceEngine) MintWithCollateral(caller, asset common.Address, amount *big.Int) (*big.Int, error) {
	return e.mint(caller, caller, asset, amount, caller)
}

// MintWithCollateralFor mints to a delegating beneficiary on whose behalf the
// caller acts: the collateral is drawn from the beneficiary, not the signer.
// The relation caller -> beneficiary must be ACCEPTED; only the caller's
// credential is checked.
func (e *IssuanceEngine) MintWithCollateralFor(caller, asset common.Address, amount *big.Int, beneficiary common.Address) (*big.Int, error) {
	if beneficiary == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	e.mu.Lock()
	status := e.signers[signerKey(caller, beneficiary)]
	e.mu.Unlock()
	if status != SignerAccepted {
		return nil, ErrInvalidSignerState
	}
	return e.mint(caller, beneficiary, asset, amount, beneficiary)
}

func (e *IssuanceEngine) mint(caller, funder, asset common.Address, amount *big.Int, beneficiary common.Address) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if e.token.IsRestricted(caller, RestrictionSoft) || e.token.IsRestricted(beneficiary, RestrictionSoft) {
		return nil, ErrRestricted
	}
	if !e.passesCredentialGate(caller) {
		return nil, ErrCredentialCheckFailed
	}

	decimals, err := e.ledger.AssetDecimals(asset)
	if err != nil {
		return nil, err
	}
	gross := normalize(amount, decimals)

	e.mu.Lock()
	fee := computeFee(gross, e.fees.MintFeeBps, e.fees.MinMintFee, e.fees.Treasury)
	net := new(big.Int).Sub(gross, fee)
	if net.Sign() <= 0 || net.Cmp(e.minMintAmount) < 0 {
		e.mu.Unlock()
		return nil, ErrBelowMinimum
	}
	if err := e.noteMinted(gross); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	treasury := e.fees.Treasury
	e.mu.Unlock()

	// Receipts stay with the engine; the beneficiary gets stable asset.
	if _, err := e.ledger.Mint(funder, asset, amount, EngineAddress); err != nil {
		e.mu.Lock()
		e.mintedThisBlock = new(big.Int).Sub(e.mintedThisBlock, gross)
		e.mu.Unlock()
		return nil, err
	}
	if err := e.token.mintDirect(beneficiary, net); err != nil {
		return nil, err
	}
	if fee.Sign() > 0 {
		if err := e.token.mintDirect(treasury, fee); err != nil {
			return nil, err
		}
	}

	e.journal.Append(Minted{
		Caller:      caller,
		Beneficiary: beneficiary,
		Asset:       asset,
		Collateral:  new(big.Int).Set(amount),
		Gross:       gross,
		Fee:         fee,
		Net:         net,
	})
	return net, nil
}

// noteMinted enforces the mint ceiling for the current block. Caller holds
// the engine lock.
func (e *IssuanceEngine) noteMinted(gross *big.Int) error {
	block := e.chain.BlockNumber()
	if block != e.mintBlock {
		e.mintBlock = block
		e.mintedThisBlock = big.NewInt(0)
	}
	next := new(big.Int).Add(e.mintedThisBlock, gross)
	if e.maxMintPerBlock.Sign() == 0 || next.Cmp(e.maxMintPerBlock) > 0 {
		return ErrMaxMintPerBlockExceeded
	}
	e.mintedThisBlock = next
	return nil
}

// noteRedeemed enforces the redeem ceiling for the current block. Caller
// holds the engine lock.
func (e *IssuanceEngine) noteRedeemed(amount *big.Int) error {
	block := e.chain.BlockNumber()
	if block != e.redeemBlock {
		e.redeemBlock = block
		e.redeemThisBlock = big.NewInt(0)
	}
	next := new(big.Int).Add(e.redeemThisBlock, amount)
	if e.maxRedeemPerBlock.Sign() == 0 || next.Cmp(e.maxRedeemPerBlock) > 0 {
		return ErrMaxRedeemPerBlockExceeded
	}
	e.redeemThisBlock = next
	return nil
}

// unchargeRedeemed hands back per-block quota consumed by a call that failed
// after checkRedeem, so a rejected redemption leaves no trace on the counter.
func (e *IssuanceEngine) unchargeRedeemed(amount *big.Int) {
	e.mu.Lock()
	if e.chain.BlockNumber() == e.redeemBlock {
		e.redeemThisBlock = new(big.Int).Sub(e.redeemThisBlock, amount)
	}
	e.mu.Unlock()
}

// computeFee returns max(minAbsolute, amount*bps/10000), or zero when no
// treasury is configured.
func computeFee(amount *big.Int, bps uint64, minAbsolute *big.Int, treasury common.Address) *big.Int {
	if treasury == (common.Address{}) {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	fee.Div(fee, big.NewInt(BpsDenominator))
	if minAbsolute != nil && fee.Cmp(minAbsolute) < 0 {
		fee = new(big.Int).Set(minAbsolute)
	}
	return fee
}

// =========================================================================
// Shared redemption internals
// =========================================================================

// checkRedeem runs the validations common to both disciplines: amount floor,
// FULL restriction, credential gate and the per-block ceiling. Records the
// amount against the ceiling on success.
func (e *IssuanceEngine) checkRedeem(caller common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if e.token.IsRestricted(caller, RestrictionFull) {
		return ErrRestricted
	}
	if !e.passesCredentialGate(caller) {
		return ErrCredentialCheckFailed
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if amount.Cmp(e.minRedeemAmount) < 0 {
		return ErrBelowMinimum
	}
	return e.noteRedeemed(amount)
}

// settleRedeem burns amount of the owner's stable asset (from the silo when
// fromSilo is set, from the spendable balance otherwise), routes the fee to
// the treasury and pays out collateral to the beneficiary. Returns the native
// collateral amount released.
//
// The stable side settles first, as one token-level step: either the burn and
// the fee diversion both land or neither does. Collateral only leaves the
// ledger once the stable is gone, so two settlements racing over the same
// funds cannot both be paid.
func (e *IssuanceEngine) settleRedeem(owner, beneficiary, asset common.Address, amount *big.Int, fromSilo bool) (*big.Int, error) {
	e.mu.Lock()
	fee := computeFee(amount, e.fees.RedeemFeeBps, e.fees.MinRedeemFee, e.fees.Treasury)
	treasury := e.fees.Treasury
	e.mu.Unlock()

	net := new(big.Int).Sub(amount, fee)
	if net.Sign() <= 0 {
		return nil, ErrBelowMinimum
	}

	if err := e.token.settleDirect(owner, treasury, net, fee, fromSilo); err != nil {
		return nil, err
	}
	native, err := e.ledger.Redeem(EngineAddress, asset, net, beneficiary)
	if err != nil {
		e.token.unsettleDirect(owner, treasury, net, fee, fromSilo)
		return nil, err
	}

	e.journal.Append(Redeemed{
		Owner:      owner,
		Asset:      asset,
		Burned:     net,
		Fee:        fee,
		Collateral: native,
	})
	return native, nil
}

// hasLiquidity reports whether the ledger can pay out net stable units of
// asset right now.
func (e *IssuanceEngine) hasLiquidity(asset common.Address, amount *big.Int) bool {
	e.mu.Lock()
	fee := computeFee(amount, e.fees.RedeemFeeBps, e.fees.MinRedeemFee, e.fees.Treasury)
	e.mu.Unlock()
	net := new(big.Int).Sub(amount, fee)
	if net.Sign() <= 0 {
		return false
	}
	return e.ledger.CollateralBalance(asset).Cmp(net) >= 0
}

func (e *IssuanceEngine) requireDiscipline(d RedeemDiscipline) error {
	if e.discipline != d {
		return ErrWrongDiscipline
	}
	return nil
}

// PendingRedemption returns a copy of the caller's live request, if any.
func (e *IssuanceEngine) PendingRedemption(owner common.Address) (RedemptionRequest, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	req, ok := e.requests[owner]
	if !ok {
		return RedemptionRequest{}, false
	}
	out := *req
	out.Amount = new(big.Int).Set(req.Amount)
	return out, true
}

// =========================================================================
// Delegated signers
// =========================================================================

// SetDelegatedSigner lets a delegator nominate a signer. The relation starts
// PENDING until the signer confirms.
func (e *IssuanceEngine) SetDelegatedSigner(delegator, signer common.Address) error {
	if signer == (common.Address{}) || delegator == (common.Address{}) {
		return ErrZeroAddress
	}

	e.mu.Lock()
	e.signers[signerKey(signer, delegator)] = SignerPending
	e.mu.Unlock()

	e.journal.Append(DelegatedSignerChanged{Signer: signer, Delegator: delegator, Status: SignerPending})
	return nil
}

// ConfirmDelegatedSigner moves a PENDING nomination to ACCEPTED. Signer only.
func (e *IssuanceEngine) ConfirmDelegatedSigner(signer, delegator common.Address) error {
	key := signerKey(signer, delegator)

	e.mu.Lock()
	if e.signers[key] != SignerPending {
		e.mu.Unlock()
		return ErrInvalidSignerState
	}
	e.signers[key] = SignerAccepted
	e.mu.Unlock()

	e.journal.Append(DelegatedSignerChanged{Signer: signer, Delegator: delegator, Status: SignerAccepted})
	return nil
}

// RemoveDelegatedSigner tears the relation down. Either party may call.
func (e *IssuanceEngine) RemoveDelegatedSigner(caller, signer, delegator common.Address) error {
	if caller != signer && caller != delegator {
		return ErrUnauthorized
	}
	key := signerKey(signer, delegator)

	e.mu.Lock()
	if e.signers[key] == SignerRejected {
		e.mu.Unlock()
		return ErrInvalidSignerState
	}
	e.signers[key] = SignerRejected
	e.mu.Unlock()

	e.journal.Append(DelegatedSignerChanged{Signer: signer, Delegator: delegator, Status: SignerRejected})
	return nil
}

// DelegatedSignerStatusOf returns the handshake state for (signer, delegator).
func (e *IssuanceEngine) DelegatedSignerStatusOf(signer, delegator common.Address) DelegatedSignerStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signers[signerKey(signer, delegator)]
}

// =========================================================================
// Credential gate
// =========================================================================

func (e *IssuanceEngine) passesCredentialGate(account common.Address) bool {
	e.mu.Lock()
	bypass := e.allowlist[account]
	oracle := e.oracle
	e.mu.Unlock()

	if bypass || oracle == nil {
		return true
	}
	return oracle.HasValidCredentials(account)
}

// SetCredentialOracle installs or clears the oracle. Gatekeeper only.
func (e *IssuanceEngine) SetCredentialOracle(caller common.Address, oracle CredentialOracle) error {
	if err := e.roles.Require(roles.Gatekeeper, caller); err != nil {
		return err
	}
	e.mu.Lock()
	e.oracle = oracle
	e.mu.Unlock()
	e.log.Info("credential oracle updated", "caller", caller, "installed", oracle != nil)
	return nil
}

// SetCredentialBypass toggles an address on the unconditional allowlist.
// Gatekeeper only.
func (e *IssuanceEngine) SetCredentialBypass(caller, account common.Address, allowed bool) error {
	if err := e.roles.Require(roles.Gatekeeper, caller); err != nil {
		return err
	}
	if account == (common.Address{}) {
		return ErrZeroAddress
	}
	e.mu.Lock()
	if allowed {
		e.allowlist[account] = true
	} else {
		delete(e.allowlist, account)
	}
	e.mu.Unlock()
	return nil
}

// =========================================================================
// Gatekeeper configuration
// =========================================================================

// SetFeeConfig replaces the fee schedule. Gatekeeper only; bps capped at
// MaxFeeBps.
func (e *IssuanceEngine) SetFeeConfig(caller common.Address, cfg FeeConfig) error {
	if err := e.roles.Require(roles.Gatekeeper, caller); err != nil {
		return err
	}
	if cfg.MintFeeBps > MaxFeeBps || cfg.RedeemFeeBps > MaxFeeBps {
		return ErrFeeTooHigh
	}
	if cfg.MinMintFee == nil {
		cfg.MinMintFee = big.NewInt(0)
	}
	if cfg.MinRedeemFee == nil {
		cfg.MinRedeemFee = big.NewInt(0)
	}

	e.mu.Lock()
	e.fees = cfg
	e.mu.Unlock()

	e.journal.Append(FeeUpdated{Config: cfg})
	e.log.Info("fee schedule updated", "caller", caller, "mintBps", cfg.MintFeeBps, "redeemBps", cfg.RedeemFeeBps)
	return nil
}

// SetBlockLimits replaces the per-block ceilings. Zero disables the path.
func (e *IssuanceEngine) SetBlockLimits(caller common.Address, maxMint, maxRedeem *big.Int) error {
	if err := e.roles.Require(roles.Gatekeeper, caller); err != nil {
		return err
	}
	if maxMint == nil || maxRedeem == nil || maxMint.Sign() < 0 || maxRedeem.Sign() < 0 {
		return ErrZeroAmount
	}

	e.mu.Lock()
	e.maxMintPerBlock = new(big.Int).Set(maxMint)
	e.maxRedeemPerBlock = new(big.Int).Set(maxRedeem)
	minMint := new(big.Int).Set(e.minMintAmount)
	minRedeem := new(big.Int).Set(e.minRedeemAmount)
	e.mu.Unlock()

	e.journal.Append(LimitsUpdated{
		MaxMintPerBlock:   new(big.Int).Set(maxMint),
		MaxRedeemPerBlock: new(big.Int).Set(maxRedeem),
		MinMintAmount:     minMint,
		MinRedeemAmount:   minRedeem,
	})
	e.log.Info("block limits updated", "caller", caller, "maxMint", maxMint, "maxRedeem", maxRedeem)
	return nil
}

// SetMinimumAmounts replaces the 18-decimal mint and redeem floors.
func (e *IssuanceEngine) SetMinimumAmounts(caller common.Address, minMint, minRedeem *big.Int) error {
	if err := e.roles.Require(roles.Gatekeeper, caller); err != nil {
		return err
	}
	if minMint == nil || minRedeem == nil || minMint.Sign() < 0 || minRedeem.Sign() < 0 {
		return ErrZeroAmount
	}

	e.mu.Lock()
	e.minMintAmount = new(big.Int).Set(minMint)
	e.minRedeemAmount = new(big.Int).Set(minRedeem)
	maxMint := new(big.Int).Set(e.maxMintPerBlock)
	maxRedeem := new(big.Int).Set(e.maxRedeemPerBlock)
	e.mu.Unlock()

	e.journal.Append(LimitsUpdated{
		MaxMintPerBlock:   maxMint,
		MaxRedeemPerBlock: maxRedeem,
		MinMintAmount:     new(big.Int).Set(minMint),
		MinRedeemAmount:   new(big.Int).Set(minRedeem),
	})
	return nil
}

// SetCooldownDuration changes the fixed cooldown. Gatekeeper only; cooldown
// discipline only.
func (e *IssuanceEngine) SetCooldownDuration(caller common.Address, duration uint64) error {
	if err := e.roles.Require(roles.Gatekeeper, caller); err != nil {
		return err
	}
	if err := e.requireDiscipline(DisciplineCooldown); err != nil {
		return err
	}
	if duration > MaxCooldownDuration {
		return ErrCooldownTooLong
	}

	e.mu.Lock()
	e.cooldownDuration = duration
	e.mu.Unlock()

	e.log.Info("cooldown duration updated", "caller", caller, "duration", duration)
	return nil
}

// RedistributeLockedAmount applies the token-level redistribution and clears
// any redemption request the restricted address still has in flight. Its
// silo lock was burned by the primitive, so the request must not survive.
func (e *IssuanceEngine) RedistributeLockedAmount(caller, from, to common.Address) (*big.Int, error) {
	moved, err := e.token.RedistributeLockedAmount(caller, from, to)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	delete(e.requests, from)
	e.mu.Unlock()

	e.log.Info("locked amount redistributed", "from", from, "to", to, "amount", moved)
	return moved, nil
}

// Events returns the engine's audit journal.
func (e *IssuanceEngine) Events() []Event {
	return e.journal.Events()
}
