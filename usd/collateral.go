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

// CollateralLedger tracks every backing asset in normalized 18-decimal units
// and issues the fungible backing receipt consumed 1:1 by the issuance engine.
// Collateral sits with the bank under LedgerAddress; the ledger's recorded
// balance is the accounting source of truth.
type CollateralLedger struct {
	mu sync.RWMutex

	roles *roles.Registry
	bank  AssetBank

	assets   map[common.Address]*SupportedAsset
	balances map[common.Address]*big.Int // asset -> normalized 18-decimal balance

	receipts      map[common.Address]*uint256.Int
	receiptSupply *uint256.Int

	// Receipts issued with no matching collateral (protocol-owned liquidity
	// seeding). The slack is deliberate and observable, never hidden.
	unbacked *big.Int

	journal *Journal
}

// NewCollateralLedger creates an empty ledger moving assets through bank.
func NewCollateralLedger(reg *roles.Registry, bank AssetBank) *CollateralLedger {
	return &CollateralLedger{
		roles:         reg,
		bank:          bank,
		assets:        make(map[common.Address]*SupportedAsset),
		balances:      make(map[common.Address]*big.Int),
		receipts:      make(map[common.Address]*uint256.Int),
		receiptSupply: uint256.NewInt(0),
		unbacked:      big.NewInt(0),
		journal:       NewJournal(),
	}
}

// scaleFor returns 10^(18-decimals).
func scaleFor(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(StableDecimals-decimals)), nil)
}

// normalize converts a native-decimal amount to 18 decimals, exactly.
func normalize(amount *big.Int, decimals uint8) *big.Int {
	return new(big.Int).Mul(amount, scaleFor(decimals))
}

// denormalize converts 18-decimal units back to native decimals, truncating
// toward zero. Dust below one native unit stays recorded in the ledger.
func denormalize(amount *big.Int, decimals uint8) *big.Int {
	return new(big.Int).Div(amount, scaleFor(decimals))
}

// =========================================================================
// Asset registration
// =========================================================================

// AddAsset registers a collateral asset. Gatekeeper only. Assets with more
// than 18 decimals are rejected at registration.
func (l *CollateralLedger) AddAsset(caller, asset common.Address, decimals uint8) error {
	if err := l.roles.Require(roles.Gatekeeper, caller); err != nil {
		return err
	}
	if asset == (common.Address{}) || asset == LedgerAddress {
		return ErrZeroAddress
	}
	if decimals == 0 || decimals > StableDecimals {
		return ErrInvalidDecimals
	}

	l.mu.Lock()
	if _, exists := l.assets[asset]; exists {
		l.mu.Unlock()
		return ErrAssetExists
	}
	l.assets[asset] = &SupportedAsset{Address: asset, Decimals: decimals}
	l.mu.Unlock()

	l.journal.Append(AssetAdded{Asset: asset, Decimals: decimals})
	return nil
}

// RemoveAsset drops set membership. Existing balances stay recorded and stay
// redeemable through the engine's admin paths.
func (l *CollateralLedger) RemoveAsset(caller, asset common.Address) error {
	if err := l.roles.Require(roles.Gatekeeper, caller); err != nil {
		return err
	}

	l.mu.Lock()
	if _, exists := l.assets[asset]; !exists {
		l.mu.Unlock()
		return ErrUnsupportedAsset
	}
	delete(l.assets, asset)
	l.mu.Unlock()

	l.journal.Append(AssetRemoved{Asset: asset})
	return nil
}

// IsSupported reports set membership.
func (l *CollateralLedger) IsSupported(asset common.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.assets[asset]
	return ok
}

// AssetDecimals returns the registered native decimals for asset.
func (l *CollateralLedger) AssetDecimals(asset common.Address) (uint8, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.assets[asset]
	if !ok {
		return 0, ErrUnsupportedAsset
	}
	return a.Decimals, nil
}

// =========================================================================
// Receipt-backed mint and redeem
// =========================================================================

// Mint pulls amount of asset from the caller, records the normalized balance
// and credits the normalized backing receipt to the beneficiary. Returns the
// normalized amount.
func (l *CollateralLedger) Mint(caller, asset common.Address, amount *big.Int, beneficiary common.Address) (*big.Int, error) {
	if beneficiary == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[asset]
	if !ok {
		return nil, ErrUnsupportedAsset
	}

	normalized := normalize(amount, a.Decimals)
	u, overflow := uint256.FromBig(normalized)
	if overflow {
		return nil, ErrZeroAmount
	}

	// Update the books before moving the asset.
	bal := l.balances[asset]
	if bal == nil {
		bal = big.NewInt(0)
	}
	l.balances[asset] = new(big.Int).Add(bal, normalized)
	l.creditReceipt(beneficiary, u)

	if err := l.bank.Transfer(asset, caller, LedgerAddress, amount); err != nil {
		// Unwind, the pull failed.
		l.balances[asset] = bal
		l.debitReceipt(beneficiary, u)
		return nil, err
	}
	return normalized, nil
}

// Redeem burns receiptAmount of the caller's receipt and returns the
// denormalized collateral to the beneficiary.
func (l *CollateralLedger) Redeem(caller, asset common.Address, receiptAmount *big.Int, beneficiary common.Address) (*big.Int, error) {
	if beneficiary == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if receiptAmount == nil || receiptAmount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[asset]
	if !ok {
		return nil, ErrUnsupportedAsset
	}

	bal := l.balances[asset]
	if bal == nil || bal.Cmp(receiptAmount) < 0 {
		return nil, ErrInsufficientCollateral
	}

	u, overflow := uint256.FromBig(receiptAmount)
	if overflow {
		return nil, ErrZeroAmount
	}
	held := l.receiptBalance(caller)
	if held.Lt(u) {
		return nil, ErrInsufficientBalance
	}

	native := denormalize(receiptAmount, a.Decimals)
	consumed := normalize(native, a.Decimals) // receiptAmount rounded down to a whole native unit

	l.debitReceipt(caller, u)
	l.balances[asset] = new(big.Int).Sub(bal, consumed)

	if native.Sign() > 0 {
		if err := l.bank.Transfer(asset, LedgerAddress, beneficiary, native); err != nil {
			l.creditReceipt(caller, u)
			l.balances[asset] = bal
			return nil, err
		}
	}
	return native, nil
}

// MintWithoutCollateral issues receipt with no balance increase, creating
// backing slack tracked in the unbacked counter. CollateralManager only.
func (l *CollateralLedger) MintWithoutCollateral(caller common.Address, normalizedAmount *big.Int, beneficiary common.Address) error {
	if err := l.roles.Require(roles.CollateralManager, caller); err != nil {
		return err
	}
	if beneficiary == (common.Address{}) {
		return ErrZeroAddress
	}
	u, err := toU256(normalizedAmount)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.creditReceipt(beneficiary, u)
	l.unbacked = new(big.Int).Add(l.unbacked, normalizedAmount)
	l.mu.Unlock()

	l.journal.Append(UnbackedReceiptMinted{Beneficiary: beneficiary, Amount: new(big.Int).Set(normalizedAmount)})
	return nil
}

func (l *CollateralLedger) creditReceipt(account common.Address, amount *uint256.Int) {
	held := l.receipts[account]
	if held == nil {
		held = uint256.NewInt(0)
	}
	l.receipts[account] = new(uint256.Int).Add(held, amount)
	l.receiptSupply = new(uint256.Int).Add(l.receiptSupply, amount)
}

func (l *CollateralLedger) debitReceipt(account common.Address, amount *uint256.Int) {
	l.receipts[account] = new(uint256.Int).Sub(l.receiptBalance(account), amount)
	l.receiptSupply = new(uint256.Int).Sub(l.receiptSupply, amount)
}

func (l *CollateralLedger) receiptBalance(account common.Address) *uint256.Int {
	if held, ok := l.receipts[account]; ok {
		return held
	}
	return uint256.NewInt(0)
}

// =========================================================================
// Admin custody moves (receipt supply untouched)
// =========================================================================

// WithdrawCollateral moves a native amount of collateral out to an external
// custodian. CollateralManager only; the books can never go negative.
func (l *CollateralLedger) WithdrawCollateral(caller, asset common.Address, amount *big.Int, to common.Address) error {
	if err := l.roles.Require(roles.CollateralManager, caller); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[asset]
	if !ok {
		return ErrUnsupportedAsset
	}

	normalized := normalize(amount, a.Decimals)
	bal := l.balances[asset]
	if bal == nil || bal.Cmp(normalized) < 0 {
		return ErrInsufficientCollateral
	}
	l.balances[asset] = new(big.Int).Sub(bal, normalized)

	if err := l.bank.Transfer(asset, LedgerAddress, to, amount); err != nil {
		l.balances[asset] = bal
		return err
	}
	l.journal.Append(CollateralMoved{Asset: asset, Amount: normalized, Withdrawn: true})
	return nil
}

// DepositCollateral returns custodied collateral to the books.
func (l *CollateralLedger) DepositCollateral(caller, asset common.Address, amount *big.Int) error {
	if err := l.roles.Require(roles.CollateralManager, caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[asset]
	if !ok {
		return ErrUnsupportedAsset
	}

	normalized := normalize(amount, a.Decimals)
	bal := l.balances[asset]
	if bal == nil {
		bal = big.NewInt(0)
	}
	l.balances[asset] = new(big.Int).Add(bal, normalized)

	if err := l.bank.Transfer(asset, caller, LedgerAddress, amount); err != nil {
		l.balances[asset] = bal
		return err
	}
	l.journal.Append(CollateralMoved{Asset: asset, Amount: normalized, Withdrawn: false})
	return nil
}

// =========================================================================
// Views
// =========================================================================

// CollateralBalance returns the normalized recorded balance for asset.
func (l *CollateralLedger) CollateralBalance(asset common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if bal, ok := l.balances[asset]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// ReceiptBalanceOf returns the backing-receipt balance of account.
func (l *CollateralLedger) ReceiptBalanceOf(account common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.receiptBalance(account).ToBig()
}

// ReceiptSupply returns the total receipt issuance.
func (l *CollateralLedger) ReceiptSupply() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.receiptSupply.ToBig()
}

// UnbackedReceipts returns the receipt slack issued without collateral.
func (l *CollateralLedger) UnbackedReceipts() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.unbacked)
}

// Events returns the ledger's audit journal.
func (l *CollateralLedger) Events() []Event {
	return l.journal.Events()
}
