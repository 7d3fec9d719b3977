// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package usd

import (
	"math/big"
	"testing"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/stable/roles"
)

// Test helpers
var (
	testAdmin    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testUser1    = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testUser2    = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testTreasury = common.HexToAddress("0x4444444444444444444444444444444444444444")
	testUSDC     = common.HexToAddress("0x5555555555555555555555555555555555555555")
	testDAI      = common.HexToAddress("0x6666666666666666666666666666666666666666")
)

// Helper to create large big.Int values
func bigInt(s string) *big.Int {
	n, _ := new(big.Int).SetString(s, 10)
	return n
}

// mockBank is an in-memory AssetBank. An optional onTransfer hook runs before
// each move and can veto it by returning an error.
type mockBank struct {
	balances   map[common.Address]map[common.Address]*big.Int // asset -> account -> balance
	onTransfer func(asset, from, to common.Address, amount *big.Int) error
}

func newMockBank() *mockBank {
	return &mockBank{balances: make(map[common.Address]map[common.Address]*big.Int)}
}

func (b *mockBank) set(asset, account common.Address, amount *big.Int) {
	if b.balances[asset] == nil {
		b.balances[asset] = make(map[common.Address]*big.Int)
	}
	b.balances[asset][account] = new(big.Int).Set(amount)
}

func (b *mockBank) BalanceOf(asset, account common.Address) *big.Int {
	if b.balances[asset] == nil || b.balances[asset][account] == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(b.balances[asset][account])
}

func (b *mockBank) Transfer(asset, from, to common.Address, amount *big.Int) error {
	if b.onTransfer != nil {
		if err := b.onTransfer(asset, from, to, amount); err != nil {
			return err
		}
	}
	bal := b.BalanceOf(asset, from)
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	b.set(asset, from, new(big.Int).Sub(bal, amount))
	b.set(asset, to, new(big.Int).Add(b.BalanceOf(asset, to), amount))
	return nil
}

// mockChain is a hand-cranked ChainContext.
type mockChain struct {
	block uint64
	time  uint64
}

func (c *mockChain) BlockNumber() uint64 { return c.block }
func (c *mockChain) Timestamp() uint64   { return c.time }

// mockOracle approves only listed addresses.
type mockOracle struct {
	valid map[common.Address]bool
}

func (o *mockOracle) HasValidCredentials(account common.Address) bool {
	return o.valid[account]
}

// newTestSystem builds a fully configured system with one 6-decimal asset
// (USDC-style), generous ceilings, no fees and the given discipline.
func newTestSystem(t *testing.T, discipline string) (*System, *mockBank, *mockChain) {
	t.Helper()
	bank := newMockBank()
	chain := &mockChain{block: 1, time: 1_700_000_000}
	sys, err := NewSystem(&Config{
		Admin:             testAdmin,
		Assets:            []AssetConfig{{Address: testUSDC, Decimals: 6}},
		MaxMintPerBlock:   "1000000000000000000000000", // 1M stable
		MaxRedeemPerBlock: "1000000000000000000000000",
		Discipline:        discipline,
		CooldownDuration:  3600,
	}, bank, chain)
	if err != nil {
		t.Fatalf("NewSystem failed: %v", err)
	}
	return sys, bank, chain
}

// mintFor funds the user with native collateral and mints stable through the
// engine.
func mintFor(t *testing.T, sys *System, bank *mockBank, user common.Address, native string) *big.Int {
	t.Helper()
	amount := bigInt(native)
	bank.set(testUSDC, user, amount)
	net, err := sys.Engine.MintWithCollateral(user, testUSDC, amount)
	if err != nil {
		t.Fatalf("MintWithCollateral failed: %v", err)
	}
	return net
}

func grantRole(t *testing.T, reg *roles.Registry, role roles.Role, account common.Address) {
	t.Helper()
	if err := reg.Grant(testAdmin, role, account); err != nil {
		t.Fatalf("Grant %v failed: %v", role, err)
	}
}
