// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package usd

import (
	"math/big"
	"testing"

	"github.com/luxfi/geth/common"
)

func TestEngine_MintWithCollateral(t *testing.T) {
	sys, bank, _ := newTestSystem(t, "cooldown")

	net := mintFor(t, sys, bank, testUser1, "250000000") // 250 USDC
	expected := bigInt("250000000000000000000")          // 250 stable
	if net.Cmp(expected) != 0 {
		t.Fatalf("expected %s net, got %s", expected, net)
	}
	if sys.Token.BalanceOf(testUser1).Cmp(expected) != 0 {
		t.Fatal("stable balance mismatch")
	}
	// Backing receipts land with the engine, one per stable unit.
	if sys.Ledger.ReceiptBalanceOf(EngineAddress).Cmp(expected) != 0 {
		t.Fatal("engine receipt balance mismatch")
	}
	if sys.Ledger.CollateralBalance(testUSDC).Cmp(expected) != 0 {
		t.Fatal("collateral balance mismatch")
	}
}

func TestEngine_MintFee(t *testing.T) {
	sys, bank, _ := newTestSystem(t, "cooldown")
	if err := sys.Engine.SetFeeConfig(testAdmin, FeeConfig{
		MintFeeBps: 50, // 0.5%
		Treasury:   testTreasury,
	}); err != nil {
		t.Fatalf("SetFeeConfig failed: %v", err)
	}

	net := mintFor(t, sys, bank, testUser1, "1000000000") // 1000 USDC
	gross := bigInt("1000000000000000000000")
	fee := bigInt("5000000000000000000") // 5 stable
	if net.Cmp(new(big.Int).Sub(gross, fee)) != 0 {
		t.Fatalf("net mismatch: %s", net)
	}
	if sys.Token.BalanceOf(testTreasury).Cmp(fee) != 0 {
		t.Fatal("treasury fee mismatch")
	}
	// Supply equals gross: net to the user plus fee to the treasury.
	if sys.Token.TotalSupply().Cmp(gross) != 0 {
		t.Fatal("supply must equal gross issuance")
	}
}

func TestEngine_MinAbsoluteFee(t *testing.T) {
	sys, bank, _ := newTestSystem(t, "cooldown")
	if err := sys.Engine.SetFeeConfig(testAdmin, FeeConfig{
		MintFeeBps: 1, // 0.01%
		Treasury:   testTreasury,
		MinMintFee: bigInt("2000000000000000000"), // 2 stable floor
	}); err != nil {
		t.Fatalf("SetFeeConfig failed: %v", err)
	}

	// 0.01% of 100 stable is 0.01, below the 2 stable floor.
	net := mintFor(t, sys, bank, testUser1, "100000000")
	if net.Cmp(bigInt("98000000000000000000")) != 0 {
		t.Fatalf("expected floor fee applied, net %s", net)
	}
}

func TestEngine_CombinedFee(t *testing.T) {
	sys, bank, _ := newTestSystem(t, "cooldown")
	if err := sys.Engine.SetFeeConfig(testAdmin, FeeConfig{
		MintFeeBps: 50, // 0.5%
		Treasury:   testTreasury,
		MinMintFee: bigInt("10000000000000000000"), // 10 stable floor
	}); err != nil {
		t.Fatalf("SetFeeConfig failed: %v", err)
	}

	// 0.5% of 1000 stable is 5, below the 10 stable floor, so the
	// floor wins: fee 10, net 990.
	net := mintFor(t, sys, bank, testUser1, "1000000000")
	if net.Cmp(bigInt("990000000000000000000")) != 0 {
		t.Fatalf("expected net 990, got %s", net)
	}
	if sys.Token.BalanceOf(testTreasury).Cmp(bigInt("10000000000000000000")) != 0 {
		t.Fatal("treasury fee mismatch")
	}
}

func TestEngine_FeeTooHigh(t *testing.T) {
	sys, _, _ := newTestSystem(t, "cooldown")
	err := sys.Engine.SetFeeConfig(testAdmin, FeeConfig{MintFeeBps: 1001, Treasury: testTreasury})
	if err != ErrFeeTooHigh {
		t.Fatalf("expected ErrFeeTooHigh, got %v", err)
	}
}

func TestEngine_PerBlockCeiling(t *testing.T) {
	sys, bank, chain := newTestSystem(t, "cooldown")
	if err := sys.Engine.SetBlockLimits(testAdmin, bigInt("100000000000000000000"), bigInt("100000000000000000000")); err != nil {
		t.Fatalf("SetBlockLimits failed: %v", err)
	}

	mintFor(t, sys, bank, testUser1, "60000000") // 60 of the 100 ceiling

	bank.set(testUSDC, testUser2, bigInt("60000000"))
	if _, err := sys.Engine.MintWithCollateral(testUser2, testUSDC, bigInt("60000000")); err != ErrMaxMintPerBlockExceeded {
		t.Fatalf("expected ErrMaxMintPerBlockExceeded, got %v", err)
	}

	// Next block resets the counter.
	chain.block++
	if _, err := sys.Engine.MintWithCollateral(testUser2, testUSDC, bigInt("60000000")); err != nil {
		t.Fatalf("mint in fresh block failed: %v", err)
	}
}

func TestEngine_ZeroCeilingDisables(t *testing.T) {
	sys, bank, _ := newTestSystem(t, "cooldown")
	if err := sys.Engine.SetBlockLimits(testAdmin, big.NewInt(0), big.NewInt(0)); err != nil {
		t.Fatalf("SetBlockLimits failed: %v", err)
	}
	bank.set(testUSDC, testUser1, bigInt("1000000"))
	if _, err := sys.Engine.MintWithCollateral(testUser1, testUSDC, bigInt("1000000")); err != ErrMaxMintPerBlockExceeded {
		t.Fatalf("expected disable semantics, got %v", err)
	}
}

func TestEngine_RestrictedCannotMint(t *testing.T) {
	sys, bank, _ := newTestSystem(t, "cooldown")

	if err := sys.Token.SetRestriction(testAdmin, testUser1, RestrictionSoft); err != nil {
		t.Fatalf("SetRestriction failed: %v", err)
	}
	bank.set(testUSDC, testUser1, bigInt("1000000"))
	if _, err := sys.Engine.MintWithCollateral(testUser1, testUSDC, bigInt("1000000")); err != ErrRestricted {
		t.Fatalf("expected ErrRestricted, got %v", err)
	}
}

func TestEngine_CredentialGate(t *testing.T) {
	sys, bank, _ := newTestSystem(t, "cooldown")

	// Nil oracle: everyone passes.
	mintFor(t, sys, bank, testUser1, "1000000")

	oracle := &mockOracle{valid: map[common.Address]bool{testUser1: true}}
	if err := sys.Engine.SetCredentialOracle(testAdmin, oracle); err != nil {
		t.Fatalf("SetCredentialOracle failed: %v", err)
	}

	// Credentialed user passes, uncredentialed fails.
	mintFor(t, sys, bank, testUser1, "1000000")
	bank.set(testUSDC, testUser2, bigInt("1000000"))
	if _, err := sys.Engine.MintWithCollateral(testUser2, testUSDC, bigInt("1000000")); err != ErrCredentialCheckFailed {
		t.Fatalf("expected ErrCredentialCheckFailed, got %v", err)
	}

	// Allowlist bypasses the oracle unconditionally.
	if err := sys.Engine.SetCredentialBypass(testAdmin, testUser2, true); err != nil {
		t.Fatalf("SetCredentialBypass failed: %v", err)
	}
	if _, err := sys.Engine.MintWithCollateral(testUser2, testUSDC, bigInt("1000000")); err != nil {
		t.Fatalf("bypassed mint failed: %v", err)
	}

	// Removing the bypass restores the gate.
	if err := sys.Engine.SetCredentialBypass(testAdmin, testUser2, false); err != nil {
		t.Fatalf("SetCredentialBypass failed: %v", err)
	}
	bank.set(testUSDC, testUser2, bigInt("1000000"))
	if _, err := sys.Engine.MintWithCollateral(testUser2, testUSDC, bigInt("1000000")); err != ErrCredentialCheckFailed {
		t.Fatalf("expected ErrCredentialCheckFailed, got %v", err)
	}
}

func TestEngine_DelegatedSigners(t *testing.T) {
	sys, bank, _ := newTestSystem(t, "cooldown")

	// No relation yet: the For variant refuses.
	bank.set(testUSDC, testUser1, bigInt("2000000"))
	if _, err := sys.Engine.MintWithCollateralFor(testUser1, testUSDC, bigInt("1000000"), testUser2); err != ErrInvalidSignerState {
		t.Fatalf("expected ErrInvalidSignerState, got %v", err)
	}

	// Delegator nominates; still PENDING, still refused.
	if err := sys.Engine.SetDelegatedSigner(testUser2, testUser1); err != nil {
		t.Fatalf("SetDelegatedSigner failed: %v", err)
	}
	if _, err := sys.Engine.MintWithCollateralFor(testUser1, testUSDC, bigInt("1000000"), testUser2); err != ErrInvalidSignerState {
		t.Fatalf("expected ErrInvalidSignerState while pending, got %v", err)
	}

	// Wrong party cannot confirm.
	if err := sys.Engine.ConfirmDelegatedSigner(testUser2, testUser1); err != ErrInvalidSignerState {
		t.Fatalf("expected ErrInvalidSignerState, got %v", err)
	}

	// Signer confirms; mint-for works and the delegator's collateral funds
	// the mint, never the signer's.
	if err := sys.Engine.ConfirmDelegatedSigner(testUser1, testUser2); err != nil {
		t.Fatalf("ConfirmDelegatedSigner failed: %v", err)
	}
	bank.set(testUSDC, testUser2, bigInt("1000000"))
	net, err := sys.Engine.MintWithCollateralFor(testUser1, testUSDC, bigInt("1000000"), testUser2)
	if err != nil {
		t.Fatalf("MintWithCollateralFor failed: %v", err)
	}
	if sys.Token.BalanceOf(testUser2).Cmp(net) != 0 {
		t.Fatal("beneficiary balance mismatch")
	}
	if sys.Token.BalanceOf(testUser1).Sign() != 0 {
		t.Fatal("signer should hold no stable")
	}
	if bank.BalanceOf(testUSDC, testUser2).Sign() != 0 {
		t.Fatal("delegator collateral should have funded the mint")
	}
	if bank.BalanceOf(testUSDC, testUser1).Cmp(bigInt("2000000")) != 0 {
		t.Fatal("signer collateral must be untouched")
	}

	// Either party can tear down.
	if err := sys.Engine.RemoveDelegatedSigner(testUser1, testUser1, testUser2); err != nil {
		t.Fatalf("RemoveDelegatedSigner failed: %v", err)
	}
	if sys.Engine.DelegatedSignerStatusOf(testUser1, testUser2) != SignerRejected {
		t.Fatal("relation should be rejected")
	}
	if _, err := sys.Engine.MintWithCollateralFor(testUser1, testUSDC, bigInt("1000000"), testUser2); err != ErrInvalidSignerState {
		t.Fatalf("expected ErrInvalidSignerState after removal, got %v", err)
	}
}

func TestEngine_RedistributeClearsRequest(t *testing.T) {
	sys, bank, _ := newTestSystem(t, "cooldown")
	mintFor(t, sys, bank, testUser1, "10000000") // 10 stable

	if _, err := sys.Engine.CooldownRedeem(testUser1, testUSDC, bigInt("4000000000000000000")); err != nil {
		t.Fatalf("CooldownRedeem failed: %v", err)
	}

	if err := sys.Token.SetRestriction(testAdmin, testUser1, RestrictionFull); err != nil {
		t.Fatalf("SetRestriction failed: %v", err)
	}
	moved, err := sys.Engine.RedistributeLockedAmount(testAdmin, testUser1, testUser2)
	if err != nil {
		t.Fatalf("RedistributeLockedAmount failed: %v", err)
	}
	if moved.Cmp(bigInt("10000000000000000000")) != 0 {
		t.Fatalf("expected full 10 stable including silo, got %s", moved)
	}
	if _, ok := sys.Engine.PendingRedemption(testUser1); ok {
		t.Fatal("redemption request must be cleared")
	}
}

func TestConfig_Verify(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"valid", Config{Admin: testAdmin, Discipline: "cooldown"}, true},
		{"no admin", Config{Discipline: "queue"}, false},
		{"bad discipline", Config{Admin: testAdmin, Discipline: "instant"}, false},
		{"fee too high", Config{Admin: testAdmin, Discipline: "queue", MintFeeBps: 2000}, false},
		{"cooldown too long", Config{Admin: testAdmin, Discipline: "cooldown", CooldownDuration: 100 * 24 * 3600}, false},
		{"bad amount", Config{Admin: testAdmin, Discipline: "queue", MaxMintPerBlock: "abc"}, false},
		{"dup asset", Config{Admin: testAdmin, Discipline: "queue", Assets: []AssetConfig{
			{Address: testUSDC, Decimals: 6}, {Address: testUSDC, Decimals: 6},
		}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Verify()
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func BenchmarkEngine_Mint(b *testing.B) {
	bank := newMockBank()
	chain := &mockChain{block: 1, time: 1_700_000_000}
	sys, err := NewSystem(&Config{
		Admin:             testAdmin,
		Assets:            []AssetConfig{{Address: testUSDC, Decimals: 6}},
		MaxMintPerBlock:   "100000000000000000000000000000",
		MaxRedeemPerBlock: "100000000000000000000000000000",
		Discipline:        "cooldown",
	}, bank, chain)
	if err != nil {
		b.Fatalf("NewSystem failed: %v", err)
	}
	bank.set(testUSDC, testUser1, bigInt("100000000000000000000"))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := sys.Engine.MintWithCollateral(testUser1, testUSDC, big.NewInt(1_000_000)); err != nil {
			b.Fatal(err)
		}
	}
}
