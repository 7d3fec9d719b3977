// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package usd

import (
	"math/big"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

func TestQueue_InstantWhenLiquid(t *testing.T) {
	sys, bank, _ := newTestSystem(t, "queue")
	mintFor(t, sys, bank, testUser1, "50000000") // 50 stable

	native, queued, err := sys.Engine.Redeem(testUser1, testUSDC, bigInt("20000000000000000000"), false)
	require.NoError(t, err)
	require.False(t, queued)
	require.Equal(t, 0, native.Cmp(bigInt("20000000")))
	require.Equal(t, 0, bank.BalanceOf(testUSDC, testUser1).Cmp(bigInt("20000000")))
}

// drainLiquidity pulls the ledger's collateral out to a custodian so queued
// paths can be exercised.
func drainLiquidity(t *testing.T, sys *System, to common.Address) {
	t.Helper()
	bal := sys.Ledger.CollateralBalance(testUSDC)
	native := new(big.Int).Div(bal, bigInt("1000000000000")) // back to 6 decimals
	require.NoError(t, sys.Ledger.WithdrawCollateral(testAdmin, testUSDC, native, to))
}

func TestQueue_QueuesWhenIlliquid(t *testing.T) {
	sys, bank, _ := newTestSystem(t, "queue")
	mintFor(t, sys, bank, testUser1, "50000000")
	drainLiquidity(t, sys, testTreasury)

	amount := bigInt("20000000000000000000")

	// Without allowQueue the dry ledger is a hard failure.
	_, _, err := sys.Engine.Redeem(testUser1, testUSDC, amount, false)
	require.ErrorIs(t, err, ErrInsufficientCollateral)

	// With allowQueue the amount parks in the silo.
	native, queued, err := sys.Engine.Redeem(testUser1, testUSDC, amount, true)
	require.NoError(t, err)
	require.True(t, queued)
	require.Nil(t, native)
	require.Equal(t, 0, sys.Token.SiloBalanceOf(testUser1).Cmp(amount))

	req, ok := sys.Engine.PendingRedemption(testUser1)
	require.True(t, ok)
	require.Equal(t, uint64(0), req.CooldownEnd)

	// Completion fails until liquidity returns.
	_, err = sys.Engine.TryCompleteRedeem(testUser1)
	require.ErrorIs(t, err, ErrInsufficientCollateral)

	// Custodian returns the collateral; the owner can now complete.
	require.NoError(t, sys.Ledger.DepositCollateral(testAdmin, testUSDC, mustDrainBack(bank)))
	out, err := sys.Engine.TryCompleteRedeem(testUser1)
	require.NoError(t, err)
	require.Equal(t, 0, out.Cmp(bigInt("20000000")))
	_, ok = sys.Engine.PendingRedemption(testUser1)
	require.False(t, ok)
}

// mustDrainBack moves the treasury's custodied USDC to the admin so it can be
// re-deposited.
func mustDrainBack(bank *mockBank) *big.Int {
	bal := bank.BalanceOf(testUSDC, testTreasury)
	bank.set(testUSDC, testTreasury, big.NewInt(0))
	bank.set(testUSDC, testAdmin, bal)
	return bal
}

func TestQueue_CompleteRedeemForRequiresRole(t *testing.T) {
	sys, bank, _ := newTestSystem(t, "queue")
	mintFor(t, sys, bank, testUser1, "50000000")
	drainLiquidity(t, sys, testTreasury)

	_, queued, err := sys.Engine.Redeem(testUser1, testUSDC, bigInt("10000000000000000000"), true)
	require.NoError(t, err)
	require.True(t, queued)

	// Arbitrary callers cannot complete for others.
	_, err = sys.Engine.CompleteRedeemFor(testUser2, testUser1)
	require.Error(t, err)

	require.NoError(t, sys.Ledger.DepositCollateral(testAdmin, testUSDC, mustDrainBack(bank)))
	out, err := sys.Engine.CompleteRedeemFor(testAdmin, testUser1)
	require.NoError(t, err)
	require.Equal(t, 0, out.Cmp(bigInt("10000000")))
}

func TestQueue_BulkCompleteSkipsIlliquid(t *testing.T) {
	sys, bank, _ := newTestSystem(t, "queue")
	mintFor(t, sys, bank, testUser1, "30000000")
	mintFor(t, sys, bank, testUser2, "30000000")
	drainLiquidity(t, sys, testTreasury)

	_, queued, err := sys.Engine.Redeem(testUser1, testUSDC, bigInt("25000000000000000000"), true)
	require.NoError(t, err)
	require.True(t, queued)
	_, queued, err = sys.Engine.Redeem(testUser2, testUSDC, bigInt("25000000000000000000"), true)
	require.NoError(t, err)
	require.True(t, queued)

	// Return only enough collateral for one of the two requests.
	bank.set(testUSDC, testAdmin, bigInt("25000000"))
	require.NoError(t, sys.Ledger.DepositCollateral(testAdmin, testUSDC, bigInt("25000000")))

	completed, err := sys.Engine.BulkCompleteRedeem(testAdmin, []common.Address{testUser1, testUser2})
	require.NoError(t, err)
	require.Equal(t, []common.Address{testUser1}, completed)

	// The skipped request stays live, untouched.
	req, ok := sys.Engine.PendingRedemption(testUser2)
	require.True(t, ok)
	require.Equal(t, 0, req.Amount.Cmp(bigInt("25000000000000000000")))
}

func TestQueue_UpdateRedemptionRequest(t *testing.T) {
	sys, bank, _ := newTestSystem(t, "queue")
	mintFor(t, sys, bank, testUser1, "50000000")
	drainLiquidity(t, sys, testTreasury)

	_, queued, err := sys.Engine.Redeem(testUser1, testUSDC, bigInt("20000000000000000000"), true)
	require.NoError(t, err)
	require.True(t, queued)

	// Grow: extra stable locks into the silo.
	require.NoError(t, sys.Engine.UpdateRedemptionRequest(testUser1, bigInt("30000000000000000000")))
	require.Equal(t, 0, sys.Token.SiloBalanceOf(testUser1).Cmp(bigInt("30000000000000000000")))

	// Shrink: the difference comes back.
	require.NoError(t, sys.Engine.UpdateRedemptionRequest(testUser1, bigInt("5000000000000000000")))
	require.Equal(t, 0, sys.Token.SiloBalanceOf(testUser1).Cmp(bigInt("5000000000000000000")))
	require.Equal(t, 0, sys.Token.BalanceOf(testUser1).Cmp(bigInt("45000000000000000000")))

	req, ok := sys.Engine.PendingRedemption(testUser1)
	require.True(t, ok)
	require.Equal(t, 0, req.Amount.Cmp(bigInt("5000000000000000000")))

	// No request, no update.
	require.ErrorIs(t, sys.Engine.UpdateRedemptionRequest(testUser2, big.NewInt(1)), ErrNoRequest)
}

func TestQueue_CompletionOrderIndependence(t *testing.T) {
	run := func(order []common.Address) map[common.Address]*big.Int {
		sys, bank, _ := newTestSystem(t, "queue")
		mintFor(t, sys, bank, testUser1, "30000000")
		mintFor(t, sys, bank, testUser2, "40000000")
		drainLiquidity(t, sys, testTreasury)

		_, _, err := sys.Engine.Redeem(testUser1, testUSDC, bigInt("30000000000000000000"), true)
		require.NoError(t, err)
		_, _, err = sys.Engine.Redeem(testUser2, testUSDC, bigInt("40000000000000000000"), true)
		require.NoError(t, err)

		require.NoError(t, sys.Ledger.DepositCollateral(testAdmin, testUSDC, mustDrainBack(bank)))
		for _, user := range order {
			_, err := sys.Engine.CompleteRedeemFor(testAdmin, user)
			require.NoError(t, err)
		}
		return map[common.Address]*big.Int{
			testUser1: bank.BalanceOf(testUSDC, testUser1),
			testUser2: bank.BalanceOf(testUSDC, testUser2),
		}
	}

	forward := run([]common.Address{testUser1, testUser2})
	reverse := run([]common.Address{testUser2, testUser1})
	require.Equal(t, 0, forward[testUser1].Cmp(reverse[testUser1]))
	require.Equal(t, 0, forward[testUser2].Cmp(reverse[testUser2]))
	require.Equal(t, 0, forward[testUser1].Cmp(bigInt("30000000")))
	require.Equal(t, 0, forward[testUser2].Cmp(bigInt("40000000")))
}

func TestQueue_RestrictedAfterRequest(t *testing.T) {
	sys, bank, _ := newTestSystem(t, "queue")
	mintFor(t, sys, bank, testUser1, "50000000")
	drainLiquidity(t, sys, testTreasury)

	amount := bigInt("20000000000000000000")
	_, queued, err := sys.Engine.Redeem(testUser1, testUSDC, amount, true)
	require.NoError(t, err)
	require.True(t, queued)

	require.NoError(t, sys.Token.SetRestriction(testAdmin, testUser1, RestrictionFull))
	require.NoError(t, sys.Ledger.DepositCollateral(testAdmin, testUSDC, mustDrainBack(bank)))

	// Neither the owner nor the manager can pay out a fully restricted
	// owner's queued request; the silo lock stays for redistribution.
	_, err = sys.Engine.TryCompleteRedeem(testUser1)
	require.ErrorIs(t, err, ErrRestricted)
	_, err = sys.Engine.CompleteRedeemFor(testAdmin, testUser1)
	require.ErrorIs(t, err, ErrRestricted)
	require.Equal(t, 0, sys.Token.SiloBalanceOf(testUser1).Cmp(amount))
	require.Equal(t, int64(0), bank.BalanceOf(testUSDC, testUser1).Int64())
}

func TestQueue_UpdateChargesCeiling(t *testing.T) {
	sys, bank, chain := newTestSystem(t, "queue")
	mintFor(t, sys, bank, testUser1, "100000000")
	mintFor(t, sys, bank, testUser2, "20000000")
	drainLiquidity(t, sys, testTreasury)
	chain.block++
	require.NoError(t, sys.Engine.SetBlockLimits(testAdmin,
		bigInt("1000000000000000000000000"), bigInt("100000000000000000000")))

	_, queued, err := sys.Engine.Redeem(testUser1, testUSDC, bigInt("40000000000000000000"), true)
	require.NoError(t, err)
	require.True(t, queued)

	// Growing past the ceiling is refused and locks nothing extra.
	err = sys.Engine.UpdateRedemptionRequest(testUser1, bigInt("150000000000000000000"))
	require.ErrorIs(t, err, ErrMaxRedeemPerBlockExceeded)
	require.Equal(t, 0, sys.Token.SiloBalanceOf(testUser1).Cmp(bigInt("40000000000000000000")))

	// Growing within the ceiling counts the increase against it.
	require.NoError(t, sys.Engine.UpdateRedemptionRequest(testUser1, bigInt("90000000000000000000")))
	_, _, err = sys.Engine.Redeem(testUser2, testUSDC, bigInt("20000000000000000000"), true)
	require.ErrorIs(t, err, ErrMaxRedeemPerBlockExceeded)

	// The quota frees up next block.
	chain.block++
	_, queued, err = sys.Engine.Redeem(testUser2, testUSDC, bigInt("20000000000000000000"), true)
	require.NoError(t, err)
	require.True(t, queued)
}

func TestQueue_RejectedRedeemKeepsQuota(t *testing.T) {
	sys, bank, chain := newTestSystem(t, "queue")
	mintFor(t, sys, bank, testUser1, "100000000")
	drainLiquidity(t, sys, testTreasury)
	chain.block++
	require.NoError(t, sys.Engine.SetBlockLimits(testAdmin,
		bigInt("1000000000000000000000000"), bigInt("100000000000000000000")))

	amount := bigInt("100000000000000000000")
	// The hard failure on a dry ledger must not consume per-block quota.
	_, _, err := sys.Engine.Redeem(testUser1, testUSDC, amount, false)
	require.ErrorIs(t, err, ErrInsufficientCollateral)

	// The full ceiling is still available for the queued retry.
	_, queued, err := sys.Engine.Redeem(testUser1, testUSDC, amount, true)
	require.NoError(t, err)
	require.True(t, queued)
}

func TestQueue_CooldownEntryPointsRefuse(t *testing.T) {
	sys, bank, _ := newTestSystem(t, "queue")
	mintFor(t, sys, bank, testUser1, "10000000")

	_, err := sys.Engine.CooldownRedeem(testUser1, testUSDC, big.NewInt(1))
	require.ErrorIs(t, err, ErrWrongDiscipline)
	_, err = sys.Engine.CompleteRedeem(testUser1)
	require.ErrorIs(t, err, ErrWrongDiscipline)
	require.ErrorIs(t, sys.Engine.CancelRedeem(testUser1), ErrWrongDiscipline)
}
