package engine

import (
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/OrionFinanceAI/orion-engine/internal/execution"
	"github.com/OrionFinanceAI/orion-engine/internal/types"
)

// flakyAdapter wraps a real adapter, failing the first N calls per asset
// and counting every attempt.
type flakyAdapter struct {
	inner    execution.Adapter
	failures map[types.AssetID]int
	sells    map[types.AssetID]int
	buys     map[types.AssetID]int
}

func newFlakyAdapter(inner execution.Adapter) *flakyAdapter {
	return &flakyAdapter{
		inner:    inner,
		failures: make(map[types.AssetID]int),
		sells:    make(map[types.AssetID]int),
		buys:     make(map[types.AssetID]int),
	}
}

func (f *flakyAdapter) Sell(asset types.AssetID, shareAmount, estimatedProceeds sdkmath.Int) (sdkmath.Int, error) {
	f.sells[asset]++
	if f.failures[asset] > 0 {
		f.failures[asset]--
		return sdkmath.ZeroInt(), errors.New("venue down")
	}
	return f.inner.Sell(asset, shareAmount, estimatedProceeds)
}

func (f *flakyAdapter) Buy(asset types.AssetID, shareAmount, costLimit sdkmath.Int) (sdkmath.Int, error) {
	f.buys[asset]++
	if f.failures[asset] > 0 {
		f.failures[asset]--
		return sdkmath.ZeroInt(), errors.New("venue down")
	}
	return f.inner.Buy(asset, shareAmount, costLimit)
}

// advanceTo steps the engine until the execution machine reports the given
// phase.
func (f *fixture) advanceTo(phase string) {
	f.t.Helper()
	for i := 0; i < 1000; i++ {
		if f.eng.Status().ExecutionPhase == phase {
			return
		}
		require.NoError(f.t, f.eng.Advance())
	}
	f.t.Fatalf("never reached execution phase %s", phase)
}

func TestSellLeg_RetryResumesAtFailedToken(t *testing.T) {
	f := newFixture(t, testParams())

	paper, err := execution.NewPaperAdapter(f.prices, sdkmath.LegacyZeroDec())
	require.NoError(t, err)
	flaky := newFlakyAdapter(paper)
	flaky.failures["OSMO"] = 1
	require.NoError(t, f.adapters.Register("ATOM", flaky))
	require.NoError(t, f.adapters.Register("OSMO", flaky))

	v := f.newVault("vault-1", types.FeeModel{Kind: types.FeeAbsolute})
	seeded := types.NewPortfolio()
	seeded.Set("ATOM", sdkmath.NewInt(250))  // 1000 at price 4
	seeded.Set("OSMO", sdkmath.NewInt(2000)) // 1000 at price 0.5
	f.seedVault(v, 2000, seeded)
	require.NoError(t, v.SubmitIntent("curator", intentOf("USDC", "1.0")))

	f.advanceTo("selling_leg")

	// ATOM fills, OSMO fails: the step errors and the leg stays open.
	require.Error(t, f.eng.Advance())
	require.Equal(t, "selling_leg", f.eng.Status().ExecutionPhase)
	require.Equal(t, 1, flaky.sells["ATOM"])
	require.Equal(t, 1, flaky.sells["OSMO"])

	// The retry resumes at OSMO without touching the completed ATOM fill.
	require.NoError(t, f.eng.Advance())
	require.Equal(t, 1, flaky.sells["ATOM"])
	require.Equal(t, 2, flaky.sells["OSMO"])

	for !f.eng.IsIdle() {
		require.NoError(t, f.eng.Advance())
	}
	require.True(t, f.reports[0].ExecutionDelta.IsZero())
	require.Equal(t, sdkmath.NewInt(2000), v.GetPortfolio().Get("USDC"))
}

func TestBuyLeg_SlippageAbsorbedByBuffer(t *testing.T) {
	params := testParams()
	params.BufferTargetRatio = dec("0.1")
	params.SlippageTolerance = dec("0.05")
	f := newFixture(t, params)

	slippy, err := execution.NewPaperAdapter(f.prices, dec("0.05"))
	require.NoError(t, err)
	require.NoError(t, f.adapters.Register("ATOM", slippy))

	v := f.newVault("vault-1", types.FeeModel{Kind: types.FeeAbsolute})
	require.NoError(t, v.RequestDeposit("alice", sdkmath.NewInt(1000)))
	require.NoError(t, v.SubmitIntent("curator", intentOf("ATOM", "1.0")))

	f.runEpoch()

	// The buffer debit takes 100 of the 1000 NAV; buying 900 of ATOM at
	// 5% slippage costs 945, so the buffer absorbs the 45 overrun.
	require.Equal(t, sdkmath.NewInt(900), v.TotalAssets())
	require.Equal(t, sdkmath.NewInt(225), v.GetPortfolio().Get("ATOM"))
	require.Equal(t, sdkmath.NewInt(55), f.eng.BufferBalance())

	report := f.reports[0]
	require.Equal(t, sdkmath.NewInt(100), report.BufferTopUp)
	require.Equal(t, sdkmath.NewInt(-45), report.ExecutionDelta)
	require.Equal(t, sdkmath.NewInt(55), report.BufferAfter)
}

func TestBuyLeg_LossBeyondBufferClampsToZero(t *testing.T) {
	params := testParams()
	params.SlippageTolerance = dec("0.05")
	f := newFixture(t, params)

	slippy, err := execution.NewPaperAdapter(f.prices, dec("0.05"))
	require.NoError(t, err)
	require.NoError(t, f.adapters.Register("ATOM", slippy))

	v := f.newVault("vault-1", types.FeeModel{Kind: types.FeeAbsolute})
	require.NoError(t, v.RequestDeposit("alice", sdkmath.NewInt(1000)))
	require.NoError(t, v.SubmitIntent("curator", intentOf("ATOM", "1.0")))

	f.runEpoch()

	// An empty buffer cannot go negative; the loss is recorded and the
	// balance clamps at zero.
	require.True(t, f.eng.BufferBalance().IsZero())
	require.Equal(t, sdkmath.NewInt(-50), f.reports[0].ExecutionDelta)
}

func TestBuyLeg_CostLimitFailurePropagates(t *testing.T) {
	// Tolerance below the venue's slippage: every buy attempt is refused
	// and the leg never completes on its own.
	params := testParams()
	params.SlippageTolerance = dec("0.01")
	f := newFixture(t, params)

	slippy, err := execution.NewPaperAdapter(f.prices, dec("0.05"))
	require.NoError(t, err)
	require.NoError(t, f.adapters.Register("ATOM", slippy))

	v := f.newVault("vault-1", types.FeeModel{Kind: types.FeeAbsolute})
	require.NoError(t, v.RequestDeposit("alice", sdkmath.NewInt(1000)))
	require.NoError(t, v.SubmitIntent("curator", intentOf("ATOM", "1.0")))

	f.advanceTo("buying_leg")
	err = f.eng.Advance()
	require.ErrorIs(t, err, execution.ErrCostLimitExceeded)
	require.Equal(t, "buying_leg", f.eng.Status().ExecutionPhase)

	// Recovery is the privileged reset.
	require.NoError(t, f.eng.ForceIdle("secret"))
	require.True(t, f.eng.IsIdle())
}
