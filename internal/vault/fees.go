/*

This file contains the curator fee engine. The fee is computed against an
explicitly supplied NAV figure, never against live totalAssets, so the
estimation machine can charge fees mid-pipeline.

*/

package vault

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/OrionFinanceAI/orion-engine/internal/types"
)

// CuratorFee implements Vault.
//
// The management fee accrues pro-rata over the epoch. The performance fee
// is charged only when the share price on the post-management NAV exceeds
// the benchmark selected by the fee kind, proportional to the excess
// scaled by the performance rate. The whole fee is capped at the NAV.
func (v *TransparentVault) CuratorFee(nav sdkmath.Int, epochDuration time.Duration) (sdkmath.Int, error) {
	if nav.IsNil() || nav.IsNegative() {
		return sdkmath.ZeroInt(), ErrInvalidNAV
	}
	if nav.IsZero() || epochDuration <= 0 {
		return sdkmath.ZeroInt(), nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	management := v.fees.ManagementRate.
		MulInt(nav).
		MulInt64(int64(epochDuration / time.Second)).
		QuoInt64(int64(types.YearDuration / time.Second)).
		TruncateInt()
	if management.GT(nav) {
		management = nav
	}

	intermediate := nav.Sub(management)
	performance := v.performanceFee(intermediate, epochDuration)

	fee := management.Add(performance)
	if fee.GT(nav) {
		fee = nav
	}
	return fee, nil
}

func (v *TransparentVault) performanceFee(intermediateNAV sdkmath.Int, epochDuration time.Duration) sdkmath.Int {
	if v.totalShares.IsZero() || !intermediateNAV.IsPositive() || v.fees.PerformanceRate.IsZero() {
		return sdkmath.ZeroInt()
	}

	current := sdkmath.LegacyNewDecFromInt(intermediateNAV).
		Quo(sdkmath.LegacyNewDecFromInt(v.totalShares))
	benchmark := v.benchmarkPrice(epochDuration)
	if current.LTE(benchmark) {
		return sdkmath.ZeroInt()
	}

	// The soft hurdle charges on the whole return once the hurdle is
	// cleared; the other kinds charge only on the excess above the
	// benchmark.
	base := current.Sub(benchmark)
	if v.fees.Kind == types.FeeSoftHurdle {
		base = current.Sub(v.lastSharePrice)
		if !base.IsPositive() {
			return sdkmath.ZeroInt()
		}
	}
	return v.fees.PerformanceRate.Mul(base).MulInt(v.totalShares).TruncateInt()
}

func (v *TransparentVault) benchmarkPrice(epochDuration time.Duration) sdkmath.LegacyDec {
	switch v.fees.Kind {
	case types.FeeAbsolute:
		return sdkmath.LegacyZeroDec()
	case types.FeeHighWaterMark:
		return v.fees.HighWaterMark
	case types.FeeSoftHurdle, types.FeeHardHurdle:
		return v.hurdlePrice(epochDuration)
	case types.FeeHurdleHWM:
		hurdle := v.hurdlePrice(epochDuration)
		if hurdle.GT(v.fees.HighWaterMark) {
			return hurdle
		}
		return v.fees.HighWaterMark
	default:
		return v.fees.HighWaterMark
	}
}

// hurdlePrice compounds the configured risk-free rate over the epoch on
// top of the share price recorded at the last settlement.
func (v *TransparentVault) hurdlePrice(epochDuration time.Duration) sdkmath.LegacyDec {
	growth := v.fees.HurdleRate.
		MulInt64(int64(epochDuration / time.Second)).
		QuoInt64(int64(types.YearDuration / time.Second))
	return v.lastSharePrice.Mul(sdkmath.LegacyOneDec().Add(growth))
}
