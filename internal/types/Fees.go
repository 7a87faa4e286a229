/*

This file contains the fee model types for vault curator fees.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// FeeKind selects the benchmark used when charging the performance fee.
type FeeKind uint8

const (
	// FeeAbsolute benchmarks against a zero share price, so the fee applies
	// to any positive NAV.
	FeeAbsolute FeeKind = iota
	// FeeSoftHurdle charges on the whole return once the hurdle is cleared.
	FeeSoftHurdle
	// FeeHardHurdle charges only on the excess above the hurdle price.
	FeeHardHurdle
	// FeeHighWaterMark charges only on the excess above the stored mark.
	FeeHighWaterMark
	// FeeHurdleHWM benchmarks against the higher of hurdle and mark.
	FeeHurdleHWM
)

func (k FeeKind) String() string {
	switch k {
	case FeeAbsolute:
		return "absolute"
	case FeeSoftHurdle:
		return "soft_hurdle"
	case FeeHardHurdle:
		return "hard_hurdle"
	case FeeHighWaterMark:
		return "high_water_mark"
	case FeeHurdleHWM:
		return "hurdle_hwm"
	default:
		return "unknown"
	}
}

// FeeModel describes how a vault charges curator fees. HighWaterMark is
// the highest historical share price and is only ever raised, at epoch
// settlement. HurdleRate is the annualized risk-free rate compounded over
// the epoch for the hurdle benchmarks.
type FeeModel struct {
	Kind            FeeKind           `json:"kind"`
	PerformanceRate sdkmath.LegacyDec `json:"performance_rate"`
	ManagementRate  sdkmath.LegacyDec `json:"management_rate"` // annualized
	HurdleRate      sdkmath.LegacyDec `json:"hurdle_rate"`     // annualized
	HighWaterMark   sdkmath.LegacyDec `json:"high_water_mark"` // share price
}
