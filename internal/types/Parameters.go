/*

This file contains the engine parameters governed by the administrative
surface. All fields may only change while the whole protocol is idle.

*/

package types

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for parameter validation
var (
	ErrInvalidEpochDuration  = errors.New("epoch duration must be positive")
	ErrInvalidMinibatchSize  = errors.New("minibatch size must be positive")
	ErrInvalidRate           = errors.New("rate must be between 0 and 1")
	ErrInvalidSlippageBounds = errors.New("slippage tolerance must be between 0 and 1")
)

// EngineParameters holds the protocol-level knobs of the epoch engine.
type EngineParameters struct {
	// EpochDuration is the minimum wall-clock interval between epoch starts.
	EpochDuration time.Duration `json:"epoch_duration"`

	// MinibatchSize bounds how many vaults a single advance call processes.
	MinibatchSize int `json:"minibatch_size"`

	// VolumeFeeRate is the annualized protocol fee charged on every vault's
	// gross NAV at preprocessing.
	VolumeFeeRate sdkmath.LegacyDec `json:"volume_fee_rate"`

	// RevenueShareRate is the protocol's cut of computed curator fees.
	RevenueShareRate sdkmath.LegacyDec `json:"revenue_share_rate"`

	// BufferTargetRatio is the solvency buffer target as a fraction of
	// aggregate NAV. The buffer is only ever topped up toward the target,
	// never forcibly drained.
	BufferTargetRatio sdkmath.LegacyDec `json:"buffer_target_ratio"`

	// SlippageTolerance is the allowance above the estimated cost granted
	// to buy-leg adapter calls.
	SlippageTolerance sdkmath.LegacyDec `json:"slippage_tolerance"`
}

// Validate checks the parameter set for internal consistency.
func (p EngineParameters) Validate() error {
	if p.EpochDuration <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidEpochDuration, p.EpochDuration)
	}
	if p.MinibatchSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMinibatchSize, p.MinibatchSize)
	}
	for name, rate := range map[string]sdkmath.LegacyDec{
		"volume_fee_rate":     p.VolumeFeeRate,
		"revenue_share_rate":  p.RevenueShareRate,
		"buffer_target_ratio": p.BufferTargetRatio,
	} {
		if rate.IsNil() || rate.IsNegative() || rate.GT(sdkmath.LegacyOneDec()) {
			return fmt.Errorf("%w: %s", ErrInvalidRate, name)
		}
	}
	if p.SlippageTolerance.IsNil() || p.SlippageTolerance.IsNegative() || p.SlippageTolerance.GT(sdkmath.LegacyOneDec()) {
		return ErrInvalidSlippageBounds
	}
	return nil
}
