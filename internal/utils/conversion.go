/*

This file contains the fixed-point conversion helpers shared by the vault
accounting and the epoch engine: point-in-time share conversion and
price/value arithmetic. All conversions floor toward the vault so rounding
dust never leaks value out of it.

*/

package utils

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrAmountNil      = errors.New("amount is nil")
	ErrAmountNegative = errors.New("amount is negative")
	ErrPriceInvalid   = errors.New("price must be positive")
	ErrInvalidOffset  = errors.New("decimals offset is invalid")
	ErrNegativeSupply = errors.New("total supply cannot be negative")
	ErrNegativeAssets = errors.New("total assets cannot be negative")
)

const maxDecimalsOffset = 18

// Pow10 returns 10^n as an Int. n must be within [0, 18].
func Pow10(n uint8) (sdkmath.Int, error) {
	if n > maxDecimalsOffset {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d (must be between 0 and %d)", ErrInvalidOffset, n, maxDecimalsOffset)
	}
	out := sdkmath.OneInt()
	ten := sdkmath.NewInt(10)
	for i := uint8(0); i < n; i++ {
		out = out.Mul(ten)
	}
	return out, nil
}

// ConvertToShares converts a base-unit amount into shares against an
// explicitly supplied point-in-time total assets figure:
//
//	shares = assets * (totalSupply + 10^offset) / (pitTotalAssets + 1)
//
// floor-rounded so the vault keeps the dust.
func ConvertToShares(assets, totalSupply, pitTotalAssets sdkmath.Int, decimalsOffset uint8) (sdkmath.Int, error) {
	if err := validateConversionInputs(assets, totalSupply, pitTotalAssets); err != nil {
		return sdkmath.ZeroInt(), err
	}
	virtualShares, err := Pow10(decimalsOffset)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	numerator := assets.Mul(totalSupply.Add(virtualShares))
	denominator := pitTotalAssets.Add(sdkmath.OneInt())
	return numerator.Quo(denominator), nil
}

// ConvertToAssets is the inverse of ConvertToShares, also floor-rounded.
func ConvertToAssets(shares, totalSupply, pitTotalAssets sdkmath.Int, decimalsOffset uint8) (sdkmath.Int, error) {
	if err := validateConversionInputs(shares, totalSupply, pitTotalAssets); err != nil {
		return sdkmath.ZeroInt(), err
	}
	virtualShares, err := Pow10(decimalsOffset)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	numerator := shares.Mul(pitTotalAssets.Add(sdkmath.OneInt()))
	denominator := totalSupply.Add(virtualShares)
	return numerator.Quo(denominator), nil
}

// ValueOf returns the base-unit value of a share amount at a price,
// floor-rounded.
func ValueOf(shares sdkmath.Int, price sdkmath.LegacyDec) (sdkmath.Int, error) {
	if shares.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if shares.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	if price.IsNil() || !price.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %v", ErrPriceInvalid, price)
	}
	return price.MulInt(shares).TruncateInt(), nil
}

// SharesFor returns the share amount a base-unit value buys at a price,
// floor-rounded.
func SharesFor(value sdkmath.Int, price sdkmath.LegacyDec) (sdkmath.Int, error) {
	if value.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if value.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	if price.IsNil() || !price.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %v", ErrPriceInvalid, price)
	}
	return sdkmath.LegacyNewDecFromInt(value).Quo(price).TruncateInt(), nil
}

func validateConversionInputs(amount, totalSupply, pitTotalAssets sdkmath.Int) error {
	if amount.IsNil() || totalSupply.IsNil() || pitTotalAssets.IsNil() {
		return ErrAmountNil
	}
	if amount.IsNegative() {
		return ErrAmountNegative
	}
	if totalSupply.IsNegative() {
		return ErrNegativeSupply
	}
	if pitTotalAssets.IsNegative() {
		return ErrNegativeAssets
	}
	return nil
}
