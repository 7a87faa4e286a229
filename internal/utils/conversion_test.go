package utils

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"
)

func TestConvertToShares_FirstDeposit(t *testing.T) {
	// Empty vault: shares = assets * 10^offset / 1
	shares, err := ConvertToShares(sdkmath.NewInt(1000), sdkmath.ZeroInt(), sdkmath.ZeroInt(), 3)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(1_000_000), shares)
}

func TestConvertToShares_FloorRounding(t *testing.T) {
	// shares = 100 * (300 + 1) / (1000 + 1) = 30100/1001 = 30.069... -> 30
	shares, err := ConvertToShares(sdkmath.NewInt(100), sdkmath.NewInt(300), sdkmath.NewInt(1000), 0)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(30), shares)
}

func TestConvertToAssets_FloorRounding(t *testing.T) {
	// assets = 30 * (1000 + 1) / (300 + 1) = 30030/301 = 99.76... -> 99
	assets, err := ConvertToAssets(sdkmath.NewInt(30), sdkmath.NewInt(300), sdkmath.NewInt(1000), 0)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(99), assets)
}

func TestConversion_RoundTripNeverGains(t *testing.T) {
	supply := sdkmath.NewInt(123457)
	nav := sdkmath.NewInt(987654)
	for _, amount := range []int64{1, 7, 100, 99999} {
		shares, err := ConvertToShares(sdkmath.NewInt(amount), supply, nav, 6)
		require.NoError(t, err)
		back, err := ConvertToAssets(shares, supply, nav, 6)
		require.NoError(t, err)
		require.True(t, back.LTE(sdkmath.NewInt(amount)),
			"round trip of %d produced %s", amount, back)
	}
}

func TestConvertToShares_RejectsBadInputs(t *testing.T) {
	_, err := ConvertToShares(sdkmath.NewInt(-1), sdkmath.ZeroInt(), sdkmath.ZeroInt(), 0)
	require.ErrorIs(t, err, ErrAmountNegative)

	_, err = ConvertToShares(sdkmath.NewInt(1), sdkmath.NewInt(-1), sdkmath.ZeroInt(), 0)
	require.ErrorIs(t, err, ErrNegativeSupply)

	_, err = ConvertToShares(sdkmath.NewInt(1), sdkmath.ZeroInt(), sdkmath.NewInt(-1), 0)
	require.ErrorIs(t, err, ErrNegativeAssets)

	_, err = ConvertToShares(sdkmath.NewInt(1), sdkmath.ZeroInt(), sdkmath.ZeroInt(), 19)
	require.ErrorIs(t, err, ErrInvalidOffset)
}

func TestPow10(t *testing.T) {
	out, err := Pow10(0)
	require.NoError(t, err)
	require.Equal(t, sdkmath.OneInt(), out)

	out, err = Pow10(6)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(1_000_000), out)
}

func TestValueOfAndSharesFor(t *testing.T) {
	price := sdkmath.LegacyMustNewDecFromStr("2.5")

	value, err := ValueOf(sdkmath.NewInt(7), price)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(17), value) // 17.5 floored

	shares, err := SharesFor(sdkmath.NewInt(17), price)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(6), shares) // 6.8 floored

	_, err = ValueOf(sdkmath.NewInt(1), sdkmath.LegacyZeroDec())
	require.ErrorIs(t, err, ErrPriceInvalid)

	_, err = SharesFor(sdkmath.NewInt(-1), price)
	require.ErrorIs(t, err, ErrAmountNegative)
}
