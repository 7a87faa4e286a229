/*

This file contains the core asset identifier type and the fixed-point
constants shared across the engine. All monetary amounts are sdkmath.Int
values denominated in the protocol base unit; prices, weights and rates
are sdkmath.LegacyDec fixed-point values.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// AssetID is the canonical identifier of an asset known to the protocol,
// e.g. "oWETH". The base unit asset has its own AssetID and is always
// priced at exactly one.
type AssetID string

func (a AssetID) String() string {
	return string(a)
}

// YearDuration is the reference year used to annualize fee rates.
const YearDuration = 365 * 24 * time.Hour

// OneHundredPercent is the fixed-point constant intent weights must sum to.
func OneHundredPercent() sdkmath.LegacyDec {
	return sdkmath.LegacyOneDec()
}
