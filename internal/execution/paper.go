/*

This file contains the paper venue adapter used in dry-run mode and in
tests. It fills every order at the oracle price, optionally skewed by a
fixed slippage fraction, and never holds residual allowance because it
never moves real funds.

*/

package execution

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/OrionFinanceAI/orion-engine/internal/pricing"
	"github.com/OrionFinanceAI/orion-engine/internal/types"
	"github.com/OrionFinanceAI/orion-engine/internal/utils"
)

// PaperAdapter simulates a venue against a price source.
type PaperAdapter struct {
	prices pricing.Source
	// slippage is applied against the taker on both legs: proceeds are
	// reduced and costs increased by this fraction. Zero means exact fills.
	slippage sdkmath.LegacyDec
}

// NewPaperAdapter returns a paper venue quoting from the given source.
func NewPaperAdapter(prices pricing.Source, slippage sdkmath.LegacyDec) (*PaperAdapter, error) {
	if prices == nil {
		return nil, fmt.Errorf("price source cannot be nil")
	}
	if slippage.IsNil() || slippage.IsNegative() || slippage.GTE(sdkmath.LegacyOneDec()) {
		return nil, fmt.Errorf("slippage must be in [0, 1): %v", slippage)
	}
	return &PaperAdapter{prices: prices, slippage: slippage}, nil
}

// Sell implements Adapter.
func (a *PaperAdapter) Sell(asset types.AssetID, shareAmount, estimatedProceeds sdkmath.Int) (sdkmath.Int, error) {
	price, err := a.prices.Price(asset)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %v", ErrVenueUnavailable, err)
	}
	gross, err := utils.ValueOf(shareAmount, price)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	haircut := a.slippage.MulInt(gross).TruncateInt()
	return gross.Sub(haircut), nil
}

// Buy implements Adapter.
func (a *PaperAdapter) Buy(asset types.AssetID, shareAmount, costLimit sdkmath.Int) (sdkmath.Int, error) {
	price, err := a.prices.Price(asset)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %v", ErrVenueUnavailable, err)
	}
	gross, err := utils.ValueOf(shareAmount, price)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	markup := a.slippage.MulInt(gross).TruncateInt()
	cost := gross.Add(markup)
	if cost.GT(costLimit) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: cost %s limit %s for %s",
			ErrCostLimitExceeded, cost, costLimit, asset)
	}
	return cost, nil
}
