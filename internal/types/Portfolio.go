/*

This file contains the portfolio and curator intent types. Both keep an
explicit ordered key list alongside the value map: enumeration order must
be deterministic because order generation and settlement events depend on
it. Updates are wholesale replacements, never partial mutation.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// Portfolio maps assets to held share units.
type Portfolio struct {
	Assets   []AssetID               `json:"assets"`
	Holdings map[AssetID]sdkmath.Int `json:"holdings"`
}

// NewPortfolio returns an empty portfolio.
func NewPortfolio() Portfolio {
	return Portfolio{
		Assets:   make([]AssetID, 0),
		Holdings: make(map[AssetID]sdkmath.Int),
	}
}

// Set records the held share units for an asset, keeping insertion order.
func (p *Portfolio) Set(asset AssetID, shares sdkmath.Int) {
	if _, seen := p.Holdings[asset]; !seen {
		p.Assets = append(p.Assets, asset)
	}
	p.Holdings[asset] = shares
}

// Get returns the held share units for an asset, zero if absent.
func (p Portfolio) Get(asset AssetID) sdkmath.Int {
	if amt, ok := p.Holdings[asset]; ok {
		return amt
	}
	return sdkmath.ZeroInt()
}

// Clone returns an independent copy of the portfolio.
func (p Portfolio) Clone() Portfolio {
	out := Portfolio{
		Assets:   make([]AssetID, len(p.Assets)),
		Holdings: make(map[AssetID]sdkmath.Int, len(p.Holdings)),
	}
	copy(out.Assets, p.Assets)
	for asset, amt := range p.Holdings {
		out.Holdings[asset] = amt
	}
	return out
}

// Intent is a curator-submitted target allocation: weights per asset that
// must sum to exactly OneHundredPercent at submission time.
type Intent struct {
	Assets  []AssetID                     `json:"assets"`
	Weights map[AssetID]sdkmath.LegacyDec `json:"weights"`
}

// NewIntent returns an empty intent.
func NewIntent() Intent {
	return Intent{
		Assets:  make([]AssetID, 0),
		Weights: make(map[AssetID]sdkmath.LegacyDec),
	}
}

// Set records the target weight for an asset, keeping insertion order.
func (in *Intent) Set(asset AssetID, weight sdkmath.LegacyDec) {
	if _, seen := in.Weights[asset]; !seen {
		in.Assets = append(in.Assets, asset)
	}
	in.Weights[asset] = weight
}

// WeightSum returns the sum of all weights.
func (in Intent) WeightSum() sdkmath.LegacyDec {
	sum := sdkmath.LegacyZeroDec()
	for _, asset := range in.Assets {
		sum = sum.Add(in.Weights[asset])
	}
	return sum
}

// Clone returns an independent copy of the intent.
func (in Intent) Clone() Intent {
	out := Intent{
		Assets:  make([]AssetID, len(in.Assets)),
		Weights: make(map[AssetID]sdkmath.LegacyDec, len(in.Weights)),
	}
	copy(out.Assets, in.Assets)
	for asset, w := range in.Weights {
		out.Weights[asset] = w
	}
	return out
}
