/*

This file contains the per-epoch snapshot owned by the estimation machine.
A fresh snapshot is allocated at every epoch open so no token, price or
order from a previous epoch can leak into the next one. Prices are fetched
once per token per epoch and cached, guaranteeing every vault is priced
against the same values.

*/

package engine

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/OrionFinanceAI/orion-engine/internal/pricing"
	"github.com/OrionFinanceAI/orion-engine/internal/types"
)

// Snapshot is the shared working state of one epoch.
type Snapshot struct {
	TraceID        string
	StartedAt      time.Time
	EligibleVaults []string

	// TokenList preserves first-touch order for deterministic order
	// generation; tokenSeen gives O(1) membership.
	TokenList []types.AssetID
	tokenSeen map[types.AssetID]struct{}
	Prices    map[types.AssetID]sdkmath.LegacyDec

	VaultNAV         map[string]types.NAVSplit
	TargetPortfolios map[string]types.Portfolio

	InitialValue map[types.AssetID]sdkmath.Int
	TargetValue  map[types.AssetID]sdkmath.Int

	SellOrders map[types.AssetID]sdkmath.Int // share units
	BuyOrders  map[types.AssetID]sdkmath.Int // share units
}

func newSnapshot(traceID string, startedAt time.Time, eligible []string) *Snapshot {
	return &Snapshot{
		TraceID:          traceID,
		StartedAt:        startedAt,
		EligibleVaults:   eligible,
		TokenList:        make([]types.AssetID, 0),
		tokenSeen:        make(map[types.AssetID]struct{}),
		Prices:           make(map[types.AssetID]sdkmath.LegacyDec),
		VaultNAV:         make(map[string]types.NAVSplit),
		TargetPortfolios: make(map[string]types.Portfolio),
		InitialValue:     make(map[types.AssetID]sdkmath.Int),
		TargetValue:      make(map[types.AssetID]sdkmath.Int),
		SellOrders:       make(map[types.AssetID]sdkmath.Int),
		BuyOrders:        make(map[types.AssetID]sdkmath.Int),
	}
}

// priceOf returns the epoch price for an asset, fetching and caching it on
// first touch. The base asset is always priced at exactly one.
func (s *Snapshot) priceOf(asset types.AssetID, baseAsset types.AssetID, source pricing.Source) (sdkmath.LegacyDec, error) {
	if price, ok := s.Prices[asset]; ok {
		return price, nil
	}
	var price sdkmath.LegacyDec
	if asset == baseAsset {
		price = sdkmath.LegacyOneDec()
	} else {
		fetched, err := source.Price(asset)
		if err != nil {
			return sdkmath.LegacyZeroDec(), err
		}
		price = fetched
	}
	s.Prices[asset] = price
	s.tokenSeen[asset] = struct{}{}
	s.TokenList = append(s.TokenList, asset)
	return price, nil
}

func (s *Snapshot) addInitialValue(asset types.AssetID, value sdkmath.Int) {
	if existing, ok := s.InitialValue[asset]; ok {
		s.InitialValue[asset] = existing.Add(value)
	} else {
		s.InitialValue[asset] = value
	}
}

func (s *Snapshot) addTargetValue(asset types.AssetID, value sdkmath.Int) {
	if existing, ok := s.TargetValue[asset]; ok {
		s.TargetValue[asset] = existing.Add(value)
	} else {
		s.TargetValue[asset] = value
	}
}

func (s *Snapshot) initialValueOf(asset types.AssetID) sdkmath.Int {
	if v, ok := s.InitialValue[asset]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}

func (s *Snapshot) targetValueOf(asset types.AssetID) sdkmath.Int {
	if v, ok := s.TargetValue[asset]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}
