/*

This file contains the price source boundary. The engine queries a Source
once per token per epoch and caches the result in the epoch snapshot, so
every vault in an epoch is priced against the same values. Oracle trust
models are out of scope; a Source is expected not to fail for whitelisted
assets.

*/

package pricing

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/OrionFinanceAI/orion-engine/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrUnknownAsset = errors.New("asset has no registered price")
	ErrInvalidPrice = errors.New("price must be positive")
)

// Source answers normalized base-unit prices for asset share units.
type Source interface {
	Price(asset types.AssetID) (sdkmath.LegacyDec, error)
}

// StaticSource is an in-memory Source fed by an operator or by tests.
type StaticSource struct {
	mu     sync.RWMutex
	prices map[types.AssetID]sdkmath.LegacyDec
}

// NewStaticSource returns an empty static price source.
func NewStaticSource() *StaticSource {
	return &StaticSource{prices: make(map[types.AssetID]sdkmath.LegacyDec)}
}

// SetPrice records the price for an asset. Zero or negative prices are
// rejected.
func (s *StaticSource) SetPrice(asset types.AssetID, price sdkmath.LegacyDec) error {
	if price.IsNil() || !price.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidPrice, asset)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[asset] = price
	return nil
}

// Price implements Source.
func (s *StaticSource) Price(asset types.AssetID) (sdkmath.LegacyDec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.prices[asset]
	if !ok {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	return price, nil
}
