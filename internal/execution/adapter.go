/*

This file contains the execution venue boundary. Adapters convert between
the protocol base unit and an asset's share units on behalf of the
execution machine. Swap routing is out of scope; an adapter is a single
venue call that either fully executes or fails.

*/

package execution

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/OrionFinanceAI/orion-engine/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrNoAdapter         = errors.New("asset has no registered execution adapter")
	ErrCostLimitExceeded = errors.New("venue cost exceeds the caller-provided limit")
	ErrVenueUnavailable  = errors.New("venue call failed")
)

// Adapter executes a single buy or sell against an external venue.
//
// Sell converts shareAmount share units into base-unit proceeds;
// estimatedProceeds is the snapshot-priced estimate the buffer accounting
// reconciles against. Buy spends base units for shareAmount share units
// and must not spend more than costLimit. Adapters must leave zero
// residual allowance on the caller's behalf.
type Adapter interface {
	Sell(asset types.AssetID, shareAmount, estimatedProceeds sdkmath.Int) (sdkmath.Int, error)
	Buy(asset types.AssetID, shareAmount, costLimit sdkmath.Int) (sdkmath.Int, error)
}

// Registry maps assets to their registered venue adapter.
type Registry struct {
	mu       sync.RWMutex
	adapters map[types.AssetID]Adapter
}

// NewRegistry returns an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[types.AssetID]Adapter)}
}

// Register binds an adapter to an asset, replacing any previous binding.
func (r *Registry) Register(asset types.AssetID, adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("adapter for %s cannot be nil", asset)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[asset] = adapter
	return nil
}

// Adapter returns the adapter registered for an asset.
func (r *Registry) Adapter(asset types.AssetID) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, asset)
	}
	return adapter, nil
}
