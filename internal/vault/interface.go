package vault

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/OrionFinanceAI/orion-engine/internal/types"
)

// Vault is the capability interface the epoch engine consumes and drives.
// It abstracts over the transparent and encrypted-intent implementations:
// the engine reads state during estimation and writes queues, portfolio
// and NAV back during execution. totalAssets and the live portfolio are
// mutated only through this interface, and only by the execution machine.
type Vault interface {
	// ID returns the vault's unique identifier.
	ID() string

	// TotalAssets returns the vault's current NAV in base units.
	TotalAssets() sdkmath.Int

	// TotalShares returns the vault's outstanding share supply.
	TotalShares() sdkmath.Int

	// GetPortfolio returns a copy of the live portfolio.
	GetPortfolio() types.Portfolio

	// GetIntent returns a copy of the curator's live intent, or
	// ErrIntentUnavailable when none is readable; the engine then keeps
	// the current holdings as the epoch target.
	GetIntent() (types.Intent, error)

	// PendingDeposit returns the total queued deposit amount in base units.
	PendingDeposit() sdkmath.Int

	// PendingRedeem returns the total queued redeem amount in shares.
	PendingRedeem() sdkmath.Int

	// CuratorFee computes the curator fee owed on the given NAV figure per
	// the vault's fee model, without mutating state.
	CuratorFee(nav sdkmath.Int, epochDuration time.Duration) (sdkmath.Int, error)

	// AccrueCuratorFees credits the curator's claimable fee balance.
	AccrueCuratorFees(amount sdkmath.Int) error

	// ConvertToShares converts base units to shares against an explicit
	// point-in-time total assets figure.
	ConvertToShares(assets, pitTotalAssets sdkmath.Int) (sdkmath.Int, error)

	// ConvertToAssets converts shares to base units against an explicit
	// point-in-time total assets figure.
	ConvertToAssets(shares, pitTotalAssets sdkmath.Int) (sdkmath.Int, error)

	// FulfillRedeem drains the redeem queue at the given basis NAV, burning
	// shares and crediting claimable base units. Returns the total paid out.
	FulfillRedeem(basisNAV sdkmath.Int) (sdkmath.Int, error)

	// FulfillDeposit drains the deposit queue at the given basis NAV,
	// minting shares to depositors. Returns the total shares minted.
	FulfillDeposit(basisNAV sdkmath.Int) (sdkmath.Int, error)

	// UpdateVaultState replaces the live portfolio wholesale and writes the
	// new NAV, raising the high-water mark if the share price exceeds it.
	UpdateVaultState(portfolio types.Portfolio, nav sdkmath.Int) error
}

// IdleChecker reports whether the whole protocol is idle (no epoch in
// flight). Depositor cancellations are gated on it: the estimation machine
// may already have read queue totals mid-epoch.
type IdleChecker interface {
	IsIdle() bool
}
