/*

This file contains the epoch lifecycle types shared between the estimation
and execution machines: phase enums, the per-vault NAV split produced by
preprocessing, and the epoch report persisted after settlement.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// EstimationPhase is the estimation machine lifecycle state.
type EstimationPhase uint8

const (
	EstimationIdle EstimationPhase = iota
	PreprocessingVaults
	Buffering
	PostprocessingVaults
	BuildingOrders
)

func (p EstimationPhase) String() string {
	switch p {
	case EstimationIdle:
		return "idle"
	case PreprocessingVaults:
		return "preprocessing_vaults"
	case Buffering:
		return "buffering"
	case PostprocessingVaults:
		return "postprocessing_vaults"
	case BuildingOrders:
		return "building_orders"
	default:
		return "unknown"
	}
}

// ExecutionPhase is the execution machine lifecycle state.
type ExecutionPhase uint8

const (
	ExecutionIdle ExecutionPhase = iota
	SellingLeg
	BuyingLeg
	ProcessVaultOperations
)

func (p ExecutionPhase) String() string {
	switch p {
	case ExecutionIdle:
		return "idle"
	case SellingLeg:
		return "selling_leg"
	case BuyingLeg:
		return "buying_leg"
	case ProcessVaultOperations:
		return "process_vault_operations"
	default:
		return "unknown"
	}
}

// NAVSplit is a vault's post-fee NAV broken into the three figures needed
// at settlement. Redeems are netted into NAV before deposits are added
// back, and the buffer debit applies to Final only.
type NAVSplit struct {
	// RedeemBasis is the post-fee NAV redeem requests are priced against.
	RedeemBasis sdkmath.Int `json:"redeem_basis"`
	// DepositBasis is RedeemBasis minus the pending redeem value; deposit
	// requests are priced against it.
	DepositBasis sdkmath.Int `json:"deposit_basis"`
	// Final is DepositBasis plus pending deposits, minus the vault's
	// pro-rata buffer debit. It becomes the vault's new totalAssets.
	Final sdkmath.Int `json:"final"`
}

// EpochReport is the durable record of one completed epoch, persisted by
// the daemon after the execution machine returns to idle.
type EpochReport struct {
	EpochNumber  uint64    `json:"epoch_number"`
	TraceID      string    `json:"trace_id"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
	VaultIDs     []string  `json:"vault_ids"`
	AggregateNAV sdkmath.Int `json:"aggregate_nav"`

	SellOrders map[AssetID]sdkmath.Int `json:"sell_orders"` // share units
	BuyOrders  map[AssetID]sdkmath.Int `json:"buy_orders"`  // share units

	BufferBefore    sdkmath.Int `json:"buffer_before"`
	BufferTopUp     sdkmath.Int `json:"buffer_top_up"`
	ExecutionDelta  sdkmath.Int `json:"execution_delta"` // realized-minus-estimated, signed
	BufferAfter     sdkmath.Int `json:"buffer_after"`
	ProtocolFees    sdkmath.Int `json:"protocol_fees"` // accrued this epoch
	CuratorFees     sdkmath.Int `json:"curator_fees"`  // accrued this epoch, net of revenue share
}
