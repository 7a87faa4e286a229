/*

This file contains the estimation machine: epoch opening, per-vault NAV
preprocessing, the solvency buffer top-up, per-vault target construction
and net order building. Vault phases walk the eligible set in minibatches;
the cursor only advances past a vault once that vault's results are fully
committed, so a failed vault is retried by the next poll without touching
the vaults already processed.

*/

package engine

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/OrionFinanceAI/orion-engine/internal/types"
	"github.com/OrionFinanceAI/orion-engine/internal/utils"
	"github.com/OrionFinanceAI/orion-engine/internal/vault"
)

// startEpoch opens a new epoch: it snapshots the eligible vault set and
// moves the estimation machine into preprocessing. Rejected while any
// machine is active or before the epoch boundary elapses.
func (e *Engine) startEpoch() error {
	if !e.isIdleLocked() {
		return ErrNotIdle
	}
	now := e.clock()
	if now.Before(e.lastEpochStart.Add(e.params.EpochDuration)) {
		return fmt.Errorf("%w: due at %s", ErrEpochNotDue, e.lastEpochStart.Add(e.params.EpochDuration).UTC())
	}

	eligible := make([]string, 0, len(e.vaults))
	for _, v := range e.vaults {
		if v.TotalAssets().IsPositive() || v.PendingDeposit().IsPositive() {
			eligible = append(eligible, v.ID())
		}
	}
	if len(eligible) == 0 {
		e.lastEpochStart = now
		e.logger.Info().Msg("Epoch boundary elapsed with no eligible vaults, skipping")
		return nil
	}

	traceID := uuid.New().String()
	e.snap = newSnapshot(traceID, now, eligible)
	e.report = types.EpochReport{
		EpochNumber:    e.epochNumber + 1,
		TraceID:        traceID,
		StartedAt:      now,
		VaultIDs:       append([]string(nil), eligible...),
		AggregateNAV:   sdkmath.ZeroInt(),
		BufferBefore:   sdkmath.ZeroInt(),
		BufferTopUp:    sdkmath.ZeroInt(),
		ExecutionDelta: sdkmath.ZeroInt(),
		BufferAfter:    sdkmath.ZeroInt(),
		ProtocolFees:   sdkmath.ZeroInt(),
		CuratorFees:    sdkmath.ZeroInt(),
	}
	e.lastEpochStart = now
	e.estPhase = types.PreprocessingVaults
	e.estCursor = 0

	e.logger.Info().
		Str("trace_id", traceID).
		Uint64("epoch", e.epochNumber+1).
		Int("eligible_vaults", len(eligible)).
		Msg("Epoch started")
	return nil
}

// stepPreprocessVaults processes one minibatch of the fee and NAV
// pipeline. Per vault: gross NAV at snapshot prices, volume fee, curator
// fee with the protocol revenue share carved out, then the redeem and
// deposit bases. All figures for a vault are computed before any of them
// are committed.
func (e *Engine) stepPreprocessVaults() error {
	if e.estPhase != types.PreprocessingVaults {
		return ErrUnexpectedPhase
	}
	end := e.estCursor + e.params.MinibatchSize
	if end > len(e.snap.EligibleVaults) {
		end = len(e.snap.EligibleVaults)
	}

	epochFraction := sdkmath.LegacyNewDec(int64(e.params.EpochDuration.Seconds())).
		Quo(sdkmath.LegacyNewDec(int64(types.YearDuration.Seconds())))

	for i := e.estCursor; i < end; i++ {
		v := e.vaultIndex[e.snap.EligibleVaults[i]]

		gross, initialValues, err := e.grossNAV(v)
		if err != nil {
			return fmt.Errorf("preprocessing %s: %w", v.ID(), err)
		}

		volumeFee := e.params.VolumeFeeRate.MulInt(gross).Mul(epochFraction).TruncateInt()
		afterVolume := gross.Sub(volumeFee)

		curatorFee, err := v.CuratorFee(afterVolume, e.params.EpochDuration)
		if err != nil {
			return fmt.Errorf("preprocessing %s: %w", v.ID(), err)
		}
		protocolCut := e.params.RevenueShareRate.MulInt(curatorFee).TruncateInt()
		curatorNet := curatorFee.Sub(protocolCut)

		redeemBasis := afterVolume.Sub(curatorFee)
		if redeemBasis.IsNegative() {
			return fmt.Errorf("%w: vault %s redeem basis %s", ErrNegativeBasis, v.ID(), redeemBasis)
		}
		redeemValue, err := v.ConvertToAssets(v.PendingRedeem(), redeemBasis)
		if err != nil {
			return fmt.Errorf("preprocessing %s: %w", v.ID(), err)
		}
		depositBasis := redeemBasis.Sub(redeemValue)
		if depositBasis.IsNegative() {
			return fmt.Errorf("%w: vault %s deposit basis %s", ErrNegativeBasis, v.ID(), depositBasis)
		}
		final := depositBasis.Add(v.PendingDeposit())

		// Commit point: everything above was pure computation.
		if err := v.AccrueCuratorFees(curatorNet); err != nil {
			return fmt.Errorf("preprocessing %s: %w", v.ID(), err)
		}
		e.protocolFees = e.protocolFees.Add(volumeFee).Add(protocolCut)
		e.report.ProtocolFees = e.report.ProtocolFees.Add(volumeFee).Add(protocolCut)
		e.report.CuratorFees = e.report.CuratorFees.Add(curatorNet)
		e.snap.VaultNAV[v.ID()] = types.NAVSplit{
			RedeemBasis:  redeemBasis,
			DepositBasis: depositBasis,
			Final:        final,
		}
		for asset, value := range initialValues {
			e.snap.addInitialValue(asset, value)
		}
		e.estCursor = i + 1

		e.logger.Debug().
			Str("vault_id", v.ID()).
			Str("gross_nav", gross.String()).
			Str("redeem_basis", redeemBasis.String()).
			Str("final", final.String()).
			Msg("Vault preprocessed")
	}

	if e.estCursor == len(e.snap.EligibleVaults) {
		e.estPhase = types.Buffering
		e.logger.Info().Str("trace_id", e.snap.TraceID).Msg("Preprocessing complete, moving to buffering")
	}
	return nil
}

// grossNAV values a vault's live portfolio at snapshot prices and returns
// the per-asset value map used for net order building.
func (e *Engine) grossNAV(v vault.Vault) (sdkmath.Int, map[types.AssetID]sdkmath.Int, error) {
	portfolio := v.GetPortfolio()
	gross := sdkmath.ZeroInt()
	values := make(map[types.AssetID]sdkmath.Int, len(portfolio.Assets))
	for _, asset := range portfolio.Assets {
		holding := portfolio.Get(asset)
		if !holding.IsPositive() {
			continue
		}
		price, err := e.snap.priceOf(asset, e.baseAsset, e.prices)
		if err != nil {
			return sdkmath.ZeroInt(), nil, fmt.Errorf("pricing %s: %w", asset, err)
		}
		value, err := utils.ValueOf(holding, price)
		if err != nil {
			return sdkmath.ZeroInt(), nil, err
		}
		gross = gross.Add(value)
		values[asset] = value
	}
	return gross, values, nil
}

// stepBuffering tops the solvency buffer up toward its target ratio of
// aggregate NAV, debiting every vault pro rata. Only the sum actually
// allocated is credited, so flooring dust stays with the vaults.
func (e *Engine) stepBuffering() error {
	if e.estPhase != types.Buffering {
		return ErrUnexpectedPhase
	}

	aggregate := sdkmath.ZeroInt()
	for _, id := range e.snap.EligibleVaults {
		aggregate = aggregate.Add(e.snap.VaultNAV[id].Final)
	}
	e.report.AggregateNAV = aggregate
	e.report.BufferBefore = e.buffer.Balance()

	target := e.params.BufferTargetRatio.MulInt(aggregate).TruncateInt()
	if e.buffer.Balance().LT(target) && aggregate.IsPositive() {
		shortfall := target.Sub(e.buffer.Balance())
		allocated := sdkmath.ZeroInt()
		for _, id := range e.snap.EligibleVaults {
			split := e.snap.VaultNAV[id]
			debit := shortfall.Mul(split.Final).Quo(aggregate)
			if !debit.IsPositive() {
				continue
			}
			split.Final = split.Final.Sub(debit)
			e.snap.VaultNAV[id] = split
			allocated = allocated.Add(debit)
		}
		e.buffer.Credit(allocated)
		e.report.BufferTopUp = allocated
	}

	e.estPhase = types.PostprocessingVaults
	e.estCursor = 0
	e.logger.Info().
		Str("trace_id", e.snap.TraceID).
		Str("aggregate_nav", aggregate.String()).
		Str("buffer_top_up", e.report.BufferTopUp.String()).
		Msg("Buffering complete, moving to postprocessing")
	return nil
}

// stepPostprocessVaults builds one minibatch of target portfolios. A vault
// with a readable intent gets the intent weights applied to its final NAV;
// a vault without one keeps its current allocation scaled to the final
// NAV, and a vault with no holdings at all parks everything in the base
// asset.
func (e *Engine) stepPostprocessVaults() error {
	if e.estPhase != types.PostprocessingVaults {
		return ErrUnexpectedPhase
	}
	end := e.estCursor + e.params.MinibatchSize
	if end > len(e.snap.EligibleVaults) {
		end = len(e.snap.EligibleVaults)
	}

	for i := e.estCursor; i < end; i++ {
		v := e.vaultIndex[e.snap.EligibleVaults[i]]
		final := e.snap.VaultNAV[v.ID()].Final

		target, targetValues, err := e.targetPortfolio(v, final)
		if err != nil {
			return fmt.Errorf("postprocessing %s: %w", v.ID(), err)
		}

		e.snap.TargetPortfolios[v.ID()] = target
		for asset, value := range targetValues {
			e.snap.addTargetValue(asset, value)
		}
		e.estCursor = i + 1

		e.logger.Debug().
			Str("vault_id", v.ID()).
			Str("final_nav", final.String()).
			Int("target_assets", len(target.Assets)).
			Msg("Vault target built")
	}

	if e.estCursor == len(e.snap.EligibleVaults) {
		e.estPhase = types.BuildingOrders
		e.logger.Info().Str("trace_id", e.snap.TraceID).Msg("Postprocessing complete, moving to order building")
	}
	return nil
}

func (e *Engine) targetPortfolio(v vault.Vault, final sdkmath.Int) (types.Portfolio, map[types.AssetID]sdkmath.Int, error) {
	target := types.NewPortfolio()
	values := make(map[types.AssetID]sdkmath.Int)

	intent, err := v.GetIntent()
	switch {
	case err == nil:
		for _, asset := range intent.Assets {
			weight := intent.Weights[asset]
			if !weight.IsPositive() {
				continue
			}
			price, perr := e.snap.priceOf(asset, e.baseAsset, e.prices)
			if perr != nil {
				return types.Portfolio{}, nil, fmt.Errorf("pricing %s: %w", asset, perr)
			}
			targetValue := weight.MulInt(final).TruncateInt()
			shares, serr := utils.SharesFor(targetValue, price)
			if serr != nil {
				return types.Portfolio{}, nil, serr
			}
			if !shares.IsPositive() {
				continue
			}
			target.Set(asset, shares)
			tradable, verr := utils.ValueOf(shares, price)
			if verr != nil {
				return types.Portfolio{}, nil, verr
			}
			values[asset] = tradable
		}
		return target, values, nil

	case errors.Is(err, vault.ErrIntentUnavailable):
		// No readable intent: hold the current allocation through the
		// epoch, scaled to the final NAV.
		portfolio := v.GetPortfolio()
		gross := sdkmath.ZeroInt()
		holdingValues := make(map[types.AssetID]sdkmath.Int, len(portfolio.Assets))
		for _, asset := range portfolio.Assets {
			holding := portfolio.Get(asset)
			if !holding.IsPositive() {
				continue
			}
			price, perr := e.snap.priceOf(asset, e.baseAsset, e.prices)
			if perr != nil {
				return types.Portfolio{}, nil, fmt.Errorf("pricing %s: %w", asset, perr)
			}
			value, verr := utils.ValueOf(holding, price)
			if verr != nil {
				return types.Portfolio{}, nil, verr
			}
			gross = gross.Add(value)
			holdingValues[asset] = value
		}

		if !gross.IsPositive() {
			// Fresh vault with deposits only: park the whole NAV in the
			// base asset.
			if final.IsPositive() {
				target.Set(e.baseAsset, final)
				values[e.baseAsset] = final
				if _, perr := e.snap.priceOf(e.baseAsset, e.baseAsset, e.prices); perr != nil {
					return types.Portfolio{}, nil, perr
				}
			}
			return target, values, nil
		}

		for _, asset := range portfolio.Assets {
			value, ok := holdingValues[asset]
			if !ok {
				continue
			}
			targetValue := value.Mul(final).Quo(gross)
			price := e.snap.Prices[asset]
			shares, serr := utils.SharesFor(targetValue, price)
			if serr != nil {
				return types.Portfolio{}, nil, serr
			}
			if !shares.IsPositive() {
				continue
			}
			target.Set(asset, shares)
			tradable, verr := utils.ValueOf(shares, price)
			if verr != nil {
				return types.Portfolio{}, nil, verr
			}
			values[asset] = tradable
		}
		return target, values, nil

	default:
		return types.Portfolio{}, nil, err
	}
}

// stepBuildOrders nets the aggregate initial values against the aggregate
// target values per token. Each token nets to exactly one of a sell or a
// buy, never both; the base asset is never traded, it is the unit every
// other leg settles in.
func (e *Engine) stepBuildOrders() error {
	if e.estPhase != types.BuildingOrders {
		return ErrUnexpectedPhase
	}

	for _, asset := range e.snap.TokenList {
		if asset == e.baseAsset {
			continue
		}
		initial := e.snap.initialValueOf(asset)
		target := e.snap.targetValueOf(asset)
		price := e.snap.Prices[asset]

		switch {
		case target.LT(initial):
			shares, err := utils.SharesFor(initial.Sub(target), price)
			if err != nil {
				return fmt.Errorf("building sell order for %s: %w", asset, err)
			}
			if shares.IsPositive() {
				e.snap.SellOrders[asset] = shares
			}
		case target.GT(initial):
			shares, err := utils.SharesFor(target.Sub(initial), price)
			if err != nil {
				return fmt.Errorf("building buy order for %s: %w", asset, err)
			}
			if shares.IsPositive() {
				e.snap.BuyOrders[asset] = shares
			}
		}
	}

	e.report.SellOrders = copyOrders(e.snap.SellOrders)
	e.report.BuyOrders = copyOrders(e.snap.BuyOrders)

	e.estPhase = types.EstimationIdle
	e.execPhase = types.SellingLeg
	e.tokenCursor = 0
	e.deltaAcc = sdkmath.ZeroInt()

	e.logger.Info().
		Str("trace_id", e.snap.TraceID).
		Int("sell_orders", len(e.snap.SellOrders)).
		Int("buy_orders", len(e.snap.BuyOrders)).
		Msg("Orders built, handing off to execution")
	return nil
}

func copyOrders(orders map[types.AssetID]sdkmath.Int) map[types.AssetID]sdkmath.Int {
	out := make(map[types.AssetID]sdkmath.Int, len(orders))
	for asset, amount := range orders {
		out[asset] = amount
	}
	return out
}
