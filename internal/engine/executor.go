/*

This file contains the execution machine: the sell leg, the buy leg and
vault settlement. Legs walk the epoch token list behind a cursor; a venue
failure leaves the cursor on the failed token so the next poll retries
exactly there, with every completed trade already behind it. The signed
difference between realized and estimated amounts accumulates across both
legs and hits the solvency buffer exactly once, at the end of the buy leg.

*/

package engine

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/OrionFinanceAI/orion-engine/internal/types"
	"github.com/OrionFinanceAI/orion-engine/internal/utils"
)

// stepSellingLeg executes the sell orders from the token cursor onward.
func (e *Engine) stepSellingLeg() error {
	if e.execPhase != types.SellingLeg {
		return ErrUnexpectedPhase
	}

	for i := e.tokenCursor; i < len(e.snap.TokenList); i++ {
		asset := e.snap.TokenList[i]
		order, ok := e.snap.SellOrders[asset]
		if asset == e.baseAsset || !ok || !order.IsPositive() {
			e.tokenCursor = i + 1
			continue
		}

		price := e.snap.Prices[asset]
		estimated, err := utils.ValueOf(order, price)
		if err != nil {
			return fmt.Errorf("selling %s: %w", asset, err)
		}
		adapter, err := e.adapters.Adapter(asset)
		if err != nil {
			return fmt.Errorf("selling %s: %w", asset, err)
		}
		realized, err := adapter.Sell(asset, order, estimated)
		if err != nil {
			e.logger.Warn().
				Str("trace_id", e.snap.TraceID).
				Str("asset", string(asset)).
				Err(err).
				Msg("Sell failed, will retry from this token")
			return fmt.Errorf("selling %s: %w", asset, err)
		}

		e.deltaAcc = e.deltaAcc.Add(realized.Sub(estimated))
		e.tokenCursor = i + 1

		e.logger.Debug().
			Str("trace_id", e.snap.TraceID).
			Str("asset", string(asset)).
			Str("shares", order.String()).
			Str("estimated", estimated.String()).
			Str("realized", realized.String()).
			Msg("Sell executed")
	}

	e.execPhase = types.BuyingLeg
	e.tokenCursor = 0
	e.logger.Info().Str("trace_id", e.snap.TraceID).Msg("Sell leg complete, moving to buy leg")
	return nil
}

// stepBuyingLeg executes the buy orders from the token cursor onward. Each
// buy carries a cost limit of the estimate plus the slippage tolerance;
// the adapter must refuse a worse fill. Once every buy is through, the
// accumulated execution delta is applied to the buffer.
func (e *Engine) stepBuyingLeg() error {
	if e.execPhase != types.BuyingLeg {
		return ErrUnexpectedPhase
	}

	limitFactor := sdkmath.LegacyOneDec().Add(e.params.SlippageTolerance)

	for i := e.tokenCursor; i < len(e.snap.TokenList); i++ {
		asset := e.snap.TokenList[i]
		order, ok := e.snap.BuyOrders[asset]
		if asset == e.baseAsset || !ok || !order.IsPositive() {
			e.tokenCursor = i + 1
			continue
		}

		price := e.snap.Prices[asset]
		estimated, err := utils.ValueOf(order, price)
		if err != nil {
			return fmt.Errorf("buying %s: %w", asset, err)
		}
		costLimit := limitFactor.MulInt(estimated).Ceil().TruncateInt()
		adapter, err := e.adapters.Adapter(asset)
		if err != nil {
			return fmt.Errorf("buying %s: %w", asset, err)
		}
		realized, err := adapter.Buy(asset, order, costLimit)
		if err != nil {
			e.logger.Warn().
				Str("trace_id", e.snap.TraceID).
				Str("asset", string(asset)).
				Err(err).
				Msg("Buy failed, will retry from this token")
			return fmt.Errorf("buying %s: %w", asset, err)
		}

		// A cheap buy leaves base units behind (positive delta), an
		// expensive one consumes buffer (negative delta).
		e.deltaAcc = e.deltaAcc.Add(estimated.Sub(realized))
		e.tokenCursor = i + 1

		e.logger.Debug().
			Str("trace_id", e.snap.TraceID).
			Str("asset", string(asset)).
			Str("shares", order.String()).
			Str("estimated", estimated.String()).
			Str("realized", realized.String()).
			Msg("Buy executed")
	}

	e.buffer.ApplyDelta(e.deltaAcc)
	e.report.ExecutionDelta = e.deltaAcc
	e.deltaAcc = sdkmath.ZeroInt()

	e.execPhase = types.ProcessVaultOperations
	e.execCursor = 0
	e.logger.Info().Str("trace_id", e.snap.TraceID).Msg("Buy leg complete, moving to vault settlement")
	return nil
}

// stepProcessVaultOperations settles one minibatch of vaults: redeems are
// fulfilled against the redeem basis, deposits against the deposit basis,
// then the target portfolio and final NAV are written back. The last
// settled vault closes the epoch and hands the report to the caller.
func (e *Engine) stepProcessVaultOperations(completed **types.EpochReport) error {
	if e.execPhase != types.ProcessVaultOperations {
		return ErrUnexpectedPhase
	}
	end := e.execCursor + e.params.MinibatchSize
	if end > len(e.snap.EligibleVaults) {
		end = len(e.snap.EligibleVaults)
	}

	for i := e.execCursor; i < end; i++ {
		v := e.vaultIndex[e.snap.EligibleVaults[i]]
		split := e.snap.VaultNAV[v.ID()]

		paidOut, err := v.FulfillRedeem(split.RedeemBasis)
		if err != nil {
			return fmt.Errorf("settling %s: %w", v.ID(), err)
		}
		minted, err := v.FulfillDeposit(split.DepositBasis)
		if err != nil {
			return fmt.Errorf("settling %s: %w", v.ID(), err)
		}
		if err := v.UpdateVaultState(e.snap.TargetPortfolios[v.ID()], split.Final); err != nil {
			return fmt.Errorf("settling %s: %w", v.ID(), err)
		}
		e.execCursor = i + 1

		e.logger.Debug().
			Str("vault_id", v.ID()).
			Str("redeem_paid", paidOut.String()).
			Str("shares_minted", minted.String()).
			Str("final_nav", split.Final.String()).
			Msg("Vault settled")
	}

	if e.execCursor == len(e.snap.EligibleVaults) {
		e.epochNumber++
		e.execPhase = types.ExecutionIdle
		e.report.CompletedAt = e.clock()
		e.report.BufferAfter = e.buffer.Balance()

		report := e.report
		*completed = &report

		e.logger.Info().
			Str("trace_id", e.snap.TraceID).
			Uint64("epoch", e.epochNumber).
			Str("aggregate_nav", report.AggregateNAV.String()).
			Str("execution_delta", report.ExecutionDelta.String()).
			Msg("Epoch complete")
		e.snap = nil
	}
	return nil
}
