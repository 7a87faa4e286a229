/*

This file contains the settlement entry points driven by the execution
machine: redeem fulfillment, deposit fulfillment and the final state
write. Conversions inside one call all use the share supply captured at
the start of the call together with the supplied point-in-time NAV, so
every request in a queue settles at the same price.

*/

package vault

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/OrionFinanceAI/orion-engine/internal/types"
	"github.com/OrionFinanceAI/orion-engine/internal/utils"
)

// FulfillRedeem implements Vault. Every queued redeem is priced at
// basisNAV against the pre-burn supply, the shares are burned and the
// proceeds credited to the depositor's claimable balance. The queue is
// fully drained.
func (v *TransparentVault) FulfillRedeem(basisNAV sdkmath.Int) (sdkmath.Int, error) {
	if basisNAV.IsNil() || basisNAV.IsNegative() {
		return sdkmath.ZeroInt(), ErrInvalidNAV
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	supply := v.totalShares
	requests := v.redeemQueue.len()
	paidOut := sdkmath.ZeroInt()
	burned := sdkmath.ZeroInt()

	err := v.redeemQueue.drain(func(who string, shares sdkmath.Int) error {
		assets, err := utils.ConvertToAssets(shares, supply, basisNAV, v.decimalsOffset)
		if err != nil {
			return err
		}
		balance, ok := v.shareBalances[who]
		if !ok || shares.GT(balance) {
			return fmt.Errorf("%w: %s", ErrInsufficientShares, who)
		}
		v.shareBalances[who] = balance.Sub(shares)
		if existing, ok := v.claimable[who]; ok {
			v.claimable[who] = existing.Add(assets)
		} else {
			v.claimable[who] = assets
		}
		burned = burned.Add(shares)
		paidOut = paidOut.Add(assets)
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("redeem settlement failed: %w", err)
	}

	v.totalShares = v.totalShares.Sub(burned)
	if burned.IsPositive() {
		v.logger.Info().
			Int("requests", requests).
			Str("burned_shares", burned.String()).
			Str("paid_out", paidOut.String()).
			Str("basis_nav", basisNAV.String()).
			Msg("Redeem queue settled")
	}
	return paidOut, nil
}

// FulfillDeposit implements Vault. Every queued deposit is priced at
// basisNAV against the post-redeem supply and the minted shares credited
// to the depositor. The queue is fully drained.
func (v *TransparentVault) FulfillDeposit(basisNAV sdkmath.Int) (sdkmath.Int, error) {
	if basisNAV.IsNil() || basisNAV.IsNegative() {
		return sdkmath.ZeroInt(), ErrInvalidNAV
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	supply := v.totalShares
	requests := v.depositQueue.len()
	minted := sdkmath.ZeroInt()

	err := v.depositQueue.drain(func(who string, assets sdkmath.Int) error {
		shares, err := utils.ConvertToShares(assets, supply, basisNAV, v.decimalsOffset)
		if err != nil {
			return err
		}
		if existing, ok := v.shareBalances[who]; ok {
			v.shareBalances[who] = existing.Add(shares)
		} else {
			v.shareBalances[who] = shares
		}
		minted = minted.Add(shares)
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("deposit settlement failed: %w", err)
	}

	v.totalShares = v.totalShares.Add(minted)
	if minted.IsPositive() {
		v.logger.Info().
			Int("requests", requests).
			Str("minted_shares", minted.String()).
			Str("basis_nav", basisNAV.String()).
			Msg("Deposit queue settled")
	}
	return minted, nil
}

// UpdateVaultState implements Vault. The portfolio is replaced wholesale
// and totalAssets set to the final NAV; the high-water mark only ever
// moves up.
func (v *TransparentVault) UpdateVaultState(portfolio types.Portfolio, nav sdkmath.Int) error {
	if nav.IsNil() || nav.IsNegative() {
		return ErrInvalidNAV
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	v.portfolio = portfolio.Clone()
	v.totalAssets = nav

	if v.totalShares.IsPositive() {
		price := sdkmath.LegacyNewDecFromInt(nav).Quo(sdkmath.LegacyNewDecFromInt(v.totalShares))
		if price.GT(v.fees.HighWaterMark) {
			v.fees.HighWaterMark = price
		}
		v.lastSharePrice = price
	}

	v.logger.Info().
		Str("nav", nav.String()).
		Int("portfolio_assets", len(portfolio.Assets)).
		Str("high_water_mark", v.fees.HighWaterMark.String()).
		Msg("Vault state updated")
	return nil
}
