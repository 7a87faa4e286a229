/*

This file contains the solvency buffer: a single base-unit balance held
outside any vault that absorbs the gap between estimated and realized
execution amounts. The estimation machine only ever tops it up toward the
target ratio; execution applies the signed realized-minus-estimated delta;
the owner may withdraw explicitly.

*/

package engine

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/OrionFinanceAI/orion-engine/internal/logger"
)

// Buffer is the shared slippage reserve.
type Buffer struct {
	logger  zerolog.Logger
	owner   string
	balance sdkmath.Int
}

// NewBuffer returns an empty buffer owned by the given party.
func NewBuffer(owner string) *Buffer {
	return &Buffer{
		logger:  logger.GetForComponent("solvency_buffer"),
		owner:   owner,
		balance: sdkmath.ZeroInt(),
	}
}

// Balance returns the current buffer balance.
func (b *Buffer) Balance() sdkmath.Int {
	return b.balance
}

// Credit adds the allocated top-up sum collected from vaults.
func (b *Buffer) Credit(amount sdkmath.Int) {
	if amount.IsNil() || !amount.IsPositive() {
		return
	}
	b.balance = b.balance.Add(amount)
	b.logger.Info().Str("credited", amount.String()).Str("balance", b.balance.String()).Msg("Buffer topped up")
}

// ApplyDelta applies the signed execution delta accumulated over a
// sell/buy cycle. A loss larger than the balance clamps to zero; the
// uncovered remainder is logged, since it means the buffer target ratio
// is set too low for the observed slippage.
func (b *Buffer) ApplyDelta(delta sdkmath.Int) {
	if delta.IsNil() || delta.IsZero() {
		return
	}
	next := b.balance.Add(delta)
	if next.IsNegative() {
		b.logger.Error().
			Str("delta", delta.String()).
			Str("uncovered", next.Neg().String()).
			Msg("Execution delta exceeds buffer, clamping to zero")
		next = sdkmath.ZeroInt()
	}
	b.balance = next
	b.logger.Info().Str("delta", delta.String()).Str("balance", b.balance.String()).Msg("Execution delta applied to buffer")
}

// Withdraw removes funds from the buffer. Only the owner may withdraw,
// and never more than the balance.
func (b *Buffer) Withdraw(caller string, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("withdraw amount must be positive")
	}
	if caller != b.owner {
		return fmt.Errorf("%w: %s is not the buffer owner", ErrUnauthorized, caller)
	}
	if amount.GT(b.balance) {
		return fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientBuffer, b.balance, amount)
	}
	b.balance = b.balance.Sub(amount)
	b.logger.Warn().Str("withdrawn", amount.String()).Str("balance", b.balance.String()).Msg("Buffer withdrawal")
	return nil
}
