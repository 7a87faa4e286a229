/*

This file contains the transparent vault: one pool of depositor capital
under one curator. It owns the share ledger, the asynchronous deposit and
redeem queues, the curator intent and the live portfolio. Between epochs
totalAssets and the portfolio are frozen; the execution machine alone
rewrites them, together, at settlement.

*/

package vault

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/OrionFinanceAI/orion-engine/internal/logger"
	"github.com/OrionFinanceAI/orion-engine/internal/types"
	"github.com/OrionFinanceAI/orion-engine/internal/utils"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidVaultConfig    = errors.New("vault configuration is invalid")
	ErrUnauthorized          = errors.New("caller is not authorized")
	ErrZeroAmount            = errors.New("amount must be positive")
	ErrNothingQueued         = errors.New("no pending request for caller")
	ErrInsufficientQueued    = errors.New("pending request smaller than requested amount")
	ErrInsufficientShares    = errors.New("share balance smaller than requested amount")
	ErrInsufficientClaimable = errors.New("claimable balance smaller than requested amount")
	ErrInsufficientFees      = errors.New("pending curator fees smaller than requested amount")
	ErrProtocolNotIdle       = errors.New("protocol is not idle")
	ErrIntentUnavailable     = errors.New("no readable curator intent")
	ErrIntentWeightSum       = errors.New("intent weights must sum to exactly 100%")
	ErrAssetNotWhitelisted   = errors.New("asset is not on the vault whitelist")
	ErrInvalidNAV            = errors.New("NAV figure is invalid")
)

// Config describes a vault at creation time. Whitelist and fee model are
// fixed for the vault's lifetime; deployment and admin storage are
// external concerns.
type Config struct {
	ID             string
	Curator        string
	BaseAsset      types.AssetID
	Whitelist      []types.AssetID
	FeeModel       types.FeeModel
	DecimalsOffset uint8
	// Idle gates depositor cancellations on global idleness. A nil checker
	// means always idle (library and test use).
	Idle IdleChecker
}

// TransparentVault is the plaintext-intent vault implementation.
type TransparentVault struct {
	mu     sync.Mutex
	logger zerolog.Logger

	id             string
	curator        string
	baseAsset      types.AssetID
	whitelist      map[types.AssetID]struct{}
	decimalsOffset uint8
	idle           IdleChecker

	totalAssets   sdkmath.Int
	totalShares   sdkmath.Int
	shareBalances map[string]sdkmath.Int

	depositQueue *requestQueue // base units
	redeemQueue  *requestQueue // shares
	claimable    map[string]sdkmath.Int

	intent    types.Intent
	hasIntent bool
	portfolio types.Portfolio

	fees               types.FeeModel
	pendingCuratorFees sdkmath.Int
	lastSharePrice     sdkmath.LegacyDec
}

// NewTransparentVault validates the config and returns an empty vault.
func NewTransparentVault(cfg Config) (*TransparentVault, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("%w: id cannot be empty", ErrInvalidVaultConfig)
	}
	if cfg.Curator == "" {
		return nil, fmt.Errorf("%w: curator cannot be empty", ErrInvalidVaultConfig)
	}
	if cfg.BaseAsset == "" {
		return nil, fmt.Errorf("%w: base asset cannot be empty", ErrInvalidVaultConfig)
	}
	if len(cfg.Whitelist) == 0 {
		return nil, fmt.Errorf("%w: whitelist cannot be empty", ErrInvalidVaultConfig)
	}

	whitelist := make(map[types.AssetID]struct{}, len(cfg.Whitelist))
	for _, asset := range cfg.Whitelist {
		whitelist[asset] = struct{}{}
	}
	whitelist[cfg.BaseAsset] = struct{}{}

	fees := cfg.FeeModel
	if fees.PerformanceRate.IsNil() {
		fees.PerformanceRate = sdkmath.LegacyZeroDec()
	}
	if fees.ManagementRate.IsNil() {
		fees.ManagementRate = sdkmath.LegacyZeroDec()
	}
	if fees.HurdleRate.IsNil() {
		fees.HurdleRate = sdkmath.LegacyZeroDec()
	}
	if fees.HighWaterMark.IsNil() {
		fees.HighWaterMark = sdkmath.LegacyOneDec()
	}
	if fees.PerformanceRate.IsNegative() || fees.ManagementRate.IsNegative() || fees.HurdleRate.IsNegative() {
		return nil, fmt.Errorf("%w: fee rates cannot be negative", ErrInvalidVaultConfig)
	}

	return &TransparentVault{
		logger:         logger.GetForComponent("vault").With().Str("vault_id", cfg.ID).Logger(),
		id:             cfg.ID,
		curator:        cfg.Curator,
		baseAsset:      cfg.BaseAsset,
		whitelist:      whitelist,
		decimalsOffset: cfg.DecimalsOffset,
		idle:           cfg.Idle,
		totalAssets:    sdkmath.ZeroInt(),
		totalShares:    sdkmath.ZeroInt(),
		shareBalances:  make(map[string]sdkmath.Int),
		depositQueue:   newRequestQueue(),
		redeemQueue:    newRequestQueue(),
		claimable:      make(map[string]sdkmath.Int),
		portfolio:      types.NewPortfolio(),
		fees:           fees,
		pendingCuratorFees: sdkmath.ZeroInt(),
		lastSharePrice:     sdkmath.LegacyOneDec(),
	}, nil
}

// ID implements Vault.
func (v *TransparentVault) ID() string { return v.id }

// BaseAsset returns the vault's base unit asset.
func (v *TransparentVault) BaseAsset() types.AssetID { return v.baseAsset }

// TotalAssets implements Vault.
func (v *TransparentVault) TotalAssets() sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalAssets
}

// TotalShares implements Vault.
func (v *TransparentVault) TotalShares() sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalShares
}

// GetPortfolio implements Vault.
func (v *TransparentVault) GetPortfolio() types.Portfolio {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.portfolio.Clone()
}

// GetIntent implements Vault.
func (v *TransparentVault) GetIntent() (types.Intent, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.hasIntent {
		return types.Intent{}, ErrIntentUnavailable
	}
	return v.intent.Clone(), nil
}

// PendingDeposit implements Vault.
func (v *TransparentVault) PendingDeposit() sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.depositQueue.total
}

// PendingRedeem implements Vault.
func (v *TransparentVault) PendingRedeem() sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.redeemQueue.total
}

// ShareBalance returns a depositor's settled share balance.
func (v *TransparentVault) ShareBalance(depositor string) sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if bal, ok := v.shareBalances[depositor]; ok {
		return bal
	}
	return sdkmath.ZeroInt()
}

// ClaimableAssets returns a depositor's settled, withdrawable base units.
func (v *TransparentVault) ClaimableAssets(depositor string) sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if bal, ok := v.claimable[depositor]; ok {
		return bal
	}
	return sdkmath.ZeroInt()
}

// PendingCuratorFees returns the curator's accrued claimable fee balance.
func (v *TransparentVault) PendingCuratorFees() sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pendingCuratorFees
}

// HighWaterMark returns the stored high-water mark share price.
func (v *TransparentVault) HighWaterMark() sdkmath.LegacyDec {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fees.HighWaterMark
}

// RequestDeposit queues base units for settlement at the next epoch.
func (v *TransparentVault) RequestDeposit(depositor string, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return ErrZeroAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.depositQueue.add(depositor, amount)
	v.logger.Debug().Str("depositor", depositor).Str("amount", amount.String()).Msg("Deposit queued")
	return nil
}

// RequestRedeem queues shares for settlement at the next epoch. The shares
// stay in the depositor's balance until settlement burns them, so the
// total queued amount may never exceed the balance.
func (v *TransparentVault) RequestRedeem(depositor string, shares sdkmath.Int) error {
	if shares.IsNil() || !shares.IsPositive() {
		return ErrZeroAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	balance := sdkmath.ZeroInt()
	if bal, ok := v.shareBalances[depositor]; ok {
		balance = bal
	}
	queued := v.redeemQueue.pending(depositor)
	if queued.Add(shares).GT(balance) {
		return fmt.Errorf("%w: balance %s, queued %s, requested %s",
			ErrInsufficientShares, balance, queued, shares)
	}
	v.redeemQueue.add(depositor, shares)
	v.logger.Debug().Str("depositor", depositor).Str("shares", shares.String()).Msg("Redeem queued")
	return nil
}

// CancelDeposit removes queued base units. Allowed only while the whole
// protocol is idle. The idleness check runs before the vault lock is
// taken; the engine holds its own lock while calling into vaults.
func (v *TransparentVault) CancelDeposit(depositor string, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return ErrZeroAmount
	}
	if err := v.requireIdle(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.depositQueue.reduce(depositor, amount)
}

// CancelRedeem removes queued shares. Allowed only while the whole
// protocol is idle.
func (v *TransparentVault) CancelRedeem(depositor string, shares sdkmath.Int) error {
	if shares.IsNil() || !shares.IsPositive() {
		return ErrZeroAmount
	}
	if err := v.requireIdle(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.redeemQueue.reduce(depositor, shares)
}

// ClaimRedeemedAssets withdraws settled redemption proceeds.
func (v *TransparentVault) ClaimRedeemedAssets(depositor string, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return ErrZeroAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	balance, ok := v.claimable[depositor]
	if !ok || amount.GT(balance) {
		return fmt.Errorf("%w: %s", ErrInsufficientClaimable, depositor)
	}
	v.claimable[depositor] = balance.Sub(amount)
	return nil
}

// ClaimCuratorFees withdraws accrued curator fees. Only the curator may
// claim.
func (v *TransparentVault) ClaimCuratorFees(caller string, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return ErrZeroAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.curator {
		return fmt.Errorf("%w: %s is not the curator", ErrUnauthorized, caller)
	}
	if amount.GT(v.pendingCuratorFees) {
		return fmt.Errorf("%w: pending %s, requested %s", ErrInsufficientFees, v.pendingCuratorFees, amount)
	}
	v.pendingCuratorFees = v.pendingCuratorFees.Sub(amount)
	return nil
}

// SubmitIntent validates and replaces the curator intent wholesale. A
// single invalid weight or non-whitelisted asset rejects the whole
// submission without touching the live intent.
func (v *TransparentVault) SubmitIntent(caller string, intent types.Intent) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.curator {
		return fmt.Errorf("%w: %s is not the curator", ErrUnauthorized, caller)
	}
	if err := v.validateIntent(intent); err != nil {
		return err
	}
	v.intent = intent.Clone()
	v.hasIntent = true
	v.logger.Info().Int("assets", len(intent.Assets)).Msg("Curator intent replaced")
	return nil
}

func (v *TransparentVault) validateIntent(intent types.Intent) error {
	for _, asset := range intent.Assets {
		weight := intent.Weights[asset]
		if weight.IsNil() || weight.IsNegative() {
			return fmt.Errorf("%w: weight for %s", ErrIntentWeightSum, asset)
		}
		if _, ok := v.whitelist[asset]; !ok {
			return fmt.Errorf("%w: %s", ErrAssetNotWhitelisted, asset)
		}
	}
	if !intent.WeightSum().Equal(types.OneHundredPercent()) {
		return fmt.Errorf("%w: got %s", ErrIntentWeightSum, intent.WeightSum())
	}
	return nil
}

// AccrueCuratorFees implements Vault. Called by the estimation machine
// during preprocessing, after the protocol revenue share has been skimmed.
func (v *TransparentVault) AccrueCuratorFees(amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return ErrZeroAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pendingCuratorFees = v.pendingCuratorFees.Add(amount)
	return nil
}

// ConvertToShares implements Vault.
func (v *TransparentVault) ConvertToShares(assets, pitTotalAssets sdkmath.Int) (sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return utils.ConvertToShares(assets, v.totalShares, pitTotalAssets, v.decimalsOffset)
}

// ConvertToAssets implements Vault.
func (v *TransparentVault) ConvertToAssets(shares, pitTotalAssets sdkmath.Int) (sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return utils.ConvertToAssets(shares, v.totalShares, pitTotalAssets, v.decimalsOffset)
}

func (v *TransparentVault) requireIdle() error {
	if v.idle != nil && !v.idle.IsIdle() {
		return ErrProtocolNotIdle
	}
	return nil
}
