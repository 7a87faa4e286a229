/*

This file contains the engine facade: vault registry, the poll-driven
control surface (CheckAdvance / Advance), the global idleness gate and the
idle-only administrative surface. The engine is a cooperative, externally
polled pair of state machines; a single mutex stands in for the sequential
transaction ordering the on-chain platform provides, so two concurrent
advance attempts can never interleave.

*/

package engine

import (
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/OrionFinanceAI/orion-engine/internal/execution"
	"github.com/OrionFinanceAI/orion-engine/internal/logger"
	"github.com/OrionFinanceAI/orion-engine/internal/pricing"
	"github.com/OrionFinanceAI/orion-engine/internal/types"
	"github.com/OrionFinanceAI/orion-engine/internal/vault"
)

// Config holds the dependencies for creating a new Engine instance.
type Config struct {
	Params    types.EngineParameters
	BaseAsset types.AssetID
	Prices    pricing.Source
	Adapters  *execution.Registry

	// Owner may claim protocol fees and withdraw from the buffer.
	Owner string
	// AdminToken authorizes the privileged force-reset recovery path.
	AdminToken string

	// Clock overrides time.Now, for tests. Optional.
	Clock func() time.Time
	// ReportSink receives the report of every completed epoch. Optional.
	ReportSink func(types.EpochReport)
	// InitialEpoch resumes numbering from a persisted counter. Optional.
	InitialEpoch uint64
}

// Engine orchestrates the estimation and execution machines over the
// registered vault set.
type Engine struct {
	mu     sync.Mutex
	logger zerolog.Logger

	params     types.EngineParameters
	baseAsset  types.AssetID
	prices     pricing.Source
	adapters   *execution.Registry
	owner      string
	adminToken string
	clock      func() time.Time
	reportSink func(types.EpochReport)

	vaults     []vault.Vault // registration order drives iteration order
	vaultIndex map[string]vault.Vault

	buffer       *Buffer
	protocolFees sdkmath.Int

	snap      *Snapshot
	estPhase  types.EstimationPhase
	estCursor int

	execPhase   types.ExecutionPhase
	execCursor  int
	tokenCursor int
	deltaAcc    sdkmath.Int

	epochNumber    uint64
	lastEpochStart time.Time
	report         types.EpochReport
}

// NewEngine validates the config and returns an idle engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEngineConfig, err)
	}
	if cfg.BaseAsset == "" {
		return nil, fmt.Errorf("%w: base asset cannot be empty", ErrInvalidEngineConfig)
	}
	if cfg.Prices == nil {
		return nil, fmt.Errorf("%w: price source cannot be nil", ErrInvalidEngineConfig)
	}
	if cfg.Adapters == nil {
		return nil, fmt.Errorf("%w: adapter registry cannot be nil", ErrInvalidEngineConfig)
	}
	if cfg.Owner == "" {
		return nil, fmt.Errorf("%w: owner cannot be empty", ErrInvalidEngineConfig)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		logger:       logger.GetForComponent("epoch_engine"),
		params:       cfg.Params,
		baseAsset:    cfg.BaseAsset,
		prices:       cfg.Prices,
		adapters:     cfg.Adapters,
		owner:        cfg.Owner,
		adminToken:   cfg.AdminToken,
		clock:        clock,
		reportSink:   cfg.ReportSink,
		vaults:       make([]vault.Vault, 0),
		vaultIndex:   make(map[string]vault.Vault),
		buffer:       NewBuffer(cfg.Owner),
		protocolFees: sdkmath.ZeroInt(),
		deltaAcc:     sdkmath.ZeroInt(),
		epochNumber:  cfg.InitialEpoch,
	}, nil
}

// RegisterVault adds a vault to the managed set. Only allowed while idle.
func (e *Engine) RegisterVault(v vault.Vault) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.isIdleLocked() {
		return ErrNotIdle
	}
	if _, exists := e.vaultIndex[v.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrVaultAlreadyRegistered, v.ID())
	}
	e.vaults = append(e.vaults, v)
	e.vaultIndex[v.ID()] = v
	e.logger.Info().Str("vault_id", v.ID()).Int("total", len(e.vaults)).Msg("Vault registered")
	return nil
}

// IsIdle reports whether both machines are idle (no epoch in flight). It
// also implements vault.IdleChecker for depositor cancellation gating.
func (e *Engine) IsIdle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isIdleLocked()
}

func (e *Engine) isIdleLocked() bool {
	return e.estPhase == types.EstimationIdle && e.execPhase == types.ExecutionIdle
}

// CheckAdvance is the read-only upkeep check: it reports whether a call
// to Advance would do work, and why.
func (e *Engine) CheckAdvance() (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.execPhase != types.ExecutionIdle {
		return true, "execution phase pending: " + e.execPhase.String()
	}
	if e.estPhase != types.EstimationIdle {
		return true, "estimation phase pending: " + e.estPhase.String()
	}
	due := e.lastEpochStart.Add(e.params.EpochDuration)
	if !e.clock().Before(due) {
		return true, "epoch boundary elapsed"
	}
	return false, "epoch not due until " + due.UTC().Format(time.RFC3339)
}

// Advance executes exactly one bounded step of whichever machine is
// active, or opens a new epoch when both are idle and the boundary has
// elapsed. A rejected call leaves all state untouched.
func (e *Engine) Advance() error {
	e.mu.Lock()
	var completed *types.EpochReport
	err := e.step(&completed)
	e.mu.Unlock()

	if completed != nil && e.reportSink != nil {
		e.reportSink(*completed)
	}
	return err
}

func (e *Engine) step(completed **types.EpochReport) error {
	switch {
	case e.execPhase == types.SellingLeg:
		return e.stepSellingLeg()
	case e.execPhase == types.BuyingLeg:
		return e.stepBuyingLeg()
	case e.execPhase == types.ProcessVaultOperations:
		return e.stepProcessVaultOperations(completed)
	case e.estPhase == types.PreprocessingVaults:
		return e.stepPreprocessVaults()
	case e.estPhase == types.Buffering:
		return e.stepBuffering()
	case e.estPhase == types.PostprocessingVaults:
		return e.stepPostprocessVaults()
	case e.estPhase == types.BuildingOrders:
		return e.stepBuildOrders()
	default:
		return e.startEpoch()
	}
}

// StartEpoch opens a new epoch explicitly. Rejected unless both machines
// are idle and the boundary interval has elapsed.
func (e *Engine) StartEpoch() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startEpoch()
}

// ForceIdle is the privileged recovery path: it resets both machines to
// idle and drops the in-flight snapshot, bypassing the normal phase
// gating. Financial balances are left as they are.
func (e *Engine) ForceIdle(adminToken string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.adminToken == "" || adminToken != e.adminToken {
		return fmt.Errorf("%w: bad admin token", ErrUnauthorized)
	}
	e.logger.Warn().
		Str("estimation_phase", e.estPhase.String()).
		Str("execution_phase", e.execPhase.String()).
		Msg("Force reset: abandoning in-flight epoch")
	e.estPhase = types.EstimationIdle
	e.execPhase = types.ExecutionIdle
	e.estCursor = 0
	e.execCursor = 0
	e.tokenCursor = 0
	e.deltaAcc = sdkmath.ZeroInt()
	e.snap = nil
	return nil
}

// SetParameters replaces the engine parameters. Only allowed while idle.
func (e *Engine) SetParameters(p types.EngineParameters) error {
	if err := p.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.isIdleLocked() {
		return ErrNotIdle
	}
	e.params = p
	e.logger.Info().
		Dur("epoch_duration", p.EpochDuration).
		Int("minibatch_size", p.MinibatchSize).
		Str("buffer_target_ratio", p.BufferTargetRatio.String()).
		Msg("Engine parameters updated")
	return nil
}

// Parameters returns a copy of the current engine parameters.
func (e *Engine) Parameters() types.EngineParameters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// ProtocolFees returns the accrued protocol fee balance.
func (e *Engine) ProtocolFees() sdkmath.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.protocolFees
}

// ClaimProtocolFees withdraws accrued protocol fees. Only the owner may
// claim, and never more than the balance.
func (e *Engine) ClaimProtocolFees(caller string, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("claim amount must be positive")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.owner {
		return fmt.Errorf("%w: %s is not the owner", ErrUnauthorized, caller)
	}
	if amount.GT(e.protocolFees) {
		return fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientProtocolFee, e.protocolFees, amount)
	}
	e.protocolFees = e.protocolFees.Sub(amount)
	return nil
}

// BufferBalance returns the solvency buffer balance.
func (e *Engine) BufferBalance() sdkmath.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffer.Balance()
}

// WithdrawBuffer removes funds from the solvency buffer. Owner only.
func (e *Engine) WithdrawBuffer(caller string, amount sdkmath.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffer.Withdraw(caller, amount)
}

// EpochNumber returns the number of completed epochs.
func (e *Engine) EpochNumber() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epochNumber
}

// Status is a point-in-time view of the engine for the ops surface.
type Status struct {
	EpochNumber      uint64    `json:"epoch_number"`
	EstimationPhase  string    `json:"estimation_phase"`
	ExecutionPhase   string    `json:"execution_phase"`
	EstimationCursor int       `json:"estimation_cursor"`
	ExecutionCursor  int       `json:"execution_cursor"`
	VaultCount       int       `json:"vault_count"`
	EligibleVaults   int       `json:"eligible_vaults"`
	Idle             bool      `json:"idle"`
	TraceID          string    `json:"trace_id,omitempty"`
	LastEpochStart   time.Time `json:"last_epoch_start"`
	NextEpochDue     time.Time `json:"next_epoch_due"`
	BufferBalance    string    `json:"buffer_balance"`
	ProtocolFees     string    `json:"protocol_fees"`
}

// Status returns the current engine status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{
		EpochNumber:      e.epochNumber,
		EstimationPhase:  e.estPhase.String(),
		ExecutionPhase:   e.execPhase.String(),
		EstimationCursor: e.estCursor,
		ExecutionCursor:  e.execCursor,
		VaultCount:       len(e.vaults),
		Idle:             e.isIdleLocked(),
		LastEpochStart:   e.lastEpochStart,
		NextEpochDue:     e.lastEpochStart.Add(e.params.EpochDuration),
		BufferBalance:    e.buffer.Balance().String(),
		ProtocolFees:     e.protocolFees.String(),
	}
	if e.snap != nil {
		st.EligibleVaults = len(e.snap.EligibleVaults)
		st.TraceID = e.snap.TraceID
	}
	return st
}
