// ./internal/state/parameters_store.go
package state

import (
	"database/sql"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/OrionFinanceAI/orion-engine/internal/types"
)

// SaveEngineParameters saves a new version of engine parameters.
func SaveEngineParameters(params types.EngineParameters, configName string, version int, makeActive bool) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}
	if err := params.Validate(); err != nil {
		return 0, fmt.Errorf("refusing to persist invalid parameters: %w", err)
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback() // Rollback if error occurred
		}
	}()

	if makeActive {
		stmtDeactivate := `UPDATE engine_parameters SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`
		_, err = tx.Exec(stmtDeactivate, configName)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active parameters for %s: %w", configName, err)
		}
	}

	stmt := `
		INSERT INTO engine_parameters (
			version, config_name, is_active, activated_at, created_at,
			epoch_duration_seconds, minibatch_size,
			volume_fee_rate, revenue_share_rate, buffer_target_ratio, slippage_tolerance
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING params_id;`

	var paramsID int64
	currentTime := time.Now()
	err = tx.QueryRow(
		stmt,
		version, configName, makeActive, currentTime, currentTime,
		int64(params.EpochDuration.Seconds()), params.MinibatchSize,
		params.VolumeFeeRate.String(), params.RevenueShareRate.String(),
		params.BufferTargetRatio.String(), params.SlippageTolerance.String(),
	).Scan(&paramsID)

	if err != nil {
		return 0, fmt.Errorf("failed to insert engine parameters: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", version).
		Str("config", configName).
		Int64("params_id", paramsID).
		Bool("active", makeActive).
		Msg("Saved engine parameters")
	return paramsID, nil
}

// LoadActiveEngineParameters loads the currently active engine parameters.
// Returns sql.ErrNoRows wrapped when no active row exists for the config.
func LoadActiveEngineParameters(configName string) (*types.EngineParameters, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT epoch_duration_seconds, minibatch_size,
		       volume_fee_rate, revenue_share_rate, buffer_target_ratio, slippage_tolerance
		FROM engine_parameters
		WHERE config_name = $1 AND is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1;`

	var (
		epochDurationSeconds int64
		minibatchSize        int
		volumeFeeRate        string
		revenueShareRate     string
		bufferTargetRatio    string
		slippageTolerance    string
	)
	err := DB.QueryRow(query, configName).Scan(
		&epochDurationSeconds, &minibatchSize,
		&volumeFeeRate, &revenueShareRate, &bufferTargetRatio, &slippageTolerance,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no active engine parameters for config %s: %w", configName, err)
		}
		return nil, fmt.Errorf("failed to load engine parameters: %w", err)
	}

	params := types.EngineParameters{
		EpochDuration: time.Duration(epochDurationSeconds) * time.Second,
		MinibatchSize: minibatchSize,
	}
	for _, field := range []struct {
		raw  string
		dest *sdkmath.LegacyDec
	}{
		{volumeFeeRate, &params.VolumeFeeRate},
		{revenueShareRate, &params.RevenueShareRate},
		{bufferTargetRatio, &params.BufferTargetRatio},
		{slippageTolerance, &params.SlippageTolerance},
	} {
		value, derr := sdkmath.LegacyNewDecFromStr(field.raw)
		if derr != nil {
			return nil, fmt.Errorf("invalid decimal column value %q: %w", field.raw, derr)
		}
		*field.dest = value
	}

	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("persisted parameters failed validation: %w", err)
	}

	log.Debug().Str("config", configName).Msg("Loaded active engine parameters")
	return &params, nil
}
