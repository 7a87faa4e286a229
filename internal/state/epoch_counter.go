/*

This file manages the persistent global epoch counter. The counter is
stored in the database so the daemon resumes at the right epoch number
across restarts.

*/

package state

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

// GetCurrentEpochNumber retrieves the current epoch number from the database
func GetCurrentEpochNumber() (uint64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	query := `SELECT current_epoch FROM epoch_counter WHERE id = 1;`

	var currentEpoch uint64
	row := DB.QueryRow(query)
	err := row.Scan(&currentEpoch)

	if err != nil {
		if err == sql.ErrNoRows {
			// Should not happen, EnsureSchema seeds the row
			log.Warn().Msg("No epoch counter row found, initializing to 0")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get current epoch number: %w", err)
	}

	log.Debug().Uint64("currentEpoch", currentEpoch).Msg("Retrieved current epoch number")
	return currentEpoch, nil
}

// SetEpochNumber writes the epoch counter after an epoch completes.
func SetEpochNumber(epochNumber uint64) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	updateQuery := `
		UPDATE epoch_counter
		SET current_epoch = $1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1;`

	result, err := DB.Exec(updateQuery, epochNumber)
	if err != nil {
		return fmt.Errorf("failed to set epoch number to %d: %w", epochNumber, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no rows updated when setting epoch number")
	}

	log.Debug().Uint64("epochNumber", epochNumber).Msg("Updated epoch counter")
	return nil
}
