// ./internal/state/analytics.go
package state

import (
	"fmt"
	"time"
)

// EngineSummary aggregates the epoch history for the ops dashboard.
type EngineSummary struct {
	TotalEpochs         int        `json:"total_epochs"`
	LatestEpoch         uint64     `json:"latest_epoch"`
	LatestAggregateNAV  string     `json:"latest_aggregate_nav"`
	LatestCompletedAt   *time.Time `json:"latest_completed_at,omitempty"`
	TotalProtocolFees   string     `json:"total_protocol_fees"`
	TotalCuratorFees    string     `json:"total_curator_fees"`
	TotalBufferTopUps   string     `json:"total_buffer_top_ups"`
	NetExecutionDelta   string     `json:"net_execution_delta"`
	AvgEpochDurationSec float64    `json:"avg_epoch_duration_seconds"`
}

// GetEngineSummary computes aggregate statistics over all persisted epochs.
func GetEngineSummary() (*EngineSummary, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT
			COUNT(*),
			COALESCE(MAX(epoch_number), 0),
			COALESCE(SUM(protocol_fees), 0)::TEXT,
			COALESCE(SUM(curator_fees), 0)::TEXT,
			COALESCE(SUM(buffer_top_up), 0)::TEXT,
			COALESCE(SUM(execution_delta), 0)::TEXT,
			COALESCE(AVG(EXTRACT(EPOCH FROM (completed_at - started_at))), 0)
		FROM epoch_reports;
	`
	summary := &EngineSummary{}
	err := DB.QueryRow(query).Scan(
		&summary.TotalEpochs,
		&summary.LatestEpoch,
		&summary.TotalProtocolFees,
		&summary.TotalCuratorFees,
		&summary.TotalBufferTopUps,
		&summary.NetExecutionDelta,
		&summary.AvgEpochDurationSec,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute engine summary: %w", err)
	}

	if summary.TotalEpochs > 0 {
		latestQuery := `
			SELECT aggregate_nav::TEXT, completed_at
			FROM epoch_reports
			ORDER BY epoch_number DESC
			LIMIT 1;
		`
		var completedAt time.Time
		if err := DB.QueryRow(latestQuery).Scan(&summary.LatestAggregateNAV, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to read latest epoch report: %w", err)
		}
		summary.LatestCompletedAt = &completedAt
	} else {
		summary.LatestAggregateNAV = "0"
	}

	return summary, nil
}
