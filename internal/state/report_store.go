// ./internal/state/report_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"

	"github.com/OrionFinanceAI/orion-engine/internal/types"
)

// SaveEpochReport saves a completed epoch report to the database.
func SaveEpochReport(report types.EpochReport) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	sellOrdersJSON, err := json.Marshal(report.SellOrders)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal sell_orders: %w", err)
	}
	buyOrdersJSON, err := json.Marshal(report.BuyOrders)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal buy_orders: %w", err)
	}

	query := `
		INSERT INTO epoch_reports (
			epoch_number, trace_id, started_at, completed_at, vault_ids,
			aggregate_nav, sell_orders, buy_orders,
			buffer_before, buffer_top_up, execution_delta, buffer_after,
			protocol_fees, curator_fees
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING report_id;
	`

	var reportID int64
	err = DB.QueryRow(
		query,
		report.EpochNumber, report.TraceID, report.StartedAt, report.CompletedAt, pq.Array(report.VaultIDs),
		report.AggregateNAV.String(), sellOrdersJSON, buyOrdersJSON,
		report.BufferBefore.String(), report.BufferTopUp.String(), report.ExecutionDelta.String(), report.BufferAfter.String(),
		report.ProtocolFees.String(), report.CuratorFees.String(),
	).Scan(&reportID)

	if err != nil {
		return 0, fmt.Errorf("failed to save epoch report: %w", err)
	}

	log.Info().
		Int64("report_id", reportID).
		Uint64("epoch_number", report.EpochNumber).
		Str("aggregate_nav", report.AggregateNAV.String()).
		Msg("Epoch report saved to database")

	return reportID, nil
}

// GetRecentEpochReports returns the most recent epoch reports, newest first.
func GetRecentEpochReports(limit int) ([]types.EpochReport, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT epoch_number, trace_id, started_at, completed_at, vault_ids,
		       aggregate_nav, sell_orders, buy_orders,
		       buffer_before, buffer_top_up, execution_delta, buffer_after,
		       protocol_fees, curator_fees
		FROM epoch_reports
		ORDER BY epoch_number DESC
		LIMIT $1;
	`
	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query epoch reports: %w", err)
	}
	defer rows.Close()

	reports := make([]types.EpochReport, 0, limit)
	for rows.Next() {
		report, err := scanEpochReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate epoch reports: %w", err)
	}
	return reports, nil
}

// GetEpochReportByNumber returns the report for a specific epoch.
func GetEpochReportByNumber(epochNumber uint64) (*types.EpochReport, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT epoch_number, trace_id, started_at, completed_at, vault_ids,
		       aggregate_nav, sell_orders, buy_orders,
		       buffer_before, buffer_top_up, execution_delta, buffer_after,
		       protocol_fees, curator_fees
		FROM epoch_reports
		WHERE epoch_number = $1;
	`
	row := DB.QueryRow(query, epochNumber)
	report, err := scanEpochReport(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no report for epoch %d", epochNumber)
		}
		return nil, err
	}
	return &report, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEpochReport(row rowScanner) (types.EpochReport, error) {
	var (
		report         types.EpochReport
		vaultIDs       pq.StringArray
		aggregateNAV   string
		sellOrdersJSON []byte
		buyOrdersJSON  []byte
		bufferBefore   string
		bufferTopUp    string
		executionDelta string
		bufferAfter    string
		protocolFees   string
		curatorFees    string
	)

	err := row.Scan(
		&report.EpochNumber, &report.TraceID, &report.StartedAt, &report.CompletedAt, &vaultIDs,
		&aggregateNAV, &sellOrdersJSON, &buyOrdersJSON,
		&bufferBefore, &bufferTopUp, &executionDelta, &bufferAfter,
		&protocolFees, &curatorFees,
	)
	if err != nil {
		return types.EpochReport{}, err
	}

	report.VaultIDs = []string(vaultIDs)
	if err := json.Unmarshal(sellOrdersJSON, &report.SellOrders); err != nil {
		return types.EpochReport{}, fmt.Errorf("failed to unmarshal sell_orders: %w", err)
	}
	if err := json.Unmarshal(buyOrdersJSON, &report.BuyOrders); err != nil {
		return types.EpochReport{}, fmt.Errorf("failed to unmarshal buy_orders: %w", err)
	}

	for _, field := range []struct {
		raw  string
		dest *sdkmath.Int
	}{
		{aggregateNAV, &report.AggregateNAV},
		{bufferBefore, &report.BufferBefore},
		{bufferTopUp, &report.BufferTopUp},
		{executionDelta, &report.ExecutionDelta},
		{bufferAfter, &report.BufferAfter},
		{protocolFees, &report.ProtocolFees},
		{curatorFees, &report.CuratorFees},
	} {
		value, ok := sdkmath.NewIntFromString(field.raw)
		if !ok {
			return types.EpochReport{}, fmt.Errorf("invalid integer column value: %q", field.raw)
		}
		*field.dest = value
	}

	return report, nil
}
