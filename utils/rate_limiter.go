package utils

import (
	"context"
	"database/sql"
	"fmt"
)

// GetDailyMailCount queries the database for the number of tracked emails
// sent today (UTC), backing the daily send limit.
func GetDailyMailCount(ctx context.Context, db *sql.DB) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM tracking_records
		WHERE created_at >= date_trunc('day', now() AT TIME ZONE 'UTC')
	`
	err := db.QueryRowContext(ctx, query).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get daily mail count: %w", err)
	}
	return count, nil
}

// GetStatusDistribution retrieves the distribution of record statuses
// (sent/opened/bounced) across today's sends.
func GetStatusDistribution(ctx context.Context, db *sql.DB) (map[string]int, error) {
	statusCounts := map[string]int{"sent": 0, "opened": 0, "bounced": 0}
	query := `
		SELECT status, COUNT(*) FROM tracking_records
		WHERE created_at >= date_trunc('day', now() AT TIME ZONE 'UTC')
		GROUP BY status
	`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get status distribution: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status distribution row: %w", err)
		}
		statusCounts[status] = count
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over status distribution rows: %w", err)
	}
	return statusCounts, nil
}
