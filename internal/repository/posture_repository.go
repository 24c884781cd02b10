package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jengzang/riskzone-engine/internal/models"
)

// CountEvents returns the number of non-archived events since the given time and how many
// of them are critical. An empty organizationID counts every organization.
func (r *RiskStore) CountEvents(ctx context.Context, organizationID string, since time.Time) (total, critical int, err error) {
	query := `
		SELECT COUNT(*),
			   COALESCE(SUM(CASE WHEN severity = ? THEN 1 ELSE 0 END), 0)
		FROM security_events
		WHERE archived = ? AND event_date >= ?
	`
	args := []interface{}{models.SeverityCritical, false, since.UTC()}
	if organizationID != "" {
		query += " AND organization_id = ?"
		args = append(args, organizationID)
	}

	if err := r.db.QueryRowContext(ctx, r.q(query), args...).Scan(&total, &critical); err != nil {
		return 0, 0, fmt.Errorf("failed to count events: %w", err)
	}
	return total, critical, nil
}

// LastCriticalEventDate returns the date of the latest non-archived critical event, or nil
func (r *RiskStore) LastCriticalEventDate(ctx context.Context, organizationID string) (*time.Time, error) {
	query := `
		SELECT event_date FROM security_events
		WHERE archived = ? AND severity = ?
	`
	args := []interface{}{false, models.SeverityCritical}
	if organizationID != "" {
		query += " AND organization_id = ?"
		args = append(args, organizationID)
	}
	query += " ORDER BY event_date DESC LIMIT 1"

	var last time.Time
	err := r.db.QueryRowContext(ctx, r.q(query), args...).Scan(&last)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last critical event: %w", err)
	}
	return &last, nil
}

// CountZonesByRiskLevel returns how many zones sit at each risk level
func (r *RiskStore) CountZonesByRiskLevel(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT risk_level, COUNT(*) FROM risk_zone_scores GROUP BY risk_level`)
	if err != nil {
		return nil, fmt.Errorf("failed to count zones: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			level string
			n     int
		)
		if err := rows.Scan(&level, &n); err != nil {
			return nil, fmt.Errorf("failed to scan zone count: %w", err)
		}
		counts[level] = n
	}
	return counts, rows.Err()
}
