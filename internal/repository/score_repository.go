package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jengzang/riskzone-engine/internal/database"
	"github.com/jengzang/riskzone-engine/internal/models"
)

const scoreColumns = `cell_id, resolution, base_score, manual_adjustment, final_score, risk_level,
	price_multiplier, event_count, last_event_date, last_calculated_at`

// GetScore returns the current score of a cell, or nil when it was never calculated
func (r *RiskStore) GetScore(ctx context.Context, cellID string) (*models.RiskZoneScore, error) {
	query := `SELECT ` + scoreColumns + ` FROM risk_zone_scores WHERE cell_id = ?`

	score, err := scanScore(r.db.QueryRowContext(ctx, r.q(query), cellID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return score, err
}

// ListScores returns zone scores ordered by final score, highest first
func (r *RiskStore) ListScores(ctx context.Context, filter models.ScoreFilter) ([]models.RiskZoneScore, error) {
	query := `SELECT ` + scoreColumns + ` FROM risk_zone_scores WHERE 1=1`

	args := []interface{}{}
	if filter.RiskLevel != "" {
		query += " AND risk_level = ?"
		args = append(args, filter.RiskLevel)
	}
	if filter.MinScore > 0 {
		query += " AND final_score >= ?"
		args = append(args, filter.MinScore)
	}

	query += " ORDER BY final_score DESC, cell_id LIMIT ? OFFSET ?"
	args = append(args, clampLimit(filter.Limit), max(filter.Offset, 0))

	rows, err := r.db.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scores: %w", err)
	}
	defer rows.Close()

	scores := []models.RiskZoneScore{}
	for rows.Next() {
		s, err := scanScore(rows)
		if err != nil {
			return nil, err
		}
		scores = append(scores, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scores: %w", err)
	}
	return scores, nil
}

// ListCellIDs returns every cell that has a score row
func (r *RiskStore) ListCellIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT cell_id FROM risk_zone_scores ORDER BY cell_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cell ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan cell id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertScore writes the current score row of a cell
func (r *RiskStore) UpsertScore(ctx context.Context, score *models.RiskZoneScore) error {
	return r.upsertScore(ctx, r.db, score)
}

// AppendHistory inserts an audit entry; history is never updated or deleted
func (r *RiskStore) AppendHistory(ctx context.Context, entry *models.RiskZoneHistory) error {
	return r.appendHistory(ctx, r.db, entry)
}

// CommitRecalculation upserts the score and appends its history entry in one transaction.
// The entry's previous score and level are read from the row being replaced, inside the
// same transaction, so history only records transitions that were live.
func (r *RiskStore) CommitRecalculation(ctx context.Context, score *models.RiskZoneScore, entry *models.RiskZoneHistory) error {
	return database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.lockPrevious(ctx, tx, entry); err != nil {
			return err
		}
		if err := r.upsertScore(ctx, tx, score); err != nil {
			return err
		}
		return r.appendHistory(ctx, tx, entry)
	})
}

// lockPrevious fills the entry from the current score row. On postgres the cell is held by a
// transaction-scoped advisory lock (which also covers a first calculation with no row yet);
// sqlite transactions begin IMMEDIATE and already hold the write lock.
func (r *RiskStore) lockPrevious(ctx context.Context, tx *sql.Tx, entry *models.RiskZoneHistory) error {
	query := `SELECT final_score, risk_level FROM risk_zone_scores WHERE cell_id = ?`
	if r.driver == database.DriverPostgres {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, entry.CellID); err != nil {
			return fmt.Errorf("failed to lock zone: %w", err)
		}
		query += " FOR UPDATE"
	}

	var (
		prev  float64
		level string
	)
	err := tx.QueryRowContext(ctx, r.q(query), entry.CellID).Scan(&prev, &level)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		entry.PreviousScore = nil
		entry.PreviousLevel = ""
		return nil
	case err != nil:
		return fmt.Errorf("failed to read previous score: %w", err)
	}
	entry.PreviousScore = &prev
	entry.PreviousLevel = level
	return nil
}

// ListHistory returns the audit trail of a cell, newest first
func (r *RiskStore) ListHistory(ctx context.Context, cellID string, filter models.HistoryFilter) ([]models.RiskZoneHistory, error) {
	query := `
		SELECT id, cell_id, previous_score, new_score, previous_level, new_level,
			   change_type, change_reason, actor, created_at
		FROM risk_zone_history
		WHERE cell_id = ?
	`
	args := []interface{}{cellID}
	if filter.ChangeType != "" {
		query += " AND change_type = ?"
		args = append(args, filter.ChangeType)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, clampLimit(filter.Limit))

	rows, err := r.db.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	history := []models.RiskZoneHistory{}
	for rows.Next() {
		var (
			h    models.RiskZoneHistory
			prev sql.NullFloat64
		)
		err := rows.Scan(
			&h.ID,
			&h.CellID,
			&prev,
			&h.NewScore,
			&h.PreviousLevel,
			&h.NewLevel,
			&h.ChangeType,
			&h.ChangeReason,
			&h.Actor,
			&h.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		if prev.Valid {
			v := prev.Float64
			h.PreviousScore = &v
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return history, nil
}

func (r *RiskStore) upsertScore(ctx context.Context, ex execer, s *models.RiskZoneScore) error {
	query := `
		INSERT INTO risk_zone_scores (
			cell_id, resolution, base_score, manual_adjustment, final_score, risk_level,
			price_multiplier, event_count, last_event_date, last_calculated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (cell_id) DO UPDATE SET
			resolution = excluded.resolution,
			base_score = excluded.base_score,
			manual_adjustment = excluded.manual_adjustment,
			final_score = excluded.final_score,
			risk_level = excluded.risk_level,
			price_multiplier = excluded.price_multiplier,
			event_count = excluded.event_count,
			last_event_date = excluded.last_event_date,
			last_calculated_at = excluded.last_calculated_at
	`
	_, err := ex.ExecContext(ctx, r.q(query),
		s.CellID,
		s.Resolution,
		s.BaseScore,
		s.ManualAdjustment,
		s.FinalScore,
		s.RiskLevel,
		s.PriceMultiplier,
		s.EventCount,
		nullTime(s.LastEventDate),
		s.LastCalculatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert score: %w", err)
	}
	return nil
}

func (r *RiskStore) appendHistory(ctx context.Context, ex execer, h *models.RiskZoneHistory) error {
	query := `
		INSERT INTO risk_zone_history (
			id, cell_id, previous_score, new_score, previous_level, new_level,
			change_type, change_reason, actor, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var prev interface{}
	if h.PreviousScore != nil {
		prev = *h.PreviousScore
	}

	_, err := ex.ExecContext(ctx, r.q(query),
		h.ID,
		h.CellID,
		prev,
		h.NewScore,
		h.PreviousLevel,
		h.NewLevel,
		h.ChangeType,
		h.ChangeReason,
		h.Actor,
		h.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func scanScore(row rowScanner) (*models.RiskZoneScore, error) {
	s := &models.RiskZoneScore{}
	var lastEvent sql.NullTime
	err := row.Scan(
		&s.CellID,
		&s.Resolution,
		&s.BaseScore,
		&s.ManualAdjustment,
		&s.FinalScore,
		&s.RiskLevel,
		&s.PriceMultiplier,
		&s.EventCount,
		&lastEvent,
		&s.LastCalculatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan score: %w", err)
	}
	s.LastEventDate = timePtr(lastEvent)
	return s, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
