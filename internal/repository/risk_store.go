package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jengzang/riskzone-engine/internal/database"
	"github.com/jengzang/riskzone-engine/internal/models"
)

// ErrNotFound is returned when a looked-up row does not exist
var ErrNotFound = errors.New("not found")

// Default page sizes
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// execer is satisfied by *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// RiskStore handles database operations for events, adjustments, scores and history
type RiskStore struct {
	db     *sql.DB
	driver string
}

// NewRiskStore creates a new risk store
func NewRiskStore(db *sql.DB, driver string) *RiskStore {
	return &RiskStore{db: db, driver: database.DriverName(driver)}
}

func (r *RiskStore) q(query string) string {
	return database.Rebind(r.driver, query)
}

const eventColumns = `id, cell_id, event_type, severity, event_date, description, source,
	verified, organization_id, archived, created_at`

// GetEvents returns non-archived events of a cell dated on or after now minus windowDays
func (r *RiskStore) GetEvents(ctx context.Context, cellID string, windowDays int, now time.Time) ([]models.SecurityEvent, error) {
	query := `SELECT ` + eventColumns + `
		FROM security_events
		WHERE cell_id = ? AND archived = ? AND event_date >= ?
		ORDER BY event_date DESC`

	cutoff := now.AddDate(0, 0, -windowDays).UTC()
	rows, err := r.db.QueryContext(ctx, r.q(query), cellID, false, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.SecurityEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// GetEvent retrieves an event by ID
func (r *RiskStore) GetEvent(ctx context.Context, id int64) (*models.SecurityEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM security_events WHERE id = ?`

	e, err := scanEvent(r.db.QueryRowContext(ctx, r.q(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("security event %d: %w", id, ErrNotFound)
	}
	return e, err
}

// InsertEvent stores a new event and sets its ID
func (r *RiskStore) InsertEvent(ctx context.Context, e *models.SecurityEvent) error {
	query := `
		INSERT INTO security_events (
			cell_id, event_type, severity, event_date, description, source,
			verified, organization_id, archived, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	err := r.db.QueryRowContext(ctx, r.q(query),
		e.CellID,
		e.EventType,
		e.Severity,
		e.EventDate.UTC(),
		e.Description,
		e.Source,
		e.Verified,
		e.OrganizationID,
		e.Archived,
		e.CreatedAt.UTC(),
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to insert security event: %w", err)
	}
	return nil
}

// ArchiveEvent soft-archives an event; archived events never score
func (r *RiskStore) ArchiveEvent(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, r.q(`UPDATE security_events SET archived = ? WHERE id = ?`), true, id)
	if err != nil {
		return fmt.Errorf("failed to archive security event: %w", err)
	}
	return requireAffected(result, fmt.Sprintf("security event %d", id))
}

func scanEvent(row rowScanner) (*models.SecurityEvent, error) {
	e := &models.SecurityEvent{}
	err := row.Scan(
		&e.ID,
		&e.CellID,
		&e.EventType,
		&e.Severity,
		&e.EventDate,
		&e.Description,
		&e.Source,
		&e.Verified,
		&e.OrganizationID,
		&e.Archived,
		&e.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan security event: %w", err)
	}
	return e, nil
}

const adjustmentColumns = `id, cell_id, adjustment_value, justification, valid_from, valid_until,
	created_by, active, revoked_at, revoked_by, created_at`

// GetActiveAdjustments returns adjustments that are active and within their validity window at asOf
func (r *RiskStore) GetActiveAdjustments(ctx context.Context, cellID string, asOf time.Time) ([]models.RiskZoneAdjustment, error) {
	query := `SELECT ` + adjustmentColumns + `
		FROM risk_zone_adjustments
		WHERE cell_id = ? AND active = ? AND valid_from <= ?
		  AND (valid_until IS NULL OR valid_until > ?)
		ORDER BY created_at`

	at := asOf.UTC()
	return r.queryAdjustments(ctx, r.q(query), cellID, true, at, at)
}

// ListAdjustments returns every adjustment of a cell, revoked ones included, newest first
func (r *RiskStore) ListAdjustments(ctx context.Context, cellID string) ([]models.RiskZoneAdjustment, error) {
	query := `SELECT ` + adjustmentColumns + `
		FROM risk_zone_adjustments
		WHERE cell_id = ?
		ORDER BY created_at DESC`

	return r.queryAdjustments(ctx, r.q(query), cellID)
}

// GetAdjustment retrieves an adjustment by ID
func (r *RiskStore) GetAdjustment(ctx context.Context, id string) (*models.RiskZoneAdjustment, error) {
	query := `SELECT ` + adjustmentColumns + ` FROM risk_zone_adjustments WHERE id = ?`

	a, err := scanAdjustment(r.db.QueryRowContext(ctx, r.q(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("adjustment %s: %w", id, ErrNotFound)
	}
	return a, err
}

// InsertAdjustment stores a new analyst adjustment
func (r *RiskStore) InsertAdjustment(ctx context.Context, a *models.RiskZoneAdjustment) error {
	query := `
		INSERT INTO risk_zone_adjustments (
			id, cell_id, adjustment_value, justification, valid_from, valid_until,
			created_by, active, revoked_at, revoked_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.q(query),
		a.ID,
		a.CellID,
		a.Value,
		a.Justification,
		a.ValidFrom.UTC(),
		nullTime(a.ValidUntil),
		a.CreatedBy,
		a.Active,
		nullTime(a.RevokedAt),
		a.RevokedBy,
		a.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert adjustment: %w", err)
	}
	return nil
}

// RevokeAdjustment deactivates an active adjustment; rows are never deleted
func (r *RiskStore) RevokeAdjustment(ctx context.Context, id, actor string, at time.Time) error {
	query := `
		UPDATE risk_zone_adjustments
		SET active = ?, revoked_at = ?, revoked_by = ?
		WHERE id = ? AND active = ?
	`
	result, err := r.db.ExecContext(ctx, r.q(query), false, at.UTC(), actor, id, true)
	if err != nil {
		return fmt.Errorf("failed to revoke adjustment: %w", err)
	}
	return requireAffected(result, "active adjustment "+id)
}

func (r *RiskStore) queryAdjustments(ctx context.Context, query string, args ...interface{}) ([]models.RiskZoneAdjustment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query adjustments: %w", err)
	}
	defer rows.Close()

	var adjustments []models.RiskZoneAdjustment
	for rows.Next() {
		a, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		adjustments = append(adjustments, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate adjustments: %w", err)
	}
	return adjustments, nil
}

func scanAdjustment(row rowScanner) (*models.RiskZoneAdjustment, error) {
	a := &models.RiskZoneAdjustment{}
	var validUntil, revokedAt sql.NullTime
	err := row.Scan(
		&a.ID,
		&a.CellID,
		&a.Value,
		&a.Justification,
		&a.ValidFrom,
		&validUntil,
		&a.CreatedBy,
		&a.Active,
		&revokedAt,
		&a.RevokedBy,
		&a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan adjustment: %w", err)
	}
	a.ValidUntil = timePtr(validUntil)
	a.RevokedAt = timePtr(revokedAt)
	return a, nil
}

func requireAffected(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
