package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jengzang/riskzone-engine/internal/geoindex"
	"github.com/jengzang/riskzone-engine/internal/metrics"
	"github.com/jengzang/riskzone-engine/internal/models"
	"go.uber.org/zap"
)

// ErrInvalidCell is returned when a recalculation is requested for a malformed cell id
var ErrInvalidCell = geoindex.ErrInvalidCell

// Store is the persistence the engine reads from and commits to
type Store interface {
	// GetEvents returns the events of a cell dated within windowDays before now
	GetEvents(ctx context.Context, cellID string, windowDays int, now time.Time) ([]models.SecurityEvent, error)
	// GetActiveAdjustments returns adjustments active and valid at asOf
	GetActiveAdjustments(ctx context.Context, cellID string, asOf time.Time) ([]models.RiskZoneAdjustment, error)
	// CommitRecalculation upserts the score and appends the history entry atomically.
	// It sets entry.PreviousScore and entry.PreviousLevel from the row it replaces
	// (nil and empty on a first calculation) while holding the cell, so concurrent
	// recalculations of one cell record only transitions that were live.
	CommitRecalculation(ctx context.Context, score *models.RiskZoneScore, entry *models.RiskZoneHistory) error
}

// ScoreListener is notified after a score has been committed
type ScoreListener interface {
	ScoreUpdated(ctx context.Context, score *models.RiskZoneScore) error
}

// Change describes why a recalculation happens, for the audit trail
type Change struct {
	Type   string
	Reason string
	Actor  string
}

// ZoneError ties a failure to the cell and step it occurred in
type ZoneError struct {
	CellID string
	Op     string
	Err    error
}

func (e *ZoneError) Error() string {
	return fmt.Sprintf("zone %s: failed to %s: %v", e.CellID, e.Op, e.Err)
}

func (e *ZoneError) Unwrap() error {
	return e.Err
}

// Engine recalculates zone scores. It never retries; store failures
// are returned to the caller as *ZoneError.
type Engine struct {
	store    Store
	cfg      Config
	logger   *zap.Logger
	listener ScoreListener

	// Now is the clock used for decay and validity windows
	Now func() time.Time
}

// NewEngine creates a new score engine
func NewEngine(store Store, cfg Config, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring config: %w", err)
	}
	return &Engine{
		store:  store,
		cfg:    cfg,
		logger: logger,
		Now:    time.Now,
	}, nil
}

// SetListener registers a hook called after every successful commit
func (e *Engine) SetListener(l ScoreListener) {
	e.listener = l
}

// Config returns the scoring constants in use
func (e *Engine) Config() Config {
	return e.cfg
}

// RecalculateZone refreshes one cell from its events and active adjustments
func (e *Engine) RecalculateZone(ctx context.Context, cellID string) (*models.RiskZoneScore, error) {
	return e.Recalculate(ctx, cellID, Change{Type: models.ChangeTypeRecalculation, Actor: models.SystemActor})
}

// Recalculate refreshes one cell and records the given change in its history
func (e *Engine) Recalculate(ctx context.Context, cellID string, change Change) (score *models.RiskZoneScore, err error) {
	start := time.Now()
	if change.Type == "" {
		change.Type = models.ChangeTypeRecalculation
	}
	if change.Actor == "" {
		change.Actor = models.SystemActor
	}
	defer func() {
		metrics.ObserveRecalculation(change.Type, err, time.Since(start))
	}()

	info, err := geoindex.ValidateCell(cellID)
	if err != nil {
		return nil, &ZoneError{CellID: cellID, Op: "validate cell", Err: err}
	}
	cellID = info.ID
	now := e.Now()

	events, err := e.store.GetEvents(ctx, cellID, e.cfg.WindowDays, now)
	if err != nil {
		return nil, &ZoneError{CellID: cellID, Op: "get events", Err: err}
	}

	adjustments, err := e.store.GetActiveAdjustments(ctx, cellID, now)
	if err != nil {
		return nil, &ZoneError{CellID: cellID, Op: "get adjustments", Err: err}
	}

	score = e.cfg.Compute(cellID, info.Resolution, events, adjustments, now)
	entry := newHistoryEntry(score, change, len(adjustments), now)

	if err := e.store.CommitRecalculation(ctx, score, entry); err != nil {
		return nil, &ZoneError{CellID: cellID, Op: "commit score", Err: err}
	}

	e.logger.Debug("Zone recalculated",
		zap.String("cell_id", cellID),
		zap.String("change_type", change.Type),
		zap.Float64("final_score", score.FinalScore),
		zap.String("risk_level", score.RiskLevel),
		zap.Int("event_count", score.EventCount),
	)

	if e.listener != nil {
		if lerr := e.listener.ScoreUpdated(ctx, score); lerr != nil {
			e.logger.Warn("Score listener failed", zap.String("cell_id", cellID), zap.Error(lerr))
		}
	}

	return score, nil
}

// newHistoryEntry leaves the previous score to the store, which reads it at commit
func newHistoryEntry(score *models.RiskZoneScore, change Change, adjustments int, now time.Time) *models.RiskZoneHistory {
	entry := &models.RiskZoneHistory{
		ID:           uuid.NewString(),
		CellID:       score.CellID,
		NewScore:     score.FinalScore,
		NewLevel:     score.RiskLevel,
		ChangeType:   change.Type,
		ChangeReason: change.Reason,
		Actor:        change.Actor,
		CreatedAt:    now,
	}
	if entry.ChangeReason == "" {
		entry.ChangeReason = fmt.Sprintf("recalculated from %d events and %d active adjustments", score.EventCount, adjustments)
	}
	return entry
}

// IsInputError reports whether err was caused by the caller's input
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidCell)
}
