package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jengzang/riskzone-engine/internal/geoindex"
	"github.com/jengzang/riskzone-engine/internal/models"
	"github.com/jengzang/riskzone-engine/internal/repository"
	"github.com/jengzang/riskzone-engine/internal/scoring"
	"go.uber.org/zap"
)

// MaxAdjustment bounds the absolute value of a single analyst adjustment
const MaxAdjustment = 100.0

var (
	// ErrInvalidAdjustment is returned for adjustment requests that fail validation
	ErrInvalidAdjustment = errors.New("invalid adjustment")
	// ErrInvalidEvent is returned for security events that fail validation
	ErrInvalidEvent = errors.New("invalid security event")
	// ErrInvalidFilter is returned for unknown list filters
	ErrInvalidFilter = errors.New("invalid filter")
)

// RiskStore is the persistence the zone service reads and writes
type RiskStore interface {
	GetScore(ctx context.Context, cellID string) (*models.RiskZoneScore, error)
	ListScores(ctx context.Context, filter models.ScoreFilter) ([]models.RiskZoneScore, error)
	ListHistory(ctx context.Context, cellID string, filter models.HistoryFilter) ([]models.RiskZoneHistory, error)

	InsertEvent(ctx context.Context, e *models.SecurityEvent) error
	GetEvent(ctx context.Context, id int64) (*models.SecurityEvent, error)
	ArchiveEvent(ctx context.Context, id int64) error

	InsertAdjustment(ctx context.Context, a *models.RiskZoneAdjustment) error
	GetAdjustment(ctx context.Context, id string) (*models.RiskZoneAdjustment, error)
	RevokeAdjustment(ctx context.Context, id, actor string, at time.Time) error
	ListAdjustments(ctx context.Context, cellID string) ([]models.RiskZoneAdjustment, error)
}

// Recalculator is the engine operation triggered by writes
type Recalculator interface {
	Recalculate(ctx context.Context, cellID string, change scoring.Change) (*models.RiskZoneScore, error)
}

// ScoreCache is the read-through cache in front of score lookups
type ScoreCache interface {
	Get(ctx context.Context, cellID string) (*models.RiskZoneScore, bool, error)
	Set(ctx context.Context, score *models.RiskZoneScore) error
}

// CreateAdjustmentRequest is an analyst override of a cell score
type CreateAdjustmentRequest struct {
	Value         float64    `json:"value"`
	Justification string     `json:"justification"`
	ValidFrom     *time.Time `json:"valid_from,omitempty"`
	ValidUntil    *time.Time `json:"valid_until,omitempty"`
}

// EventResult is a stored event together with the score it produced
type EventResult struct {
	Event *models.SecurityEvent `json:"event"`
	Score *models.RiskZoneScore `json:"score"`
}

// AdjustmentResult is a stored or revoked adjustment together with the resulting score
type AdjustmentResult struct {
	Adjustment *models.RiskZoneAdjustment `json:"adjustment"`
	Score      *models.RiskZoneScore      `json:"score"`
}

// RiskZoneService handles zone reads and the writes that trigger recalculation
type RiskZoneService struct {
	store  RiskStore
	engine Recalculator
	cache  ScoreCache // optional
	logger *zap.Logger

	Now func() time.Time
}

// NewRiskZoneService creates a new zone service; cache may be nil
func NewRiskZoneService(store RiskStore, engine Recalculator, cache ScoreCache, logger *zap.Logger) *RiskZoneService {
	return &RiskZoneService{
		store:  store,
		engine: engine,
		cache:  cache,
		logger: logger,
		Now:    time.Now,
	}
}

// GetScore returns the current score of a cell, served from cache when possible
func (s *RiskZoneService) GetScore(ctx context.Context, cellID string) (*models.RiskZoneScore, error) {
	info, err := geoindex.ValidateCell(cellID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, info.ID)
		if err != nil {
			s.logger.Warn("Score cache read failed", zap.String("cell_id", info.ID), zap.Error(err))
		} else if ok {
			return cached, nil
		}
	}

	score, err := s.store.GetScore(ctx, info.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get score: %w", err)
	}
	if score == nil {
		return nil, fmt.Errorf("zone %s: %w", info.ID, repository.ErrNotFound)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, score); err != nil {
			s.logger.Warn("Score cache write failed", zap.String("cell_id", info.ID), zap.Error(err))
		}
	}
	return score, nil
}

// ListScores returns zone scores ordered by final score, highest first
func (s *RiskZoneService) ListScores(ctx context.Context, filter models.ScoreFilter) ([]models.RiskZoneScore, error) {
	if filter.RiskLevel != "" && models.RiskLevelRank(filter.RiskLevel) < 0 {
		return nil, fmt.Errorf("%w: unknown risk level %q", ErrInvalidFilter, filter.RiskLevel)
	}
	if filter.MinScore < scoring.MinScore || filter.MinScore > scoring.MaxScore {
		return nil, fmt.Errorf("%w: min_score must be within [0, 100]", ErrInvalidFilter)
	}
	return s.store.ListScores(ctx, filter)
}

// History returns the audit trail of a cell, newest first
func (s *RiskZoneService) History(ctx context.Context, cellID string, filter models.HistoryFilter) ([]models.RiskZoneHistory, error) {
	info, err := geoindex.ValidateCell(cellID)
	if err != nil {
		return nil, err
	}
	return s.store.ListHistory(ctx, info.ID, filter)
}

// Adjustments returns every adjustment of a cell, revoked ones included
func (s *RiskZoneService) Adjustments(ctx context.Context, cellID string) ([]models.RiskZoneAdjustment, error) {
	info, err := geoindex.ValidateCell(cellID)
	if err != nil {
		return nil, err
	}
	adjustments, err := s.store.ListAdjustments(ctx, info.ID)
	if err != nil {
		return nil, err
	}
	if adjustments == nil {
		adjustments = []models.RiskZoneAdjustment{}
	}
	return adjustments, nil
}

// RecordEvent validates and stores a security event, then recalculates its cell
func (s *RiskZoneService) RecordEvent(ctx context.Context, event *models.SecurityEvent, actor string) (*EventResult, error) {
	if err := s.validateEvent(event); err != nil {
		return nil, err
	}

	event.Archived = false
	event.CreatedAt = s.Now()
	if err := s.store.InsertEvent(ctx, event); err != nil {
		return nil, err
	}

	score, err := s.engine.Recalculate(ctx, event.CellID, scoring.Change{
		Type:   models.ChangeTypeEventAdded,
		Reason: fmt.Sprintf("%s %s event #%d recorded", event.Severity, event.EventType, event.ID),
		Actor:  actor,
	})
	if err != nil {
		return nil, fmt.Errorf("event %d stored but recalculation failed: %w", event.ID, err)
	}

	s.logger.Info("Security event recorded",
		zap.Int64("event_id", event.ID),
		zap.String("cell_id", event.CellID),
		zap.String("severity", event.Severity),
		zap.String("actor", actor),
	)
	return &EventResult{Event: event, Score: score}, nil
}

// ArchiveEvent soft-archives an event and recalculates its cell without it
func (s *RiskZoneService) ArchiveEvent(ctx context.Context, id int64, actor string) (*EventResult, error) {
	event, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.ArchiveEvent(ctx, id); err != nil {
		return nil, err
	}
	event.Archived = true

	score, err := s.engine.Recalculate(ctx, event.CellID, scoring.Change{
		Type:   models.ChangeTypeRecalculation,
		Reason: fmt.Sprintf("security event #%d archived", id),
		Actor:  actor,
	})
	if err != nil {
		return nil, fmt.Errorf("event %d archived but recalculation failed: %w", id, err)
	}
	return &EventResult{Event: event, Score: score}, nil
}

// CreateAdjustment validates and stores an analyst adjustment, then recalculates the cell
func (s *RiskZoneService) CreateAdjustment(ctx context.Context, cellID string, req CreateAdjustmentRequest, actor string) (*AdjustmentResult, error) {
	info, err := geoindex.ValidateCell(cellID)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	adjustment := &models.RiskZoneAdjustment{
		ID:            uuid.NewString(),
		CellID:        info.ID,
		Value:         req.Value,
		Justification: strings.TrimSpace(req.Justification),
		ValidFrom:     now,
		ValidUntil:    req.ValidUntil,
		CreatedBy:     actor,
		Active:        true,
		CreatedAt:     now,
	}
	if req.ValidFrom != nil {
		adjustment.ValidFrom = *req.ValidFrom
	}
	if err := validateAdjustment(adjustment); err != nil {
		return nil, err
	}

	if err := s.store.InsertAdjustment(ctx, adjustment); err != nil {
		return nil, err
	}

	score, err := s.engine.Recalculate(ctx, info.ID, scoring.Change{
		Type:   models.ChangeTypeManualAdjustment,
		Reason: fmt.Sprintf("adjustment %+.2f: %s", adjustment.Value, adjustment.Justification),
		Actor:  actor,
	})
	if err != nil {
		return nil, fmt.Errorf("adjustment %s stored but recalculation failed: %w", adjustment.ID, err)
	}

	s.logger.Info("Adjustment created",
		zap.String("adjustment_id", adjustment.ID),
		zap.String("cell_id", info.ID),
		zap.Float64("value", adjustment.Value),
		zap.String("actor", actor),
	)
	return &AdjustmentResult{Adjustment: adjustment, Score: score}, nil
}

// RevokeAdjustment deactivates an adjustment and recalculates its cell
func (s *RiskZoneService) RevokeAdjustment(ctx context.Context, id, actor string) (*AdjustmentResult, error) {
	adjustment, err := s.store.GetAdjustment(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	if err := s.store.RevokeAdjustment(ctx, id, actor, now); err != nil {
		return nil, err
	}
	adjustment.Active = false
	adjustment.RevokedAt = &now
	adjustment.RevokedBy = actor

	score, err := s.engine.Recalculate(ctx, adjustment.CellID, scoring.Change{
		Type:   models.ChangeTypeManualAdjustment,
		Reason: fmt.Sprintf("adjustment %s revoked", id),
		Actor:  actor,
	})
	if err != nil {
		return nil, fmt.Errorf("adjustment %s revoked but recalculation failed: %w", id, err)
	}

	s.logger.Info("Adjustment revoked", zap.String("adjustment_id", id), zap.String("actor", actor))
	return &AdjustmentResult{Adjustment: adjustment, Score: score}, nil
}

func (s *RiskZoneService) validateEvent(e *models.SecurityEvent) error {
	info, err := geoindex.ValidateCell(e.CellID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	e.CellID = info.ID

	if !models.IsValidEventType(e.EventType) {
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, e.EventType)
	}
	if !models.IsValidSeverity(e.Severity) {
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidEvent, e.Severity)
	}
	if e.EventDate.IsZero() {
		return fmt.Errorf("%w: event_date is required", ErrInvalidEvent)
	}
	if e.EventDate.After(s.Now().Add(24 * time.Hour)) {
		return fmt.Errorf("%w: event_date is in the future", ErrInvalidEvent)
	}
	return nil
}

func validateAdjustment(a *models.RiskZoneAdjustment) error {
	if a.Value == 0 || math.IsNaN(a.Value) || math.Abs(a.Value) > MaxAdjustment {
		return fmt.Errorf("%w: value must be non-zero and within ±%.0f", ErrInvalidAdjustment, MaxAdjustment)
	}
	if a.Justification == "" {
		return fmt.Errorf("%w: justification is required", ErrInvalidAdjustment)
	}
	if a.ValidUntil != nil && !a.ValidUntil.After(a.ValidFrom) {
		return fmt.Errorf("%w: valid_until must be after valid_from", ErrInvalidAdjustment)
	}
	return nil
}

// IsInputError reports whether err was caused by invalid caller input
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidAdjustment) ||
		errors.Is(err, ErrInvalidEvent) ||
		errors.Is(err, ErrInvalidFilter) ||
		errors.Is(err, geoindex.ErrInvalidCell)
}
