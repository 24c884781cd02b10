// Package batch recalculates many zones concurrently without letting one
// cell's failure abort the others.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jengzang/riskzone-engine/internal/metrics"
	"github.com/jengzang/riskzone-engine/internal/models"
	"github.com/jengzang/riskzone-engine/internal/scoring"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Defaults
const (
	DefaultWorkers  = 8
	DefaultMaxCells = 500
)

var (
	// ErrEmptyBatch is returned when no cell ids were submitted
	ErrEmptyBatch = errors.New("no cell ids provided")
	// ErrBatchTooLarge is returned when more cells than the configured cap were submitted
	ErrBatchTooLarge = errors.New("too many cell ids in batch")
)

// Recalculator is the engine operation the batch fans out to
type Recalculator interface {
	Recalculate(ctx context.Context, cellID string, change scoring.Change) (*models.RiskZoneScore, error)
}

// CellLister lists every cell with a stored score
type CellLister interface {
	ListCellIDs(ctx context.Context) ([]string, error)
}

// CellResult is the outcome of one cell, in submission order
type CellResult struct {
	CellID  string                `json:"cell_id"`
	Success bool                  `json:"success"`
	Score   *models.RiskZoneScore `json:"score,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// CellError names a failed cell and why it failed
type CellError struct {
	CellID string `json:"cell_id"`
	Error  string `json:"error"`
}

// BatchResult summarizes a batch. SuccessCount + ErrorCount always equals the number of submitted ids.
type BatchResult struct {
	SuccessCount int          `json:"success_count"`
	ErrorCount   int          `json:"error_count"`
	Results      []CellResult `json:"results"`
	Errors       []CellError  `json:"errors"`
	DurationMs   int64        `json:"duration_ms"`
}

// Options configures the worker pool
type Options struct {
	Workers  int
	MaxCells int
}

// Service runs batch recalculations over a bounded worker pool
type Service struct {
	engine Recalculator
	cells  CellLister
	opts   Options
	logger *zap.Logger
}

// NewService creates a new batch service
func NewService(engine Recalculator, cells CellLister, opts Options, logger *zap.Logger) *Service {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.MaxCells <= 0 {
		opts.MaxCells = DefaultMaxCells
	}
	return &Service{
		engine: engine,
		cells:  cells,
		opts:   opts,
		logger: logger,
	}
}

// RecalculateMany recalculates every submitted cell as the system actor.
// Duplicates are processed independently.
func (s *Service) RecalculateMany(ctx context.Context, cellIDs []string) (*BatchResult, error) {
	return s.RecalculateManyAs(ctx, cellIDs, models.SystemActor)
}

// RecalculateManyAs recalculates every submitted cell and records actor in each history entry
func (s *Service) RecalculateManyAs(ctx context.Context, cellIDs []string, actor string) (*BatchResult, error) {
	if len(cellIDs) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(cellIDs) > s.opts.MaxCells {
		return nil, fmt.Errorf("%w: %d submitted, limit is %d", ErrBatchTooLarge, len(cellIDs), s.opts.MaxCells)
	}

	change := scoring.Change{
		Type:  models.ChangeTypeRecalculation,
		Actor: actor,
	}
	return s.run(ctx, cellIDs, change), nil
}

// RefreshAll recalculates every cell that already has a score, e.g. to apply decay
func (s *Service) RefreshAll(ctx context.Context) (*BatchResult, error) {
	ids, err := s.cells.ListCellIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list cells: %w", err)
	}
	if len(ids) == 0 {
		return &BatchResult{Results: []CellResult{}, Errors: []CellError{}}, nil
	}

	change := scoring.Change{
		Type:   models.ChangeTypeSystemUpdate,
		Reason: "scheduled refresh",
		Actor:  models.SystemActor,
	}
	return s.run(ctx, ids, change), nil
}

func (s *Service) run(ctx context.Context, cellIDs []string, change scoring.Change) *BatchResult {
	start := time.Now()
	metrics.BatchSize.Observe(float64(len(cellIDs)))

	// each worker writes only its own slot
	results := make([]CellResult, len(cellIDs))

	var g errgroup.Group
	g.SetLimit(s.opts.Workers)

	for i, cellID := range cellIDs {
		g.Go(func() error {
			results[i] = s.recalculateOne(ctx, cellID, change)
			return nil
		})
	}
	_ = g.Wait()

	result := &BatchResult{
		Results:    results,
		Errors:     []CellError{},
		DurationMs: time.Since(start).Milliseconds(),
	}
	for _, r := range results {
		if r.Success {
			result.SuccessCount++
			continue
		}
		result.ErrorCount++
		result.Errors = append(result.Errors, CellError{CellID: r.CellID, Error: r.Error})
	}

	s.logger.Info("Batch recalculation completed",
		zap.String("change_type", change.Type),
		zap.Int("cells", len(cellIDs)),
		zap.Int("success_count", result.SuccessCount),
		zap.Int("error_count", result.ErrorCount),
		zap.Int64("duration_ms", result.DurationMs),
	)
	return result
}

// recalculateOne turns an error or panic into a failed result for that cell only
func (s *Service) recalculateOne(ctx context.Context, cellID string, change scoring.Change) (res CellResult) {
	res.CellID = cellID

	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("Recalculation panicked", zap.String("cell_id", cellID), zap.Any("panic", p))
			res.Success = false
			res.Score = nil
			res.Error = fmt.Sprintf("internal error: %v", p)
		}
	}()

	if err := ctx.Err(); err != nil {
		res.Error = err.Error()
		return res
	}

	score, err := s.engine.Recalculate(ctx, cellID, change)
	if err != nil {
		s.logger.Warn("Zone recalculation failed", zap.String("cell_id", cellID), zap.Error(err))
		res.Error = err.Error()
		return res
	}

	res.Success = true
	res.Score = score
	return res
}
