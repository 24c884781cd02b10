// Package scoringtest provides an in-memory store for engine, batch,
// service and handler tests.
package scoringtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jengzang/riskzone-engine/internal/models"
)

// MemStore keeps events, adjustments, scores and history in maps.
// Fail hooks let tests inject store errors per cell.
type MemStore struct {
	mu          sync.Mutex
	events      map[string][]models.SecurityEvent
	adjustments map[string][]models.RiskZoneAdjustment
	scores      map[string]models.RiskZoneScore
	history     []models.RiskZoneHistory
	nextEventID int64

	// FailGetEvents and FailCommit return an error for the given cell when set
	FailGetEvents func(cellID string) error
	FailCommit    func(cellID string) error
	// PanicOn makes GetEvents panic for the given cell
	PanicOn string
}

// NewMemStore creates an empty store
func NewMemStore() *MemStore {
	return &MemStore{
		events:      make(map[string][]models.SecurityEvent),
		adjustments: make(map[string][]models.RiskZoneAdjustment),
		scores:      make(map[string]models.RiskZoneScore),
	}
}

// AddEvent stores an event
func (s *MemStore) AddEvent(e models.SecurityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.CellID] = append(s.events[e.CellID], e)
}

// AddAdjustment stores an adjustment
func (s *MemStore) AddAdjustment(a models.RiskZoneAdjustment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjustments[a.CellID] = append(s.adjustments[a.CellID], a)
}

// GetEvents implements scoring.Store
func (s *MemStore) GetEvents(ctx context.Context, cellID string, windowDays int, now time.Time) ([]models.SecurityEvent, error) {
	if s.PanicOn != "" && s.PanicOn == cellID {
		panic("memstore: injected panic for " + cellID)
	}
	if s.FailGetEvents != nil {
		if err := s.FailGetEvents(cellID); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.AddDate(0, 0, -windowDays)
	var out []models.SecurityEvent
	for _, e := range s.events[cellID] {
		if !e.Archived && !e.EventDate.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetActiveAdjustments implements scoring.Store
func (s *MemStore) GetActiveAdjustments(ctx context.Context, cellID string, asOf time.Time) ([]models.RiskZoneAdjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.RiskZoneAdjustment
	for _, a := range s.adjustments[cellID] {
		if a.IsEffective(asOf) {
			out = append(out, a)
		}
	}
	return out, nil
}

// GetScore returns the current score, or nil when the cell was never calculated
func (s *MemStore) GetScore(ctx context.Context, cellID string) (*models.RiskZoneScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	score, ok := s.scores[cellID]
	if !ok {
		return nil, nil
	}
	return &score, nil
}

// CommitRecalculation implements scoring.Store; both writes happen or neither does
func (s *MemStore) CommitRecalculation(ctx context.Context, score *models.RiskZoneScore, entry *models.RiskZoneHistory) error {
	if s.FailCommit != nil {
		if err := s.FailCommit(score.CellID); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry.PreviousScore = nil
	entry.PreviousLevel = ""
	if previous, ok := s.scores[score.CellID]; ok {
		prev := previous.FinalScore
		entry.PreviousScore = &prev
		entry.PreviousLevel = previous.RiskLevel
	}

	s.scores[score.CellID] = *score
	s.history = append(s.history, *entry)
	return nil
}

// History returns the audit entries recorded for a cell, oldest first
func (s *MemStore) History(cellID string) []models.RiskZoneHistory {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.RiskZoneHistory
	for _, h := range s.history {
		if h.CellID == cellID {
			out = append(out, h)
		}
	}
	return out
}

// Score returns the stored score of a cell
func (s *MemStore) Score(cellID string) (models.RiskZoneScore, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	score, ok := s.scores[cellID]
	return score, ok
}

// ListCellIDs returns every cell with a stored score, sorted
func (s *MemStore) ListCellIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.scores))
	for id := range s.scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
