package scoringtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jengzang/riskzone-engine/internal/models"
	"github.com/jengzang/riskzone-engine/internal/repository"
)

// InsertEvent stores an event and assigns it the next ID
func (s *MemStore) InsertEvent(ctx context.Context, e *models.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEventID++
	e.ID = s.nextEventID
	s.events[e.CellID] = append(s.events[e.CellID], *e)
	return nil
}

// GetEvent looks an event up by ID
func (s *MemStore) GetEvent(ctx context.Context, id int64) (*models.SecurityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, events := range s.events {
		for i := range events {
			if events[i].ID == id {
				e := events[i]
				return &e, nil
			}
		}
	}
	return nil, fmt.Errorf("security event %d: %w", id, repository.ErrNotFound)
}

// ArchiveEvent marks an event archived
func (s *MemStore) ArchiveEvent(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, events := range s.events {
		for i := range events {
			if events[i].ID == id {
				events[i].Archived = true
				return nil
			}
		}
	}
	return fmt.Errorf("security event %d: %w", id, repository.ErrNotFound)
}

// InsertAdjustment stores an adjustment
func (s *MemStore) InsertAdjustment(ctx context.Context, a *models.RiskZoneAdjustment) error {
	s.AddAdjustment(*a)
	return nil
}

// GetAdjustment looks an adjustment up by ID
func (s *MemStore) GetAdjustment(ctx context.Context, id string) (*models.RiskZoneAdjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a := s.findAdjustment(id); a != nil {
		cp := *a
		return &cp, nil
	}
	return nil, fmt.Errorf("adjustment %s: %w", id, repository.ErrNotFound)
}

// RevokeAdjustment deactivates an active adjustment
func (s *MemStore) RevokeAdjustment(ctx context.Context, id, actor string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.findAdjustment(id)
	if a == nil || !a.Active {
		return fmt.Errorf("active adjustment %s: %w", id, repository.ErrNotFound)
	}
	a.Active = false
	a.RevokedAt = &at
	a.RevokedBy = actor
	return nil
}

// ListAdjustments returns every adjustment of a cell, newest first
func (s *MemStore) ListAdjustments(ctx context.Context, cellID string) ([]models.RiskZoneAdjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]models.RiskZoneAdjustment(nil), s.adjustments[cellID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ListScores returns scores ordered by final score, highest first
func (s *MemStore) ListScores(ctx context.Context, filter models.ScoreFilter) ([]models.RiskZoneScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.RiskZoneScore{}
	for _, score := range s.scores {
		if filter.RiskLevel != "" && score.RiskLevel != filter.RiskLevel {
			continue
		}
		if score.FinalScore < filter.MinScore {
			continue
		}
		out = append(out, score)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FinalScore != out[j].FinalScore {
			return out[i].FinalScore > out[j].FinalScore
		}
		return out[i].CellID < out[j].CellID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []models.RiskZoneScore{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ListHistory returns the audit trail of a cell, newest first
func (s *MemStore) ListHistory(ctx context.Context, cellID string, filter models.HistoryFilter) ([]models.RiskZoneHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.RiskZoneHistory{}
	for i := len(s.history) - 1; i >= 0; i-- {
		h := s.history[i]
		if h.CellID != cellID || (filter.ChangeType != "" && h.ChangeType != filter.ChangeType) {
			continue
		}
		out = append(out, h)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemStore) findAdjustment(id string) *models.RiskZoneAdjustment {
	for cell := range s.adjustments {
		adjustments := s.adjustments[cell]
		for i := range adjustments {
			if adjustments[i].ID == id {
				return &adjustments[i]
			}
		}
	}
	return nil
}

// CountEvents counts non-archived events since the given time
func (s *MemStore) CountEvents(ctx context.Context, organizationID string, since time.Time) (total, critical int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, events := range s.events {
		for _, e := range events {
			if e.Archived || e.EventDate.Before(since) {
				continue
			}
			if organizationID != "" && e.OrganizationID != organizationID {
				continue
			}
			total++
			if e.Severity == models.SeverityCritical {
				critical++
			}
		}
	}
	return total, critical, nil
}

// LastCriticalEventDate returns the latest non-archived critical event date
func (s *MemStore) LastCriticalEventDate(ctx context.Context, organizationID string) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *time.Time
	for _, events := range s.events {
		for _, e := range events {
			if e.Archived || e.Severity != models.SeverityCritical {
				continue
			}
			if organizationID != "" && e.OrganizationID != organizationID {
				continue
			}
			if last == nil || e.EventDate.After(*last) {
				d := e.EventDate
				last = &d
			}
		}
	}
	return last, nil
}

// CountZonesByRiskLevel counts stored scores per level
func (s *MemStore) CountZonesByRiskLevel(ctx context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int)
	for _, score := range s.scores {
		counts[score.RiskLevel]++
	}
	return counts, nil
}
