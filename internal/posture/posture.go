// Package posture rolls zone scores and recent events up into dashboard KPIs.
package posture

import (
	"context"
	"fmt"
	"time"

	"github.com/jengzang/riskzone-engine/internal/models"
	"go.uber.org/zap"
)

// Defaults
const (
	DefaultWindowDays = 90
	DefaultTopZones   = 5
)

// Store is the read side the aggregator needs
type Store interface {
	CountEvents(ctx context.Context, organizationID string, since time.Time) (total, critical int, err error)
	LastCriticalEventDate(ctx context.Context, organizationID string) (*time.Time, error)
	CountZonesByRiskLevel(ctx context.Context) (map[string]int, error)
	ListScores(ctx context.Context, filter models.ScoreFilter) ([]models.RiskZoneScore, error)
}

// Aggregator computes security posture summaries
type Aggregator struct {
	store      Store
	windowDays int
	topZones   int
	logger     *zap.Logger

	Now func() time.Time
}

// NewAggregator creates a posture aggregator over the default 90 day window
func NewAggregator(store Store, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		store:      store,
		windowDays: DefaultWindowDays,
		topZones:   DefaultTopZones,
		logger:     logger,
		Now:        time.Now,
	}
}

// Summary returns the posture of an organization; an empty id covers all organizations.
// Zone counts are global since scores are not organization scoped.
func (a *Aggregator) Summary(ctx context.Context, organizationID string) (*models.SecurityPosture, error) {
	now := a.Now()
	since := now.AddDate(0, 0, -a.windowDays)

	total, critical, err := a.store.CountEvents(ctx, organizationID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}

	last, err := a.store.LastCriticalEventDate(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get last critical event: %w", err)
	}

	counts, err := a.store.CountZonesByRiskLevel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count zones: %w", err)
	}

	top, err := a.store.ListScores(ctx, models.ScoreFilter{Limit: a.topZones})
	if err != nil {
		return nil, fmt.Errorf("failed to list top zones: %w", err)
	}

	zones := make(map[string]int, len(models.RiskLevels))
	for _, level := range models.RiskLevels {
		zones[level] = counts[level]
	}

	p := &models.SecurityPosture{
		OrganizationID:        organizationID,
		WindowDays:            a.windowDays,
		TotalEvents:           total,
		CriticalEvents:        critical,
		ZonesByRiskLevel:      zones,
		LastCriticalEventDate: last,
		TopZones:              top,
		GeneratedAt:           now,
	}
	if last != nil {
		days := daysBetween(*last, now)
		p.DaysSinceLastCritical = &days
	}

	a.logger.Debug("Posture computed",
		zap.String("organization_id", organizationID),
		zap.Int("total_events", total),
		zap.Int("critical_events", critical),
	)
	return p, nil
}

func daysBetween(from, to time.Time) int {
	d := to.Sub(from)
	if d <= 0 {
		return 0
	}
	return int(d.Hours() / 24)
}
