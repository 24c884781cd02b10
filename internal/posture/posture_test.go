package posture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jengzang/riskzone-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	total, critical int
	lastCritical    *time.Time
	zones           map[string]int
	scores          []models.RiskZoneScore
	err             error

	gotOrg   string
	gotSince time.Time
	gotLimit int
}

func (f *fakeStore) CountEvents(ctx context.Context, org string, since time.Time) (int, int, error) {
	f.gotOrg, f.gotSince = org, since
	return f.total, f.critical, f.err
}

func (f *fakeStore) LastCriticalEventDate(ctx context.Context, org string) (*time.Time, error) {
	return f.lastCritical, nil
}

func (f *fakeStore) CountZonesByRiskLevel(ctx context.Context) (map[string]int, error) {
	return f.zones, nil
}

func (f *fakeStore) ListScores(ctx context.Context, filter models.ScoreFilter) ([]models.RiskZoneScore, error) {
	f.gotLimit = filter.Limit
	return f.scores, nil
}

func TestSummary(t *testing.T) {
	last := fixedNow.Add(-(12*24 + 5) * time.Hour)
	store := &fakeStore{
		total:        40,
		critical:     3,
		lastCritical: &last,
		zones:        map[string]int{"extreme": 2, "low": 10},
		scores:       []models.RiskZoneScore{{CellID: "8928308280fffff", FinalScore: 91}},
	}
	agg := NewAggregator(store, zap.NewNop())
	agg.Now = func() time.Time { return fixedNow }

	p, err := agg.Summary(context.Background(), "org-7")
	require.NoError(t, err)

	assert.Equal(t, "org-7", store.gotOrg)
	assert.Equal(t, fixedNow.AddDate(0, 0, -90), store.gotSince)
	assert.Equal(t, DefaultTopZones, store.gotLimit)

	assert.Equal(t, 40, p.TotalEvents)
	assert.Equal(t, 3, p.CriticalEvents)
	assert.Equal(t, map[string]int{"low": 10, "medium": 0, "high": 0, "extreme": 2}, p.ZonesByRiskLevel)
	require.NotNil(t, p.DaysSinceLastCritical)
	assert.Equal(t, 12, *p.DaysSinceLastCritical)
	assert.Len(t, p.TopZones, 1)
	assert.Equal(t, 90, p.WindowDays)
}

func TestSummary_NoCriticalEvents(t *testing.T) {
	agg := NewAggregator(&fakeStore{}, zap.NewNop())

	p, err := agg.Summary(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, p.DaysSinceLastCritical)
	assert.Nil(t, p.LastCriticalEventDate)
	assert.Len(t, p.ZonesByRiskLevel, 4)
}

func TestSummary_StoreError(t *testing.T) {
	agg := NewAggregator(&fakeStore{err: errors.New("timeout")}, zap.NewNop())

	_, err := agg.Summary(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to count events")
}
