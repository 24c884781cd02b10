package repository

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jengzang/riskzone-engine/internal/database"
	"github.com/jengzang/riskzone-engine/internal/models"
	"github.com/jengzang/riskzone-engine/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSQLiteStore(t *testing.T) *RiskStore {
	t.Helper()
	db, err := database.Open(database.Config{Driver: database.DriverSQLite, Path: t.TempDir() + "/risk.db"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.NewMigrationManager(db, database.DriverSQLite, zap.NewNop()).RunMigrations(context.Background()))
	return NewRiskStore(db, database.DriverSQLite)
}

func TestSQLite_EventWindowAndArchival(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	recent := &models.SecurityEvent{CellID: testCell, EventType: "robbery", Severity: "high", EventDate: testNow.AddDate(0, 0, -5), Verified: true, OrganizationID: "org-1"}
	old := &models.SecurityEvent{CellID: testCell, EventType: "assault", Severity: "critical", EventDate: testNow.AddDate(0, 0, -120), OrganizationID: "org-1"}
	archived := &models.SecurityEvent{CellID: testCell, EventType: "fraud", Severity: "low", EventDate: testNow.AddDate(0, 0, -1)}
	for _, e := range []*models.SecurityEvent{recent, old, archived} {
		require.NoError(t, store.InsertEvent(ctx, e))
	}
	require.NoError(t, store.ArchiveEvent(ctx, archived.ID))

	events, err := store.GetEvents(ctx, testCell, 90, testNow)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, recent.ID, events[0].ID)
	assert.True(t, events[0].Verified)
	assert.True(t, events[0].EventDate.Equal(recent.EventDate))

	total, critical, err := store.CountEvents(ctx, "org-1", testNow.AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 0, critical)

	last, err := store.LastCriticalEventDate(ctx, "org-1")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Equal(old.EventDate))
}

func TestSQLite_AdjustmentLifecycle(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	expired := testNow.Add(-time.Hour)
	for _, a := range []*models.RiskZoneAdjustment{
		{ID: "a-active", CellID: testCell, Value: 12, Justification: "escort reports", ValidFrom: testNow.AddDate(0, 0, -2), CreatedBy: "ana", Active: true, CreatedAt: testNow},
		{ID: "a-expired", CellID: testCell, Value: 30, Justification: "festival", ValidFrom: testNow.AddDate(0, 0, -9), ValidUntil: &expired, CreatedBy: "ana", Active: true, CreatedAt: testNow},
		{ID: "a-future", CellID: testCell, Value: 5, Justification: "planned works", ValidFrom: testNow.AddDate(0, 0, 3), CreatedBy: "ana", Active: true, CreatedAt: testNow},
	} {
		require.NoError(t, store.InsertAdjustment(ctx, a))
	}

	active, err := store.GetActiveAdjustments(ctx, testCell, testNow)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a-active", active[0].ID)

	require.NoError(t, store.RevokeAdjustment(ctx, "a-active", "lead", testNow))
	assert.ErrorIs(t, store.RevokeAdjustment(ctx, "a-active", "lead", testNow), ErrNotFound)

	active, err = store.GetActiveAdjustments(ctx, testCell, testNow)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := store.ListAdjustments(ctx, testCell)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	revoked, err := store.GetAdjustment(ctx, "a-active")
	require.NoError(t, err)
	assert.False(t, revoked.Active)
	assert.Equal(t, "lead", revoked.RevokedBy)
	require.NotNil(t, revoked.RevokedAt)
}

func TestSQLite_CommitAndHistory(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	first := &models.RiskZoneScore{CellID: testCell, Resolution: 9, BaseScore: 30, FinalScore: 30, RiskLevel: "medium", PriceMultiplier: 1.15, EventCount: 2, LastCalculatedAt: testNow}
	require.NoError(t, store.CommitRecalculation(ctx, first, &models.RiskZoneHistory{
		ID: "h-1", CellID: testCell, NewScore: 30, NewLevel: "medium", ChangeType: "recalculation", Actor: "system", CreatedAt: testNow,
	}))

	prev := 30.0
	second := *first
	second.FinalScore = 80
	second.RiskLevel = "extreme"
	second.LastCalculatedAt = testNow.Add(time.Minute)
	require.NoError(t, store.CommitRecalculation(ctx, &second, &models.RiskZoneHistory{
		ID: "h-2", CellID: testCell, PreviousScore: &prev, PreviousLevel: "medium", NewScore: 80, NewLevel: "extreme",
		ChangeType: "manual_adjustment", Actor: "ana", CreatedAt: testNow.Add(time.Minute),
	}))

	score, err := store.GetScore(ctx, testCell)
	require.NoError(t, err)
	require.NotNil(t, score)
	assert.Equal(t, 80.0, score.FinalScore)

	history, err := store.ListHistory(ctx, testCell, models.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "h-2", history[0].ID)
	require.NotNil(t, history[0].PreviousScore)
	assert.Equal(t, 30.0, *history[0].PreviousScore)
	assert.Nil(t, history[1].PreviousScore)

	ids, err := store.ListCellIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{testCell}, ids)

	zones, err := store.CountZonesByRiskLevel(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"extreme": 1}, zones)
}

// pausingRiskStore parks one armed recalculation right after it has read its inputs
type pausingRiskStore struct {
	*RiskStore
	armed   atomic.Bool
	read    chan struct{}
	release chan struct{}
}

func (s *pausingRiskStore) GetActiveAdjustments(ctx context.Context, cellID string, asOf time.Time) ([]models.RiskZoneAdjustment, error) {
	adjustments, err := s.RiskStore.GetActiveAdjustments(ctx, cellID, asOf)
	if s.armed.CompareAndSwap(true, false) {
		close(s.read)
		<-s.release
	}
	return adjustments, err
}

func TestSQLite_OverlappingRecalculationsKeepHistoryChain(t *testing.T) {
	store := &pausingRiskStore{RiskStore: newSQLiteStore(t), read: make(chan struct{}), release: make(chan struct{})}
	ctx := context.Background()

	engine, err := scoring.NewEngine(store, scoring.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	var tick atomic.Int64
	engine.Now = func() time.Time { return testNow.Add(time.Duration(tick.Add(1)) * time.Second) }

	_, err = engine.RecalculateZone(ctx, testCell)
	require.NoError(t, err)

	store.armed.Store(true)
	staleDone := make(chan error, 1)
	go func() {
		_, err := engine.RecalculateZone(ctx, testCell)
		staleDone <- err
	}()
	<-store.read

	require.NoError(t, store.InsertEvent(ctx, &models.SecurityEvent{
		CellID: testCell, EventType: "kidnapping", Severity: "critical", Verified: true, EventDate: testNow.AddDate(0, 0, -1),
	}))
	fresh, err := engine.RecalculateZone(ctx, testCell)
	require.NoError(t, err)
	require.Greater(t, fresh.FinalScore, 0.0)

	close(store.release)
	require.NoError(t, <-staleDone)

	history, err := store.ListHistory(ctx, testCell, models.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, history, 3)

	var first, freshEntry, staleEntry *models.RiskZoneHistory
	for i := range history {
		h := &history[i]
		switch {
		case h.PreviousScore == nil:
			first = h
		case h.NewScore == fresh.FinalScore:
			freshEntry = h
		default:
			staleEntry = h
		}
	}
	require.NotNil(t, first)
	require.NotNil(t, freshEntry)
	require.NotNil(t, staleEntry)

	assert.Equal(t, 0.0, *freshEntry.PreviousScore)
	assert.Equal(t, fresh.FinalScore, *staleEntry.PreviousScore, "stale commit records the score it replaced")
	assert.Equal(t, fresh.RiskLevel, staleEntry.PreviousLevel)
	assert.Equal(t, 0.0, staleEntry.NewScore)

	live, err := store.GetScore(ctx, testCell)
	require.NoError(t, err)
	assert.Equal(t, staleEntry.NewScore, live.FinalScore)
}
