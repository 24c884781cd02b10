package scoring

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jengzang/riskzone-engine/internal/models"
	"github.com/jengzang/riskzone-engine/internal/scoring/scoringtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testCell = "8928308280fffff"

func newTestEngine(t *testing.T, store Store) *Engine {
	t.Helper()
	engine, err := NewEngine(store, DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	engine.Now = func() time.Time { return fixedNow }
	return engine
}

func TestRecalculateZone_CriticalVerifiedEventIsExtreme(t *testing.T) {
	store := scoringtest.NewMemStore()
	store.AddEvent(models.SecurityEvent{
		CellID:    testCell,
		EventType: models.EventTypeRobbery,
		Severity:  models.SeverityCritical,
		Verified:  true,
		EventDate: daysAgo(10),
	})
	engine := newTestEngine(t, store)

	score, err := engine.RecalculateZone(context.Background(), testCell)
	require.NoError(t, err)

	assert.Equal(t, models.RiskLevelExtreme, score.RiskLevel)
	assert.Equal(t, 1.60, score.PriceMultiplier)
	assert.Equal(t, 1, score.EventCount)
	assert.Equal(t, 9, score.Resolution)
	assert.InDelta(t, 83.5, score.FinalScore, 0.1)

	history := store.History(testCell)
	require.Len(t, history, 1)
	assert.Equal(t, models.ChangeTypeRecalculation, history[0].ChangeType)
	assert.Nil(t, history[0].PreviousScore)
	assert.Equal(t, models.RiskLevelExtreme, history[0].NewLevel)
	assert.Equal(t, models.SystemActor, history[0].Actor)
	assert.NotEmpty(t, history[0].ID)
}

func TestRecalculateZone_Idempotent(t *testing.T) {
	store := scoringtest.NewMemStore()
	store.AddEvent(models.SecurityEvent{CellID: testCell, Severity: models.SeverityHigh, EventDate: daysAgo(20)})
	store.AddEvent(models.SecurityEvent{CellID: testCell, Severity: models.SeverityMedium, EventDate: daysAgo(3), Verified: true})
	store.AddAdjustment(models.RiskZoneAdjustment{CellID: testCell, Value: 5, Active: true, ValidFrom: daysAgo(30)})
	engine := newTestEngine(t, store)

	first, err := engine.RecalculateZone(context.Background(), testCell)
	require.NoError(t, err)
	second, err := engine.RecalculateZone(context.Background(), testCell)
	require.NoError(t, err)

	assert.Equal(t, first.FinalScore, second.FinalScore)
	assert.Equal(t, first.RiskLevel, second.RiskLevel)
	assert.Equal(t, first.PriceMultiplier, second.PriceMultiplier)

	history := store.History(testCell)
	require.Len(t, history, 2)
	require.NotNil(t, history[1].PreviousScore)
	assert.Equal(t, first.FinalScore, *history[1].PreviousScore)
	assert.Equal(t, first.RiskLevel, history[1].PreviousLevel)
}

func TestRecalculateZone_ClampsBothDirections(t *testing.T) {
	store := scoringtest.NewMemStore()
	for i := 0; i < 6; i++ {
		store.AddEvent(models.SecurityEvent{CellID: testCell, Severity: models.SeverityCritical, EventDate: daysAgo(i), Verified: true})
	}
	engine := newTestEngine(t, store)

	score, err := engine.RecalculateZone(context.Background(), testCell)
	require.NoError(t, err)
	assert.Equal(t, 100.0, score.FinalScore)
	assert.Greater(t, score.BaseScore, 100.0)

	store.AddAdjustment(models.RiskZoneAdjustment{CellID: testCell, Value: -1000, Active: true, ValidFrom: daysAgo(1)})
	score, err = engine.RecalculateZone(context.Background(), testCell)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score.FinalScore)
	assert.Equal(t, models.RiskLevelLow, score.RiskLevel)
	assert.Equal(t, -1000.0, score.ManualAdjustment)
}

func TestRecalculateZone_FirstCalculationCreatesScore(t *testing.T) {
	store := scoringtest.NewMemStore()
	engine := newTestEngine(t, store)

	score, err := engine.RecalculateZone(context.Background(), testCell)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score.FinalScore)
	assert.Equal(t, models.RiskLevelLow, score.RiskLevel)
	assert.Nil(t, score.LastEventDate)

	stored, ok := store.Score(testCell)
	require.True(t, ok)
	assert.Equal(t, fixedNow, stored.LastCalculatedAt)
}

func TestRecalculateZone_InvalidCell(t *testing.T) {
	store := scoringtest.NewMemStore()
	store.FailGetEvents = func(string) error {
		t.Fatal("store must not be called for an invalid cell")
		return nil
	}
	engine := newTestEngine(t, store)

	_, err := engine.RecalculateZone(context.Background(), "not-a-cell")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCell))
	assert.True(t, IsInputError(err))

	var zerr *ZoneError
	require.True(t, errors.As(err, &zerr))
	assert.Equal(t, "not-a-cell", zerr.CellID)
}

func TestRecalculateZone_StoreErrorsSurface(t *testing.T) {
	boom := errors.New("connection reset")

	store := scoringtest.NewMemStore()
	store.FailGetEvents = func(string) error { return boom }
	engine := newTestEngine(t, store)

	_, err := engine.RecalculateZone(context.Background(), testCell)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.False(t, IsInputError(err))
	assert.Contains(t, err.Error(), "get events")
}

func TestRecalculateZone_CommitFailureWritesNothing(t *testing.T) {
	store := scoringtest.NewMemStore()
	store.AddEvent(models.SecurityEvent{CellID: testCell, Severity: models.SeverityHigh, EventDate: daysAgo(1)})
	store.FailCommit = func(string) error { return errors.New("disk full") }
	engine := newTestEngine(t, store)

	_, err := engine.RecalculateZone(context.Background(), testCell)
	require.Error(t, err)

	_, ok := store.Score(testCell)
	assert.False(t, ok)
	assert.Empty(t, store.History(testCell))
}

func TestRecalculate_RecordsChange(t *testing.T) {
	store := scoringtest.NewMemStore()
	engine := newTestEngine(t, store)

	_, err := engine.Recalculate(context.Background(), "8928308280FFFFF", Change{
		Type:   models.ChangeTypeManualAdjustment,
		Reason: "convoy ambush reported by field team",
		Actor:  "analyst@example.com",
	})
	require.NoError(t, err)

	history := store.History(testCell)
	require.Len(t, history, 1)
	assert.Equal(t, models.ChangeTypeManualAdjustment, history[0].ChangeType)
	assert.Equal(t, "convoy ambush reported by field team", history[0].ChangeReason)
	assert.Equal(t, "analyst@example.com", history[0].Actor)
}

type recordingListener struct {
	scores []*models.RiskZoneScore
	err    error
}

func (l *recordingListener) ScoreUpdated(ctx context.Context, score *models.RiskZoneScore) error {
	l.scores = append(l.scores, score)
	return l.err
}

func TestRecalculateZone_NotifiesListener(t *testing.T) {
	store := scoringtest.NewMemStore()
	engine := newTestEngine(t, store)
	listener := &recordingListener{err: errors.New("cache down")}
	engine.SetListener(listener)

	score, err := engine.RecalculateZone(context.Background(), testCell)
	require.NoError(t, err, "listener failures must not fail the recalculation")
	require.Len(t, listener.scores, 1)
	assert.Equal(t, score, listener.scores[0])
}

// holdingStore parks the first armed recalculation after it has read its inputs
type holdingStore struct {
	*scoringtest.MemStore
	armed   atomic.Bool
	read    chan struct{}
	release chan struct{}
}

func (s *holdingStore) GetActiveAdjustments(ctx context.Context, cellID string, asOf time.Time) ([]models.RiskZoneAdjustment, error) {
	adjustments, err := s.MemStore.GetActiveAdjustments(ctx, cellID, asOf)
	if s.armed.CompareAndSwap(true, false) {
		close(s.read)
		<-s.release
	}
	return adjustments, err
}

func TestRecalculateZone_OverlappingRecalculationsRecordLiveTransitions(t *testing.T) {
	store := &holdingStore{
		MemStore: scoringtest.NewMemStore(),
		read:     make(chan struct{}),
		release:  make(chan struct{}),
	}
	engine := newTestEngine(t, store)
	ctx := context.Background()

	_, err := engine.RecalculateZone(ctx, testCell)
	require.NoError(t, err)

	store.armed.Store(true)
	staleDone := make(chan error, 1)
	go func() {
		_, err := engine.RecalculateZone(ctx, testCell)
		staleDone <- err
	}()
	<-store.read

	store.AddEvent(models.SecurityEvent{
		CellID:    testCell,
		EventType: models.EventTypeKidnapping,
		Severity:  models.SeverityCritical,
		Verified:  true,
		EventDate: daysAgo(1),
	})
	fresh, err := engine.RecalculateZone(ctx, testCell)
	require.NoError(t, err)
	require.Greater(t, fresh.FinalScore, 0.0)

	close(store.release)
	require.NoError(t, <-staleDone)

	history := store.History(testCell)
	require.Len(t, history, 3)
	assert.Nil(t, history[0].PreviousScore)

	require.NotNil(t, history[1].PreviousScore)
	assert.Equal(t, 0.0, *history[1].PreviousScore)
	assert.Equal(t, fresh.FinalScore, history[1].NewScore)

	require.NotNil(t, history[2].PreviousScore)
	assert.Equal(t, fresh.FinalScore, *history[2].PreviousScore, "stale commit replaces the live score")
	assert.Equal(t, fresh.RiskLevel, history[2].PreviousLevel)
	assert.Equal(t, 0.0, history[2].NewScore)

	for i := 1; i < len(history); i++ {
		assert.Equal(t, history[i-1].NewScore, *history[i].PreviousScore, "history chain is unbroken")
	}
}
