package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jengzang/riskzone-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T) (*ScoreCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(Config{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return NewScoreCache(client, time.Minute, zap.NewNop()), mr
}

func TestScoreCache_RoundTrip(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "8928308280fffff")
	require.NoError(t, err)
	assert.False(t, ok)

	score := &models.RiskZoneScore{CellID: "8928308280fffff", FinalScore: 83.5, RiskLevel: "extreme", PriceMultiplier: 1.6}
	require.NoError(t, c.ScoreUpdated(ctx, score))
	assert.True(t, mr.Exists("riskzone:score:8928308280fffff"))

	got, ok, err := c.Get(ctx, "8928308280fffff")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 83.5, got.FinalScore)
	assert.Equal(t, "extreme", got.RiskLevel)
}

func TestScoreCache_Expires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &models.RiskZoneScore{CellID: "8928308280fffff"}))
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, "8928308280fffff")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScoreCache_CorruptEntry(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set("riskzone:score:8928308280fffff", "{not json"))

	_, ok, err := c.Get(context.Background(), "8928308280fffff")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(Config{Addr: addr}, zap.NewNop())
	assert.Error(t, err)
}
