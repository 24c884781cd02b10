package scoring

import (
	"math/rand"
	"testing"
	"time"

	"github.com/jengzang/riskzone-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return fixedNow.AddDate(0, 0, -n)
}

func TestDefaultConfig_Valid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SeverityWeights = map[string]float64{"low": 10, "medium": 5, "high": 40, "critical": 80}
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.VerificationBonus = 1.0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.DecayFloor = 1.5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	delete(cfg.SeverityWeights, "critical")
	assert.Error(t, cfg.Validate())
}

func TestSeverityWeighting_Monotonic(t *testing.T) {
	cfg := DefaultConfig()
	order := []string{models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical}

	for _, verified := range []bool{false, true} {
		for _, age := range []int{0, 10, 45, 89} {
			prev := -1.0
			for _, sev := range order {
				e := models.SecurityEvent{Severity: sev, EventDate: daysAgo(age), Verified: verified}
				v := cfg.EventContribution(e, fixedNow)
				assert.Greater(t, v, prev, "severity %s age %d verified %v", sev, age, verified)
				prev = v
			}
		}
	}
}

func TestDecayFactor_MonotonicAndBounded(t *testing.T) {
	cfg := DefaultConfig()

	prev := 2.0
	for age := 0; age <= 400; age++ {
		f := cfg.DecayFactor(daysAgo(age), fixedNow)
		assert.LessOrEqual(t, f, prev)
		assert.GreaterOrEqual(t, f, cfg.DecayFloor)
		assert.LessOrEqual(t, f, 1.0)
		prev = f
	}

	// future-dated events are not amplified
	assert.Equal(t, 1.0, cfg.DecayFactor(fixedNow.Add(48*time.Hour), fixedNow))
}

func TestVerificationBonus(t *testing.T) {
	cfg := DefaultConfig()
	e := models.SecurityEvent{Severity: models.SeverityHigh, EventDate: daysAgo(3)}
	plain := cfg.EventContribution(e, fixedNow)
	e.Verified = true
	assert.InDelta(t, plain*cfg.VerificationBonus, cfg.EventContribution(e, fixedNow), 1e-9)
}

func TestBaseScore_SkipsArchivedAndOutOfWindow(t *testing.T) {
	cfg := DefaultConfig()
	events := []models.SecurityEvent{
		{Severity: models.SeverityHigh, EventDate: daysAgo(5)},
		{Severity: models.SeverityCritical, EventDate: daysAgo(5), Archived: true},
		{Severity: models.SeverityCritical, EventDate: daysAgo(120)},
	}

	score, count, last := cfg.BaseScore(events, fixedNow)
	assert.Equal(t, 1, count)
	require.NotNil(t, last)
	assert.Equal(t, daysAgo(5), *last)
	assert.InDelta(t, cfg.EventContribution(events[0], fixedNow), score, 1e-9)
}

func TestRiskLevelFor_Thresholds(t *testing.T) {
	tests := []struct {
		score float64
		level string
	}{
		{0, "low"},
		{25.99, "low"},
		{26, "medium"},
		{50.99, "medium"},
		{51, "high"},
		{75.99, "high"},
		{76, "extreme"},
		{100, "extreme"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.level, RiskLevelFor(tt.score), "score %v", tt.score)
	}
}

func TestPriceMultiplierFor(t *testing.T) {
	assert.Equal(t, 1.00, PriceMultiplierFor("low"))
	assert.Equal(t, 1.15, PriceMultiplierFor("medium"))
	assert.Equal(t, 1.35, PriceMultiplierFor("high"))
	assert.Equal(t, 1.60, PriceMultiplierFor("extreme"))
	assert.Equal(t, 1.00, PriceMultiplierFor("bogus"))
}

func TestCompute_ClampingInvariant(t *testing.T) {
	cfg := DefaultConfig()
	rng := rand.New(rand.NewSource(42))
	severities := []string{"low", "medium", "high", "critical"}

	for i := 0; i < 500; i++ {
		var events []models.SecurityEvent
		for j := rng.Intn(15); j > 0; j-- {
			events = append(events, models.SecurityEvent{
				Severity:  severities[rng.Intn(len(severities))],
				EventDate: daysAgo(rng.Intn(100)),
				Verified:  rng.Intn(2) == 0,
			})
		}
		var adjustments []models.RiskZoneAdjustment
		for j := rng.Intn(3); j > 0; j-- {
			adjustments = append(adjustments, models.RiskZoneAdjustment{
				Value:     float64(rng.Intn(400) - 200),
				Active:    true,
				ValidFrom: daysAgo(1),
			})
		}

		score := cfg.Compute("8928308280fffff", 9, events, adjustments, fixedNow)
		assert.GreaterOrEqual(t, score.FinalScore, 0.0)
		assert.LessOrEqual(t, score.FinalScore, 100.0)
		assert.Equal(t, RiskLevelFor(score.FinalScore), score.RiskLevel)
		assert.Equal(t, PriceMultiplierFor(score.RiskLevel), score.PriceMultiplier)
	}
}

func TestCompute_AdjustmentsOutsideWindowIgnored(t *testing.T) {
	cfg := DefaultConfig()
	expired := daysAgo(1)
	adjustments := []models.RiskZoneAdjustment{
		{Value: 30, Active: true, ValidFrom: daysAgo(10)},
		{Value: 50, Active: true, ValidFrom: daysAgo(10), ValidUntil: &expired},
		{Value: 40, Active: false, ValidFrom: daysAgo(10)},
		{Value: 20, Active: true, ValidFrom: fixedNow.AddDate(0, 0, 2)},
	}

	score := cfg.Compute("8928308280fffff", 9, nil, adjustments, fixedNow)
	assert.Equal(t, 30.0, score.ManualAdjustment)
	assert.Equal(t, 30.0, score.FinalScore)
	assert.Equal(t, "medium", score.RiskLevel)
}
