// Package scoring computes risk zone scores from security events and
// analyst adjustments.
package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/jengzang/riskzone-engine/internal/models"
)

// Score bounds
const (
	MinScore = 0.0
	MaxScore = 100.0
)

// Risk level thresholds on the final score
const (
	ExtremeThreshold = 76.0
	HighThreshold    = 51.0
	MediumThreshold  = 26.0
)

var priceMultipliers = map[string]float64{
	models.RiskLevelLow:     1.00,
	models.RiskLevelMedium:  1.15,
	models.RiskLevelHigh:    1.35,
	models.RiskLevelExtreme: 1.60,
}

// Config holds the tunable scoring constants
type Config struct {
	SeverityWeights   map[string]float64
	WindowDays        int
	HalfLifeDays      float64
	DecayFloor        float64 // minimum fraction of weight an in-window event keeps
	VerificationBonus float64 // multiplier applied to verified events
}

// DefaultConfig returns the standard scoring constants
func DefaultConfig() Config {
	return Config{
		SeverityWeights: map[string]float64{
			models.SeverityLow:      8,
			models.SeverityMedium:   20,
			models.SeverityHigh:     40,
			models.SeverityCritical: 80,
		},
		WindowDays:        90,
		HalfLifeDays:      30,
		DecayFloor:        0.2,
		VerificationBonus: 1.25,
	}
}

// Validate checks the monotonic and bounded properties the engine relies on
func (c Config) Validate() error {
	order := []string{models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical}
	prev := 0.0
	for _, sev := range order {
		w, ok := c.SeverityWeights[sev]
		if !ok {
			return fmt.Errorf("missing weight for severity %s", sev)
		}
		if w <= prev {
			return fmt.Errorf("severity weights must be positive and strictly increasing (%s=%v)", sev, w)
		}
		prev = w
	}
	if c.WindowDays <= 0 {
		return fmt.Errorf("window days must be positive, got %d", c.WindowDays)
	}
	if c.HalfLifeDays <= 0 {
		return fmt.Errorf("half-life must be positive, got %v", c.HalfLifeDays)
	}
	if c.DecayFloor < 0 || c.DecayFloor > 1 {
		return fmt.Errorf("decay floor must be within [0, 1], got %v", c.DecayFloor)
	}
	if c.VerificationBonus <= 1 {
		return fmt.Errorf("verification bonus must be greater than 1, got %v", c.VerificationBonus)
	}
	return nil
}

// SeverityWeight returns the configured weight; unknown severities weigh as low
func (c Config) SeverityWeight(severity string) float64 {
	if w, ok := c.SeverityWeights[severity]; ok {
		return w
	}
	return c.SeverityWeights[models.SeverityLow]
}

// AgeDays is the whole number of days between eventDate and now, never negative
func AgeDays(eventDate, now time.Time) int {
	age := now.Sub(eventDate)
	if age <= 0 {
		return 0
	}
	return int(age.Hours() / 24)
}

// DecayFactor lowers an event's contribution as it ages.
// Result lies in [DecayFloor, 1] and never increases with age.
func (c Config) DecayFactor(eventDate, now time.Time) float64 {
	age := float64(AgeDays(eventDate, now))
	return c.DecayFloor + (1-c.DecayFloor)*math.Exp2(-age/c.HalfLifeDays)
}

// EventContribution is the weighted, decayed and bonus-adjusted score of one event
func (c Config) EventContribution(e models.SecurityEvent, now time.Time) float64 {
	v := c.SeverityWeight(e.Severity) * c.DecayFactor(e.EventDate, now)
	if e.Verified {
		v *= c.VerificationBonus
	}
	return v
}

// BaseScore sums contributions of non-archived events inside the window.
// It also returns how many events counted and the most recent event date.
func (c Config) BaseScore(events []models.SecurityEvent, now time.Time) (float64, int, *time.Time) {
	cutoff := now.AddDate(0, 0, -c.WindowDays)

	var (
		total float64
		count int
		last  *time.Time
	)
	for i := range events {
		e := events[i]
		if e.Archived || e.EventDate.Before(cutoff) {
			continue
		}
		total += c.EventContribution(e, now)
		count++
		if last == nil || e.EventDate.After(*last) {
			d := e.EventDate
			last = &d
		}
	}
	return total, count, last
}

// SumAdjustments totals the adjustments effective at asOf
func SumAdjustments(adjustments []models.RiskZoneAdjustment, asOf time.Time) float64 {
	var sum float64
	for i := range adjustments {
		if adjustments[i].IsEffective(asOf) {
			sum += adjustments[i].Value
		}
	}
	return sum
}

// Clamp bounds a score to [MinScore, MaxScore]
func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return MinScore
	}
	return math.Max(MinScore, math.Min(MaxScore, v))
}

// RiskLevelFor maps a final score to its risk level
func RiskLevelFor(score float64) string {
	switch {
	case score >= ExtremeThreshold:
		return models.RiskLevelExtreme
	case score >= HighThreshold:
		return models.RiskLevelHigh
	case score >= MediumThreshold:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelLow
	}
}

// PriceMultiplierFor maps a risk level to its pricing factor
func PriceMultiplierFor(level string) float64 {
	if m, ok := priceMultipliers[level]; ok {
		return m
	}
	return priceMultipliers[models.RiskLevelLow]
}

// Compute derives a zone score from an event and adjustment snapshot.
// It is a pure function of its arguments.
func (c Config) Compute(cellID string, resolution int, events []models.SecurityEvent, adjustments []models.RiskZoneAdjustment, now time.Time) *models.RiskZoneScore {
	base, count, last := c.BaseScore(events, now)
	adjustment := SumAdjustments(adjustments, now)

	base = round2(base)
	adjustment = round2(adjustment)
	final := round2(Clamp(base + adjustment))
	level := RiskLevelFor(final)

	return &models.RiskZoneScore{
		CellID:           cellID,
		Resolution:       resolution,
		BaseScore:        base,
		ManualAdjustment: adjustment,
		FinalScore:       final,
		RiskLevel:        level,
		PriceMultiplier:  PriceMultiplierFor(level),
		EventCount:       count,
		LastEventDate:    last,
		LastCalculatedAt: now,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
