package models

import "time"

// RiskZoneScore is the current computed state of one cell.
// One row per cell, overwritten on every recalculation.
type RiskZoneScore struct {
	CellID     string `json:"cell_id" db:"cell_id"`
	Resolution int    `json:"resolution" db:"resolution"`

	BaseScore        float64 `json:"base_score" db:"base_score"`               // from events
	ManualAdjustment float64 `json:"manual_adjustment" db:"manual_adjustment"` // sum of active adjustments
	FinalScore       float64 `json:"final_score" db:"final_score"`             // clamp(base + adjustment, 0, 100)

	RiskLevel       string  `json:"risk_level" db:"risk_level"`
	PriceMultiplier float64 `json:"price_multiplier" db:"price_multiplier"`

	EventCount       int        `json:"event_count" db:"event_count"`
	LastEventDate    *time.Time `json:"last_event_date,omitempty" db:"last_event_date"`
	LastCalculatedAt time.Time  `json:"last_calculated_at" db:"last_calculated_at"`
}

// RiskZoneAdjustment is an analyst override of a cell score.
// Adjustments are deactivated, never deleted.
type RiskZoneAdjustment struct {
	ID            string     `json:"id" db:"id"`
	CellID        string     `json:"cell_id" db:"cell_id"`
	Value         float64    `json:"value" db:"adjustment_value"` // signed delta
	Justification string     `json:"justification" db:"justification"`
	ValidFrom     time.Time  `json:"valid_from" db:"valid_from"`
	ValidUntil    *time.Time `json:"valid_until,omitempty" db:"valid_until"`
	CreatedBy     string     `json:"created_by" db:"created_by"`
	Active        bool       `json:"active" db:"active"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	RevokedBy     string     `json:"revoked_by,omitempty" db:"revoked_by"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// IsEffective reports whether the adjustment contributes to a score at asOf
func (a *RiskZoneAdjustment) IsEffective(asOf time.Time) bool {
	if !a.Active || asOf.Before(a.ValidFrom) {
		return false
	}
	return a.ValidUntil == nil || asOf.Before(*a.ValidUntil)
}

// RiskZoneHistory is one entry of the append-only score audit trail
type RiskZoneHistory struct {
	ID            string    `json:"id" db:"id"`
	CellID        string    `json:"cell_id" db:"cell_id"`
	PreviousScore *float64  `json:"previous_score,omitempty" db:"previous_score"` // nil on first calculation
	NewScore      float64   `json:"new_score" db:"new_score"`
	PreviousLevel string    `json:"previous_level,omitempty" db:"previous_level"`
	NewLevel      string    `json:"new_level" db:"new_level"`
	ChangeType    string    `json:"change_type" db:"change_type"`
	ChangeReason  string    `json:"change_reason,omitempty" db:"change_reason"`
	Actor         string    `json:"actor" db:"actor"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Risk level constants, ordered low < medium < high < extreme
const (
	RiskLevelLow     = "low"
	RiskLevelMedium  = "medium"
	RiskLevelHigh    = "high"
	RiskLevelExtreme = "extreme"
)

// RiskLevels lists every level in ascending severity
var RiskLevels = []string{RiskLevelLow, RiskLevelMedium, RiskLevelHigh, RiskLevelExtreme}

// RiskLevelRank returns the ordinal of a risk level, -1 when unknown
func RiskLevelRank(level string) int {
	for i, l := range RiskLevels {
		if l == level {
			return i
		}
	}
	return -1
}

// ChangeType constants
const (
	ChangeTypeEventAdded       = "event_added"
	ChangeTypeRecalculation    = "recalculation"
	ChangeTypeManualAdjustment = "manual_adjustment"
	ChangeTypeSystemUpdate     = "system_update"
)

// SystemActor is recorded when no analyst triggered the change
const SystemActor = "system"
