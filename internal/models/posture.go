package models

import "time"

// SecurityPosture is the dashboard rollup of zone scores and recent events
type SecurityPosture struct {
	OrganizationID        string          `json:"organization_id,omitempty"`
	WindowDays            int             `json:"window_days"`
	TotalEvents           int             `json:"total_events"`
	CriticalEvents        int             `json:"critical_events"`
	ZonesByRiskLevel      map[string]int  `json:"zones_by_risk_level"`
	LastCriticalEventDate *time.Time      `json:"last_critical_event_date,omitempty"`
	DaysSinceLastCritical *int            `json:"days_since_last_critical"`
	TopZones              []RiskZoneScore `json:"top_zones"`
	GeneratedAt           time.Time       `json:"generated_at"`
}
