package models

import "time"

// SecurityEvent represents a single observed incident inside a hexagonal cell
type SecurityEvent struct {
	ID int64 `json:"id" db:"id"`

	// Location
	CellID string `json:"cell_id" db:"cell_id"` // H3 index

	// Classification
	EventType string `json:"event_type" db:"event_type"` // robbery, assault, kidnapping, ...
	Severity  string `json:"severity" db:"severity"`     // low, medium, high, critical

	EventDate   time.Time `json:"event_date" db:"event_date"`
	Description string    `json:"description,omitempty" db:"description"`
	Source      string    `json:"source,omitempty" db:"source"`
	Verified    bool      `json:"verified" db:"verified"`

	// Organization scope
	OrganizationID string `json:"organization_id,omitempty" db:"organization_id"`

	// Soft archival, archived events never contribute to a score
	Archived bool `json:"archived" db:"archived"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Event type constants
const (
	EventTypeRobbery    = "robbery"
	EventTypeAssault    = "assault"
	EventTypeKidnapping = "kidnapping"
	EventTypeVandalism  = "vandalism"
	EventTypeFraud      = "fraud"
	EventTypeAccident   = "accident"
	EventTypeThreat     = "threat"
	EventTypeOther      = "other"
)

// Severity constants
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

var validEventTypes = map[string]bool{
	EventTypeRobbery:    true,
	EventTypeAssault:    true,
	EventTypeKidnapping: true,
	EventTypeVandalism:  true,
	EventTypeFraud:      true,
	EventTypeAccident:   true,
	EventTypeThreat:     true,
	EventTypeOther:      true,
}

var validSeverities = map[string]bool{
	SeverityLow:      true,
	SeverityMedium:   true,
	SeverityHigh:     true,
	SeverityCritical: true,
}

// IsValidEventType reports whether t is a known event type
func IsValidEventType(t string) bool {
	return validEventTypes[t]
}

// IsValidSeverity reports whether s is a known severity tier
func IsValidSeverity(s string) bool {
	return validSeverities[s]
}
