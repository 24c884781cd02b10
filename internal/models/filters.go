package models

// ScoreFilter represents filter parameters for listing zone scores
type ScoreFilter struct {
	RiskLevel string  `form:"risk_level"` // low, medium, high, extreme
	MinScore  float64 `form:"min_score"`
	Limit     int     `form:"limit"`
	Offset    int     `form:"offset"`
}

// HistoryFilter represents filter parameters for the audit trail of a cell
type HistoryFilter struct {
	ChangeType string `form:"change_type"`
	Limit      int    `form:"limit"`
}
