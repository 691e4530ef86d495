package domain

import (
	"time"
)

// RiskLevel is the discrete bucket derived from a 0-100 fraud score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevelForScore maps a composite score to its risk level. Comparisons
// are strictly greater-than: a score of exactly 75 is high, not critical.
func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score > 75:
		return RiskCritical
	case score > 50:
		return RiskHigh
	case score > 25:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Severity converts a risk level to the equivalent finding severity, used
// when scores and activities join alerts in notification and dispatch.
func (r RiskLevel) Severity() Severity {
	switch r {
	case RiskCritical:
		return SeverityCritical
	case RiskHigh:
		return SeverityHigh
	case RiskMedium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ScoreFactor is one weighted contribution to a composite fraud score.
type ScoreFactor struct {
	Factor string  `json:"factor"`
	Score  float64 `json:"score"` // weighted contribution, already clamped
	Weight float64 `json:"weight"`
}

// FraudScore is the composite risk assessment for one creator in one scan.
type FraudScore struct {
	CreatorID      string        `json:"creatorId"`
	OverallScore   float64       `json:"overallScore"` // clamped to [0,100]
	RiskLevel      RiskLevel     `json:"riskLevel"`
	Factors        []ScoreFactor `json:"contributingFactors"`
	LastCalculated time.Time     `json:"lastCalculated"`
}

// ScanStats summarizes one monitoring cycle.
type ScanStats struct {
	TransactionsScanned int `json:"transactionsScanned"`
	CreatorsAnalyzed    int `json:"creatorsAnalyzed"`
	AlertsGenerated     int `json:"alertsGenerated"`
	HighRiskCreators    int `json:"highRiskCreators"`
	ActionsTaken        int `json:"actionsTaken"`
}

// ActionRecord is the textual confirmation of one dispatched action.
type ActionRecord struct {
	CreatorID string    `json:"creatorId"`
	Action    Action    `json:"action"`
	Detail    string    `json:"detail"`
	AppliedAt time.Time `json:"appliedAt"`
}

// AnalysisReport is the output of the read-only analysis entry point.
type AnalysisReport struct {
	Alerts               []*Alert              `json:"alerts"`
	SuspiciousActivities []*SuspiciousActivity `json:"suspiciousActivities"`
	FraudScores          []*FraudScore         `json:"fraudScores"`
}

// MonitorReport is the output of a full monitoring cycle, including the
// side effects taken during it.
type MonitorReport struct {
	Alerts               []*Alert              `json:"alerts"`
	SuspiciousActivities []*SuspiciousActivity `json:"suspiciousActivities"`
	FraudScores          []*FraudScore         `json:"fraudScores"`
	Stats                ScanStats             `json:"stats"`
	ActionsTaken         []ActionRecord        `json:"actionsTaken"`
}
