package domain

import (
	"time"
)

// AlertStatus is the review state of a finding. Every finding starts as
// StatusNew; review transitions happen outside this engine.
type AlertStatus string

const (
	StatusNew       AlertStatus = "new"
	StatusReviewed  AlertStatus = "reviewed"
	StatusDismissed AlertStatus = "dismissed"
)

// Alert kinds that are not tied to a catalog rule.
const (
	AlertMultiAccount = "multi_account"

	// CustomRulePrefix prefixes alerts raised by operator-defined rules.
	CustomRulePrefix = "custom:"
)

// Alert is the output of rule evaluation or cross-creator correlation.
// Alerts are ephemeral: they are created fresh each scan and are not
// deduplicated against earlier scans.
type Alert struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"` // rule kind, "multi_account", or "custom:<id>"
	Severity  Severity `json:"severity"`
	CreatorID string   `json:"creatorId"`

	Amount      int64          `json:"amount,omitempty"`
	Description string         `json:"description"`
	Evidence    map[string]any `json:"evidence,omitempty"`

	DetectedAt time.Time   `json:"detectedAt"`
	Status     AlertStatus `json:"status"`
	AutoAction Action      `json:"autoAction,omitempty"`
}

// ActivityType classifies non-rule anomaly findings.
type ActivityType string

const (
	ActivityTimingPattern ActivityType = "timing_pattern"
	ActivityCoordinated   ActivityType = "coordinated_activity"
)

// SuspiciousActivity is the anomaly detector's output for heuristics that
// do not map to a single rule threshold.
type SuspiciousActivity struct {
	ID          string         `json:"id"`
	CreatorID   string         `json:"creatorId"`
	Type        ActivityType   `json:"type"`
	Description string         `json:"description"`
	RiskScore   float64        `json:"riskScore"` // 0-100
	Evidence    map[string]any `json:"evidence,omitempty"`
	DetectedAt  time.Time      `json:"detectedAt"`
	Status      AlertStatus    `json:"status"`
}
