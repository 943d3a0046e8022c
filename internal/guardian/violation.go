// Package guardian reviews agent output against the node's constitutional
// principles before it is externalized, records violations, and tracks the
// aggregate compliance score. It is one component with two modes: the
// synchronous reviewer on the cycle hot path and a background monitor that
// detects hot spots and auto-resolves minor violations.
package guardian

import (
	"strings"
	"time"
)

// ViolationType names the constitutional principle a violation breached.
type ViolationType string

const (
	ViolationPrivacy        ViolationType = "privacy"
	ViolationHumanRights    ViolationType = "human_rights"
	ViolationCentralization ViolationType = "centralization"
	ViolationCommunity      ViolationType = "community"

	// ViolationSystem covers internal design-rule breaches (agent cap
	// exceeded, invalid role change). It counts in totals but not in the
	// per-principle sub-scores.
	ViolationSystem ViolationType = "system"
)

// Severity grades a violation.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityPenalty is how much one violation of each grade subtracts from its
// principle's sub-score.
var severityPenalty = map[Severity]float64{
	SeverityLow:      0.02,
	SeverityMedium:   0.05,
	SeverityHigh:     0.1,
	SeverityCritical: 0.3,
}

// ParseSeverity converts a string into a Severity. Unknown names return false.
func ParseSeverity(s string) (Severity, bool) {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return sev, true
	default:
		return "", false
	}
}

// Penalty returns the sub-score deduction for the severity.
func (s Severity) Penalty() float64 {
	return severityPenalty[s]
}

// Violation is one recorded breach. Violations are append-only and live for
// the process lifetime of the guardian; acknowledgement and auto-resolution
// are advisory flags.
type Violation struct {
	ID              string            `json:"id"`
	Type            ViolationType     `json:"type"`
	Severity        Severity          `json:"severity"`
	Principle       string            `json:"principle"`
	Description     string            `json:"description"`
	SourceComponent string            `json:"source_component"`
	SourceAgent     string            `json:"source_agent,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
	Details         map[string]string `json:"details,omitempty"`
	Remediation     []string          `json:"remediation,omitempty"`
	AutoResolved    bool              `json:"auto_resolved"`
	Acknowledged    bool              `json:"acknowledged"`
}

// ReviewResult is the verdict of a synchronous output review.
type ReviewResult struct {
	Compliant   bool   `json:"compliant"`
	ViolationID string `json:"violation_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
}
