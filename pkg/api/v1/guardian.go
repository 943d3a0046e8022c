package v1

import "time"

// Violation is the wire view of one recorded constitutional violation.
type Violation struct {
	ID              string            `json:"id"`
	Type            string            `json:"type"`
	Severity        string            `json:"severity"`
	Principle       string            `json:"principle"`
	Description     string            `json:"description"`
	SourceComponent string            `json:"source_component"`
	SourceAgent     string            `json:"source_agent,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
	Details         map[string]string `json:"details,omitempty"`
	AutoResolved    bool              `json:"auto_resolved"`
	Acknowledged    bool              `json:"acknowledged"`
}

// ViolationListResponse wraps GET /violations.
type ViolationListResponse struct {
	Violations []Violation `json:"violations"`
	Count      int         `json:"count"`
}

// ComplianceResponse is the node's constitutional scoreboard.
type ComplianceResponse struct {
	TotalViolations       int            `json:"total_violations"`
	ByType                map[string]int `json:"by_type"`
	BySeverity            map[string]int `json:"by_severity"`
	PrivacyScore          float64        `json:"privacy_score"`
	HumanRightsScore      float64        `json:"human_rights_score"`
	DecentralizationScore float64        `json:"decentralization_score"`
	CommunityScore        float64        `json:"community_score"`
	OverallScore          float64        `json:"overall_score"`
	UpdatedAt             time.Time      `json:"updated_at"`
}
