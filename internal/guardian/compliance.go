package guardian

import "time"

// Aggregate weights per principle sub-score.
const (
	weightPrivacy          = 0.3
	weightHumanRights      = 0.3
	weightDecentralization = 0.2
	weightCommunity        = 0.2
)

// ComplianceMetrics summarizes recorded violations: per-type and per-severity
// counters plus the weighted compliance score. Recomputed after every
// violation.
type ComplianceMetrics struct {
	TotalViolations int                   `json:"total_violations"`
	ByType          map[ViolationType]int `json:"by_type"`
	BySeverity      map[Severity]int      `json:"by_severity"`

	PrivacyScore          float64 `json:"privacy_score"`
	HumanRightsScore      float64 `json:"human_rights_score"`
	DecentralizationScore float64 `json:"decentralization_score"`
	CommunityScore        float64 `json:"community_score"`
	OverallScore          float64 `json:"overall_score"`

	UpdatedAt time.Time `json:"updated_at"`
}

// newComplianceMetrics returns metrics in their initial perfect state.
func newComplianceMetrics() ComplianceMetrics {
	return ComplianceMetrics{
		ByType:                make(map[ViolationType]int),
		BySeverity:            make(map[Severity]int),
		PrivacyScore:          1.0,
		HumanRightsScore:      1.0,
		DecentralizationScore: 1.0,
		CommunityScore:        1.0,
		OverallScore:          1.0,
		UpdatedAt:             time.Now().UTC(),
	}
}

// recompute rebuilds every counter and score from the violation list. Each
// principle sub-score starts at 1.0 and loses the severity penalty of each
// violation of that principle, clamped to [0,1]. System violations count in
// the totals only.
func recompute(violations []*Violation) ComplianceMetrics {
	m := newComplianceMetrics()
	m.TotalViolations = len(violations)

	for _, v := range violations {
		m.ByType[v.Type]++
		m.BySeverity[v.Severity]++

		penalty := v.Severity.Penalty()
		switch v.Type {
		case ViolationPrivacy:
			m.PrivacyScore -= penalty
		case ViolationHumanRights:
			m.HumanRightsScore -= penalty
		case ViolationCentralization:
			m.DecentralizationScore -= penalty
		case ViolationCommunity:
			m.CommunityScore -= penalty
		}
	}

	m.PrivacyScore = clampScore(m.PrivacyScore)
	m.HumanRightsScore = clampScore(m.HumanRightsScore)
	m.DecentralizationScore = clampScore(m.DecentralizationScore)
	m.CommunityScore = clampScore(m.CommunityScore)

	m.OverallScore = clampScore(
		m.PrivacyScore*weightPrivacy +
			m.HumanRightsScore*weightHumanRights +
			m.DecentralizationScore*weightDecentralization +
			m.CommunityScore*weightCommunity)
	return m
}

// copyMetrics deep-copies the maps so callers cannot mutate guardian state.
func copyMetrics(m ComplianceMetrics) ComplianceMetrics {
	out := m
	out.ByType = make(map[ViolationType]int, len(m.ByType))
	for k, v := range m.ByType {
		out.ByType[k] = v
	}
	out.BySeverity = make(map[Severity]int, len(m.BySeverity))
	for k, v := range m.BySeverity {
		out.BySeverity[k] = v
	}
	return out
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
