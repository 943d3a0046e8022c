package guardian

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
)

// DenyPattern is one case-insensitive substring the reviewer refuses to
// externalize, with the severity and reason attached to a hit.
type DenyPattern struct {
	Pattern     string   `yaml:"pattern"`
	Severity    Severity `yaml:"severity"`
	Reason      string   `yaml:"reason"`
	Remediation []string `yaml:"remediation,omitempty"`

	lowered string
}

// Policy holds the deny-pattern sets for the four reviewed principles,
// checked in declaration order.
type Policy struct {
	Privacy        []DenyPattern `yaml:"privacy"`
	HumanRights    []DenyPattern `yaml:"human_rights"`
	Centralization []DenyPattern `yaml:"centralization"`
	Community      []DenyPattern `yaml:"community"`
}

// principleSet pairs a violation type with its patterns for the review loop.
type principleSet struct {
	vtype    ViolationType
	patterns []DenyPattern
}

// sets returns the principle sets in review order.
func (p *Policy) sets() []principleSet {
	return []principleSet{
		{ViolationPrivacy, p.Privacy},
		{ViolationHumanRights, p.HumanRights},
		{ViolationCentralization, p.Centralization},
		{ViolationCommunity, p.Community},
	}
}

// compile lowercases patterns once, fills default reasons, and rejects
// unusable entries.
func (p *Policy) compile() error {
	groups := []struct {
		name     string
		patterns []DenyPattern
	}{
		{"privacy", p.Privacy},
		{"human_rights", p.HumanRights},
		{"centralization", p.Centralization},
		{"community", p.Community},
	}
	for _, group := range groups {
		for i := range group.patterns {
			dp := &group.patterns[i]
			dp.lowered = strings.ToLower(strings.TrimSpace(dp.Pattern))
			if dp.lowered == "" {
				return fmt.Errorf("guardian policy: empty pattern in %s set", group.name)
			}
			if _, ok := ParseSeverity(string(dp.Severity)); !ok {
				return fmt.Errorf("guardian policy: pattern %q in %s set has invalid severity %q", dp.Pattern, group.name, dp.Severity)
			}
			if dp.Reason == "" {
				dp.Reason = defaultReason(group.name)
			}
		}
	}
	return nil
}

func defaultReason(group string) string {
	switch group {
	case "privacy":
		return "Privacy violation"
	case "human_rights":
		return "Human rights violation"
	case "centralization":
		return "Decentralization violation"
	default:
		return "Community violation"
	}
}

// LoadPolicy reads the deny-pattern file at path. A missing file falls back
// to the built-in constitutional defaults; an unreadable or invalid file is
// a configuration error.
func LoadPolicy(path string, log *logger.Logger) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Info("guardian policy file not found, using built-in constitutional defaults")
		return DefaultPolicy(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read guardian policy: %w", err)
	}

	policy := &Policy{}
	if err := yaml.Unmarshal(raw, policy); err != nil {
		return nil, fmt.Errorf("failed to parse guardian policy: %w", err)
	}
	if err := policy.compile(); err != nil {
		return nil, err
	}
	return policy, nil
}

// DefaultPolicy returns the built-in constitutional deny patterns used when
// no policy file is configured.
func DefaultPolicy() *Policy {
	policy := &Policy{
		Privacy: []DenyPattern{
			{Pattern: "credit card", Severity: SeverityHigh, Reason: "Privacy violation",
				Remediation: []string{"redact payment card references before responding"}},
			{Pattern: "social security number", Severity: SeverityHigh, Reason: "Privacy violation",
				Remediation: []string{"redact government identifiers before responding"}},
			{Pattern: "passport number", Severity: SeverityHigh, Reason: "Privacy violation",
				Remediation: []string{"redact government identifiers before responding"}},
			{Pattern: "medical record", Severity: SeverityHigh, Reason: "Privacy violation",
				Remediation: []string{"remove health information before responding"}},
			{Pattern: "home address", Severity: SeverityMedium, Reason: "Privacy violation",
				Remediation: []string{"remove location details before responding"}},
		},
		HumanRights: []DenyPattern{
			{Pattern: "deny service based on", Severity: SeverityCritical, Reason: "Human rights violation",
				Remediation: []string{"treat all users equally regardless of group membership"}},
			{Pattern: "discriminate against", Severity: SeverityCritical, Reason: "Human rights violation",
				Remediation: []string{"treat all users equally regardless of group membership"}},
			{Pattern: "without their consent", Severity: SeverityHigh, Reason: "Human rights violation",
				Remediation: []string{"obtain explicit consent before acting on user data"}},
		},
		Centralization: []DenyPattern{
			{Pattern: "central authority", Severity: SeverityMedium, Reason: "Decentralization violation",
				Remediation: []string{"route the action through local node capabilities"}},
			{Pattern: "upload all user data", Severity: SeverityHigh, Reason: "Decentralization violation",
				Remediation: []string{"keep processing on the local node"}},
			{Pattern: "mandatory registration with", Severity: SeverityMedium, Reason: "Decentralization violation",
				Remediation: []string{"offer a local-only alternative"}},
		},
		Community: []DenyPattern{
			{Pattern: "hide this from the user", Severity: SeverityMedium, Reason: "Community violation",
				Remediation: []string{"surface the information transparently"}},
			{Pattern: "exclude them from the network", Severity: SeverityLow, Reason: "Community violation",
				Remediation: []string{"prefer inclusive remediation over exclusion"}},
		},
	}
	// Defaults are authored in-process; a compile failure is a programming error.
	if err := policy.compile(); err != nil {
		panic(err)
	}
	return policy
}
