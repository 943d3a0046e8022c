package guardian

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/config"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/events"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/events/bus"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/telemetry"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/tracing"
)

// compliantThreshold is the overall score below which the node reports
// itself non-compliant on the health surface.
const compliantThreshold = 0.7

// recordTimeout bounds archive writes triggered from the review hot path.
const recordTimeout = 5 * time.Second

// RemediationFunc attempts to remediate one violation; it returns true when
// the violation can be considered resolved.
type RemediationFunc func(v Violation) bool

// Guardian reviews agent output before externalization and keeps the
// process-lifetime violation record.
type Guardian struct {
	policy        *Policy
	eventBus      bus.EventBus
	metrics       *telemetry.Metrics
	archive       *Archive
	tracer        trace.Tracer
	logger        *logger.Logger
	reviewTimeout time.Duration
	autoRemediate bool
	interval      time.Duration

	mu           sync.RWMutex
	violations   []*Violation
	compliance   ComplianceMetrics
	remediations []RemediationFunc

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New builds a guardian. The event bus, metrics, and archive may be nil;
// review then runs without fan-out or persistence. A nil policy selects the
// built-in constitutional defaults.
func New(cfg config.GuardianConfig, policy *Policy, eventBus bus.EventBus, metrics *telemetry.Metrics, archive *Archive, log *logger.Logger) *Guardian {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Guardian{
		policy:        policy,
		eventBus:      eventBus,
		metrics:       metrics,
		archive:       archive,
		tracer:        tracing.Tracer("guardian"),
		logger:        log.WithFields(zap.String("component", "guardian")),
		reviewTimeout: cfg.ReviewTimeoutDuration(),
		autoRemediate: cfg.AutoRemediate,
		interval:      cfg.MonitorIntervalDuration(),
		violations:    make([]*Violation, 0),
		compliance:    newComplianceMetrics(),
	}
}

// ReviewOutput checks content against the deny-pattern sets before it is
// externalized. Empty content is compliant. The review never raises: any
// internal failure yields compliant=false with reason "guardian_error".
func (g *Guardian) ReviewOutput(ctx context.Context, agentID, content string) (result ReviewResult) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("output review failed internally", zap.Any("panic", r))
			result = ReviewResult{Compliant: false, Reason: "guardian_error"}
		}
	}()

	if strings.TrimSpace(content) == "" {
		return ReviewResult{Compliant: true}
	}

	ctx, span := g.tracer.Start(ctx, "guardian.review",
		trace.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.Int("content.length", len(content)),
		))
	defer span.End()

	var deadline time.Time
	if g.reviewTimeout > 0 {
		deadline = time.Now().Add(g.reviewTimeout)
	}

	lowered := strings.ToLower(content)
	for _, set := range g.policy.sets() {
		if !deadline.IsZero() && time.Now().After(deadline) {
			g.logger.Error("output review exceeded its ceiling",
				zap.String("agent_id", agentID),
				zap.Duration("ceiling", g.reviewTimeout))
			return ReviewResult{Compliant: false, Reason: "guardian_error"}
		}
		for _, dp := range set.patterns {
			if !strings.Contains(lowered, dp.lowered) {
				continue
			}

			violation := &Violation{
				Type:            set.vtype,
				Severity:        dp.Severity,
				Principle:       PrincipleName(set.vtype),
				Description:     fmt.Sprintf("output matched deny pattern %q", dp.Pattern),
				SourceComponent: "guardian_review",
				SourceAgent:     agentID,
				Details: map[string]string{
					"pattern":        dp.Pattern,
					"content_length": strconv.Itoa(len(content)),
				},
				Remediation: dp.Remediation,
			}
			id := g.RecordViolation(ctx, violation)
			g.metrics.IncBlockedOutput()

			return ReviewResult{Compliant: false, ViolationID: id, Reason: dp.Reason}
		}
	}
	return ReviewResult{Compliant: true}
}

// RecordViolation appends a violation to the process-lifetime record,
// recomputes compliance, archives it, and publishes it on the bus. Used by
// the reviewer and by components reporting design-rule breaches (agent cap,
// invalid role change).
func (g *Guardian) RecordViolation(ctx context.Context, v *Violation) string {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.Timestamp.IsZero() {
		v.Timestamp = time.Now().UTC()
	}
	if v.Type == "" {
		v.Type = ViolationSystem
	}
	if _, ok := ParseSeverity(string(v.Severity)); !ok {
		v.Severity = SeverityMedium
	}
	if v.SourceComponent == "" {
		v.SourceComponent = "core"
	}

	g.mu.Lock()
	g.violations = append(g.violations, v)
	g.compliance = recompute(g.violations)
	overall := g.compliance.OverallScore
	g.mu.Unlock()

	g.logger.Warn("violation recorded",
		zap.String("violation_id", v.ID),
		zap.String("type", string(v.Type)),
		zap.String("severity", string(v.Severity)),
		zap.String("source_component", v.SourceComponent),
		zap.String("agent_id", v.SourceAgent),
		zap.Float64("overall_score", overall))

	g.metrics.IncViolation(v.Principle, string(v.Severity))
	g.archiveInsert(ctx, v)
	g.publishViolation(ctx, v)
	return v.ID
}

func (g *Guardian) archiveInsert(ctx context.Context, v *Violation) {
	if g.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(withoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := g.archive.Insert(ctx, v); err != nil {
		g.logger.Error("failed to archive violation", zap.String("violation_id", v.ID), zap.Error(err))
	}
}

func (g *Guardian) publishViolation(ctx context.Context, v *Violation) {
	if g.eventBus == nil {
		return
	}
	event := bus.NewEvent(events.GuardianViolation, "guardian", map[string]interface{}{
		"violation_id": v.ID,
		"type":         string(v.Type),
		"severity":     string(v.Severity),
		"principle":    v.Principle,
		"description":  v.Description,
		"agent_id":     v.SourceAgent,
	})
	if err := g.eventBus.Publish(ctx, events.GuardianViolation, event); err != nil {
		g.logger.Error("failed to publish violation event", zap.Error(err))
	}
}

// Violations returns copies of every recorded violation in append order.
func (g *Guardian) Violations() []Violation {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Violation, 0, len(g.violations))
	for _, v := range g.violations {
		out = append(out, *v)
	}
	return out
}

// ErrNoArchive is returned when a caller asks for persisted violations on a
// node running without a database.
var ErrNoArchive = errors.New("guardian: violation archive not configured")

// Archived returns the newest persisted violations, spanning past runs.
func (g *Guardian) Archived(ctx context.Context, limit int) ([]Violation, error) {
	if g.archive == nil {
		return nil, ErrNoArchive
	}
	return g.archive.List(ctx, limit)
}

// Compliance returns a copy of the current compliance metrics.
func (g *Guardian) Compliance() ComplianceMetrics {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return copyMetrics(g.compliance)
}

// Compliant reports whether the overall score is above the health threshold.
func (g *Guardian) Compliant() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.compliance.OverallScore >= compliantThreshold
}

// Acknowledge flips the advisory acknowledged flag. Returns false for an
// unknown id.
func (g *Guardian) Acknowledge(ctx context.Context, id string) bool {
	g.mu.Lock()
	var found *Violation
	for _, v := range g.violations {
		if v.ID == id {
			v.Acknowledged = true
			found = v
			break
		}
	}
	g.mu.Unlock()

	if found == nil {
		return false
	}
	if g.archive != nil {
		if err := g.archive.SetAcknowledged(ctx, id); err != nil {
			g.logger.Error("failed to persist acknowledgement", zap.String("violation_id", id), zap.Error(err))
		}
	}
	return true
}

// AddRemediation registers a callback the monitor invokes for unresolved
// low and medium violations.
func (g *Guardian) AddRemediation(fn RemediationFunc) {
	if fn == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.remediations = append(g.remediations, fn)
}

// PrincipleName maps a violation type to its constitutional principle.
func PrincipleName(t ViolationType) string {
	switch t {
	case ViolationPrivacy:
		return "privacy_first"
	case ViolationHumanRights:
		return "human_rights"
	case ViolationCentralization:
		return "decentralization"
	case ViolationCommunity:
		return "community_focus"
	default:
		return "system_integrity"
	}
}

// withoutCancel detaches recording work from a cycle context so an aborted
// cycle still leaves a complete audit trail.
func withoutCancel(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
