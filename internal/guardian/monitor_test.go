package guardian

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/config"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/events"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/events/bus"
)

// alertRecorder collects guardian.alert events from the bus.
type alertRecorder struct {
	mu     sync.Mutex
	alerts []*bus.Event
}

func (r *alertRecorder) handle(_ context.Context, event *bus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, event)
	return nil
}

func (r *alertRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestMonitorStartStop(t *testing.T) {
	g := newTestGuardian(t)

	if err := g.Start(); err != nil {
		t.Fatalf("failed to start monitor: %v", err)
	}
	if err := g.Start(); err == nil {
		t.Error("expected error when starting twice")
	}
	g.Stop()
	g.Stop() // second stop is a no-op
}

func TestMonitorAutoRemediatesMinorViolations(t *testing.T) {
	g := newTestGuardian(t)
	ctx := context.Background()

	lowID := g.RecordViolation(ctx, &Violation{Type: ViolationCommunity, Severity: SeverityLow})
	highID := g.RecordViolation(ctx, &Violation{Type: ViolationPrivacy, Severity: SeverityHigh})

	var remediated []string
	g.AddRemediation(func(v Violation) bool {
		remediated = append(remediated, v.ID)
		return true
	})

	g.sweep(ctx)

	if len(remediated) != 1 || remediated[0] != lowID {
		t.Fatalf("expected only the low violation remediated, got %v", remediated)
	}
	for _, v := range g.Violations() {
		switch v.ID {
		case lowID:
			if !v.AutoResolved {
				t.Error("expected low violation auto-resolved")
			}
		case highID:
			if v.AutoResolved {
				t.Error("high violations must never auto-resolve")
			}
		}
	}
}

func TestMonitorRemediationDeclined(t *testing.T) {
	g := newTestGuardian(t)
	ctx := context.Background()

	id := g.RecordViolation(ctx, &Violation{Type: ViolationCommunity, Severity: SeverityMedium})
	g.AddRemediation(func(Violation) bool { return false })

	g.sweep(ctx)

	if g.Violations()[0].AutoResolved {
		t.Errorf("expected violation %s to stay unresolved", id)
	}
}

func TestMonitorSkipsRemediationWhenDisabled(t *testing.T) {
	cfg := config.GuardianConfig{ReviewTimeout: 1000, MonitorInterval: 60, AutoRemediate: false}
	g := New(cfg, nil, nil, nil, nil, newTestLogger(t))
	ctx := context.Background()

	g.RecordViolation(ctx, &Violation{Type: ViolationCommunity, Severity: SeverityLow})
	called := false
	g.AddRemediation(func(Violation) bool {
		called = true
		return true
	})

	g.sweep(ctx)

	if called {
		t.Error("expected no remediation when auto-remediate is off")
	}
}

func TestMonitorPublishesRateAlert(t *testing.T) {
	memBus := bus.NewMemoryEventBus(newTestLogger(t))
	defer memBus.Close()

	cfg := config.GuardianConfig{ReviewTimeout: 1000, MonitorInterval: 60, AutoRemediate: false}
	g := New(cfg, nil, memBus, nil, nil, newTestLogger(t))
	ctx := context.Background()

	recorder := &alertRecorder{}
	if _, err := memBus.Subscribe(events.GuardianAlert, recorder.handle); err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}

	for i := 0; i < windowHotSpotThreshold; i++ {
		g.RecordViolation(ctx, &Violation{Type: ViolationPrivacy, Severity: SeverityLow})
	}

	g.sweep(ctx)

	waitFor(t, func() bool { return recorder.count() >= 1 })
}

func TestMonitorPublishesRepeatSourceAlert(t *testing.T) {
	memBus := bus.NewMemoryEventBus(newTestLogger(t))
	defer memBus.Close()

	cfg := config.GuardianConfig{ReviewTimeout: 1000, MonitorInterval: 60, AutoRemediate: false}
	g := New(cfg, nil, memBus, nil, nil, newTestLogger(t))
	ctx := context.Background()

	recorder := &alertRecorder{}
	if _, err := memBus.Subscribe(events.GuardianAlert, recorder.handle); err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}

	for i := 0; i < componentHotSpotThreshold; i++ {
		g.RecordViolation(ctx, &Violation{
			Type:            ViolationSystem,
			Severity:        SeverityLow,
			SourceComponent: "tool_executor",
		})
	}

	g.sweep(ctx)

	waitFor(t, func() bool {
		recorder.mu.Lock()
		defer recorder.mu.Unlock()
		for _, event := range recorder.alerts {
			if event.Data["alert"] == "repeat_source" && event.Data["source_component"] == "tool_executor" {
				return true
			}
		}
		return false
	})
}

func TestReviewPublishesViolationEvent(t *testing.T) {
	memBus := bus.NewMemoryEventBus(newTestLogger(t))
	defer memBus.Close()

	cfg := config.GuardianConfig{ReviewTimeout: 1000, MonitorInterval: 60, AutoRemediate: false}
	g := New(cfg, nil, memBus, nil, nil, newTestLogger(t))

	recorder := &alertRecorder{}
	if _, err := memBus.Subscribe(events.GuardianViolation, recorder.handle); err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}

	g.ReviewOutput(context.Background(), "worker-1", "here is my credit card")

	waitFor(t, func() bool { return recorder.count() == 1 })

	recorder.mu.Lock()
	event := recorder.alerts[0]
	recorder.mu.Unlock()
	if event.Data["agent_id"] != "worker-1" {
		t.Errorf("expected agent_id worker-1, got %v", event.Data["agent_id"])
	}
	if event.Data["severity"] != "high" {
		t.Errorf("expected severity high, got %v", event.Data["severity"])
	}
}
