package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMustNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)

	m.ObserveCycle("admin", "completed", 250*time.Millisecond)
	m.IncToolCall("memory_search", "ok")
	m.IncViolation("privacy_first", "high")
	m.IncBlockedOutput()
	m.SetActiveAgents(3)
	m.IncActiveCycles()
	m.DecActiveCycles()
	m.IncEvent("agent")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}

	for _, want := range []string{
		"hainet_runtime_cycle_duration_seconds",
		"hainet_runtime_cycles_total",
		"hainet_runtime_tool_calls_total",
		"hainet_guardian_violations_total",
		"hainet_guardian_blocked_outputs_total",
		"hainet_runtime_agents_active",
		"hainet_runtime_cycles_active",
		"hainet_events_published_total",
	} {
		if !names[want] {
			t.Errorf("expected metric family %q to be registered", want)
		}
	}
}

func TestMustNewMetricsTwiceSameRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := MustNewMetrics(reg)
	second := MustNewMetrics(reg)

	// Second construction must reuse the registered collectors, not panic.
	first.IncToolCall("list_agents", "ok")
	second.IncToolCall("list_agents", "ok")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, f := range families {
		if f.GetName() != "hainet_runtime_tool_calls_total" {
			continue
		}
		if got := f.GetMetric()[0].GetCounter().GetValue(); got != 2 {
			t.Errorf("expected shared counter value 2, got %v", got)
		}
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics

	// None of these may panic on a nil receiver.
	m.ObserveCycle("worker", "failed", time.Second)
	m.IncToolCall("current_time", "error")
	m.IncViolation("community_focus", "low")
	m.IncBlockedOutput()
	m.SetActiveAgents(0)
	m.IncActiveCycles()
	m.DecActiveCycles()
	m.IncEvent("cycle")
}
