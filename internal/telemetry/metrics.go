// Package telemetry exposes Prometheus collectors for the runtime: cycle
// throughput and latency, active agents, tool executions, guardian verdicts.
// Collectors are nil-safe so unwired components degrade to no-ops.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors published on /metrics.
type Metrics struct {
	cycleDuration  *prometheus.HistogramVec
	cyclesTotal    *prometheus.CounterVec
	toolCalls      *prometheus.CounterVec
	violations     *prometheus.CounterVec
	blockedOutputs prometheus.Counter
	agentsActive   prometheus.Gauge
	cyclesActive   prometheus.Gauge
	eventsTotal    *prometheus.CounterVec
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// Default returns the package-level metrics instance registered with the
// global Prometheus registry. Created once so repeated construction (tests,
// restarts inside one process) does not panic on duplicate registration.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Registration errors other than AlreadyRegistered panic, mirroring promauto.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	cycleDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hainet",
			Subsystem: "runtime",
			Name:      "cycle_duration_seconds",
			Help:      "Wall-clock duration of reasoning cycles.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"role", "outcome"},
	)
	cyclesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hainet",
			Subsystem: "runtime",
			Name:      "cycles_total",
			Help:      "Total reasoning cycles by role and outcome.",
		},
		[]string{"role", "outcome"},
	)
	toolCalls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hainet",
			Subsystem: "runtime",
			Name:      "tool_calls_total",
			Help:      "Tool executions by tool name and status.",
		},
		[]string{"tool", "status"},
	)
	violations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hainet",
			Subsystem: "guardian",
			Name:      "violations_total",
			Help:      "Constitutional violations by principle and severity.",
		},
		[]string{"principle", "severity"},
	)
	blockedOutputs := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hainet",
			Subsystem: "guardian",
			Name:      "blocked_outputs_total",
			Help:      "Agent outputs replaced by a block notice.",
		},
	)
	agentsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hainet",
			Subsystem: "runtime",
			Name:      "agents_active",
			Help:      "Agents currently registered with the manager.",
		},
	)
	cyclesActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hainet",
			Subsystem: "runtime",
			Name:      "cycles_active",
			Help:      "Reasoning cycles currently executing.",
		},
	)
	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hainet",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Events published on the bus by subject root.",
		},
		[]string{"subject"},
	)

	collectors := []prometheus.Collector{
		cycleDuration, cyclesTotal, toolCalls, violations,
		blockedOutputs, agentsActive, cyclesActive, eventsTotal,
	}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch collector {
				case cycleDuration:
					cycleDuration = already.ExistingCollector.(*prometheus.HistogramVec)
				case cyclesTotal:
					cyclesTotal = already.ExistingCollector.(*prometheus.CounterVec)
				case toolCalls:
					toolCalls = already.ExistingCollector.(*prometheus.CounterVec)
				case violations:
					violations = already.ExistingCollector.(*prometheus.CounterVec)
				case blockedOutputs:
					blockedOutputs = already.ExistingCollector.(prometheus.Counter)
				case agentsActive:
					agentsActive = already.ExistingCollector.(prometheus.Gauge)
				case cyclesActive:
					cyclesActive = already.ExistingCollector.(prometheus.Gauge)
				case eventsTotal:
					eventsTotal = already.ExistingCollector.(*prometheus.CounterVec)
				}
				continue
			}
			panic(err)
		}
	}

	return &Metrics{
		cycleDuration:  cycleDuration,
		cyclesTotal:    cyclesTotal,
		toolCalls:      toolCalls,
		violations:     violations,
		blockedOutputs: blockedOutputs,
		agentsActive:   agentsActive,
		cyclesActive:   cyclesActive,
		eventsTotal:    eventsTotal,
	}
}

// ObserveCycle records one finished cycle.
func (m *Metrics) ObserveCycle(role, outcome string, duration time.Duration) {
	if m == nil || m.cycleDuration == nil {
		return
	}
	m.cycleDuration.WithLabelValues(role, outcome).Observe(duration.Seconds())
	m.cyclesTotal.WithLabelValues(role, outcome).Inc()
}

// IncToolCall records one tool execution.
func (m *Metrics) IncToolCall(tool, status string) {
	if m == nil || m.toolCalls == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, status).Inc()
}

// IncViolation records one constitutional violation.
func (m *Metrics) IncViolation(principle, severity string) {
	if m == nil || m.violations == nil {
		return
	}
	m.violations.WithLabelValues(principle, severity).Inc()
}

// IncBlockedOutput records one blocked agent output.
func (m *Metrics) IncBlockedOutput() {
	if m == nil || m.blockedOutputs == nil {
		return
	}
	m.blockedOutputs.Inc()
}

// SetActiveAgents tracks the registry size.
func (m *Metrics) SetActiveAgents(n int) {
	if m == nil || m.agentsActive == nil {
		return
	}
	m.agentsActive.Set(float64(n))
}

// IncActiveCycles marks a cycle as running.
func (m *Metrics) IncActiveCycles() {
	if m == nil || m.cyclesActive == nil {
		return
	}
	m.cyclesActive.Inc()
}

// DecActiveCycles marks a cycle as finished.
func (m *Metrics) DecActiveCycles() {
	if m == nil || m.cyclesActive == nil {
		return
	}
	m.cyclesActive.Dec()
}

// IncEvent records one published bus event under its subject root.
func (m *Metrics) IncEvent(subjectRoot string) {
	if m == nil || m.eventsTotal == nil {
		return
	}
	m.eventsTotal.WithLabelValues(subjectRoot).Inc()
}
