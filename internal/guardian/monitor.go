package guardian

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/events"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/events/bus"
)

const (
	// monitorWindow is the rolling window hot-spot detection looks at.
	monitorWindow = 5 * time.Minute

	// windowHotSpotThreshold flags an elevated overall violation rate.
	windowHotSpotThreshold = 5

	// componentHotSpotThreshold flags one component violating repeatedly.
	componentHotSpotThreshold = 3
)

// Start launches the background monitor: hot-spot detection over a rolling
// window and auto-remediation of low and medium violations.
func (g *Guardian) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return fmt.Errorf("guardian monitor already running")
	}
	if g.interval <= 0 {
		return fmt.Errorf("guardian monitor requires a positive interval")
	}

	g.stopCh = make(chan struct{})
	g.running = true
	g.wg.Add(1)
	go g.runMonitor(g.stopCh)

	g.logger.Info("guardian monitor started",
		zap.Duration("interval", g.interval),
		zap.Bool("auto_remediate", g.autoRemediate))
	return nil
}

// Stop halts the monitor and waits for the in-flight sweep.
func (g *Guardian) Stop() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.running = false
	close(g.stopCh)
	g.mu.Unlock()

	g.wg.Wait()
	g.logger.Info("guardian monitor stopped")
}

func (g *Guardian) runMonitor(stopCh <-chan struct{}) {
	defer g.wg.Done()

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			g.sweep(context.Background())
		}
	}
}

// sweep runs one monitor pass. Exposed to tests through the same code path
// the ticker takes.
func (g *Guardian) sweep(ctx context.Context) {
	g.detectHotSpots(ctx)
	if g.autoRemediate {
		g.remediateMinor(ctx)
	}
}

func (g *Guardian) detectHotSpots(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-monitorWindow)

	g.mu.RLock()
	total := 0
	byComponent := make(map[string]int)
	for _, v := range g.violations {
		if v.Timestamp.Before(cutoff) {
			continue
		}
		total++
		byComponent[v.SourceComponent]++
	}
	g.mu.RUnlock()

	if total >= windowHotSpotThreshold {
		g.logger.Warn("violation rate hot spot",
			zap.Int("count", total),
			zap.Duration("window", monitorWindow))
		g.publishAlert(ctx, "violation_rate", "", total)
	}

	for component, count := range byComponent {
		if count >= componentHotSpotThreshold {
			g.logger.Warn("repeat violation source",
				zap.String("source_component", component),
				zap.Int("count", count),
				zap.Duration("window", monitorWindow))
			g.publishAlert(ctx, "repeat_source", component, count)
		}
	}
}

// remediateMinor invokes registered callbacks for unresolved low and medium
// violations. Callbacks run outside the guardian lock.
func (g *Guardian) remediateMinor(ctx context.Context) {
	g.mu.RLock()
	if len(g.remediations) == 0 {
		g.mu.RUnlock()
		return
	}
	callbacks := make([]RemediationFunc, len(g.remediations))
	copy(callbacks, g.remediations)

	var candidates []Violation
	for _, v := range g.violations {
		if v.AutoResolved {
			continue
		}
		if v.Severity != SeverityLow && v.Severity != SeverityMedium {
			continue
		}
		candidates = append(candidates, *v)
	}
	g.mu.RUnlock()

	for _, candidate := range candidates {
		resolved := false
		for _, fn := range callbacks {
			if fn(candidate) {
				resolved = true
				break
			}
		}
		if !resolved {
			continue
		}

		g.markAutoResolved(candidate.ID)
		if g.archive != nil {
			if err := g.archive.SetAutoResolved(ctx, candidate.ID); err != nil {
				g.logger.Error("failed to persist auto-resolution",
					zap.String("violation_id", candidate.ID), zap.Error(err))
			}
		}
		g.logger.Info("violation auto-resolved",
			zap.String("violation_id", candidate.ID),
			zap.String("severity", string(candidate.Severity)))
	}
}

func (g *Guardian) markAutoResolved(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, v := range g.violations {
		if v.ID == id {
			v.AutoResolved = true
			return
		}
	}
}

func (g *Guardian) publishAlert(ctx context.Context, alert, component string, count int) {
	if g.eventBus == nil {
		return
	}
	data := map[string]interface{}{
		"alert":          alert,
		"count":          count,
		"window_seconds": int(monitorWindow.Seconds()),
	}
	if component != "" {
		data["source_component"] = component
	}
	event := bus.NewEvent(events.GuardianAlert, "guardian", data)
	if err := g.eventBus.Publish(ctx, events.GuardianAlert, event); err != nil {
		g.logger.Error("failed to publish guardian alert", zap.Error(err))
	}
}
