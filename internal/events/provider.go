package events

import (
	"context"
	"fmt"
	"strings"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/config"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/events/bus"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/telemetry"
)

// Provide builds the configured event bus. An empty NATS URL selects the
// in-memory bus, which is the local-first default. When metrics are supplied
// every successful publish is counted under its subject root.
func Provide(cfg *config.Config, metrics *telemetry.Metrics, log *logger.Logger) (bus.EventBus, func() error, error) {
	var (
		inner   bus.EventBus
		cleanup func() error
	)
	if strings.TrimSpace(cfg.NATS.URL) != "" {
		natsBus, err := bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize NATS event bus: %w", err)
		}
		inner = natsBus
		cleanup = func() error {
			natsBus.Close()
			return nil
		}
	} else {
		memBus := bus.NewMemoryEventBus(log)
		inner = memBus
		cleanup = func() error {
			memBus.Close()
			return nil
		}
	}

	if metrics == nil {
		return inner, cleanup, nil
	}
	return &countingBus{EventBus: inner, metrics: metrics}, cleanup, nil
}

// countingBus decorates the active bus with the published-events counter.
type countingBus struct {
	bus.EventBus
	metrics *telemetry.Metrics
}

func (c *countingBus) Publish(ctx context.Context, subject string, event *bus.Event) error {
	if err := c.EventBus.Publish(ctx, subject, event); err != nil {
		return err
	}
	c.metrics.IncEvent(SubjectRoot(subject))
	return nil
}
