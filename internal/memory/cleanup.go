package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
)

const cleanupTimeout = 30 * time.Second

// Cleaner periodically evicts expired records from a store.
type Cleaner struct {
	store    Store
	interval time.Duration
	logger   *logger.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewCleaner builds a cleaner; interval must be positive.
func NewCleaner(store Store, interval time.Duration, log *logger.Logger) *Cleaner {
	return &Cleaner{
		store:    store,
		interval: interval,
		logger:   log.WithFields(zap.String("component", "memory_cleaner")),
	}
}

// Start launches the background loop.
func (c *Cleaner) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("memory cleaner already running")
	}
	if c.interval <= 0 {
		return fmt.Errorf("memory cleaner requires a positive interval")
	}

	c.stopCh = make(chan struct{})
	c.running = true
	c.wg.Add(1)
	go c.run(c.stopCh)

	c.logger.Info("memory cleaner started", zap.Duration("interval", c.interval))
	return nil
}

// Stop halts the loop and waits for the in-flight sweep.
func (c *Cleaner) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopCh)
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Info("memory cleaner stopped")
}

func (c *Cleaner) run(stopCh <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cleaner) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if _, err := c.store.CleanupExpired(ctx); err != nil {
		c.logger.Error("memory cleanup failed", zap.Error(err))
	}
}
