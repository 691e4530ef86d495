package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler runs monitoring cycles on a fixed interval. Each cycle is an
// independent invocation; overlapping schedules are not serialized
// against each other beyond this scheduler's own loop.
type Scheduler struct {
	monitor  *Monitor
	interval time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler for the given monitor.
func NewScheduler(monitor *Monitor, interval time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		monitor:  monitor,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the scan loop. A non-positive interval disables it.
func (s *Scheduler) Start() {
	if s.interval <= 0 {
		slog.Info("scan scheduler disabled")
		return
	}

	s.wg.Add(1)
	go s.loop()

	slog.Info("scan scheduler started", "interval", s.interval)
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.monitor.RunCycle(s.ctx); err != nil {
				slog.Error("scheduled monitoring cycle failed", "error", err)
			}
		}
	}
}

// Stop halts the scan loop and waits for an in-flight cycle to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	slog.Info("scan scheduler stopped")
}
