package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"grid_hedger/internal/core"
)

// WindowConfig bounds the daily trading session. Times are minutes-of-day
// resolution in the local clock.
type WindowConfig struct {
	// Session open, e.g. "09:00"
	Open string
	// Session close, e.g. "23:45"
	Close string
	// How often the clock is checked
	CheckInterval time.Duration
}

// DefaultWindowConfig returns the standard session bounds
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		Open:          "09:00",
		Close:         "23:45",
		CheckInterval: 3 * time.Minute,
	}
}

func parseMinuteOfDay(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse window time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Scheduler ends the trading day: once the clock leaves the configured
// window it stops every symbol and signals the process to exit. It never
// restarts trading; the next session is a fresh process start.
type Scheduler struct {
	cfg       WindowConfig
	openMin   int
	closeMin  int
	manager   *Manager
	logger    core.ILogger
	terminate func()
	once      sync.Once
}

// NewScheduler builds a scheduler over the manager. terminate is invoked
// exactly once, after all symbols have drained.
func NewScheduler(cfg WindowConfig, manager *Manager, terminate func(), logger core.ILogger) (*Scheduler, error) {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultWindowConfig().CheckInterval
	}
	openMin, err := parseMinuteOfDay(cfg.Open)
	if err != nil {
		return nil, err
	}
	closeMin, err := parseMinuteOfDay(cfg.Close)
	if err != nil {
		return nil, err
	}
	if openMin >= closeMin {
		return nil, fmt.Errorf("window open %s must precede close %s", cfg.Open, cfg.Close)
	}
	return &Scheduler{
		cfg:       cfg,
		openMin:   openMin,
		closeMin:  closeMin,
		manager:   manager,
		logger:    logger.WithField("component", "scheduler"),
		terminate: terminate,
	}, nil
}

// InWindow reports whether the given instant falls inside the session
func (s *Scheduler) InWindow(now time.Time) bool {
	minute := now.Hour()*60 + now.Minute()
	return minute >= s.openMin && minute < s.closeMin
}

// Run checks the clock until the session ends or the context is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Scheduler started", "open", s.cfg.Open, "close", s.cfg.Close)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.CheckInterval):
		}

		if s.InWindow(time.Now()) {
			continue
		}
		s.endSession()
		return nil
	}
}

func (s *Scheduler) endSession() {
	s.once.Do(func() {
		s.logger.Info("Trading window closed, stopping all symbols")
		drainCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.manager.StopAll(drainCtx); err != nil {
			s.logger.Error("Session drain incomplete", "error", err.Error())
		}
		if s.terminate != nil {
			s.terminate()
		}
	})
}
