package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Sweepable drops its expired entries and reports how many were removed.
type Sweepable interface {
	Sweep() int
}

type sweepTarget struct {
	name   string
	target Sweepable
}

// Sweeper periodically evicts expired entries from registered caches.
type Sweeper struct {
	mu      sync.Mutex
	cron    *cron.Cron
	spec    string
	targets []sweepTarget
	logger  *slog.Logger
}

func NewSweeper(log *slog.Logger, spec string) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		cron:   cron.New(),
		spec:   spec,
		logger: log.With(slog.String("component", "cache_sweeper")),
	}
}

func (s *Sweeper) Add(name string, target Sweepable) {
	if target == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets = append(s.targets, sweepTarget{name: name, target: target})
}

func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.RunOnce() }); err != nil {
		return fmt.Errorf("schedule cache sweep %q: %w", s.spec, err)
	}
	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits for a running sweep or ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce sweeps every target and returns the total number of evictions.
func (s *Sweeper) RunOnce() int {
	s.mu.Lock()
	targets := append([]sweepTarget(nil), s.targets...)
	s.mu.Unlock()
	total := 0
	for _, item := range targets {
		removed := item.target.Sweep()
		if removed > 0 {
			s.logger.Debug("cache swept", slog.String("cache", item.name), slog.Int("removed", removed))
		}
		total += removed
	}
	return total
}
