package jit

import (
	"context"
	"sync"
	"time"
)

const defaultSweepInterval = time.Minute

// Sweeper runs the registry cleanup cycle on a fixed interval until closed.
type Sweeper struct {
	reg      *Registry
	interval time.Duration

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewSweeper(reg *Registry, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{
		reg:      reg,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. Call Close to stop it.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.reg.RunCleanupCycle(ctx, s.reg.now().UTC())
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close stops the sweep loop and waits for it to exit.
func (s *Sweeper) Close() {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}
