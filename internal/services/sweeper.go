package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Sweeper periodically rescores every active ticket so the waiting-time
// factor keeps growing between explicit triggers.
type Sweeper struct {
	Priority *PriorityService
	Interval time.Duration

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper returns a stopped sweeper. Call Start to run it.
func NewSweeper(p *PriorityService, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		Priority: p,
		Interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the loop. The first sweep runs immediately. ctx carries
// the logger and cancels in-flight sweeps.
func (w *Sweeper) Start(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(w.done)
		t := time.NewTicker(w.Interval)
		defer t.Stop()
		for {
			w.Do(ctx)
			select {
			case <-w.stop:
				return
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
}

// Do runs one sweep and logs its report.
func (w *Sweeper) Do(ctx context.Context) SweepReport {
	rep, err := w.Priority.Sweep(ctx)
	if err != nil {
		logger(ctx).Error().Err(err).Msg("priority sweep failed")
		return rep
	}
	ev := logger(ctx).Debug()
	if rep.Failed > 0 {
		ev = logger(ctx).Warn()
	}
	ev.Int("scanned", rep.Scanned).
		Int("updated", rep.Updated).
		Int("failed", rep.Failed).
		Dur("duration", rep.Duration).
		Msg("priority sweep")
	return rep
}

// Stop ends the loop and waits for the current sweep to return. It may be
// called more than once.
func (w *Sweeper) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	if w.started.Load() {
		<-w.done
	}
}
