package app

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/Adda-Baaj/fia-docwatch/internal/logger"
	"github.com/Adda-Baaj/fia-docwatch/internal/metrics"
	"github.com/Adda-Baaj/fia-docwatch/internal/pipeline"
	"github.com/Adda-Baaj/fia-docwatch/pkg/sources"
)

// CycleRunner executes one detection and delivery pass.
type CycleRunner interface {
	Run(ctx context.Context, srcs []sources.Source) ([]pipeline.SourceReport, error)
}

// Watcher is the long-running watch loop. It runs a cycle at start, then wakes every tick
// and runs a cycle whenever the schedule says one is due. Cycles never overlap.
type Watcher struct {
	runner   CycleRunner
	sources  []sources.Source
	sched    *schedule
	tick     time.Duration
	trigger  chan struct{}
	closers  []func() error
	log      logger.Logger
	now      func() time.Time
	interval time.Duration

	mu     sync.RWMutex
	status pipeline.Status
}

// WatcherOptions configures the loop timing.
type WatcherOptions struct {
	PollInterval time.Duration
	Tick         time.Duration
	ScheduleMode string
}

// NewWatcher builds a watch loop around runner. closers run when Run returns.
func NewWatcher(runner CycleRunner, srcs []sources.Source, opts WatcherOptions, log logger.Logger, closers ...func() error) *Watcher {
	if log == nil {
		log = logger.NopLogger{}
	}
	if opts.Tick <= 0 {
		opts.Tick = 4 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Hour
	}

	ids := make([]string, 0, len(srcs))
	for _, src := range srcs {
		ids = append(ids, src.ID)
	}
	sched := newSchedule(opts.ScheduleMode, opts.PollInterval)

	return &Watcher{
		runner:   runner,
		sources:  srcs,
		sched:    sched,
		tick:     opts.Tick,
		trigger:  make(chan struct{}, 1),
		closers:  closers,
		log:      log,
		now:      time.Now,
		interval: opts.PollInterval,
		status: pipeline.Status{
			ScheduleMode: sched.mode,
			PollInterval: opts.PollInterval.String(),
			Sources:      ids,
		},
	}
}

// Run loops until ctx is cancelled. Cycle failures and panics are logged and counted;
// they never stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	if w == nil || w.runner == nil {
		return fmt.Errorf("watcher is not initialized")
	}
	defer w.close()

	w.log.InfoObj("watch loop starting", "watcher_state", map[string]any{
		"sources":       w.status.Sources,
		"poll_interval": w.interval.String(),
		"tick":          w.tick.String(),
		"schedule_mode": w.sched.mode,
	})

	w.runCycle(ctx)

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.InfoObj("watch loop exiting", "reason", ctx.Err().Error())
			return nil
		case <-w.trigger:
			w.runCycle(ctx)
		case <-ticker.C:
			if w.sched.Due(w.now()) {
				w.runCycle(ctx)
			}
		}
	}
}

// Trigger asks for a cycle as soon as the loop is idle.
func (w *Watcher) Trigger() bool {
	select {
	case w.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Status returns a snapshot of the loop state.
func (w *Watcher) Status() pipeline.Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	st := w.status
	st.LastReports = append([]pipeline.SourceReport(nil), w.status.LastReports...)
	st.Sources = append([]string(nil), w.status.Sources...)
	return st
}

func (w *Watcher) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	start := w.now()
	w.mu.Lock()
	w.status.Running = true
	w.status.LastStart = start
	w.mu.Unlock()

	w.log.InfoObj("cycle started", "cycle_meta", map[string]any{
		"sources_count": len(w.sources),
		"started_at":    start.UTC(),
	})

	reports, err := w.safeRun(ctx)
	end := w.now()
	w.sched.Advance(start, end)

	outcome := "ok"
	var pe *panicError
	switch {
	case errors.As(err, &pe):
		outcome = "panic"
		w.log.ErrorObj("cycle panicked", "cycle_panic", map[string]any{
			"panic": fmt.Sprint(pe.value),
			"stack": string(pe.stack),
		})
	case err != nil:
		outcome = "error"
		w.log.ErrorObj("cycle completed with errors", "error", err.Error())
	}
	metrics.ObserveCycle(outcome, end.Sub(start))

	w.mu.Lock()
	w.status.Running = false
	w.status.Cycles++
	w.status.LastEnd = end
	w.status.NextRun = w.sched.Next()
	w.status.LastReports = reports
	w.status.LastError = ""
	if err != nil {
		w.status.FailedCycles++
		w.status.LastError = err.Error()
	}
	w.mu.Unlock()

	w.log.InfoObj("cycle completed", "cycle_meta", map[string]any{
		"outcome":    outcome,
		"elapsed_ms": end.Sub(start).Milliseconds(),
		"next_run":   w.sched.Next().UTC(),
	})
}

type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("cycle panic: %v", p.value)
}

func (w *Watcher) safeRun(ctx context.Context) (reports []pipeline.SourceReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			reports = nil
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return w.runner.Run(ctx, w.sources)
}

func (w *Watcher) close() {
	for i := len(w.closers) - 1; i >= 0; i-- {
		if err := w.closers[i](); err != nil {
			w.log.ErrorObj("shutdown close failed", "error", err.Error())
		}
	}
}
