package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adda-Baaj/fia-docwatch/internal/pipeline"
	"github.com/Adda-Baaj/fia-docwatch/pkg/sources"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   int
	err     error
	panicOn int
	ran     chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{ran: make(chan struct{}, 16)}
}

func (f *fakeRunner) Run(_ context.Context, srcs []sources.Source) ([]pipeline.SourceReport, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	err := f.err
	f.mu.Unlock()
	defer func() { f.ran <- struct{}{} }()

	if n == f.panicOn {
		panic("boom")
	}
	reports := make([]pipeline.SourceReport, 0, len(srcs))
	for _, src := range srcs {
		reports = append(reports, pipeline.SourceReport{SourceID: src.ID})
	}
	return reports, err
}

func (f *fakeRunner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitRun(t *testing.T, f *fakeRunner) {
	t.Helper()
	select {
	case <-f.ran:
	case <-time.After(2 * time.Second):
		t.Fatalf("cycle did not run")
	}
}

func testSources() []sources.Source {
	return []sources.Source{{ID: "fia", Mode: sources.ModeTimestampLog}}
}

func TestWatcherRunsImmediatelyAndStopsOnCancel(t *testing.T) {
	runner := newFakeRunner()
	closed := 0
	w := NewWatcher(runner, testSources(), WatcherOptions{PollInterval: time.Hour, Tick: time.Hour}, nil,
		func() error { closed++; return nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitRun(t, runner)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}

	if runner.Calls() != 1 {
		t.Fatalf("expected one cycle, got %d", runner.Calls())
	}
	if closed != 1 {
		t.Fatalf("expected closers to run once, got %d", closed)
	}
	st := w.Status()
	if st.Cycles != 1 || st.Running {
		t.Fatalf("unexpected status %+v", st)
	}
	if len(st.LastReports) != 1 || st.LastReports[0].SourceID != "fia" {
		t.Fatalf("unexpected reports %+v", st.LastReports)
	}
	if !st.NextRun.After(st.LastStart) {
		t.Fatalf("next run %v should follow start %v", st.NextRun, st.LastStart)
	}
}

func TestWatcherSurvivesPanicAndError(t *testing.T) {
	runner := newFakeRunner()
	runner.panicOn = 1
	w := NewWatcher(runner, testSources(), WatcherOptions{PollInterval: time.Hour, Tick: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	waitRun(t, runner)
	waitStatus(t, w, func(st pipeline.Status) bool { return st.Cycles == 1 })
	st := w.Status()
	if st.FailedCycles != 1 || st.LastError == "" {
		t.Fatalf("panic should be recorded as a failed cycle: %+v", st)
	}

	runner.mu.Lock()
	runner.err = errors.New("source failed")
	runner.mu.Unlock()
	if !w.Trigger() {
		t.Fatalf("trigger should be accepted")
	}
	waitRun(t, runner)
	waitStatus(t, w, func(st pipeline.Status) bool { return st.Cycles == 2 })

	st = w.Status()
	if st.FailedCycles != 2 || st.LastError != "source failed" {
		t.Fatalf("unexpected status after error: %+v", st)
	}
}

func TestWatcherTriggerRunsCycle(t *testing.T) {
	runner := newFakeRunner()
	w := NewWatcher(runner, testSources(), WatcherOptions{PollInterval: time.Hour, Tick: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	waitRun(t, runner)
	w.Trigger()
	waitRun(t, runner)

	if runner.Calls() != 2 {
		t.Fatalf("expected two cycles, got %d", runner.Calls())
	}
}

func TestWatcherTriggerIsCoalesced(t *testing.T) {
	w := NewWatcher(newFakeRunner(), testSources(), WatcherOptions{}, nil)
	if !w.Trigger() {
		t.Fatalf("first trigger should be accepted")
	}
	if w.Trigger() {
		t.Fatalf("second trigger should be rejected while one is pending")
	}
}

func TestWatcherTickRunsWhenDue(t *testing.T) {
	runner := newFakeRunner()
	w := NewWatcher(runner, testSources(), WatcherOptions{PollInterval: time.Hour, Tick: 10 * time.Millisecond}, nil)

	var mu sync.Mutex
	now := t0
	w.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	waitRun(t, runner)

	time.Sleep(50 * time.Millisecond)
	if runner.Calls() != 1 {
		t.Fatalf("no cycle should run before the interval elapses, got %d", runner.Calls())
	}

	mu.Lock()
	now = t0.Add(time.Hour)
	mu.Unlock()
	waitRun(t, runner)
}

func TestWatcherRunRequiresRunner(t *testing.T) {
	var w *Watcher
	if err := w.Run(context.Background()); err == nil {
		t.Fatalf("expected error for nil watcher")
	}
}

func waitStatus(t *testing.T, w *Watcher, ok func(pipeline.Status) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ok(w.Status()) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("status never reached expected state: %+v", w.Status())
}
