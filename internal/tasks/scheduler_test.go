package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type countingExecutor struct {
	mu    sync.Mutex
	runs  []string
	fail  int // fail the first N runs
	delay time.Duration
}

func (e *countingExecutor) Execute(ctx context.Context, task *ScheduledTask) (string, error) {
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runs = append(e.runs, task.ID)
	if len(e.runs) <= e.fail {
		return "", errors.New("boom")
	}
	return "done", nil
}

func (e *countingExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.runs)
}

func newTestScheduler(store Store, exec Executor) *Scheduler {
	return NewScheduler(store, exec, SchedulerConfig{
		CheckInterval: 10 * time.Millisecond,
		RetryDelay:    5 * time.Millisecond,
		DrainTimeout:  time.Second,
	}, nil)
}

func TestParseOneShotAt(t *testing.T) {
	at, ok := ParseOneShotAt("@at 2026-03-01T12:00:00Z")
	if !ok || at.UTC().Hour() != 12 {
		t.Fatalf("ParseOneShotAt() = %v, %v", at, ok)
	}
	if _, ok := ParseOneShotAt("*/5 * * * *"); ok {
		t.Error("cron expression must not parse as one-shot")
	}
	if _, ok := ParseOneShotAt("@at not-a-time"); ok {
		t.Error("malformed instant must not parse")
	}
}

func TestComputeNextRunCron(t *testing.T) {
	s := newTestScheduler(NewMemoryStore(), &countingExecutor{})
	from := time.Date(2026, 3, 1, 10, 2, 0, 0, time.UTC)

	next, err := s.ComputeNextRun("*/5 * * * *", "", from)
	if err != nil {
		t.Fatalf("ComputeNextRun() error = %v", err)
	}
	if next.Minute() != 5 {
		t.Errorf("next = %v, want minute 5", next)
	}

	if _, err := s.ComputeNextRun("not a cron", "", from); err == nil {
		t.Error("expected error for malformed schedule")
	}
	if _, err := s.ComputeNextRun("*/5 * * * *", "Mars/Olympus", from); err == nil {
		t.Error("expected error for unknown timezone")
	}
}

func TestComputeNextRunInterval(t *testing.T) {
	s := newTestScheduler(NewMemoryStore(), &countingExecutor{})
	from := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	next, err := s.ComputeNextRun("@every 300s", "", from)
	if err != nil {
		t.Fatalf("ComputeNextRun() error = %v", err)
	}
	if got := next.Sub(from); got != 5*time.Minute {
		t.Errorf("interval = %v, want 5m", got)
	}
}

func TestOneShotFiresOnceThenDisables(t *testing.T) {
	store := NewMemoryStore()
	exec := &countingExecutor{}
	s := newTestScheduler(store, exec)
	ctx := context.Background()

	now := time.Now()
	task := &ScheduledTask{
		ID:        "t1",
		Name:      "once",
		Schedule:  "@at " + now.Add(-time.Second).Format(time.RFC3339),
		Prompt:    "noop",
		Status:    TaskStatusActive,
		NextRunAt: now.Add(-time.Second),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	s.Tick(ctx)
	s.drain()

	if exec.count() != 1 {
		t.Fatalf("executor ran %d times, want 1", exec.count())
	}
	updated, _ := store.GetTask(ctx, "t1")
	if updated.Status != TaskStatusDisabled {
		t.Errorf("status = %v, want disabled after one-shot", updated.Status)
	}
	if !updated.NextRunAt.IsZero() {
		t.Errorf("next_run_at = %v, want zero", updated.NextRunAt)
	}
	if updated.RunCount != 1 {
		t.Errorf("run_count = %d, want 1", updated.RunCount)
	}

	execs, _ := store.ListExecutions(ctx, "t1", 0)
	if len(execs) != 1 || execs[0].Status != ExecCompleted {
		t.Fatalf("unexpected executions %+v", execs)
	}

	// A second tick must not re-fire the disabled task.
	s.Tick(ctx)
	s.drain()
	if exec.count() != 1 {
		t.Errorf("disabled one-shot re-fired, runs = %d", exec.count())
	}
}

func TestFailedRunRetriesAndCountsFailures(t *testing.T) {
	store := NewMemoryStore()
	exec := &countingExecutor{fail: 1}
	s := newTestScheduler(store, exec)
	ctx := context.Background()

	now := time.Now()
	task := &ScheduledTask{
		ID:         "t1",
		Name:       "retry",
		Schedule:   "@every 1h",
		Prompt:     "noop",
		Status:     TaskStatusActive,
		MaxRetries: 2,
		NextRunAt:  now.Add(-time.Second),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	s.Tick(ctx)
	s.drain()

	if exec.count() != 2 {
		t.Fatalf("executor ran %d times, want 2 (initial + retry)", exec.count())
	}
	updated, _ := store.GetTask(ctx, "t1")
	if updated.FailureCount != 1 {
		t.Errorf("failure_count = %d, want 1", updated.FailureCount)
	}
	if updated.RunCount != 2 {
		t.Errorf("run_count = %d, want 2", updated.RunCount)
	}
}

func TestStartupDisablesStaleOneShot(t *testing.T) {
	store := NewMemoryStore()
	s := newTestScheduler(store, &countingExecutor{})
	ctx := context.Background()

	now := time.Now()
	stale := &ScheduledTask{
		ID:        "old",
		Name:      "stale",
		Schedule:  "@at " + now.Add(-time.Hour).Format(time.RFC3339),
		Prompt:    "noop",
		Status:    TaskStatusActive,
		NextRunAt: now.Add(-time.Hour),
	}
	if err := store.CreateTask(ctx, stale); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	s.recoverOnStartup(ctx)

	updated, _ := store.GetTask(ctx, "old")
	if updated.Status != TaskStatusDisabled {
		t.Errorf("stale one-shot should be disabled, got %v", updated.Status)
	}
}

func TestMaxConcurrentSkipsWhenFull(t *testing.T) {
	store := NewMemoryStore()
	exec := &countingExecutor{delay: 50 * time.Millisecond}
	s := NewScheduler(store, exec, SchedulerConfig{
		CheckInterval: 10 * time.Millisecond,
		MaxConcurrent: 1,
		DrainTimeout:  time.Second,
	}, nil)
	ctx := context.Background()

	now := time.Now()
	for _, id := range []string{"a", "b"} {
		task := &ScheduledTask{
			ID: id, Name: id, Schedule: "@every 1h", Prompt: "noop",
			Status: TaskStatusActive, NextRunAt: now.Add(-time.Second),
		}
		if err := store.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask() error = %v", err)
		}
	}

	s.Tick(ctx) // capacity 1: only one task dispatches this tick
	time.Sleep(10 * time.Millisecond)
	if exec.count() > 1 {
		t.Errorf("expected at most 1 run while at capacity, got %d", exec.count())
	}
	s.drain()
}
