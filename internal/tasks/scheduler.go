package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Executor dispatches one due task and returns a human-readable result.
type Executor interface {
	Execute(ctx context.Context, task *ScheduledTask) (string, error)
}

// SchedulerConfig bounds the run loop.
type SchedulerConfig struct {
	CheckInterval time.Duration // poll cadence (default 60s)
	MaxConcurrent int           // in-flight cap (default 4)
	RetryDelay    time.Duration // delay before a failed attempt retries
	DrainTimeout  time.Duration // shutdown wait for in-flight tasks
	OneShotGrace  time.Duration // how stale a missed one-shot may fire at startup
}

// Scheduler polls the store for due tasks and dispatches them through
// the executor, bounded by a semaphore of MaxConcurrent.
type Scheduler struct {
	store    Store
	executor Executor
	cfg      SchedulerConfig
	logger   *slog.Logger
	parser   cron.Parser

	sem      chan struct{}
	wg       sync.WaitGroup
	inflight sync.Map // task id -> struct{}, skip re-dispatch while running
	now      func() time.Time
}

// NewScheduler constructs a Scheduler.
func NewScheduler(store Store, executor Executor, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 30 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	if cfg.OneShotGrace <= 0 {
		cfg.OneShotGrace = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    store,
		executor: executor,
		cfg:      cfg,
		logger:   logger.With("component", "scheduler"),
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		now:      time.Now,
	}
}

// ComputeNextRun evaluates a schedule string from a reference instant.
// Cron expressions are interpreted in the task's timezone; "@every"
// intervals and "@at" one-shots are timezone-independent.
func (s *Scheduler) ComputeNextRun(schedule, timezone string, from time.Time) (time.Time, error) {
	if at, ok := ParseOneShotAt(schedule); ok {
		return at, nil
	}
	if tz := strings.TrimSpace(timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return time.Time{}, fmt.Errorf("tasks: invalid timezone %q: %w", timezone, err)
		}
		from = from.In(loc)
	}
	spec, err := s.parser.Parse(schedule)
	if err != nil {
		return time.Time{}, fmt.Errorf("tasks: invalid schedule %q: %w", schedule, err)
	}
	return spec.Next(from), nil
}

// Run is the scheduler's main loop. It recomputes stale schedules at
// startup, then polls every CheckInterval until ctx is cancelled, at
// which point it stops dispatching and drains in-flight executions up
// to DrainTimeout.
func (s *Scheduler) Run(ctx context.Context) {
	s.recoverOnStartup(ctx)

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Tick runs one poll round immediately; exported for the interval
// Immediate flag and for tests that drive the loop by hand.
func (s *Scheduler) Tick(ctx context.Context) { s.tick(ctx) }

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	due, err := s.store.DueTasks(ctx, now)
	if err != nil {
		s.logger.Error("due-task query failed", "error", err)
		return
	}
	for _, task := range due {
		if _, running := s.inflight.Load(task.ID); running {
			continue
		}
		select {
		case s.sem <- struct{}{}:
		default:
			// At capacity: leave the rest for the next tick; the
			// priority ordering of the due query handles backlog.
			return
		}
		s.inflight.Store(task.ID, struct{}{})
		s.wg.Add(1)
		go func(task *ScheduledTask) {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			defer s.inflight.Delete(task.ID)
			s.dispatch(ctx, task, 1)
		}(task)
	}
}

// dispatch runs one task attempt: history row, executor call, result
// bookkeeping, retry scheduling, and next-run computation.
func (s *Scheduler) dispatch(ctx context.Context, task *ScheduledTask, attempt int) {
	now := s.now()
	exec := &TaskExecution{
		ID:        uuid.NewString(),
		TaskID:    task.ID,
		Status:    ExecRunning,
		Attempt:   attempt,
		StartedAt: now,
	}
	if err := s.store.CreateExecution(ctx, exec); err != nil {
		s.logger.Error("execution insert failed", "task", task.ID, "error", err)
		return
	}

	result, runErr := s.executor.Execute(ctx, task)

	finished := s.now()
	status := ExecCompleted
	if runErr != nil {
		status = ExecFailed
		result = runErr.Error()
	}
	if err := s.store.FinishExecution(ctx, exec.ID, status, result, finished); err != nil {
		s.logger.Error("execution update failed", "task", task.ID, "error", err)
	}

	// Reload before updating: the task may have been edited mid-run.
	current, err := s.store.GetTask(ctx, task.ID)
	if err != nil {
		return
	}
	current.LastRunAt = &finished
	current.RunCount++
	if runErr != nil {
		current.FailureCount++
	}
	s.advance(current, finished)
	current.UpdatedAt = finished
	if err := s.store.UpdateTask(ctx, current); err != nil {
		s.logger.Error("task update failed", "task", task.ID, "error", err)
	}

	if runErr != nil {
		s.logger.Warn("task failed", "task", task.ID, "attempt", attempt, "error", runErr)
		if attempt <= current.MaxRetries {
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.RetryDelay):
				s.dispatch(ctx, current, attempt+1)
			}
		}
		return
	}
	s.logger.Info("task completed", "task", task.ID, "attempt", attempt)
}

// advance computes the task's next run, disabling one-shots after they
// fire and tasks whose schedule no longer parses.
func (s *Scheduler) advance(task *ScheduledTask, from time.Time) {
	if _, ok := ParseOneShotAt(task.Schedule); ok {
		task.Status = TaskStatusDisabled
		task.NextRunAt = time.Time{}
		return
	}
	next, err := s.ComputeNextRun(task.Schedule, task.Timezone, from)
	if err != nil {
		s.logger.Warn("schedule no longer parses, disabling task", "task", task.ID, "error", err)
		task.Status = TaskStatusDisabled
		return
	}
	task.NextRunAt = next
}

// recoverOnStartup recomputes next_run_at for stale cron tasks and
// handles one-shots whose instant passed while the process was down: a
// miss inside the grace window fires on the first tick, anything older
// disables.
func (s *Scheduler) recoverOnStartup(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx, ListTasksOptions{})
	if err != nil {
		s.logger.Error("startup task load failed", "error", err)
		return
	}
	now := s.now()
	for _, task := range tasks {
		changed := false
		if at, ok := ParseOneShotAt(task.Schedule); ok {
			if at.Before(now.Add(-s.cfg.OneShotGrace)) {
				task.Status = TaskStatusDisabled
				changed = true
			}
		} else if task.NextRunAt.Before(now) {
			next, err := s.ComputeNextRun(task.Schedule, task.Timezone, now)
			if err != nil {
				task.Status = TaskStatusDisabled
			} else {
				task.NextRunAt = next
			}
			changed = true
		}
		if changed {
			task.UpdatedAt = now
			if err := s.store.UpdateTask(ctx, task); err != nil {
				s.logger.Warn("startup task update failed", "task", task.ID, "error", err)
			}
		}
	}
}

func (s *Scheduler) drain() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.DrainTimeout):
		s.logger.Warn("drain timeout reached with tasks still in flight")
	}
}
