package tasks

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a process-local Store for tests and ephemeral runs.
type MemoryStore struct {
	mu    sync.Mutex
	tasks map[string]*ScheduledTask
	execs map[string]*TaskExecution
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string]*ScheduledTask),
		execs: make(map[string]*TaskExecution),
	}
}

func (s *MemoryStore) CreateTask(ctx context.Context, task *ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *task
	s.tasks[task.ID] = &clone
	return nil
}

func (s *MemoryStore) GetTask(ctx context.Context, id string) (*ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	clone := *task
	return &clone, nil
}

func (s *MemoryStore) UpdateTask(ctx context.Context, task *ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; !ok {
		return ErrTaskNotFound
	}
	clone := *task
	s.tasks[task.ID] = &clone
	return nil
}

func (s *MemoryStore) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	for execID, exec := range s.execs {
		if exec.TaskID == id {
			delete(s.execs, execID)
		}
	}
	return nil
}

func (s *MemoryStore) ListTasks(ctx context.Context, opts ListTasksOptions) ([]*ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ScheduledTask
	for _, task := range s.tasks {
		if !opts.IncludeDisabled && task.Status != TaskStatusActive {
			continue
		}
		if opts.DueBefore != nil && task.NextRunAt.After(*opts.DueBefore) {
			continue
		}
		clone := *task
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].NextRunAt.Before(out[j].NextRunAt)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *MemoryStore) DueTasks(ctx context.Context, now time.Time) ([]*ScheduledTask, error) {
	return s.ListTasks(ctx, ListTasksOptions{DueBefore: &now})
}

func (s *MemoryStore) CreateExecution(ctx context.Context, exec *TaskExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *exec
	s.execs[exec.ID] = &clone
	return nil
}

func (s *MemoryStore) FinishExecution(ctx context.Context, id string, status ExecutionStatus, result string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.execs[id]
	if !ok {
		return ErrTaskNotFound
	}
	exec.Status = status
	exec.Result = result
	exec.FinishedAt = &finishedAt
	return nil
}

func (s *MemoryStore) ListExecutions(ctx context.Context, taskID string, limit int) ([]*TaskExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*TaskExecution
	for _, exec := range s.execs {
		if exec.TaskID == taskID {
			clone := *exec
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
