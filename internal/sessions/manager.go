package sessions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cratos-run/cratos/pkg/models"
)

// Errors returned by LaneManager operations.
var (
	ErrNotFound     = errors.New("session not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidState = errors.New("invalid session state")
)

// Caller identifies the authenticated actor making a request.
type Caller struct {
	UserID string
	Admin  bool
}

// SessionSummary is the caller-facing view of a session.
type SessionSummary struct {
	ID                string
	OwnerUserID       string
	Name              string
	Status            models.SessionStatus
	ActiveExecutionID string
	QueueDepth        int
	CreatedAt         time.Time
	LastAccessedAt    time.Time
}

// SendResult is returned by LaneManager.Send.
type SendResult struct {
	Started     bool
	Position    int // 1-based queue position when Started is false
	ExecutionID string
	Text        string
}

type pendingEntry struct {
	id       string
	text     string
	queuedAt time.Time
}

type lane struct {
	ownerUserID       string
	name              string
	status            models.SessionStatus
	activeExecutionID string
	pending           []pendingEntry
	createdAt         time.Time
	lastAccessedAt    time.Time
}

// LaneManager mediates all inbound requests to sessions, enforcing
// per-owner access control and serialising each session's admitted
// executions into a single active one at a time ("lane serialisation").
//
// Durable session rows are delegated to a Store; LaneManager itself
// only holds the lane bookkeeping (status, active execution, pending
// queue) that does not need the durability a full execution/event
// store would provide — on process restart, lanes start fresh and any
// session whose persisted status was Running resets to Idle, matching
// the crash-recovery rule in the session lifecycle.
type LaneManager struct {
	mu    sync.RWMutex
	store Store
	lanes map[string]*lane
	now   func() time.Time
}

// NewLaneManager constructs a LaneManager backed by the given Store.
func NewLaneManager(store Store) *LaneManager {
	return &LaneManager{
		store: store,
		lanes: make(map[string]*lane),
		now:   time.Now,
	}
}

// Create creates a new session owned by the caller.
func (m *LaneManager) Create(ctx context.Context, caller Caller, name string) (*SessionSummary, error) {
	if caller.UserID == "" {
		return nil, ErrUnauthorized
	}
	id := uuid.NewString()
	now := m.now()

	session := &models.Session{
		ID:             id,
		Title:          name,
		Key:            id,
		OwnerUserID:    caller.UserID,
		Status:         models.SessionIdle,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastAccessedAt: now,
	}
	if err := m.store.Create(ctx, session); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.lanes[id] = &lane{
		ownerUserID:    caller.UserID,
		name:           name,
		status:         models.SessionIdle,
		createdAt:      now,
		lastAccessedAt: now,
	}
	m.mu.Unlock()

	return &SessionSummary{
		ID:             id,
		OwnerUserID:    caller.UserID,
		Name:           name,
		Status:         models.SessionIdle,
		CreatedAt:      now,
		LastAccessedAt: now,
	}, nil
}

// List returns sessions owned by the caller, or all sessions (minus
// Closed ones) if the caller has Admin scope.
func (m *LaneManager) List(ctx context.Context, caller Caller) ([]SessionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]SessionSummary, 0, len(m.lanes))
	for id, l := range m.lanes {
		if l.status == models.SessionClosed {
			continue
		}
		if !caller.Admin && l.ownerUserID != caller.UserID {
			continue
		}
		out = append(out, summaryLocked(id, l))
	}
	return out, nil
}

// Get returns a single session summary, ownership-checked.
func (m *LaneManager) Get(ctx context.Context, caller Caller, id string) (*SessionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.lanes[id]
	if !ok {
		return nil, ErrNotFound
	}
	if err := checkOwnership(caller, l.ownerUserID); err != nil {
		return nil, err
	}
	s := summaryLocked(id, l)
	return &s, nil
}

// Delete tombstones a session: flips it to Closed without physically
// removing it, so any in-flight events still resolve cleanly.
func (m *LaneManager) Delete(ctx context.Context, caller Caller, id string) error {
	m.mu.Lock()
	l, ok := m.lanes[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if err := checkOwnership(caller, l.ownerUserID); err != nil {
		m.mu.Unlock()
		return err
	}
	l.status = models.SessionClosed
	l.pending = nil
	l.activeExecutionID = ""
	m.mu.Unlock()

	if session, err := m.store.Get(ctx, id); err == nil && session != nil {
		session.Status = models.SessionClosed
		session.UpdatedAt = m.now()
		_ = m.store.Update(ctx, session)
	}
	return nil
}

// Send admits text into a session's lane. If the lane is Idle, it
// transitions to Running and mints a new execution id for the caller
// to hand to the orchestrator immediately (Started). Otherwise the
// text is appended to the pending queue in arrival order and its
// 1-based position is returned (Queued).
func (m *LaneManager) Send(ctx context.Context, caller Caller, id string, text string) (*SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.lanes[id]
	if !ok {
		return nil, ErrNotFound
	}
	if err := checkOwnership(caller, l.ownerUserID); err != nil {
		return nil, err
	}
	if l.status == models.SessionClosed {
		return nil, ErrInvalidState
	}

	l.lastAccessedAt = m.now()

	if l.status == models.SessionIdle {
		execID := uuid.NewString()
		l.status = models.SessionRunning
		l.activeExecutionID = execID
		return &SendResult{Started: true, ExecutionID: execID, Text: text}, nil
	}

	l.pending = append(l.pending, pendingEntry{
		id:       uuid.NewString(),
		text:     text,
		queuedAt: m.now(),
	})
	return &SendResult{Started: false, Position: len(l.pending)}, nil
}

// ExecutionCompleted is called by the orchestrator on any terminal
// execution status (Completed, Failed, or Cancelled). It pops the head
// of the pending queue, if any, minting a new execution id and
// returning the text to run next; otherwise the lane returns to Idle.
func (m *LaneManager) ExecutionCompleted(ctx context.Context, id string) (*SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.lanes[id]
	if !ok {
		return nil, ErrNotFound
	}

	if len(l.pending) == 0 {
		l.status = models.SessionIdle
		l.activeExecutionID = ""
		return nil, nil
	}

	next := l.pending[0]
	l.pending = l.pending[1:]
	execID := uuid.NewString()
	l.activeExecutionID = execID
	l.status = models.SessionRunning
	return &SendResult{Started: true, ExecutionID: execID, Text: next.text}, nil
}

// Cancel clears the active execution of a session, if any, and signals
// cancellation to the orchestrator via the caller-supplied cancel func.
// It returns whether a cancel actually occurred.
func (m *LaneManager) Cancel(ctx context.Context, caller Caller, id string, signal func(executionID string)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.lanes[id]
	if !ok {
		return false, ErrNotFound
	}
	if err := checkOwnership(caller, l.ownerUserID); err != nil {
		return false, err
	}
	if l.activeExecutionID == "" {
		return false, nil
	}

	execID := l.activeExecutionID
	l.activeExecutionID = ""
	l.status = models.SessionIdle
	if signal != nil {
		signal(execID)
	}
	return true, nil
}

func checkOwnership(caller Caller, ownerUserID string) error {
	if caller.Admin {
		return nil
	}
	if caller.UserID != "" && caller.UserID == ownerUserID {
		return nil
	}
	return ErrUnauthorized
}

func summaryLocked(id string, l *lane) SessionSummary {
	return SessionSummary{
		ID:                id,
		OwnerUserID:       l.ownerUserID,
		Name:              l.name,
		Status:            l.status,
		ActiveExecutionID: l.activeExecutionID,
		QueueDepth:        len(l.pending),
		CreatedAt:         l.createdAt,
		LastAccessedAt:    l.lastAccessedAt,
	}
}
