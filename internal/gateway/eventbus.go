package gateway

import (
	"sync"
	"sync/atomic"
	"time"
)

// ExecutionEventKind enumerates the event-bus event kinds emitted during an
// execution's lifecycle. Channel adapters, the web UI, and the WebSocket
// gateway all subscribe to the same bus and filter by ExecutionID.
type ExecutionEventKind string

const (
	EventExecutionStarted   ExecutionEventKind = "ExecutionStarted"
	EventAiStreaming        ExecutionEventKind = "AiStreaming"
	EventAiCompleted        ExecutionEventKind = "AiCompleted"
	EventAiError            ExecutionEventKind = "AiError"
	EventToolCallStarted    ExecutionEventKind = "ToolCallStarted"
	EventToolCallCompleted  ExecutionEventKind = "ToolCallCompleted"
	EventApprovalRequested  ExecutionEventKind = "ApprovalRequested"
	EventApprovalResolved   ExecutionEventKind = "ApprovalResolved"
	EventExecutionCompleted ExecutionEventKind = "ExecutionCompleted"
	EventExecutionFailed    ExecutionEventKind = "ExecutionFailed"
	EventExecutionCancelled ExecutionEventKind = "ExecutionCancelled"
)

// ExecutionEvent is a single append-only event published to the bus.
// SequenceNum is strictly monotone increasing within one ExecutionID;
// no ordering is implied across executions.
type ExecutionEvent struct {
	ExecutionID string
	Kind        ExecutionEventKind
	SequenceNum uint64
	Timestamp   time.Time
	Payload     map[string]any
}

// subscriberQueueSize bounds each subscriber's buffered channel. A publisher
// must never block on a slow subscriber, so the channel is sized generously
// and writes that would block are dropped instead (see publish below).
const subscriberQueueSize = 256

// subscriber is one live consumer of the bus.
type subscriber struct {
	id      uint64
	ch      chan ExecutionEvent
	dropped atomic.Uint64
}

// EventBus is a single-process publish-subscribe hub for execution events.
// Publish is non-blocking: when a subscriber's queue is full the event is
// dropped for that subscriber only (a "lossy" subscriber), so one slow
// consumer can never stall the orchestrator or tool runner.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[uint64]*subscriber
	nextSubID   atomic.Uint64
	sequences   sync.Map // execution_id -> *atomic.Uint64
	now         func() time.Time
}

// NewEventBus constructs an empty EventBus.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[uint64]*subscriber),
		now:         time.Now,
	}
}

// Subscription is a handle returned by Subscribe. Events arrives on C;
// Unsubscribe must be called to release the subscriber's queue.
type Subscription struct {
	C    <-chan ExecutionEvent
	bus  *EventBus
	id   uint64
	subj *subscriber
}

// Dropped returns how many events have been dropped for this subscriber
// because its queue was full when Publish tried to deliver.
func (s *Subscription) Dropped() uint64 {
	if s == nil || s.subj == nil {
		return 0
	}
	return s.subj.dropped.Load()
}

// Unsubscribe removes the subscription and closes its channel.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if sub, ok := s.bus.subscribers[s.id]; ok {
		delete(s.bus.subscribers, s.id)
		close(sub.ch)
	}
}

// Subscribe creates a new bounded, lossy subscription to every event
// published on the bus. Callers that only care about one execution should
// filter on ExecutionEvent.ExecutionID as they read from C.
func (b *EventBus) Subscribe() *Subscription {
	sub := &subscriber{
		id: b.nextSubID.Add(1),
		ch: make(chan ExecutionEvent, subscriberQueueSize),
	}
	b.mu.Lock()
	b.subscribers[sub.id] = sub
	b.mu.Unlock()
	return &Subscription{C: sub.ch, bus: b, id: sub.id, subj: sub}
}

// Publish delivers an event to every current subscriber without blocking.
// It stamps Timestamp (if zero) and the next SequenceNum for the event's
// ExecutionID before fan-out.
func (b *EventBus) Publish(event ExecutionEvent) ExecutionEvent {
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now()
	}
	event.SequenceNum = b.nextSequence(event.ExecutionID)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		select {
		case sub.ch <- event:
		default:
			sub.dropped.Add(1)
		}
	}
	return event
}

func (b *EventBus) nextSequence(executionID string) uint64 {
	counterAny, _ := b.sequences.LoadOrStore(executionID, new(atomic.Uint64))
	counter := counterAny.(*atomic.Uint64)
	return counter.Add(1)
}

// ResetSequence discards the sequence counter for an execution. Call this
// once an execution reaches a terminal state so the counter map does not
// grow unbounded across the process lifetime.
func (b *EventBus) ResetSequence(executionID string) {
	b.sequences.Delete(executionID)
}

// SubscriberCount reports the number of live subscriptions, primarily for
// health/metrics reporting.
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
