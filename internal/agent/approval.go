package agent

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cratos-run/cratos/pkg/models"
)

// Approval protocol errors. Every failure leaves the request state
// untouched; only a valid response transitions it.
var (
	ErrApprovalNotFound   = errors.New("approval: request not found")
	ErrApprovalExpired    = errors.New("approval: request expired")
	ErrInvalidNonce       = errors.New("approval: nonce mismatch")
	ErrNotRequester       = errors.New("approval: responder is not the requester")
	ErrAlreadyResolved    = errors.New("approval: request already resolved")
)

// ApprovalStatus is the request's lifecycle state. The transitions form
// the DAG Pending → {Approved, Rejected}; Expired is observable but is
// treated as Rejected by every waiter (fail-safe).
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

// ApprovalRequest is one pending human decision gating a risky tool call.
// The nonce is single-use: a response must echo it back, which defeats
// replaying an earlier approval against a new request id.
type ApprovalRequest struct {
	ID              string             `json:"id"`
	Nonce           string             `json:"nonce,omitempty"` // omitted from listings by the gateway
	ExecutionID     string             `json:"execution_id"`
	Channel         models.ChannelType `json:"channel,omitempty"`
	ChannelID       string             `json:"channel_id,omitempty"`
	RequesterUserID string             `json:"requester_user_id"`
	ResponderUserID string             `json:"responder_user_id,omitempty"`
	Action          string             `json:"action"`
	ToolName        string             `json:"tool_name,omitempty"`
	ToolArgs        string             `json:"tool_args,omitempty"`
	RiskDescription string             `json:"risk_description,omitempty"`
	Status          ApprovalStatus     `json:"status"`
	CreatedAt       time.Time          `json:"created_at"`
	ExpiresAt       time.Time          `json:"expires_at"`
	RespondedAt     *time.Time         `json:"responded_at,omitempty"`
}

// ApprovalNotifier receives lifecycle notifications so any channel can
// prompt the user (and later report the outcome). Typically backed by
// the gateway's event bus.
type ApprovalNotifier interface {
	ApprovalRequested(req *ApprovalRequest)
	ApprovalResolved(req *ApprovalRequest)
}

// ApprovalManager tracks pending requests and wakes the tool runner when
// a response (or the deadline) arrives.
type ApprovalManager struct {
	mu       sync.Mutex
	requests map[string]*ApprovalRequest
	waiters  map[string]chan ApprovalStatus
	ttl      time.Duration
	notifier ApprovalNotifier
	now      func() time.Time
}

// NewApprovalManager constructs a manager with the given request TTL.
// notifier may be nil.
func NewApprovalManager(ttl time.Duration, notifier ApprovalNotifier) *ApprovalManager {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ApprovalManager{
		requests: make(map[string]*ApprovalRequest),
		waiters:  make(map[string]chan ApprovalStatus),
		ttl:      ttl,
		notifier: notifier,
		now:      time.Now,
	}
}

func newNonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is unrecoverable; fall back to a UUID so
		// the request is still unguessable rather than empty.
		return uuid.NewString()
	}
	return hex.EncodeToString(buf)
}

// Create registers a new pending request and notifies subscribers.
func (m *ApprovalManager) Create(req ApprovalRequest) *ApprovalRequest {
	now := m.now()
	req.ID = uuid.NewString()
	req.Nonce = newNonce()
	req.Status = ApprovalPending
	req.CreatedAt = now
	req.ExpiresAt = now.Add(m.ttl)

	m.mu.Lock()
	stored := req
	m.requests[req.ID] = &stored
	m.mu.Unlock()

	if m.notifier != nil {
		m.notifier.ApprovalRequested(&stored)
	}
	return &stored
}

// Wait blocks until the request resolves, its deadline passes, or ctx is
// cancelled. Expiry (and cancellation) resolve to Rejected: the absence
// of a decision is never treated as consent.
func (m *ApprovalManager) Wait(ctx context.Context, requestID string) ApprovalStatus {
	m.mu.Lock()
	req, ok := m.requests[requestID]
	if !ok {
		m.mu.Unlock()
		return ApprovalRejected
	}
	if req.Status != ApprovalPending {
		status := req.Status
		m.mu.Unlock()
		return status
	}
	ch := make(chan ApprovalStatus, 1)
	m.waiters[requestID] = ch
	deadline := req.ExpiresAt
	m.mu.Unlock()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case status := <-ch:
		return status
	case <-timer.C:
		m.expire(requestID)
		return ApprovalRejected
	case <-ctx.Done():
		return ApprovalRejected
	}
}

func (m *ApprovalManager) expire(requestID string) {
	m.mu.Lock()
	req, ok := m.requests[requestID]
	var resolved *ApprovalRequest
	if ok && req.Status == ApprovalPending {
		req.Status = ApprovalExpired
		copy := *req
		resolved = &copy
	}
	delete(m.waiters, requestID)
	m.mu.Unlock()

	if resolved != nil && m.notifier != nil {
		m.notifier.ApprovalResolved(resolved)
	}
}

// Respond records a decision. Only the original requester (or an admin)
// may respond, the nonce must match, and the request must still be
// pending and unexpired. Success wakes the waiting tool runner.
func (m *ApprovalManager) Respond(requestID, responderUserID, nonce string, approve, isAdmin bool) (*ApprovalRequest, error) {
	m.mu.Lock()
	req, ok := m.requests[requestID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrApprovalNotFound
	}
	if req.Status != ApprovalPending {
		copy := *req
		m.mu.Unlock()
		return &copy, ErrAlreadyResolved
	}
	if m.now().After(req.ExpiresAt) {
		req.Status = ApprovalExpired
		copy := *req
		delete(m.waiters, requestID)
		m.mu.Unlock()
		if m.notifier != nil {
			m.notifier.ApprovalResolved(&copy)
		}
		return &copy, ErrApprovalExpired
	}
	if !isAdmin && responderUserID != req.RequesterUserID {
		m.mu.Unlock()
		return nil, ErrNotRequester
	}
	if nonce != req.Nonce {
		m.mu.Unlock()
		return nil, ErrInvalidNonce
	}

	now := m.now()
	req.ResponderUserID = responderUserID
	req.RespondedAt = &now
	if approve {
		req.Status = ApprovalApproved
	} else {
		req.Status = ApprovalRejected
	}
	copy := *req

	if waiter, ok := m.waiters[requestID]; ok {
		waiter <- req.Status
		delete(m.waiters, requestID)
	}
	m.mu.Unlock()

	if m.notifier != nil {
		m.notifier.ApprovalResolved(&copy)
	}
	return &copy, nil
}

// Pending lists requests still awaiting a decision, nonces withheld.
func (m *ApprovalManager) Pending() []*ApprovalRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var out []*ApprovalRequest
	for _, req := range m.requests {
		if req.Status != ApprovalPending || now.After(req.ExpiresAt) {
			continue
		}
		copy := *req
		copy.Nonce = ""
		out = append(out, &copy)
	}
	return out
}

// Get returns a request by id, nonce included (callers deliver it only
// to the requester's own channel).
func (m *ApprovalManager) Get(requestID string) (*ApprovalRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	if !ok {
		return nil, false
	}
	copy := *req
	return &copy, true
}
