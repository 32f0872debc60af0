package agent

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestApprovalRespondHappyPath(t *testing.T) {
	m := NewApprovalManager(time.Minute, nil)
	req := m.Create(ApprovalRequest{RequesterUserID: "u1", Action: "run exec"})

	done := make(chan ApprovalStatus, 1)
	go func() { done <- m.Wait(context.Background(), req.ID) }()

	// Give the waiter a moment to register before responding.
	time.Sleep(10 * time.Millisecond)
	resolved, err := m.Respond(req.ID, "u1", req.Nonce, true, false)
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if resolved.Status != ApprovalApproved {
		t.Errorf("status = %v, want approved", resolved.Status)
	}

	select {
	case status := <-done:
		if status != ApprovalApproved {
			t.Errorf("Wait() = %v, want approved", status)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait() did not wake")
	}
}

func TestApprovalReplayDefence(t *testing.T) {
	m := NewApprovalManager(time.Minute, nil)
	req := m.Create(ApprovalRequest{RequesterUserID: "u1", Action: "run exec"})

	// Wrong nonce must fail without a state change.
	if _, err := m.Respond(req.ID, "u1", "not-the-nonce", true, false); !errors.Is(err, ErrInvalidNonce) {
		t.Fatalf("Respond() error = %v, want ErrInvalidNonce", err)
	}
	current, _ := m.Get(req.ID)
	if current.Status != ApprovalPending {
		t.Errorf("status after bad nonce = %v, want pending", current.Status)
	}
}

func TestApprovalOnlyRequesterMayRespond(t *testing.T) {
	m := NewApprovalManager(time.Minute, nil)
	req := m.Create(ApprovalRequest{RequesterUserID: "u1"})

	if _, err := m.Respond(req.ID, "u2", req.Nonce, true, false); !errors.Is(err, ErrNotRequester) {
		t.Fatalf("Respond() error = %v, want ErrNotRequester", err)
	}
	// Admin bypasses the requester check but still needs the nonce.
	if _, err := m.Respond(req.ID, "u2", req.Nonce, true, true); err != nil {
		t.Fatalf("admin Respond() error = %v", err)
	}
}

func TestApprovalExpiryIsRejection(t *testing.T) {
	m := NewApprovalManager(time.Minute, nil)
	req := m.Create(ApprovalRequest{RequesterUserID: "u1"})

	// Move the clock past the deadline, then respond: the request
	// expires rather than approving mid-submission.
	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	resolved, err := m.Respond(req.ID, "u1", req.Nonce, true, false)
	if !errors.Is(err, ErrApprovalExpired) {
		t.Fatalf("Respond() error = %v, want ErrApprovalExpired", err)
	}
	if resolved.Status != ApprovalExpired {
		t.Errorf("status = %v, want expired", resolved.Status)
	}
}

func TestApprovalWaitTimesOutAsRejected(t *testing.T) {
	m := NewApprovalManager(time.Minute, nil)
	req := m.Create(ApprovalRequest{RequesterUserID: "u1"})

	// Shrink the stored deadline so Wait times out promptly.
	m.mu.Lock()
	m.requests[req.ID].ExpiresAt = time.Now().Add(30 * time.Millisecond)
	m.mu.Unlock()

	if status := m.Wait(context.Background(), req.ID); status != ApprovalRejected {
		t.Errorf("Wait() = %v, want rejected on expiry", status)
	}
	current, _ := m.Get(req.ID)
	if current.Status != ApprovalExpired {
		t.Errorf("stored status = %v, want expired", current.Status)
	}
}

func TestApprovalResolvedIsTerminal(t *testing.T) {
	m := NewApprovalManager(time.Minute, nil)
	req := m.Create(ApprovalRequest{RequesterUserID: "u1"})

	if _, err := m.Respond(req.ID, "u1", req.Nonce, false, false); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if _, err := m.Respond(req.ID, "u1", req.Nonce, true, false); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("second Respond() error = %v, want ErrAlreadyResolved", err)
	}
}

func TestApprovalPendingWithholdsNonce(t *testing.T) {
	m := NewApprovalManager(time.Minute, nil)
	m.Create(ApprovalRequest{RequesterUserID: "u1"})

	pending := m.Pending()
	if len(pending) != 1 {
		t.Fatalf("Pending() len = %d, want 1", len(pending))
	}
	if pending[0].Nonce != "" {
		t.Error("Pending() must withhold nonces")
	}
}
