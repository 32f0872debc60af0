package cratoserr

import (
	"errors"
	"testing"
)

func TestKindOfUnwrapsWrappedError(t *testing.T) {
	base := New(KindRateLimited, "too many requests")
	wrapped := errors.New("request failed")
	wrapped = Wrap(KindNetwork, "dial failed", wrapped)
	if KindOf(wrapped) != KindNetwork {
		t.Errorf("expected KindNetwork, got %s", KindOf(wrapped))
	}
	if KindOf(base) != KindRateLimited {
		t.Errorf("expected KindRateLimited, got %s", KindOf(base))
	}
	if KindOf(nil) != "" {
		t.Error("expected empty kind for nil error")
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Error("expected KindInternal for an error with no cratoserr.Error in its chain")
	}
}

func TestUserMessageAPIKeyMissing(t *testing.T) {
	err := New(KindAPIKeyMissing, "missing credential").WithField("provider", "Anthropic")
	msg := UserMessage(err)
	if msg == "" {
		t.Fatal("expected a non-empty user message")
	}
	suggestion := Suggestion(err)
	if suggestion == "" {
		t.Fatal("expected a non-empty suggestion")
	}
}

func TestUserMessageFallsBackForUnknownError(t *testing.T) {
	msg := UserMessage(errors.New("unmapped"))
	if msg == "" {
		t.Fatal("expected a non-empty fallback message")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := Wrap(KindExecution, "tool failed", cause)
	if !errors.Is(wrapped, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestWithFieldDoesNotMutateOriginal(t *testing.T) {
	base := New(KindInvalidConfig, "bad field")
	derived := base.WithField("field", "llm.timeout")
	if len(base.Fields) != 0 {
		t.Error("WithField should not mutate the receiver")
	}
	if derived.Fields["field"] != "llm.timeout" {
		t.Error("expected derived error to carry the new field")
	}
}
