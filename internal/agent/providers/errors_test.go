package providers

import (
	"errors"
	"testing"

	"github.com/cratos-run/cratos/internal/cratoserr"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want cratoserr.Kind
	}{
		{"429 too many requests", cratoserr.KindRateLimited},
		{"rate limit exceeded", cratoserr.KindRateLimited},
		{"401 unauthorized", cratoserr.KindAPIKeyMissing},
		{"permission denied for model", cratoserr.KindAPIKeyMissing},
		{"context deadline exceeded", cratoserr.KindNetwork},
		{"dial tcp: connection refused", cratoserr.KindNetwork},
		{"502 bad gateway", cratoserr.KindLLM},
		{"something novel", cratoserr.KindLLM},
	}
	for _, tt := range tests {
		got := cratoserr.KindOf(Classify("anthropic", errors.New(tt.msg)))
		if got != tt.want {
			t.Errorf("Classify(%q) kind = %v, want %v", tt.msg, got, tt.want)
		}
	}

	if Classify("anthropic", nil) != nil {
		t.Error("Classify(nil) should be nil")
	}
}
