package agent

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitizeErrorForUserRedactsPaths(t *testing.T) {
	err := errors.New("open /home/alice/.cratos/config.yaml: permission denied")
	got := sanitizeErrorForUser(err)
	if strings.Contains(got, "/home/alice") {
		t.Errorf("expected path to be redacted, got %q", got)
	}
	if !strings.Contains(got, "[PATH]") {
		t.Errorf("expected [PATH] marker, got %q", got)
	}
}

func TestSanitizeErrorForUserNil(t *testing.T) {
	if got := sanitizeErrorForUser(nil); got != "" {
		t.Errorf("expected empty string for nil error, got %q", got)
	}
}

func TestSanitizeErrorForUserExported(t *testing.T) {
	err := errors.New("failed at /tmp/x")
	if SanitizeErrorForUser(err) != sanitizeErrorForUser(err) {
		t.Error("exported wrapper should match unexported implementation")
	}
}

func TestIsToolRefusalEmpty(t *testing.T) {
	if !isToolRefusal("") {
		t.Error("empty content should be a refusal")
	}
	if !isToolRefusal("   ") {
		t.Error("whitespace-only content should be a refusal")
	}
}

func TestIsToolRefusalShortPlainText(t *testing.T) {
	if !isToolRefusal("I can't help with that.") {
		t.Error("short plain refusal text should be treated as a refusal")
	}
}

func TestIsToolRefusalSubstantiveContent(t *testing.T) {
	cases := []string{
		"Here is the result: `ls -la`",
		"See https://example.com for details",
		"1. First step\n2. Second step",
		"- bullet one\n- bullet two",
	}
	for _, c := range cases {
		if isToolRefusal(c) {
			t.Errorf("content with substantive markers should not be a refusal: %q", c)
		}
	}
}

func TestIsToolRefusalLongPlainText(t *testing.T) {
	long := strings.Repeat("word ", 20)
	if isToolRefusal(long) {
		t.Errorf("long plain text without markers should not be a refusal: %q", long)
	}
}

func TestIsFallbackEligible(t *testing.T) {
	eligible := []error{
		errors.New("rate limit exceeded"),
		errors.New("context deadline exceeded"),
		errors.New("connection refused"),
		errors.New("502 Bad Gateway"),
		errors.New("unauthorized request"),
	}
	for _, err := range eligible {
		if !isFallbackEligible(err) {
			t.Errorf("expected %q to be fallback-eligible", err)
		}
	}
	if isFallbackEligible(errors.New("invalid tool arguments")) {
		t.Error("a plain validation error should not be fallback-eligible")
	}
	if isFallbackEligible(nil) {
		t.Error("nil error should not be fallback-eligible")
	}
}

func TestSanitizeResponseStripsTagsAndCollapsesBlankLines(t *testing.T) {
	input := "before<thinking>internal reasoning</thinking>middle\n\n\n\nafter"
	got := sanitizeResponse(input)
	if strings.Contains(got, "internal reasoning") {
		t.Errorf("expected thinking tag contents to be stripped, got %q", got)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("expected triple newlines to collapse, got %q", got)
	}
}

func TestSanitizeForSessionMemoryStripsBrackets(t *testing.T) {
	got := sanitizeForSessionMemory("result [tool_call] done")
	if strings.ContainsAny(got, "[]") {
		t.Errorf("expected brackets to be stripped, got %q", got)
	}
}

func TestBuildFallbackResponseAllBlocked(t *testing.T) {
	failures := []failedToolRecord{
		{ToolName: "execute_code", ErrorMessage: "blocked", PolicyBlock: true},
		{ToolName: "read_file", ErrorMessage: "blocked", PolicyBlock: true},
	}
	got := buildFallbackResponse(failures)
	if !strings.Contains(got, "execute_code") || !strings.Contains(got, "read_file") {
		t.Errorf("expected both tool names in response, got %q", got)
	}
}

func TestBuildFallbackResponseMixedFailures(t *testing.T) {
	failures := []failedToolRecord{
		{ToolName: "web_search", ErrorMessage: "timeout", PolicyBlock: false},
		{ToolName: "web_search", ErrorMessage: "timeout", PolicyBlock: false},
	}
	got := buildFallbackResponse(failures)
	if strings.Count(got, "timeout") != 1 {
		t.Errorf("expected deduplicated error message, got %q", got)
	}
}

func TestBuildFallbackResponseEmpty(t *testing.T) {
	got := buildFallbackResponse(nil)
	if got == "" {
		t.Error("expected a non-empty default fallback message")
	}
}
