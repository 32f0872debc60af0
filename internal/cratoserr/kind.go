// Package cratoserr defines the shared error-kind taxonomy used across
// cratos components so callers at the HTTP/WS boundary and the CLI can
// classify failures without depending on every internal package's
// sentinel errors directly.
package cratoserr

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the categories the orchestrator,
// channel adapters, and CLI need to react to differently (retry, surface
// to the user, log and drop, etc).
type Kind string

const (
	KindAPIKeyMissing Kind = "api_key_missing"
	KindNetwork       Kind = "network"
	KindRateLimited   Kind = "rate_limited"
	KindInvalidConfig Kind = "invalid_config"
	KindPlanning      Kind = "planning"
	KindExecution     Kind = "execution"
	KindMemory        Kind = "memory"
	KindApproval      Kind = "approval"
	KindConfiguration Kind = "configuration"
	KindLLM           Kind = "llm"
	KindTool          Kind = "tool"
	KindInternal      Kind = "internal"
)

// Error wraps an underlying error with a Kind and optional structured
// fields, composing with errors.Is/As the same way sentinel errors
// attached via fmt.Errorf("%w: ...") do.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds a cratoserr.Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a kind to an existing error without discarding it.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithField returns a copy of e with an additional structured field, used
// by ApiKeyMissing{provider} / InvalidConfig{field} style errors in the
// original implementation.
func (e *Error) WithField(key, value string) *Error {
	fields := make(map[string]string, len(e.Fields)+1)
	for k, v := range e.Fields {
		fields[k] = v
	}
	fields[key] = value
	return &Error{Kind: e.Kind, Message: e.Message, Fields: fields, Cause: e.Cause}
}

// KindOf extracts the Kind from err, walking the wrap chain, returning
// KindInternal if err is nil or carries no cratoserr.Error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}

// UserMessage renders a short, user-facing summary of err: a one-line
// explanation without exposing internals (stack traces, raw driver
// errors, file paths).
func UserMessage(err error) string {
	var ce *Error
	if !errors.As(err, &ce) {
		return "Something went wrong. Please try again."
	}
	switch ce.Kind {
	case KindAPIKeyMissing:
		provider := ce.Fields["provider"]
		if provider == "" {
			provider = "The configured provider's"
		}
		return fmt.Sprintf("%s API key is not configured.", provider)
	case KindNetwork:
		return "Network connection problem."
	case KindRateLimited:
		if retry := ce.Fields["retry_after"]; retry != "" {
			return fmt.Sprintf("Rate limit exceeded. Please wait %s seconds.", retry)
		}
		return "Rate limit exceeded. Please try again later."
	case KindInvalidConfig:
		return fmt.Sprintf("Configuration error in '%s': %s", ce.Fields["field"], ce.Message)
	case KindPlanning:
		return fmt.Sprintf("Planning failed: %s", ce.Message)
	case KindExecution:
		return fmt.Sprintf("Execution failed: %s", ce.Message)
	case KindMemory:
		return fmt.Sprintf("Memory error: %s", ce.Message)
	case KindApproval:
		return fmt.Sprintf("Approval required: %s", ce.Message)
	case KindConfiguration:
		return fmt.Sprintf("Configuration error: %s", ce.Message)
	case KindLLM:
		return fmt.Sprintf("LLM error: %s", ce.Message)
	case KindTool:
		return fmt.Sprintf("Tool error: %s", ce.Message)
	default:
		return fmt.Sprintf("Internal error: %s", ce.Message)
	}
}

// Suggestion returns an actionable next step for the user, or "" if none
// applies to this kind.
func Suggestion(err error) string {
	var ce *Error
	if !errors.As(err, &ce) {
		return ""
	}
	switch ce.Kind {
	case KindAPIKeyMissing:
		provider := ce.Fields["provider"]
		return fmt.Sprintf("Run `cratos auth login` or set the %s_API_KEY environment variable.", upper(provider))
	case KindNetwork:
		return "Check your internet connection and firewall settings."
	case KindRateLimited:
		return "Try using a different model or wait before retrying."
	case KindInvalidConfig:
		return fmt.Sprintf("Check the '%s' setting in your cratos.yaml.", ce.Fields["field"])
	case KindPlanning:
		return "Try breaking down your request into smaller steps."
	case KindExecution:
		return "Check the tool parameters and try again."
	case KindApproval:
		return "Review the pending approval and respond with approve or deny."
	case KindConfiguration:
		return "Check cratos.yaml against the documented schema."
	default:
		return ""
	}
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}
