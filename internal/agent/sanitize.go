package agent

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// pathPattern matches filesystem-looking path fragments so they can be
// redacted from error text before it reaches a user-facing message.
var pathPattern = regexp.MustCompile(`/[a-zA-Z0-9_./-]+`)

// responseTagNames lists leaked internal markup the model sometimes echoes
// back; stripResponseTags removes each tag pair and its contents.
var responseTagNames = []string{"tool_response", "tool_call", "function_call", "function_response", "system", "thinking"}

var tripleNewlinePattern = regexp.MustCompile(`\n{3,}`)

// sanitizeErrorForUser strips filesystem paths out of an error message
// before it is shown to a user, replacing each with [PATH].
func sanitizeErrorForUser(err error) string {
	if err == nil {
		return ""
	}
	return pathPattern.ReplaceAllString(err.Error(), "[PATH]")
}

// SanitizeErrorForUser is the exported entry point callers outside this
// package (the gateway's message processing loop) use to turn a loop or
// provider error into text safe to send back to a user.
func SanitizeErrorForUser(err error) string {
	return sanitizeErrorForUser(err)
}

// sanitizeForSessionMemory strips bracket characters from text before it
// is persisted as session memory, so stored turns can't be mistaken for
// the tag markup stripped by sanitizeResponse.
func sanitizeForSessionMemory(text string) string {
	replacer := strings.NewReplacer("[", "", "]", "")
	return replacer.Replace(text)
}

// isAuthOrPermissionError reports whether msg describes an authentication
// or authorization failure rather than a transient one.
func isAuthOrPermissionError(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range []string{"authentication", "permission", "unauthorized", "forbidden", "unauthenticated"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// isFallbackEligible reports whether a streaming failure should trigger a
// single retry against the configured fallback model rather than
// surfacing the error directly. Rate limits, server errors, network
// failures, and timeouts are always eligible; authentication/permission
// failures are eligible too since a fallback provider may hold a
// different credential.
func isFallbackEligible(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "rate_limit"), strings.Contains(lower, "429"):
		return true
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline exceeded"):
		return true
	case strings.Contains(lower, "connection"), strings.Contains(lower, "network"), strings.Contains(lower, "dns"), strings.Contains(lower, "refused"):
		return true
	case strings.Contains(lower, "internal server"), strings.Contains(lower, "server error"),
		strings.Contains(lower, "502"), strings.Contains(lower, "503"), strings.Contains(lower, "504"):
		return true
	case isAuthOrPermissionError(lower):
		return true
	default:
		return false
	}
}

// isToolRefusal reports whether an assistant turn with no tool calls reads
// like a refusal to use the tools it was offered, rather than a genuine
// final answer. Empty content is treated as a refusal. Content carrying
// markers of substantive work (code spans, URLs, or list formatting) is
// never treated as a refusal regardless of length; otherwise anything
// under 60 characters is.
func isToolRefusal(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return true
	}
	for _, marker := range []string{"`", "http", "1.", "- "} {
		if strings.Contains(trimmed, marker) {
			return false
		}
	}
	return len([]rune(trimmed)) < 60
}

// sanitizeResponse strips leaked tag markup from a final assistant
// response and collapses runs of blank lines left behind.
func sanitizeResponse(text string) string {
	cleaned := stripResponseTags(text)
	for tripleNewlinePattern.MatchString(cleaned) {
		cleaned = tripleNewlinePattern.ReplaceAllString(cleaned, "\n\n")
	}
	return strings.TrimSpace(cleaned)
}

// stripResponseTags removes well-known internal tag pairs (and their
// contents) from text. It is written as an explicit scan rather than a
// single greedy regex so that one unmatched or malformed tag doesn't eat
// the rest of the response.
func stripResponseTags(text string) string {
	var b strings.Builder
	remaining := text
	for {
		start := -1
		var tagName string
		for _, name := range responseTagNames {
			open := "<" + name
			if idx := strings.Index(strings.ToLower(remaining), open); idx != -1 {
				// Ensure this is a real tag boundary (followed by '>' or whitespace).
				end := idx + len(open)
				if end < len(remaining) && (remaining[end] == '>' || remaining[end] == ' ') {
					if start == -1 || idx < start {
						start = idx
						tagName = name
					}
				}
			}
		}
		if start == -1 {
			b.WriteString(remaining)
			break
		}
		b.WriteString(remaining[:start])
		closeTag := "</" + tagName + ">"
		closeIdx := strings.Index(strings.ToLower(remaining[start:]), closeTag)
		if closeIdx == -1 {
			// No closing tag found; drop everything from the open tag on.
			break
		}
		remaining = remaining[start+closeIdx+len(closeTag):]
	}
	return b.String()
}

// failedToolRecord is the minimal shape build_fallback_response needs from
// a tool call that failed during the loop, independent of the concrete
// tool-call/result types the caller uses.
type failedToolRecord struct {
	ToolName     string
	ErrorMessage string
	PolicyBlock  bool
}

// buildFallbackResponse composes a user-facing summary when every pending
// tool call in a turn failed (or was blocked by policy) and the model
// produced no usable final answer of its own. It dedupes repeated error
// messages and distinguishes an all-policy-blocks turn (the user tried to
// do something disallowed) from a turn with a mix of execution failures.
func buildFallbackResponse(failures []failedToolRecord) string {
	if len(failures) == 0 {
		return "요청을 처리하는 중 문제가 발생했습니다. 다시 시도해 주세요."
	}

	allBlocked := true
	seen := make(map[string]bool, len(failures))
	var messages []string
	var toolNames []string
	for _, f := range failures {
		if !f.PolicyBlock {
			allBlocked = false
		}
		msg := strings.TrimSpace(f.ErrorMessage)
		if msg == "" {
			continue
		}
		if !seen[msg] {
			seen[msg] = true
			messages = append(messages, msg)
		}
		if f.ToolName != "" && !containsString(toolNames, f.ToolName) {
			toolNames = append(toolNames, f.ToolName)
		}
	}
	sort.Strings(toolNames)

	if allBlocked {
		return fmt.Sprintf("요청하신 작업(%s)은 현재 정책상 허용되지 않습니다. 다른 방법을 안내해 드릴까요?", strings.Join(toolNames, ", "))
	}

	if len(messages) == 0 {
		return fmt.Sprintf("%s 실행 중 오류가 발생했습니다. 잠시 후 다시 시도해 주세요.", strings.Join(toolNames, ", "))
	}
	return fmt.Sprintf("작업을 완료하지 못했습니다: %s", strings.Join(messages, "; "))
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
