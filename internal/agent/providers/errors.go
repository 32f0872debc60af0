package providers

import (
	"fmt"
	"strings"

	"github.com/cratos-run/cratos/internal/cratoserr"
)

// Classify maps a raw transport error onto the shared error taxonomy so
// the orchestrator's fallback predicate can match on kind instead of
// string-scraping provider-specific messages.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	lower := strings.ToLower(err.Error())
	msg := fmt.Sprintf("%s request failed", provider)
	switch {
	case strings.Contains(lower, "429"), strings.Contains(lower, "rate limit"), strings.Contains(lower, "rate_limit"), strings.Contains(lower, "overloaded"):
		return cratoserr.Wrap(cratoserr.KindRateLimited, msg, err)
	case strings.Contains(lower, "401"), strings.Contains(lower, "403"),
		strings.Contains(lower, "authentication"), strings.Contains(lower, "permission"),
		strings.Contains(lower, "unauthorized"), strings.Contains(lower, "forbidden"):
		return cratoserr.Wrap(cratoserr.KindAPIKeyMissing, msg, err).WithField("provider", provider)
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline exceeded"),
		strings.Contains(lower, "connection"), strings.Contains(lower, "network"),
		strings.Contains(lower, "dns"), strings.Contains(lower, "refused"), strings.Contains(lower, "eof"):
		return cratoserr.Wrap(cratoserr.KindNetwork, msg, err)
	case strings.Contains(lower, "500"), strings.Contains(lower, "502"),
		strings.Contains(lower, "503"), strings.Contains(lower, "504"),
		strings.Contains(lower, "internal server"), strings.Contains(lower, "server error"):
		return cratoserr.Wrap(cratoserr.KindLLM, msg+" (server error)", err)
	default:
		return cratoserr.Wrap(cratoserr.KindLLM, msg, err)
	}
}
