package memory

import (
	"fmt"
	"strings"

	"github.com/cratos-run/cratos/pkg/models"
)

// TurnRole mirrors the roles a Turn can be indexed under. System messages
// are never decomposed into turns.
type TurnRole string

const (
	TurnRoleUser      TurnRole = "user"
	TurnRoleAssistant TurnRole = "assistant"
)

// Turn is one indexable unit of a conversation: a user message, or an
// assistant message with any immediately-following tool results folded in
// as a short preview.
type Turn struct {
	SessionID  string
	Role       TurnRole
	Content    string
	Summary    string
	TurnIndex  int
	TokenCount int
}

const (
	summaryMaxChars    = 250
	toolPreviewMaxChars = 100
)

// DecomposeHistory emits a Turn for each user message and each assistant
// message in history, skipping system messages, starting after
// lastIndexedTurn (the highest turn_index already indexed; pass -1 to
// index everything). Tool-result messages immediately following an
// assistant message are merged into that assistant's turn as a short
// preview rather than becoming their own turn.
func DecomposeHistory(sessionID string, history []*models.Message, lastIndexedTurn int) []Turn {
	var turns []Turn
	turnIndex := -1

	for i := 0; i < len(history); i++ {
		msg := history[i]
		role := turnRoleOf(msg)
		if role == "" {
			continue
		}
		turnIndex++
		if turnIndex <= lastIndexedTurn {
			continue
		}

		content := msg.Content
		var toolNames []string
		if role == TurnRoleAssistant {
			content, toolNames = mergeFollowingToolResults(content, history, i)
		}

		turns = append(turns, Turn{
			SessionID:  sessionID,
			Role:       role,
			Content:    content,
			Summary:    summarize(content, toolNames),
			TurnIndex:  turnIndex,
			TokenCount: estimateTokenCount(content),
		})
	}
	return turns
}

func turnRoleOf(msg *models.Message) TurnRole {
	switch msg.Role {
	case models.RoleUser:
		return TurnRoleUser
	case models.RoleAssistant:
		return TurnRoleAssistant
	default:
		return ""
	}
}

// mergeFollowingToolResults appends a short "[tool result: ...]" preview
// for every tool message immediately following the assistant message at
// index i, and returns the tool names encountered for the summary suffix.
// Tool names are resolved by matching ToolResult.ToolCallID back against
// the assistant message's own ToolCalls.
func mergeFollowingToolResults(content string, history []*models.Message, i int) (string, []string) {
	callNames := make(map[string]string, len(history[i].ToolCalls))
	for _, call := range history[i].ToolCalls {
		callNames[call.ID] = call.Name
	}

	var sb strings.Builder
	sb.WriteString(content)
	var toolNames []string

	for j := i + 1; j < len(history); j++ {
		next := history[j]
		if next.Role != models.RoleTool {
			break
		}
		for _, tr := range next.ToolResults {
			name := callNames[tr.ToolCallID]
			if name == "" {
				name = "tool"
			}
			preview := tr.Content
			if len(preview) > toolPreviewMaxChars {
				preview = preview[:toolPreviewMaxChars]
			}
			sb.WriteString(fmt.Sprintf(" [%s result: %s]", name, preview))
			toolNames = append(toolNames, name)
		}
	}
	return sb.String(), toolNames
}

func summarize(content string, toolNames []string) string {
	text := strings.TrimSpace(content)
	runes := []rune(text)
	if len(runes) > summaryMaxChars {
		text = string(runes[:summaryMaxChars])
	}
	if len(toolNames) == 0 {
		return text
	}
	return fmt.Sprintf("%s [tools: %s]", text, strings.Join(uniqueStrings(toolNames), ", "))
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// estimateTokenCount uses the same rough chars/4 heuristic the
// orchestrator uses for its own token-budget bookkeeping.
func estimateTokenCount(content string) int {
	return len(content)/4 + 1
}
