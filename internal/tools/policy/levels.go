package policy

import (
	"sort"
)

// Level is one of the six priority tiers the rule resolver evaluates.
// Lower Priority wins when multiple rules match the same tool call.
type Level string

const (
	LevelSandbox  Level = "sandbox"
	LevelAgent    Level = "agent"
	LevelGlobal   Level = "global"
	LevelProvider Level = "provider"
	LevelGroup    Level = "group"
	LevelUser     Level = "user"
)

// Priority returns the level's numeric priority (lower wins).
func (l Level) Priority() int {
	switch l {
	case LevelSandbox:
		return 1
	case LevelAgent:
		return 2
	case LevelGlobal:
		return 3
	case LevelProvider:
		return 4
	case LevelGroup:
		return 5
	case LevelUser:
		return 6
	default:
		return 99
	}
}

// Action is the outcome of resolving a tool call against the rule set.
type Action string

const (
	ActionAllow           Action = "allow"
	ActionDeny            Action = "deny"
	ActionRequireApproval Action = "require_approval"
	ActionNone            Action = "none"
)

// Rule is a single entry in the six-level policy table.
type Rule struct {
	Level       Level
	Scope       string // wildcard "*" or a literal scope value
	ToolPattern string // literal, "prefix_*", or "*"
	Action      Action
}

// RuleContext carries the caller-supplied scope values a rule may match
// against. An empty field means that level is not present for this call.
type RuleContext struct {
	Agent    string
	Provider string
	Sandbox  string
	Group    string
	User     string
}

func (c RuleContext) valueFor(level Level) (string, bool) {
	switch level {
	case LevelAgent:
		return c.Agent, c.Agent != ""
	case LevelProvider:
		return c.Provider, c.Provider != ""
	case LevelSandbox:
		return c.Sandbox, c.Sandbox != ""
	case LevelGroup:
		return c.Group, c.Group != ""
	case LevelUser:
		return c.User, c.User != ""
	case LevelGlobal:
		return "*", true
	default:
		return "", false
	}
}

// specificity ranks a tool pattern for the same-level tie-break:
// literal (most specific) > prefix wildcard > universal wildcard.
func specificity(pattern string) int {
	switch {
	case pattern == "*":
		return 0
	case len(pattern) > 0 && pattern[len(pattern)-1] == '*':
		return 1
	default:
		return 2
	}
}

func patternMatches(pattern, toolName string) bool {
	if pattern == "*" || pattern == toolName {
		return true
	}
	if len(pattern) > 0 && pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(toolName) >= len(prefix) && toolName[:len(prefix)] == prefix
	}
	return false
}

// LevelResolver evaluates the six-level policy table described in
// spec §4.3: a pure function of (rules, tool name, context).
type LevelResolver struct{}

// NewLevelResolver constructs a LevelResolver. It holds no state; rules
// are supplied per call so the resolver remains a pure function as the
// spec requires.
func NewLevelResolver() *LevelResolver {
	return &LevelResolver{}
}

// Resolve returns the action chosen by the highest-priority (lowest
// Level.Priority) matching rule. Within a level, the most specific
// pattern wins (literal > prefix > wildcard); ties resolve to the rule
// registered earliest in the input slice. No match defaults to Allow.
func (r *LevelResolver) Resolve(rules []Rule, toolName string, ctx RuleContext) Action {
	type candidate struct {
		rule  Rule
		index int
	}

	var matches []candidate
	for i, rule := range rules {
		scopeValue, ok := ctx.valueFor(rule.Level)
		if !ok {
			continue
		}
		if rule.Scope != "*" && rule.Scope != scopeValue {
			continue
		}
		if !patternMatches(rule.ToolPattern, toolName) {
			continue
		}
		matches = append(matches, candidate{rule: rule, index: i})
	}

	if len(matches) == 0 {
		return ActionAllow
	}

	sort.SliceStable(matches, func(i, j int) bool {
		pi, pj := matches[i].rule.Level.Priority(), matches[j].rule.Level.Priority()
		if pi != pj {
			return pi < pj
		}
		si, sj := specificity(matches[i].rule.ToolPattern), specificity(matches[j].rule.ToolPattern)
		if si != sj {
			return si > sj // literal (2) before prefix (1) before wildcard (0)
		}
		return matches[i].index < matches[j].index
	})

	return matches[0].rule.Action
}
