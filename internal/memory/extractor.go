package memory

import (
	"regexp"
	"strings"
)

// EntityKind classifies an extracted entity.
type EntityKind string

const (
	EntityFile     EntityKind = "file"
	EntityFunction EntityKind = "function"
	EntityCrate    EntityKind = "crate"
	EntityTool     EntityKind = "tool"
	EntityError    EntityKind = "error"
	EntityConcept  EntityKind = "concept"
	EntityConfig   EntityKind = "config"
)

// ExtractedEntity is one entity mention found in a turn's content.
type ExtractedEntity struct {
	Name      string
	Kind      EntityKind
	Relevance float32 // 1.0 on the first line, 0.7 elsewhere
}

var (
	filePattern     = regexp.MustCompile(`\b[\w./-]+\.(go|rs|py|js|ts|tsx|jsx|json|yaml|yml|toml|md|sql|sh)\b`)
	functionPattern = regexp.MustCompile(`\bfn\s+([a-zA-Z_][a-zA-Z0-9_]*)`)
	cratePattern    = regexp.MustCompile(`\bcratos-[a-zA-Z0-9_-]+\b`)
	rustErrorCode   = regexp.MustCompile(`\berror\[E\d+\]`)
	rustErrorType   = regexp.MustCompile(`\bError::[A-Za-z_][A-Za-z0-9_]*`)
	panicPattern    = regexp.MustCompile(`\bpanic!`)
	unwrapPattern   = regexp.MustCompile(`\bunwrap\(\)`)
	configKeyPattern = regexp.MustCompile(`\b[A-Z][A-Z0-9_]{2,}\b`)
)

// conceptKeywords maps known technical-concept keywords (case-insensitive)
// to the canonical entity name recorded for them.
var conceptKeywords = map[string]string{
	"orchestrator":  "orchestrator",
	"scheduler":     "scheduler",
	"policy":        "policy",
	"approval":      "approval",
	"session":       "session",
	"webhook":       "webhook",
	"embedding":     "embedding",
	"vector":        "vector",
	"goroutine":     "goroutine",
	"channel":       "channel",
	"deadlock":      "deadlock",
	"race condition": "race condition",
	"migration":     "migration",
	"rate limit":    "rate limit",
}

// knownToolNames is the dictionary of built-in tool names the extractor
// recognizes by keyword match, mirroring the tool registry's catalogue.
var knownToolNames = []string{
	"exec", "read_file", "write_file", "edit_file", "search", "fetch",
	"browser", "screenshot", "webhook", "shell", "sql_query",
}

// ExtractEntities finds entities in content using regex patterns and
// keyword dictionaries, no LLM involved. Matches on the first line of
// content get relevance 1.0; everything else gets 0.7. Results are
// deduplicated by (name, kind) within the call.
func ExtractEntities(content string) []ExtractedEntity {
	lines := strings.SplitN(content, "\n", 2)
	firstLine := lines[0]

	seen := make(map[string]struct{})
	var out []ExtractedEntity

	add := func(name string, kind EntityKind, onFirstLine bool) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		key := string(kind) + ":" + strings.ToLower(name)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		relevance := float32(0.7)
		if onFirstLine {
			relevance = 1.0
		}
		out = append(out, ExtractedEntity{Name: name, Kind: kind, Relevance: relevance})
	}

	extractPattern := func(pattern *regexp.Regexp, kind EntityKind, group int) {
		for _, m := range pattern.FindAllStringSubmatch(content, -1) {
			value := m[0]
			if group > 0 && len(m) > group {
				value = m[group]
			}
			add(value, kind, strings.Contains(firstLine, m[0]))
		}
	}

	extractPattern(filePattern, EntityFile, 0)
	extractPattern(functionPattern, EntityFunction, 1)
	extractPattern(cratePattern, EntityCrate, 0)
	extractPattern(rustErrorCode, EntityError, 0)
	extractPattern(rustErrorType, EntityError, 0)
	extractPattern(panicPattern, EntityError, 0)
	extractPattern(unwrapPattern, EntityError, 0)
	extractPattern(configKeyPattern, EntityConfig, 0)

	lowerContent := strings.ToLower(content)
	lowerFirstLine := strings.ToLower(firstLine)
	for keyword, canonical := range conceptKeywords {
		if strings.Contains(lowerContent, keyword) {
			add(canonical, EntityConcept, strings.Contains(lowerFirstLine, keyword))
		}
	}
	for _, tool := range knownToolNames {
		if strings.Contains(lowerContent, tool) {
			add(tool, EntityTool, strings.Contains(lowerFirstLine, tool))
		}
	}

	return out
}
