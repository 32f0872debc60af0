package agent

import (
	"context"
	"strings"
)

// personaClassificationPrompt instructs the classification model to pick a
// single persona name for an inbound message and nothing else.
const personaClassificationPrompt = `You route an incoming message to one of the following personas. Respond with ONLY the persona name, nothing else.

- sindri: infrastructure, deployment, DevOps, build systems
- brok: low-level engineering, performance, systems programming
- athena: strategy, planning, decision-making
- heimdall: security, monitoring, access control
- mimir: research, knowledge lookup, documentation
- thor: execution, automation, running tasks
- apollo: creative writing, content generation
- odin: high-level oversight, delegation, orchestration
- nike: project management, goal tracking
- freya: design, UX, aesthetics
- hestia: personal assistant tasks, scheduling, reminders
- norns: data analysis, forecasting, trends
- tyr: conflict resolution, arbitration, policy
- cratos: general-purpose default, use when no other persona clearly fits

Rules:
- If the message explicitly @mentions one of these names, pick that one.
- Otherwise pick whichever persona's domain best matches the message.
- If you are uncertain, answer "cratos".
- Respond with the persona name alone, lowercase, no punctuation.`

// Persona describes one of the assistant's configured personas: the system
// prompt it runs under and, optionally, a dedicated model override.
type Persona struct {
	Name         string
	SystemPrompt string
	Model        string
}

// PersonaRegistry maps persona names (as produced by ClassifyPersona) to
// their configuration, and names the default persona to fall back to when
// classification is uncertain or fails.
type PersonaRegistry struct {
	Default  string
	Personas map[string]Persona
}

// NewPersonaRegistry builds a registry with the given default persona. Use
// Register to add personas before passing the registry to a LoopConfig.
func NewPersonaRegistry(defaultPersona string) *PersonaRegistry {
	return &PersonaRegistry{
		Default:  defaultPersona,
		Personas: make(map[string]Persona),
	}
}

// Register adds or replaces a persona definition.
func (r *PersonaRegistry) Register(p Persona) {
	r.Personas[p.Name] = p
}

// Resolve returns the persona for name, falling back to the registry's
// default persona (and, failing that, a zero-value persona with just the
// name set) when name is unknown.
func (r *PersonaRegistry) Resolve(name string) Persona {
	if p, ok := r.Personas[name]; ok {
		return p
	}
	if p, ok := r.Personas[r.Default]; ok {
		return p
	}
	return Persona{Name: r.Default}
}

// ClassifyPersona asks provider to classify input into one of the persona
// names known to reg, using the dedicated classification prompt rather
// than the assistant's own system prompt. It always returns a known
// persona name: classification failures, empty responses, or names the
// registry doesn't recognize all fall back to reg.Default.
func ClassifyPersona(ctx context.Context, provider LLMProvider, reg *PersonaRegistry, input string) string {
	if reg == nil {
		return ""
	}
	if provider == nil || strings.TrimSpace(input) == "" {
		return reg.Default
	}

	req := &CompletionRequest{
		System: personaClassificationPrompt,
		Messages: []CompletionMessage{
			{Role: "user", Content: input},
		},
		MaxTokens: 16,
	}

	chunks, err := provider.Complete(ctx, req)
	if err != nil {
		return reg.Default
	}

	var sb strings.Builder
	for chunk := range chunks {
		if chunk == nil {
			continue
		}
		if chunk.Error != nil {
			return reg.Default
		}
		sb.WriteString(chunk.Text)
	}

	name := normalizePersonaName(sb.String())
	if name == "" {
		return reg.Default
	}
	if _, ok := reg.Personas[name]; !ok {
		return reg.Default
	}
	return name
}

// normalizePersonaName extracts a bare persona name from a classification
// response, tolerating stray punctuation or surrounding whitespace the
// model sometimes adds despite being asked not to.
func normalizePersonaName(raw string) string {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	trimmed = strings.Trim(trimmed, ".,!?\"'`")
	if idx := strings.IndexAny(trimmed, " \n\t"); idx != -1 {
		trimmed = trimmed[:idx]
	}
	return trimmed
}
