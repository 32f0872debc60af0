package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cratos-run/cratos/internal/cratoserr"
	"github.com/cratos-run/cratos/pkg/models"
)

// ErrCancelled marks an execution terminated by cancellation (external
// cancel, timeout, or token-budget exhaustion).
var ErrCancelled = errors.New("agent: execution cancelled")

// ToolOutcome is the runner's answer to one planned call, already
// flattened to the string content the planner consumes.
type ToolOutcome struct {
	Content       string
	IsError       bool
	PolicyBlocked bool
	DurationMs    int64
}

// ExecutionInfo identifies the execution and caller for policy matching
// and the tool-call audit log.
type ExecutionInfo struct {
	ExecutionID string
	UserID      string
	AgentID     string
	Provider    string
	Sandbox     string
}

// ToolRunner executes planned calls under policy and approval control.
// Implemented by internal/tools.Runner.
type ToolRunner interface {
	Definitions() []ToolDefinition
	RunPlanned(ctx context.Context, call PlannedCall, info ExecutionInfo) ToolOutcome
}

// EventSink receives execution lifecycle events; the gateway backs it
// with the event bus. A nil sink drops everything.
type EventSink interface {
	Emit(executionID string, kind string, payload map[string]any)
}

// MemoryBridge is the orchestrator's view of the graph-RAG indexer:
// retrieval feeds context assembly, indexing runs as the post-hook.
type MemoryBridge interface {
	Retrieve(ctx context.Context, sessionID, query string, topK int) ([]string, error)
	IndexSession(ctx context.Context, sessionID string, history []*models.Message) error
}

// HistoryStore is the slice of the session store the orchestrator needs.
type HistoryStore interface {
	GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error)
	AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error
}

// OrchestratorConfig bundles the orchestrator's collaborators and bounds.
type OrchestratorConfig struct {
	Provider LLMProvider
	Fallback LLMProvider // optional; tried once on transient/auth failures
	Runner   ToolRunner
	History  HistoryStore
	Memory   MemoryBridge
	Events   EventSink
	Personas *PersonaRegistry

	SystemPrompt string // default system prompt when no persona matches

	MaxIterations          int           // planner round cap (default 10)
	MaxExecutionTime       time.Duration // wall-clock cap (default 180s)
	MaxTotalFailures       int           // default 6
	MaxConsecutiveFailures int           // default 3
	TokenBudget            int           // estimated-token cap per execution; 0 disables
	HistoryLimit           int           // messages of context loaded per run
	MemoryTopK             int
	SandboxBackend         string
}

// Orchestrator turns one admitted input into one final response via a
// bounded planner loop with tool use, streaming, and cancellation.
type Orchestrator struct {
	cfg OrchestratorConfig

	// cancels tracks the cooperative cancel func per live execution so
	// external callers (API, /cancel) can interrupt it. Entries are
	// removed on every terminal state.
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewOrchestrator applies defaults and constructs an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}
	if cfg.MaxExecutionTime <= 0 {
		cfg.MaxExecutionTime = 180 * time.Second
	}
	if cfg.MaxTotalFailures <= 0 {
		cfg.MaxTotalFailures = 6
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 3
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	if cfg.MemoryTopK <= 0 {
		cfg.MemoryTopK = 5
	}
	return &Orchestrator{cfg: cfg, cancels: make(map[string]context.CancelFunc)}
}

// Cancel interrupts a live execution. Returns whether one was running.
func (o *Orchestrator) Cancel(executionID string) bool {
	o.mu.Lock()
	cancel, ok := o.cancels[executionID]
	delete(o.cancels, executionID)
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (o *Orchestrator) register(executionID string, cancel context.CancelFunc) {
	o.mu.Lock()
	o.cancels[executionID] = cancel
	o.mu.Unlock()
}

// release removes the execution's cancel entry. Called on every terminal
// state so the map cannot grow over the process lifetime.
func (o *Orchestrator) release(executionID string) {
	o.mu.Lock()
	delete(o.cancels, executionID)
	o.mu.Unlock()
}

// Process runs the planner loop for one inbound message, streaming
// response chunks. The returned channel closes when the execution
// reaches a terminal state; a chunk carrying Error reports failure.
func (o *Orchestrator) Process(ctx context.Context, session *models.Session, msg *models.Message) (<-chan ResponseChunk, error) {
	if o.cfg.Provider == nil {
		return nil, cratoserr.New(cratoserr.KindConfiguration, "no LLM provider configured")
	}

	executionID, _ := msg.Metadata["execution_id"].(string)
	if executionID == "" {
		executionID = uuid.NewString()
	}

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.MaxExecutionTime)
	o.register(executionID, cancel)

	out := make(chan ResponseChunk)
	go func() {
		defer close(out)
		defer o.release(executionID)
		defer cancel()
		o.run(runCtx, executionID, session, msg, out)
	}()
	return out, nil
}

// run drives the state machine: AssembleContext → Plan → Execute →
// Merge → {Continue | Finalise}, with Cancelled reachable from every
// suspension point.
func (o *Orchestrator) run(ctx context.Context, executionID string, session *models.Session, msg *models.Message, out chan<- ResponseChunk) {
	o.emit(executionID, "ExecutionStarted", map[string]any{"session_id": session.ID})

	final, err := o.loop(ctx, executionID, session, msg, out)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, ErrCancelled):
		o.emit(executionID, "ExecutionCancelled", nil)
		out <- ResponseChunk{Error: ErrCancelled}
	case errors.Is(err, context.DeadlineExceeded):
		o.emit(executionID, "ExecutionFailed", map[string]any{"message": "execution timed out"})
		out <- ResponseChunk{Error: cratoserr.Wrap(cratoserr.KindExecution, "execution timed out", err)}
	case err != nil:
		o.emit(executionID, "ExecutionFailed", map[string]any{"message": sanitizeErrorForUser(err)})
		out <- ResponseChunk{Error: err}
	default:
		o.emit(executionID, "ExecutionCompleted", nil)
		o.postHook(session, msg, final)
	}
}

// loop is the planner iteration. It returns the final sanitised text.
func (o *Orchestrator) loop(ctx context.Context, executionID string, session *models.Session, msg *models.Message, out chan<- ResponseChunk) (string, error) {
	system, planner := o.assembleContext(ctx, session, msg)

	info := ExecutionInfo{
		ExecutionID: executionID,
		UserID:      session.OwnerUserID,
		AgentID:     session.AgentID,
		Provider:    o.cfg.Provider.Name(),
		Sandbox:     o.cfg.SandboxBackend,
	}

	var tools []ToolDefinition
	if o.cfg.Runner != nil {
		tools = o.cfg.Runner.Definitions()
	}

	totalFailures := 0
	consecutiveFailures := 0
	tokensSpent := estimateTokens(msg.Content)
	repromptedForRefusal := false
	var failures []failedToolRecord

	for iteration := 1; iteration <= o.cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if o.cfg.TokenBudget > 0 && tokensSpent >= o.cfg.TokenBudget {
			return "", fmt.Errorf("%w: token budget exhausted (%d)", ErrCancelled, tokensSpent)
		}

		text, calls, usage, err := o.plan(ctx, executionID, &CompletionRequest{
			System:   system,
			Messages: planner,
			Tools:    tools,
		}, out)
		if err != nil {
			return "", err
		}
		if usage > 0 {
			tokensSpent += usage
		} else {
			tokensSpent += estimateTokens(text)
		}

		if len(calls) == 0 {
			// Refusal detection: on the first round, a thin text-only
			// answer gets one explicit re-prompt to use the tools.
			if iteration == 1 && !repromptedForRefusal && len(tools) > 0 && isToolRefusal(text) {
				repromptedForRefusal = true
				planner = append(planner,
					CompletionMessage{Role: "assistant", Content: text},
					CompletionMessage{Role: "user", Content: "Use the available tools to carry out the request rather than declining."},
				)
				continue
			}
			final := sanitizeResponse(text)
			if final == "" && len(failures) > 0 {
				final = buildFallbackResponse(failures)
			}
			o.persist(session, msg, final)
			return final, nil
		}

		// Tool execution. Calls within one iteration run concurrently;
		// results attach to the history by call id, not arrival order.
		outcomes := o.executeCalls(ctx, executionID, calls, info, out)

		planner = append(planner, CompletionMessage{Role: "assistant", Content: text, ToolCalls: calls})
		iterationFailed := false
		for _, call := range calls {
			outcome := outcomes[call.ID]
			planner = append(planner, CompletionMessage{
				Role:       "tool",
				Content:    outcome.Content,
				ToolCallID: call.ID,
			})
			tokensSpent += estimateTokens(outcome.Content)
			if outcome.IsError {
				iterationFailed = true
				totalFailures++
				failures = append(failures, failedToolRecord{
					ToolName:     call.Name,
					ErrorMessage: truncateForSummary(outcome.Content),
					PolicyBlock:  outcome.PolicyBlocked,
				})
			}
		}
		if iterationFailed {
			consecutiveFailures++
		} else {
			consecutiveFailures = 0
		}
		if totalFailures >= o.cfg.MaxTotalFailures || consecutiveFailures >= o.cfg.MaxConsecutiveFailures {
			final := buildFallbackResponse(failures)
			o.persist(session, msg, final)
			return final, nil
		}
	}

	// Iteration cap: surface what we have rather than loop forever.
	final := buildFallbackResponse(failures)
	o.persist(session, msg, final)
	return final, nil
}

// assembleContext builds the system prompt (persona-classified unless
// overridden) and planner history: sanitised session history plus a
// compressed memory-retrieval block.
func (o *Orchestrator) assembleContext(ctx context.Context, session *models.Session, msg *models.Message) (string, []CompletionMessage) {
	system := o.cfg.SystemPrompt
	if override, ok := SystemPromptFromContext(ctx); ok {
		system = override
	} else if o.cfg.Personas != nil {
		name := ClassifyPersona(ctx, o.cfg.Provider, o.cfg.Personas, msg.Content)
		if persona := o.cfg.Personas.Resolve(name); persona.SystemPrompt != "" {
			system = persona.SystemPrompt
		}
	}

	var planner []CompletionMessage

	if o.cfg.Memory != nil {
		if lines, err := o.cfg.Memory.Retrieve(ctx, session.ID, msg.Content, o.cfg.MemoryTopK); err == nil && len(lines) > 0 {
			block := "Relevant context from earlier in this conversation:\n- " + strings.Join(lines, "\n- ")
			planner = append(planner, CompletionMessage{Role: "user", Content: block})
		}
	}

	if o.cfg.History != nil {
		history, err := o.cfg.History.GetHistory(ctx, session.ID, o.cfg.HistoryLimit)
		if err == nil {
			for _, m := range history {
				role := ""
				switch m.Role {
				case models.RoleUser:
					role = "user"
				case models.RoleAssistant:
					role = "assistant"
				default:
					continue // system/tool rows never re-enter the prompt
				}
				// Square brackets are stripped so stored turns can't
				// smuggle [SYSTEM: ...] control sequences back in.
				planner = append(planner, CompletionMessage{Role: role, Content: sanitizeForSessionMemory(m.Content)})
			}
		}
	}

	planner = append(planner, CompletionMessage{Role: "user", Content: msg.Content})
	return system, planner
}

// plan invokes the planner, streaming text chunks out, and falls back to
// the secondary provider once when the failure class allows it.
func (o *Orchestrator) plan(ctx context.Context, executionID string, req *CompletionRequest, out chan<- ResponseChunk) (string, []PlannedCall, int, error) {
	text, calls, usage, err := o.planWith(ctx, o.cfg.Provider, executionID, req, out)
	if err == nil || o.cfg.Fallback == nil || !isFallbackEligible(err) {
		return text, calls, usage, err
	}

	o.emit(executionID, "AiError", map[string]any{"message": sanitizeErrorForUser(err), "fallback": true})
	out <- ResponseChunk{Event: &RuntimeEvent{Kind: "fallback", Message: "retrying with fallback provider"}}
	return o.planWith(ctx, o.cfg.Fallback, executionID, req, out)
}

func (o *Orchestrator) planWith(ctx context.Context, provider LLMProvider, executionID string, req *CompletionRequest, out chan<- ResponseChunk) (string, []PlannedCall, int, error) {
	chunks, err := provider.Complete(ctx, req)
	if err != nil {
		return "", nil, 0, err
	}

	var sb strings.Builder
	var calls []PlannedCall
	usage := 0
	for chunk := range chunks {
		if chunk == nil {
			continue
		}
		if chunk.Error != nil {
			return sb.String(), calls, usage, chunk.Error
		}
		if chunk.Text != "" {
			sb.WriteString(chunk.Text)
			out <- ResponseChunk{Text: chunk.Text}
			o.emit(executionID, "AiStreaming", map[string]any{"chunk": chunk.Text})
		}
		if chunk.Done {
			calls = chunk.ToolCalls
			usage = chunk.InputTokens + chunk.OutputTokens
			o.emit(executionID, "AiCompleted", map[string]any{"tokens": usage})
		}
	}
	return sb.String(), calls, usage, ctx.Err()
}

// executeCalls fans one iteration's tool calls out concurrently and
// collects outcomes keyed by call id.
func (o *Orchestrator) executeCalls(ctx context.Context, executionID string, calls []PlannedCall, info ExecutionInfo, out chan<- ResponseChunk) map[string]ToolOutcome {
	outcomes := make(map[string]ToolOutcome, len(calls))
	if o.cfg.Runner == nil {
		for _, call := range calls {
			outcomes[call.ID] = ToolOutcome{Content: "no tool runner configured", IsError: true}
		}
		return outcomes
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, call := range calls {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(call PlannedCall) {
			defer wg.Done()
			o.emit(executionID, "ToolCallStarted", map[string]any{"tool": call.Name, "args": string(call.Arguments)})

			outcome := o.cfg.Runner.RunPlanned(ctx, call, info)

			o.emit(executionID, "ToolCallCompleted", map[string]any{"tool": call.Name, "success": !outcome.IsError})
			out <- ResponseChunk{ToolResult: &ToolResultEvent{
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Content:    outcome.Content,
				IsError:    outcome.IsError,
				DurationMs: outcome.DurationMs,
			}}
			mu.Lock()
			outcomes[call.ID] = outcome
			mu.Unlock()
		}(call)
	}
	wg.Wait()

	for _, call := range calls {
		if _, ok := outcomes[call.ID]; !ok {
			outcomes[call.ID] = ToolOutcome{Content: "cancelled before execution", IsError: true}
		}
	}
	return outcomes
}

// persist writes the inbound and final assistant messages to the session
// history, sanitised for storage.
func (o *Orchestrator) persist(session *models.Session, msg *models.Message, final string) {
	if o.cfg.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stored := *msg
	stored.Content = sanitizeForSessionMemory(msg.Content)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	_ = o.cfg.History.AppendMessage(ctx, session.ID, &stored)

	_ = o.cfg.History.AppendMessage(ctx, session.ID, &models.Message{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Channel:   session.Channel,
		ChannelID: session.ChannelID,
		Direction: models.DirectionOutbound,
		Role:      models.RoleAssistant,
		Content:   sanitizeForSessionMemory(final),
		CreatedAt: time.Now(),
	})
}

// postHook hands the finished conversation to the memory indexer.
func (o *Orchestrator) postHook(session *models.Session, msg *models.Message, final string) {
	if o.cfg.Memory == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	history := []*models.Message{
		{Role: models.RoleUser, Content: msg.Content},
		{Role: models.RoleAssistant, Content: final},
	}
	if o.cfg.History != nil {
		if full, err := o.cfg.History.GetHistory(ctx, session.ID, 0); err == nil && len(full) > 0 {
			history = full
		}
	}
	_ = o.cfg.Memory.IndexSession(ctx, session.ID, history)
}

func (o *Orchestrator) emit(executionID, kind string, payload map[string]any) {
	if o.cfg.Events != nil {
		o.cfg.Events.Emit(executionID, kind, payload)
	}
}

// estimateTokens approximates tokens as chars/4 for budget bookkeeping.
func estimateTokens(text string) int {
	return len(text)/4 + 1
}

// truncateForSummary caps an error line for the user-facing summary.
func truncateForSummary(msg string) string {
	msg = strings.TrimSpace(msg)
	if len(msg) > 100 {
		return msg[:100]
	}
	return msg
}
