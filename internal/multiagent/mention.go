package multiagent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cratos-run/cratos/pkg/models"
)

// ErrNoAgentMatched is returned when an input has no @mention and no
// default persona is configured to fall back to.
var ErrNoAgentMatched = errors.New("multiagent: no agent matched")

// ErrMaxDepthExceeded is returned when a dispatch would nest deeper than
// the configured recursion guard allows.
var ErrMaxDepthExceeded = errors.New("multiagent: max dispatch depth exceeded")

// AgentNotFoundError reports an @mention that does not resolve to a
// registered agent.
type AgentNotFoundError struct {
	Name string
}

func (e *AgentNotFoundError) Error() string {
	return fmt.Sprintf("multiagent: agent not found: %s", e.Name)
}

// ErrTokenBudgetExceeded marks a single task as failed without affecting
// its siblings when the shared dispatch budget is exhausted.
var ErrTokenBudgetExceeded = errors.New("multiagent: token budget exceeded")

var mentionPattern = regexp.MustCompile(`@(\w[\w.-]*)`)

// MentionTask is one @persona task parsed out of a multi-agent input.
type MentionTask struct {
	AgentID string
	Text    string
}

// ParseMentions splits text into ordered per-persona tasks. Each @name
// mention starts a new task that runs until the next mention or end of
// string. Any text preceding the first mention is attributed to
// defaultAgentID; if there is no mention at all and no default, parsing
// fails with ErrNoAgentMatched.
func ParseMentions(text string, defaultAgentID string) ([]MentionTask, error) {
	locs := mentionPattern.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil, nil
		}
		if defaultAgentID == "" {
			return nil, ErrNoAgentMatched
		}
		return []MentionTask{{AgentID: defaultAgentID, Text: trimmed}}, nil
	}

	var tasks []MentionTask

	if lead := strings.TrimSpace(text[:locs[0][0]]); lead != "" {
		if defaultAgentID == "" {
			return nil, ErrNoAgentMatched
		}
		tasks = append(tasks, MentionTask{AgentID: defaultAgentID, Text: lead})
	}

	for i, loc := range locs {
		agentID := text[loc[2]:loc[3]]
		start := loc[1]
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := strings.TrimSpace(text[start:end])
		tasks = append(tasks, MentionTask{AgentID: agentID, Text: body})
	}
	return tasks, nil
}

// AgentResponse is the coalesced result of one dispatched task.
type AgentResponse struct {
	AgentID    string
	Content    string
	Success    bool
	Error      error
	DurationMs int64
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMaxParallel bounds how many tasks run concurrently.
func WithMaxParallel(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxParallel = n
		}
	}
}

// WithMaxDepth bounds recursive dispatch nesting.
func WithMaxDepth(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxDepth = n
		}
	}
}

// WithTokenBudget bounds the total estimated output tokens across all
// tasks in one dispatch call.
func WithTokenBudget(n int64) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxTokenBudget = n
		}
	}
}

// WithA2AHistoryCap bounds how many forwarded A2A messages are retained
// per session before the oldest are dropped.
func WithA2AHistoryCap(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.a2a.cap = n
		}
	}
}

// Dispatcher parses @persona mentions out of a single input, fans the
// resulting tasks out to the orchestrator (sequentially when there is one
// task, concurrently and bounded when there are several), and coalesces
// their responses. See spec §4.4 for the full contract.
type Dispatcher struct {
	orchestrator   *Orchestrator
	maxParallel    int
	maxDepth       int
	maxTokenBudget int64
	a2a            *a2aRouter
}

// NewDispatcher constructs a Dispatcher bound to an orchestrator.
func NewDispatcher(o *Orchestrator, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		orchestrator:   o,
		maxParallel:    4,
		maxDepth:       3,
		maxTokenBudget: 0, // 0 disables the budget check
		a2a:            newA2ARouter(50),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch parses input and runs every resulting task, returning the
// ordered, non-cancelled responses. defaultAgentID is used for any text
// preceding the first @mention (or for a mention-less input).
func (d *Dispatcher) Dispatch(ctx context.Context, session *models.Session, input, defaultAgentID string) ([]AgentResponse, error) {
	stack := HandoffStackFromContext(ctx)
	if len(stack) >= d.maxDepth {
		return nil, ErrMaxDepthExceeded
	}

	tasks, err := ParseMentions(input, defaultAgentID)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, ErrNoAgentMatched
	}
	for _, task := range tasks {
		if _, ok := d.orchestrator.GetAgent(task.AgentID); !ok {
			return nil, &AgentNotFoundError{Name: task.AgentID}
		}
	}

	childStack := append(append([]string{}, stack...), "dispatch")
	childCtx := WithHandoffStack(ctx, childStack)

	if len(tasks) == 1 {
		return []AgentResponse{d.runTask(childCtx, session, tasks[0])}, nil
	}
	return d.runParallel(childCtx, session, tasks), nil
}

func (d *Dispatcher) runTask(ctx context.Context, session *models.Session, task MentionTask) AgentResponse {
	start := time.Now()
	resp := AgentResponse{AgentID: task.AgentID}

	select {
	case <-ctx.Done():
		resp.Error = ctx.Err()
		return resp
	default:
	}

	text := task.Text
	if forwarded := d.a2a.drain(session.ID, task.AgentID); forwarded != "" {
		text = forwarded + "\n\n" + text
	}

	runtime, ok := d.orchestrator.GetRuntime(task.AgentID)
	if !ok {
		resp.Error = &AgentNotFoundError{Name: task.AgentID}
		return resp
	}

	msg := &models.Message{
		SessionID: session.ID,
		Content:   text,
		CreatedAt: time.Now(),
	}
	taskCtx := WithCurrentAgent(ctx, task.AgentID)
	chunks, err := runtime.Process(taskCtx, session, msg)
	if err != nil {
		resp.Error = err
		resp.DurationMs = time.Since(start).Milliseconds()
		return resp
	}

	var sb strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			resp.Error = chunk.Error
			continue
		}
		sb.WriteString(chunk.Text)
	}

	resp.Content = sb.String()
	resp.Success = resp.Error == nil
	resp.DurationMs = time.Since(start).Milliseconds()
	d.a2a.forward(session.ID, task.AgentID, resp.Content)
	return resp
}

// runParallel runs every task concurrently, bounded by min(maxParallel,
// len(tasks)). Each task gets its own cancellation derived from ctx;
// cancelling the dispatch (ctx) cancels every running child. Exceeding
// the shared token budget fails only the offending task.
func (d *Dispatcher) runParallel(ctx context.Context, session *models.Session, tasks []MentionTask) []AgentResponse {
	childCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	limit := d.maxParallel
	if limit <= 0 || limit > len(tasks) {
		limit = len(tasks)
	}
	sem := make(chan struct{}, limit)

	var spent atomic.Int64
	results := make([]AgentResponse, len(tasks))
	var wg sync.WaitGroup
	wg.Add(len(tasks))

	for i, task := range tasks {
		sem <- struct{}{}
		go func(idx int, t MentionTask) {
			defer wg.Done()
			defer func() { <-sem }()

			if d.maxTokenBudget > 0 && spent.Load() >= d.maxTokenBudget {
				results[idx] = AgentResponse{AgentID: t.AgentID, Error: ErrTokenBudgetExceeded}
				return
			}

			result := d.runTask(childCtx, session, t)
			results[idx] = result

			if result.Success {
				spent.Add(estimateTokens(result.Content))
			}
		}(i, task)
	}

	wg.Wait()

	out := make([]AgentResponse, 0, len(tasks))
	for _, r := range results {
		if errors.Is(r.Error, context.Canceled) {
			continue // cancelled tasks are omitted, not reported as errors
		}
		out = append(out, r)
	}
	return out
}

// estimateTokens approximates output tokens the way the orchestrator does
// elsewhere in the system: roughly 4 characters per token.
func estimateTokens(text string) int64 {
	return int64(len(text)/4) + 1
}

// a2aRouter forwards a completed task's response as an inbound "A2A
// message" to the next task addressed to the same persona within a
// session, bounded by a per-session history cap (oldest entries drop).
type a2aRouter struct {
	mu      sync.Mutex
	cap     int
	history map[string][]a2aMessage
}

type a2aMessage struct {
	fromAgentID string
	toAgentID   string
	content     string
}

func newA2ARouter(cap int) *a2aRouter {
	return &a2aRouter{cap: cap, history: make(map[string][]a2aMessage)}
}

// forward records agentID's response as available context for any other
// agent in the same session's next turn.
func (r *a2aRouter) forward(sessionID, fromAgentID, content string) {
	if content == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := append(r.history[sessionID], a2aMessage{fromAgentID: fromAgentID, content: content})
	if len(msgs) > r.cap {
		msgs = msgs[len(msgs)-r.cap:]
	}
	r.history[sessionID] = msgs
}

// drain returns and clears any A2A messages queued for toAgentID in this
// session, formatted as a single context block.
func (r *a2aRouter) drain(sessionID, toAgentID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.history[sessionID]
	if len(msgs) == 0 {
		return ""
	}
	var remaining []a2aMessage
	var forwarded []string
	for _, m := range msgs {
		if m.fromAgentID == toAgentID {
			remaining = append(remaining, m)
			continue
		}
		forwarded = append(forwarded, fmt.Sprintf("[from @%s]: %s", m.fromAgentID, m.content))
	}
	r.history[sessionID] = remaining
	if len(forwarded) == 0 {
		return ""
	}
	return strings.Join(forwarded, "\n")
}
