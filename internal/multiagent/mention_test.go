package multiagent

import "testing"

func TestParseMentions_SingleMention(t *testing.T) {
	tasks, err := ParseMentions("@backend design the API", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 1 || tasks[0].AgentID != "backend" || tasks[0].Text != "design the API" {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
}

func TestParseMentions_MultipleMentions(t *testing.T) {
	tasks, err := ParseMentions("@backend design API; @frontend build UI", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d: %+v", len(tasks), tasks)
	}
	if tasks[0].AgentID != "backend" || tasks[0].Text != "design API;" {
		t.Fatalf("unexpected first task: %+v", tasks[0])
	}
	if tasks[1].AgentID != "frontend" || tasks[1].Text != "build UI" {
		t.Fatalf("unexpected second task: %+v", tasks[1])
	}
}

func TestParseMentions_LeadingTextUsesDefault(t *testing.T) {
	tasks, err := ParseMentions("please help @specialist with this", "generalist")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 2 || tasks[0].AgentID != "generalist" || tasks[0].Text != "please help" {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
}

func TestParseMentions_NoMentionNoDefaultFails(t *testing.T) {
	_, err := ParseMentions("no mentions here", "")
	if err != ErrNoAgentMatched {
		t.Fatalf("expected ErrNoAgentMatched, got %v", err)
	}
}

func TestParseMentions_NoMentionWithDefault(t *testing.T) {
	tasks, err := ParseMentions("just talk to me", "assistant")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 1 || tasks[0].AgentID != "assistant" {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
}

func TestParseMentions_EmptyInput(t *testing.T) {
	tasks, err := ParseMentions("   ", "assistant")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tasks != nil {
		t.Fatalf("expected no tasks for blank input, got %+v", tasks)
	}
}

func TestA2ARouter_ForwardAndDrain(t *testing.T) {
	r := newA2ARouter(10)
	r.forward("sess-1", "backend", "API is ready at /v1/widgets")

	forwarded := r.drain("sess-1", "frontend")
	if forwarded == "" {
		t.Fatalf("expected forwarded content for frontend")
	}

	// Draining again returns nothing: messages are consumed once.
	again := r.drain("sess-1", "frontend")
	if again != "" {
		t.Fatalf("expected drain to consume messages, got %q", again)
	}
}

func TestA2ARouter_DoesNotForwardToSelf(t *testing.T) {
	r := newA2ARouter(10)
	r.forward("sess-1", "backend", "note to self")

	forwarded := r.drain("sess-1", "backend")
	if forwarded != "" {
		t.Fatalf("expected no self-forwarded content, got %q", forwarded)
	}
}

func TestA2ARouter_HistoryCapEvictsOldest(t *testing.T) {
	r := newA2ARouter(2)
	r.forward("sess-1", "a", "one")
	r.forward("sess-1", "b", "two")
	r.forward("sess-1", "c", "three")

	r.mu.Lock()
	n := len(r.history["sess-1"])
	r.mu.Unlock()
	if n != 2 {
		t.Fatalf("expected history capped at 2, got %d", n)
	}
}
