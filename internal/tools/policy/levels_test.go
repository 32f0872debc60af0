package policy

import "testing"

func TestLevelResolver_SandboxOverridesGlobal(t *testing.T) {
	r := NewLevelResolver()
	rules := []Rule{
		{Level: LevelGlobal, Scope: "*", ToolPattern: "exec", Action: ActionRequireApproval},
		{Level: LevelSandbox, Scope: "docker", ToolPattern: "*", Action: ActionAllow},
	}

	got := r.Resolve(rules, "exec", RuleContext{Sandbox: "docker"})
	if got != ActionAllow {
		t.Fatalf("expected Allow when sandboxed, got %v", got)
	}

	got = r.Resolve(rules, "exec", RuleContext{})
	if got != ActionRequireApproval {
		t.Fatalf("expected RequireApproval with no sandbox, got %v", got)
	}
}

func TestLevelResolver_NoMatchDefaultsAllow(t *testing.T) {
	r := NewLevelResolver()
	got := r.Resolve(nil, "read", RuleContext{})
	if got != ActionAllow {
		t.Fatalf("expected default Allow, got %v", got)
	}
}

func TestLevelResolver_SameLevelSpecificityTieBreak(t *testing.T) {
	r := NewLevelResolver()
	rules := []Rule{
		{Level: LevelUser, Scope: "u1", ToolPattern: "*", Action: ActionDeny},
		{Level: LevelUser, Scope: "u1", ToolPattern: "exec_*", Action: ActionRequireApproval},
		{Level: LevelUser, Scope: "u1", ToolPattern: "exec_shell", Action: ActionAllow},
	}

	got := r.Resolve(rules, "exec_shell", RuleContext{User: "u1"})
	if got != ActionAllow {
		t.Fatalf("expected literal match to win over prefix/wildcard, got %v", got)
	}

	got = r.Resolve(rules, "exec_other", RuleContext{User: "u1"})
	if got != ActionRequireApproval {
		t.Fatalf("expected prefix match to win over wildcard, got %v", got)
	}
}

func TestLevelResolver_EarliestRegisteredWinsOnTie(t *testing.T) {
	r := NewLevelResolver()
	rules := []Rule{
		{Level: LevelGlobal, Scope: "*", ToolPattern: "exec", Action: ActionDeny},
		{Level: LevelGlobal, Scope: "*", ToolPattern: "exec", Action: ActionAllow},
	}
	got := r.Resolve(rules, "exec", RuleContext{})
	if got != ActionDeny {
		t.Fatalf("expected earliest-registered rule (Deny) to win, got %v", got)
	}
}

func TestLevelResolver_ProviderOutranksGroup(t *testing.T) {
	r := NewLevelResolver()
	rules := []Rule{
		{Level: LevelProvider, Scope: "*", ToolPattern: "*", Action: ActionAllow},
		{Level: LevelGroup, Scope: "*", ToolPattern: "*", Action: ActionDeny},
	}
	// Provider(4) has lower numeric priority than Group(5), so it wins.
	got := r.Resolve(rules, "anything", RuleContext{Provider: "openai", Group: "fs"})
	if got != ActionAllow {
		t.Fatalf("expected Provider(4) to outrank Group(5), got %v", got)
	}
}
