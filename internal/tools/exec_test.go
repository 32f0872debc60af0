package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestGuardCommandRejectsShellOperators(t *testing.T) {
	for _, cmd := range []string{
		"ls | grep foo",
		"true && rm x",
		"echo hi; whoami",
		"cat < /tmp/x",
		"echo `whoami`",
		"echo $(whoami)",
	} {
		if err := guardCommand(cmd, "/tmp"); err == nil {
			t.Errorf("guardCommand(%q) = nil, want rejection", cmd)
		}
	}
}

func TestGuardCommandAllowsQuotedMetachars(t *testing.T) {
	if err := guardCommand(`grep "a|b" notes.txt`, "/tmp"); err != nil {
		t.Errorf("quoted operator should pass, got %v", err)
	}
}

func TestGuardCommandDeniedBinariesAndPaths(t *testing.T) {
	if err := guardCommand("dd if=/dev/zero", "/tmp"); err == nil {
		t.Error("dd should be rejected")
	}
	if err := guardCommand("cat /etc/passwd", "/tmp"); err == nil {
		t.Error("argument under /etc should be rejected")
	}
	if err := guardCommand("ls", "/root"); err == nil {
		t.Error("protected cwd should be rejected")
	}
	if err := guardCommand("rm -rf /boot", "/tmp"); err == nil {
		t.Error("rm -rf against protected path should be rejected")
	}
}

func TestGuardCommandRejectsForkBomb(t *testing.T) {
	if err := guardCommand(":(){ :|:& };:", "/tmp"); err == nil {
		t.Error("fork bomb should be rejected")
	}
}

func TestExecToolRunsWithoutShell(t *testing.T) {
	tool := NewExecTool(ExecConfig{Workspace: t.TempDir()})
	args, _ := json.Marshal(execArgs{Command: "echo hello world"})

	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("Execute() failed: %s", result.Error)
	}
	var out execOutput
	if err := json.Unmarshal(result.Output, &out); err != nil {
		t.Fatalf("output decode: %v", err)
	}
	if strings.TrimSpace(out.Stdout) != "hello world" {
		t.Errorf("stdout = %q, want hello world", out.Stdout)
	}
}

func TestExecToolBlocksPolicyViolations(t *testing.T) {
	tool := NewExecTool(ExecConfig{Workspace: t.TempDir()})
	args, _ := json.Marshal(execArgs{Command: "ls | wc -l"})

	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Success || !result.PolicyBlocked {
		t.Errorf("expected policy-blocked failure, got %+v", result)
	}
}
