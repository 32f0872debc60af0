package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// deniedCommands are binaries the exec tool refuses to run regardless of
// arguments. Matched against the first whitespace-split token.
var deniedCommands = map[string]bool{
	"dd":        true,
	"mkfs":      true,
	"mkfs.ext4": true,
	"shutdown":  true,
	"reboot":    true,
	"init":      true,
}

// deniedPathPrefixes are filesystem locations the exec tool refuses to touch,
// checked against every argument and the working directory.
var deniedPathPrefixes = []string{
	"/etc",
	"/root",
	"/var/log",
	"/boot",
	"/dev",
	"/proc",
	"/sys",
	"/usr/bin",
	"/usr/sbin",
	"/bin",
	"/sbin",
}

// shellMetachars are the operators that only mean something to a shell.
// The exec tool never invokes one, so their presence outside quotes means
// the command would not do what the caller expects.
const shellMetachars = "|&;<>`$"

// analyzeCommand scans for shell metacharacters outside single/double
// quotes. Quoted occurrences are data, not operators, and pass.
func analyzeCommand(command string) error {
	var inSingle, inDouble, escaped bool
	for _, r := range command {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && !inSingle:
			escaped = true
		case r == '\'' && !inDouble:
			inSingle = !inSingle
		case r == '"' && !inSingle:
			inDouble = !inDouble
		case !inSingle && !inDouble && strings.ContainsRune(shellMetachars, r):
			return fmt.Errorf("shell operator %q is not supported (commands run without a shell)", r)
		case !inSingle && !inDouble && r == '(':
			return fmt.Errorf("subshell syntax is not supported (commands run without a shell)")
		}
	}
	if inSingle || inDouble {
		return fmt.Errorf("unbalanced quotes")
	}
	return nil
}

// guardCommand rejects commands that invoke a shell, chain commands via
// metacharacters, target a denied binary, or reference a denied path. The
// exec tool never hands commands to /bin/sh -c; it splits on whitespace and
// execs the first token directly, so any of these patterns would otherwise
// either silently no-op or require shell interpretation this tool doesn't
// provide.
func guardCommand(command, cwd string) error {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return fmt.Errorf("command is required")
	}

	if err := analyzeCommand(trimmed); err != nil {
		return fmt.Errorf("command rejected: %w", err)
	}

	fields := strings.Fields(trimmed)
	bin := fields[0]
	if idx := strings.LastIndexByte(bin, '/'); idx >= 0 {
		bin = bin[idx+1:]
	}
	if deniedCommands[bin] {
		return fmt.Errorf("command rejected: %q is not permitted", fields[0])
	}
	if isForkBomb(trimmed) {
		return fmt.Errorf("command rejected: fork bomb pattern detected")
	}
	if strings.Contains(trimmed, "rm") && strings.Contains(trimmed, "-rf") {
		for _, f := range fields {
			if matchesDeniedPath(f) {
				return fmt.Errorf("command rejected: rm -rf against a protected path")
			}
		}
	}

	for _, f := range fields[1:] {
		if matchesDeniedPath(f) {
			return fmt.Errorf("command rejected: argument %q touches a protected path", f)
		}
	}
	if matchesDeniedPath(cwd) {
		return fmt.Errorf("command rejected: cwd %q is a protected path", cwd)
	}

	return nil
}

func matchesDeniedPath(arg string) bool {
	if arg == "" {
		return false
	}
	for _, prefix := range deniedPathPrefixes {
		if arg == prefix || strings.HasPrefix(arg, prefix+"/") {
			return true
		}
	}
	return false
}

// isForkBomb detects the classic ":(){ :|:& };:" shape and close variants.
func isForkBomb(cmd string) bool {
	collapsed := strings.Join(strings.Fields(cmd), "")
	return strings.Contains(collapsed, ":(){:|:&};:") || strings.Contains(collapsed, ":(){:|:&};")
}

// ExecConfig configures the exec tool.
type ExecConfig struct {
	// Workspace is the default working directory for commands.
	Workspace string

	// MaxTimeout caps the per-command timeout a caller may request.
	MaxTimeout time.Duration

	// SandboxBackend routes execution through a container runtime when
	// set to "docker"; empty runs on the host.
	SandboxBackend string
	SandboxImage   string
}

// ExecTool runs a single program with arguments. It never invokes a
// shell: the command string splits on literal whitespace and the first
// token execs directly.
type ExecTool struct {
	cfg ExecConfig
}

// NewExecTool constructs the exec tool, defaulting and capping timeouts.
func NewExecTool(cfg ExecConfig) *ExecTool {
	if cfg.MaxTimeout <= 0 || cfg.MaxTimeout > maxToolTimeout {
		cfg.MaxTimeout = maxToolTimeout
	}
	return &ExecTool{cfg: cfg}
}

func (t *ExecTool) Name() string { return "exec" }

func (t *ExecTool) Description() string {
	return "Run a program with arguments (no shell; operators like | and && are rejected)."
}

func (t *ExecTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "Program and arguments, split on whitespace."},
			"cwd": {"type": "string", "description": "Working directory (defaults to the workspace)."},
			"timeout_secs": {"type": "number", "description": "Per-command timeout override."}
		},
		"required": ["command"]
	}`)
}

type execArgs struct {
	Command     string `json:"command"`
	Cwd         string `json:"cwd,omitempty"`
	TimeoutSecs int    `json:"timeout_secs,omitempty"`
}

type execOutput struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr,omitempty"`
	ExitCode int    `json:"exit_code"`
}

func (t *ExecTool) Execute(ctx context.Context, raw json.RawMessage) (*Result, error) {
	var args execArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return &Result{Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}

	cwd := args.Cwd
	if cwd == "" {
		cwd = t.cfg.Workspace
	}
	if err := guardCommand(args.Command, cwd); err != nil {
		return &Result{Error: err.Error(), PolicyBlocked: true}, nil
	}

	timeout := t.cfg.MaxTimeout
	if args.TimeoutSecs > 0 {
		requested := time.Duration(args.TimeoutSecs) * time.Second
		if requested < timeout {
			timeout = requested
		}
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := strings.Fields(strings.TrimSpace(args.Command))
	if t.cfg.SandboxBackend == "docker" {
		argv = t.dockerArgv(argv, cwd)
		cwd = ""
	}

	cmd := exec.CommandContext(execCtx, argv[0], argv[1:]...)
	if cwd != "" {
		cmd.Dir = cwd
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if execCtx.Err() == context.DeadlineExceeded {
		return &Result{Error: fmt.Sprintf("command timed out after %s", timeout)}, nil
	}

	out := execOutput{Stdout: stdout.String(), Stderr: stderr.String()}
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return &Result{Error: err.Error()}, nil
	}
	if runErr != nil {
		return &Result{Output: payload, Error: runErr.Error()}, nil
	}
	return &Result{Success: true, Output: payload}, nil
}

// dockerArgv wraps argv for container execution: the workspace mounts at
// /workspace and the command runs there.
func (t *ExecTool) dockerArgv(argv []string, cwd string) []string {
	image := t.cfg.SandboxImage
	if image == "" {
		image = "alpine:latest"
	}
	wrapped := []string{"docker", "run", "--rm", "--network=none", "-w", "/workspace"}
	if cwd != "" {
		wrapped = append(wrapped, "-v", cwd+":/workspace")
	}
	wrapped = append(wrapped, image)
	return append(wrapped, argv...)
}
