package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"
	"unicode/utf8"
)

const (
	// ShellToolName is the single tool declared to the remote backend.
	ShellToolName = "run_shell_command"
	// ShellToolDescription is the description shown to the model.
	ShellToolDescription = "Execute a shell command and return its combined stdout/stderr output"

	// ShellTimeout is the hard wall-clock limit for one tool invocation.
	// Exceeding it is a tool failure, not a session failure.
	ShellTimeout = 30 * time.Second
	// MaxToolOutput caps the combined output fed back into the
	// conversation, in characters.
	MaxToolOutput = 4000
)

// ShellToolSchema is the JSON-Schema parameter declaration for the shell
// tool, shared by both reference providers.
func ShellToolSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The shell command to execute",
			},
		},
		"required": []string{"command"},
	}
}

type shellArgs struct {
	Command string `json:"command"`
}

// ExecShell runs one tool invocation: parse the model-supplied arguments,
// execute the command in the session workdir with a hard timeout, and return
// the combined output truncated to MaxToolOutput characters.
//
// Failures (bad arguments, non-zero exit, timeout) are reported in the
// result text so the loop can feed them back to the model like any other
// tool result; the returned error only flags the failure for the tool-end
// event.
func ExecShell(ctx context.Context, argsJSON, workdir string) (string, error) {
	var args shellArgs
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return fmt.Sprintf("invalid tool arguments: %v", err), err
	}
	if args.Command == "" {
		err := fmt.Errorf("missing required argument: command")
		return err.Error(), err
	}

	execCtx, cancel := context.WithTimeout(ctx, ShellTimeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "sh", "-c", args.Command)
	cmd.Dir = workdir

	out, err := cmd.CombinedOutput()
	result := truncate(string(out), MaxToolOutput)

	if execCtx.Err() == context.DeadlineExceeded {
		err = fmt.Errorf("command timed out after %s", ShellTimeout)
		return truncate(fmt.Sprintf("%s\n%s", err.Error(), string(out)), MaxToolOutput), err
	}
	if err != nil {
		return truncate(fmt.Sprintf("command failed: %v\n%s", err, string(out)), MaxToolOutput), err
	}

	return result, nil
}

// truncate caps s at n characters, never splitting a rune.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
