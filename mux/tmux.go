// Package mux implements the terminal-multiplexer collaborator on top of a
// real tmux binary. Sessions are addressed by name; tmux itself owns the
// process tree, so liveness is an external query rather than in-memory
// bookkeeping.
package mux

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hupe1980/agentdock/core"
	"github.com/hupe1980/agentdock/logging"
)

const sessionPrefix = "agentdock-"

// Options configure the tmux collaborator.
type Options struct {
	// Binary is the tmux executable name or path.
	Binary string
	// Program is the agent command launched inside the tmux session; it
	// receives the task description as its single argument.
	Program string
	Logger  logging.Logger
}

// Tmux shells out to tmux for spawn, capture, liveness and kill.
type Tmux struct {
	binary  string
	program string
	logger  logging.Logger
}

// New creates a tmux collaborator.
func New(optFns ...func(o *Options)) *Tmux {
	opts := Options{
		Binary:  "tmux",
		Program: "claude",
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Tmux{binary: opts.Binary, program: opts.Program, logger: opts.Logger}
}

// Available reports whether the tmux binary can be found. Probed once at
// startup by callers that treat the multiplexer as optional.
func (t *Tmux) Available() bool {
	_, err := exec.LookPath(t.binary)
	return err == nil
}

// Spawn implements core.Multiplexer: start a detached tmux session running
// the agent program on the task, rooted in workdir, and return its name as
// the handle.
func (t *Tmux) Spawn(ctx context.Context, task, workdir string) (string, error) {
	name := sessionPrefix + core.NewID()[:8]

	args := []string{"new-session", "-d", "-s", name}
	if workdir != "" {
		args = append(args, "-c", workdir)
	}
	args = append(args, t.program, task)

	if out, err := exec.CommandContext(ctx, t.binary, args...).CombinedOutput(); err != nil {
		return "", fmt.Errorf("tmux new-session failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	t.logger.Info("mux.spawn", "handle", name, "workdir", workdir)
	return name, nil
}

// Capture implements core.Multiplexer: return the current pane contents.
func (t *Tmux) Capture(ctx context.Context, handle string) (string, error) {
	out, err := exec.CommandContext(ctx, t.binary, "capture-pane", "-p", "-t", handle).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("tmux capture-pane failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// Exists implements core.Multiplexer. has-session exits non-zero for
// unknown sessions.
func (t *Tmux) Exists(ctx context.Context, handle string) bool {
	return exec.CommandContext(ctx, t.binary, "has-session", "-t", handle).Run() == nil
}

// Kill implements core.Multiplexer. Killing an already-gone session is a
// no-op.
func (t *Tmux) Kill(ctx context.Context, handle string) error {
	if !t.Exists(ctx, handle) {
		return nil
	}
	if out, err := exec.CommandContext(ctx, t.binary, "kill-session", "-t", handle).CombinedOutput(); err != nil {
		return fmt.Errorf("tmux kill-session failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	t.logger.Info("mux.kill", "handle", handle)
	return nil
}
