// Package assistant provides the voice-assistant hooks the coordinator
// runs when the trigger digit is dialed.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// waitDelay bounds how long Interact waits for the program's I/O to close
// after it has been killed.
const waitDelay = 2 * time.Second

// Command runs an external program for each interaction round. A zero
// exit status means the conversation continues; any other status ends it.
type Command struct {
	Path string
	Args []string
	Log  *slog.Logger
}

// NewCommand returns a Command that runs path with args.
func NewCommand(path string, args ...string) *Command {
	return &Command{Path: path, Args: args, Log: slog.Default().With("component", "assistant")}
}

// Interact runs one round. It returns an error only when the program
// could not be started or ctx was cancelled.
func (c *Command) Interact(ctx context.Context) (bool, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// Cancellation kills the whole process group, not just the direct child.
	killGroup(cmd)
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if c.Log != nil {
			c.Log.Debug("round ended", "exit_code", exitErr.ExitCode())
		}
		return false, nil
	}
	return false, fmt.Errorf("run %s: %w", c.Path, err)
}

// Nop is an assistant that ends every conversation immediately.
type Nop struct{}

// Interact always reports that the conversation is over.
func (Nop) Interact(context.Context) (bool, error) { return false, nil }
