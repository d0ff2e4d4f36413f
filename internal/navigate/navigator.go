// Package navigate opens documents in the host editor and turns activated
// trace tokens into navigation.
package navigate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// Navigator opens a document and moves the caret. line and column are
// 0-based.
type Navigator interface {
	Open(ctx context.Context, path string, line, column int) error
}

// LogNavigator only logs the request; used when no editor is configured.
type LogNavigator struct{}

// Open implements Navigator.
func (LogNavigator) Open(_ context.Context, path string, line, column int) error {
	slog.Info("navigate", "path", path, "line", line+1, "column", column+1)
	return nil
}

// ErrNoCommand is returned by NewCommandNavigator for an empty argv.
var ErrNoCommand = errors.New("navigator command is empty")

// CommandNavigator runs an editor command. Arguments may contain the
// placeholders {path}, {line} and {column}; line and column are substituted
// 1-based, the way editors take them on the command line, e.g.
// ["code", "--goto", "{path}:{line}:{column}"].
type CommandNavigator struct {
	args []string
	run  func(ctx context.Context, name string, args ...string) error
}

// NewCommandNavigator validates argv.
func NewCommandNavigator(argv []string) (*CommandNavigator, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, ErrNoCommand
	}
	return &CommandNavigator{args: append([]string(nil), argv...), run: runCommand}, nil
}

// Open implements Navigator.
func (c *CommandNavigator) Open(ctx context.Context, path string, line, column int) error {
	r := strings.NewReplacer(
		"{path}", path,
		"{line}", strconv.Itoa(line+1),
		"{column}", strconv.Itoa(column+1),
	)
	argv := make([]string, len(c.args))
	for i, a := range c.args {
		argv[i] = r.Replace(a)
	}
	if err := c.run(ctx, argv[0], argv[1:]...); err != nil {
		return fmt.Errorf("navigate %s:%d: %w", path, line+1, err)
	}
	return nil
}

// runCommand launches the editor without waiting for it: many editors keep
// running for as long as the document is open. The process is reaped in the
// background and a non-zero exit is logged.
func runCommand(_ context.Context, name string, args ...string) error {
	var out bytes.Buffer
	cmd := exec.Command(name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Warn("navigate: editor exited", "command", name, "error", err,
				"output", strings.TrimSpace(out.String()))
		}
	}()
	return nil
}
