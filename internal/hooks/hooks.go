// Package hooks runs user-configured shell snippets before the uninstaller
// removes anything, e.g. to stop the agent service.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/akneni/tynkerbase-uninstall/internal/logger"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// ErrEmptyHook is returned for a hook with no script.
var ErrEmptyHook = errors.New("hook has no script")

// Hook is a named shell snippet.
type Hook struct {
	Name string `toml:"name"`
	Run  string `toml:"run"`
}

// label is used in errors and logs when the hook is unnamed.
func (h Hook) label() string {
	if h.Name != "" {
		return h.Name
	}
	return strings.TrimSpace(h.Run)
}

// Parse parses the hook script as POSIX/bash shell.
func Parse(h Hook) (*syntax.File, error) {
	if strings.TrimSpace(h.Run) == "" {
		return nil, fmt.Errorf("%q: %w", h.Name, ErrEmptyHook)
	}
	prog, err := syntax.NewParser().Parse(strings.NewReader(h.Run), h.label())
	if err != nil {
		return nil, fmt.Errorf("hook %q: %w", h.label(), err)
	}
	return prog, nil
}

// Validate parses every hook and returns the first error.
func Validate(hs []Hook) error {
	for _, h := range hs {
		if _, err := Parse(h); err != nil {
			return err
		}
	}
	return nil
}

// ExitError reports a hook that finished with a non-zero status.
type ExitError struct {
	Hook   string
	Status uint8
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("hook %q exited with status %d", e.Hook, e.Status)
}

// RunAll runs hooks in order with the process environment, stopping at the
// first failure. Hooks get no stdin.
func RunAll(ctx context.Context, hs []Hook, stdout, stderr io.Writer) error {
	for _, h := range hs {
		prog, err := Parse(h)
		if err != nil {
			return err
		}

		runner, err := interp.New(interp.StdIO(nil, stdout, stderr))
		if err != nil {
			return fmt.Errorf("hook %q: %w", h.label(), err)
		}

		logger.Debug("running hook", "hook", h.label())
		if err := runner.Run(ctx, prog); err != nil {
			if status, ok := interp.IsExitStatus(err); ok {
				return &ExitError{Hook: h.label(), Status: status}
			}
			return fmt.Errorf("hook %q: %w", h.label(), err)
		}
	}
	return nil
}
