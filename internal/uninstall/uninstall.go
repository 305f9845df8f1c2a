// Package uninstall removes the tynkerbase agent from the host.
//
// Targets are handled strictly in order. Removal errors are fatal and are
// not rolled back: whatever was removed before the failure stays removed.
package uninstall

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/akneni/tynkerbase-uninstall/internal/audit"
	"github.com/akneni/tynkerbase-uninstall/internal/backup"
	"github.com/akneni/tynkerbase-uninstall/internal/constants"
	"github.com/akneni/tynkerbase-uninstall/internal/hooks"
	"github.com/akneni/tynkerbase-uninstall/internal/logger"
)

var (
	// ErrNotAFile is returned when a file target turns out to be a directory.
	ErrNotAFile = errors.New("target is a directory, expected a file")
	// ErrNotADirectory is returned when a tree target is not a directory.
	ErrNotADirectory = errors.New("target is not a directory")
	// ErrSymlinkTree is returned instead of recursing into a symlinked tree.
	ErrSymlinkTree = errors.New("refusing to recursively remove a symlink")
	// ErrNoAnswer is returned when input ends before any answer is typed.
	ErrNoAnswer = errors.New("input closed before an answer was given")
)

// Action is the outcome for a single target.
type Action string

const (
	ActionRemoved     Action = "removed"
	ActionAbsent      Action = "absent"
	ActionDeclined    Action = "declined"
	ActionWouldRemove Action = "would-remove"
	ActionFailed      Action = "failed"
)

// Result records what happened to one target.
type Result struct {
	Target Target
	Action Action
	// Backup is the archive written before removal, if any.
	Backup string
	Err    error
}

// Report lists results in the order targets were handled.
type Report struct {
	Results []Result
}

// Removed returns the paths that were deleted.
func (r *Report) Removed() []string {
	var paths []string
	for _, res := range r.Results {
		if res.Action == ActionRemoved {
			paths = append(paths, res.Target.Path)
		}
	}
	return paths
}

// Prompted reports whether the user was asked for confirmation.
func (r *Report) Prompted() bool {
	for _, res := range r.Results {
		if res.Target.Confirm && res.Action != ActionAbsent {
			return true
		}
	}
	return false
}

// Uninstaller removes Targets in order.
type Uninstaller struct {
	Targets []Target
	// In supplies the answer to the confirmation prompt; Out receives the prompt.
	In  io.Reader
	Out io.Writer
	// DryRun prompts as usual but removes nothing and skips hooks and backups.
	DryRun bool
	// Hooks run before the first target is examined.
	Hooks []hooks.Hook
	// HookOut and HookErr receive hook output; nil discards it.
	HookOut io.Writer
	HookErr io.Writer
	// BackupDir, when set, receives an archive of each confirmed target
	// before it is removed.
	BackupDir string
}

// IsAffirmative reports whether a prompt answer means yes: after trimming
// surrounding whitespace and lowercasing, only "y" and "yes" qualify.
func IsAffirmative(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

// Run executes the uninstall. The returned report covers every target handled
// before a failure; on failure the last result carries the error.
func (u *Uninstaller) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	if len(u.Hooks) > 0 {
		if u.DryRun {
			logger.Debug("dry run: skipping hooks", "count", len(u.Hooks))
		} else if err := hooks.RunAll(ctx, u.Hooks, orDiscard(u.HookOut), orDiscard(u.HookErr)); err != nil {
			return report, fmt.Errorf("pre-remove hooks failed: %w", err)
		}
	}

	var answers *bufio.Reader
	for _, t := range u.Targets {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		log := logger.With("target", t.Name, "path", t.Path)

		if !exists(t.Path) {
			log.Debug("target absent")
			u.record(report, Result{Target: t, Action: ActionAbsent})
			continue
		}

		if t.Confirm {
			if answers == nil {
				answers = bufio.NewReader(u.input())
			}
			ok, err := u.confirm(ctx, answers)
			if err != nil {
				u.record(report, Result{Target: t, Action: ActionFailed, Err: err})
				return report, err
			}
			if !ok {
				log.Debug("removal declined")
				u.record(report, Result{Target: t, Action: ActionDeclined})
				continue
			}
		}

		if u.DryRun {
			log.Debug("dry run: would remove")
			u.record(report, Result{Target: t, Action: ActionWouldRemove})
			continue
		}

		// an interrupt while the prompt was answered must not delete anything
		if err := ctx.Err(); err != nil {
			return report, err
		}

		res := Result{Target: t, Action: ActionRemoved}
		if err := inspect(t); err != nil {
			err = fmt.Errorf("failed to remove %s %s: %w", t.Name, t.Path, err)
			res.Action, res.Err = ActionFailed, err
			u.record(report, res)
			return report, err
		}

		if t.Confirm && u.BackupDir != "" {
			archive, err := backup.Archive(t.Path, u.BackupDir)
			if err != nil {
				res.Action, res.Err = ActionFailed, err
				u.record(report, res)
				return report, fmt.Errorf("backup of %s failed, %s was not removed: %w", t.Name, t.Path, err)
			}
			log.Debug("backup written", "archive", archive)
			res.Backup = archive
		}

		if err := remove(t); err != nil {
			err = fmt.Errorf("failed to remove %s %s: %w", t.Name, t.Path, err)
			res.Action, res.Err = ActionFailed, err
			u.record(report, res)
			return report, err
		}
		log.Debug("target removed")
		u.record(report, res)
	}

	return report, nil
}

type answer struct {
	line string
	err  error
}

// confirm writes the prompt and reads one line. A partial line before EOF is
// still an answer; EOF with nothing typed is ErrNoAnswer. Cancelling ctx
// abandons the read.
func (u *Uninstaller) confirm(ctx context.Context, r *bufio.Reader) (bool, error) {
	if _, err := io.WriteString(u.output(), constants.ProjectsPrompt); err != nil {
		return false, fmt.Errorf("failed to write prompt: %w", err)
	}

	ch := make(chan answer, 1)
	go func() {
		line, err := r.ReadString('\n')
		ch <- answer{line: line, err: err}
	}()

	var a answer
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a = <-ch:
	}

	if errors.Is(a.err, io.EOF) && a.line == "" {
		return false, ErrNoAnswer
	}
	if a.err != nil && !errors.Is(a.err, io.EOF) {
		return false, fmt.Errorf("failed to read answer: %w", a.err)
	}
	return IsAffirmative(a.line), nil
}

func (u *Uninstaller) record(report *Report, res Result) {
	report.Results = append(report.Results, res)

	entry := audit.Entry{
		Target: res.Target.Name,
		Path:   res.Target.Path,
		Kind:   string(res.Target.Kind),
		Action: string(res.Action),
		Backup: res.Backup,
		DryRun: u.DryRun,
	}
	if res.Err != nil {
		entry.Error = res.Err.Error()
	}
	if err := audit.Log(entry); err != nil {
		logger.Warn("failed to write audit entry", "target", res.Target.Name, "error", err)
	}
}

func (u *Uninstaller) input() io.Reader {
	if u.In == nil {
		return os.Stdin
	}
	return u.In
}

func (u *Uninstaller) output() io.Writer {
	if u.Out == nil {
		return os.Stdout
	}
	return u.Out
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

// exists follows symlinks; a dangling link or an unreadable parent counts as
// absent.
func exists(path string) bool {
	_, err := os.Stat(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Debug("stat failed, treating as absent", "path", path, "error", err)
	}
	return err == nil
}

// inspect checks that the entry at t.Path can be removed as t.Kind.
func inspect(t Target) error {
	info, err := os.Lstat(t.Path)
	if err != nil {
		return err
	}

	switch t.Kind {
	case KindFile:
		if info.IsDir() {
			return ErrNotAFile
		}
	case KindTree:
		if info.Mode()&fs.ModeSymlink != 0 {
			return ErrSymlinkTree
		}
		if !info.IsDir() {
			return ErrNotADirectory
		}
	default:
		return fmt.Errorf("unknown target kind %q", t.Kind)
	}
	return nil
}

func remove(t Target) error {
	if err := inspect(t); err != nil {
		return err
	}
	if t.Kind == KindFile {
		return os.Remove(t.Path)
	}
	return os.RemoveAll(t.Path)
}
