package uninstall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/akneni/tynkerbase-uninstall/internal/audit"
	"github.com/akneni/tynkerbase-uninstall/internal/backup"
	"github.com/akneni/tynkerbase-uninstall/internal/constants"
	"github.com/akneni/tynkerbase-uninstall/internal/hooks"
)

// fixture is a fake root holding the three agent paths.
type fixture struct {
	root         string
	binary       string
	installDir   string
	projectsRoot string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	return &fixture{
		root:         root,
		binary:       filepath.Join(root, "usr", "local", "bin", "tyb_agent"),
		installDir:   filepath.Join(root, "usr", "share", "tynkerbase-agent"),
		projectsRoot: filepath.Join(root, "tyb-root"),
	}
}

func (f *fixture) createBinary(t *testing.T) {
	t.Helper()
	mustWrite(t, f.binary, "\x7fELF")
}

func (f *fixture) createInstallDir(t *testing.T) {
	t.Helper()
	mustWrite(t, filepath.Join(f.installDir, "lib", "agent.so"), "so")
	mustWrite(t, filepath.Join(f.installDir, "VERSION"), "0.1.0")
}

func (f *fixture) createProjects(t *testing.T) {
	t.Helper()
	mustWrite(t, filepath.Join(f.projectsRoot, "webapp", "main.py"), "print('hi')")
	mustWrite(t, filepath.Join(f.projectsRoot, "webapp", "Dockerfile"), "FROM python")
}

func (f *fixture) uninstaller(answer string) (*Uninstaller, *bytes.Buffer) {
	var out bytes.Buffer
	return &Uninstaller{
		Targets: NewTargets(f.binary, f.installDir, f.projectsRoot),
		In:      strings.NewReader(answer),
		Out:     &out,
	}, &out
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func pathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func TestDefaultTargets(t *testing.T) {
	targets := DefaultTargets()
	want := []Target{
		{Name: NameAgentBinary, Path: "/usr/local/bin/tyb_agent", Kind: KindFile},
		{Name: NameInstallDir, Path: "/usr/share/tynkerbase-agent", Kind: KindTree},
		{Name: NameProjectsRoot, Path: "/tyb-root", Kind: KindTree, Confirm: true},
	}
	if len(targets) != len(want) {
		t.Fatalf("got %d targets, want %d", len(targets), len(want))
	}
	for i := range want {
		if targets[i] != want[i] {
			t.Errorf("target %d = %+v, want %+v", i, targets[i], want[i])
		}
	}
}

func TestPromptText(t *testing.T) {
	want := "Do you also want to uninstall all your tynkerbase projects? (y/n)  "
	if constants.ProjectsPrompt != want {
		t.Errorf("prompt = %q, want %q", constants.ProjectsPrompt, want)
	}
}

func TestIsAffirmative(t *testing.T) {
	tests := []struct {
		answer string
		want   bool
	}{
		{"y", true},
		{"Y", true},
		{"yes", true},
		{"YES", true},
		{"Yes", true},
		{" yes ", true},
		{"\tyes\n", true},
		{"y\r\n", true},
		{"n", false},
		{"no", false},
		{"", false},
		{"\n", false},
		{"maybe", false},
		{"yesplease", false},
		{"ye", false},
		{"y e s", false},
	}

	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			if got := IsAffirmative(tt.answer); got != tt.want {
				t.Errorf("IsAffirmative(%q) = %v, want %v", tt.answer, got, tt.want)
			}
		})
	}
}

func TestRunNothingInstalledTwice(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 2; i++ {
		u, out := f.uninstaller("")
		report, err := u.Run(context.Background())
		if err != nil {
			t.Fatalf("run %d: Run() error = %v", i, err)
		}
		if len(report.Removed()) != 0 {
			t.Errorf("run %d: removed %v, want nothing", i, report.Removed())
		}
		if out.Len() != 0 {
			t.Errorf("run %d: unexpected output %q", i, out.String())
		}
	}
}

func TestRunSecondRunIsNoop(t *testing.T) {
	f := newFixture(t)
	f.createBinary(t)
	f.createInstallDir(t)
	f.createProjects(t)

	u, _ := f.uninstaller("y\n")
	if _, err := u.Run(context.Background()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	u, out := f.uninstaller("y\n")
	report, err := u.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if len(report.Removed()) != 0 {
		t.Errorf("second run removed %v", report.Removed())
	}
	if out.Len() != 0 {
		t.Errorf("second run should not prompt, got %q", out.String())
	}
}

func TestRunBinaryOnly(t *testing.T) {
	f := newFixture(t)
	f.createBinary(t)
	bystander := filepath.Join(f.root, "usr", "local", "bin", "other_tool")
	mustWrite(t, bystander, "keep")

	u, out := f.uninstaller("y\n")
	report, err := u.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if pathExists(f.binary) {
		t.Error("agent binary should be removed")
	}
	if !pathExists(bystander) {
		t.Error("unrelated file was removed")
	}
	if got := report.Removed(); len(got) != 1 || got[0] != f.binary {
		t.Errorf("Removed() = %v, want [%s]", got, f.binary)
	}
	if report.Prompted() || out.Len() != 0 {
		t.Errorf("should not prompt when projects root is absent, output %q", out.String())
	}
}

func TestRunDeclineKeepsProjects(t *testing.T) {
	f := newFixture(t)
	f.createProjects(t)

	u, out := f.uninstaller("no\n")
	report, err := u.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if out.String() != constants.ProjectsPrompt {
		t.Errorf("output = %q, want exactly the prompt", out.String())
	}
	content, err := os.ReadFile(filepath.Join(f.projectsRoot, "webapp", "main.py"))
	if err != nil {
		t.Fatalf("project file missing: %v", err)
	}
	if string(content) != "print('hi')" {
		t.Errorf("project file changed: %q", content)
	}
	last := report.Results[len(report.Results)-1]
	if last.Action != ActionDeclined {
		t.Errorf("last action = %q, want %q", last.Action, ActionDeclined)
	}
}

func TestRunAffirmativeAnswersRemoveProjects(t *testing.T) {
	for _, answer := range []string{"y\n", "Y\n", "yes\n", "YES\n", " yes \n", "yes"} {
		t.Run(strings.TrimSpace(answer), func(t *testing.T) {
			f := newFixture(t)
			f.createProjects(t)

			u, _ := f.uninstaller(answer)
			if _, err := u.Run(context.Background()); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if pathExists(f.projectsRoot) {
				t.Errorf("answer %q should remove projects root", answer)
			}
		})
	}
}

func TestRunNonAffirmativeAnswersKeepProjects(t *testing.T) {
	for _, answer := range []string{"n\n", "\n", "maybe\n", "yesplease\n", "no"} {
		t.Run(strings.TrimSpace(answer), func(t *testing.T) {
			f := newFixture(t)
			f.createProjects(t)

			u, _ := f.uninstaller(answer)
			if _, err := u.Run(context.Background()); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if !pathExists(filepath.Join(f.projectsRoot, "webapp", "Dockerfile")) {
				t.Errorf("answer %q should keep projects root", answer)
			}
		})
	}
}

func TestRunRemovesEverything(t *testing.T) {
	f := newFixture(t)
	f.createBinary(t)
	f.createInstallDir(t)
	f.createProjects(t)

	u, out := f.uninstaller("y\n")
	report, err := u.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for _, p := range []string{f.binary, f.installDir, f.projectsRoot} {
		if pathExists(p) {
			t.Errorf("%s still exists", p)
		}
	}
	if got := report.Removed(); len(got) != 3 {
		t.Errorf("Removed() = %v, want 3 paths", got)
	}
	if out.String() != constants.ProjectsPrompt {
		t.Errorf("output = %q, want exactly the prompt", out.String())
	}
}

func TestRunBinaryIsDirectoryIsFatal(t *testing.T) {
	f := newFixture(t)
	if err := os.MkdirAll(f.binary, 0755); err != nil {
		t.Fatal(err)
	}
	f.createInstallDir(t)

	u, _ := f.uninstaller("y\n")
	report, err := u.Run(context.Background())
	if !errors.Is(err, ErrNotAFile) {
		t.Fatalf("Run() error = %v, want ErrNotAFile", err)
	}
	if !pathExists(f.installDir) {
		t.Error("later targets must not run after a failure")
	}
	last := report.Results[len(report.Results)-1]
	if last.Action != ActionFailed || last.Err == nil {
		t.Errorf("last result = %+v, want failed with error", last)
	}
}

func TestRunNoRollbackAfterFailure(t *testing.T) {
	f := newFixture(t)
	f.createBinary(t)
	// install dir exists but is a file, so recursive removal fails
	mustWrite(t, f.installDir, "not a dir")

	u, _ := f.uninstaller("")
	_, err := u.Run(context.Background())
	if !errors.Is(err, ErrNotADirectory) {
		t.Fatalf("Run() error = %v, want ErrNotADirectory", err)
	}
	if pathExists(f.binary) {
		t.Error("binary removal should not be rolled back")
	}
	if !strings.Contains(err.Error(), f.installDir) {
		t.Errorf("error should name the path: %v", err)
	}
}

func TestRunSymlinkedProjectsRootRefused(t *testing.T) {
	f := newFixture(t)
	linked := filepath.Join(f.root, "elsewhere")
	mustWrite(t, filepath.Join(linked, "keep.txt"), "keep")
	if err := os.Symlink(linked, f.projectsRoot); err != nil {
		t.Fatal(err)
	}

	u, _ := f.uninstaller("y\n")
	_, err := u.Run(context.Background())
	if !errors.Is(err, ErrSymlinkTree) {
		t.Fatalf("Run() error = %v, want ErrSymlinkTree", err)
	}
	if !pathExists(filepath.Join(linked, "keep.txt")) {
		t.Error("symlink target contents must survive")
	}
}

func TestRunSymlinkedBinaryRemovesLinkOnly(t *testing.T) {
	f := newFixture(t)
	linked := filepath.Join(f.root, "opt", "tyb_agent")
	mustWrite(t, linked, "bin")
	if err := os.MkdirAll(filepath.Dir(f.binary), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(linked, f.binary); err != nil {
		t.Fatal(err)
	}

	u, _ := f.uninstaller("")
	if _, err := u.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if pathExists(f.binary) {
		t.Error("symlink should be removed")
	}
	if !pathExists(linked) {
		t.Error("symlink target should be kept")
	}
}

func TestRunDanglingSymlinkCountsAsAbsent(t *testing.T) {
	f := newFixture(t)
	if err := os.MkdirAll(filepath.Dir(f.binary), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(f.root, "missing"), f.binary); err != nil {
		t.Fatal(err)
	}

	u, _ := f.uninstaller("")
	report, err := u.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Results[0].Action != ActionAbsent {
		t.Errorf("action = %q, want absent", report.Results[0].Action)
	}
}

func TestRunDryRun(t *testing.T) {
	f := newFixture(t)
	f.createBinary(t)
	f.createInstallDir(t)
	f.createProjects(t)
	marker := filepath.Join(f.root, "hook-ran")

	u, out := f.uninstaller("y\n")
	u.DryRun = true
	u.Hooks = []hooks.Hook{{Name: "marker", Run: "touch " + marker}}
	u.BackupDir = filepath.Join(f.root, "backups")

	report, err := u.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for _, p := range []string{f.binary, f.installDir, f.projectsRoot} {
		if !pathExists(p) {
			t.Errorf("dry run removed %s", p)
		}
	}
	for _, res := range report.Results {
		if res.Action != ActionWouldRemove {
			t.Errorf("%s action = %q, want %q", res.Target.Name, res.Action, ActionWouldRemove)
		}
	}
	if pathExists(marker) || pathExists(u.BackupDir) {
		t.Error("dry run must not run hooks or write backups")
	}
	if out.String() != constants.ProjectsPrompt {
		t.Errorf("dry run should still prompt, got %q", out.String())
	}
}

func TestRunHookFailureRemovesNothing(t *testing.T) {
	f := newFixture(t)
	f.createBinary(t)

	u, _ := f.uninstaller("y\n")
	u.Hooks = []hooks.Hook{{Name: "stop agent", Run: "exit 1"}}

	_, err := u.Run(context.Background())
	var exitErr *hooks.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("Run() error = %v, want hook exit error", err)
	}
	if !pathExists(f.binary) {
		t.Error("nothing should be removed when a hook fails")
	}
}

func TestRunHooksBeforeRemoval(t *testing.T) {
	f := newFixture(t)
	f.createBinary(t)
	copyPath := filepath.Join(f.root, "seen")

	u, _ := f.uninstaller("")
	// the hook sees the binary still in place
	u.Hooks = []hooks.Hook{{Run: "cp " + f.binary + " " + copyPath}}

	if _, err := u.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !pathExists(copyPath) {
		t.Error("hook should run before the binary is removed")
	}
}

func TestRunBackupBeforeRemoval(t *testing.T) {
	f := newFixture(t)
	f.createProjects(t)
	backups := filepath.Join(f.root, "backups")

	u, _ := f.uninstaller("yes\n")
	u.BackupDir = backups

	report, err := u.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if pathExists(f.projectsRoot) {
		t.Fatal("projects root should be removed")
	}

	last := report.Results[len(report.Results)-1]
	if last.Backup == "" {
		t.Fatal("expected backup path in result")
	}
	restored := filepath.Join(f.root, "restored")
	if err := backup.Restore(last.Backup, restored); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if !pathExists(filepath.Join(restored, "webapp", "main.py")) {
		t.Error("backup does not contain project files")
	}
}

func TestRunBackupSkippedWhenDeclined(t *testing.T) {
	f := newFixture(t)
	f.createProjects(t)
	backups := filepath.Join(f.root, "backups")

	u, _ := f.uninstaller("n\n")
	u.BackupDir = backups

	if _, err := u.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if pathExists(backups) {
		t.Error("no backup should be written when removal is declined")
	}
}

func TestRunBackupFailureKeepsProjects(t *testing.T) {
	f := newFixture(t)
	f.createProjects(t)
	blocker := filepath.Join(f.root, "blocker")
	mustWrite(t, blocker, "")

	u, _ := f.uninstaller("y\n")
	u.BackupDir = filepath.Join(blocker, "backups")

	if _, err := u.Run(context.Background()); err == nil {
		t.Fatal("expected backup error")
	}
	if !pathExists(f.projectsRoot) {
		t.Error("projects root must be kept when the backup fails")
	}
}

func TestRunCancelledContext(t *testing.T) {
	f := newFixture(t)
	f.createBinary(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	u, _ := f.uninstaller("")
	if _, err := u.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if !pathExists(f.binary) {
		t.Error("cancelled run should not remove anything")
	}
}

func TestRunWritesAuditLog(t *testing.T) {
	defer audit.Reset()

	f := newFixture(t)
	f.createBinary(t)
	f.createProjects(t)

	logPath := filepath.Join(f.root, "audit.log")
	if err := audit.Init(logPath); err != nil {
		t.Fatal(err)
	}

	u, _ := f.uninstaller("n\n")
	if _, err := u.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	audit.Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 audit lines, got %d: %s", len(lines), data)
	}

	wantActions := []string{"removed", "absent", "declined"}
	for i, line := range lines {
		var e audit.Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		if e.Action != wantActions[i] {
			t.Errorf("line %d action = %q, want %q", i, e.Action, wantActions[i])
		}
	}
}

func TestRunClosedInputWithoutAnswer(t *testing.T) {
	f := newFixture(t)
	f.createBinary(t)
	f.createProjects(t)

	u, out := f.uninstaller("")
	report, err := u.Run(context.Background())
	if !errors.Is(err, ErrNoAnswer) {
		t.Fatalf("Run() error = %v, want ErrNoAnswer", err)
	}
	if out.String() != constants.ProjectsPrompt {
		t.Errorf("output = %q, want the prompt", out.String())
	}
	if !pathExists(filepath.Join(f.projectsRoot, "webapp", "main.py")) {
		t.Error("projects root must be kept when no answer is given")
	}
	if pathExists(f.binary) {
		t.Error("binary removal happens before the prompt and stays done")
	}
	last := report.Results[len(report.Results)-1]
	if last.Action != ActionFailed || !errors.Is(last.Err, ErrNoAnswer) {
		t.Errorf("last result = %+v, want failed with ErrNoAnswer", last)
	}
}

func TestRunEmptyLineIsDecline(t *testing.T) {
	f := newFixture(t)
	f.createProjects(t)

	u, _ := f.uninstaller("\n")
	if _, err := u.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v, want a plain decline", err)
	}
	if !pathExists(f.projectsRoot) {
		t.Error("an empty line should keep the projects root")
	}
}

func TestRunPartialLineBeforeEOF(t *testing.T) {
	f := newFixture(t)
	f.createProjects(t)

	u, _ := f.uninstaller("yes")
	if _, err := u.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if pathExists(f.projectsRoot) {
		t.Error("an unterminated \"yes\" should still be an answer")
	}
}

func TestRunCancelledAtPrompt(t *testing.T) {
	f := newFixture(t)
	f.createProjects(t)

	pr, pw := io.Pipe()
	defer pw.Close()

	var out bytes.Buffer
	u := &Uninstaller{
		Targets: NewTargets(f.binary, f.installDir, f.projectsRoot),
		In:      pr,
		Out:     &out,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := u.Run(ctx)
		done <- err
	}()

	// let Run reach the blocking read, then interrupt it
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}

	// an answer arriving after the interrupt changes nothing
	go pw.Write([]byte("y\n"))
	time.Sleep(20 * time.Millisecond)

	if !pathExists(filepath.Join(f.projectsRoot, "webapp", "main.py")) {
		t.Error("projects root must survive an interrupted prompt")
	}
}

func TestRunBackupSkippedForSymlinkedProjectsRoot(t *testing.T) {
	f := newFixture(t)
	linked := filepath.Join(f.root, "elsewhere")
	mustWrite(t, filepath.Join(linked, "keep.txt"), "keep")
	if err := os.Symlink(linked, f.projectsRoot); err != nil {
		t.Fatal(err)
	}
	backups := filepath.Join(f.root, "backups")

	u, _ := f.uninstaller("y\n")
	u.BackupDir = backups

	if _, err := u.Run(context.Background()); !errors.Is(err, ErrSymlinkTree) {
		t.Fatalf("Run() error = %v, want ErrSymlinkTree", err)
	}
	if pathExists(backups) {
		t.Error("no archive should be written for a target that cannot be removed")
	}
}
