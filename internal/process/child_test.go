package process

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"testing"
	"time"
)

// makeSignalExitError produces a real *exec.ExitError caused by the given
// signal, by starting a sleep and killing it.
func makeSignalExitError(t *testing.T, sig syscall.Signal) error {
	t.Helper()

	cmd := exec.Command("sleep", "60")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start sleep: %v", err)
	}
	if err := cmd.Process.Signal(sig); err != nil {
		t.Fatalf("signal sleep: %v", err)
	}
	err := cmd.Wait()
	if err == nil {
		t.Fatal("expected non-nil error from signaled process")
	}
	return err
}

func TestExpectSignalExit(t *testing.T) {
	t.Parallel()

	type testCase struct {
		err     error
		signal  syscall.Signal
		wantErr bool
	}

	tests := map[string]testCase{
		"nil error returns nil": {
			wantErr: false,
		},
		"SIGTERM exit is expected": {
			signal:  syscall.SIGTERM,
			wantErr: false,
		},
		"SIGKILL exit is expected": {
			signal:  syscall.SIGKILL,
			wantErr: false,
		},
		"other signal is unexpected": {
			signal:  syscall.SIGINT,
			wantErr: true,
		},
		"non-ExitError is unexpected": {
			err:     errors.New("some other error"),
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			inputErr := tc.err
			if inputErr == nil && tc.signal != 0 {
				inputErr = makeSignalExitError(t, tc.signal)
			}

			got := expectSignalExit(inputErr, "test-proc")

			if tc.wantErr && got == nil {
				t.Fatal("expected error, got nil")
			}
			if !tc.wantErr && got != nil {
				t.Fatalf("expected nil, got %v", got)
			}
		})
	}
}

func TestChildStartValidation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := NewChild("test-proc", nil, nil, time.Second)

	if err := c.Start(nil, dir); !errors.Is(err, ErrNilCmd) {
		t.Fatalf("nil cmd: expected ErrNilCmd, got %v", err)
	}
	if err := c.Start(&exec.Cmd{}, dir); !errors.Is(err, ErrEmptyCmdPath) {
		t.Fatalf("empty path: expected ErrEmptyCmdPath, got %v", err)
	}
	if err := c.Start(exec.Command("sleep", "1"), ""); !errors.Is(err, ErrEmptyDir) {
		t.Fatalf("empty dir: expected ErrEmptyDir, got %v", err)
	}
}

func TestChildLifecycle(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := NewChild("test-proc", nil, nil, time.Second)

	if c.Running() {
		t.Fatal("Running before Start")
	}
	if err := c.Start(exec.Command("sleep", "60"), dir); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Close()

	if !c.Running() {
		t.Fatal("Running = false after Start")
	}
	if c.Exited() == nil {
		t.Fatal("Exited channel is nil after Start")
	}

	// A second Start while running must be rejected.
	if err := c.Start(exec.Command("sleep", "60"), dir); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}

	if err := c.Stop(5 * time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if c.Running() {
		t.Fatal("Running = true after Stop")
	}

	// Stop on a stopped child is a no-op.
	if err := c.Stop(time.Second); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestChildExitedObservesNaturalExit(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := NewChild("test-proc", nil, nil, time.Second)

	if err := c.Start(exec.Command("true"), dir); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Close()

	select {
	case <-c.Exited():
	case <-time.After(10 * time.Second):
		t.Fatal("Exited channel not closed after process exit")
	}
	if c.Running() {
		t.Fatal("Running = true after natural exit")
	}
}

func TestChildCloseAfterNaturalExitIsQuiet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	c := NewChild("test-proc", nil, logger, time.Second)

	if err := c.Start(exec.Command("true"), dir); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-c.Exited():
	case <-time.After(10 * time.Second):
		t.Fatal("Exited channel not closed after process exit")
	}

	c.Close()

	if out := buf.String(); strings.Contains(out, "WARN") {
		t.Errorf("Close after natural exit logged a warning:\n%s", out)
	}
	if c.Running() {
		t.Fatal("Running = true after Close")
	}
}

func TestChildCloseWhileRunningAutoStops(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	c := NewChild("test-proc", nil, logger, 5*time.Second)

	if err := c.Start(exec.Command("sleep", "60"), dir); err != nil {
		t.Fatalf("Start: %v", err)
	}

	c.Close()

	if c.Running() {
		t.Fatal("Running = true after Close")
	}
	if out := buf.String(); !strings.Contains(out, "without Stop") {
		t.Errorf("Close on a running child did not warn:\n%s", out)
	}
}

func TestChildSignal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := NewChild("test-proc", nil, nil, time.Second)

	if err := c.Signal(syscall.SIGHUP); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Signal before Start: expected ErrNotRunning, got %v", err)
	}

	if err := c.Start(exec.Command("sleep", "60"), dir); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Close()

	// SIGHUP terminates sleep (it installs no handler); observing the
	// exit proves delivery.
	if err := c.Signal(syscall.SIGHUP); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	select {
	case <-c.Exited():
	case <-time.After(10 * time.Second):
		t.Fatal("signal was not delivered")
	}

	_ = c.Stop(time.Second)
}

func TestChildCreatesLogFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := NewChild("engine", nil, nil, time.Second)

	if err := c.Start(exec.Command("sh", "-c", "echo out; echo err >&2"), dir); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-c.Exited()
	stdoutPath := c.logFiles.StdoutPath()
	stderrPath := c.logFiles.StderrPath()
	_ = c.Stop(time.Second)
	c.Close()

	stdout, err := os.ReadFile(stdoutPath)
	if err != nil {
		t.Fatalf("read stdout log: %v", err)
	}
	if string(stdout) != "out\n" {
		t.Fatalf("stdout log = %q, want %q", stdout, "out\n")
	}
	stderr, err := os.ReadFile(stderrPath)
	if err != nil {
		t.Fatalf("read stderr log: %v", err)
	}
	if string(stderr) != "err\n" {
		t.Fatalf("stderr log = %q, want %q", stderr, "err\n")
	}
}

func TestRunCapturesFailureOutput(t *testing.T) {
	t.Parallel()

	err := Run(context.Background(), RunOptions{},
		"sh", "-c", "echo doomed >&2; exit 3")
	if err == nil {
		t.Fatal("expected error from failing command")
	}
	if got := err.Error(); !strings.Contains(got, "doomed") {
		t.Fatalf("error %q does not include command output", got)
	}
}

func TestRunSuccess(t *testing.T) {
	t.Parallel()

	if err := Run(context.Background(), RunOptions{}, "true"); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunFeedsStdin(t *testing.T) {
	t.Parallel()

	// grep exits 0 only if the stdin payload matched.
	err := Run(context.Background(), RunOptions{Stdin: strings.NewReader("needle\n")},
		"grep", "-q", "needle")
	if err != nil {
		t.Fatalf("Run with stdin: %v", err)
	}
}
