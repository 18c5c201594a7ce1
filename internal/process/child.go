package process

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/pgstack/pgstack/internal/fileutil"
	"github.com/pgstack/pgstack/internal/sentinel"
)

// ErrAlreadyStarted is returned when Start is called on a child that is
// already running. Callers must Stop the child before starting it again.
const ErrAlreadyStarted = sentinel.Error("process already started")

// ErrNilCmd is returned when Start is called with a nil *exec.Cmd.
const ErrNilCmd = sentinel.Error("cmd must not be nil")

// ErrEmptyCmdPath is returned when Start is called with an empty cmd.Path.
const ErrEmptyCmdPath = sentinel.Error("cmd.Path must not be empty")

// ErrEmptyDir is returned when Start is called with an empty working directory.
const ErrEmptyDir = sentinel.Error("working directory must not be empty")

// ErrNotRunning is returned by Signal when no child is running.
const ErrNotRunning = sentinel.Error("process is not running")

// Child owns the lifecycle of a single supervised child process.
//
// Child is not safe for concurrent use. The controller has exactly one
// mutator (the supervisor loop), which serializes all calls; the only
// concurrency is the internal cmd.Wait goroutine and the exited broadcast
// channel it closes.
type Child struct {
	cmd         *exec.Cmd
	waitDone    <-chan error    // receives the cmd.Wait result; consumed once by Stop
	exited      <-chan struct{} // closed when the child exits; readable by any goroutine
	logFiles    LogFiles
	name        string
	owner       *fileutil.Owner // principal the child runs as; nil keeps the parent identity
	log         *slog.Logger
	stopTimeout time.Duration
}

// NewChild creates a Child with the given name, run-as principal, logger,
// and stop timeout. A nil owner runs the child as the controlling process
// itself (used by tests and one-shot commands that need no privilege
// drop). If stopTimeout is zero, DefaultStopTimeout applies during Close.
// Panics on an empty name since the name appears in every error and log
// line of the lifecycle.
func NewChild(name string, owner *fileutil.Owner, logger *slog.Logger, stopTimeout time.Duration) Child {
	if name == "" {
		panic("pgstack: process name must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Child{name: name, owner: owner, log: logger, stopTimeout: stopTimeout}
}

// Start sets up log files, applies the run-as credential and
// parent-death signal, and launches the command. The cmd must already
// have Path and Args set; Start sets Dir, Stdout, Stderr, and
// SysProcAttr.
//
// Exactly one goroutine calling cmd.Wait is started here. Two channels
// come out of it: waitDone (buffered, consumed once by Stop) and exited
// (closed on exit, broadcast to any number of observers such as
// readiness polls and the supervisor loop).
func (c *Child) Start(cmd *exec.Cmd, dir string) error {
	if cmd == nil {
		return ErrNilCmd
	}
	if cmd.Path == "" {
		return ErrEmptyCmdPath
	}
	if dir == "" {
		return ErrEmptyDir
	}
	if c.cmd != nil {
		return ErrAlreadyStarted
	}

	cmd.Dir = dir
	configureSysProcAttr(cmd, c.owner)

	logFiles, err := NewLogFiles(dir, c.name)
	if err != nil {
		return fmt.Errorf("create %s logs: %w", c.name, err)
	}
	cmd.Stdout = logFiles.stdoutFile
	cmd.Stderr = logFiles.stderrFile

	c.log.Debug("starting child process", "process", c.name, "argv", cmd.Args)
	if err := cmd.Start(); err != nil {
		logFiles.Close()
		return fmt.Errorf("start %s process: %w", c.name, err)
	}
	c.cmd = cmd
	c.logFiles = logFiles

	done := make(chan error, 1)
	exited := make(chan struct{})
	go func() {
		done <- cmd.Wait()
		close(exited)
	}()
	c.waitDone = done
	c.exited = exited

	return nil
}

// Signal delivers sig to the running child. Used for the engine's
// settings-reload request (SIGHUP).
func (c *Child) Signal(sig os.Signal) error {
	if c.cmd == nil || c.cmd.Process == nil {
		return ErrNotRunning
	}
	if err := c.cmd.Process.Signal(sig); err != nil {
		return fmt.Errorf("signal %s to %s: %w", sig, c.name, err)
	}
	return nil
}

// Stop terminates the child with the given timeout. After Stop returns,
// Running reports false regardless of the outcome, because the child is
// no longer in a known-running state. Safe to call when nothing was
// started; returns nil in that case.
func (c *Child) Stop(timeout time.Duration) error {
	if c.cmd == nil || c.cmd.Process == nil {
		c.cmd = nil
		c.waitDone = nil
		c.exited = nil
		return nil
	}
	pid := c.cmd.Process.Pid
	err := stopWithDone(c.cmd, c.waitDone, timeout, c.name)
	if err != nil {
		c.log.Warn("process stop failed; process may be orphaned",
			"process", c.name, "pid", pid, "error", err)
	}
	c.cmd = nil
	c.waitDone = nil
	c.exited = nil
	return err
}

// Close releases log file handles. A child that already exited on its
// own is reaped quietly; a child still running is stopped first as a
// safety net using the configured stop timeout. Callers should normally
// Stop before Close.
func (c *Child) Close() {
	if c.cmd != nil {
		select {
		case <-c.exited:
			// Normal end of supervision: the child is gone, only the
			// Wait result remains to be collected.
			err := <-c.waitDone
			c.log.Debug("reaped exited child during Close",
				"process", c.name, "error", err)
			c.cmd = nil
			c.waitDone = nil
			c.exited = nil
		default:
			c.log.Warn("process.Close called without Stop; stopping automatically",
				"process", c.name)
			timeout := c.stopTimeout
			if timeout <= 0 {
				timeout = DefaultStopTimeout
			}
			if err := c.Stop(timeout); err != nil {
				c.log.Warn("auto-stop during Close failed",
					"process", c.name, "error", err)
			}
		}
	}
	c.logFiles.Close()
}

// Logger returns the logger used by this child.
func (c *Child) Logger() *slog.Logger {
	return c.log
}

// Exited returns a channel closed when the child exits, or nil if no
// child has been started (or it was already stopped). Safe to select on
// from multiple goroutines.
func (c *Child) Exited() <-chan struct{} {
	return c.exited
}

// Running reports whether a child has been started and not yet reaped by
// Stop. The engine may have exited on its own; observe Exited for that.
func (c *Child) Running() bool {
	if c.cmd == nil {
		return false
	}
	select {
	case <-c.exited:
		return false
	default:
		return true
	}
}
