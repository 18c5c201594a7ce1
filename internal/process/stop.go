package process

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

// DefaultStopTimeout is the fallback timeout for stopping a child when the
// caller did not configure one.
const DefaultStopTimeout = 30 * time.Second

// termGracePeriod is the maximum time to wait for a child to exit after
// SIGTERM before escalating to SIGKILL. Clamped to the overall stop
// timeout so the kill always fires while the total timer is still running.
const termGracePeriod = 20 * time.Second

// killDrainTimeout bounds the wait on the done channel after SIGKILL has
// been sent (or after the child already exited). SIGKILL cannot be caught,
// so cmd.Wait should return almost immediately; this is a safety net
// against stuck I/O keeping Wait from returning.
const killDrainTimeout = 10 * time.Second

// drainDone reads from the done channel with timeout as a hard upper
// bound. Returns true and the cmd.Wait error if the channel delivered in
// time, false and nil if the timeout elapsed.
func drainDone(done <-chan error, timeout time.Duration) (bool, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case err := <-done:
		return true, err
	case <-t.C:
		return false, nil
	}
}

// stopWithDone performs the SIGTERM-then-SIGKILL shutdown sequence using a
// pre-existing done channel whose goroutine already calls cmd.Wait. A
// second cmd.Wait call would be undefined behavior, so the channel must
// receive the result of exactly one Wait.
//
// SIGTERM requests a graceful ("smart") shutdown from the engine; SIGKILL
// is scheduled after termGracePeriod as an escalation and canceled if the
// child exits first. The caller clears its cmd/done references after this
// returns.
func stopWithDone(cmd *exec.Cmd, done <-chan error, timeout time.Duration, name string) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if done == nil {
		return fmt.Errorf("%s: done channel must not be nil", name)
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Child already exited; drain the wait goroutine.
		ok, waitErr := drainDone(done, killDrainTimeout)
		if !ok {
			return fmt.Errorf("%s: timed out draining process after signal failure", name)
		}
		return expectSignalExit(waitErr, name)
	}

	grace := min(termGracePeriod, timeout)
	killTimer := time.AfterFunc(grace, func() {
		// Kill on an already-finished process returns a harmless
		// "process already finished" error, discarded here.
		_ = cmd.Process.Kill()
	})
	defer killTimer.Stop()

	totalTimer := time.NewTimer(timeout)
	defer totalTimer.Stop()

	select {
	case err := <-done:
		return expectSignalExit(err, name)
	case <-totalTimer.C:
		ok, waitErr := drainDone(done, killDrainTimeout)
		if !ok {
			return fmt.Errorf("%s: timed out waiting for process to exit after SIGKILL", name)
		}
		if err := expectSignalExit(waitErr, name); err != nil {
			return fmt.Errorf("%s stop timeout: %w", name, err)
		}
		return nil
	}
}

// expectSignalExit interprets an error from cmd.Wait after a termination
// signal was sent. Exits caused by SIGTERM or SIGKILL are expected and
// count as successful stops.
func expectSignalExit(err error, name string) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			sig := status.Signal()
			if sig == syscall.SIGTERM || sig == syscall.SIGKILL {
				return nil
			}
		}
	}
	return fmt.Errorf("%s: %w", name, err)
}
