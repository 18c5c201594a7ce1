package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/pgstack/pgstack/internal/sentinel"
)

// Sentinel errors returned by the polling helpers. Immutable constants
// safe for use in wrapped error chain comparison with errors.Is.
const (
	// ErrIntervalNotPositive indicates a non-positive poll interval.
	ErrIntervalNotPositive = sentinel.Error("interval must be positive")

	// ErrTimeoutNotPositive indicates a non-positive timeout.
	ErrTimeoutNotPositive = sentinel.Error("timeout must be positive")

	// ErrProcessExited indicates the child exited before becoming ready.
	ErrProcessExited = sentinel.Error("process exited before becoming ready")
)

// Check is a condition polled by WaitReady and WaitCondition. The context
// is canceled when the wait is canceled (or, for WaitReady, times out),
// letting in-flight work such as connection attempts exit promptly. The
// attempt parameter is 1-based. Return true when the condition holds,
// false to keep polling, or a non-nil error to abort the wait.
type Check func(ctx context.Context, attempt int) (ok bool, err error)

// WaitConfig configures a polling wait.
type WaitConfig struct {
	Interval      time.Duration   // fixed poll interval; no backoff
	Timeout       time.Duration   // overall timeout; WaitCondition ignores it
	Name          string          // condition name for logging and errors
	Logger        *slog.Logger    // optional, defaults to slog.Default()
	ProcessExited <-chan struct{} // if non-nil, abort as soon as it is closed
}

func (cfg WaitConfig) logger() *slog.Logger {
	if cfg.Logger == nil {
		return slog.Default()
	}
	return cfg.Logger
}

// condition wraps check with the early-exit guard and attempt counting
// shared by both wait flavors. The attempt counter needs no
// synchronization: the poller invokes the condition sequentially.
func (cfg WaitConfig) condition(check Check) wait.ConditionWithContextFunc {
	log := cfg.logger()
	attempt := 0
	return func(pollCtx context.Context) (bool, error) {
		// Abort promptly if the watched process died; polling out the
		// rest of an unbounded wait against a dead engine is useless.
		if cfg.ProcessExited != nil {
			select {
			case <-cfg.ProcessExited:
				return false, fmt.Errorf("process %s: %w", cfg.Name, ErrProcessExited)
			default:
			}
		}

		attempt++
		ok, err := check(pollCtx, attempt)
		if err != nil {
			return false, err
		}
		if ok {
			log.Debug("wait succeeded", "name", cfg.Name, "attempt", attempt)
		}
		return ok, nil
	}
}

// WaitReady polls check at the fixed interval until it reports ready, a
// check error aborts, or the timeout expires.
func WaitReady(ctx context.Context, cfg WaitConfig, check Check) error {
	if cfg.Name == "" {
		return errors.New("wait ready: name must not be empty")
	}
	if cfg.Interval <= 0 {
		return fmt.Errorf("wait for %s: %w", cfg.Name, ErrIntervalNotPositive)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("wait for %s: %w", cfg.Name, ErrTimeoutNotPositive)
	}

	if err := wait.PollUntilContextTimeout(ctx, cfg.Interval, cfg.Timeout, true,
		cfg.condition(check)); err != nil {
		return fmt.Errorf("wait for %s readiness: %w", cfg.Name, err)
	}
	return nil
}

// WaitCondition polls check at the fixed interval with no upper bound.
// The wait ends only when the condition holds, the check returns an
// error, the watched process exits, or ctx is canceled. Callers needing
// bounded behavior pass a context with a deadline; by default the
// operator's orchestration layer owns the timeout policy.
func WaitCondition(ctx context.Context, cfg WaitConfig, check Check) error {
	if cfg.Name == "" {
		return errors.New("wait condition: name must not be empty")
	}
	if cfg.Interval <= 0 {
		return fmt.Errorf("wait for %s: %w", cfg.Name, ErrIntervalNotPositive)
	}

	if err := wait.PollUntilContextCancel(ctx, cfg.Interval, true,
		cfg.condition(check)); err != nil {
		return fmt.Errorf("wait for %s: %w", cfg.Name, err)
	}
	return nil
}
