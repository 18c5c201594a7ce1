package process

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// The wait sentinels are re-exported from a const block in the root
// package; this declaration fails to compile if they stop being
// constants.
const (
	_ = ErrIntervalNotPositive
	_ = ErrTimeoutNotPositive
	_ = ErrProcessExited
)

func TestWaitSentinelsMatchWrapped(t *testing.T) {
	t.Parallel()

	tests := map[string]error{
		"interval":       ErrIntervalNotPositive,
		"timeout":        ErrTimeoutNotPositive,
		"process exited": ErrProcessExited,
	}

	for name, sentinelErr := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			wrapped := fmt.Errorf("outer: %w", sentinelErr)
			if !errors.Is(wrapped, sentinelErr) {
				t.Errorf("wrapped error does not match sentinel")
			}
		})
	}
}

func TestWaitReadyZeroInterval(t *testing.T) {
	t.Parallel()

	err := WaitReady(context.Background(), WaitConfig{
		Interval: 0,
		Timeout:  5 * time.Second,
		Name:     "test-proc",
	}, func(_ context.Context, _ int) (bool, error) {
		t.Fatal("check should not be called with zero interval")
		return false, nil
	})
	if !errors.Is(err, ErrIntervalNotPositive) {
		t.Fatalf("expected ErrIntervalNotPositive, got %v", err)
	}
}

func TestWaitReadyZeroTimeout(t *testing.T) {
	t.Parallel()

	err := WaitReady(context.Background(), WaitConfig{
		Interval: time.Millisecond,
		Timeout:  0,
		Name:     "test-proc",
	}, func(_ context.Context, _ int) (bool, error) {
		t.Fatal("check should not be called with zero timeout")
		return false, nil
	})
	if !errors.Is(err, ErrTimeoutNotPositive) {
		t.Fatalf("expected ErrTimeoutNotPositive, got %v", err)
	}
}

func TestWaitReadyEmptyName(t *testing.T) {
	t.Parallel()

	err := WaitReady(context.Background(), WaitConfig{
		Interval: time.Millisecond,
		Timeout:  time.Second,
	}, func(_ context.Context, _ int) (bool, error) {
		return true, nil
	})
	if err == nil || !strings.Contains(err.Error(), "name must not be empty") {
		t.Fatalf("expected name validation error, got %v", err)
	}
}

func TestWaitReadySucceedsAfterAttempts(t *testing.T) {
	t.Parallel()

	err := WaitReady(context.Background(), WaitConfig{
		Interval: time.Millisecond,
		Timeout:  5 * time.Second,
		Name:     "test-proc",
	}, func(_ context.Context, attempt int) (bool, error) {
		return attempt >= 3, nil
	})
	if err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
}

func TestWaitReadyFatalCheckError(t *testing.T) {
	t.Parallel()

	fatal := errors.New("fatal condition failure")
	err := WaitReady(context.Background(), WaitConfig{
		Interval: time.Millisecond,
		Timeout:  5 * time.Second,
		Name:     "test-proc",
	}, func(_ context.Context, _ int) (bool, error) {
		return false, fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("expected fatal check error, got %v", err)
	}
}

func TestWaitReadyAbortsWhenProcessExits(t *testing.T) {
	t.Parallel()

	exited := make(chan struct{})
	close(exited)

	err := WaitReady(context.Background(), WaitConfig{
		Interval:      time.Millisecond,
		Timeout:       5 * time.Second,
		Name:          "test-proc",
		ProcessExited: exited,
	}, func(_ context.Context, _ int) (bool, error) {
		t.Fatal("check should not run once the process has exited")
		return false, nil
	})
	if !errors.Is(err, ErrProcessExited) {
		t.Fatalf("expected ErrProcessExited, got %v", err)
	}
}

func TestWaitConditionSucceeds(t *testing.T) {
	t.Parallel()

	err := WaitCondition(context.Background(), WaitConfig{
		Interval: time.Millisecond,
		Name:     "test-cond",
	}, func(_ context.Context, attempt int) (bool, error) {
		return attempt >= 5, nil
	})
	if err != nil {
		t.Fatalf("WaitCondition: %v", err)
	}
}

func TestWaitConditionCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := WaitCondition(ctx, WaitConfig{
		Interval: time.Millisecond,
		Name:     "never-ready",
	}, func(_ context.Context, _ int) (bool, error) {
		return false, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWaitConditionZeroInterval(t *testing.T) {
	t.Parallel()

	err := WaitCondition(context.Background(), WaitConfig{
		Interval: 0,
		Name:     "test-cond",
	}, func(_ context.Context, _ int) (bool, error) {
		t.Fatal("check should not be called with zero interval")
		return false, nil
	})
	if !errors.Is(err, ErrIntervalNotPositive) {
		t.Fatalf("expected ErrIntervalNotPositive, got %v", err)
	}
}
