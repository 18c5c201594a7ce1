// Package schema applies operator-supplied SQL scripts at fixed points
// in the bootstrap sequence. Script contents are opaque: they are read
// from disk and shipped to the engine as a single multi-statement
// payload. All gating (fresh initialization, founder role, topology
// readiness) is the supervisor's job.
package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// Execer executes one opaque multi-statement SQL payload. In production
// this is pgconn's simple-protocol Exec, which is the only execution
// path that accepts multiple statements in one payload.
type Execer interface {
	ExecScript(ctx context.Context, sql string) error
}

// Applier reads and executes schema scripts.
type Applier struct {
	Logger *slog.Logger
}

func (a *Applier) log() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// Apply reads the script at path and executes it through db. An empty
// path is a no-op: script application is optional and most deployments
// configure no scripts.
func (a *Applier) Apply(ctx context.Context, db Execer, path string) error {
	if path == "" {
		return nil
	}
	if db == nil {
		return errors.New("apply schema script: execer must not be nil")
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schema script %s: %w", path, err)
	}
	if len(payload) == 0 {
		a.log().Warn("schema script is empty", "path", path)
		return nil
	}

	a.log().Info("applying schema script", "path", path)
	if err := db.ExecScript(ctx, string(payload)); err != nil {
		return fmt.Errorf("apply schema script %s: %w", path, err)
	}
	return nil
}
