// Package storage owns first-time initialization of the engine's on-disk
// cluster: creating it with a fixed locale and encoding, assigning the
// superuser credential, and creating the target database. Initialization
// happens at most once per storage location; presence of the version
// marker file makes re-runs a no-op.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/pgstack/pgstack/internal/config"
	"github.com/pgstack/pgstack/internal/fileutil"
	"github.com/pgstack/pgstack/internal/process"
)

// MarkerFileName is the version marker the engine writes at the root of
// an initialized cluster. Its presence is the initialized/uninitialized
// distinction; its content is irrelevant here.
const MarkerFileName = "PG_VERSION"

// lockFileName sits next to the data directory and serializes
// initialization across controller processes sharing a volume. The file
// is left behind after release; removing it would race a concurrent
// acquisition.
const lockFileName = ".pgstack-init.lock"

// lockRetryInterval is the interval between file lock acquisition attempts.
const lockRetryInterval = 50 * time.Millisecond

// Initializer performs first-time storage initialization.
type Initializer struct {
	// DataDir is the cluster location; the marker file lives at its root.
	DataDir string

	// BinDir holds the engine binaries (initdb, postgres).
	BinDir string

	// Database is the target database created during bootstrap.
	Database string

	// SuperuserPassword is assigned to the database principal while the
	// cluster is still in single-user mode, before any listener exists.
	SuperuserPassword string

	// Owner is the principal that must own the storage and run the
	// privileged commands. Nil runs everything as the controller itself
	// (unprivileged environments and tests).
	Owner *fileutil.Owner

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (i *Initializer) log() *slog.Logger {
	if i.Logger == nil {
		return slog.Default()
	}
	return i.Logger
}

func (i *Initializer) validate() error {
	var errs []error
	if i.DataDir == "" {
		errs = append(errs, errors.New("data dir must not be empty"))
	}
	if i.BinDir == "" {
		errs = append(errs, errors.New("bin dir must not be empty"))
	}
	if i.Database == "" {
		errs = append(errs, errors.New("database must not be empty"))
	}
	return errors.Join(errs...)
}

// EnsureInitialized checks the version marker and, when absent, performs
// the complete first-time initialization under an exclusive file lock.
// It returns whether initialization happened in this call; later
// bootstrap stages key one-time seeding off that flag.
//
// Any privileged command failing is returned as a fatal error with no
// rollback; a half-initialized location is left for operator inspection.
func (i *Initializer) EnsureInitialized(ctx context.Context) (bool, error) {
	if err := i.validate(); err != nil {
		return false, fmt.Errorf("invalid storage initializer: %w", err)
	}

	initialized, err := i.marked()
	if err != nil {
		return false, err
	}
	if initialized {
		i.log().Debug("storage already initialized", "path", i.DataDir)
		return false, nil
	}

	if err := fileutil.EnsureDir(i.DataDir); err != nil {
		return false, err
	}
	if i.Owner != nil {
		if err := i.Owner.Chown(filepath.Dir(i.DataDir), i.DataDir); err != nil {
			return false, fmt.Errorf("fix storage ownership: %w", err)
		}
	}

	lockPath := filepath.Join(filepath.Dir(i.DataDir), lockFileName)
	fl := flock.New(lockPath)
	locked, err := fl.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return false, fmt.Errorf("acquire init lock %s: %w", lockPath, err)
	}
	if !locked {
		return false, fmt.Errorf("acquire init lock %s: lock not acquired", lockPath)
	}
	defer func() {
		if err := fl.Close(); err != nil {
			i.log().Debug("failed to release init lock", "path", lockPath, "err", err)
		}
	}()

	// Another controller may have initialized while we waited for the lock.
	initialized, err = i.marked()
	if err != nil {
		return false, err
	}
	if initialized {
		i.log().Debug("storage initialized by a concurrent controller", "path", i.DataDir)
		return false, nil
	}

	i.log().Info("initializing storage", "path", i.DataDir)
	if err := i.initdb(ctx); err != nil {
		return false, err
	}

	// Single-user-mode bootstrap: no listener is active yet, so these
	// privileged statements cannot race any other client.
	if err := i.singleUser(ctx, fmt.Sprintf("ALTER USER %s PASSWORD '%s'",
		config.Principal, escapeLiteral(i.SuperuserPassword))); err != nil {
		return false, fmt.Errorf("assign superuser credential: %w", err)
	}
	if err := i.singleUser(ctx, fmt.Sprintf("CREATE DATABASE %s",
		quoteIdent(i.Database))); err != nil {
		return false, fmt.Errorf("create database %s: %w", i.Database, err)
	}

	return true, nil
}

// marked reports whether the version marker exists.
func (i *Initializer) marked() (bool, error) {
	_, err := os.Stat(filepath.Join(i.DataDir, MarkerFileName))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("check version marker: %w", err)
}

// initdb creates the cluster with fixed locale and encoding so every
// replication peer agrees on collation and byte semantics.
func (i *Initializer) initdb(ctx context.Context) error {
	err := process.Run(ctx, process.RunOptions{Owner: i.Owner, Log: i.log()},
		filepath.Join(i.BinDir, "initdb"),
		"-D", i.DataDir,
		"--encoding=UTF8",
		"--locale=C",
	)
	if err != nil {
		return fmt.Errorf("initdb: %w", err)
	}
	return nil
}

// singleUser executes one SQL statement through the engine's single-user
// mode against the maintenance database. Statements are fed on stdin,
// newline-terminated.
func (i *Initializer) singleUser(ctx context.Context, sql string) error {
	err := process.Run(ctx, process.RunOptions{
		Owner: i.Owner,
		Log:   i.log(),
		Stdin: strings.NewReader(sql + "\n"),
	},
		filepath.Join(i.BinDir, "postgres"),
		"--single",
		"-D", i.DataDir,
		config.Principal,
	)
	if err != nil {
		return fmt.Errorf("single-user command: %w", err)
	}
	return nil
}

// escapeLiteral doubles single quotes for embedding in a SQL string literal.
func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// quoteIdent double-quotes a SQL identifier, doubling embedded quotes.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
