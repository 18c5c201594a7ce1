// Package engine controls the database engine child process: start with
// an optional block-until-ready mode, graceful stop, settings reload,
// and liveness observation for the supervisor.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pgstack/pgstack/internal/fileutil"
	"github.com/pgstack/pgstack/internal/process"
)

// readyPollInterval is the fixed interval between connection attempts
// while waiting for the engine to accept connections. The wait itself is
// unbounded; a node recovering a large WAL backlog may legitimately take
// a long time to open for business.
const readyPollInterval = 500 * time.Millisecond

// readyDialTimeout bounds each individual connection attempt so a hung
// handshake cannot stall the polling loop.
const readyDialTimeout = 3 * time.Second

// Compile-time interface satisfaction check.
var _ process.Stoppable = (*Engine)(nil)

// Config holds the configuration for the engine process.
type Config struct {
	BinDir   string // engine binary directory
	DataDir  string // cluster location, also the working dir for logs
	LocalDSN string // loopback connection string used for readiness checks

	// Owner is the principal the engine runs as. The engine refuses to
	// start as root, so production always sets this; tests may not.
	Owner *fileutil.Owner

	// StopTimeout bounds the graceful stop sequence; zero uses
	// process.DefaultStopTimeout.
	StopTimeout time.Duration

	// Logger (optional, defaults to slog.Default())
	Logger *slog.Logger
}

// Engine manages the engine process lifecycle.
type Engine struct {
	config Config
	child  process.Child

	// readyCheck is the readiness probe; defaults to a driver-level
	// connect-and-close against LocalDSN. Swapped in tests.
	readyCheck process.Check
}

// validate checks that all required Config fields are set and returns an
// error describing the first missing or invalid field.
func (c Config) validate() error {
	if c.BinDir == "" {
		return errors.New("bin dir must not be empty")
	}
	if c.DataDir == "" {
		return errors.New("data dir must not be empty")
	}
	if c.LocalDSN == "" {
		return errors.New("local DSN must not be empty")
	}
	return nil
}

// New creates an Engine with the given configuration. New performs no
// I/O; the process is launched by Start.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	e := &Engine{
		config: cfg,
		child:  process.NewChild("postgres", cfg.Owner, cfg.Logger, cfg.StopTimeout),
	}
	e.readyCheck = e.pingCheck
	return e, nil
}

// Start launches the engine. With waitUntilReady it blocks until the
// engine accepts connections, polling at a fixed interval with no upper
// bound (cancel via ctx for bounded behavior); the wait aborts early if
// the process exits before opening for connections. Every later
// bootstrap stage requires a connectable engine, so the sequence always
// starts with waitUntilReady=true.
func (e *Engine) Start(ctx context.Context, waitUntilReady bool) error {
	if e.child.Running() {
		return process.ErrAlreadyStarted
	}

	// Deliberately not CommandContext: context cancellation would SIGKILL
	// the engine, while shutdown must go through the graceful Stop path.
	cmd := exec.Command(filepath.Join(e.config.BinDir, "postgres"), "-D", e.config.DataDir)
	if err := e.child.Start(cmd, e.config.DataDir); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	if !waitUntilReady {
		return nil
	}

	if err := process.WaitCondition(ctx, process.WaitConfig{
		Interval:      readyPollInterval,
		Name:          "postgres",
		Logger:        e.child.Logger(),
		ProcessExited: e.child.Exited(),
	}, e.readyCheck); err != nil {
		return fmt.Errorf("engine not ready: %w", err)
	}
	return nil
}

// pingCheck attempts a full driver connection. Any failure means "not
// ready yet"; connection-level errors while the engine is still in
// recovery are expected, not fatal.
func (e *Engine) pingCheck(ctx context.Context, attempt int) (bool, error) {
	dialCtx, cancel := context.WithTimeout(ctx, readyDialTimeout)
	defer cancel()

	conn, err := pgx.Connect(dialCtx, e.config.LocalDSN)
	if err != nil {
		e.child.Logger().Debug("engine readiness attempt", "attempt", attempt, "error", err)
		return false, nil
	}
	_ = conn.Close(ctx)
	return true, nil
}

// Reload asks the engine to re-read its settings file without a restart.
// Settings that only take effect at listener startup (e.g.
// listen_addresses) are not picked up; that needs a full restart.
func (e *Engine) Reload() error {
	if err := e.child.Signal(syscall.SIGHUP); err != nil {
		return fmt.Errorf("reload engine settings: %w", err)
	}
	return nil
}

// Stop requests a graceful shutdown and waits for the engine to exit.
func (e *Engine) Stop(timeout time.Duration) error {
	return e.child.Stop(timeout)
}

// Close releases log file handles held by the engine process.
func (e *Engine) Close() {
	e.child.Close()
}

// Running reports whether the engine process is alive.
func (e *Engine) Running() bool {
	return e.child.Running()
}

// Exited returns a channel closed when the engine process exits. The
// supervisor's monitor loop selects on it.
func (e *Engine) Exited() <-chan struct{} {
	return e.child.Exited()
}
