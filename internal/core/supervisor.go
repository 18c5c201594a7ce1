package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pgstack/pgstack/internal/config"
	"github.com/pgstack/pgstack/internal/engine"
	"github.com/pgstack/pgstack/internal/fileutil"
	"github.com/pgstack/pgstack/internal/membership"
	"github.com/pgstack/pgstack/internal/process"
	"github.com/pgstack/pgstack/internal/schema"
	"github.com/pgstack/pgstack/internal/security"
	"github.com/pgstack/pgstack/internal/settings"
	"github.com/pgstack/pgstack/internal/storage"
)

// maintenanceDB is the always-present database used for system-wide
// operations that target no specific database.
const maintenanceDB = "postgres"

// quorumMembers is how many ready members the topology must report
// before the database-scoped script runs. The replication group is
// assumed to be forming with at least one peer; a single-node group that
// never gains one blocks on this gate, so such deployments configure no
// database script.
const quorumMembers = 2

// engineControl is the slice of the engine the monitor loop drives.
type engineControl interface {
	Reload() error
	Stop(timeout time.Duration) error
	Exited() <-chan struct{}
}

// engineConn is an open engine connection as the seeding and membership
// stages consume it.
type engineConn interface {
	membership.Querier
	schema.Execer
	close(ctx context.Context)
}

// Supervisor owns the node lifecycle: it runs the bootstrap sequence
// once, then monitors the engine until it terminates or a shutdown is
// requested.
type Supervisor struct {
	cfg         *config.Config
	log         *slog.Logger
	level       *slog.LevelVar // nil disables debug toggling
	stopTimeout time.Duration
	events      chan ControlEvent

	// dial opens the engine connection; swapped in tests.
	dial func(ctx context.Context, dsn string) (engineConn, error)
}

// NewSupervisor creates a Supervisor for the resolved configuration.
// level, when non-nil, is the handler level flipped by the debug-enable
// and debug-disable control events.
func NewSupervisor(cfg *config.Config, logger *slog.Logger, level *slog.LevelVar) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		cfg:         cfg,
		log:         logger,
		level:       level,
		stopTimeout: process.DefaultStopTimeout,
		events:      make(chan ControlEvent, 4),
		dial: func(ctx context.Context, dsn string) (engineConn, error) {
			return connect(ctx, dsn)
		},
	}
}

// Run installs signal handlers, runs the bootstrap sequence, and then
// monitors the engine. It returns nil when the engine terminates (on
// request or on its own; the two are not distinguished here) and an
// error when bootstrap fails.
func (s *Supervisor) Run(ctx context.Context) error {
	stop := ListenSignals(s.events)
	defer stop()

	// Bootstrap contains deliberately unbounded waits (engine readiness,
	// dependency role, membership, topology). A termination signal must
	// interrupt those too, so control events are drained into a
	// bootstrap-context cancel until the monitor loop takes over.
	bootCtx, cancelBoot := context.WithCancel(ctx)
	drained := s.cancelOnShutdown(bootCtx, cancelBoot)

	eng, err := s.bootstrap(bootCtx)
	shutdownDuringBoot := bootCtx.Err() != nil && ctx.Err() == nil
	cancelBoot()
	<-drained

	if err != nil {
		if eng != nil {
			if stopErr := process.StopCloseAndNil(&eng, s.stopTimeout); stopErr != nil {
				s.log.Warn("engine stop after failed bootstrap", "error", stopErr)
			}
		}
		return err
	}
	if shutdownDuringBoot {
		// The shutdown raced a completing bootstrap. Honor it instead of
		// entering the monitor loop with the request already consumed.
		s.log.Info("shutdown requested during bootstrap; stopping engine")
		if stopErr := process.StopCloseAndNil(&eng, s.stopTimeout); stopErr != nil {
			s.log.Warn("engine stop failed", "error", stopErr)
		}
		return nil
	}
	defer eng.Close()

	return s.monitor(ctx, eng)
}

// cancelOnShutdown consumes control events until ctx is done or a
// shutdown arrives, in which case it cancels ctx and exits, leaving any
// later events queued for the monitor loop. Reload is dropped: there is
// no running engine to reload yet. The returned channel closes when the
// goroutine has exited.
func (s *Supervisor) cancelOnShutdown(ctx context.Context, cancel context.CancelFunc) <-chan struct{} {
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		for {
			select {
			case ev := <-s.events:
				switch ev {
				case Shutdown:
					s.log.Info("shutdown requested during bootstrap")
					cancel()
					return
				case DebugOn:
					s.setLevel(slog.LevelDebug)
				case DebugOff:
					s.setLevel(slog.LevelInfo)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return stopped
}

// runAsOwner resolves the principal privileged operations and the engine
// run as. A root controller drops to the database principal; an already
// unprivileged controller (e.g. running as that principal directly)
// keeps its own identity.
func runAsOwner() (*fileutil.Owner, error) {
	if os.Geteuid() != 0 {
		return nil, nil
	}
	owner, err := fileutil.LookupOwner(config.Principal)
	if err != nil {
		return nil, err
	}
	return &owner, nil
}

// bootstrap takes the node from whatever state it is in to a running,
// registered member of the replication group. On error the returned
// engine, when non-nil, is already started and must be stopped by the
// caller.
func (s *Supervisor) bootstrap(ctx context.Context) (*engine.Engine, error) {
	cfg := s.cfg

	owner, err := runAsOwner()
	if err != nil {
		return nil, err
	}

	init := &storage.Initializer{
		DataDir:           cfg.DataDir,
		BinDir:            cfg.BinDir,
		Database:          cfg.Database,
		SuperuserPassword: cfg.SuperuserPassword,
		Owner:             owner,
		Logger:            s.log,
	}
	fresh, err := init.EnsureInitialized(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}
	s.log.Info("storage state resolved", "path", cfg.DataDir, "fresh", fresh)

	// TLS material and settings enforcement touch disjoint files.
	var g errgroup.Group
	g.Go(func() error {
		return security.EnsureTLS(s.log, cfg.DataDir, cfg.NodeName, owner)
	})
	g.Go(func() error {
		return settings.EnforceAll(s.log, filepath.Join(cfg.DataDir, settings.FileName), cfg.Overrides)
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("provision node: %w", err)
	}
	if err := security.WriteAccessRules(cfg.DataDir, cfg.HBAExtra); err != nil {
		return nil, fmt.Errorf("provision node: %w", err)
	}

	eng, err := engine.New(engine.Config{
		BinDir:      cfg.BinDir,
		DataDir:     cfg.DataDir,
		LocalDSN:    cfg.LocalDSN(maintenanceDB),
		Owner:       owner,
		StopTimeout: s.stopTimeout,
		Logger:      s.log,
	})
	if err != nil {
		return nil, err
	}
	if err := eng.Start(ctx, true); err != nil {
		return nil, err
	}

	if err := s.seedAndCoordinate(ctx, fresh); err != nil {
		return eng, err
	}
	return eng, nil
}

// seedAndCoordinate runs the post-start stages: one-time system seeding,
// the optional dependency-role wait, membership coordination, and the
// founder-only database-scoped seeding.
func (s *Supervisor) seedAndCoordinate(ctx context.Context, fresh bool) error {
	cfg := s.cfg
	applier := &schema.Applier{Logger: s.log}

	if fresh && cfg.SystemSQL != "" {
		db, err := s.dial(ctx, cfg.LocalDSN(maintenanceDB))
		if err != nil {
			return err
		}
		err = applier.Apply(ctx, db, cfg.SystemSQL)
		db.close(ctx)
		if err != nil {
			return err
		}
	}

	db, err := s.dial(ctx, cfg.LocalDSN(cfg.Database))
	if err != nil {
		return err
	}
	defer db.close(ctx)

	coord := &membership.Coordinator{
		DB:       db,
		NodeName: cfg.NodeName,
		NodeDSN:  cfg.NodeDSN,
		LocalDSN: cfg.LocalDSN(cfg.Database),
		JoinDSN:  cfg.JoinDSN,
		Role:     cfg.Role,
		Logger:   s.log,
	}

	if cfg.WaitRole != "" {
		if err := coord.AwaitRole(ctx, cfg.WaitRole); err != nil {
			return err
		}
	}
	if err := coord.Coordinate(ctx); err != nil {
		return err
	}

	if shouldApplyDatabaseScript(fresh, cfg.Role, cfg.DatabaseSQL) {
		if err := coord.AwaitQuorum(ctx, quorumMembers); err != nil {
			return err
		}
		if err := applier.Apply(ctx, db, cfg.DatabaseSQL); err != nil {
			return err
		}
	}
	return nil
}

// shouldApplyDatabaseScript gates the database-scoped script: only on
// fresh initialization and only on the group founder. A joiner receives
// the schema through replication; applying it locally as well would
// duplicate it across a concurrently forming group.
func shouldApplyDatabaseScript(fresh bool, role config.Role, path string) bool {
	return fresh && role == config.Founder && path != ""
}

// monitor is the indefinite supervision loop: it drains control events
// and watches engine liveness, returning when the engine is gone.
func (s *Supervisor) monitor(ctx context.Context, eng engineControl) error {
	s.log.Info("bootstrap complete; supervising engine")
	for {
		select {
		case ev := <-s.events:
			switch ev {
			case Reload:
				s.log.Info("reloading engine settings")
				if err := eng.Reload(); err != nil {
					s.log.Warn("engine reload failed", "error", err)
				}
			case Shutdown:
				s.log.Info("shutdown requested; stopping engine")
				if err := eng.Stop(s.stopTimeout); err != nil {
					s.log.Warn("engine stop failed", "error", err)
				}
				return nil
			case DebugOn:
				s.setLevel(slog.LevelDebug)
			case DebugOff:
				s.setLevel(slog.LevelInfo)
			}
		case <-eng.Exited():
			// An engine-initiated shutdown (including a crash) is not
			// distinguishable from a requested one at this layer.
			s.log.Info("engine terminated; supervisor exiting")
			return nil
		case <-ctx.Done():
			s.log.Info("context canceled; stopping engine")
			if err := eng.Stop(s.stopTimeout); err != nil {
				s.log.Warn("engine stop failed", "error", err)
			}
			return ctx.Err()
		}
	}
}

func (s *Supervisor) setLevel(level slog.Level) {
	if s.level == nil {
		return
	}
	s.log.Info("command tracing level changed", "level", level)
	s.level.Set(level)
}
