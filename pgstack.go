package pgstack

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pgstack/pgstack/internal/config"
	"github.com/pgstack/pgstack/internal/core"
)

// Exit codes returned by Run.
const (
	// ExitOK is returned when the engine terminated, whether on request
	// or on its own. Orchestrators treat this as a clean unit exit.
	ExitOK = 0

	// ExitConfig is returned when the environment is unusable: a
	// required variable is missing or malformed. Nothing was touched on
	// disk when this is returned.
	ExitConfig = 1

	// ExitBootstrap is returned when the node failed to reach the
	// supervised state: storage, provisioning, engine start, seeding, or
	// membership coordination failed.
	ExitBootstrap = 2
)

// Run resolves configuration from the environment, bootstraps the node,
// and supervises the engine until it terminates. It blocks for the
// lifetime of the engine and returns a process exit code.
//
// level, when non-nil, must be the level of logger's handler; it is
// flipped at runtime by SIGUSR1 and SIGUSR2.
func Run(ctx context.Context, logger *slog.Logger, level *slog.LevelVar) int {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := config.Resolve()
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		return ExitConfig
	}
	logger.Info("configuration resolved",
		"node", cfg.NodeName,
		"role", cfg.Role,
		"database", cfg.Database,
		"data_dir", cfg.DataDir,
	)

	sup := core.NewSupervisor(cfg, logger, level)
	if err := sup.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return ExitOK
		}
		logger.Error("node bootstrap failed", "error", err)
		return ExitBootstrap
	}
	return ExitOK
}
