// Package pgstack boots and supervises one node of a multi-master
// replicated PostgreSQL cluster.
//
// A node goes through the same sequence on every start: the data
// directory is initialized if the version marker is absent, TLS material
// and mandatory engine settings are enforced, host access rules are
// rewritten, the engine is started and awaited, one-time seed scripts
// run, and the node registers with (or founds) the replication group.
// After that the controller supervises the engine until it terminates.
//
// All configuration comes from the environment. PGSTACK_* variables
// drive the controller itself; PGCONF_* variables override individual
// engine settings. See internal/config for the full surface.
//
// # Usage
//
//	import "github.com/pgstack/pgstack"
//
//	level := new(slog.LevelVar)
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
//
//	os.Exit(pgstack.Run(context.Background(), logger, level))
//
// Run blocks until the engine exits. SIGHUP reloads the engine
// settings, SIGTERM and SIGINT shut down gracefully, and SIGUSR1 /
// SIGUSR2 toggle debug logging at runtime.
package pgstack
