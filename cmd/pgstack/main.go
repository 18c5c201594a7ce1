package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pgstack/pgstack"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func newLogger(json bool, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func main() {
	var (
		debug bool
		json  bool
	)

	root := cobra.Command{
		Use:   "pgstack",
		Short: "bootstrap and supervise one node of a replicated PostgreSQL cluster",
		Long: "pgstack initializes local storage, enforces TLS and engine settings,\n" +
			"starts the database engine, registers the node with its replication\n" +
			"group, and then supervises the engine until it exits. All configuration\n" +
			"is read from PGSTACK_* and PGCONF_* environment variables.",
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			level := new(slog.LevelVar)
			if debug {
				level.Set(slog.LevelDebug)
			}
			logger := newLogger(json, level)
			slog.SetDefault(logger)

			os.Exit(pgstack.Run(context.Background(), logger, level))
		},
	}
	root.Flags().BoolVar(&debug, "debug", false, "start with debug logging enabled (SIGUSR1/SIGUSR2 toggle it at runtime)")
	root.Flags().BoolVar(&json, "json", false, "emit logs as JSON instead of text")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "print the controller version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(pgstack.ExitConfig)
	}
}
