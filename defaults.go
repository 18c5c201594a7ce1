package pgstack

import (
	"github.com/pgstack/pgstack/internal/config"
	"github.com/pgstack/pgstack/internal/process"
)

// Defaults and fixed values of the controller. Exported so callers and
// deployment tooling can reference them instead of restating literals.
const (
	// EnvPrefix is the environment namespace for controller
	// configuration.
	EnvPrefix = config.EnvPrefix

	// SettingsOverridePrefix is the environment namespace for individual
	// engine settings overrides.
	SettingsOverridePrefix = config.OverridePrefix

	// Port is the fixed engine listen port embedded in replication DSNs.
	Port = config.Port

	// Principal is the OS user and database superuser the engine runs
	// as.
	Principal = config.Principal

	// DefaultStopTimeout is the grace period a stopping engine gets
	// before escalation.
	DefaultStopTimeout = process.DefaultStopTimeout
)
