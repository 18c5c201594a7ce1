// Package config resolves the controller's configuration from the
// process environment exactly once, into an immutable Config passed to
// every component. Nothing reads ambient environment state after Resolve
// returns; the superuser credential is scrubbed from the exported
// environment so later child processes cannot observe it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/pgstack/pgstack/internal/sentinel"
)

// EnvPrefix is the environment namespace for controller configuration
// (PGSTACK_NODE_NAME, PGSTACK_DATABASE, ...).
const EnvPrefix = "PGSTACK"

// OverridePrefix is the environment namespace for engine settings
// overrides. Every variable under it becomes a settings key with the
// prefix stripped and the remainder lowercased (PGCONF_MAX_CONNECTIONS
// -> max_connections).
const OverridePrefix = "PGCONF_"

// ErrMissingRequired is returned by Resolve when a mandatory identity or
// credential variable is absent or empty. This is a fatal startup
/// condition: the process must exit before any side effect.
const ErrMissingRequired = sentinel.Error("required configuration missing")

// Port is the fixed listen port of the engine. The controller does not
// allocate ports dynamically; replication DSNs exchanged between nodes
// embed this value.
const Port = 5432

// Principal is the OS user and database superuser the engine runs and
// authenticates as.
const Principal = "postgres"

// Role is the part this node plays when the replication group forms.
type Role int

const (
	// Founder creates a new replication group from scratch.
	Founder Role = iota

	// Joiner joins an existing group through a rendezvous peer.
	Joiner
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case Founder:
		return "founder"
	case Joiner:
		return "joiner"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Override is one engine settings override from the PGCONF_ namespace.
// Overrides are applied in order after the mandatory set; a later entry
// for the same key wins.
type Override struct {
	Key   string
	Value string
}

// Config is the controller's complete configuration, immutable for the
// process lifetime.
type Config struct {
	// Node identity.
	NodeName string // defaults to the host name
	NodeDSN  string // external connection string other members use to reach this node

	// Credentials.
	Database          string // target database; required
	SuperuserPassword string // required; held in memory only, scrubbed from exported env

	// Membership.
	Role     Role
	JoinDSN  string // rendezvous address; presence selected Role=Joiner
	WaitRole string // optional role name that must exist before coordination starts

	// Seeding.
	SystemSQL   string // optional system-wide script path
	DatabaseSQL string // optional database-scoped script path, founder-only

	// Engine layout.
	PGMajor string
	DataDir string
	BinDir  string

	// Access rules.
	HBAExtra string // verbatim extra rules block, appended last

	// Engine settings overrides, in application order.
	Overrides []Override
}

// LocalDSN returns the connection string the controller itself uses to
// reach the engine over loopback TLS, targeting db.
func (c *Config) LocalDSN(db string) string {
	return fmt.Sprintf("host=127.0.0.1 port=%d dbname=%s user=%s password=%s sslmode=require",
		Port, db, Principal, c.SuperuserPassword)
}

// validate reports every violation at once so operators fix the
// environment in a single pass.
func (c *Config) validate() error {
	var errs []error
	if c.SuperuserPassword == "" {
		errs = append(errs, fmt.Errorf("%w: superuser password (%s_SUPERUSER_PASSWORD)", ErrMissingRequired, EnvPrefix))
	}
	if c.Database == "" {
		errs = append(errs, fmt.Errorf("%w: database name (%s_DATABASE)", ErrMissingRequired, EnvPrefix))
	}
	if c.NodeName == "" {
		errs = append(errs, fmt.Errorf("%w: node name could not be derived", ErrMissingRequired))
	}
	return errors.Join(errs...)
}

// Resolve reads the environment into a Config and scrubs the superuser
// credential from the exported environment. It is called once at startup;
// a validation failure here is the exit-code-1 path.
func Resolve() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault("pg_major", "9.4")

	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("derive host name: %w", err)
	}
	v.SetDefault("node_name", hostname)

	cfg := &Config{
		NodeName:          v.GetString("node_name"),
		NodeDSN:           v.GetString("node_dsn"),
		Database:          v.GetString("database"),
		SuperuserPassword: v.GetString("superuser_password"),
		JoinDSN:           v.GetString("join_dsn"),
		WaitRole:          v.GetString("wait_role"),
		SystemSQL:         v.GetString("system_sql"),
		DatabaseSQL:       v.GetString("database_sql"),
		PGMajor:           v.GetString("pg_major"),
		DataDir:           v.GetString("data_dir"),
		BinDir:            v.GetString("bin_dir"),
		HBAExtra:          v.GetString("hba_extra"),
		Overrides:         scanOverrides(os.Environ()),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Presence of a rendezvous address is the whole role decision.
	if cfg.JoinDSN != "" {
		cfg.Role = Joiner
	}

	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join("/var/lib/postgresql", cfg.PGMajor, "main")
	}
	if cfg.BinDir == "" {
		cfg.BinDir = filepath.Join("/usr/lib/postgresql", cfg.PGMajor, "bin")
	}
	if cfg.NodeDSN == "" {
		cfg.NodeDSN = fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s",
			cfg.NodeName, Port, cfg.Database, Principal, cfg.SuperuserPassword)
	}

	// The credential now lives only in this Config; children spawned
	// later must not inherit it.
	if err := os.Unsetenv(EnvPrefix + "_SUPERUSER_PASSWORD"); err != nil {
		return nil, fmt.Errorf("scrub superuser password from environment: %w", err)
	}

	return cfg, nil
}

// scanOverrides extracts the PGCONF_ namespace from an environ-style
// list, preserving order. Values are taken verbatim; malformed settings
// surface later as engine configuration errors.
func scanOverrides(environ []string) []Override {
	var overrides []Override
	for _, entry := range environ {
		if !strings.HasPrefix(entry, OverridePrefix) {
			continue
		}
		name, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(name, OverridePrefix))
		if key == "" {
			continue
		}
		overrides = append(overrides, Override{Key: key, Value: value})
	}
	return overrides
}
