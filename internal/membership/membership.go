// Package membership coordinates this node's entry into the multi-master
// replication group. The replication extension owns all consensus and
// data movement; this package only decides when to install the
// extension, whether the node is already a member, and whether to found
// a new group or join an existing one through a rendezvous peer.
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pgstack/pgstack/internal/config"
	"github.com/pgstack/pgstack/internal/process"
)

// Querier is the SQL boundary the coordinator needs. *pgx.Conn satisfies
// it; tests substitute a fake. Membership state is never cached: every
// decision re-queries the replication catalog, which is the only source
// of truth.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// statusReady is the replication catalog's status value for a fully
// synchronized, active member.
const statusReady = "r"

// Poll intervals for the coordinator's waits. All waits are unbounded
// with a fixed interval; timeout policy belongs to the orchestration
// layer (liveness probes), not here.
const (
	defaultRolePollInterval   = time.Second
	defaultRoleGracePeriod    = 2 * time.Second
	defaultReadyPollInterval  = time.Second
	defaultQuorumPollInterval = 5 * time.Second
)

// Coordinator drives the membership state machine. Enter it only once
// the engine accepts connections.
type Coordinator struct {
	DB       Querier
	NodeName string
	NodeDSN  string // external DSN peers use to reach this node
	LocalDSN string // loopback DSN handed to the extension
	JoinDSN  string // rendezvous peer DSN; empty for a founder
	Role     config.Role
	Logger   *slog.Logger

	// Overridable in tests; zero values fall back to the defaults above.
	rolePollInterval   time.Duration
	roleGracePeriod    time.Duration
	readyPollInterval  time.Duration
	quorumPollInterval time.Duration
}

func (c *Coordinator) log() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c *Coordinator) validate() error {
	var errs []error
	if c.DB == nil {
		errs = append(errs, errors.New("querier must not be nil"))
	}
	if c.NodeName == "" {
		errs = append(errs, errors.New("node name must not be empty"))
	}
	if c.NodeDSN == "" {
		errs = append(errs, errors.New("node DSN must not be empty"))
	}
	if c.Role == config.Joiner && c.JoinDSN == "" {
		errs = append(errs, errors.New("joiner requires a rendezvous DSN"))
	}
	return errors.Join(errs...)
}

func interval(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}

// Coordinate runs the membership state machine: install the replication
// extension if absent, short-circuit if this node is already registered,
// then found or join the group according to the role. A joiner blocks,
// polling the catalog, until the extension reports this node ready; an
// unreachable rendezvous peer therefore blocks indefinitely unless ctx
// imposes a deadline.
func (c *Coordinator) Coordinate(ctx context.Context) error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("invalid membership coordinator: %w", err)
	}

	if err := c.ensureExtension(ctx); err != nil {
		return err
	}

	registered, err := c.registered(ctx)
	if err != nil {
		return err
	}
	if registered {
		c.log().Info("node already registered in replication group", "node", c.NodeName)
		return nil
	}

	switch c.Role {
	case config.Joiner:
		return c.join(ctx)
	default:
		return c.found(ctx)
	}
}

// ensureExtension installs the replication extension and its prerequisite
// range-index extension exactly once.
func (c *Coordinator) ensureExtension(ctx context.Context) error {
	var installed bool
	err := c.DB.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_catalog.pg_namespace WHERE nspname = 'bdr')`,
	).Scan(&installed)
	if err != nil {
		return fmt.Errorf("check replication extension: %w", err)
	}
	if installed {
		return nil
	}

	c.log().Info("installing replication extension")
	if _, err := c.DB.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS btree_gist`); err != nil {
		return fmt.Errorf("install btree_gist extension: %w", err)
	}
	if _, err := c.DB.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS bdr`); err != nil {
		return fmt.Errorf("install bdr extension: %w", err)
	}
	return nil
}

// registered reports whether this node's name is already a group member.
func (c *Coordinator) registered(ctx context.Context) (bool, error) {
	var count int
	err := c.DB.QueryRow(ctx,
		`SELECT count(*) FROM bdr.bdr_nodes WHERE node_name = $1`, c.NodeName,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check node registration: %w", err)
	}
	return count > 0, nil
}

// found creates a new replication group with this node as its first
// member. Creation is synchronous from the extension's perspective, so
// no readiness wait follows.
func (c *Coordinator) found(ctx context.Context) error {
	c.log().Info("founding replication group", "node", c.NodeName)
	_, err := c.DB.Exec(ctx,
		`SELECT bdr.bdr_group_create(local_node_name := $1, node_external_dsn := $2, node_local_dsn := $3)`,
		c.NodeName, c.NodeDSN, c.LocalDSN)
	if err != nil {
		return fmt.Errorf("create replication group: %w", err)
	}
	return nil
}

// join requests membership through the rendezvous peer, then blocks until
// the catalog reports this node ready.
func (c *Coordinator) join(ctx context.Context) error {
	c.log().Info("joining replication group", "node", c.NodeName, "rendezvous", c.JoinDSN)
	_, err := c.DB.Exec(ctx,
		`SELECT bdr.bdr_group_join(local_node_name := $1, node_external_dsn := $2, join_using_dsn := $3, node_local_dsn := $4)`,
		c.NodeName, c.NodeDSN, c.JoinDSN, c.LocalDSN)
	if err != nil {
		return fmt.Errorf("join replication group: %w", err)
	}

	return process.WaitCondition(ctx, process.WaitConfig{
		Interval: interval(c.readyPollInterval, defaultReadyPollInterval),
		Name:     "node readiness",
		Logger:   c.log(),
	}, func(pollCtx context.Context, _ int) (bool, error) {
		var status string
		err := c.DB.QueryRow(pollCtx,
			`SELECT node_status FROM bdr.bdr_nodes WHERE node_name = $1`, c.NodeName,
		).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("poll node status: %w", err)
		}
		return status == statusReady, nil
	})
}

// AwaitRole blocks until the named authentication role exists, then
// waits one fixed grace period so the external provisioner can finish
// whatever it creates the role for. Unbounded; cancel via ctx.
func (c *Coordinator) AwaitRole(ctx context.Context, role string) error {
	c.log().Info("waiting for dependency role", "role", role)
	err := process.WaitCondition(ctx, process.WaitConfig{
		Interval: interval(c.rolePollInterval, defaultRolePollInterval),
		Name:     "dependency role " + role,
		Logger:   c.log(),
	}, func(pollCtx context.Context, _ int) (bool, error) {
		var exists bool
		if err := c.DB.QueryRow(pollCtx,
			`SELECT EXISTS (SELECT 1 FROM pg_catalog.pg_roles WHERE rolname = $1)`, role,
		).Scan(&exists); err != nil {
			return false, fmt.Errorf("check role existence: %w", err)
		}
		return exists, nil
	})
	if err != nil {
		return err
	}

	grace := interval(c.roleGracePeriod, defaultRoleGracePeriod)
	select {
	case <-time.After(grace):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AwaitQuorum blocks until at least n members report ready status,
// polling the catalog at a fixed interval with no upper bound. It gates
// database-scoped seeding on a stabilized replication topology.
func (c *Coordinator) AwaitQuorum(ctx context.Context, n int) error {
	c.log().Info("waiting for replication topology", "members", n)
	return process.WaitCondition(ctx, process.WaitConfig{
		Interval: interval(c.quorumPollInterval, defaultQuorumPollInterval),
		Name:     fmt.Sprintf("%d ready members", n),
		Logger:   c.log(),
	}, func(pollCtx context.Context, _ int) (bool, error) {
		var ready int
		if err := c.DB.QueryRow(pollCtx,
			`SELECT count(*) FROM bdr.bdr_nodes WHERE node_status = $1`, statusReady,
		).Scan(&ready); err != nil {
			return false, fmt.Errorf("count ready members: %w", err)
		}
		return ready >= n, nil
	})
}
