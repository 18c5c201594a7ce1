package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// database wraps a single engine connection behind the boundaries the
// coordinator and schema applier need. One connection at a time is
// enough: the controller is the only mutator and issues everything
// serially.
type database struct {
	conn *pgx.Conn
}

// connect opens a connection to the engine using the given DSN.
func connect(ctx context.Context, dsn string) (*database, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to engine: %w", err)
	}
	return &database{conn: conn}, nil
}

func (d *database) close(ctx context.Context) {
	_ = d.conn.Close(ctx)
}

// Exec implements membership.Querier.
func (d *database) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return d.conn.Exec(ctx, sql, args...)
}

// QueryRow implements membership.Querier.
func (d *database) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return d.conn.QueryRow(ctx, sql, args...)
}

// ExecScript implements schema.Execer. Scripts are opaque multi-statement
// payloads, which only the simple query protocol accepts in one round
// trip; pgconn.Exec is that path.
func (d *database) ExecScript(ctx context.Context, sql string) error {
	if _, err := d.conn.PgConn().Exec(ctx, sql).ReadAll(); err != nil {
		return fmt.Errorf("execute script: %w", err)
	}
	return nil
}
