// Package pgadmin is the administrative client for the external PostgreSQL
// engine: role and database lifecycle, privilege management, and session
// termination for participant sandboxes.
//
// Every operation is safe to repeat: "already exists" on create and
// "does not exist" on drop are treated as success, so a retry of any
// transition converges instead of failing hard.
package pgadmin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"sandboxd/internal/domain"
)

// PostgreSQL SQLSTATE codes the client treats as benign.
const (
	codeDuplicateDatabase  = "42P04"
	codeDuplicateObject    = "42710"
	codeInvalidCatalogName = "3D000"
	codeUndefinedObject    = "42704"
)

var _ domain.DatabaseAdmin = (*Client)(nil)

// Client runs administrative SQL against the engine. Cluster-level
// statements go through a shared pool on the maintenance database;
// statements that must run inside a participant database (schema grants)
// open a short-lived connection to that database.
type Client struct {
	pool      *pgxpool.Pool
	adminDSN  string
	adminRole string
	logger    *slog.Logger
}

// New creates a Client. adminDSN must point at the maintenance database of a
// superuser or CREATEDB/CREATEROLE-capable role; adminRole is the name that
// receives database ownership during a lock.
func New(ctx context.Context, adminDSN, adminRole string, logger *slog.Logger) (*Client, error) {
	pool, err := pgxpool.New(ctx, adminDSN)
	if err != nil {
		return nil, fmt.Errorf("open admin pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping engine: %w", err)
	}
	return &Client{pool: pool, adminDSN: adminDSN, adminRole: adminRole, logger: logger}, nil
}

// Close releases the admin pool.
func (c *Client) Close() {
	c.pool.Close()
}

// AdminRole returns the administrative principal used for ownership
// reassignment during locks.
func (c *Client) AdminRole() string { return c.adminRole }

// CreateRole creates a login role with the given password. An existing role
// gets its password reset instead, so a retried create converges.
func (c *Client) CreateRole(ctx context.Context, name, password string) error {
	sql := fmt.Sprintf(`CREATE ROLE %s LOGIN PASSWORD '%s'`, ident(name), literal(password))
	if _, err := c.pool.Exec(ctx, sql); err != nil {
		if sqlState(err) == codeDuplicateObject {
			return c.SetRolePassword(ctx, name, password)
		}
		return wrap("create role", name, err)
	}
	return nil
}

// CreateDatabase creates a database owned by the given role. Already-exists
// is a no-op.
func (c *Client) CreateDatabase(ctx context.Context, name, owner string) error {
	sql := fmt.Sprintf(`CREATE DATABASE %s OWNER %s`, ident(name), ident(owner))
	if _, err := c.pool.Exec(ctx, sql); err != nil {
		if sqlState(err) == codeDuplicateDatabase {
			return nil
		}
		return wrap("create database", name, err)
	}
	return nil
}

// GrantBaseline grants the owning role full use of the public schema inside
// its database and connect on the database itself.
func (c *Client) GrantBaseline(ctx context.Context, dbName, role string) error {
	if _, err := c.pool.Exec(ctx, fmt.Sprintf(
		`GRANT CONNECT, TEMP ON DATABASE %s TO %s`, ident(dbName), ident(role))); err != nil {
		return wrap("grant connect", dbName, err)
	}
	return c.inDatabase(ctx, dbName, func(conn *pgx.Conn) error {
		stmts := []string{
			fmt.Sprintf(`GRANT ALL ON SCHEMA public TO %s`, ident(role)),
			fmt.Sprintf(`GRANT ALL ON ALL TABLES IN SCHEMA public TO %s`, ident(role)),
			fmt.Sprintf(`GRANT ALL ON ALL SEQUENCES IN SCHEMA public TO %s`, ident(role)),
		}
		for _, s := range stmts {
			if _, err := conn.Exec(ctx, s); err != nil {
				return wrap("grant baseline", dbName, err)
			}
		}
		return nil
	})
}

// RevokeToReadOnly strips the role down to SELECT/USAGE inside the database.
func (c *Client) RevokeToReadOnly(ctx context.Context, dbName, role string) error {
	return c.inDatabase(ctx, dbName, func(conn *pgx.Conn) error {
		stmts := []string{
			fmt.Sprintf(`REVOKE CREATE ON SCHEMA public FROM %s`, ident(role)),
			fmt.Sprintf(`REVOKE INSERT, UPDATE, DELETE, TRUNCATE, REFERENCES, TRIGGER ON ALL TABLES IN SCHEMA public FROM %s`, ident(role)),
			fmt.Sprintf(`REVOKE USAGE, UPDATE ON ALL SEQUENCES IN SCHEMA public FROM %s`, ident(role)),
			fmt.Sprintf(`GRANT USAGE ON SCHEMA public TO %s`, ident(role)),
			fmt.Sprintf(`GRANT SELECT ON ALL TABLES IN SCHEMA public TO %s`, ident(role)),
		}
		for _, s := range stmts {
			if _, err := conn.Exec(ctx, s); err != nil {
				return wrap("revoke to read-only", dbName, err)
			}
		}
		return nil
	})
}

// RestoreFullAccess reverses RevokeToReadOnly.
func (c *Client) RestoreFullAccess(ctx context.Context, dbName, role string) error {
	return c.inDatabase(ctx, dbName, func(conn *pgx.Conn) error {
		stmts := []string{
			fmt.Sprintf(`GRANT ALL ON SCHEMA public TO %s`, ident(role)),
			fmt.Sprintf(`GRANT ALL ON ALL TABLES IN SCHEMA public TO %s`, ident(role)),
			fmt.Sprintf(`GRANT ALL ON ALL SEQUENCES IN SCHEMA public TO %s`, ident(role)),
		}
		for _, s := range stmts {
			if _, err := conn.Exec(ctx, s); err != nil {
				return wrap("restore access", dbName, err)
			}
		}
		return nil
	})
}

// SetDatabaseOwner reassigns database ownership. Used during lock (to the
// admin role) and unlock (back to the participant role).
func (c *Client) SetDatabaseOwner(ctx context.Context, dbName, owner string) error {
	sql := fmt.Sprintf(`ALTER DATABASE %s OWNER TO %s`, ident(dbName), ident(owner))
	if _, err := c.pool.Exec(ctx, sql); err != nil {
		return wrap("set owner", dbName, err)
	}
	return nil
}

// SetRolePassword resets a role's password.
func (c *Client) SetRolePassword(ctx context.Context, role, password string) error {
	sql := fmt.Sprintf(`ALTER ROLE %s PASSWORD '%s'`, ident(role), literal(password))
	if _, err := c.pool.Exec(ctx, sql); err != nil {
		return wrap("set role password", role, err)
	}
	return nil
}

// TerminateSessions kills every backend connected to the database except our
// own. Absent databases terminate nothing and succeed.
func (c *Client) TerminateSessions(ctx context.Context, dbName string) error {
	_, err := c.pool.Exec(ctx, `
		SELECT pg_terminate_backend(pid)
		FROM pg_stat_activity
		WHERE datname = $1 AND pid <> pg_backend_pid()`, dbName)
	if err != nil {
		return wrap("terminate sessions", dbName, err)
	}
	return nil
}

// DropDatabase drops the database, forcing out any remaining sessions.
// Already-absent is success.
func (c *Client) DropDatabase(ctx context.Context, name string) error {
	sql := fmt.Sprintf(`DROP DATABASE IF EXISTS %s WITH (FORCE)`, ident(name))
	if _, err := c.pool.Exec(ctx, sql); err != nil {
		if code := sqlState(err); code == codeInvalidCatalogName {
			return nil
		}
		return wrap("drop database", name, err)
	}
	return nil
}

// DropRole drops the role. Already-absent is success.
func (c *Client) DropRole(ctx context.Context, name string) error {
	sql := fmt.Sprintf(`DROP ROLE IF EXISTS %s`, ident(name))
	if _, err := c.pool.Exec(ctx, sql); err != nil {
		if code := sqlState(err); code == codeUndefinedObject {
			return nil
		}
		return wrap("drop role", name, err)
	}
	return nil
}

// Privileges returns a capability snapshot for the role on the database,
// used by the consistency diagnostic. Missing role or database is reported
// in the snapshot, not as an error.
func (c *Client) Privileges(ctx context.Context, role, dbName string) (*domain.DatabasePrivileges, error) {
	snap := &domain.DatabasePrivileges{}

	if err := c.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)`, role).
		Scan(&snap.RoleExists); err != nil {
		return nil, wrap("query role", role, err)
	}
	if err := c.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, dbName).
		Scan(&snap.DatabaseExists); err != nil {
		return nil, wrap("query database", dbName, err)
	}
	if !snap.RoleExists || !snap.DatabaseExists {
		return snap, nil
	}

	if err := c.pool.QueryRow(ctx,
		`SELECT has_database_privilege($1, $2, 'CONNECT')`, role, dbName).
		Scan(&snap.CanConnect); err != nil {
		return nil, wrap("query connect privilege", dbName, err)
	}
	err := c.inDatabase(ctx, dbName, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx,
			`SELECT has_schema_privilege($1, 'public', 'CREATE')`, role).
			Scan(&snap.CanCreate)
	})
	if err != nil {
		return nil, wrap("query create privilege", dbName, err)
	}
	return snap, nil
}

// inDatabase runs fn on a short-lived connection to the named database using
// the admin credentials.
func (c *Client) inDatabase(ctx context.Context, dbName string, fn func(*pgx.Conn) error) error {
	cfg, err := pgx.ParseConfig(c.adminDSN)
	if err != nil {
		return fmt.Errorf("parse admin DSN: %w", err)
	}
	cfg.Database = dbName

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return wrap("connect", dbName, err)
	}
	defer func() {
		if cerr := conn.Close(context.Background()); cerr != nil {
			c.logger.Warn("close engine connection", "database", dbName, "error", cerr)
		}
	}()

	return fn(conn)
}

// ident quotes an SQL identifier.
func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// literal escapes a string literal's single quotes. Passwords in CREATE
// ROLE / ALTER ROLE cannot be bound as parameters.
func literal(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\'' {
			out = append(out, '\'')
		}
		out = append(out, r)
	}
	return string(out)
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func wrap(op, subject string, err error) error {
	return domain.ErrUnavailable("%s %s: %v", op, subject, err)
}
