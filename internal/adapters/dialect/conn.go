package dialect

import (
	"context"
	"database/sql"
)

// Observer is notified of every DDL statement before it is sent.
type Observer func(name Name, op Op, stmt string)

// Conn wraps one pooled connection for the duration of a grain's migration.
// DDL goes through ExecDDL so observers see every schema change; catalog
// queries and bookkeeping DML use the plain methods.
type Conn struct {
	raw       *sql.Conn
	dialect   Name
	observers []Observer
}

// NewConn wraps raw for dialect d.
func NewConn(raw *sql.Conn, d Name, observers ...Observer) *Conn {
	return &Conn{raw: raw, dialect: d, observers: observers}
}

// Raw returns the underlying connection.
func (c *Conn) Raw() *sql.Conn { return c.raw }

// Dialect returns the dialect the connection speaks.
func (c *Conn) Dialect() Name { return c.dialect }

// ExecDDL issues one schema statement. Failures come back as *Error.
func (c *Conn) ExecDDL(ctx context.Context, op Op, stmt string, args ...any) error {
	for _, o := range c.observers {
		o(c.dialect, op, stmt)
	}
	if _, err := c.raw.ExecContext(ctx, stmt, args...); err != nil {
		return Wrap(c.dialect, op, stmt, err)
	}
	return nil
}

// Exec runs a statement that does not change the schema.
func (c *Conn) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.raw.ExecContext(ctx, query, args...)
}

func (c *Conn) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.raw.QueryContext(ctx, query, args...)
}

func (c *Conn) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.raw.QueryRowContext(ctx, query, args...)
}
