package database

import (
	"context"
	"fmt"
)

var _ Transactor = (*DB)(nil)

// Acquire takes a connection from the pool.
// The returned Scope MUST be closed with defer scope.Close().
func (db *DB) Acquire(ctx context.Context) (*Scope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &Scope{Conn: conn, release: conn.Release}, nil
}

// WithScope returns a context holding a pooled connection.
// The cleanup function must be called when the scope is no longer needed.
func (db *DB) WithScope(ctx context.Context) (context.Context, func(), error) {
	scope, err := db.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	return SetScope(ctx, scope), scope.Close, nil
}

// WithTx begins a transaction on the context's scope (a savepoint when the
// scope is already a transaction), runs fn with the transaction in context,
// and commits when fn returns nil. Any error rolls the work back.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	parent, ok := GetScope(ctx)
	if !ok {
		var err error
		if parent, err = db.Acquire(ctx); err != nil {
			return err
		}
		defer parent.Close()
	}

	tx, err := parent.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(SetScope(ctx, &Scope{Conn: tx})); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
