package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type contextKey string

// ScopeKey is the context key for the connection or transaction in use.
const ScopeKey contextKey = "dbScope"

// Querier is the part of pgx shared by pooled connections and transactions.
// Begin on a transaction opens a savepoint.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Scope carries the connection repositories run their statements on.
type Scope struct {
	Conn    Querier
	release func()
}

// Close releases the underlying connection back to the pool.
func (s *Scope) Close() {
	if s.release != nil {
		s.release()
		s.release = nil
	}
}

// GetScope retrieves the database scope from context.
func GetScope(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(ScopeKey).(*Scope)
	return scope, ok
}

// SetScope stores the database scope in context.
func SetScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, ScopeKey, scope)
}

// MustScope returns the scope's querier or an error when none is set.
func MustScope(ctx context.Context) (Querier, error) {
	scope, ok := GetScope(ctx)
	if !ok || scope.Conn == nil {
		return nil, fmt.Errorf("no database scope in context")
	}
	return scope.Conn, nil
}

// Transactor runs fn inside a transaction bound to the context fn receives.
// Nested calls become savepoints of the enclosing transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
