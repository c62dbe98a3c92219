package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxRunner runs fn inside a transaction. Repositories called with the
// context handed to fn join that transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type poolTx struct{ pool *pgxpool.Pool }

// NewTxRunner returns a TxRunner that begins transactions on the tenant
// connection stored in the context, or on the pool when there is none.
func NewTxRunner(pool *pgxpool.Pool) TxRunner { return &poolTx{pool: pool} }

func (r *poolTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := Conn(ctx, r.pool).Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer tx.Rollback(ctx)

	txCtx := context.WithValue(ctx, DBConnKey, Querier(tx))
	if err := fn(txCtx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Postgres SQLSTATE codes the repositories translate.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
)

func pgCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	code, _ := pgCode(err)
	return code == codeUniqueViolation
}

// IsForeignKeyViolation reports whether err is a foreign key violation.
func IsForeignKeyViolation(err error) bool {
	code, _ := pgCode(err)
	return code == codeForeignKeyViolation
}

// IsCheckViolation reports whether err is a CHECK constraint violation.
func IsCheckViolation(err error) bool {
	code, _ := pgCode(err)
	return code == codeCheckViolation
}

// ConstraintName returns the violated constraint, if any.
func ConstraintName(err error) string {
	_, name := pgCode(err)
	return name
}
