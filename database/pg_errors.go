package database

import (
	"context"
	"errors"

	apperrors "catalog-hierarchy/errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// SQLSTATE codes the store maps onto the error taxonomy.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgQueryCanceled        = "57014"
)

// mapStoreError converts driver errors into AppErrors. Both pgx and lib/pq
// error types are recognized.
func mapStoreError(ctx context.Context, err error, op string) error {
	if err == nil {
		return nil
	}
	if apperrors.IsAppError(err) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return apperrors.FromContext(ctxErr, op)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.FromContext(err, op)
	}

	code, detail := sqlState(err)
	switch code {
	case pgLockNotAvailable, pgSerializationFailure, pgDeadlockDetected:
		return apperrors.NewConcurrentModificationError(op, err)
	case pgUniqueViolation:
		dup := apperrors.NewDuplicateSiblingNameError(detail)
		dup.Cause = err
		return dup
	case pgQueryCanceled:
		return apperrors.NewDeadlineExceededError(op, err)
	}

	return apperrors.NewDatabaseError(apperrors.ErrCodeDatabaseQuery, "Database operation failed", err).
		WithDetails("operation %s", op)
}

func sqlState(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.Detail
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Detail
	}
	return "", ""
}
